// Package strmark hides bits in text as zero-width characters placed in the
// gaps between the characters of the text.
//
// Every watermark starts with a sync word at gaps scheduled from a public
// seed, so its presence can be checked without the key. Zero-width
// characters that occur in ordinary writing, such as ZERO WIDTH NON-JOINER
// in Persian or ZERO WIDTH SPACE in Thai, are not markers and are never
// touched.
package strmark

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/yyyoichi/cipherseal/internal/keygen"
	"github.com/yyyoichi/cipherseal/internal/schedule"
)

const (
	// Zero encodes a 0 bit (INVISIBLE SEPARATOR).
	Zero rune = '\u2063'
	// One encodes a 1 bit (INVISIBLE PLUS).
	One rune = '\u2064'

	// SyncWord is written ahead of every payload at key independent gaps.
	SyncWord uint32 = 0x3CA55AC3
	SyncBits        = 32
)

var (
	ErrInsufficientCapacity = schedule.ErrInsufficientCapacity
	ErrMarkerCount          = errors.New("marker count mismatch")
	ErrForeignMarkers       = errors.New("text contains marker characters that are not a watermark")
)

var syncKey = []byte("cipherseal/v1/text-sync")

func isMarker(r rune) bool { return r == Zero || r == One }

// Count returns the number of markers in text.
func Count(text string) int {
	n := 0
	for _, r := range text {
		if isMarker(r) {
			n++
		}
	}
	return n
}

// Strip removes all markers from text.
func Strip(text string) string {
	if Count(text) == 0 {
		return text
	}
	return strings.Map(func(r rune) rune {
		if isMarker(r) {
			return -1
		}
		return r
	}, text)
}

// Capacity returns the number of payload bits text can carry once markers
// are removed. A gap sits after every character except the last, and the
// sync word takes SyncBits of them.
func Capacity(text string) int {
	return max(gaps(utf8.RuneCountInString(text)-Count(text))-SyncBits, 0)
}

// Unmark removes a watermark from text. Text without markers is returned as
// is; markers without a sync word fail with ErrForeignMarkers.
func Unmark(text string) (string, error) {
	n := Count(text)
	if n == 0 {
		return text, nil
	}
	if !HasSync(text) {
		return "", fmt.Errorf("%w: %d found", ErrForeignMarkers, n)
	}
	return Strip(text), nil
}

// Embed inserts the sync word and one marker per payload bit at gaps chosen
// by key. A watermark already present in text is replaced. Markers without a
// sync word are rejected with ErrForeignMarkers rather than removed.
func Embed(text string, payload []bool, key []byte) (string, error) {
	text, err := Unmark(text)
	if err != nil {
		return "", err
	}
	runes := []rune(text)
	sync, slots, err := layout(key, len(runes), len(payload))
	if err != nil {
		return "", err
	}
	bits := make([]bool, 0, SyncBits+len(payload))
	for i := range SyncBits {
		bits = append(bits, SyncWord>>(SyncBits-1-i)&1 == 1)
	}
	bits = append(bits, payload...)
	return insert(runes, append(sync, slots...), bits), nil
}

// Extract reads n payload bits from text. The text must hold exactly
// SyncBits+n markers, because the slot order is derived for that many bits.
func Extract(text string, n int, key []byte) ([]bool, error) {
	total := SyncBits + n
	if c := Count(text); n < 0 || c != total {
		return nil, fmt.Errorf("%w: text has %d markers, want %d", ErrMarkerCount, c, total)
	}
	sync, slots, err := layout(key, utf8.RuneCountInString(text)-total, n)
	if err != nil {
		return nil, err
	}
	order := gapOrder(append(sync, slots...))
	bits := make([]bool, total)
	k := 0
	for _, r := range text {
		if !isMarker(r) {
			continue
		}
		bits[order[k]] = r == One
		k++
	}
	return bits[SyncBits:], nil
}

// HasSync reports whether text carries the sync word. It needs no key.
func HasSync(text string) bool {
	clean, marks := parse(text)
	if gaps(clean) < SyncBits {
		return false
	}
	seq, err := syncSequence(clean)
	if err != nil {
		return false
	}
	slots, err := seq.Take(SyncBits)
	if err != nil {
		return false
	}
	for i, s := range slots {
		// sync bits are drawn first, so they lead their gap
		m := marks[s]
		if len(m) == 0 || m[0] != (SyncWord>>(SyncBits-1-i)&1 == 1) {
			return false
		}
	}
	return true
}

func gaps(runes int) int { return max(runes-1, 0) }

func layout(key []byte, runes, n int) (sync, slots []int, err error) {
	capacity := gaps(runes)
	if need := SyncBits + n; need > capacity {
		return nil, nil, fmt.Errorf("%w: need %d gaps, text has %d", ErrInsufficientCapacity, need, capacity)
	}
	seed, err := keygen.ScheduleSeed(key, keygen.TextSalt(runes))
	if err != nil {
		return nil, nil, err
	}
	seq, err := syncSequence(runes)
	if err != nil {
		return nil, nil, err
	}
	if sync, err = seq.Take(SyncBits); err != nil {
		return nil, nil, err
	}
	seq.Reseed(seed)
	if slots, err = seq.Take(n); err != nil {
		return nil, nil, err
	}
	return sync, slots, nil
}

func syncSequence(runes int) (*schedule.Sequence, error) {
	seed, err := keygen.ScheduleSeed(syncKey, keygen.TextSalt(runes))
	if err != nil {
		return nil, err
	}
	return schedule.New(seed, gaps(runes)), nil
}

// parse returns the number of non-marker characters and the marker bits
// found after each of them, keyed by gap.
func parse(text string) (int, map[int][]bool) {
	clean := 0
	marks := make(map[int][]bool)
	for _, r := range text {
		if !isMarker(r) {
			clean++
			continue
		}
		if clean > 0 {
			marks[clean-1] = append(marks[clean-1], r == One)
		}
	}
	return clean, marks
}

// insert writes the markers of gap g right after runes[g]. Markers sharing a
// gap keep the order of their bit index.
func insert(runes []rune, slots []int, bits []bool) string {
	at := make(map[int][]int, len(slots))
	for i, s := range slots {
		at[s] = append(at[s], i)
	}
	var b strings.Builder
	b.Grow(len(runes) + len(bits)*utf8.RuneLen(Zero))
	for g, r := range runes {
		b.WriteRune(r)
		for _, i := range at[g] {
			if bits[i] {
				b.WriteRune(One)
			} else {
				b.WriteRune(Zero)
			}
		}
	}
	return b.String()
}

// gapOrder returns bit indices in the order their markers appear in text.
func gapOrder(slots []int) []int {
	order := make([]int, len(slots))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return slots[a] - slots[b]
	})
	return order
}
