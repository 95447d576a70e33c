package watermark

import (
	"fmt"
	"math/bits"

	"github.com/yyyoichi/cipherseal/internal/keygen"
	"github.com/yyyoichi/cipherseal/internal/schedule"
)

const (
	// SyncWord is written ahead of every payload at key independent slots.
	SyncWord uint32 = 0xA5C35A3C
	SyncBits        = 32
	// SyncTolerance is the number of sync bit errors HasSync accepts.
	SyncTolerance = 2
)

var ErrInsufficientCapacity = schedule.ErrInsufficientCapacity

var syncKey = []byte("cipherseal/v1/image-sync")

// Capacity returns the number of addressable samples of g.
func Capacity(g Grid) int {
	return g.Width * g.Height * g.Usable()
}

// RequiredSlots returns the samples needed to embed n payload bits.
func RequiredSlots(n int) int {
	return SyncBits + n
}

// Embed writes the sync word and payload into the least significant bits of
// a copy of g. Alpha and unselected samples are left untouched.
func Embed(g Grid, payload []bool, key []byte) (Grid, error) {
	if err := g.Validate(); err != nil {
		return Grid{}, err
	}
	sync, slots, err := layout(g, key, len(payload))
	if err != nil {
		return Grid{}, err
	}
	out := g.Clone()
	for i, s := range sync {
		setLSB(out, s, SyncWord>>(SyncBits-1-i)&1 == 1)
	}
	for i, s := range slots {
		setLSB(out, s, payload[i])
	}
	return out, nil
}

// Extract reads n payload bits from g. The bits are returned as read.
func Extract(g Grid, n int, key []byte) ([]bool, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	_, slots, err := layout(g, key, n)
	if err != nil {
		return nil, err
	}
	out := make([]bool, n)
	for i, s := range slots {
		out[i] = lsb(g, s)
	}
	return out, nil
}

// HasSync reports whether g carries the sync word within SyncTolerance bit
// errors.
func HasSync(g Grid) bool {
	if g.Validate() != nil || Capacity(g) < SyncBits {
		return false
	}
	seq, err := syncSequence(g)
	if err != nil {
		return false
	}
	slots, _ := seq.Take(SyncBits)
	var word uint32
	for _, s := range slots {
		word <<= 1
		if lsb(g, s) {
			word |= 1
		}
	}
	return bits.OnesCount32(word^SyncWord) <= SyncTolerance
}

func layout(g Grid, key []byte, n int) (sync, slots []int, err error) {
	if need, have := RequiredSlots(n), Capacity(g); need > have {
		return nil, nil, fmt.Errorf("%w: need %d samples, image has %d", ErrInsufficientCapacity, need, have)
	}
	seed, err := keygen.ScheduleSeed(key, salt(g))
	if err != nil {
		return nil, nil, err
	}
	seq, err := syncSequence(g)
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

func syncSequence(g Grid) (*schedule.Sequence, error) {
	seed, err := keygen.ScheduleSeed(syncKey, salt(g))
	if err != nil {
		return nil, err
	}
	return schedule.New(seed, Capacity(g)), nil
}

func salt(g Grid) keygen.Salt {
	return keygen.ImageSalt(g.Width, g.Height, g.Usable())
}

// sample maps a slot to its offset in Pix. slot/C is the pixel in row-major
// order (row = pixel/W, column = pixel%W) and slot%C the channel.
func sample(g Grid, slot int) int {
	c := g.Usable()
	return (slot/c)*g.Channels + slot%c
}

func setLSB(g Grid, slot int, bit bool) {
	i := sample(g, slot)
	v := g.Pix[i] &^ 1
	if bit {
		v |= 1
	}
	g.Pix[i] = v
}

func lsb(g Grid, slot int) bool {
	return g.Pix[sample(g, slot)]&1 == 1
}
