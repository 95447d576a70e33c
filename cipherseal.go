// Package cipherseal embeds keyed, verifiable watermarks into images and
// text and detects them again.
//
// A watermark is a frame holding a random content id, an optional message
// and an HMAC tag. Images carry it in the least significant bits of pixel
// samples, text in zero-width characters placed between its characters.
// The positions are derived from the secret key and the carrier geometry.
package cipherseal

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/yyyoichi/cipherseal/internal/watermark"
	"github.com/yyyoichi/cipherseal/mark"
	"github.com/yyyoichi/cipherseal/strmark"
	"golang.org/x/text/unicode/norm"
)

// Receipt describes an embedded watermark.
type Receipt struct {
	ContentID uuid.UUID
	Message   []byte
	// PayloadBits is the number of carrier slots written for the frame.
	PayloadBits int
	// Capacity is the number of slots the carrier offers for a frame.
	Capacity int
}

// Report is the result of a detection. ContentID and Message are set only
// when Outcome is Verified. Reason explains any other outcome and wraps
// ErrAbsent, ErrMalformedPayload or ErrTagMismatch.
type Report struct {
	Outcome   Outcome
	ContentID uuid.UUID
	Message   []byte
	Reason    error
}

// Sealer embeds and detects watermarks under one secret key. It is safe for
// concurrent use; reads from a WithRandom source are serialized.
type Sealer struct {
	key       []byte
	layer     mark.Layer
	normalize bool

	mu     sync.Mutex // guards random
	random io.Reader
}

// New returns a Sealer for key. The key is copied.
func New(key []byte, opts ...Option) (*Sealer, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	s := &Sealer{
		key:   append([]byte(nil), key...),
		layer: mark.WithoutECC(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Layer returns the error correction layer in use.
func (s *Sealer) Layer() mark.Layer { return s.layer }

// AddGrid embeds a new watermark carrying message into a copy of g.
// It fails with ErrInsufficientCapacity when g is too small for the frame.
func (s *Sealer) AddGrid(ctx context.Context, g Grid, message []byte) (Grid, Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Grid{}, Receipt{}, err
	}
	if err := g.Validate(); err != nil {
		return Grid{}, Receipt{}, err
	}
	r, code, err := s.frame(message)
	if err != nil {
		return Grid{}, Receipt{}, err
	}
	r.Capacity = max(watermark.Capacity(g)-watermark.SyncBits, 0)
	out, err := watermark.Embed(g, code, s.key)
	if err != nil {
		return Grid{}, Receipt{}, err
	}
	return out, r, nil
}

// AddImage is AddGrid for an image.Image. The result is an *image.Gray or
// *image.NRGBA of the same size.
func (s *Sealer) AddImage(ctx context.Context, img image.Image, message []byte) (image.Image, Receipt, error) {
	g, r, err := s.AddGrid(ctx, watermark.FromImage(img), message)
	if err != nil {
		return nil, Receipt{}, err
	}
	return g.Image(), r, nil
}

// AddText embeds a new watermark carrying message into text. A watermark
// already present in text is replaced. Marker characters that do not form a
// watermark fail with ErrForeignMarkers and are never removed.
func (s *Sealer) AddText(ctx context.Context, text string, message []byte) (string, Receipt, error) {
	if err := ctx.Err(); err != nil {
		return "", Receipt{}, err
	}
	if !utf8.ValidString(text) {
		return "", Receipt{}, ErrInvalidText
	}
	text, err := strmark.Unmark(text)
	if err != nil {
		return "", Receipt{}, err
	}
	if s.normalize {
		text = norm.NFC.String(text)
	}
	r, code, err := s.frame(message)
	if err != nil {
		return "", Receipt{}, err
	}
	r.Capacity = strmark.Capacity(text)
	out, err := strmark.Embed(text, code, s.key)
	if err != nil {
		return "", Receipt{}, err
	}
	return out, r, nil
}

// DetectGrid looks for a watermark in g. Outcomes are reported in Report;
// the error is set only for a cancelled context or an invalid grid.
func (s *Sealer) DetectGrid(ctx context.Context, g Grid) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	if err := g.Validate(); err != nil {
		return Report{}, err
	}
	avail := max(watermark.Capacity(g)-watermark.SyncBits, 0)
	if need := s.layer.EncodedLen(mark.MinFrameBits); avail < need {
		return absent("image offers %d slots, a frame needs %d", avail, need), nil
	}
	if !watermark.HasSync(g) {
		return absent("sync word not found"), nil
	}
	return s.read(func(n int) ([]bool, error) {
		return watermark.Extract(g, n, s.key)
	}, avail), nil
}

// DetectImage is DetectGrid for an image.Image.
func (s *Sealer) DetectImage(ctx context.Context, img image.Image) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	return s.DetectGrid(ctx, watermark.FromImage(img))
}

// DetectText looks for a watermark in text.
func (s *Sealer) DetectText(ctx context.Context, text string) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	if !utf8.ValidString(text) {
		return Report{}, ErrInvalidText
	}
	n := strmark.Count(text) - strmark.SyncBits
	if need := s.layer.EncodedLen(mark.MinFrameBits); n < need {
		return absent("text has %d payload markers, a frame needs %d", max(n, 0), need), nil
	}
	if !strmark.HasSync(text) {
		return absent("sync word not found"), nil
	}
	bits, err := strmark.Extract(text, n, s.key)
	if err != nil {
		return mismatch(fmt.Errorf("%w: %w", ErrMalformedPayload, err)), nil
	}
	return s.read(func(k int) ([]bool, error) {
		return bits[:k], nil
	}, n), nil
}

func (s *Sealer) frame(message []byte) (Receipt, []bool, error) {
	id, err := s.newID()
	if err != nil {
		return Receipt{}, nil, fmt.Errorf("generate content id: %w", err)
	}
	frame, err := mark.Encode(s.key, id, message)
	if err != nil {
		return Receipt{}, nil, err
	}
	code, err := s.layer.Encode(frame)
	if err != nil {
		return Receipt{}, nil, err
	}
	return Receipt{
		ContentID:   id,
		Message:     append([]byte(nil), message...),
		PayloadBits: len(code),
	}, code, nil
}

// read decodes a frame from a carrier offering avail slots. read(n) returns
// the first n code bits; avail is at least the encoded minimum frame.
func (s *Sealer) read(read func(n int) ([]bool, error), avail int) Report {
	head, err := read(s.layer.EncodedLen(mark.HeaderBits))
	if err != nil {
		return mismatch(fmt.Errorf("%w: %w", ErrMalformedPayload, err))
	}
	header, err := s.layer.Decode(head, mark.HeaderBits)
	if err != nil {
		return mismatch(err)
	}
	total, err := mark.FrameBits(header)
	if err != nil {
		return mismatch(err)
	}
	size := s.layer.EncodedLen(total)
	if size > avail {
		return mismatch(fmt.Errorf("%w: frame of %d slots exceeds the %d available", ErrMalformedPayload, size, avail))
	}
	code, err := read(size)
	if err != nil {
		return mismatch(fmt.Errorf("%w: %w", ErrMalformedPayload, err))
	}
	data, err := s.layer.Decode(code, total)
	if err != nil {
		return mismatch(err)
	}
	p, err := mark.Decode(data)
	if err != nil {
		return mismatch(err)
	}
	outcome, err := mark.Verify(s.key, p)
	if err != nil {
		return mismatch(err)
	}
	if outcome != Verified {
		return mismatch(fmt.Errorf("%w: content id %s", ErrTagMismatch, p.ContentID))
	}
	return Report{
		Outcome:   Verified,
		ContentID: p.ContentID,
		Message:   p.Message,
	}
}

func (s *Sealer) newID() (uuid.UUID, error) {
	if s.random != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		return uuid.NewRandomFromReader(s.random)
	}
	return uuid.NewRandom()
}

func absent(format string, args ...any) Report {
	return Report{
		Outcome: Absent,
		Reason:  fmt.Errorf("%w: "+format, append([]any{ErrAbsent}, args...)...),
	}
}

func mismatch(reason error) Report {
	return Report{
		Outcome: TagMismatch,
		Reason:  reason,
	}
}
