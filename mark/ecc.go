package mark

import (
	"fmt"

	"github.com/yyyoichi/cipherseal/internal/bitconv"
	"github.com/yyyoichi/golay"
)

// Layer is an error correction code applied to a frame before embedding.
// Encoding works on independent blocks so that decoding an encoded prefix
// yields a prefix of the data.
type Layer interface {
	// Encode returns the code bits for data.
	Encode(data []bool) ([]bool, error)
	// Decode returns the first size data bits recovered from code. It fails
	// with ErrMalformedPayload when code is shorter than EncodedLen(size)
	// or cannot be decoded.
	Decode(code []bool, size int) ([]bool, error)
	// EncodedLen returns the code length for size data bits.
	EncodedLen(size int) int
	Name() string
}

// WithoutECC embeds frames as they are.
func WithoutECC() Layer { return withoutecc{} }

// WithGolay protects frames with the binary Golay(23,12) code. Every 12 data
// bits become a 23-bit block, about 1.92 times the slots, and up to 3
// flipped bits per block are corrected.
func WithGolay() Layer { return golayecc{} }

// LayerByName returns the layer for "none" or "golay".
func LayerByName(name string) (Layer, bool) {
	switch name {
	case "", "none":
		return withoutecc{}, true
	case "golay":
		return golayecc{}, true
	}
	return nil, false
}

var _ Layer = (*golayecc)(nil)

type golayecc struct{}

func (golayecc) Encode(data []bool) ([]bool, error) {
	if len(data) == 0 {
		return nil, nil
	}
	words, size := bitconv.BoolsToWords(data)
	var encoded []uint64
	enc := golay.NewEncoder(&encoded)
	if err := enc.Encode(words, size); err != nil {
		return nil, fmt.Errorf("golay encode: %w", err)
	}
	return bitconv.WordsToBools(encoded, enc.Bits()), nil
}

func (g golayecc) Decode(code []bool, size int) ([]bool, error) {
	if size == 0 {
		return nil, nil
	}
	if need := g.EncodedLen(size); len(code) < need {
		return nil, fmt.Errorf("%w: %d code bits, want %d", ErrMalformedPayload, len(code), need)
	}
	words, n := bitconv.BoolsToWords(code)
	var decoded []uint64
	dec := golay.NewDecoder(words, n)
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: golay: %w", ErrMalformedPayload, err)
	}
	return bitconv.WordsToBools(decoded, size), nil
}

func (golayecc) EncodedLen(size int) int {
	return golay.EncodedBits(size)
}

func (golayecc) Name() string { return "golay" }

var _ Layer = (*withoutecc)(nil)

type withoutecc struct{}

func (withoutecc) Encode(data []bool) ([]bool, error) {
	return data, nil
}

func (withoutecc) Decode(code []bool, size int) ([]bool, error) {
	if len(code) < size {
		return nil, fmt.Errorf("%w: %d code bits, want %d", ErrMalformedPayload, len(code), size)
	}
	return append([]bool(nil), code[:size]...), nil
}

func (withoutecc) EncodedLen(size int) int {
	return size
}

func (withoutecc) Name() string { return "none" }
