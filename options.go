package cipherseal

import (
	"errors"
	"io"

	"github.com/yyyoichi/cipherseal/mark"
)

type Option func(*Sealer) error

// WithGolay protects the frame with the binary Golay(23,12) code. It takes
// about 1.92 times the carrier slots and survives up to three flipped bits in
// every 23-bit block. Detection must use the same option as embedding.
func WithGolay() Option {
	return WithLayer(mark.WithGolay())
}

// WithoutECC embeds the frame without error correction. This is the default.
func WithoutECC() Option {
	return WithLayer(mark.WithoutECC())
}

// WithLayer selects the error correction layer.
func WithLayer(l mark.Layer) Option {
	return func(s *Sealer) error {
		if l == nil {
			return errors.New("nil error correction layer")
		}
		s.layer = l
		return nil
	}
}

// WithNormalization converts text to Unicode NFC before it is marked, so
// that equivalent inputs carry the same gaps.
func WithNormalization() Option {
	return func(s *Sealer) error {
		s.normalize = true
		return nil
	}
}

// WithRandom sets the source of content ids. It defaults to crypto/rand.
func WithRandom(r io.Reader) Option {
	return func(s *Sealer) error {
		if r == nil {
			return errors.New("nil random source")
		}
		s.random = r
		return nil
	}
}
