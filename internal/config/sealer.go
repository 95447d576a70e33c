package config

import (
	"fmt"

	"github.com/yyyoichi/cipherseal"
	"github.com/yyyoichi/cipherseal/mark"
)

// Sealer reads the secret key and returns a sealer with the configured
// error correction and normalization.
func (c *Config) Sealer() (*cipherseal.Sealer, error) {
	key, err := c.SecretKey()
	if err != nil {
		return nil, err
	}
	layer, ok := mark.LayerByName(c.Watermark.ECC)
	if !ok {
		return nil, fmt.Errorf("%w: ecc %q", ErrInvalidConfig, c.Watermark.ECC)
	}
	opts := []cipherseal.Option{cipherseal.WithLayer(layer)}
	if c.Watermark.Normalize {
		opts = append(opts, cipherseal.WithNormalization())
	}
	return cipherseal.New(key, opts...)
}
