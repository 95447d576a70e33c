// Package quality measures the distortion a watermark adds to an image.
package quality

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/yyyoichi/cipherseal/internal/watermark"
	"gonum.org/v1/gonum/floats"
)

var ErrGeometryMismatch = errors.New("images differ in geometry")

// Metrics compares two grids of the same geometry sample by sample.
type Metrics struct {
	Samples  int     `json:"samples"`
	Changed  int     `json:"changed"`
	MaxDelta float64 `json:"max_delta"`
	MSE      float64 `json:"mse"`
	// PSNR in dB for 8-bit samples, +Inf for identical grids.
	PSNR float64 `json:"psnr"`
}

func (m Metrics) String() string {
	return fmt.Sprintf("samples=%d changed=%d max_delta=%.0f mse=%.6f psnr=%.2fdB",
		m.Samples, m.Changed, m.MaxDelta, m.MSE, m.PSNR)
}

// MarshalJSON writes an infinite PSNR as null.
func (m Metrics) MarshalJSON() ([]byte, error) {
	type plain Metrics
	out := struct {
		plain
		PSNR *float64 `json:"psnr"`
	}{plain: plain(m)}
	if !math.IsInf(m.PSNR, 0) {
		out.PSNR = &m.PSNR
	}
	return json.Marshal(out)
}

// Compare returns the distortion between a and b.
func Compare(a, b watermark.Grid) (Metrics, error) {
	if a.Width != b.Width || a.Height != b.Height || a.Channels != b.Channels || len(a.Pix) != len(b.Pix) {
		return Metrics{}, fmt.Errorf("%w: %dx%dx%d and %dx%dx%d", ErrGeometryMismatch,
			a.Width, a.Height, a.Channels, b.Width, b.Height, b.Channels)
	}
	m := Metrics{Samples: len(a.Pix), PSNR: math.Inf(1)}
	if m.Samples == 0 {
		return m, nil
	}
	x, y := toFloats(a.Pix), toFloats(b.Pix)
	diff := floats.SubTo(make([]float64, len(x)), x, y)
	for _, d := range diff {
		if d != 0 {
			m.Changed++
		}
	}
	m.MaxDelta = floats.Distance(x, y, math.Inf(1))
	l2 := floats.Distance(x, y, 2)
	m.MSE = l2 * l2 / float64(m.Samples)
	if m.MSE > 0 {
		m.PSNR = 10 * math.Log10(255*255/m.MSE)
	}
	return m, nil
}

func toFloats(pix []uint8) []float64 {
	out := make([]float64, len(pix))
	for i, v := range pix {
		out[i] = float64(v)
	}
	return out
}
