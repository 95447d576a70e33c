package watermark

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

var ErrInvalidGrid = errors.New("invalid pixel grid")

// Grid is an 8-bit raster in row-major order. Each pixel holds Channels
// samples. When Alpha is set the last sample of every pixel is alpha and is
// never addressed by the engine.
type Grid struct {
	Width, Height int
	Channels      int
	Alpha         bool
	Pix           []uint8
}

// NewGrid returns a zero grid. Gray and RGB grids are opaque; 2 and 4
// channel grids carry a trailing alpha channel.
func NewGrid(width, height, channels int) Grid {
	return Grid{
		Width:    width,
		Height:   height,
		Channels: channels,
		Alpha:    channels == 2 || channels == 4,
		Pix:      make([]uint8, width*height*channels),
	}
}

// Usable returns the number of addressable channels per pixel.
func (g Grid) Usable() int {
	if g.Alpha {
		return g.Channels - 1
	}
	return g.Channels
}

func (g Grid) Validate() error {
	switch {
	case g.Width < 0 || g.Height < 0:
		return fmt.Errorf("%w: size %dx%d", ErrInvalidGrid, g.Width, g.Height)
	case g.Channels < 1 || g.Channels > 4:
		return fmt.Errorf("%w: %d channels", ErrInvalidGrid, g.Channels)
	case g.Alpha != (g.Channels%2 == 0):
		return fmt.Errorf("%w: alpha flag does not match %d channels", ErrInvalidGrid, g.Channels)
	case len(g.Pix) != g.Width*g.Height*g.Channels:
		return fmt.Errorf("%w: %d samples for %dx%dx%d", ErrInvalidGrid, len(g.Pix), g.Width, g.Height, g.Channels)
	}
	return nil
}

// Clone returns a grid with its own copy of the samples.
func (g Grid) Clone() Grid {
	g.Pix = append([]uint8(nil), g.Pix...)
	return g
}

// FromImage converts img into a grid. Gray images give one channel, opaque
// images three (RGB) and translucent images four (RGB with alpha). Colors
// are taken non-premultiplied.
func FromImage(img image.Image) Grid {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch m := img.ColorModel(); {
	case m == color.GrayModel || m == color.Gray16Model:
		g := NewGrid(w, h, 1)
		for y := range h {
			for x := range w {
				g.Pix[y*w+x] = color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray).Y
			}
		}
		return g
	}

	channels := 4
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		channels = 3
	}
	g := NewGrid(w, h, channels)
	i := 0
	for y := range h {
		for x := range w {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			g.Pix[i], g.Pix[i+1], g.Pix[i+2] = c.R, c.G, c.B
			if channels == 4 {
				g.Pix[i+3] = c.A
			}
			i += channels
		}
	}
	return g
}

// Image converts the grid back into an image. One channel grids become
// *image.Gray, all others *image.NRGBA.
func (g Grid) Image() image.Image {
	rect := image.Rect(0, 0, g.Width, g.Height)
	if g.Channels == 1 {
		img := image.NewGray(rect)
		copy(img.Pix, g.Pix)
		return img
	}
	img := image.NewNRGBA(rect)
	for p := range g.Width * g.Height {
		s := g.Pix[p*g.Channels : (p+1)*g.Channels]
		d := img.Pix[p*4 : p*4+4]
		switch g.Channels {
		case 2:
			d[0], d[1], d[2], d[3] = s[0], s[0], s[0], s[1]
		case 3:
			d[0], d[1], d[2], d[3] = s[0], s[1], s[2], 0xff
		case 4:
			copy(d, s)
		}
	}
	return img
}
