// Package imageio reads raster files of the common formats and writes the
// lossless ones. Lossy formats would destroy least significant bits, so
// they are rejected on output.
package imageio

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrLossyFormat       = errors.New("lossy image format cannot carry a watermark")
)

// Format is an image file format name as reported by image.Decode.
type Format string

const (
	PNG  Format = "png"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
	GIF  Format = "gif"
	JPEG Format = "jpeg"
	WEBP Format = "webp"
)

// Lossless reports whether f can be written without changing samples.
func (f Format) Lossless() bool {
	switch f {
	case PNG, BMP, TIFF:
		return true
	}
	return false
}

// ContentType returns the media type of f.
func (f Format) ContentType() string {
	return "image/" + string(f)
}

// FormatFromPath returns the format for the extension of path.
func FormatFromPath(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		return PNG, nil
	case ".bmp":
		return BMP, nil
	case ".tif", ".tiff":
		return TIFF, nil
	case ".gif":
		return GIF, nil
	case ".jpg", ".jpeg":
		return JPEG, nil
	case ".webp":
		return WEBP, nil
	default:
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
	}
}

// Decode reads an image in any registered format.
func Decode(r io.Reader) (image.Image, Format, error) {
	img, name, err := image.Decode(bufio.NewReader(r))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
		}
		return nil, "", err
	}
	return img, Format(name), nil
}

// Encode writes img in format f. Only lossless formats are accepted.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case PNG:
		return png.Encode(w, img)
	case BMP:
		return bmp.Encode(w, img)
	case TIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case GIF, JPEG, WEBP:
		return fmt.Errorf("%w: %s", ErrLossyFormat, f)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// ReadFile decodes the image at path.
func ReadFile(path string) (image.Image, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()
	img, format, err := Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("decode %s: %w", path, err)
	}
	return img, format, nil
}

// WriteFile encodes img to path in the format given by its extension. The
// file is not created when the format is rejected.
func WriteFile(path string, img image.Image) (err error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if !format.Lossless() {
		return fmt.Errorf("%w: %s", ErrLossyFormat, path)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriter(f)
	if err := Encode(w, img, format); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return w.Flush()
}
