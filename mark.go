package cipherseal

import (
	"errors"
	"image"

	"github.com/yyyoichi/cipherseal/internal/keygen"
	"github.com/yyyoichi/cipherseal/internal/schedule"
	"github.com/yyyoichi/cipherseal/internal/watermark"
	"github.com/yyyoichi/cipherseal/mark"
	"github.com/yyyoichi/cipherseal/strmark"
)

type (
	// Grid is an 8-bit pixel grid. See FromImage.
	Grid = watermark.Grid
	// Outcome is the result of a detection.
	Outcome = mark.Outcome
)

const (
	Absent      = mark.Absent
	TagMismatch = mark.TagMismatch
	Verified    = mark.Verified
)

var (
	ErrInsufficientCapacity = schedule.ErrInsufficientCapacity
	ErrMalformedPayload     = mark.ErrMalformedPayload
	ErrMessageTooLong       = mark.ErrMessageTooLong
	ErrEmptyKey             = keygen.ErrEmptyKey
	ErrInvalidGrid          = watermark.ErrInvalidGrid
	ErrMarkerCount          = strmark.ErrMarkerCount
	ErrForeignMarkers       = strmark.ErrForeignMarkers

	ErrTagMismatch = errors.New("integrity tag mismatch")
	ErrAbsent      = errors.New("no watermark found")
	ErrInvalidText = errors.New("text is not valid UTF-8")
)

// FromImage converts an image into a Grid.
func FromImage(img image.Image) Grid {
	return watermark.FromImage(img)
}

// StripText removes all markers from text.
func StripText(text string) string {
	return strmark.Strip(text)
}
