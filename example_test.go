package cipherseal_test

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/yyyoichi/cipherseal"
)

func gradient(w, h int) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 4), B: uint8(x + y), A: 0xff})
		}
	}
	return img
}

func Example() {
	ctx := context.Background()
	// a fixed id source, crypto/rand is used by default
	ids := bytes.NewReader(bytes.Repeat([]byte{0x12, 0x34}, 8))

	sealer, _ := cipherseal.New([]byte("K"), cipherseal.WithRandom(ids))
	marked, receipt, err := sealer.AddImage(ctx, gradient(64, 64), []byte("My secret message"))
	if err != nil {
		panic(err)
	}
	fmt.Println("embedded", receipt.ContentID)

	report, _ := sealer.DetectImage(ctx, marked)
	fmt.Println(report.Outcome, report.ContentID, string(report.Message))

	other, _ := cipherseal.New([]byte("K2"))
	report, _ = other.DetectImage(ctx, marked)
	fmt.Println(report.Outcome)
	// Output:
	// embedded 12341234-1234-4234-9234-123412341234
	// verified 12341234-1234-4234-9234-123412341234 My secret message
	// tag_mismatch
}

func ExampleSealer_AddText() {
	ctx := context.Background()
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 10)

	sealer, _ := cipherseal.New([]byte("K"))
	marked, _, err := sealer.AddText(ctx, text, []byte("hi"))
	if err != nil {
		panic(err)
	}
	fmt.Println(marked == text, cipherseal.StripText(marked) == text)

	report, _ := sealer.DetectText(ctx, marked)
	fmt.Println(report.Outcome, string(report.Message))

	report, _ = sealer.DetectText(ctx, text)
	fmt.Println(report.Outcome)
	// Output:
	// false true
	// verified hi
	// absent
}
