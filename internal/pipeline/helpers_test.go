package pipeline

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"
)

func gradientImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}
	return img
}

func buildTestPNG(t testing.TB, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, gradientImage(w, h)); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

var testGIFPalette = color.Palette{
	color.RGBA{A: 0},
	color.RGBA{R: 255, A: 255},
	color.RGBA{B: 255, A: 255},
	color.RGBA{R: 255, G: 255, B: 255, A: 255},
	color.RGBA{A: 255},
}

// buildTestGIF encodes frames full-screen frames of w x h. Frame i draws a
// white bar at column 4*i on black.
func buildTestGIF(t testing.TB, w, h, frames int) []byte {
	t.Helper()

	anim := &gif.GIF{LoopCount: 0}
	for i := 0; i < frames; i++ {
		p := image.NewPaletted(image.Rect(0, 0, w, h), testGIFPalette)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				idx := uint8(4)
				if x >= 4*i && x < 4*i+4 {
					idx = 3
				}
				p.SetColorIndex(x, y, idx)
			}
		}
		anim.Image = append(anim.Image, p)
		anim.Delay = append(anim.Delay, 10+i)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		t.Fatalf("encode source gif: %v", err)
	}
	return buf.Bytes()
}
