// Package effects implements the frame effect engine: pure transforms over
// RGBA pixel buffers and the glyph rasterizer that turns luminance fields
// into character grids.
//
// Every function in this package is a pure function of its arguments. None
// of them retain or share the buffers they are given, so independent frames
// may be processed concurrently without synchronization.
package effects

import (
	"image"
	"image/draw"
)

// RGB is an opaque 8-bit color.
type RGB struct {
	R, G, B uint8
}

// PixelBuffer is a row-major RGBA buffer. Pixel (x, y) starts at
// Pix[4*(y*Width+x)].
type PixelBuffer struct {
	Width  int
	Height int
	Pix    []uint8
}

func NewPixelBuffer(width, height int) *PixelBuffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &PixelBuffer{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, 4*width*height),
	}
}

// FromImage copies img into a new buffer anchored at the origin.
func FromImage(img image.Image) *PixelBuffer {
	b := img.Bounds()
	out := NewPixelBuffer(b.Dx(), b.Dy())
	if out.Empty() {
		return out
	}
	draw.Draw(out.RGBA(), image.Rect(0, 0, out.Width, out.Height), img, b.Min, draw.Src)
	return out
}

// RGBA returns an *image.RGBA view that shares memory with the buffer.
func (b *PixelBuffer) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    b.Pix,
		Stride: 4 * b.Width,
		Rect:   image.Rect(0, 0, b.Width, b.Height),
	}
}

func (b *PixelBuffer) Empty() bool {
	return b == nil || b.Width <= 0 || b.Height <= 0
}

func (b *PixelBuffer) Len() int {
	if b.Empty() {
		return 0
	}
	return b.Width * b.Height
}

func (b *PixelBuffer) Clone() *PixelBuffer {
	out := &PixelBuffer{Width: b.Width, Height: b.Height, Pix: make([]uint8, len(b.Pix))}
	copy(out.Pix, b.Pix)
	return out
}

// RGBAt returns the color of the pixel with flat index i.
func (b *PixelBuffer) RGBAt(i int) RGB {
	p := b.Pix[4*i : 4*i+3 : 4*i+3]
	return RGB{R: p[0], G: p[1], B: p[2]}
}

// SetOpaque writes c at flat index i with alpha 255.
func (b *PixelBuffer) SetOpaque(i int, c RGB) {
	p := b.Pix[4*i : 4*i+4 : 4*i+4]
	p[0] = c.R
	p[1] = c.G
	p[2] = c.B
	p[3] = 255
}

// Fill paints every pixel with c and alpha a.
func (b *PixelBuffer) Fill(c RGB, a uint8) {
	for i := 0; i+3 < len(b.Pix); i += 4 {
		b.Pix[i] = c.R
		b.Pix[i+1] = c.G
		b.Pix[i+2] = c.B
		b.Pix[i+3] = a
	}
}

// sameShape returns an empty output buffer with the dimensions of src.
func sameShape(src *PixelBuffer) *PixelBuffer {
	if src == nil {
		return NewPixelBuffer(0, 0)
	}
	return NewPixelBuffer(src.Width, src.Height)
}

func clampByte(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
