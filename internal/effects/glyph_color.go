package effects

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

var monoFont = sync.OnceValues(func() (*opentype.Font, error) {
	return opentype.Parse(gomono.TTF)
})

// MonoFont returns the parsed Go Mono face used when no font is configured.
// The returned font is read-only and safe to share between goroutines.
func MonoFont() (*opentype.Font, error) {
	return monoFont()
}

type ColorGlyphOptions struct {
	GlyphOptions

	// Canvas is the color painted under the glyphs. Nil means opaque black.
	Canvas *color.RGBA
	// Font defaults to MonoFont.
	Font *opentype.Font
}

// RasterizeColored draws each cell's glyph into a new buffer the size of buf,
// filled with the cell's average color and sized to the cell height. Cells
// that contain an outline edge always use the glyph for luminance 0 while
// keeping their color. Background cells are left unpainted. The returned
// grid holds the glyph chosen for every cell. An empty ramp panics.
func RasterizeColored(buf *PixelBuffer, opts ColorGlyphOptions) (Grid, *PixelBuffer, error) {
	ramp := opts.ramp()
	out := sameShape(buf)
	if out.Empty() {
		return Grid{}, out, nil
	}
	canvas := color.RGBA{A: 255}
	if opts.Canvas != nil {
		canvas = *opts.Canvas
	}
	out.Fill(RGB{canvas.R, canvas.G, canvas.B}, canvas.A)

	geo, ok := gridGeometry(buf.Width, buf.Height, opts.Columns, CanvasAspect)
	if !ok {
		return Grid{}, out, nil
	}
	mask := opts.backgroundMask(buf)

	var edges []bool
	if opts.Outline != nil {
		edges = Sobel(Luminance(buf), mask).Edges(opts.Outline.Threshold)
	}

	face, err := glyphFace(opts.Font, geo.blockH)
	if err != nil {
		return Grid{}, nil, err
	}
	defer face.Close()

	drawer := font.Drawer{Dst: out.RGBA(), Face: face}
	ascent := face.Metrics().Ascent

	rows := make([]string, geo.rows)
	var line strings.Builder
	for row := 0; row < geo.rows; row++ {
		line.Reset()
		for col := 0; col < geo.cols; col++ {
			var sumR, sumG, sumB, n, bg, edge int
			geo.visit(col, row, buf.Width, buf.Height, func(i int) {
				p := buf.Pix[4*i:]
				sumR += int(p[0])
				sumG += int(p[1])
				sumB += int(p[2])
				n++
				if mask != nil && mask[i] {
					bg++
				}
				if edges != nil && edges[i] {
					edge++
				}
			})
			if n == 0 || (mask != nil && float64(bg)/float64(n) > 0.5) {
				line.WriteByte(' ')
				continue
			}

			avg := RGB{roundDiv(sumR, n), roundDiv(sumG, n), roundDiv(sumB, n)}
			lum := float64(Luma(avg))
			if edge > 0 {
				lum = 0
			}
			glyph := ramp[ramp.Index(lum)]
			line.WriteRune(glyph)

			x0, y0 := geo.origin(col, row)
			drawer.Src = image.NewUniform(color.RGBA{avg.R, avg.G, avg.B, 255})
			drawer.Dot = fixed.Point26_6{X: fixed.I(x0), Y: fixed.I(y0) + ascent}
			drawer.DrawString(string(glyph))
		}
		rows[row] = line.String()
	}
	return Grid{Rows: rows}, out, nil
}

func glyphFace(f *opentype.Font, size float64) (font.Face, error) {
	if f == nil {
		var err error
		if f, err = MonoFont(); err != nil {
			return nil, fmt.Errorf("parse default glyph font: %w", err)
		}
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("create glyph face size=%.2f: %w", size, err)
	}
	return face, nil
}

func roundDiv(sum, n int) uint8 {
	return clampByte((sum + n/2) / n)
}
