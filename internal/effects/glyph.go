package effects

import (
	"math"
	"strings"
)

// defaultRamp runs from the lightest-looking glyph (space) to the densest.
const defaultRamp = " `.'\"^,:;Il!i~+_-?][}{1)(|/tfjrxnuvczXYUJCLQ0OZmwqpdbkhao*#MW&8%B@$"

// Character aspect ratios (cell width / cell height) used to derive the
// number of rows. Plain text and drawn glyphs use different values.
const (
	TextAspect   = 0.5
	CanvasAspect = 0.6
)

// Ramp is an ordered glyph sequence from lightest to densest.
type Ramp []rune

// DefaultRamp returns a fresh copy of the standard 67-glyph ramp.
func DefaultRamp() Ramp {
	return Ramp(defaultRamp)
}

func (r Ramp) Reversed() Ramp {
	out := make(Ramp, len(r))
	for i, c := range r {
		out[len(r)-1-i] = c
	}
	return out
}

// Index maps an average luminance in [0,255] to a ramp position.
func (r Ramp) Index(avg float64) int {
	i := int(math.Floor(avg / 255 * float64(len(r)-1)))
	if i < 0 {
		return 0
	}
	if i >= len(r) {
		return len(r) - 1
	}
	return i
}

// OutlineConfig switches the rasterizer to line art: pixels whose Sobel
// magnitude exceeds Threshold become ink.
type OutlineConfig struct {
	Threshold float64
}

// BackgroundConfig blanks cells that are mostly background, where background
// means within Threshold color distance of the top-left pixel.
type BackgroundConfig struct {
	Threshold float64
}

type GlyphOptions struct {
	// Columns is the requested character width of the grid.
	Columns    int
	Outline    *OutlineConfig
	Background *BackgroundConfig
	Invert     bool
	// Ramp defaults to DefaultRamp when nil.
	Ramp Ramp
}

func (o GlyphOptions) ramp() Ramp {
	r := o.Ramp
	if r == nil {
		r = DefaultRamp()
	}
	if len(r) == 0 {
		panic("effects: glyph ramp is empty")
	}
	if o.Invert {
		r = r.Reversed()
	}
	return r
}

func (o GlyphOptions) backgroundMask(buf *PixelBuffer) []bool {
	if o.Background == nil {
		return nil
	}
	return BackgroundMask(buf, o.Background.Threshold)
}

// Grid is a rectangular block of glyphs; every row holds the same number of
// runes.
type Grid struct {
	Rows []string
}

func (g Grid) Height() int {
	return len(g.Rows)
}

func (g Grid) Empty() bool {
	return len(g.Rows) == 0
}

// String joins the rows with newlines.
func (g Grid) String() string {
	return strings.Join(g.Rows, "\n")
}

// geometry maps grid cells onto source pixel blocks. Blocks are real-valued
// in size; sampling covers ceil(block) pixels from floor(cell*block), so
// neighbouring blocks may overlap by one pixel.
type geometry struct {
	cols, rows     int
	blockW, blockH float64
	spanW, spanH   int
}

func gridGeometry(width, height, cols int, aspect float64) (geometry, bool) {
	if width <= 0 || height <= 0 || cols <= 0 {
		return geometry{}, false
	}
	rows := int(math.Floor(float64(cols) * (float64(height) / float64(width)) * aspect))
	if rows <= 0 {
		return geometry{}, false
	}
	g := geometry{
		cols:   cols,
		rows:   rows,
		blockW: float64(width) / float64(cols),
		blockH: float64(height) / float64(rows),
	}
	g.spanW = int(math.Ceil(g.blockW))
	g.spanH = int(math.Ceil(g.blockH))
	return g, true
}

func (g geometry) origin(col, row int) (int, int) {
	return int(math.Floor(float64(col) * g.blockW)), int(math.Floor(float64(row) * g.blockH))
}

// visit calls fn with the flat index of every in-bounds pixel of a cell.
func (g geometry) visit(col, row, width, height int, fn func(i int)) {
	x0, y0 := g.origin(col, row)
	for y := y0; y < y0+g.spanH && y < height; y++ {
		for x := x0; x < x0+g.spanW && x < width; x++ {
			fn(y*width + x)
		}
	}
}

// LineArt returns a field that is 255 everywhere except at Sobel edges of f
// stronger than threshold, which are 0. Pixels marked in skip never become
// edges.
func LineArt(f *Field, skip []bool, threshold float64) *Field {
	out := NewField(f.Width, f.Height)
	for i := range out.Values {
		out.Values[i] = 255
	}
	grad := Sobel(f, skip)
	for i := range out.Values {
		if grad.Above(i, threshold) {
			out.Values[i] = 0
		}
	}
	return out
}

// RasterizeText renders buf as a plain glyph grid. A zero-area buffer, a
// non-positive column count or a grid that rounds down to zero rows yields
// an empty grid. An empty ramp panics regardless of geometry.
func RasterizeText(buf *PixelBuffer, opts GlyphOptions) Grid {
	ramp := opts.ramp()
	if buf.Empty() {
		return Grid{}
	}
	geo, ok := gridGeometry(buf.Width, buf.Height, opts.Columns, TextAspect)
	if !ok {
		return Grid{}
	}
	mask := opts.backgroundMask(buf)

	field := Luminance(buf)
	if opts.Outline != nil {
		field = LineArt(field, mask, opts.Outline.Threshold)
	}

	rows := make([]string, geo.rows)
	var line strings.Builder
	for row := 0; row < geo.rows; row++ {
		line.Reset()
		for col := 0; col < geo.cols; col++ {
			var total, n, bg int
			geo.visit(col, row, buf.Width, buf.Height, func(i int) {
				total += int(field.Values[i])
				n++
				if mask != nil && mask[i] {
					bg++
				}
			})
			if n == 0 || (mask != nil && float64(bg)/float64(n) > 0.5) {
				line.WriteByte(' ')
				continue
			}
			line.WriteRune(ramp[ramp.Index(float64(total)/float64(n))])
		}
		rows[row] = line.String()
	}
	return Grid{Rows: rows}
}
