package effects

// Palette is an ordered set of colors. Order only matters for ties: the
// first entry at minimal distance wins.
type Palette []RGB

var (
	// PopArtPalette holds the yellow, magenta and cyan bands of the pop-art
	// effect, in that order.
	PopArtPalette = Palette{
		{255, 237, 0},
		{255, 0, 140},
		{0, 237, 255},
	}

	// UkiyoEPalette holds the woodblock-print fills. UkiyoEInk is kept
	// separate so that fills never snap to the outline color.
	UkiyoEPalette = Palette{
		{243, 234, 212},
		{208, 160, 114},
		{104, 134, 149},
		{177, 78, 78},
		{60, 93, 85},
	}
	UkiyoEInk = RGB{22, 22, 22}

	RetroPalette = Palette{
		{0, 0, 0},
		{255, 255, 255},
		{136, 0, 0},
		{170, 255, 238},
		{204, 68, 68},
		{0, 204, 85},
		{0, 0, 170},
		{238, 238, 119},
		{221, 136, 85},
		{102, 68, 0},
		{255, 119, 119},
		{51, 204, 204},
		{119, 119, 255},
		{255, 119, 255},
		{119, 255, 119},
		{170, 170, 170},
	}
)

// Nearest returns the palette entry closest to c in Euclidean RGB distance.
func (p Palette) Nearest(c RGB) RGB {
	return p.nearest(float64(c.R), float64(c.G), float64(c.B))
}

// nearest compares squared distances; the ordering, and so the winner, is
// the same as for the true Euclidean distance.
func (p Palette) nearest(r, g, b float64) RGB {
	if len(p) == 0 {
		panic("effects: nearest-color search on empty palette")
	}
	best := p[0]
	bestDist := -1.0
	for _, c := range p {
		dr := r - float64(c.R)
		dg := g - float64(c.G)
		db := b - float64(c.B)
		d := dr*dr + dg*dg + db*db
		if bestDist < 0 || d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

// Quantize snaps every pixel of buf to its nearest palette color.
func Quantize(buf *PixelBuffer, p Palette) *PixelBuffer {
	if len(p) == 0 {
		panic("effects: quantize with empty palette")
	}
	out := sameShape(buf)
	for i := 0; i < out.Len(); i++ {
		out.SetOpaque(i, p.Nearest(buf.RGBAt(i)))
	}
	return out
}
