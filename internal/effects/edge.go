package effects

import "math"

// Gradient holds the Sobel gradient magnitude of a field. Only interior
// pixels that were not skipped carry a magnitude; Valid reports which.
type Gradient struct {
	Width     int
	Height    int
	Magnitude []float64
	Valid     []bool
}

// Sobel computes sqrt(gx^2 + gy^2) for every interior pixel of f. Pixels
// whose entry in skip is true are left out of edge consideration; skip may
// be nil.
func Sobel(f *Field, skip []bool) *Gradient {
	g := &Gradient{
		Width:     f.Width,
		Height:    f.Height,
		Magnitude: make([]float64, len(f.Values)),
		Valid:     make([]bool, len(f.Values)),
	}
	if f.Width < 3 || f.Height < 3 {
		return g
	}
	gx := ConvolveRaw(f, SobelX)
	gy := ConvolveRaw(f, SobelY)
	for y := 1; y < f.Height-1; y++ {
		for x := 1; x < f.Width-1; x++ {
			i := y*f.Width + x
			if skip != nil && skip[i] {
				continue
			}
			dx, dy := float64(gx[i]), float64(gy[i])
			g.Magnitude[i] = math.Sqrt(dx*dx + dy*dy)
			g.Valid[i] = true
		}
	}
	return g
}

// Above reports whether pixel i is an edge at the given threshold.
func (g *Gradient) Above(i int, threshold float64) bool {
	return g.Valid[i] && g.Magnitude[i] > threshold
}

// Edges classifies every pixel against threshold.
func (g *Gradient) Edges(threshold float64) []bool {
	out := make([]bool, len(g.Magnitude))
	for i := range out {
		out[i] = g.Above(i, threshold)
	}
	return out
}

// ForwardDifference returns |L(x,y)-L(x+1,y)| + |L(x,y)-L(x,y+1)| for every
// pixel. At the right and bottom border the missing neighbour is the pixel
// itself.
func ForwardDifference(f *Field) []int {
	out := make([]int, len(f.Values))
	w, h := f.Width, f.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			cur := int(f.Values[i])
			right, down := cur, cur
			if x < w-1 {
				right = int(f.Values[i+1])
			}
			if y < h-1 {
				down = int(f.Values[i+w])
			}
			out[i] = absInt(cur-right) + absInt(cur-down)
		}
	}
	return out
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
