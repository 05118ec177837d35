package effects

// BackgroundMask marks every pixel whose Euclidean RGB distance to the
// top-left pixel is strictly below threshold.
func BackgroundMask(buf *PixelBuffer, threshold float64) []bool {
	n := buf.Len()
	mask := make([]bool, n)
	if n == 0 || threshold <= 0 {
		return mask
	}
	ref := buf.RGBAt(0)
	limit := threshold * threshold
	for i := 0; i < n; i++ {
		c := buf.RGBAt(i)
		dr := float64(c.R) - float64(ref.R)
		dg := float64(c.G) - float64(ref.G)
		db := float64(c.B) - float64(ref.B)
		mask[i] = dr*dr+dg*dg+db*db < limit
	}
	return mask
}
