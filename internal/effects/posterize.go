package effects

import "math"

// Posterize maps every color channel to the nearest of levels evenly spaced
// steps across [0,255]. Alpha is copied through. levels below 2 leave the
// colors unchanged.
func Posterize(buf *PixelBuffer, levels int) *PixelBuffer {
	if buf.Empty() {
		return sameShape(buf)
	}
	out := buf.Clone()
	if levels < 2 {
		return out
	}
	table := posterizeTable(levels)
	for i := 0; i < len(out.Pix); i += 4 {
		out.Pix[i] = table[out.Pix[i]]
		out.Pix[i+1] = table[out.Pix[i+1]]
		out.Pix[i+2] = table[out.Pix[i+2]]
	}
	return out
}

// posterizeTable precomputes round(v/step)*step for every byte value.
func posterizeTable(levels int) [256]uint8 {
	var table [256]uint8
	step := 255.0 / float64(levels-1)
	for v := 0; v < 256; v++ {
		table[v] = clampByte(int(math.Round(math.Round(float64(v)/step) * step)))
	}
	return table
}
