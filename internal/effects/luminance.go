package effects

// Field is a single-channel 8-bit plane of Width*Height samples, indexed
// y*Width+x.
type Field struct {
	Width  int
	Height int
	Values []uint8
}

func NewField(width, height int) *Field {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Field{Width: width, Height: height, Values: make([]uint8, width*height)}
}

func (f *Field) Clone() *Field {
	out := &Field{Width: f.Width, Height: f.Height, Values: make([]uint8, len(f.Values))}
	copy(out.Values, f.Values)
	return out
}

// Luma returns the truncated integer luminance 0.299R + 0.587G + 0.114B.
// Integer weights keep pure white at exactly 255.
func Luma(c RGB) uint8 {
	return uint8((299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000)
}

// Luminance derives the brightness field of buf.
func Luminance(buf *PixelBuffer) *Field {
	if buf.Empty() {
		return NewField(0, 0)
	}
	out := NewField(buf.Width, buf.Height)
	for i := range out.Values {
		p := buf.Pix[4*i:]
		out.Values[i] = uint8((299*int(p[0]) + 587*int(p[1]) + 114*int(p[2])) / 1000)
	}
	return out
}
