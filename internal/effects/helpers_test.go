package effects

func gradientBuffer(w, h int) *PixelBuffer {
	buf := NewPixelBuffer(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			buf.SetOpaque(y*w+x, RGB{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
			})
		}
	}
	return buf
}

func solidBuffer(w, h int, c RGB) *PixelBuffer {
	buf := NewPixelBuffer(w, h)
	buf.Fill(c, 255)
	return buf
}

// stepBuffer is black left of column split and white from it on.
func stepBuffer(w, h, split int) *PixelBuffer {
	buf := NewPixelBuffer(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := Black
			if x >= split {
				c = White
			}
			buf.SetOpaque(y*w+x, c)
		}
	}
	return buf
}

func patternField(w, h int) *Field {
	f := NewField(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Values[y*w+x] = uint8((x*37 + y*91) % 256)
		}
	}
	return f
}
