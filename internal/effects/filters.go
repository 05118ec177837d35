package effects

var (
	White = RGB{255, 255, 255}
	Black = RGB{0, 0, 0}

	// PencilStroke is the near-black used for pencil lines.
	PencilStroke = RGB{20, 20, 20}
)

type PencilConfig struct {
	// Threshold is the luminance difference to the pixel below above which
	// a stroke is drawn.
	Threshold int
}

func DefaultPencilConfig() PencilConfig {
	return PencilConfig{Threshold: 15}
}

// Pencil draws a stroke wherever luminance changes sharply between a pixel
// and the pixel directly below it. The bottom row is always paper.
func Pencil(buf *PixelBuffer, cfg PencilConfig) *PixelBuffer {
	out := sameShape(buf)
	if out.Empty() {
		return out
	}
	lum := Luminance(buf)
	w, h := buf.Width, buf.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			c := White
			if y < h-1 && absInt(int(lum.Values[i])-int(lum.Values[i+w])) > cfg.Threshold {
				c = PencilStroke
			}
			out.SetOpaque(i, c)
		}
	}
	return out
}

type CelConfig struct {
	Levels        int
	EdgeThreshold int
}

func DefaultCelConfig() CelConfig {
	return CelConfig{Levels: 4, EdgeThreshold: 30}
}

// CelShade posterizes flat regions and inks edges black.
func CelShade(buf *PixelBuffer, cfg CelConfig) *PixelBuffer {
	out := sameShape(buf)
	if out.Empty() {
		return out
	}
	grad := ForwardDifference(Luminance(buf))
	levels := cfg.Levels
	if levels < 2 {
		levels = 2
	}
	table := posterizeTable(levels)
	for i, g := range grad {
		if g > cfg.EdgeThreshold {
			out.SetOpaque(i, Black)
			continue
		}
		c := buf.RGBAt(i)
		out.SetOpaque(i, RGB{table[c.R], table[c.G], table[c.B]})
	}
	return out
}

type PopArtConfig struct {
	EdgeThreshold int
	// Palette supplies the high, middle and low bands. It must hold at
	// least three colors.
	Palette Palette
}

func DefaultPopArtConfig() PopArtConfig {
	return PopArtConfig{EdgeThreshold: 35, Palette: PopArtPalette}
}

// PopArt inks edges black and fills everything else with one of four flat
// colors chosen by luminance band.
func PopArt(buf *PixelBuffer, cfg PopArtConfig) *PixelBuffer {
	if len(cfg.Palette) < 3 {
		panic("effects: pop-art palette needs three colors")
	}
	out := sameShape(buf)
	if out.Empty() {
		return out
	}
	lum := Luminance(buf)
	grad := ForwardDifference(lum)
	for i, g := range grad {
		if g > cfg.EdgeThreshold {
			out.SetOpaque(i, Black)
			continue
		}
		var c RGB
		switch l := lum.Values[i]; {
		case l > 210:
			c = White
		case l > 150:
			c = cfg.Palette[0]
		case l > 80:
			c = cfg.Palette[1]
		default:
			c = cfg.Palette[2]
		}
		out.SetOpaque(i, c)
	}
	return out
}

type UkiyoEConfig struct {
	EdgeThreshold float64
	Palette       Palette
	Ink           RGB
}

func DefaultUkiyoEConfig() UkiyoEConfig {
	return UkiyoEConfig{EdgeThreshold: 80, Palette: UkiyoEPalette, Ink: UkiyoEInk}
}

// UkiyoE inks Sobel edges and snaps every other pixel to the print palette.
func UkiyoE(buf *PixelBuffer, cfg UkiyoEConfig) *PixelBuffer {
	if len(cfg.Palette) == 0 {
		panic("effects: ukiyo-e palette is empty")
	}
	out := sameShape(buf)
	if out.Empty() {
		return out
	}
	grad := Sobel(Luminance(buf), nil)
	for i := 0; i < out.Len(); i++ {
		if grad.Above(i, cfg.EdgeThreshold) {
			out.SetOpaque(i, cfg.Ink)
			continue
		}
		out.SetOpaque(i, cfg.Palette.Nearest(buf.RGBAt(i)))
	}
	return out
}

type RetroConfig struct {
	PixelSize int
	Palette   Palette
}

func DefaultRetroConfig() RetroConfig {
	return RetroConfig{PixelSize: 8, Palette: RetroPalette}
}

// Retro tiles the image into PixelSize blocks and paints each block with the
// palette color nearest to its average. Blocks on the right and bottom edge
// may be smaller.
func Retro(buf *PixelBuffer, cfg RetroConfig) *PixelBuffer {
	if len(cfg.Palette) == 0 {
		panic("effects: retro palette is empty")
	}
	out := sameShape(buf)
	if out.Empty() {
		return out
	}
	size := cfg.PixelSize
	if size < 1 {
		size = 1
	}
	w, h := buf.Width, buf.Height
	for by := 0; by < h; by += size {
		yEnd := min(by+size, h)
		for bx := 0; bx < w; bx += size {
			xEnd := min(bx+size, w)
			var sr, sg, sb, n int
			for y := by; y < yEnd; y++ {
				for x := bx; x < xEnd; x++ {
					c := buf.RGBAt(y*w + x)
					sr += int(c.R)
					sg += int(c.G)
					sb += int(c.B)
					n++
				}
			}
			fn := float64(n)
			c := cfg.Palette.nearest(float64(sr)/fn, float64(sg)/fn, float64(sb)/fn)
			for y := by; y < yEnd; y++ {
				for x := bx; x < xEnd; x++ {
					out.SetOpaque(y*w+x, c)
				}
			}
		}
	}
	return out
}

type SilhouetteConfig struct {
	Threshold float64
}

func DefaultSilhouetteConfig() SilhouetteConfig {
	return SilhouetteConfig{Threshold: 128}
}

// Silhouette paints pixels darker than the threshold black and the rest
// white.
func Silhouette(buf *PixelBuffer, cfg SilhouetteConfig) *PixelBuffer {
	out := sameShape(buf)
	lum := Luminance(buf)
	for i, l := range lum.Values {
		if float64(l) < cfg.Threshold {
			out.SetOpaque(i, Black)
		} else {
			out.SetOpaque(i, White)
		}
	}
	return out
}

// Monochrome replaces every pixel with its luminance.
func Monochrome(buf *PixelBuffer) *PixelBuffer {
	out := sameShape(buf)
	lum := Luminance(buf)
	for i, l := range lum.Values {
		out.SetOpaque(i, RGB{l, l, l})
	}
	return out
}
