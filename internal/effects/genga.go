package effects

import (
	"fmt"
	"strconv"
	"strings"
)

// ColorSlot is either a fixed color or, when FromSource is set, the color of
// the source pixel being painted.
type ColorSlot struct {
	Color      RGB
	FromSource bool
}

const colorfulKeyword = "colorful"

// ParseColorSlot accepts "#rrggbb", "rrggbb" or "colorful".
func ParseColorSlot(s string) (ColorSlot, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, colorfulKeyword) {
		return ColorSlot{FromSource: true}, nil
	}
	c, err := ParseHexColor(s)
	if err != nil {
		return ColorSlot{}, err
	}
	return ColorSlot{Color: c}, nil
}

func ParseHexColor(s string) (RGB, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return RGB{}, fmt.Errorf("invalid hex color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("invalid hex color %q", s)
	}
	return RGB{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

func (s ColorSlot) String() string {
	if s.FromSource {
		return colorfulKeyword
	}
	return fmt.Sprintf("#%02x%02x%02x", s.Color.R, s.Color.G, s.Color.B)
}

func (s ColorSlot) resolve(src RGB) RGB {
	if s.FromSource {
		return src
	}
	return s.Color
}

type GengaConfig struct {
	Outline   ColorSlot
	Shadow    ColorSlot
	Highlight ColorSlot

	// Blur smooths the luminance field before edge detection.
	Blur bool
	// LineThreshold is the gradient magnitude above which shadow and
	// highlight lines are drawn.
	LineThreshold float64
	// StrongEdgeThreshold is the gradient magnitude above which outlines are
	// drawn.
	StrongEdgeThreshold float64
}

const (
	gengaShadowBelow    = 85
	gengaHighlightAbove = 170
)

func DefaultGengaConfig() GengaConfig {
	return GengaConfig{
		Outline:             ColorSlot{Color: RGB{0, 0, 0}},
		Shadow:              ColorSlot{Color: RGB{0x3b, 0x82, 0xf6}},
		Highlight:           ColorSlot{Color: RGB{0xf4, 0x3f, 0x5e}},
		Blur:                true,
		LineThreshold:       50,
		StrongEdgeThreshold: 150,
	}
}

// Genga renders an animation key-frame sketch on white paper. Strong edges
// take the outline color; weaker lines become shadow or highlight strokes
// depending on the unblurred luminance under them, and mid-tone lines are
// dropped.
func Genga(buf *PixelBuffer, cfg GengaConfig) *PixelBuffer {
	out := sameShape(buf)
	if out.Empty() {
		return out
	}
	out.Fill(White, 255)

	original := Luminance(buf)
	field := original
	if cfg.Blur {
		field = GaussianBlur(original)
	}
	grad := Sobel(field, nil)

	for i, mag := range grad.Magnitude {
		if !grad.Valid[i] {
			continue
		}
		switch {
		case mag > cfg.StrongEdgeThreshold:
			out.SetOpaque(i, cfg.Outline.resolve(buf.RGBAt(i)))
		case mag > cfg.LineThreshold:
			switch l := original.Values[i]; {
			case l < gengaShadowBelow:
				out.SetOpaque(i, cfg.Shadow.resolve(buf.RGBAt(i)))
			case l > gengaHighlightAbove:
				out.SetOpaque(i, cfg.Highlight.resolve(buf.RGBAt(i)))
			}
		}
	}
	return out
}
