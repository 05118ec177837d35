package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/dunamismax/flipframe/internal/domain"
	xdraw "golang.org/x/image/draw"
)

// Codec decodes and encodes still images. Animated GIF sources and the gif
// and text outputs are handled by the pipeline itself.
type Codec interface {
	// Decode reads a still image and, when width > 0, scales it to that
	// width keeping the aspect ratio. The second result is the source
	// format name.
	Decode(ctx context.Context, input []byte, width int) (image.Image, string, error)
	Encode(img image.Image, format string, quality int) ([]byte, error)
	SupportsFormat(format string) bool
}

// scaleToWidth resamples src with Catmull-Rom onto a new RGBA image. The
// height follows the source aspect ratio and is at least one pixel.
func scaleToWidth(src image.Image, width int) (*image.RGBA, error) {
	if width <= 0 {
		return nil, errors.New("scale requires width > 0")
	}

	srcBounds := src.Bounds()
	srcW := srcBounds.Dx()
	srcH := srcBounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, fmt.Errorf("%w: source image has invalid dimensions", ErrInvalidSource)
	}

	height := int(math.Round(float64(srcH) * float64(width) / float64(srcW)))
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if width == srcW && height == srcH {
		xdraw.Draw(dst, dst.Bounds(), src, srcBounds.Min, xdraw.Src)
		return dst, nil
	}
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, srcBounds, xdraw.Src, nil)
	return dst, nil
}

func contentTypeForFormat(format string) string {
	switch format {
	case domain.FormatJPEG:
		return "image/jpeg"
	case domain.FormatWebP:
		return "image/webp"
	case domain.FormatGIF:
		return "image/gif"
	case domain.FormatText:
		return "text/plain; charset=utf-8"
	case domain.FormatTextZst:
		return "application/zstd"
	default:
		return "image/png"
	}
}
