package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/gif"

	"github.com/dunamismax/flipframe/internal/domain"
	"github.com/dunamismax/flipframe/internal/effects"
)

// Frame is one fully composited picture of a source. Delay is in hundredths
// of a second and only meaningful for animated sources.
type Frame struct {
	Image *effects.PixelBuffer
	Delay int
}

// Sequence is a decoded source: a single still or the frames of an
// animation, in display order.
type Sequence struct {
	Frames    []Frame
	LoopCount int
	Format    string
}

func (s Sequence) Animated() bool {
	return len(s.Frames) > 1
}

func (s Sequence) Pixels() int64 {
	var total int64
	for _, f := range s.Frames {
		total += int64(f.Image.Len())
	}
	return total
}

var gifMagic = []byte("GIF8")

// decodeSequence turns source bytes into frames, scaled to width when
// width > 0.
func decodeSequence(ctx context.Context, codec Codec, input []byte, width int) (Sequence, error) {
	if bytes.HasPrefix(input, gifMagic) {
		seq, err := decodeGIF(input)
		if err != nil {
			return Sequence{}, err
		}
		if width > 0 {
			for i := range seq.Frames {
				if err := ctx.Err(); err != nil {
					return Sequence{}, err
				}
				scaled, err := scaleToWidth(seq.Frames[i].Image.RGBA(), width)
				if err != nil {
					return Sequence{}, err
				}
				seq.Frames[i].Image = bufferFromRGBA(scaled)
			}
		}
		return seq, nil
	}

	img, format, err := codec.Decode(ctx, input, width)
	if err != nil {
		return Sequence{}, err
	}
	return Sequence{
		Frames: []Frame{{Image: effects.FromImage(img)}},
		Format: domain.NormalizeFormat(format),
	}, nil
}

// decodeGIF composites every frame onto the logical screen, honouring the
// disposal method of the previous frame.
func decodeGIF(input []byte) (Sequence, error) {
	g, err := gif.DecodeAll(bytes.NewReader(input))
	if err != nil {
		return Sequence{}, fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	if len(g.Image) == 0 {
		return Sequence{}, fmt.Errorf("%w: gif has no frames", ErrInvalidSource)
	}

	screen := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if screen.Empty() {
		screen = image.Rect(0, 0, g.Image[0].Bounds().Max.X, g.Image[0].Bounds().Max.Y)
	}
	canvas := image.NewRGBA(screen)

	seq := Sequence{
		Frames:    make([]Frame, 0, len(g.Image)),
		LoopCount: g.LoopCount,
		Format:    domain.FormatGIF,
	}
	var previous []uint8
	for i, frame := range g.Image {
		disposal := byte(gif.DisposalNone)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			previous = append(previous[:0], canvas.Pix...)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)

		buf := effects.NewPixelBuffer(screen.Dx(), screen.Dy())
		copy(buf.Pix, canvas.Pix)
		delay := 0
		if i < len(g.Delay) {
			delay = g.Delay[i]
		}
		seq.Frames = append(seq.Frames, Frame{Image: buf, Delay: delay})

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			copy(canvas.Pix, previous)
		}
	}
	return seq, nil
}

func bufferFromRGBA(img *image.RGBA) *effects.PixelBuffer {
	b := img.Bounds()
	if b.Min == (image.Point{}) && img.Stride == 4*b.Dx() {
		return &effects.PixelBuffer{Width: b.Dx(), Height: b.Dy(), Pix: img.Pix}
	}
	return effects.FromImage(img)
}
