package pipeline

import (
	"context"

	"github.com/dunamismax/flipframe/internal/domain"
	"github.com/dunamismax/flipframe/internal/effects"
)

// Previewer renders a plain glyph grid of a single uploaded image without
// going through the job queue.
type Previewer struct {
	codec Codec
}

func NewPreviewer() *Previewer {
	return &Previewer{codec: newCodec()}
}

// ASCII renders the first frame of input. An image too small for a single
// row of glyphs yields an empty string.
func (p *Previewer) ASCII(ctx context.Context, input []byte, params domain.ASCIIParams) (string, error) {
	seq, err := decodeSequence(ctx, p.codec, input, 0)
	if err != nil {
		return "", err
	}
	step := domain.PipelineStep{Action: domain.ActionASCII, ASCII: &params}
	grid := effects.RasterizeText(seq.Frames[0].Image, glyphOptions(step))
	return grid.String(), nil
}
