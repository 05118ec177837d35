package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// renderFrames applies fx to every frame with at most limit frames in
// flight. Results keep the frame order. Once ctx is done no further frames
// are started and partial results are discarded.
func renderFrames(ctx context.Context, seq Sequence, fx frameEffect, limit int) ([]Rendered, error) {
	out := make([]Rendered, len(seq.Frames))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, limit))
	for i, frame := range seq.Frames {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rendered, err := fx(frame.Image)
			if err != nil {
				return fmt.Errorf("frame %d: %w", i, err)
			}
			out[i] = rendered
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
