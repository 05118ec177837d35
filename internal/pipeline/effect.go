package pipeline

import (
	"fmt"

	"github.com/dunamismax/flipframe/internal/domain"
	"github.com/dunamismax/flipframe/internal/effects"
)

// Rendered is the engine output for one frame. Image is nil for plain glyph
// renders; Grid is empty for image effects.
type Rendered struct {
	Image *effects.PixelBuffer
	Grid  effects.Grid
}

type frameEffect func(*effects.PixelBuffer) (Rendered, error)

func imageEffect(fn func(*effects.PixelBuffer) *effects.PixelBuffer) frameEffect {
	return func(buf *effects.PixelBuffer) (Rendered, error) {
		return Rendered{Image: fn(buf)}, nil
	}
}

// effectForStep resolves a step into the per-frame engine call. Parameters
// are parsed once here, not per frame.
func effectForStep(step domain.PipelineStep) (frameEffect, error) {
	switch step.NormalizedAction() {
	case domain.ActionResize, domain.ActionNone:
		return func(buf *effects.PixelBuffer) (Rendered, error) {
			return Rendered{Image: buf}, nil
		}, nil
	case domain.ActionMonochrome:
		return imageEffect(effects.Monochrome), nil
	case domain.ActionPencil:
		cfg := effects.DefaultPencilConfig()
		return imageEffect(func(b *effects.PixelBuffer) *effects.PixelBuffer { return effects.Pencil(b, cfg) }), nil
	case domain.ActionCel:
		cfg := effects.DefaultCelConfig()
		return imageEffect(func(b *effects.PixelBuffer) *effects.PixelBuffer { return effects.CelShade(b, cfg) }), nil
	case domain.ActionPopArt:
		cfg := effects.DefaultPopArtConfig()
		return imageEffect(func(b *effects.PixelBuffer) *effects.PixelBuffer { return effects.PopArt(b, cfg) }), nil
	case domain.ActionUkiyoE:
		cfg := effects.DefaultUkiyoEConfig()
		return imageEffect(func(b *effects.PixelBuffer) *effects.PixelBuffer { return effects.UkiyoE(b, cfg) }), nil
	case domain.ActionGenga:
		cfg, err := gengaConfig(step.Genga)
		if err != nil {
			return nil, err
		}
		return imageEffect(func(b *effects.PixelBuffer) *effects.PixelBuffer { return effects.Genga(b, cfg) }), nil
	case domain.Action8Bit:
		cfg := effects.DefaultRetroConfig()
		if step.PixelSize > 0 {
			cfg.PixelSize = step.PixelSize
		}
		return imageEffect(func(b *effects.PixelBuffer) *effects.PixelBuffer { return effects.Retro(b, cfg) }), nil
	case domain.ActionSilhouette:
		cfg := effects.DefaultSilhouetteConfig()
		if step.Threshold != nil {
			cfg.Threshold = *step.Threshold
		}
		return imageEffect(func(b *effects.PixelBuffer) *effects.PixelBuffer { return effects.Silhouette(b, cfg) }), nil
	case domain.ActionASCII:
		opts := glyphOptions(step)
		return func(buf *effects.PixelBuffer) (Rendered, error) {
			return Rendered{Grid: effects.RasterizeText(buf, opts)}, nil
		}, nil
	case domain.ActionASCIIColor:
		opts := effects.ColorGlyphOptions{GlyphOptions: glyphOptions(step)}
		return func(buf *effects.PixelBuffer) (Rendered, error) {
			grid, img, err := effects.RasterizeColored(buf, opts)
			if err != nil {
				return Rendered{}, err
			}
			return Rendered{Image: img, Grid: grid}, nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidStepAction, step.Action)
	}
}

func gengaConfig(params *domain.GengaParams) (effects.GengaConfig, error) {
	cfg := effects.DefaultGengaConfig()
	outline, shadow, highlight, err := params.ColorSlots()
	if err != nil {
		return effects.GengaConfig{}, err
	}
	cfg.Outline, cfg.Shadow, cfg.Highlight = outline, shadow, highlight
	if params == nil {
		return cfg, nil
	}
	if params.ImproveQuality != nil {
		cfg.Blur = *params.ImproveQuality
	}
	if params.LineThreshold != nil {
		cfg.LineThreshold = *params.LineThreshold
	}
	return cfg, nil
}

func glyphOptions(step domain.PipelineStep) effects.GlyphOptions {
	opts := effects.GlyphOptions{Columns: step.ASCIIWidth()}
	if step.ASCII == nil {
		return opts
	}
	opts.Invert = step.ASCII.Invert
	if step.ASCII.OutlineThreshold != nil {
		opts.Outline = &effects.OutlineConfig{Threshold: *step.ASCII.OutlineThreshold}
	}
	if step.ASCII.BackgroundThreshold != nil {
		opts.Background = &effects.BackgroundConfig{Threshold: *step.ASCII.BackgroundThreshold}
	}
	return opts
}
