//go:build govips && cgo

package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/flipframe/internal/domain"
)

type govipsCodec struct{}

func (c govipsCodec) Decode(ctx context.Context, input []byte, width int) (image.Image, string, error) {
	select {
	case <-ctx.Done():
		return nil, "", ctx.Err()
	default:
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidSource, err)
	}
	defer img.Close()

	if width > 0 {
		if err := resizeGovips(img, width); err != nil {
			return nil, "", err
		}
	}

	// The engine works on plain RGBA; a lossless PNG round trip is the
	// simplest bridge out of libvips memory.
	raw, _, err := img.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, "", fmt.Errorf("export decoded frame: %w", err)
	}
	decoded, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("read decoded frame: %w", err)
	}
	return decoded, sourceFormat(input), nil
}

func (govipsCodec) SupportsFormat(format string) bool {
	switch format {
	case domain.FormatPNG, domain.FormatJPEG, domain.FormatWebP:
		return true
	}
	return false
}

func (govipsCodec) Encode(src image.Image, format string, quality int) ([]byte, error) {
	var staged bytes.Buffer
	if err := png.Encode(&staged, src); err != nil {
		return nil, fmt.Errorf("stage frame for export: %w", err)
	}
	img, err := vips.NewImageFromBuffer(staged.Bytes())
	if err != nil {
		return nil, fmt.Errorf("load frame for export: %w", err)
	}
	defer img.Close()

	return exportGovipsImage(img, format, quality)
}

func resizeGovips(img *vips.ImageRef, targetWidth int) error {
	if img.Width() <= 0 {
		return fmt.Errorf("%w: source image has invalid width", ErrInvalidSource)
	}

	scale := float64(targetWidth) / float64(img.Width())
	if err := img.Resize(scale, vips.KernelLanczos3); err != nil {
		return fmt.Errorf("resize image: %w", err)
	}
	return nil
}

func sourceFormat(input []byte) string {
	switch vips.DetermineImageType(input) {
	case vips.ImageTypeJPEG:
		return domain.FormatJPEG
	case vips.ImageTypeWEBP:
		return domain.FormatWebP
	case vips.ImageTypeGIF:
		return domain.FormatGIF
	default:
		return domain.FormatPNG
	}
}

func exportGovipsImage(img *vips.ImageRef, format string, quality int) ([]byte, error) {
	switch format {
	case domain.FormatJPEG:
		params := vips.NewJpegExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	case domain.FormatPNG:
		params := vips.NewPngExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	case domain.FormatWebP:
		params := vips.NewWebpExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err := img.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("encode webp: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}
