package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/dunamismax/flipframe/internal/domain"
	"github.com/klauspost/compress/zstd"
)

// FrameSeparator sits on its own line between the glyph grids of
// consecutive frames in text outputs.
const FrameSeparator = "\f"

var zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
})

type encodedOutput struct {
	data   []byte
	width  int
	height int
}

// outputFormat picks the requested format or, when none was requested, a
// default that keeps the source format where the codec can write it.
func outputFormat(codec Codec, step domain.PipelineStep, seq Sequence) string {
	if format := step.NormalizedFormat(); format != "" {
		return format
	}
	if step.NormalizedAction() == domain.ActionASCII {
		return domain.FormatText
	}
	switch seq.Format {
	case domain.FormatGIF:
		return domain.FormatGIF
	case domain.FormatJPEG:
		return domain.FormatJPEG
	case domain.FormatWebP:
		if codec.SupportsFormat(domain.FormatWebP) {
			return domain.FormatWebP
		}
	}
	return domain.FormatPNG
}

// encodeRendered serializes rendered frames. Still formats keep only the
// first frame.
func encodeRendered(codec Codec, seq Sequence, frames []Rendered, format string, quality int) (encodedOutput, error) {
	if len(frames) == 0 {
		return encodedOutput{}, fmt.Errorf("%w: nothing was rendered", ErrInvalidSource)
	}

	switch format {
	case domain.FormatText, domain.FormatTextZst:
		text, cols, rows := glyphText(frames)
		if format == domain.FormatText {
			return encodedOutput{data: text, width: cols, height: rows}, nil
		}
		enc, err := zstdEncoder()
		if err != nil {
			return encodedOutput{}, fmt.Errorf("create zstd encoder: %w", err)
		}
		return encodedOutput{data: enc.EncodeAll(text, nil), width: cols, height: rows}, nil
	case domain.FormatGIF:
		data, err := encodeGIF(seq, frames)
		if err != nil {
			return encodedOutput{}, err
		}
		first := frames[0].Image
		return encodedOutput{data: data, width: first.Width, height: first.Height}, nil
	default:
		if !codec.SupportsFormat(format) {
			return encodedOutput{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
		}
		first := frames[0].Image
		if first == nil {
			return encodedOutput{}, fmt.Errorf("%w: glyph grids cannot be written as %s", ErrUnsupportedFormat, format)
		}
		data, err := codec.Encode(first.RGBA(), format, quality)
		if err != nil {
			return encodedOutput{}, err
		}
		return encodedOutput{data: data, width: first.Width, height: first.Height}, nil
	}
}

// glyphText joins the grids of all frames. The reported size is the grid
// size of the first frame.
func glyphText(frames []Rendered) ([]byte, int, int) {
	var b strings.Builder
	for i, r := range frames {
		if i > 0 {
			b.WriteString(FrameSeparator)
			b.WriteByte('\n')
		}
		if !r.Grid.Empty() {
			b.WriteString(r.Grid.String())
			b.WriteByte('\n')
		}
	}

	first := frames[0].Grid
	cols := 0
	if !first.Empty() {
		cols = utf8.RuneCountInString(first.Rows[0])
	}
	return []byte(b.String()), cols, first.Height()
}

func encodeGIF(seq Sequence, frames []Rendered) ([]byte, error) {
	anim := &gif.GIF{LoopCount: seq.LoopCount}
	for i, r := range frames {
		if r.Image == nil {
			return nil, fmt.Errorf("%w: glyph grids cannot be written as gif", ErrUnsupportedFormat)
		}
		rect := image.Rect(0, 0, r.Image.Width, r.Image.Height)
		paletted := image.NewPaletted(rect, palette.Plan9)
		draw.FloydSteinberg.Draw(paletted, rect, r.Image.RGBA(), image.Point{})

		delay := 0
		if i < len(seq.Frames) {
			delay = seq.Frames[i].Delay
		}
		anim.Image = append(anim.Image, paletted)
		anim.Delay = append(anim.Delay, delay)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, anim); err != nil {
		return nil, fmt.Errorf("encode gif: %w", err)
	}
	return buf.Bytes(), nil
}
