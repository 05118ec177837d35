package pipeline

import (
	"errors"
	"testing"

	"github.com/dunamismax/flipframe/internal/domain"
	"github.com/dunamismax/flipframe/internal/effects"
)

func TestGlyphTextSeparatesFrames(t *testing.T) {
	frames := []Rendered{
		{Grid: effects.Grid{Rows: []string{"ab", "cd"}}},
		{Grid: effects.Grid{Rows: []string{"ef", "gh"}}},
	}
	text, cols, rows := glyphText(frames)
	if string(text) != "ab\ncd\n\f\nef\ngh\n" {
		t.Fatalf("unexpected text %q", text)
	}
	if cols != 2 || rows != 2 {
		t.Fatalf("expected 2x2, got %dx%d", cols, rows)
	}
}

func TestOutputFormatDefaults(t *testing.T) {
	cases := []struct {
		name   string
		step   domain.PipelineStep
		source string
		want   string
	}{
		{name: "explicit", step: domain.PipelineStep{Action: "pencil", Format: "JPG"}, source: "png", want: "jpeg"},
		{name: "ascii", step: domain.PipelineStep{Action: "ascii"}, source: "png", want: "txt"},
		{name: "gif stays gif", step: domain.PipelineStep{Action: "cel"}, source: "gif", want: "gif"},
		{name: "jpeg stays jpeg", step: domain.PipelineStep{Action: "cel"}, source: "jpeg", want: "jpeg"},
		{name: "webp without encoder", step: domain.PipelineStep{Action: "cel"}, source: "webp", want: "png"},
	}
	for _, tc := range cases {
		got := outputFormat(stdCodec{}, tc.step, Sequence{Format: tc.source})
		if got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestEncodeRenderedRejectsGridAsImage(t *testing.T) {
	frames := []Rendered{{Grid: effects.Grid{Rows: []string{"x"}}}}
	_, err := encodeRendered(stdCodec{}, Sequence{}, frames, domain.FormatPNG, 0)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format for png, got %v", err)
	}
	_, err = encodeRendered(stdCodec{}, Sequence{}, frames, domain.FormatGIF, 0)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format for gif, got %v", err)
	}
}

func TestStdCodecHasNoWebPEncoder(t *testing.T) {
	frames := []Rendered{{Image: effects.NewPixelBuffer(4, 4)}}
	_, err := encodeRendered(stdCodec{}, Sequence{}, frames, domain.FormatWebP, 0)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}
