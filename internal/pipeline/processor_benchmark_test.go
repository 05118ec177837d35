package pipeline

import (
	"context"
	"fmt"
	"testing"

	"github.com/dunamismax/flipframe/internal/domain"
)

func benchmarkStep(b *testing.B, source []byte, parallelism int, step domain.PipelineStep) {
	b.Helper()

	processor, err := NewLocalProcessor(b.TempDir(), parallelism)
	if err != nil {
		b.Fatalf("new local processor: %v", err)
	}
	processor.fetcher = staticFetcher{data: source}
	processor.emitter = discardEmitter{}

	req := Request{
		JobID:      "bench",
		SourceType: SourceTypeLocalFile,
		ObjectKey:  "ignored",
		Pipeline:   []domain.PipelineStep{step},
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		req.JobID = fmt.Sprintf("bench-%s-%d", step.ID, i)
		if _, err := processor.Process(context.Background(), req); err != nil {
			b.Fatalf("process: %v", err)
		}
	}
}

func BenchmarkProcessorGenga(b *testing.B) {
	benchmarkStep(b, buildTestPNG(b, 1920, 1080), 1, domain.PipelineStep{
		ID:     "genga_png",
		Action: "genga",
		Format: "png",
	})
}

func BenchmarkProcessorASCII(b *testing.B) {
	benchmarkStep(b, buildTestPNG(b, 1920, 1080), 1, domain.PipelineStep{
		ID:     "ascii_txt",
		Action: "ascii",
		ASCII:  &domain.ASCIIParams{Width: 160},
	})
}

func BenchmarkProcessorAnimatedCel(b *testing.B) {
	for _, parallelism := range []int{1, 4} {
		b.Run(fmt.Sprintf("parallelism=%d", parallelism), func(b *testing.B) {
			benchmarkStep(b, buildTestGIF(b, 320, 240, 12), parallelism, domain.PipelineStep{
				ID:     "cel_gif",
				Action: "cel",
			})
		})
	}
}

type staticFetcher struct {
	data []byte
}

func (f staticFetcher) Fetch(_ context.Context, _ Request) ([]byte, error) {
	return f.data, nil
}

type discardEmitter struct{}

func (discardEmitter) Emit(_ context.Context, _ Request, step domain.PipelineStep, data []byte, format string, width, height int) (Output, error) {
	return Output{
		StepID:  step.ID,
		Action:  step.Action,
		Format:  format,
		Path:    "",
		Bytes:   len(data),
		Width:   width,
		Height:  height,
		Success: true,
	}, nil
}
