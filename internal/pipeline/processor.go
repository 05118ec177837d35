package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/flipframe/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const SourceTypeLocalFile = domain.SourceTypeLocalFile

var (
	ErrUnsupportedSourceType = errors.New("unsupported source_type")
	ErrInvalidStepAction     = errors.New("invalid pipeline action")
	ErrUnsupportedFormat     = errors.New("unsupported output format")
	ErrInvalidSource         = errors.New("invalid source image")
)

type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	Pipeline   []domain.PipelineStep
}

type Output struct {
	StepID  string `json:"step_id"`
	Action  string `json:"action"`
	Format  string `json:"format"`
	Path    string `json:"path"`
	Bytes   int    `json:"bytes"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Frames  int    `json:"frames"`
	Success bool   `json:"success"`
}

type Result struct {
	Outputs         []Output
	SourceBytes     int
	FramesRendered  int
	PixelsProcessed int64
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, step domain.PipelineStep, data []byte, format string, width, height int) (Output, error)
}

type Processor struct {
	fetcher          Fetcher
	codec            Codec
	emitter          Emitter
	frameParallelism int
	tracer           trace.Tracer
}

func NewLocalProcessor(outputDir string, frameParallelism int) (*Processor, error) {
	return newProcessor(LocalFileFetcher{}, LocalFileEmitter{OutputDir: outputDir}, frameParallelism)
}

func NewObjectStoreProcessor(fetcher UploadFetcher, emitter RenditionEmitter, frameParallelism int) (*Processor, error) {
	if fetcher.Uploads == nil || emitter.Renditions == nil {
		return nil, errors.New("storage client is required")
	}
	return newProcessor(fetcher, emitter, frameParallelism)
}

func newProcessor(fetcher Fetcher, emitter Emitter, frameParallelism int) (*Processor, error) {
	return &Processor{
		fetcher:          fetcher,
		codec:            newCodec(),
		emitter:          emitter,
		frameParallelism: max(1, frameParallelism),
		tracer:           otel.Tracer("flipframe/pipeline"),
	}, nil
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if len(req.Pipeline) == 0 {
		return Result{}, errors.New("pipeline must contain at least one step")
	}

	sourceBytes, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	out := Result{
		Outputs:     make([]Output, 0, len(req.Pipeline)),
		SourceBytes: len(sourceBytes),
	}
	// Steps that share a width share one decode.
	decoded := make(map[int]Sequence)
	for _, step := range req.Pipeline {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		default:
		}

		written, seq, err := p.runStep(ctx, req, step, sourceBytes, decoded)
		if err != nil {
			return Result{}, err
		}
		out.Outputs = append(out.Outputs, written)
		out.FramesRendered += written.Frames
		out.PixelsProcessed += seq.Pixels()
	}

	return out, nil
}

func (p *Processor) runStep(ctx context.Context, req Request, step domain.PipelineStep, source []byte, decoded map[int]Sequence) (Output, Sequence, error) {
	action := step.NormalizedAction()
	ctx, span := p.tracer.Start(ctx, "pipeline.step", trace.WithAttributes(
		attribute.String("step.id", step.ID),
		attribute.String("step.action", action),
	))
	defer span.End()

	fail := func(stage string, err error) (Output, Sequence, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage+" failed")
		return Output{}, Sequence{}, fmt.Errorf("%s stage step=%s action=%s: %w", stage, step.ID, step.Action, err)
	}

	fx, err := effectForStep(step)
	if err != nil {
		return fail("transform", err)
	}

	seq, ok := decoded[step.Width]
	if !ok {
		seq, err = decodeSequence(ctx, p.codec, source, step.Width)
		if err != nil {
			return fail("decode", err)
		}
		decoded[step.Width] = seq
	}

	format := outputFormat(p.codec, step, seq)
	if domain.IsTextFormat(format) && action != domain.ActionASCII && action != domain.ActionASCIIColor {
		return fail("encode", fmt.Errorf("%w: %s renders images, not %s", ErrUnsupportedFormat, action, format))
	}

	rendered, err := renderFrames(ctx, seq, fx, p.frameParallelism)
	if err != nil {
		return fail("transform", err)
	}

	enc, err := encodeRendered(p.codec, seq, rendered, format, step.Quality)
	if err != nil {
		return fail("encode", err)
	}

	written, err := p.emitter.Emit(ctx, req, step, enc.data, format, enc.width, enc.height)
	if err != nil {
		return fail("emit", err)
	}
	written.Frames = len(rendered)

	span.SetAttributes(
		attribute.Int("step.frames", written.Frames),
		attribute.String("step.format", format),
		attribute.Int("step.bytes", written.Bytes),
	)
	return written, seq, nil
}

type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, step domain.PipelineStep, data []byte, format string, width, height int) (Output, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return Output{}, errors.New("output directory is required")
	}
	if strings.TrimSpace(step.ID) == "" {
		return Output{}, errors.New("pipeline step id is required")
	}

	jobDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return Output{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(jobDir, outputFilename(step, format))
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return Output{}, fmt.Errorf("write output file: %w", err)
	}

	return Output{
		StepID:  step.ID,
		Action:  step.NormalizedAction(),
		Format:  format,
		Path:    fullPath,
		Bytes:   len(data),
		Width:   width,
		Height:  height,
		Success: true,
	}, nil
}

func outputFilename(step domain.PipelineStep, format string) string {
	return fmt.Sprintf("%s.%s", sanitizePathToken(step.ID), format)
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
