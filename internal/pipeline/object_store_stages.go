package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dunamismax/flipframe/internal/domain"
	"github.com/dunamismax/flipframe/internal/storage"
)

const (
	SourceTypeS3Presigned = domain.SourceTypeS3Presigned

	// MaxUploadBytes bounds how much of an uploaded source animation is read.
	MaxUploadBytes = 64 << 20
)

// UploadReader is the read half of the bucket: presigned uploads land here.
type UploadReader interface {
	ReadObject(ctx context.Context, objectKey string, limit int64) ([]byte, error)
}

// RenditionWriter is the write half of the bucket: rendered step outputs go here.
type RenditionWriter interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

// UploadFetcher reads the source animation a client pushed through its
// presigned URL.
type UploadFetcher struct {
	Uploads UploadReader
}

func (f UploadFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Uploads == nil {
		return nil, errors.New("upload reader is required")
	}
	if !strings.EqualFold(req.SourceType, SourceTypeS3Presigned) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	key := strings.TrimSpace(req.ObjectKey)
	if key == "" {
		key = storage.SourceKey(req.JobID)
	}

	data, err := f.Uploads.ReadObject(ctx, key, MaxUploadBytes)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: upload %s is empty", ErrInvalidSource, key)
	}
	return data, nil
}

// RenditionEmitter stores each step's encoded output under
// <prefix>/<job>/<step>.<format>.
type RenditionEmitter struct {
	Renditions RenditionWriter
	KeyPrefix  string
}

func (e RenditionEmitter) Emit(ctx context.Context, req Request, step domain.PipelineStep, data []byte, format string, width, height int) (Output, error) {
	if e.Renditions == nil {
		return Output{}, errors.New("rendition writer is required")
	}
	if strings.TrimSpace(step.ID) == "" {
		return Output{}, errors.New("pipeline step id is required")
	}

	key := storage.RenditionKey(e.KeyPrefix, sanitizePathToken(req.JobID), outputFilename(step, format))
	if err := e.Renditions.WriteObject(ctx, key, data, contentTypeForFormat(format)); err != nil {
		return Output{}, fmt.Errorf("store rendition step=%s: %w", step.ID, err)
	}

	return Output{
		StepID:  step.ID,
		Action:  step.NormalizedAction(),
		Format:  format,
		Path:    key,
		Bytes:   len(data),
		Width:   width,
		Height:  height,
		Success: true,
	}, nil
}
