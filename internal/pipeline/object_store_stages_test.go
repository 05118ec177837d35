package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dunamismax/flipframe/internal/domain"
	"github.com/dunamismax/flipframe/internal/storage"
)

type memBucket struct {
	objects      map[string][]byte
	contentTypes map[string]string
	readErr      error
}

func newMemBucket() *memBucket {
	return &memBucket{objects: map[string][]byte{}, contentTypes: map[string]string{}}
}

func (b *memBucket) ReadObject(_ context.Context, objectKey string, limit int64) ([]byte, error) {
	if b.readErr != nil {
		return nil, b.readErr
	}
	data, ok := b.objects[objectKey]
	if !ok {
		return nil, fmt.Errorf("get object %s: no such key", objectKey)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("read object %s: %w", objectKey, storage.ErrObjectTooLarge)
	}
	return data, nil
}

func (b *memBucket) WriteObject(_ context.Context, objectKey string, data []byte, contentType string) error {
	b.objects[objectKey] = data
	b.contentTypes[objectKey] = contentType
	return nil
}

func TestObjectStoreProcessorWritesRenditions(t *testing.T) {
	bucket := newMemBucket()
	bucket.objects[storage.SourceKey("job-s3")] = buildTestGIF(t, 24, 16, 2)

	processor, err := NewObjectStoreProcessor(UploadFetcher{Uploads: bucket}, RenditionEmitter{Renditions: bucket}, 2)
	if err != nil {
		t.Fatalf("new object-store processor: %v", err)
	}

	result, err := processor.Process(context.Background(), Request{
		JobID:      "job-s3",
		SourceType: SourceTypeS3Presigned,
		Pipeline: []domain.PipelineStep{
			{ID: "pencil", Action: "pencil"},
			{ID: "frames", Action: "ascii", Format: "txt", ASCII: &domain.ASCIIParams{Width: 12}},
		},
	})
	if err != nil {
		t.Fatalf("process request: %v", err)
	}

	want := map[string]string{
		"renditions/job-s3/pencil.gif": "image/gif",
		"renditions/job-s3/frames.txt": "text/plain; charset=utf-8",
	}
	for i, out := range result.Outputs {
		contentType, ok := want[out.Path]
		if !ok {
			t.Fatalf("output %d: unexpected key %q", i, out.Path)
		}
		if got := bucket.contentTypes[out.Path]; got != contentType {
			t.Fatalf("output %s: content type %q, want %q", out.Path, got, contentType)
		}
		if len(bucket.objects[out.Path]) != out.Bytes {
			t.Fatalf("output %s: stored %d bytes, reported %d", out.Path, len(bucket.objects[out.Path]), out.Bytes)
		}
	}
}

func TestUploadFetcherRejects(t *testing.T) {
	cases := map[string]struct {
		bucket *memBucket
		req    Request
		want   error
	}{
		"local source": {
			bucket: newMemBucket(),
			req:    Request{JobID: "j", SourceType: SourceTypeLocalFile, ObjectKey: "/tmp/x.gif"},
			want:   ErrUnsupportedSourceType,
		},
		"empty upload": {
			bucket: &memBucket{objects: map[string][]byte{"uploads/j/source": {}}},
			req:    Request{JobID: "j", SourceType: SourceTypeS3Presigned},
			want:   ErrInvalidSource,
		},
		"oversized upload": {
			bucket: &memBucket{readErr: fmt.Errorf("read object k: %w", storage.ErrObjectTooLarge)},
			req:    Request{JobID: "j", SourceType: SourceTypeS3Presigned, ObjectKey: "k"},
			want:   storage.ErrObjectTooLarge,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := UploadFetcher{Uploads: tc.bucket}.Fetch(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRenditionEmitterHonoursPrefix(t *testing.T) {
	bucket := newMemBucket()
	emitter := RenditionEmitter{Renditions: bucket, KeyPrefix: "frames/"}

	out, err := emitter.Emit(context.Background(), Request{JobID: "../job"}, domain.PipelineStep{ID: "cel", Action: "cel"}, []byte("gif"), domain.FormatGIF, 4, 4)
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	if out.Path != "frames/"+sanitizePathToken("../job")+"/cel.gif" {
		t.Fatalf("unexpected rendition key %q", out.Path)
	}

	if _, err := emitter.Emit(context.Background(), Request{JobID: "j"}, domain.PipelineStep{Action: "cel"}, nil, domain.FormatGIF, 1, 1); err == nil {
		t.Fatal("expected missing step id error")
	}
}

func TestNewObjectStoreProcessorRequiresBucket(t *testing.T) {
	if _, err := NewObjectStoreProcessor(UploadFetcher{}, RenditionEmitter{Renditions: newMemBucket()}, 1); err == nil {
		t.Fatal("expected missing upload reader error")
	}
}
