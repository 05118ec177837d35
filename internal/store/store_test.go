package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/dunamismax/flipframe/internal/domain"
	"github.com/dunamismax/flipframe/internal/id"
)

func exerciseJobStore(t *testing.T, s JobStore) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	job := domain.Job{
		ID:         id.New(),
		UserID:     "user-1",
		Status:     domain.JobStatusCreated,
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/x/source",
		Pipeline:   []domain.PipelineStep{{ID: "sketch", Action: "genga", Genga: &domain.GengaParams{Shadow: "colorful"}}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("create job: %v", err)
	}

	got, ok, err := s.Get(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("get job: ok=%v err=%v", ok, err)
	}
	if got.UserID != "user-1" || got.Status != domain.JobStatusCreated {
		t.Fatalf("unexpected job %+v", got)
	}
	if len(got.Pipeline) != 1 || got.Pipeline[0].Genga == nil || got.Pipeline[0].Genga.Shadow != "colorful" {
		t.Fatalf("expected pipeline params to survive storage, got %+v", got.Pipeline)
	}

	updated, err := s.UpdateStatus(ctx, job.ID, domain.JobStatusQueued)
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if updated.Status != domain.JobStatusQueued {
		t.Fatalf("expected queued, got %s", updated.Status)
	}

	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected missing job, got ok=%v err=%v", ok, err)
	}
	if _, err := s.UpdateStatus(ctx, "missing", domain.JobStatusFailed); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestMemoryJobStore(t *testing.T) {
	s := NewMemoryJobStore()
	exerciseJobStore(t, s)

	usage := domain.UsageLog{UserID: "user-1", JobID: "job-1", FramesRendered: 3}
	if err := s.CreateUsageLog(context.Background(), usage); err != nil {
		t.Fatalf("create usage log: %v", err)
	}
	logs := s.UsageLogs()
	if len(logs) != 1 || logs[0].FramesRendered != 3 {
		t.Fatalf("unexpected usage logs %+v", logs)
	}
}

func TestMemoryJobStoreRejectsDuplicates(t *testing.T) {
	s := NewMemoryJobStore()
	job := domain.Job{ID: "job-1"}
	if err := s.Create(context.Background(), job); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := s.Create(context.Background(), job); err == nil {
		t.Fatal("expected duplicate id error")
	}
}

func TestPostgresJobStore(t *testing.T) {
	dsn := os.Getenv("FLIPFRAME_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("FLIPFRAME_TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewPostgresJobStore(ctx, dsn)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	defer s.Close()

	exerciseJobStore(t, s)

	if err := s.CreateUsageLog(ctx, domain.UsageLog{
		UserID:          "user-1",
		JobID:           "job-1",
		FramesRendered:  2,
		PixelsProcessed: 100,
		ComputeTimeMS:   5,
		CreatedAt:       time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create usage log: %v", err)
	}
}
