package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dunamismax/flipframe/internal/domain"
	"github.com/dunamismax/flipframe/internal/queue"
	"github.com/dunamismax/flipframe/internal/ratelimit"
	"github.com/dunamismax/flipframe/internal/store"
	"github.com/hibiken/asynq"
)

func TestCreateGetAndStartJob(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	enqueuer := &captureEnqueuer{}
	storage := &fakeStorage{exists: true}
	srv := newTestServer(jobStore, enqueuer, storage, Options{})

	body := `{"source_type":"s3_presigned","pipeline":[{"id":"anim","action":"popart","format":"gif"},{"id":"text","action":"ascii","format":"txt.zst"}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(body))
	req.Header.Set("X-User-ID", "user-42")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("create: expected 202, got %d body=%s", rec.Code, rec.Body.String())
	}

	var created struct {
		JobID  string            `json:"job_id"`
		Upload map[string]string `json:"upload"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create response: %v", err)
	}
	if created.Upload["object_key"] != "uploads/"+created.JobID+"/source" {
		t.Fatalf("unexpected object key %q", created.Upload["object_key"])
	}
	if created.Upload["presigned_put_url"] == "" {
		t.Fatal("expected presigned upload url")
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/jobs/"+created.JobID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"created"`) {
		t.Fatalf("expected created status, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs/"+created.JobID+"/start", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("start: expected 202, got %d body=%s", rec.Code, rec.Body.String())
	}
	if len(enqueuer.payloads) != 1 {
		t.Fatalf("expected one enqueued payload, got %d", len(enqueuer.payloads))
	}
	payload := enqueuer.payloads[0]
	if payload.UserID != "user-42" || len(payload.Pipeline) != 2 {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	job, _, _ := jobStore.Get(context.Background(), created.JobID)
	if job.Status != domain.JobStatusQueued {
		t.Fatalf("expected queued status, got %s", job.Status)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs/"+created.JobID+"/start", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("restart: expected 409, got %d", rec.Code)
	}
}

func TestCreateJobRejectsInvalidPipeline(t *testing.T) {
	srv := newTestServer(store.NewMemoryJobStore(), &captureEnqueuer{}, &fakeStorage{}, Options{})

	cases := map[string]string{
		"unknown action":  `{"source_type":"s3_presigned","pipeline":[{"id":"a","action":"sepia"}]}`,
		"text for effect": `{"source_type":"s3_presigned","pipeline":[{"id":"a","action":"cel","format":"txt"}]}`,
		"unknown field":   `{"source_type":"s3_presigned","pipeline":[{"id":"a","action":"cel"}],"extra":1}`,
		"empty pipeline":  `{"source_type":"s3_presigned","pipeline":[]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body=%s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestStartJobRequiresUploadedSource(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	srv := newTestServer(jobStore, &captureEnqueuer{}, &fakeStorage{exists: false}, Options{})
	now := time.Now().UTC()
	if err := jobStore.Create(context.Background(), domain.Job{
		ID:         "job-1",
		Status:     domain.JobStatusCreated,
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/job-1/source",
		Pipeline:   []domain.PipelineStep{{ID: "a", Action: "cel"}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs/job-1/start", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs/missing/start", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStartJobTaskIDConflict(t *testing.T) {
	jobStore := store.NewMemoryJobStore()
	enqueuer := &captureEnqueuer{err: fmt.Errorf("enqueue render job_id=job-2: %w", asynq.ErrTaskIDConflict)}
	srv := newTestServer(jobStore, enqueuer, &fakeStorage{exists: true}, Options{})
	now := time.Now().UTC()
	if err := jobStore.Create(context.Background(), domain.Job{
		ID:         "job-2",
		Status:     domain.JobStatusCreated,
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/job-2/source",
		Pipeline:   []domain.PipelineStep{{ID: "a", Action: "cel"}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/jobs/job-2/start", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate task id, got %d", rec.Code)
	}
	job, _, _ := jobStore.Get(context.Background(), "job-2")
	if job.Status != domain.JobStatusCreated {
		t.Fatalf("expected status to stay created, got %s", job.Status)
	}
}

func TestPreviewASCII(t *testing.T) {
	srv := newTestServer(store.NewMemoryJobStore(), &captureEnqueuer{}, &fakeStorage{}, Options{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/preview/ascii?width=20", bytes.NewReader(testPNG(t, 80, 40)))
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("expected text/plain, got %q", rec.Header().Get("Content-Type"))
	}
	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	if len(lines) == 0 || len(lines[0]) != 20 {
		t.Fatalf("expected rows of 20 glyphs, got %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/preview/ascii", strings.NewReader("not an image")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for undecodable body, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/preview/ascii?width=9999", bytes.NewReader(testPNG(t, 8, 8))))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized width, got %d", rec.Code)
	}
}

func TestRateLimitRejectsAndFailsOpen(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 2400 * time.Millisecond}}
	srv := newTestServer(store.NewMemoryJobStore(), &captureEnqueuer{}, &fakeStorage{}, Options{RateLimiter: limiter})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/preview/ascii?width=200", bytes.NewReader(testPNG(t, 8, 8)))
	req.Header.Set("X-User-ID", "user-1")
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("expected Retry-After 2, got %q", rec.Header().Get("Retry-After"))
	}
	if limiter.subject != "user-1:/v1/preview/ascii" || limiter.cost != 5 {
		t.Fatalf("unexpected limiter call subject=%q cost=%d", limiter.subject, limiter.cost)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET routes are not limited, got %d", rec.Code)
	}

	limiter.err = errors.New("redis down")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/preview/ascii", bytes.NewReader(testPNG(t, 8, 8))))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected limiter errors to fail open, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(store.NewMemoryJobStore(), &captureEnqueuer{}, &fakeStorage{}, Options{})

	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `flipframe_api_requests_total{method="GET",route="/healthz",status="200"} 1`) {
		t.Fatalf("expected request counter in exposition, got:\n%s", rec.Body.String())
	}
}

func TestPreviewAndCreditMetrics(t *testing.T) {
	limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 10}}
	srv := newTestServer(store.NewMemoryJobStore(), &captureEnqueuer{}, &fakeStorage{}, Options{
		RateLimiter:           limiter,
		RateLimitUserIDHeader: "X-User-ID",
	})

	srv.Handler().ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/v1/preview/ascii?width=100", bytes.NewReader(testPNG(t, 40, 20))))
	srv.Handler().ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/v1/preview/ascii?width=abc", bytes.NewReader(testPNG(t, 8, 8))))
	srv.Handler().ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest(http.MethodPost, "/v1/jobs", strings.NewReader(`{"source_type":"s3_presigned","pipeline":[{"id":"anim","action":"popart","format":"gif"}]}`)))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	exposition := rec.Body.String()
	for _, want := range []string{
		`flipframe_api_glyph_previews_total{outcome="rendered"} 1`,
		`flipframe_api_glyph_previews_total{outcome="rejected"} 1`,
		`flipframe_api_render_credits_requested_total{route="/v1/preview/ascii"} 4`,
		`flipframe_api_render_credits_requested_total{route="/v1/jobs"} 1`,
		`flipframe_api_render_jobs_created_total{source_type="s3_presigned"} 1`,
		`flipframe_api_glyph_preview_columns_count 1`,
	} {
		if !strings.Contains(exposition, want) {
			t.Errorf("expected %q in exposition", want)
		}
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/v1/jobs":           "/v1/jobs",
		"/v1/jobs/abc":       "/v1/jobs/{id}",
		"/v1/jobs/abc/start": "/v1/jobs/{id}/start",
		"/v1/preview/ascii":  "/v1/preview/ascii",
		"/wp-admin":          "other",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Errorf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}

func newTestServer(jobStore store.JobStore, enqueuer queueEnqueuer, storage objectStorage, opts Options) *Server {
	return NewServer(log.New(io.Discard, "", 0), enqueuer, jobStore, storage, opts)
}

func testPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := uint8(x * 255 / max(1, width-1))
			img.Set(x, y, color.RGBA{R: v, G: v, B: v, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type captureEnqueuer struct {
	payloads []queue.RenderFramesPayload
	err      error
}

func (c *captureEnqueuer) EnqueueRenderFrames(_ context.Context, payload queue.RenderFramesPayload) (*asynq.TaskInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.payloads = append(c.payloads, payload)
	return &asynq.TaskInfo{ID: payload.JobID, Queue: "default", State: asynq.TaskStatePending}, nil
}

type fakeStorage struct {
	exists bool
}

func (f *fakeStorage) PresignedPutURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://minio.test/" + objectKey + "?signature=x", nil
}

func (f *fakeStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return f.exists, nil
}

type stubLimiter struct {
	decision ratelimit.Decision
	err      error
	subject  string
	cost     int64
}

func (l *stubLimiter) Allow(_ context.Context, subject string, cost int64) (ratelimit.Decision, error) {
	l.subject = subject
	l.cost = cost
	return l.decision, l.err
}
