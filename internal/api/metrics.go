package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry         *prometheus.Registry
	requestTotal     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	creditsRequested *prometheus.CounterVec
	creditsRefused   *prometheus.CounterVec
	jobsCreated      *prometheus.CounterVec
	jobsEnqueued     *prometheus.CounterVec
	previewRenders   *prometheus.CounterVec
	previewColumns   prometheus.Histogram
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flipframe_api_requests_total",
			Help: "HTTP requests served by the flipframe API, by route template and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flipframe_api_request_duration_seconds",
			Help:    "Time to serve an API request; glyph previews render inline and dominate the tail.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route", "status"}),
		creditsRequested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flipframe_api_render_credits_requested_total",
			Help: "Render credits asked of the per-user credit bucket.",
		}, []string{"route"}),
		creditsRefused: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flipframe_api_render_credits_refused_total",
			Help: "Requests refused with 429 because the user's credit bucket ran dry.",
		}, []string{"route"}),
		jobsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flipframe_api_render_jobs_created_total",
			Help: "Render jobs accepted by POST /v1/jobs, by source type.",
		}, []string{"source_type"}),
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flipframe_queue_render_jobs_enqueued_total",
			Help: "Render jobs handed to the frame worker queue.",
		}, []string{"queue"}),
		previewRenders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flipframe_api_glyph_previews_total",
			Help: "Synchronous glyph previews, by outcome: rendered, rejected or failed.",
		}, []string{"outcome"}),
		previewColumns: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flipframe_api_glyph_preview_columns",
			Help:    "Requested glyph grid width of rendered previews.",
			Buckets: []float64{25, 50, 100, 200, 400},
		}),
	}
	registry.MustRegister(
		m.requestTotal,
		m.requestDuration,
		m.creditsRequested,
		m.creditsRefused,
		m.jobsCreated,
		m.jobsEnqueued,
		m.previewRenders,
		m.previewColumns,
	)
	return m
}

func (m *metrics) metricsHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metrics) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		labels := []string{r.Method, routeLabel(r.URL.Path), strconv.Itoa(recorder.status)}
		m.requestTotal.WithLabelValues(labels...).Inc()
		m.requestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
	})
}

// routeLabel maps a request path onto its route template. Unknown paths share
// one label so scanners cannot grow the series count.
func routeLabel(path string) string {
	switch {
	case path == "/v1/jobs":
		return "/v1/jobs"
	case strings.HasPrefix(path, "/v1/jobs/"):
		if strings.HasSuffix(path, "/start") {
			return "/v1/jobs/{id}/start"
		}
		return "/v1/jobs/{id}"
	case path == "/v1/preview/ascii":
		return "/v1/preview/ascii"
	case path == "/healthz", path == "/metrics":
		return path
	default:
		return "other"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(statusCode int) {
	r.status = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}
