package telemetry

import (
	"bytes"
	"context"
	"io"
	"log"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), TraceConfig{Exporter: "none"}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("expected no-op shutdown, got %v", err)
	}
}

func TestSetupTracingRejectsBadConfig(t *testing.T) {
	if _, err := SetupTracing(context.Background(), TraceConfig{Exporter: "zipkin"}, nil); err == nil {
		t.Fatal("expected unsupported exporter error")
	}
	if _, err := SetupTracing(context.Background(), TraceConfig{Exporter: "otlp"}, nil); err == nil {
		t.Fatal("expected missing endpoint error")
	}
}

func TestSetupTracingStdout(t *testing.T) {
	var out bytes.Buffer
	shutdown, err := SetupTracing(context.Background(), TraceConfig{
		ServiceName: "flipframe-test",
		Exporter:    "stdout",
		Writer:      &out,
	}, nil)
	if err != nil {
		t.Fatalf("setup stdout tracing: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "render")
	span.End()

	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(out.String(), `"Name": "render"`) {
		t.Fatalf("expected exported span, got %q", out.String())
	}
}

func TestServiceResourceCarriesServiceName(t *testing.T) {
	res, err := serviceResource(context.Background(), "flipframe-worker")
	if err != nil {
		t.Fatalf("build resource: %v", err)
	}
	var found bool
	for _, kv := range res.Attributes() {
		if string(kv.Key) == "service.name" && kv.Value.AsString() == "flipframe-worker" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected service.name=flipframe-worker, got %v", res.Attributes())
	}
}
