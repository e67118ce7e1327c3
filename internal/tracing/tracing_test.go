package tracing_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/ratefire/internal/config"
	"github.com/torosent/ratefire/internal/tracing"
)

func setupTestTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
	})
	return exporter, tp.Tracer("test")
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestInitDisabledByDefault(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	p, err := tracing.Init(context.Background(), config.TracingConfig{})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	if p.ShouldPropagate() || p.Exporting() {
		t.Error("disabled provider should neither propagate nor export")
	}
	_, span := p.Tracer().Start(context.Background(), "test")
	span.End()
	if span.SpanContext().IsValid() {
		t.Error("no-op tracer produced a valid span context")
	}
}

func TestInitWithEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		protocol string
		endpoint string
	}{
		{"grpc", "grpc", "localhost:4317"},
		{"http", "http", "localhost:4318"},
		{"default protocol", "", "localhost:4317"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tracing.Init(context.Background(), config.TracingConfig{
				Endpoint:    tt.endpoint,
				Protocol:    tt.protocol,
				ServiceName: "test-service",
				SampleRate:  1.0,
				Insecure:    true,
				Propagate:   true,
			})
			if err != nil {
				t.Fatalf("Init() error = %v", err)
			}
			t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

			if !p.Exporting() {
				t.Error("Exporting() = false with an endpoint")
			}
			if !p.ShouldPropagate() {
				t.Error("ShouldPropagate() = false, want true")
			}
		})
	}
}

func TestInitPropagateWithoutEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	p, err := tracing.Init(context.Background(), config.TracingConfig{Propagate: true, SampleRate: 1})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if !p.ShouldPropagate() || p.Exporting() {
		t.Errorf("propagate-only provider: ShouldPropagate=%v Exporting=%v", p.ShouldPropagate(), p.Exporting())
	}
}

func TestInitEndpointWithoutPropagation(t *testing.T) {
	p, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint:   "localhost:4317",
		Insecure:   true,
		SampleRate: 0.5,
	})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	if p.ShouldPropagate() {
		t.Error("ShouldPropagate() = true, want false when propagation is off")
	}
}

func TestInitUnsupportedProtocol(t *testing.T) {
	_, err := tracing.Init(context.Background(), config.TracingConfig{
		Endpoint: "localhost:4317",
		Protocol: "thrift",
		Insecure: true,
	})
	if err == nil {
		t.Fatal("Init() with unsupported protocol should return error")
	}
}

func TestInitInvalidSampleRate(t *testing.T) {
	for _, rate := range []float64{-0.5, 1.5} {
		_, err := tracing.Init(context.Background(), config.TracingConfig{
			Endpoint:   "localhost:4317",
			Insecure:   true,
			SampleRate: rate,
		})
		if err == nil {
			t.Errorf("Init() with sample_rate=%g should return error", rate)
		}
	}
}

func TestNilProviderSafety(t *testing.T) {
	var p *tracing.Provider
	if p.ShouldPropagate() || p.Exporting() {
		t.Error("nil provider should neither propagate nor export")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("nil provider Shutdown() error = %v", err)
	}
	_, span := p.Tracer().Start(context.Background(), "test")
	span.End()
}

func TestStartRequestSpan(t *testing.T) {
	exporter, tracer := setupTestTracer(t)

	_, span := tracing.StartRequestSpan(context.Background(), tracer, "POST", "http://localhost/api", 42)
	span.End()

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	got := spans[0]
	if got.Name != "HTTP POST" {
		t.Errorf("span name = %q, want HTTP POST", got.Name)
	}
	if got.SpanKind != trace.SpanKindClient {
		t.Errorf("span kind = %v, want client", got.SpanKind)
	}
	if v, ok := attrValue(got.Attributes, "url.full"); !ok || v.AsString() != "http://localhost/api" {
		t.Errorf("url.full = %v", v)
	}
	if v, ok := attrValue(got.Attributes, "ratefire.tick.seq"); !ok || v.AsInt64() != 42 {
		t.Errorf("ratefire.tick.seq = %v", v)
	}
}

func TestEndSpanStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		err    error
		want   codes.Code
	}{
		{"ok", 200, nil, codes.Ok},
		{"server error status", 503, nil, codes.Error},
		{"transport error", 0, context.DeadlineExceeded, codes.Error},
		{"error wins over status", 200, errors.New("boom"), codes.Error},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter, tracer := setupTestTracer(t)
			_, span := tracer.Start(context.Background(), "req")
			tracing.EndSpan(span, tt.status, tt.err)

			spans := exporter.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			if spans[0].Status.Code != tt.want {
				t.Errorf("status code = %v, want %v", spans[0].Status.Code, tt.want)
			}
			v, ok := attrValue(spans[0].Attributes, "http.response.status_code")
			if tt.status > 0 && (!ok || v.AsInt64() != int64(tt.status)) {
				t.Errorf("http.response.status_code = %v", v)
			}
			if tt.status == 0 && ok {
				t.Error("status attribute set without a response")
			}
		})
	}
}

func TestInjectHTTPHeaders(t *testing.T) {
	_, tracer := setupTestTracer(t)

	ctx, span := tracer.Start(context.Background(), "test-inject")
	defer span.End()

	headers := make(http.Header)
	tracing.InjectHTTPHeaders(ctx, headers)

	// version-traceid-spanid-flags
	if got := headers.Get("Traceparent"); len(got) < 55 {
		t.Errorf("traceparent header missing or short: %q", got)
	}
}

func TestInjectHTTPHeadersNoSpan(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	headers := make(http.Header)
	tracing.InjectHTTPHeaders(context.Background(), headers)

	if got := headers.Get("Traceparent"); got != "" {
		t.Errorf("traceparent header should be empty without span, got %q", got)
	}
}
