package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/torosent/ratefire/internal/config"
	"github.com/torosent/ratefire/internal/httpclient"
	"github.com/torosent/ratefire/internal/runner"
	"github.com/torosent/ratefire/internal/tracing"
)

func newTestWork(t *testing.T, target string, provider *tracing.Provider) *httpWork {
	t.Helper()
	cfg := config.Defaults()
	cfg.TargetURL = target
	builder, err := httpclient.NewRequestBuilder(&cfg)
	if err != nil {
		t.Fatalf("NewRequestBuilder() error = %v", err)
	}
	client, err := httpclient.NewClient(2*time.Second, false)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return newHTTPWork(httpclient.NewSender(client, builder), provider)
}

func TestHTTPWorkClassifiesStatus(t *testing.T) {
	tests := []struct {
		status      int
		wantSuccess bool
	}{
		{http.StatusOK, true},
		{http.StatusNoContent, true},
		{http.StatusMovedPermanently, false},
		{http.StatusNotFound, false},
		{http.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			}))
			defer srv.Close()

			out := newTestWork(t, srv.URL, nil).Do(context.Background(), runner.Tick{Seq: 1, Scheduled: time.Now()})
			if out.Success() != tt.wantSuccess {
				t.Fatalf("Success() = %v, want %v (err %v)", out.Success(), tt.wantSuccess, out.Err)
			}
			resp, ok := out.Result.(*httpclient.Response)
			if !ok || resp.Status != tt.status {
				t.Fatalf("Result = %#v, want response with status %d", out.Result, tt.status)
			}
			if out.Latency <= 0 || out.Started.IsZero() {
				t.Errorf("timing not set: started=%v latency=%v", out.Started, out.Latency)
			}
			if !tt.wantSuccess {
				var httpErr *runner.HTTPError
				if !errors.As(out.Err, &httpErr) || httpErr.StatusCode != tt.status {
					t.Errorf("Err = %v, want HTTPError %d", out.Err, tt.status)
				}
			}
		})
	}
}

func TestHTTPWorkTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	target := srv.URL
	srv.Close()

	out := newTestWork(t, target, nil).Do(context.Background(), runner.Tick{Seq: 1})
	if out.Success() || out.Err == nil {
		t.Fatalf("expected transport failure, got %+v", out)
	}
	if out.Result != nil {
		t.Errorf("Result = %v, want nil", out.Result)
	}
}

func TestHTTPWorkPropagatesTraceContext(t *testing.T) {
	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("Traceparent")
	}))
	defer srv.Close()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	otel.SetTextMapPropagator(propagation.TraceContext{})

	work := newTestWork(t, srv.URL, nil)
	work.tracer = tp.Tracer("test")
	work.propagate = true

	out := work.Do(context.Background(), runner.Tick{Seq: 9})
	if !out.Success() {
		t.Fatalf("request failed: %v", out.Err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	traceID := spans[0].SpanContext.TraceID().String()
	if !strings.Contains(traceparent, traceID) {
		t.Errorf("traceparent = %q, want trace id %s", traceparent, traceID)
	}
	if spans[0].Name != "HTTP GET" {
		t.Errorf("span name = %q, want HTTP GET", spans[0].Name)
	}
}

func TestHTTPWorkWithoutPropagation(t *testing.T) {
	var traceparent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("Traceparent")
	}))
	defer srv.Close()

	out := newTestWork(t, srv.URL, &tracing.Provider{}).Do(context.Background(), runner.Tick{Seq: 1})
	if !out.Success() {
		t.Fatalf("request failed: %v", out.Err)
	}
	if traceparent != "" {
		t.Errorf("traceparent = %q, want none", traceparent)
	}
}

func TestClassifyTruncatesErrorBody(t *testing.T) {
	out := classify(&httpclient.Response{Status: 500, Body: []byte(strings.Repeat("x", 5000))})
	var httpErr *runner.HTTPError
	if !errors.As(out.Err, &httpErr) {
		t.Fatalf("Err = %v, want HTTPError", out.Err)
	}
	if len(httpErr.Body) != maxErrorBodyChars {
		t.Errorf("error body length = %d, want %d", len(httpErr.Body), maxErrorBodyChars)
	}
}
