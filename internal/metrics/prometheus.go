package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/ratefire/internal/runner"
)

// SnapshotFunc returns the live scheduler counters.
type SnapshotFunc func() runner.Snapshot

// Exporter exposes live run metrics in the Prometheus text format.
type Exporter struct {
	registry *prometheus.Registry
	latency  *prometheus.HistogramVec
	lag      prometheus.Histogram
}

// NewExporter registers scheduler counters read from snapshot on a private registry.
func NewExporter(snapshot SnapshotFunc) *Exporter {
	reg := prometheus.NewRegistry()

	counter := func(name, help string, read func(runner.Snapshot) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "ratefire",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(snapshot())) })
	}
	gauge := func(name, help string, read func(runner.Snapshot) int64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "ratefire",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(snapshot())) })
	}

	e := &Exporter{
		registry: reg,
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "ratefire",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of executed requests",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"status_class"}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ratefire",
			Name:      "schedule_lag_seconds",
			Help:      "Delay between a tick's scheduled time and the start of its request",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
	}

	reg.MustRegister(
		counter("ticks_generated_total", "Ticks generated by the scheduler", func(s runner.Snapshot) int64 { return s.Generated }),
		counter("ticks_executed_total", "Ticks whose request completed", func(s runner.Snapshot) int64 { return s.Executed }),
		counter("ticks_dropped_total", "Ticks dropped because every connection was busy", func(s runner.Snapshot) int64 { return s.Dropped }),
		counter("requests_successful_total", "Requests answered with a 2xx status", func(s runner.Snapshot) int64 { return s.Successes }),
		counter("requests_failed_total", "Requests that failed or returned a non-2xx status", func(s runner.Snapshot) int64 { return s.Failures }),
		gauge("ticks_queued", "Ticks waiting for a free connection", func(s runner.Snapshot) int64 { return s.Queued }),
		gauge("requests_in_flight", "Requests currently in flight", func(s runner.Snapshot) int64 { return s.InFlight }),
		e.latency,
		e.lag,
	)
	return e
}

// Observe records one executed request.
func (e *Exporter) Observe(s Sample) {
	e.latency.WithLabelValues(StatusClass(s.StatusCode)).Observe(s.Latency.Seconds())
	e.lag.Observe(s.Lag.Seconds())
}

// Registry returns the registry backing the exporter.
func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

// Handler serves the registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done. Listen errors are returned immediately.
func (e *Exporter) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return e.serve(ctx, ln)
}

func (e *Exporter) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
