package metrics

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/ratefire/internal/runner"
)

// Sample is the measurement of one executed tick.
type Sample struct {
	Latency    time.Duration
	Lag        time.Duration // start delay relative to the scheduled tick time
	StatusCode int           // 0 when no response was received
	Err        error         // nil on success
}

// Collector records per-request metrics in a thread-safe manner.
type Collector struct {
	mu            sync.Mutex
	hist          *hdrhistogram.Histogram
	lagHist       *hdrhistogram.Histogram
	successes     int64
	failures      int64
	minLatency    time.Duration
	maxLatency    time.Duration
	sumLatency    time.Duration
	errorsByType  map[string]int64
	statusClasses map[string]int64
	statusCodes   map[string]int64
}

// Stats represents aggregated metrics.
type Stats struct {
	Total          int64         `json:"total" yaml:"total"`
	Successes      int64         `json:"successes" yaml:"successes"`
	Failures       int64         `json:"failures" yaml:"failures"`
	MinLatency     time.Duration `json:"-" yaml:"-"`
	MaxLatency     time.Duration `json:"-" yaml:"-"`
	MeanLatency    time.Duration `json:"-" yaml:"-"`
	P50Latency     time.Duration `json:"-" yaml:"-"`
	P90Latency     time.Duration `json:"-" yaml:"-"`
	P95Latency     time.Duration `json:"-" yaml:"-"`
	P99Latency     time.Duration `json:"-" yaml:"-"`
	P99Lag         time.Duration `json:"-" yaml:"-"`
	MaxLag         time.Duration `json:"-" yaml:"-"`
	Duration       time.Duration `json:"-" yaml:"-"`
	RequestsPerSec float64       `json:"requests_per_sec" yaml:"requests_per_sec"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64          `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs  float64          `json:"max_latency_ms" yaml:"max_latency_ms"`
	MeanLatencyMs float64          `json:"mean_latency_ms" yaml:"mean_latency_ms"`
	P50LatencyMs  float64          `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs  float64          `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P95LatencyMs  float64          `json:"p95_latency_ms" yaml:"p95_latency_ms"`
	P99LatencyMs  float64          `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	P99LagMs      float64          `json:"p99_lag_ms" yaml:"p99_lag_ms"`
	MaxLagMs      float64          `json:"max_lag_ms" yaml:"max_lag_ms"`
	DurationMs    float64          `json:"duration_ms" yaml:"duration_ms"`
	Errors        map[string]int64 `json:"errors,omitempty" yaml:"errors,omitempty"`
	StatusClasses map[string]int64 `json:"status_classes,omitempty" yaml:"status_classes,omitempty"`
	StatusCodes   map[string]int64 `json:"status_codes,omitempty" yaml:"status_codes,omitempty"`
}

func newHistogram() *hdrhistogram.Histogram {
	// Track values from 1µs up to 60s with 3 significant figures.
	return hdrhistogram.New(1, 60_000_000, 3)
}

func NewCollector() *Collector {
	return &Collector{
		hist:          newHistogram(),
		lagHist:       newHistogram(),
		errorsByType:  make(map[string]int64),
		statusClasses: make(map[string]int64),
		statusCodes:   make(map[string]int64),
	}
}

// Record records a single executed tick.
func (c *Collector) Record(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	recordClamped(c.hist, s.Latency)
	recordClamped(c.lagHist, s.Lag)
	c.sumLatency += s.Latency

	if c.minLatency == 0 || s.Latency < c.minLatency {
		c.minLatency = s.Latency
	}
	if s.Latency > c.maxLatency {
		c.maxLatency = s.Latency
	}

	c.statusClasses[StatusClass(s.StatusCode)]++
	if s.StatusCode > 0 {
		c.statusCodes[fmt.Sprint(s.StatusCode)]++
	}

	if s.Err == nil {
		c.successes++
		return
	}
	c.failures++
	c.errorsByType[ErrorType(s.Err)]++
}

// RecordOutcome records a runner outcome. status is the HTTP status code or 0.
func (c *Collector) RecordOutcome(tick runner.Tick, out runner.Outcome, status int) {
	err := out.Err
	if err == nil && !out.Success() {
		err = errors.New("unclassified failure")
	}
	c.Record(Sample{
		Latency:    out.Latency,
		Lag:        out.Lag(tick),
		StatusCode: status,
		Err:        err,
	})
}

func recordClamped(h *hdrhistogram.Histogram, d time.Duration) {
	if d <= 0 {
		return
	}
	us := d.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

func quantile(h *hdrhistogram.Histogram, q float64) time.Duration {
	if h.TotalCount() == 0 {
		return 0
	}
	return time.Duration(h.ValueAtQuantile(q)) * time.Microsecond
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
		P50Latency: quantile(c.hist, 50),
		P90Latency: quantile(c.hist, 90),
		P95Latency: quantile(c.hist, 95),
		P99Latency: quantile(c.hist, 99),
		P99Lag:     quantile(c.lagHist, 99),
		Duration:   elapsed,
	}
	if c.lagHist.TotalCount() > 0 {
		stats.MaxLag = time.Duration(c.lagHist.Max()) * time.Microsecond
	}
	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}

	stats.MinLatencyMs = millis(stats.MinLatency)
	stats.MaxLatencyMs = millis(stats.MaxLatency)
	stats.MeanLatencyMs = millis(stats.MeanLatency)
	stats.P50LatencyMs = millis(stats.P50Latency)
	stats.P90LatencyMs = millis(stats.P90Latency)
	stats.P95LatencyMs = millis(stats.P95Latency)
	stats.P99LatencyMs = millis(stats.P99Latency)
	stats.P99LagMs = millis(stats.P99Lag)
	stats.MaxLagMs = millis(stats.MaxLag)
	stats.DurationMs = millis(elapsed)
	if elapsed > 0 && total > 0 {
		stats.RequestsPerSec = float64(total) / elapsed.Seconds()
	}

	stats.Errors = copyCounts(c.errorsByType)
	stats.StatusClasses = copyCounts(c.statusClasses)
	stats.StatusCodes = copyCounts(c.statusCodes)
	return stats
}

func copyCounts(src map[string]int64) map[string]int64 {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
