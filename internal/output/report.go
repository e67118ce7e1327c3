package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/torosent/ratefire/internal/metrics"
	"github.com/torosent/ratefire/internal/runner"
	"github.com/torosent/ratefire/internal/threshold"
)

// RunInfo identifies a run and the load it was configured with.
type RunInfo struct {
	ID          string    `json:"run_id" yaml:"run_id"`
	StartedAt   time.Time `json:"started_at" yaml:"started_at"`
	Target      string    `json:"target" yaml:"target"`
	Method      string    `json:"method" yaml:"method"`
	Rate        int       `json:"rate" yaml:"rate"`
	DurationMs  float64   `json:"duration_ms" yaml:"duration_ms"`
	Connections int       `json:"connections" yaml:"connections"`
	MaxQueued   int       `json:"max_queued" yaml:"max_queued"`
}

// Report is everything printed and persisted at the end of a run.
type Report struct {
	Run        RunInfo            `json:"run" yaml:"run"`
	Summary    runner.Summary     `json:"summary" yaml:"summary"`
	Metrics    metrics.Stats      `json:"metrics" yaml:"metrics"`
	Thresholds []threshold.Result `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// Passed reports whether the run had no failed requests and no failed thresholds.
func (r Report) Passed() bool {
	return r.Summary.Failures == 0 && threshold.AllPassed(r.Thresholds)
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, r Report) {
	s, stats := r.Summary, r.Metrics

	fmt.Fprintln(w, "\n--- Load Test Results ---")
	if r.Run.ID != "" {
		fmt.Fprintf(w, "Run ID:            %s\n", r.Run.ID)
	}
	if r.Run.Target != "" {
		fmt.Fprintf(w, "Target:            %s %s\n", r.Run.Method, r.Run.Target)
		fmt.Fprintf(w, "Load:              %d req/s, %d connections\n", r.Run.Rate, r.Run.Connections)
	}
	fmt.Fprintf(w, "Duration:          %s\n", s.Duration.Round(time.Millisecond))
	if s.Cancelled {
		fmt.Fprintln(w, "Cancelled:         yes")
	}

	fmt.Fprintln(w, "\nTicks:")
	fmt.Fprintf(w, "  Generated:       %d\n", s.TicksGenerated)
	fmt.Fprintf(w, "  Executed:        %d\n", s.TicksExecuted)
	fmt.Fprintf(w, "  Dropped:         %d\n", s.TicksDropped)
	if s.TicksInFlightAtCancel > 0 {
		fmt.Fprintf(w, "  In flight:       %d\n", s.TicksInFlightAtCancel)
	}

	fmt.Fprintln(w, "\nRequests:")
	fmt.Fprintf(w, "  Successful:      %d\n", s.Successes)
	fmt.Fprintf(w, "  Failed:          %d\n", s.Failures)
	fmt.Fprintf(w, "  Requests/sec:    %.2f\n", stats.RequestsPerSec)

	fmt.Fprintln(w, "\nLatency:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P95:             %s\n", stats.P95Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	fmt.Fprintln(w, "\nSchedule Lag:")
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Lag)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLag)

	if len(stats.StatusCodes) > 0 || len(stats.StatusClasses) > 0 {
		fmt.Fprintln(w, "\nStatus Codes:")
		writeCounts(w, stats.StatusClasses, "  ")
		for _, row := range metrics.FlattenStatusCodes(stats.StatusCodes) {
			fmt.Fprintf(w, "    %s: %d\n", row.Code, row.Count)
		}
	}

	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		writeCounts(w, stats.Errors, "  ")
	}

	if len(r.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, res := range r.Thresholds {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, r Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// writeCounts prints name: count rows, largest count first.
func writeCounts(w io.Writer, counts map[string]int64, indent string) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] == counts[names[j]] {
			return names[i] < names[j]
		}
		return counts[names[i]] > counts[names[j]]
	})
	for _, name := range names {
		fmt.Fprintf(w, "%s%s: %d\n", indent, name, counts[name])
	}
}
