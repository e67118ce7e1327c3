package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torosent/ratefire/internal/config"
	"github.com/torosent/ratefire/internal/history"
	"github.com/torosent/ratefire/internal/httpclient"
	"github.com/torosent/ratefire/internal/metrics"
	"github.com/torosent/ratefire/internal/output"
	"github.com/torosent/ratefire/internal/report"
	"github.com/torosent/ratefire/internal/runner"
	"github.com/torosent/ratefire/internal/threshold"
	"github.com/torosent/ratefire/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 5 * time.Second
)

var errThresholdsFailed = errors.New("one or more thresholds failed")

// execute performs one load run for cfg. The report goes to stdout, logs to stderr.
func execute(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	startedAt := time.Now()
	runID := history.NewID(startedAt)
	log := newLogger(cfg, stderr).WithField("run_id", runID)
	logConfig(log, cfg)

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("tracing shutdown failed")
		}
	}()

	builder, err := httpclient.NewRequestBuilder(cfg)
	if err != nil {
		return err
	}
	client, err := httpclient.NewClient(cfg.Timeout, cfg.HTTP2)
	if err != nil {
		return err
	}

	var work runner.Work = newHTTPWork(httpclient.NewSender(client, builder), provider)
	if cfg.Retries > 0 {
		work = runner.WithRetry(work, newRetryPolicy(cfg.Retries))
	}

	var sched *runner.Runner
	snapshot := func() runner.Snapshot {
		if sched == nil {
			return runner.Snapshot{}
		}
		return sched.Snapshot()
	}

	var exporter *metrics.Exporter
	if cfg.MetricsAddr != "" {
		exporter = metrics.NewExporter(snapshot)
	}

	collector := metrics.NewCollector()
	reporter := report.New(report.Options{
		Logger:    log,
		Collector: collector,
		Exporter:  exporter,
		Request: report.Request{
			Method:  cfg.Method.String(),
			URL:     cfg.TargetURL,
			Headers: cfg.Headers,
			Body:    loggedRequestBody(cfg),
		},
		LogSuccesses: cfg.LogSuccesses,
	})

	sched, err = runner.New(runner.Options{
		RatePerSecond:  cfg.Rate,
		Duration:       cfg.Duration,
		PoolSize:       cfg.Connections,
		MaxQueuedTicks: cfg.MaxQueued,
		DrainTimeout:   cfg.DrainTimeout,
		Work:           work,
		Reporter:       reporter,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	if exporter != nil {
		stop := serveMetrics(ctx, exporter, cfg.MetricsAddr, log)
		defer stop()
	}

	if showProgress(cfg) {
		progress := output.NewProgressReporter(sched.Snapshot, progressInterval, stderr)
		progress.Start()
		defer func() {
			progress.Stop()
			fmt.Fprintln(stderr)
		}()
	}

	log.Info("run started")
	summary := sched.Run(ctx)
	stats := collector.Stats(summary.Duration)
	log.WithFields(logrus.Fields{
		"generated": summary.TicksGenerated,
		"executed":  summary.TicksExecuted,
		"dropped":   summary.TicksDropped,
		"in_flight": summary.TicksInFlightAtCancel,
		"successes": summary.Successes,
		"failures":  summary.Failures,
		"cancelled": summary.Cancelled,
	}).Info("run finished")

	rep := output.Report{
		Run: output.RunInfo{
			ID:          runID,
			StartedAt:   startedAt.UTC(),
			Target:      cfg.TargetURL,
			Method:      cfg.Method.String(),
			Rate:        cfg.Rate,
			DurationMs:  float64(cfg.Duration) / float64(time.Millisecond),
			Connections: cfg.Connections,
			MaxQueued:   cfg.MaxQueued,
		},
		Summary:    summary,
		Metrics:    stats,
		Thresholds: threshold.NewEvaluator(thresholds).Evaluate(threshold.Input{Stats: stats, Summary: summary}),
	}

	if err := printReport(stdout, cfg.Output, rep); err != nil {
		return err
	}
	if err := persist(cfg, rep); err != nil {
		return err
	}

	switch {
	case summary.Failures > 0:
		return fmt.Errorf("%d requests failed", summary.Failures)
	case !threshold.AllPassed(rep.Thresholds):
		return errThresholdsFailed
	}
	return nil
}

func printReport(w io.Writer, format config.OutputFormat, rep output.Report) error {
	switch format {
	case config.OutputJSON:
		return output.PrintJSONReport(w, rep)
	case config.OutputYAML:
		return output.PrintYAMLReport(w, rep)
	default:
		output.PrintReport(w, rep)
		return nil
	}
}

// persist appends the report to the summary file and records it in the history database.
func persist(cfg *config.Config, rep output.Report) error {
	if cfg.SummaryFile != "" {
		if err := output.AppendSummary(cfg.SummaryFile, rep); err != nil {
			return err
		}
	}
	if cfg.HistoryDB != "" {
		store, err := history.Open(cfg.HistoryDB)
		if err != nil {
			return err
		}
		if err := store.Save(history.NewRecord(rep)); err != nil {
			store.Close()
			return fmt.Errorf("save run history: %w", err)
		}
		return store.Close()
	}
	return nil
}

// serveMetrics exposes the exporter until the returned stop function is called.
func serveMetrics(ctx context.Context, exporter *metrics.Exporter, addr string, log logrus.FieldLogger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.WithField("addr", addr).Info("serving metrics")
		if err := exporter.Serve(ctx, addr); err != nil {
			log.WithError(err).Error("metrics endpoint failed")
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

// showProgress reports whether the live progress line is shown. It would interleave with
// per-request log lines, so it only runs for quiet text runs.
func showProgress(cfg *config.Config) bool {
	return cfg.Output == config.OutputText && !cfg.LogSuccesses && !cfg.Debug
}

func loggedRequestBody(cfg *config.Config) string {
	switch {
	case !cfg.Method.AllowsBody():
		return ""
	case cfg.BodyFile != "":
		return "<file " + cfg.BodyFile + ">"
	default:
		return cfg.Body
	}
}
