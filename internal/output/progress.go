package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/ratefire/internal/runner"
)

// SnapshotFunc returns the live counters of the running schedule.
type SnapshotFunc func() runner.Snapshot

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	snapshot SnapshotFunc
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	start    time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(snapshot SnapshotFunc, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		snapshot: snapshot,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
		start:    time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	p.start = time.Now()
	go p.run()
}

// Stop halts progress updates and waits for the last line to be written.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+FormatProgress(p.snapshot(), time.Since(p.start)))
		case <-p.done:
			return
		}
	}
}

// FormatProgress renders one progress line for s after elapsed.
func FormatProgress(s runner.Snapshot, elapsed time.Duration) string {
	rps := 0.0
	if secs := elapsed.Seconds(); secs > 0 {
		rps = float64(s.Executed) / secs
	}
	return fmt.Sprintf("Ticks: %d | Executed: %d | Dropped: %d | Queued: %d | In flight: %d | Successes: %d | Failures: %d | RPS: %.1f",
		s.Generated, s.Executed, s.Dropped, s.Queued, s.InFlight, s.Successes, s.Failures, rps)
}
