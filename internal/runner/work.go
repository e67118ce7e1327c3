package runner

import (
	"context"
	"fmt"
	"time"
)

// Tick is one scheduled instant at which a unit of work should begin.
type Tick struct {
	Seq       int64
	Scheduled time.Time
}

// OutcomeClass classifies a finished unit of work.
type OutcomeClass int

const (
	ClassFailure OutcomeClass = iota
	ClassSuccess
)

func (c OutcomeClass) String() string {
	if c == ClassSuccess {
		return "success"
	}
	return "failure"
}

// Outcome is the tagged result of one executed unit of work.
type Outcome struct {
	Class   OutcomeClass
	Started time.Time
	Latency time.Duration
	Result  any   // opaque payload, e.g. an HTTP response
	Err     error // set for failures
}

// Success reports whether the outcome was classified as a success.
func (o Outcome) Success() bool { return o.Class == ClassSuccess }

// Lag is how long after its scheduled time the tick actually started.
func (o Outcome) Lag(t Tick) time.Duration {
	if o.Started.IsZero() || t.Scheduled.IsZero() {
		return 0
	}
	lag := o.Started.Sub(t.Scheduled)
	if lag < 0 {
		return 0
	}
	return lag
}

// Work executes a single unit of work for a tick.
// Implementations are called from up to PoolSize goroutines at once.
type Work interface {
	Do(ctx context.Context, tick Tick) Outcome
}

// WorkFunc adapts a function to the Work interface.
type WorkFunc func(ctx context.Context, tick Tick) Outcome

func (f WorkFunc) Do(ctx context.Context, tick Tick) Outcome { return f(ctx, tick) }

// Reporter receives the outcome of every executed tick.
type Reporter interface {
	Report(tick Tick, outcome Outcome)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(tick Tick, outcome Outcome)

func (f ReporterFunc) Report(tick Tick, outcome Outcome) { f(tick, outcome) }

// HTTPError represents a non-2XX response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Failure builds a failure outcome for err.
func Failure(started time.Time, err error) Outcome {
	return Outcome{
		Class:   ClassFailure,
		Started: started,
		Latency: time.Since(started),
		Err:     err,
	}
}

// execute runs work for tick and converts panics into failure outcomes.
func execute(ctx context.Context, work Work, tick Tick) (out Outcome) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = Failure(started, fmt.Errorf("work panicked: %v", r))
		}
	}()
	out = work.Do(ctx, tick)
	if out.Started.IsZero() {
		out.Started = started
	}
	if out.Latency <= 0 {
		out.Latency = time.Since(out.Started)
	}
	if out.Err != nil {
		out.Class = ClassFailure
	}
	return out
}
