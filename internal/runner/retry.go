package runner

import (
	"context"
	"time"
)

// RetryPolicy configures retry behavior for failed outcomes.
type RetryPolicy struct {
	MaxAttempts int                                        // total attempts including initial try
	Delay       time.Duration                              // fixed delay between retries (used if DelayFunc nil)
	ShouldRetry func(Outcome) bool                         // predicate; if nil, all failures retried
	DelayFunc   func(attempt int, out Outcome) time.Duration // dynamic backoff; attempt is 1-based
}

type retryWork struct {
	inner  Work
	policy RetryPolicy
}

// WithRetry wraps work so a failed outcome is retried within the same tick.
// The retries occupy the worker, so they count against PoolSize and may cause drops.
func WithRetry(work Work, policy RetryPolicy) Work {
	if policy.MaxAttempts <= 1 {
		return work
	}
	return &retryWork{inner: work, policy: policy}
}

func (r *retryWork) Do(ctx context.Context, tick Tick) Outcome {
	started := time.Now()
	var out Outcome
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if attempt == 1 {
				return Failure(started, err)
			}
			break
		}

		out = execute(ctx, r.inner, tick)
		if out.Success() || attempt == r.policy.MaxAttempts {
			break
		}
		if r.policy.ShouldRetry != nil && !r.policy.ShouldRetry(out) {
			break
		}

		delay := r.policy.Delay
		if r.policy.DelayFunc != nil {
			delay = r.policy.DelayFunc(attempt, out)
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return finishRetry(out, started)
			}
		}
	}
	return finishRetry(out, started)
}

// finishRetry reports the last attempt's result with latency covering every attempt.
func finishRetry(out Outcome, started time.Time) Outcome {
	out.Started = started
	out.Latency = time.Since(started)
	return out
}
