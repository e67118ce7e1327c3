package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	"github.com/torosent/ratefire/internal/runner"
)

const (
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

// newRetryPolicy retries transport errors, 429 and 5XX responses with jittered exponential backoff.
func newRetryPolicy(retries int) runner.RetryPolicy {
	return runner.RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: shouldRetry,
		DelayFunc: func(attempt int, _ runner.Outcome) time.Duration {
			backoff := retryBackoff(attempt)
			return backoff + jitter(backoff/2)
		},
	}
}

func shouldRetry(out runner.Outcome) bool {
	err := out.Err
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var httpErr *runner.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	return true
}

func retryBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		return maxRetryDelay
	}
	backoff := time.Duration(1<<uint(attempt-1)) * baseRetryDelay
	return min(backoff, maxRetryDelay)
}

func jitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(limit)))
}
