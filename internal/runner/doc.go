// Package runner is the constant-arrival-rate scheduler behind ratefire.
//
// Ticks are generated on a fixed timeline: tick n is due at start + (n-1)/rate seconds,
// whatever the previous ticks are doing. Each tick is handed to a bounded pool of
// workers. When every worker is busy the tick may wait in a FIFO queue of at most
// MaxQueuedTicks entries; when that is full too the tick is dropped and counted.
// Slow work therefore shows up as drops instead of a lower arrival rate.
//
// # Basic Usage
//
//	r, err := runner.New(runner.Options{
//		RatePerSecond: 100,
//		Duration:      10 * time.Second,
//		PoolSize:      10,
//		Work:          runner.WorkFunc(doRequest),
//	})
//	if err != nil {
//		return err // *runner.ConfigError
//	}
//	summary := r.Run(ctx)
//
// # Accounting
//
// Every generated tick ends up in exactly one bucket of the [Summary]:
// executed, dropped, or in flight when the run was cancelled.
//
// After generation stops the runner waits at most DrainTimeout for outstanding
// work. Work still running after that is abandoned and counted as dropped.
//
// # Middleware
//
// [WithRetry] retries failed outcomes within a single tick.
package runner
