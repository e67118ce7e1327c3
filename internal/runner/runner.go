package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Summary captures the counters of a finished run.
// TicksExecuted + TicksDropped + TicksInFlightAtCancel always equals TicksGenerated.
type Summary struct {
	TicksGenerated        int64         `json:"ticks_generated" yaml:"ticks_generated"`
	TicksExecuted         int64         `json:"ticks_executed" yaml:"ticks_executed"`
	TicksDropped          int64         `json:"ticks_dropped" yaml:"ticks_dropped"`
	TicksInFlightAtCancel int64         `json:"ticks_in_flight_at_cancel" yaml:"ticks_in_flight_at_cancel"`
	Successes             int64         `json:"successes" yaml:"successes"`
	Failures              int64         `json:"failures" yaml:"failures"`
	Cancelled             bool          `json:"cancelled" yaml:"cancelled"`
	Duration              time.Duration `json:"-" yaml:"-"`
	DurationMs            float64       `json:"duration_ms" yaml:"duration_ms"`
}

// Snapshot is a live view of the counters of the current run.
type Snapshot struct {
	Generated int64
	Executed  int64
	Dropped   int64
	Queued    int64
	InFlight  int64
	Successes int64
	Failures  int64
}

// Runner generates ticks at a constant arrival rate and hands them to a bounded worker pool.
// Ticks that find every worker busy and the queue full are dropped, never awaited, so slow
// work cannot pull the arrival rate down.
type Runner struct {
	opt   Options
	state atomic.Pointer[runState]
}

type runState struct {
	// slots bounds admitted ticks to PoolSize+MaxQueuedTicks. A slot is held from dispatch
	// until the work unit finishes, so ticks only carries ticks that already own one.
	slots     chan struct{}
	ticks     chan Tick
	generated atomic.Int64
	executed  atomic.Int64
	dropped   atomic.Int64
	inFlight  atomic.Int64
	successes atomic.Int64
	failures  atomic.Int64
	dropLog   rate.Sometimes

	// mu guards sealed. Workers record outcomes under the read lock; seal takes the write
	// lock so nothing is recorded once the summary is being read.
	mu     sync.RWMutex
	sealed bool
}

// New validates opt and returns a Runner. A *ConfigError is returned for invalid options.
func New(opt Options) (*Runner, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	opt.normalize()
	return &Runner{opt: opt}, nil
}

// Run validates opt and executes a single run.
func Run(ctx context.Context, opt Options) (Summary, error) {
	r, err := New(opt)
	if err != nil {
		return Summary{}, err
	}
	return r.Run(ctx), nil
}

// Options returns the normalized options the runner was built with.
func (r *Runner) Options() Options { return r.opt }

// Snapshot returns the live counters of the current or last run.
func (r *Runner) Snapshot() Snapshot {
	st := r.state.Load()
	if st == nil {
		return Snapshot{}
	}
	return Snapshot{
		Generated: st.generated.Load(),
		Executed:  st.executed.Load(),
		Dropped:   st.dropped.Load(),
		Queued:    int64(len(st.ticks)),
		InFlight:  st.inFlight.Load(),
		Successes: st.successes.Load(),
		Failures:  st.failures.Load(),
	}
}

// Run generates ticks for the configured duration, then drains outstanding work for at most
// DrainTimeout. Cancelling ctx stops tick generation immediately.
func (r *Runner) Run(ctx context.Context) Summary {
	if ctx == nil {
		ctx = context.Background()
	}
	capacity := r.opt.PoolSize + r.opt.MaxQueuedTicks
	st := &runState{
		slots:   make(chan struct{}, capacity),
		ticks:   make(chan Tick, capacity),
		dropLog: rate.Sometimes{First: 1, Interval: time.Second},
	}
	r.state.Store(st)

	log := r.opt.Logger.WithFields(logrus.Fields{
		"rate":       r.opt.RatePerSecond,
		"pool_size":  r.opt.PoolSize,
		"max_queued": r.opt.MaxQueuedTicks,
	})

	// Work gets its own context so unfinished units can be abandoned after the drain.
	workCtx, abandon := context.WithCancel(ctx)
	defer abandon()

	var wg sync.WaitGroup
	wg.Add(r.opt.PoolSize)
	for i := 0; i < r.opt.PoolSize; i++ {
		go func() {
			defer wg.Done()
			r.worker(workCtx, st)
		}()
	}

	start := time.Now()
	log.WithField("duration", r.opt.Duration).Debug("tick generation started")
	cancelled := r.generate(ctx, st, start, log)
	close(st.ticks)
	log.WithField("generated", st.generated.Load()).Debug("tick generation stopped")

	if cancelled {
		abandon()
		discardQueued(st)
		waitTimeout(&wg, r.opt.DrainTimeout)
	} else if !waitTimeout(&wg, r.opt.DrainTimeout) {
		abandon()
		discardQueued(st)
		log.WithField("drain_timeout", r.opt.DrainTimeout).Warn("drain timeout elapsed, abandoning unfinished work")
	}

	st.seal()
	return st.summary(ctx, cancelled, time.Since(start))
}

// generate emits ticks until the duration is exhausted. It reports whether ctx cut it short.
func (r *Runner) generate(ctx context.Context, st *runState, start time.Time, log logrus.FieldLogger) bool {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for seq := int64(1); ; seq++ {
		offset := r.opt.offset(seq)
		if offset >= r.opt.Duration {
			return false
		}
		due := start.Add(offset)
		if wait := time.Until(due); wait > 0 {
			timer.Reset(wait)
			select {
			case <-ctx.Done():
				return true
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			// Overdue ticks fire back to back, but cancellation still wins.
			return true
		}

		tick := Tick{Seq: seq, Scheduled: due}
		st.generated.Add(1)
		select {
		case st.slots <- struct{}{}:
			// Holding a slot guarantees room in ticks.
			st.ticks <- tick
			log.WithField("seq", seq).Debug("tick dispatched")
		default:
			st.dropped.Add(1)
			st.dropLog.Do(func() {
				log.WithFields(logrus.Fields{
					"seq":     seq,
					"dropped": st.dropped.Load(),
				}).Warn("worker pool saturated, dropping ticks")
			})
		}
	}
}

func (r *Runner) worker(ctx context.Context, st *runState) {
	for tick := range st.ticks {
		r.handle(ctx, st, tick)
		<-st.slots
	}
}

func (r *Runner) handle(ctx context.Context, st *runState, tick Tick) {
	if ctx.Err() != nil {
		st.dropped.Add(1)
		return
	}

	st.inFlight.Add(1)
	out := execute(ctx, r.opt.Work, tick)
	st.inFlight.Add(-1)

	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.sealed || ctx.Err() != nil {
		// Finished after cancellation or abandonment; accounted for in the summary.
		return
	}

	st.executed.Add(1)
	if out.Success() {
		st.successes.Add(1)
	} else {
		st.failures.Add(1)
	}
	if r.opt.Reporter != nil {
		r.opt.Reporter.Report(tick, out)
	}
}

// seal waits for outcomes being recorded and stops any further recording.
func (st *runState) seal() {
	st.mu.Lock()
	st.sealed = true
	st.mu.Unlock()
}

func (st *runState) summary(ctx context.Context, cancelled bool, elapsed time.Duration) Summary {
	executed := st.executed.Load()
	dropped := st.dropped.Load()
	generated := st.generated.Load()

	s := Summary{
		TicksGenerated: generated,
		TicksExecuted:  executed,
		Successes:      st.successes.Load(),
		Failures:       st.failures.Load(),
		Duration:       elapsed,
		DurationMs:     float64(elapsed) / float64(time.Millisecond),
	}

	rest := generated - executed - dropped
	if rest < 0 {
		rest = 0
	}
	if rest > 0 && ctx.Err() != nil {
		cancelled = true
	}
	s.Cancelled = cancelled
	if cancelled {
		s.TicksDropped = dropped
		s.TicksInFlightAtCancel = rest
	} else {
		// Work still running after the drain timeout is counted as dropped.
		s.TicksDropped = dropped + rest
	}
	return s
}

func discardQueued(st *runState) {
	for range st.ticks {
		st.dropped.Add(1)
		<-st.slots
	}
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
