package runner

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Options configure the Runner. They are copied by New and never mutated afterwards.
type Options struct {
	RatePerSecond  int           // ticks started per second (required, > 0)
	Duration       time.Duration // how long ticks are generated (required, > 0)
	PoolSize       int           // max concurrently executing work units (required, > 0)
	MaxQueuedTicks int           // ticks allowed to wait for a free worker (0 disables queueing)
	DrainTimeout   time.Duration // bound on post-run drain (0 means interval × PoolSize)
	Work           Work          // unit of work started once per dispatched tick (required)
	Reporter       Reporter      // optional, receives every executed outcome
	Logger         logrus.FieldLogger
}

// ConfigError reports every violated schedule invariant. It is returned before any tick runs.
type ConfigError struct {
	Issues []string
}

func (e *ConfigError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid schedule config"
	}
	return fmt.Sprintf("invalid schedule config: %s", strings.Join(e.Issues, "; "))
}

// Validate checks the schedule invariants.
func (o Options) Validate() error {
	var issues []string
	if o.RatePerSecond <= 0 {
		issues = append(issues, fmt.Sprintf("rate must be > 0, got %d", o.RatePerSecond))
	}
	if o.Duration <= 0 {
		issues = append(issues, fmt.Sprintf("duration must be > 0, got %s", o.Duration))
	}
	if o.PoolSize <= 0 {
		issues = append(issues, fmt.Sprintf("pool size must be > 0, got %d", o.PoolSize))
	}
	if o.MaxQueuedTicks < 0 {
		issues = append(issues, fmt.Sprintf("max queued ticks must be >= 0, got %d", o.MaxQueuedTicks))
	}
	if o.DrainTimeout < 0 {
		issues = append(issues, fmt.Sprintf("drain timeout must be >= 0, got %s", o.DrainTimeout))
	}
	if o.Work == nil {
		issues = append(issues, "work is required")
	}
	if len(issues) > 0 {
		return &ConfigError{Issues: issues}
	}
	return nil
}

// Interval is the spacing between consecutive ticks.
func (o Options) Interval() time.Duration {
	if o.RatePerSecond <= 0 {
		return 0
	}
	return time.Second / time.Duration(o.RatePerSecond)
}

func (o *Options) normalize() {
	if o.DrainTimeout == 0 {
		o.DrainTimeout = o.Interval() * time.Duration(o.PoolSize)
	}
	if o.Logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		o.Logger = discard
	}
}

// offset returns when tick seq (1-based) is due relative to the run start.
// It multiplies instead of accumulating intervals so fractional spacing never drifts.
func (o Options) offset(seq int64) time.Duration {
	return time.Duration((seq - 1) * int64(time.Second) / int64(o.RatePerSecond))
}
