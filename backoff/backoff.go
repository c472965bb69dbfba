// Package backoff computes how long an idle runner sleeps before pulling
// again. A runner that is told to wait sleeps Delay(n), where n counts the
// consecutive waits since the last task it ran, so an idle worker can slow
// its polling while a busy one keeps the plain pull interval.
//
// Strategies are stateless and safe for concurrent use.
package backoff

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/xraph/taskq"
)

// Strategy computes the delay before the next pull.
type Strategy interface {
	// Delay returns the sleep before pull attempt n (1-indexed). Attempt 1
	// is the first wait after a task ran or the loop started.
	Delay(attempt int) time.Duration
}

// Func adapts a plain function to Strategy.
type Func func(attempt int) time.Duration

// Delay calls f.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// Strategy kinds accepted by New.
const (
	KindConstant    = "constant"
	KindLinear      = "linear"
	KindExponential = "exponential"
	KindJitter      = "jitter"
)

// DefaultPullInterval is the wait between pulls when nothing else is
// configured.
const DefaultPullInterval = 200 * time.Millisecond

// DefaultMaxDelay caps growing strategies built without an explicit cap.
const DefaultMaxDelay = 30 * time.Second

// Kinds lists the names New accepts.
func Kinds() []string {
	return []string{KindConstant, KindLinear, KindExponential, KindJitter}
}

// New builds the strategy named kind. interval is the first delay and
// maxDelay caps growth; zero means DefaultMaxDelay. An empty kind is
// constant.
func New(kind string, interval, maxDelay time.Duration) (Strategy, error) {
	if interval < 0 || maxDelay < 0 {
		return nil, fmt.Errorf("%w: backoff durations must not be negative", taskq.ErrInvalidConfig)
	}
	if maxDelay == 0 {
		maxDelay = DefaultMaxDelay
	}
	maxDelay = max(maxDelay, interval)

	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindConstant:
		return Constant(interval), nil
	case KindLinear:
		return Linear(interval, maxDelay), nil
	case KindExponential:
		return Exponential(interval, maxDelay), nil
	case KindJitter:
		return Jitter(interval, maxDelay), nil
	}
	return nil, fmt.Errorf("%w: unknown backoff %q (supported: %s)",
		taskq.ErrInvalidConfig, kind, strings.Join(Kinds(), ", "))
}

// Constant always waits interval.
func Constant(interval time.Duration) Strategy {
	return Func(func(int) time.Duration { return interval })
}

// Linear waits interval * attempt, capped at maxDelay.
func Linear(interval, maxDelay time.Duration) Strategy {
	return Func(func(attempt int) time.Duration {
		attempt = max(attempt, 1)
		if interval > 0 && time.Duration(attempt) > maxDelay/interval {
			return maxDelay
		}
		return interval * time.Duration(attempt)
	})
}

// Exponential doubles the wait each attempt starting at interval, capped
// at maxDelay.
func Exponential(interval, maxDelay time.Duration) Strategy {
	return Func(func(attempt int) time.Duration {
		return doubled(interval, maxDelay, attempt)
	})
}

// Jitter is Exponential with equal jitter: the wait is drawn from
// [d/2, d] where d is the exponential delay. Idle workers sharing a store
// drift apart instead of pulling in lockstep, and never spin at zero.
func Jitter(interval, maxDelay time.Duration) Strategy {
	return Func(func(attempt int) time.Duration {
		d := doubled(interval, maxDelay, attempt)
		half := d / 2
		return half + time.Duration(rand.Int64N(int64(d-half)+1)) //nolint:gosec // jitter needs no crypto rand
	})
}

// doubled returns interval * 2^(attempt-1) capped at maxDelay without
// overflowing for large attempt counts.
func doubled(interval, maxDelay time.Duration, attempt int) time.Duration {
	if interval <= 0 {
		return 0
	}
	d := interval
	for i := 1; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	return min(d, maxDelay)
}
