package worker

import (
	"log/slog"
	"time"

	"github.com/xraph/taskq/backoff"
	"github.com/xraph/taskq/ext"
	"github.com/xraph/taskq/middleware"
)

// Defaults applied by NewPool, NewRunner and NewExecutor.
const (
	DefaultPulseInterval = 200 * time.Millisecond
	DefaultPulseTimeout  = 5 * time.Minute
)

type options struct {
	logger      *slog.Logger
	extensions  *ext.Registry
	middleware  []middleware.Middleware
	backoff     backoff.Strategy
	concurrency int
	maxJobs     int

	pullInterval     time.Duration
	waitTimeout      time.Duration
	runForever       bool
	raiseException   bool
	failPulseTimeout bool

	pulseInterval time.Duration
	pulseTimeout  time.Duration

	now func() time.Time
}

func newOptions(opts []Option) *options {
	o := &options{
		pullInterval:     backoff.DefaultPullInterval,
		failPulseTimeout: true,
		pulseInterval:    DefaultPulseInterval,
		pulseTimeout:     DefaultPulseTimeout,
		now:              func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.extensions == nil {
		o.extensions = ext.NewRegistry(o.logger)
	}
	if o.backoff == nil {
		o.backoff = backoff.Constant(o.pullInterval)
	}
	return o
}

// Option configures a Pool, Runner or Executor.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithExtensions sets the lifecycle extension registry.
func WithExtensions(r *ext.Registry) Option {
	return func(o *options) { o.extensions = r }
}

// WithMiddleware appends task execution middleware. The executor always
// wraps the chain in middleware.Recover.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middleware = append(o.middleware, mws...) }
}

// WithBackoff sets the delay strategy used while waiting. The default is a
// constant pull interval.
func WithBackoff(s backoff.Strategy) Option {
	return func(o *options) { o.backoff = s }
}

// WithPullInterval sets the wait between pulls and the minimum spacing
// between pulse sweeps. It also resets the backoff to a constant interval,
// so apply WithBackoff after it to override.
func WithPullInterval(d time.Duration) Option {
	return func(o *options) {
		o.pullInterval = d
		o.backoff = backoff.Constant(d)
	}
}

// WithWaitTimeout fails a runner with taskq.ErrWaitTimeout once it has
// waited d without running a task. Zero disables the timeout.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) { o.waitTimeout = d }
}

// WithRunForever makes runners treat stop as wait.
func WithRunForever(v bool) Option {
	return func(o *options) { o.runForever = v }
}

// WithRaiseException returns task failures to the caller instead of
// logging them. Intended for debugging: one failing task ends the runner.
func WithRaiseException(v bool) Option {
	return func(o *options) { o.raiseException = v }
}

// WithFailPulseTimeout enables or disables the pulse sweep before pulls.
func WithFailPulseTimeout(v bool) Option {
	return func(o *options) { o.failPulseTimeout = v }
}

// WithPulseInterval sets how often a running task's pulse is refreshed.
func WithPulseInterval(d time.Duration) Option {
	return func(o *options) { o.pulseInterval = d }
}

// WithPulseTimeout sets the pulse age after which the sweep fails a running
// task. A non-positive value disables the sweep.
func WithPulseTimeout(d time.Duration) Option {
	return func(o *options) { o.pulseTimeout = d }
}

// WithConcurrency sets the number of runners a Pool starts. Zero runs a
// single runner in the calling goroutine. See ParseConcurrency.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithMaxJobs makes Pool.Run keep only the n most recent jobs before it
// starts. Zero keeps everything.
func WithMaxJobs(n int) Option {
	return func(o *options) { o.maxJobs = n }
}

// WithClock overrides the time source for start, pulse and status times.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}
