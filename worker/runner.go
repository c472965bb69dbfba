package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/id"
	"github.com/xraph/taskq/store"
	"github.com/xraph/taskq/task"
)

// Runner is one PULL/WAIT/RUN/STOP loop over a scope.
type Runner struct {
	id       id.ID
	store    store.Store
	executor *Executor
	opts     *options
	logger   *slog.Logger

	// sweeps throttles the pulse sweep to one per pull interval.
	sweeps *rate.Limiter
}

// NewRunner creates a Runner that executes tasks with executor.
func NewRunner(s store.Store, executor *Executor, opts ...Option) *Runner {
	return newRunner(s, executor, newOptions(opts))
}

func newRunner(s store.Store, executor *Executor, o *options) *Runner {
	wid := id.NewWorkerID()
	limit := rate.Inf
	if o.pullInterval > 0 {
		limit = rate.Every(o.pullInterval)
	}
	return &Runner{
		id:       wid,
		store:    s,
		executor: executor,
		opts:     o,
		logger:   o.logger.With(slog.String("worker_id", wid.String())),
		sweeps:   rate.NewLimiter(limit, 1),
	}
}

// ID returns the runner's identifier.
func (r *Runner) ID() id.ID { return r.id }

// Run loops until the store answers stop, the context ends, the wait
// timeout expires or, with raising enabled, a task fails. Storage errors
// end the loop.
func (r *Runner) Run(ctx context.Context, scope task.Scope) error {
	r.logger.Info("task pulling loop started", slog.String("levels", scope.Levels.String()))

	lastRun := time.Now()
	waits := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := r.sweep(ctx); err != nil {
			return err
		}

		action, t, err := r.store.TakeNextTask(ctx, scope)
		if err != nil {
			return fmt.Errorf("take next task: %w", err)
		}

		switch action {
		case task.ActionRunTask:
			waits = 0
			lastRun = time.Now()
			if err := r.executor.Execute(ctx, t); err != nil {
				return err
			}
			continue
		case task.ActionStop:
			if !r.opts.runForever {
				r.logger.Info("no tasks left, stopping")
				return nil
			}
		case task.ActionWait:
		default:
			return fmt.Errorf("%w: %q", taskq.ErrUnknownAction, action)
		}

		if timeout := r.opts.waitTimeout; timeout > 0 && time.Since(lastRun) > timeout {
			return fmt.Errorf("%w: waited %s", taskq.ErrWaitTimeout, timeout)
		}

		waits++
		delay := r.opts.backoff.Delay(waits)
		r.logger.Debug("waiting before next pull", slog.Duration("delay", delay))
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (r *Runner) sweep(ctx context.Context) error {
	if !r.opts.failPulseTimeout || r.opts.pulseTimeout <= 0 || !r.sweeps.Allow() {
		return nil
	}
	n, err := r.store.FailPulseTimeoutTasks(ctx, r.opts.pulseTimeout)
	if err != nil {
		return fmt.Errorf("fail pulse timeout tasks: %w", err)
	}
	if n > 0 {
		r.logger.Warn("failed tasks with stale pulse",
			slog.Int64("count", n),
			slog.Duration("pulse_timeout", r.opts.pulseTimeout),
		)
		r.opts.extensions.EmitTasksSwept(ctx, n)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
