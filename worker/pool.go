package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/id"
	"github.com/xraph/taskq/job"
	"github.com/xraph/taskq/store"
	"github.com/xraph/taskq/task"
)

// Pool runs one or more Runners over the same scope.
type Pool struct {
	store    store.Store
	executor *Executor
	opts     *options
}

// NewPool creates a pool that executes entrypoints from registry.
func NewPool(s store.Store, registry *task.Registry, opts ...Option) *Pool {
	o := newOptions(opts)
	return &Pool{
		store:    s,
		executor: newExecutor(s, registry, o),
		opts:     o,
	}
}

// Run applies job retention, checks the level gate and then runs the
// configured number of runners until each of them returns.
//
// With concurrency zero a single runner runs in the calling goroutine and
// its error is returned as is. Otherwise every runner runs to completion
// regardless of the others; failures are logged per runner and, when
// raising is enabled, returned joined under taskq.ErrWorkersFailed.
func (p *Pool) Run(ctx context.Context, scope task.Scope) error {
	runID := id.NewRunID()
	logger := p.opts.logger.With(slog.String("run_id", runID.String()))
	defer p.opts.extensions.EmitShutdown(context.WithoutCancel(ctx))

	if p.opts.maxJobs > 0 {
		if _, err := Retain(ctx, p.store, p.opts.maxJobs, logger); err != nil {
			return err
		}
	}
	if err := CheckLevelGate(ctx, p.store, scope); err != nil {
		return err
	}

	n := p.opts.concurrency
	logger.Info("starting run",
		slog.Int("concurrency", n),
		slog.String("levels", scope.Levels.String()),
	)
	if n <= 0 {
		return newRunner(p.store, p.executor, p.opts).Run(ctx, scope)
	}

	// Runners share no cancelling context: one failure never stops the
	// others.
	var g errgroup.Group
	errs := make([]error, n)
	for i := range n {
		r := newRunner(p.store, p.executor, p.opts)
		g.Go(func() error {
			if err := r.Run(ctx, scope); err != nil {
				logger.Error("worker failed",
					slog.String("worker_id", r.ID().String()),
					slog.String("error", err.Error()),
				)
				errs[i] = fmt.Errorf("worker %s: %w", r.ID(), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := errors.Join(errs...)
	switch {
	case failed == nil:
		return nil
	case p.opts.raiseException:
		return fmt.Errorf("%w: %w", taskq.ErrWorkersFailed, failed)
	default:
		return ctx.Err()
	}
}

// Retain deletes every job except the n most recent ones.
func Retain(ctx context.Context, jobs job.Store, n int, logger *slog.Logger) (int64, error) {
	deleted, err := jobs.KeepLatestJobs(ctx, n)
	if err != nil {
		return 0, fmt.Errorf("keep latest %d jobs: %w", n, err)
	}
	if deleted > 0 && logger != nil {
		logger.Info("deleted old jobs", slog.Int64("deleted", deleted), slog.Int("kept", n))
	}
	return deleted, nil
}
