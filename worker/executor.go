package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/middleware"
	"github.com/xraph/taskq/object"
	"github.com/xraph/taskq/statekw"
	"github.com/xraph/taskq/store"
	"github.com/xraph/taskq/task"
)

// Executor runs one leased task: it resolves the entrypoint and its inputs,
// executes the handler through middleware while a Monitor keeps the pulse
// fresh, stores the result and reports the final status.
type Executor struct {
	store    store.Store
	registry *task.Registry
	state    *statekw.Cache
	mw       middleware.Middleware
	opts     *options
}

// NewExecutor creates an Executor. It is safe for concurrent use by
// several runners.
func NewExecutor(s store.Store, registry *task.Registry, opts ...Option) *Executor {
	return newExecutor(s, registry, newOptions(opts))
}

func newExecutor(s store.Store, registry *task.Registry, o *options) *Executor {
	mws := append([]middleware.Middleware{middleware.Recover(o.logger)}, o.middleware...)
	return &Executor{
		store:    s,
		registry: registry,
		state:    statekw.NewCache(s, s, registry, o.logger),
		mw:       middleware.Chain(mws...),
		opts:     o,
	}
}

// Execute runs t, which must already be leased (running). Task failures
// are reported to the store and logged; they are returned only when
// raising is enabled. Storage errors while reporting are always returned.
//
// The monitor pulses from the moment inputs start loading, so slow state
// kwarg initializers are covered too.
func (e *Executor) Execute(ctx context.Context, t *task.Task) error {
	ext := e.opts.extensions
	logger := e.opts.logger.With(
		slog.Int64("task_id", t.ID),
		slog.Int64("job_id", t.JobID),
		slog.String("entrypoint", t.Entrypoint),
	)

	ext.EmitTaskTaken(ctx, t)
	logger.Info("running task", slog.Float64("level", t.Level))

	if t.Entrypoint == taskq.SkipEntrypoint {
		applied, err := e.report(ctx, t, task.StatusSuccess, logger)
		if err != nil {
			return err
		}
		if applied {
			ext.EmitTaskSucceeded(ctx, t, 0)
		}
		return nil
	}

	mon := StartMonitor(ctx, e.store, t.ID, e.opts.pulseInterval, e.opts.now, e.opts.logger)
	defer mon.Stop()
	fail := func(err error) error {
		mon.Stop()
		return e.fail(ctx, t, err, logger)
	}

	ep, err := e.registry.Lookup(t.Entrypoint)
	if err != nil {
		return fail(err)
	}
	call, err := e.loadCall(ctx, t)
	if err != nil {
		return fail(err)
	}
	state, err := e.state.Resolve(ctx, t.JobID, ep.Opts.StateKWArgs)
	if err != nil {
		return fail(err)
	}

	startTime := e.opts.now()
	if err := e.store.SetTaskStartTime(ctx, t.ID, startTime); err != nil {
		return fmt.Errorf("set start time of task %d: %w", t.ID, err)
	}
	t.StartTime = &startTime
	ext.EmitTaskStarted(ctx, t)

	start := time.Now()
	result, runErr := e.run(ctx, t, ep, call, state)
	elapsed := time.Since(start)

	if runErr == nil && result != nil {
		runErr = e.storeResult(ctx, t, ep, result)
	}
	if runErr != nil {
		return fail(runErr)
	}

	mon.Stop()
	applied, err := e.report(ctx, t, task.StatusSuccess, logger)
	if err != nil {
		return err
	}
	if applied {
		ext.EmitTaskSucceeded(ctx, t, elapsed)
		logger.Info("task succeeded", slog.Duration("elapsed", elapsed))
	}
	return nil
}

// run executes the middleware chain and the handler.
func (e *Executor) run(ctx context.Context, t *task.Task, ep *task.Entrypoint, call *task.Call, state map[string]any) (any, error) {
	call.Task = t
	hctx := task.WithState(task.WithTask(ctx, t), state)

	var result any
	err := e.mw(hctx, t, func(ctx context.Context) error {
		var err error
		result, err = ep.Handler(ctx, call)
		return err
	})
	return result, err
}

func (e *Executor) loadCall(ctx context.Context, t *task.Task) (*task.Call, error) {
	call := &task.Call{}
	if t.ArgsID != nil {
		o, err := e.store.GetObject(ctx, *t.ArgsID)
		if err != nil {
			return nil, fmt.Errorf("load args: %w", err)
		}
		call.Args = o
	}
	if t.KwargsID != nil {
		o, err := e.store.GetObject(ctx, *t.KwargsID)
		if err != nil {
			return nil, fmt.Errorf("load kwargs: %w", err)
		}
		call.Kwargs = o
	}
	return call, nil
}

func (e *Executor) storeResult(ctx context.Context, t *task.Task, ep *task.Entrypoint, result any) error {
	o, err := object.New(ep.Opts.ResultCodec, result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := e.store.SetTaskResult(ctx, t.ID, o); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	t.ResultID = &o.ID
	return nil
}

// fail reports failure for t and notifies extensions. taskErr is returned
// only when raising is enabled.
func (e *Executor) fail(ctx context.Context, t *task.Task, taskErr error, logger *slog.Logger) error {
	applied, err := e.report(ctx, t, task.StatusFailure, logger)
	if err != nil {
		return errors.Join(taskErr, err)
	}
	if applied {
		e.opts.extensions.EmitTaskFailed(ctx, t, taskErr)
	}

	if e.opts.raiseException {
		logger.Warn("task failed", slog.String("error", taskErr.Error()))
		return fmt.Errorf("task %d (%s): %w", t.ID, t.Entrypoint, taskErr)
	}
	logger.Warn("task failed, continuing", slog.String("error", taskErr.Error()))
	return nil
}

// report writes the final status and reports whether it was applied. A
// task that already left running, for example because the sweep failed
// it, keeps its stored status; the late report is logged and announced
// but is not an error, and the outcome hooks do not fire for it.
func (e *Executor) report(ctx context.Context, t *task.Task, status task.Status, logger *slog.Logger) (bool, error) {
	// Report even when ctx was cancelled mid-task.
	ctx = context.WithoutCancel(ctx)

	at := e.opts.now()
	err := e.store.SetTaskStatus(ctx, t.ID, status, at)
	switch {
	case err == nil:
		change, _ := task.StatusChangeFor(status, at)
		change.Apply(t)
		return true, nil
	case errors.Is(err, taskq.ErrTaskNotRunning):
		logger.Warn("status report rejected, task is no longer running",
			slog.String("status", string(status)),
		)
		e.opts.extensions.EmitLateReport(ctx, t, status)
		return false, nil
	default:
		return false, fmt.Errorf("report %s for task %d: %w", status, t.ID, err)
	}
}
