package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/taskq/task"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type taskTakenEntry struct {
	name string
	hook TaskTaken
}

type taskStartedEntry struct {
	name string
	hook TaskStarted
}

type taskSucceededEntry struct {
	name string
	hook TaskSucceeded
}

type taskFailedEntry struct {
	name string
	hook TaskFailed
}

type lateReportEntry struct {
	name string
	hook LateReport
}

type tasksSweptEntry struct {
	name string
	hook TasksSwept
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register all extensions before workers start; emit methods may then be
// called concurrently.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	taskTaken     []taskTakenEntry
	taskStarted   []taskStartedEntry
	taskSucceeded []taskSucceededEntry
	taskFailed    []taskFailedEntry
	lateReport    []lateReportEntry
	tasksSwept    []tasksSweptEntry
	shutdown      []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(TaskTaken); ok {
		r.taskTaken = append(r.taskTaken, taskTakenEntry{name, h})
	}
	if h, ok := e.(TaskStarted); ok {
		r.taskStarted = append(r.taskStarted, taskStartedEntry{name, h})
	}
	if h, ok := e.(TaskSucceeded); ok {
		r.taskSucceeded = append(r.taskSucceeded, taskSucceededEntry{name, h})
	}
	if h, ok := e.(TaskFailed); ok {
		r.taskFailed = append(r.taskFailed, taskFailedEntry{name, h})
	}
	if h, ok := e.(LateReport); ok {
		r.lateReport = append(r.lateReport, lateReportEntry{name, h})
	}
	if h, ok := e.(TasksSwept); ok {
		r.tasksSwept = append(r.tasksSwept, tasksSweptEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Task event emitters
// ──────────────────────────────────────────────────

// EmitTaskTaken notifies all extensions that implement TaskTaken.
func (r *Registry) EmitTaskTaken(ctx context.Context, t *task.Task) {
	for _, e := range r.taskTaken {
		if err := e.hook.OnTaskTaken(ctx, t); err != nil {
			r.logHookError("OnTaskTaken", e.name, err)
		}
	}
}

// EmitTaskStarted notifies all extensions that implement TaskStarted.
func (r *Registry) EmitTaskStarted(ctx context.Context, t *task.Task) {
	for _, e := range r.taskStarted {
		if err := e.hook.OnTaskStarted(ctx, t); err != nil {
			r.logHookError("OnTaskStarted", e.name, err)
		}
	}
}

// EmitTaskSucceeded notifies all extensions that implement TaskSucceeded.
func (r *Registry) EmitTaskSucceeded(ctx context.Context, t *task.Task, elapsed time.Duration) {
	for _, e := range r.taskSucceeded {
		if err := e.hook.OnTaskSucceeded(ctx, t, elapsed); err != nil {
			r.logHookError("OnTaskSucceeded", e.name, err)
		}
	}
}

// EmitTaskFailed notifies all extensions that implement TaskFailed.
func (r *Registry) EmitTaskFailed(ctx context.Context, t *task.Task, taskErr error) {
	for _, e := range r.taskFailed {
		if err := e.hook.OnTaskFailed(ctx, t, taskErr); err != nil {
			r.logHookError("OnTaskFailed", e.name, err)
		}
	}
}

// EmitLateReport notifies all extensions that implement LateReport.
func (r *Registry) EmitLateReport(ctx context.Context, t *task.Task, status task.Status) {
	for _, e := range r.lateReport {
		if err := e.hook.OnLateReport(ctx, t, status); err != nil {
			r.logHookError("OnLateReport", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitTasksSwept notifies all extensions that implement TasksSwept.
func (r *Registry) EmitTasksSwept(ctx context.Context, count int64) {
	for _, e := range r.tasksSwept {
		if err := e.hook.OnTasksSwept(ctx, count); err != nil {
			r.logHookError("OnTasksSwept", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
