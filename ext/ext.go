package ext

import (
	"context"
	"time"

	"github.com/xraph/taskq/task"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// ──────────────────────────────────────────────────
// Task lifecycle hooks
// ──────────────────────────────────────────────────

// TaskTaken is called after a worker leases a task.
type TaskTaken interface {
	OnTaskTaken(ctx context.Context, t *task.Task) error
}

// TaskStarted is called when a worker begins executing a task.
type TaskStarted interface {
	OnTaskStarted(ctx context.Context, t *task.Task) error
}

// TaskSucceeded is called after a task's entrypoint returns without error.
type TaskSucceeded interface {
	OnTaskSucceeded(ctx context.Context, t *task.Task, elapsed time.Duration) error
}

// TaskFailed is called when a task fails.
type TaskFailed interface {
	OnTaskFailed(ctx context.Context, t *task.Task, err error) error
}

// LateReport is called when a worker tries to report status for a task
// that is no longer running, usually because the pulse sweep failed it.
type LateReport interface {
	OnLateReport(ctx context.Context, t *task.Task, status task.Status) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// TasksSwept is called when the pulse sweep failed at least one task.
type TasksSwept interface {
	OnTasksSwept(ctx context.Context, count int64) error
}

// Shutdown is called when a worker pool stops.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
