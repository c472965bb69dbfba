package task

import (
	"context"
	"time"

	"github.com/xraph/taskq/object"
)

// ListOpts controls filtering and pagination for task list queries.
type ListOpts struct {
	// JobID filters by owning job. Nil means all jobs.
	JobID *int64
	// Status filters by status. Empty means all statuses.
	Status Status
	// Limit is the maximum number of tasks to return. Zero means no limit.
	Limit int
	// Offset is the number of tasks to skip.
	Offset int
}

// Store defines the persistence contract for tasks, including the leasing
// engine.
type Store interface {
	// AddTasks inserts tasks in one transaction, persisting inline Args and
	// Kwargs objects first. IDs are assigned in place. Tasks without an
	// explicit status are stored as pending.
	AddTasks(ctx context.Context, tasks ...*Task) error

	// GetTask retrieves a task by ID.
	GetTask(ctx context.Context, taskID int64) (*Task, error)

	// ListTasks returns tasks ordered by job ID then task ID.
	ListTasks(ctx context.Context, opts ListOpts) ([]*Task, error)

	// UpdateTask overwrites every mutable column of an existing task.
	UpdateTask(ctx context.Context, t *Task) error

	// DeleteTask removes a task by ID.
	DeleteTask(ctx context.Context, taskID int64) error

	// TakeNextTask leases the next task in scope under an exclusive
	// transaction. On ActionRunTask the returned task is already running
	// with take and pulse times set; otherwise the task is nil.
	TakeNextTask(ctx context.Context, scope Scope) (Action, *Task, error)

	// FailPulseTimeoutTasks fails every running task whose pulse is older
	// than timeout and returns how many were failed. A non-positive
	// timeout does nothing.
	FailPulseTimeoutTasks(ctx context.Context, timeout time.Duration) (int64, error)

	// CountPendingTasksBelowLevel counts pending tasks with level strictly
	// below level, optionally within one job.
	CountPendingTasksBelowLevel(ctx context.Context, jobID *int64, level float64) (int64, error)

	// SetTaskStartTime records when execution of a leased task began.
	SetTaskStartTime(ctx context.Context, taskID int64, at time.Time) error

	// SetTaskStatus applies StatusChangeFor(status, at) to a running task.
	// It returns taskq.ErrTaskNotRunning if the task left the running
	// status, for example because the pulse sweep failed it.
	SetTaskStatus(ctx context.Context, taskID int64, status Status, at time.Time) error

	// SetTaskResult persists o and links it as the task's return value.
	SetTaskResult(ctx context.Context, taskID int64, o *object.Object) error

	// TasksStatus returns task counts grouped by level and name.
	TasksStatus(ctx context.Context, jobID *int64) ([]*LevelSummary, error)
}
