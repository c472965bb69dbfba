package task

import (
	"fmt"
	"time"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/object"
)

// Status represents the lifecycle state of a task.
type Status string

const (
	// StatusPending means the task is waiting to be leased.
	StatusPending Status = "pending"
	// StatusRunning means a worker leased the task and is executing it.
	StatusRunning Status = "running"
	// StatusSuccess means the entrypoint returned without error.
	StatusSuccess Status = "success"
	// StatusFailure means the entrypoint failed or the task's pulse timed out.
	StatusFailure Status = "failure"
)

// Terminal reports whether s is success or failure.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusRunning, StatusSuccess, StatusFailure:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", taskq.ErrUnknownStatus, s)
}

// Action is the leasing decision returned by TakeNextTask.
type Action string

const (
	ActionRunTask Action = "run_task"
	ActionWait    Action = "wait"
	ActionStop    Action = "stop"
)

// ParseAction validates an action string.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionRunTask, ActionWait, ActionStop:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q", taskq.ErrUnknownAction, s)
}

// Task is one schedulable unit of work.
type Task struct {
	ID          int64   `json:"task_id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Level       float64 `json:"level"`
	Entrypoint  string  `json:"entrypoint"`

	ArgsID   *int64 `json:"args_id"`
	KwargsID *int64 `json:"kwargs_id"`
	ResultID *int64 `json:"ret_id"`

	Status    Status     `json:"status"`
	TakeTime  *time.Time `json:"take_time"`
	StartTime *time.Time `json:"start_time"`
	DoneTime  *time.Time `json:"done_time"`
	PulseTime *time.Time `json:"pulse_time"`

	JobID int64 `json:"job_id"`

	// Args and Kwargs are unsaved payload objects supplied at creation.
	// AddTasks persists them and fills ArgsID and KwargsID.
	Args   *object.Object `json:"args,omitempty"`
	Kwargs *object.Object `json:"kwargs,omitempty"`
}

func (t *Task) String() string {
	return fmt.Sprintf("task %d (%s, job %d, level %g, %s)", t.ID, t.Entrypoint, t.JobID, t.Level, t.Status)
}

// Option configures a Task built with New.
type Option func(*Task) error

// New builds a pending task for the given entrypoint.
func New(entrypoint string, opts ...Option) (*Task, error) {
	t := &Task{Entrypoint: entrypoint, Status: StatusPending}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// MustNew is like New but panics on error.
func MustNew(entrypoint string, opts ...Option) *Task {
	t, err := New(entrypoint, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

// WithJob sets the owning job.
func WithJob(jobID int64) Option {
	return func(t *Task) error { t.JobID = jobID; return nil }
}

// WithName sets the task name.
func WithName(name string) Option {
	return func(t *Task) error { t.Name = name; return nil }
}

// WithDescription sets the task description.
func WithDescription(d string) Option {
	return func(t *Task) error { t.Description = d; return nil }
}

// WithLevel sets the task level.
func WithLevel(level float64) Option {
	return func(t *Task) error { t.Level = level; return nil }
}

// WithArgs encodes v with the default codec as the task's arguments.
func WithArgs(v any) Option {
	return WithArgsCodec(object.DefaultCodec, v)
}

// WithArgsCodec encodes v with the named codec as the task's arguments.
func WithArgsCodec(codec string, v any) Option {
	return func(t *Task) error {
		o, err := object.New(codec, v)
		if err != nil {
			return err
		}
		t.Args = o
		return nil
	}
}

// WithKwargs encodes v with the default codec as the task's keyword
// arguments. Kwargs are decoded over the args, so fields present in both
// take the kwargs value.
func WithKwargs(v any) Option {
	return func(t *Task) error {
		o, err := object.New(object.DefaultCodec, v)
		if err != nil {
			return err
		}
		t.Kwargs = o
		return nil
	}
}

// LevelSummary is one row of the tasks status view.
type LevelSummary struct {
	Level   float64 `json:"level"`
	Name    string  `json:"name"`
	Tasks   int64   `json:"tasks"`
	Pending int64   `json:"pending"`
	Running int64   `json:"running"`
	Success int64   `json:"success"`
	Failure int64   `json:"failure"`
}
