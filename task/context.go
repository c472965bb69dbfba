package task

import (
	"context"
	"fmt"

	"github.com/xraph/taskq"
)

type ctxKey int

const (
	taskKey ctxKey = iota
	stateKey
)

// WithTask returns a context carrying the task being executed.
func WithTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, taskKey, t)
}

// FromContext returns the task being executed, if any.
func FromContext(ctx context.Context) (*Task, bool) {
	t, ok := ctx.Value(taskKey).(*Task)
	return t, ok
}

// WithState returns a context carrying resolved state kwargs.
func WithState(ctx context.Context, values map[string]any) context.Context {
	return context.WithValue(ctx, stateKey, values)
}

// State returns the state kwarg name resolved for the current task.
// The handler must have declared it with WithStateKWArgs.
func State[T any](ctx context.Context, name string) (T, error) {
	var zero T
	values, _ := ctx.Value(stateKey).(map[string]any)
	v, ok := values[name]
	if !ok {
		return zero, fmt.Errorf("%w: %q", taskq.ErrStateKWUndefined, name)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("task: state kwarg %q is %T, not %T", name, v, zero)
	}
	return typed, nil
}
