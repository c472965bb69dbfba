package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/taskq/config"
	"github.com/xraph/taskq/task"
)

// EchoArgs are the arguments of the taskq.echo entrypoint.
type EchoArgs struct {
	Message string `json:"message"`
}

// SleepArgs are the arguments of the taskq.sleep entrypoint.
type SleepArgs struct {
	Duration config.Duration `json:"duration"`
}

// echo logs the message and stores it as the task result.
func echo(ctx context.Context, args EchoArgs) (string, error) {
	attrs := []any{slog.String("message", args.Message)}
	if t, ok := task.FromContext(ctx); ok {
		attrs = append(attrs, slog.Int64("task_id", t.ID))
	}
	slog.InfoContext(ctx, "echo", attrs...)
	return args.Message, nil
}

func sleep(ctx context.Context, args SleepArgs) error {
	timer := time.NewTimer(args.Duration.Std())
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// registerBuiltins adds the entrypoints every taskq binary understands.
// Programs embedding taskq register their own in the same way.
func registerBuiltins(reg *task.Registry) {
	task.RegisterResultDefinition(reg, task.NewResultDefinition("taskq.echo", echo))
	task.RegisterDefinition(reg, task.NewDefinition("taskq.sleep", sleep))
}
