package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/taskq/task"
)

// Logging returns middleware that logs task start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		logger.Info("task started",
			slog.String("entrypoint", t.Entrypoint),
			slog.Int64("task_id", t.ID),
			slog.Int64("job_id", t.JobID),
			slog.Float64("level", t.Level),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Error("task failed",
				slog.String("entrypoint", t.Entrypoint),
				slog.Int64("task_id", t.ID),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("task completed",
				slog.String("entrypoint", t.Entrypoint),
				slog.Int64("task_id", t.ID),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
