package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/taskq/task"
)

// Timeout returns middleware that enforces an execution deadline on every
// task. When the deadline is exceeded the context is cancelled and the
// handler should return context.DeadlineExceeded. A non-positive d
// disables the deadline.
func Timeout(d time.Duration, logger *slog.Logger) Middleware {
	return func(ctx context.Context, t *task.Task, next Handler) error {
		if d > 0 {
			logger.Debug("task timeout set",
				slog.Int64("task_id", t.ID),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
