package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/task"
)

// Monitor refreshes the pulse of one running task until stopped.
type Monitor struct {
	stopCh chan struct{}
	done   chan struct{}
	once   sync.Once
}

// StartMonitor starts pulsing taskID every interval. A non-positive
// interval starts nothing and Stop returns immediately. The monitor gives
// up on its own once the store reports the task is no longer running.
func StartMonitor(ctx context.Context, s task.Store, taskID int64, interval time.Duration, now func() time.Time, logger *slog.Logger) *Monitor {
	m := &Monitor{stopCh: make(chan struct{}), done: make(chan struct{})}
	if interval <= 0 {
		close(m.done)
		return m
	}
	// The pulse must keep flowing while the handler runs even if the
	// caller's context is cancelled; only Stop ends it.
	ctx = context.WithoutCancel(ctx)
	go m.loop(ctx, s, taskID, interval, now, logger)
	return m
}

func (m *Monitor) loop(ctx context.Context, s task.Store, taskID int64, interval time.Duration, now func() time.Time, logger *slog.Logger) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			err := s.SetTaskStatus(ctx, taskID, task.StatusRunning, now())
			switch {
			case err == nil:
			case errors.Is(err, taskq.ErrTaskNotRunning):
				logger.Warn("pulse rejected, task is no longer running",
					slog.Int64("task_id", taskID),
				)
				return
			default:
				logger.Warn("pulse failed",
					slog.Int64("task_id", taskID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Stop ends the monitor and waits for its goroutine. It is safe to call
// more than once.
func (m *Monitor) Stop() {
	m.once.Do(func() { close(m.stopCh) })
	<-m.done
}
