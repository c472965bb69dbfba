package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/task"
)

// TakeNextTask decides, inside one exclusive transaction, whether the
// caller should run a task, wait or stop, and on run_task claims the
// lowest pending task of the lowest pending level in scope.
//
// Candidates are ordered by job_id then task_id. The claim only succeeds
// while the row is still pending, so two callers never lease the same task.
func (s *Store) TakeNextTask(ctx context.Context, scope task.Scope) (task.Action, *task.Task, error) {
	var (
		action = task.ActionWait
		leased *task.Task
	)

	err := s.exclusive(ctx, func(q querier) error {
		where, args := levelFilter(scope)

		minPending, err := s.minLevel(ctx, q, task.StatusPending, where, args)
		if err != nil {
			return err
		}
		minRunning, err := s.minLevel(ctx, q, task.StatusRunning, where, args)
		if err != nil {
			return err
		}

		d := task.Decide(minPending, minRunning)
		if d.Action != task.ActionRunTask {
			action = d.Action
			return nil
		}
		if d.Anomalous {
			s.logger.Warn("pending level below running level",
				slog.Float64("pending_level", *minPending),
				slog.Float64("running_level", *minRunning),
			)
		}

		query := s.rebind("SELECT "+taskColumns+" FROM tasks WHERE status = ? AND level = ?"+where+
			" ORDER BY job_id ASC, task_id ASC LIMIT 1") + s.d.LockClause()
		candArgs := append([]any{string(task.StatusPending), *minPending}, args...)
		t, err := s.scanTask(q.QueryRowContext(ctx, query, candArgs...))
		if err != nil {
			if isNoRows(err) {
				// Every candidate is locked by a concurrent lease.
				return nil
			}
			return err
		}

		now := s.utcNow()
		claim := s.rebind("UPDATE tasks SET status = ?, take_time = ?, pulse_time = ? WHERE task_id = ? AND status = ?")
		res, err := q.ExecContext(ctx, claim, string(task.StatusRunning),
			s.d.EncodeTime(now), s.d.EncodeTime(now), t.ID, string(task.StatusPending))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		t.Status = task.StatusRunning
		t.TakeTime = &now
		pulse := now
		t.PulseTime = &pulse
		action, leased = task.ActionRunTask, t
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("%w: take next task: %w", taskq.ErrTransactionFailed, err)
	}
	return action, leased, nil
}

func (s *Store) minLevel(ctx context.Context, q querier, status task.Status, where string, args []any) (*float64, error) {
	query := s.rebind("SELECT MIN(level) FROM tasks WHERE status = ?" + where)
	var lvl sql.NullFloat64
	if err := q.QueryRowContext(ctx, query, append([]any{string(status)}, args...)...).Scan(&lvl); err != nil {
		return nil, err
	}
	if !lvl.Valid {
		return nil, nil
	}
	v := lvl.Float64
	return &v, nil
}

// FailPulseTimeoutTasks fails every running task whose last pulse is older
// than timeout. A non-positive timeout disables the sweep.
func (s *Store) FailPulseTimeoutTasks(ctx context.Context, timeout time.Duration) (int64, error) {
	if timeout <= 0 {
		return 0, nil
	}
	now := s.utcNow()
	cutoff := now.Add(-timeout)

	query := s.rebind("UPDATE tasks SET status = ?, done_time = ? WHERE status = ? AND pulse_time < ?")
	res, err := s.db.ExecContext(ctx, query, string(task.StatusFailure), s.d.EncodeTime(now),
		string(task.StatusRunning), s.d.EncodeTime(cutoff))
	if err != nil {
		return 0, s.wrap("fail pulse timeout tasks", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Warn("pulse timeout tasks failed",
			slog.Int64("count", n),
			slog.Duration("timeout", timeout),
		)
	}
	return n, nil
}

// CountPendingTasksBelowLevel counts pending tasks with level < level,
// optionally restricted to one job.
func (s *Store) CountPendingTasksBelowLevel(ctx context.Context, jobID *int64, level float64) (int64, error) {
	query := "SELECT COUNT(*) FROM tasks WHERE status = ? AND level < ?"
	args := []any{string(task.StatusPending), level}
	if jobID != nil {
		query += " AND job_id = ?"
		args = append(args, *jobID)
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&n); err != nil {
		return 0, s.wrap("count pending tasks", err)
	}
	return n, nil
}
