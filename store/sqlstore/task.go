package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/object"
	"github.com/xraph/taskq/task"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanTask(r rowScanner) (*task.Task, error) {
	var (
		t                    task.Task
		status               string
		args, kwargs, result sql.NullInt64
	)
	err := r.Scan(
		&t.ID, &t.Name, &t.Description, &t.Level, &t.Entrypoint,
		&args, &kwargs, &result, &status,
		timeScanner{s.d, &t.TakeTime},
		timeScanner{s.d, &t.StartTime},
		timeScanner{s.d, &t.DoneTime},
		timeScanner{s.d, &t.PulseTime},
		&t.JobID,
	)
	if err != nil {
		return nil, err
	}
	t.ArgsID = ptrInt(args)
	t.KwargsID = ptrInt(kwargs)
	t.ResultID = ptrInt(result)
	t.Status = task.Status(status)
	return &t, nil
}

// AddTasks inserts tasks in one transaction. Inline Args and Kwargs objects
// are stored first and their IDs recorded on the task. An empty status
// defaults to pending.
func (s *Store) AddTasks(ctx context.Context, tasks ...*task.Task) error {
	for _, t := range tasks {
		if t.Entrypoint == "" {
			return fmt.Errorf("%w: task %q has no entrypoint", taskq.ErrInvalidTask, t.Name)
		}
		if t.Status == "" {
			t.Status = task.StatusPending
		} else if _, err := task.ParseStatus(string(t.Status)); err != nil {
			return err
		}
	}

	query := s.rebind(`INSERT INTO tasks (name, description, level, entrypoint, args_id, kwargs_id, ret_id,
		status, take_time, start_time, done_time, pulse_time, job_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING task_id`)

	err := s.inTx(ctx, func(q querier) error {
		for _, t := range tasks {
			if err := s.attachObject(ctx, q, t.Args, &t.ArgsID); err != nil {
				return err
			}
			if err := s.attachObject(ctx, q, t.Kwargs, &t.KwargsID); err != nil {
				return err
			}
			err := q.QueryRowContext(ctx, query,
				t.Name, t.Description, t.Level, t.Entrypoint,
				nullInt(t.ArgsID), nullInt(t.KwargsID), nullInt(t.ResultID),
				string(t.Status),
				s.nullTime(t.TakeTime), s.nullTime(t.StartTime), s.nullTime(t.DoneTime), s.nullTime(t.PulseTime),
				t.JobID,
			).Scan(&t.ID)
			if err != nil {
				if s.d.IsForeignKeyViolation(err) {
					return fmt.Errorf("%w: %d", taskq.ErrJobNotFound, t.JobID)
				}
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, taskq.ErrJobNotFound) {
			return err
		}
		return s.wrap("add tasks", err)
	}
	return nil
}

func (s *Store) attachObject(ctx context.Context, q querier, o *object.Object, dst **int64) error {
	if o == nil {
		return nil
	}
	if o.ID == 0 {
		if err := s.insertObject(ctx, q, o); err != nil {
			return err
		}
	}
	id := o.ID
	*dst = &id
	return nil
}

// GetTask loads a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID int64) (*task.Task, error) {
	return s.getTask(ctx, s.db, taskID)
}

func (s *Store) getTask(ctx context.Context, q querier, taskID int64) (*task.Task, error) {
	query := s.rebind("SELECT " + taskColumns + " FROM tasks WHERE task_id = ?")
	t, err := s.scanTask(q.QueryRowContext(ctx, query, taskID))
	if err != nil {
		if isNoRows(err) {
			return nil, taskq.ErrTaskNotFound
		}
		return nil, s.wrap("get task", err)
	}
	return t, nil
}

// ListTasks returns tasks ordered by job and ID.
func (s *Store) ListTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE 1 = 1"
	var args []any
	if opts.JobID != nil {
		query += " AND job_id = ?"
		args = append(args, *opts.JobID)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	query += " ORDER BY job_id, task_id" + s.d.LimitOffset(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.wrap("list tasks", err)
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		t, err := s.scanTask(rows)
		if err != nil {
			return nil, s.wrap("scan task", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list tasks", err)
	}
	return out, nil
}

// UpdateTask overwrites a task's descriptive fields, references, status and
// timestamps. Level and job are fixed at creation and are not written. The
// status may only move forward, see task.CanTransition.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	if _, err := task.ParseStatus(string(t.Status)); err != nil {
		return err
	}
	from := task.Predecessors(t.Status)
	args := []any{
		t.Name, t.Description, t.Entrypoint,
		nullInt(t.ArgsID), nullInt(t.KwargsID), nullInt(t.ResultID), string(t.Status),
		s.nullTime(t.TakeTime), s.nullTime(t.StartTime), s.nullTime(t.DoneTime), s.nullTime(t.PulseTime),
		t.ID,
	}
	for _, st := range from {
		args = append(args, string(st))
	}
	query := s.rebind(`UPDATE tasks SET name = ?, description = ?, entrypoint = ?,
		args_id = ?, kwargs_id = ?, ret_id = ?, status = ?,
		take_time = ?, start_time = ?, done_time = ?, pulse_time = ?
		WHERE task_id = ? AND status IN (` + placeholders(len(from)) + `)`)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return s.wrap("update task", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	current, err := s.GetTask(ctx, t.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: task %d is %s, cannot become %s",
		taskq.ErrInvalidTransition, t.ID, current.Status, t.Status)
}

// placeholders returns n comma separated "?" markers.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, taskID int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM tasks WHERE task_id = ?"), taskID)
	if err != nil {
		return s.wrap("delete task", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskq.ErrTaskNotFound
	}
	return nil
}

// SetTaskStartTime records when execution began.
func (s *Store) SetTaskStartTime(ctx context.Context, taskID int64, at time.Time) error {
	query := s.rebind("UPDATE tasks SET start_time = ? WHERE task_id = ?")
	res, err := s.db.ExecContext(ctx, query, s.d.EncodeTime(at), taskID)
	if err != nil {
		return s.wrap("set task start time", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskq.ErrTaskNotFound
	}
	return nil
}

// SetTaskStatus applies a status report from the worker holding the lease.
// Only running tasks are updated: a task the pulse sweep already failed
// keeps its failure and the caller gets ErrTaskNotRunning.
func (s *Store) SetTaskStatus(ctx context.Context, taskID int64, status task.Status, at time.Time) error {
	change, err := task.StatusChangeFor(status, at)
	if err != nil {
		return err
	}

	var res sql.Result
	if change.DoneTime != nil {
		query := s.rebind("UPDATE tasks SET status = ?, pulse_time = ?, done_time = ? WHERE task_id = ? AND status = ?")
		res, err = s.db.ExecContext(ctx, query, string(change.Status), s.d.EncodeTime(change.PulseTime),
			s.d.EncodeTime(*change.DoneTime), taskID, string(task.StatusRunning))
	} else {
		query := s.rebind("UPDATE tasks SET status = ?, pulse_time = ? WHERE task_id = ? AND status = ?")
		res, err = s.db.ExecContext(ctx, query, string(change.Status), s.d.EncodeTime(change.PulseTime),
			taskID, string(task.StatusRunning))
	}
	if err != nil {
		return s.wrap("set task status", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	current, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: task %d is %s", taskq.ErrTaskNotRunning, taskID, current.Status)
}

// SetTaskResult stores o as the task's return value.
func (s *Store) SetTaskResult(ctx context.Context, taskID int64, o *object.Object) error {
	err := s.inTx(ctx, func(q querier) error {
		if err := s.insertObject(ctx, q, o); err != nil {
			return err
		}
		res, err := q.ExecContext(ctx, s.rebind("UPDATE tasks SET ret_id = ? WHERE task_id = ?"), o.ID, taskID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return taskq.ErrTaskNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, taskq.ErrTaskNotFound) {
			return err
		}
		return s.wrap("set task result", err)
	}
	return nil
}

// TasksStatus returns task counts grouped by level and name.
func (s *Store) TasksStatus(ctx context.Context, jobID *int64) ([]*task.LevelSummary, error) {
	query := `SELECT level, name, COUNT(task_id),
		COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN status = 'failure' THEN 1 ELSE 0 END), 0)
	FROM tasks`
	var args []any
	if jobID != nil {
		query += " WHERE job_id = ?"
		args = append(args, *jobID)
	}
	query += " GROUP BY level, name ORDER BY level, name"

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.wrap("tasks status", err)
	}
	defer rows.Close()

	var out []*task.LevelSummary
	for rows.Next() {
		ls := &task.LevelSummary{}
		if err := rows.Scan(&ls.Level, &ls.Name, &ls.Tasks, &ls.Pending, &ls.Running, &ls.Success, &ls.Failure); err != nil {
			return nil, s.wrap("scan tasks status", err)
		}
		out = append(out, ls)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("tasks status", err)
	}
	return out, nil
}
