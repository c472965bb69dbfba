package sqlstore

import (
	"context"
	"log/slog"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/job"
)

// CreateJob persists j and sets its ID.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	query := s.rebind("INSERT INTO jobs (name, description, priority) VALUES (?, ?, ?) RETURNING job_id")
	if err := s.db.QueryRowContext(ctx, query, j.Name, j.Description, j.Priority).Scan(&j.ID); err != nil {
		return s.wrap("create job", err)
	}
	return nil
}

// GetJob loads a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID int64) (*job.Job, error) {
	query := s.rebind("SELECT " + jobColumns + " FROM jobs WHERE job_id = ?")
	j := &job.Job{}
	if err := s.db.QueryRowContext(ctx, query, jobID).Scan(&j.ID, &j.Name, &j.Description, &j.Priority); err != nil {
		if isNoRows(err) {
			return nil, taskq.ErrJobNotFound
		}
		return nil, s.wrap("get job", err)
	}
	return j, nil
}

// ListJobs returns jobs ordered by ID.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs ORDER BY job_id" + s.d.LimitOffset(opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, s.wrap("list jobs", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j := &job.Job{}
		if err := rows.Scan(&j.ID, &j.Name, &j.Description, &j.Priority); err != nil {
			return nil, s.wrap("scan job", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list jobs", err)
	}
	return jobs, nil
}

// UpdateJob overwrites the job's mutable fields.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	query := s.rebind("UPDATE jobs SET name = ?, description = ?, priority = ? WHERE job_id = ?")
	res, err := s.db.ExecContext(ctx, query, j.Name, j.Description, j.Priority, j.ID)
	if err != nil {
		return s.wrap("update job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskq.ErrJobNotFound
	}
	return nil
}

// DeleteJob removes a job. Its tasks and state kwargs cascade.
func (s *Store) DeleteJob(ctx context.Context, jobID int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM jobs WHERE job_id = ?"), jobID)
	if err != nil {
		return s.wrap("delete job", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return taskq.ErrJobNotFound
	}
	return nil
}

// KeepLatestJobs deletes all but the n most recently created jobs. A
// non-positive n keeps everything.
func (s *Store) KeepLatestJobs(ctx context.Context, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	query := s.rebind("DELETE FROM jobs WHERE job_id NOT IN (SELECT job_id FROM jobs ORDER BY job_id DESC LIMIT ?)")
	res, err := s.db.ExecContext(ctx, query, n)
	if err != nil {
		return 0, s.wrap("keep latest jobs", err)
	}
	deleted, _ := res.RowsAffected()
	if deleted > 0 {
		s.logger.Debug("old jobs deleted", slog.Int64("deleted", deleted), slog.Int("kept", n))
	}
	return deleted, nil
}

// JobsStatus returns per-job task counts by status.
func (s *Store) JobsStatus(ctx context.Context, opts job.ListOpts) ([]*job.Summary, error) {
	query := `SELECT j.job_id, j.name, j.description, j.priority,
		COUNT(t.task_id),
		COALESCE(SUM(CASE WHEN t.status = 'pending' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN t.status = 'running' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN t.status = 'success' THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN t.status = 'failure' THEN 1 ELSE 0 END), 0)
	FROM jobs j LEFT JOIN tasks t ON t.job_id = j.job_id
	GROUP BY j.job_id, j.name, j.description, j.priority
	ORDER BY j.job_id` + s.d.LimitOffset(opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, s.wrap("jobs status", err)
	}
	defer rows.Close()

	var out []*job.Summary
	for rows.Next() {
		sm := &job.Summary{}
		if err := rows.Scan(&sm.ID, &sm.Name, &sm.Description, &sm.Priority,
			&sm.Tasks, &sm.Pending, &sm.Running, &sm.Success, &sm.Failure); err != nil {
			return nil, s.wrap("scan jobs status", err)
		}
		out = append(out, sm)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("jobs status", err)
	}
	return out, nil
}
