package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/taskq/job"
	"github.com/xraph/taskq/object"
	"github.com/xraph/taskq/statekw"
	"github.com/xraph/taskq/task"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ job.Store     = (*Store)(nil)
	_ task.Store    = (*Store)(nil)
	_ object.Store  = (*Store)(nil)
	_ statekw.Store = (*Store)(nil)
)

// DefaultTimeout bounds each request when no client is supplied.
const DefaultTimeout = 30 * time.Second

// Store talks to a taskq api server.
type Store struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) {
		s.client = c
	}
}

// New returns a client for the server at baseURL (scheme://host[:port]).
func New(baseURL string, opts ...Option) *Store {
	s := &Store{
		base:   strings.TrimRight(baseURL, "/"),
		client: &http.Client{Timeout: DefaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate is a no-op: the server owns the schema.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping requests the service banner.
func (s *Store) Ping(ctx context.Context) error {
	return s.do(ctx, http.MethodGet, "/api", nil, nil, nil)
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// ── jobs ─────────────────────────────────────────────────────────

// CreateJob posts j and copies the assigned ID back.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	return s.do(ctx, http.MethodPost, "/api/jobs", nil, j, j)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID int64) (*job.Job, error) {
	var j job.Job
	if err := s.do(ctx, http.MethodGet, "/api/jobs/"+itoa(jobID), nil, nil, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// ListJobs returns jobs ordered by ID.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	var jobs []*job.Job
	err := s.do(ctx, http.MethodGet, "/api/jobs", pageQuery(opts.Limit, opts.Offset), nil, &jobs)
	return jobs, err
}

// UpdateJob replaces a job on the server.
func (s *Store) UpdateJob(ctx context.Context, j *job.Job) error {
	return s.do(ctx, http.MethodPut, "/api/jobs/"+itoa(j.ID), nil, j, nil)
}

// DeleteJob removes a job; the server cascades to its tasks and state kwargs.
func (s *Store) DeleteJob(ctx context.Context, jobID int64) error {
	return s.do(ctx, http.MethodDelete, "/api/jobs/"+itoa(jobID), nil, nil, nil)
}

// KeepLatestJobs asks the server to keep only the n newest jobs.
func (s *Store) KeepLatestJobs(ctx context.Context, n int) (int64, error) {
	var resp CountResponse
	err := s.do(ctx, http.MethodPost, "/api/keep_latest_jobs", nil, KeepLatestRequest{Max: n}, &resp)
	return resp.Count, err
}

// JobsStatus returns per-job task counts by status.
func (s *Store) JobsStatus(ctx context.Context, opts job.ListOpts) ([]*job.Summary, error) {
	var out []*job.Summary
	err := s.do(ctx, http.MethodGet, "/api/status/jobs", pageQuery(opts.Limit, opts.Offset), nil, &out)
	return out, err
}

// ── tasks ────────────────────────────────────────────────────────

// AddTasks posts all tasks in one request and copies the assigned IDs back.
func (s *Store) AddTasks(ctx context.Context, tasks ...*task.Task) error {
	var created []*task.Task
	if err := s.do(ctx, http.MethodPost, "/api/tasks", nil, tasks, &created); err != nil {
		return err
	}
	if len(created) != len(tasks) {
		return fmt.Errorf("taskq/remote: add tasks: server returned %d tasks, sent %d", len(created), len(tasks))
	}
	for i, c := range created {
		t := tasks[i]
		t.ID, t.Status = c.ID, c.Status
		t.ArgsID, t.KwargsID = c.ArgsID, c.KwargsID
		if t.Args != nil && c.ArgsID != nil {
			t.Args.ID = *c.ArgsID
		}
		if t.Kwargs != nil && c.KwargsID != nil {
			t.Kwargs.ID = *c.KwargsID
		}
	}
	return nil
}

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, taskID int64) (*task.Task, error) {
	var t task.Task
	if err := s.do(ctx, http.MethodGet, "/api/tasks/"+itoa(taskID), nil, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTasks returns tasks matching opts.
func (s *Store) ListTasks(ctx context.Context, opts task.ListOpts) ([]*task.Task, error) {
	q := pageQuery(opts.Limit, opts.Offset)
	if opts.JobID != nil {
		q.Set("job_id", itoa(*opts.JobID))
	}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	var tasks []*task.Task
	err := s.do(ctx, http.MethodGet, "/api/tasks", q, nil, &tasks)
	return tasks, err
}

// UpdateTask replaces a task. The server rejects status rewinds with
// taskq.ErrInvalidTransition.
func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	return s.do(ctx, http.MethodPut, "/api/tasks/"+itoa(t.ID), nil, t, nil)
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, taskID int64) error {
	return s.do(ctx, http.MethodDelete, "/api/tasks/"+itoa(taskID), nil, nil, nil)
}

// TakeNextTask asks the server to lease; the server runs the exclusive
// transaction.
func (s *Store) TakeNextTask(ctx context.Context, scope task.Scope) (task.Action, *task.Task, error) {
	q := url.Values{}
	if scope.Levels.Start != nil {
		q.Set("level_start", ftoa(*scope.Levels.Start))
	}
	if scope.Levels.Stop != nil {
		q.Set("level_stop", ftoa(*scope.Levels.Stop))
	}
	var resp NextTaskResponse
	if err := s.do(ctx, http.MethodGet, "/api/jobs/"+jobSegment(scope.JobID)+"/next_task", q, nil, &resp); err != nil {
		return "", nil, err
	}
	if _, err := task.ParseAction(string(resp.Action)); err != nil {
		return "", nil, err
	}
	return resp.Action, resp.Task, nil
}

// FailPulseTimeoutTasks asks the server to sweep stale running tasks.
func (s *Store) FailPulseTimeoutTasks(ctx context.Context, timeout time.Duration) (int64, error) {
	var resp CountResponse
	err := s.do(ctx, http.MethodPost, "/api/fail_pulse_timeout", nil,
		SweepRequest{TimeoutSeconds: timeout.Seconds()}, &resp)
	return resp.Count, err
}

// CountPendingTasksBelowLevel counts pending tasks under level.
func (s *Store) CountPendingTasksBelowLevel(ctx context.Context, jobID *int64, level float64) (int64, error) {
	q := url.Values{"level": {ftoa(level)}}
	var resp CountResponse
	err := s.do(ctx, http.MethodGet, "/api/jobs/"+jobSegment(jobID)+"/count_pending_tasks_below_level", q, nil, &resp)
	return resp.Count, err
}

// SetTaskStartTime records when execution began.
func (s *Store) SetTaskStartTime(ctx context.Context, taskID int64, at time.Time) error {
	return s.do(ctx, http.MethodPost, "/api/tasks/"+itoa(taskID)+"/start", nil, TimeRequest{Time: at}, nil)
}

// SetTaskStatus validates the status locally so unsupported values never
// reach the server.
func (s *Store) SetTaskStatus(ctx context.Context, taskID int64, status task.Status, at time.Time) error {
	if _, err := task.StatusChangeFor(status, at); err != nil {
		return err
	}
	return s.do(ctx, http.MethodPost, "/api/tasks/"+itoa(taskID)+"/status", nil,
		StatusRequest{Status: status, Time: at}, nil)
}

// SetTaskResult stores o as the task's return value.
func (s *Store) SetTaskResult(ctx context.Context, taskID int64, o *object.Object) error {
	return s.do(ctx, http.MethodPost, "/api/tasks/"+itoa(taskID)+"/result", nil, o, o)
}

// TasksStatus returns task counts grouped by level and name.
func (s *Store) TasksStatus(ctx context.Context, jobID *int64) ([]*task.LevelSummary, error) {
	q := url.Values{}
	if jobID != nil {
		q.Set("job_id", itoa(*jobID))
	}
	var out []*task.LevelSummary
	err := s.do(ctx, http.MethodGet, "/api/status/tasks", q, nil, &out)
	return out, err
}

// ── objects ──────────────────────────────────────────────────────

// CreateObject posts o and copies the assigned ID back.
func (s *Store) CreateObject(ctx context.Context, o *object.Object) error {
	return s.do(ctx, http.MethodPost, "/api/objects", nil, o, o)
}

// GetObject retrieves an object by ID.
func (s *Store) GetObject(ctx context.Context, objectID int64) (*object.Object, error) {
	var o object.Object
	if err := s.do(ctx, http.MethodGet, "/api/objects/"+itoa(objectID), nil, nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// DeleteObject removes an object.
func (s *Store) DeleteObject(ctx context.Context, objectID int64) error {
	return s.do(ctx, http.MethodDelete, "/api/objects/"+itoa(objectID), nil, nil, nil)
}

// ── state kwargs ─────────────────────────────────────────────────

// AddStateKWArg posts kw and copies the assigned ID back.
func (s *Store) AddStateKWArg(ctx context.Context, kw *statekw.StateKWArg) error {
	return s.do(ctx, http.MethodPost, "/api/jobs/"+itoa(kw.JobID)+"/state_kwargs", nil, kw, kw)
}

// ListStateKWArgs returns the state kwargs of a job.
func (s *Store) ListStateKWArgs(ctx context.Context, jobID int64) ([]*statekw.StateKWArg, error) {
	var out []*statekw.StateKWArg
	err := s.do(ctx, http.MethodGet, "/api/jobs/"+itoa(jobID)+"/state_kwargs", nil, nil, &out)
	return out, err
}

// DeleteStateKWArg removes a state kwarg.
func (s *Store) DeleteStateKWArg(ctx context.Context, id int64) error {
	return s.do(ctx, http.MethodDelete, "/api/state_kwargs/"+itoa(id), nil, nil, nil)
}

// ── transport ────────────────────────────────────────────────────

// do sends body as JSON and decodes a 2xx response into out. Error
// responses are mapped back to the sentinel errors by code.
func (s *Store) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := s.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("taskq/remote: encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("taskq/remote: %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("taskq/remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var e ErrorResponse
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if jsonErr := json.Unmarshal(raw, &e); jsonErr != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(raw))
		}
		s.logger.Debug("remote request rejected",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
			slog.String("error", e.Error),
		)
		return fmt.Errorf("%w: %s %s: %d %s", errorForCode(e.Code), method, path, resp.StatusCode, e.Error)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("taskq/remote: decode %s %s: %w", method, path, err)
	}
	return nil
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func ftoa(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func jobSegment(jobID *int64) string {
	if jobID == nil {
		return AllJobs
	}
	return itoa(*jobID)
}

func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return q
}
