package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/job"
	"github.com/xraph/taskq/object"
	"github.com/xraph/taskq/statekw"
	"github.com/xraph/taskq/task"
)

// Ensure Store implements store.Store at compile time.
// We can't import store here (import cycle), so we verify each subsystem.
var (
	_ job.Store     = (*Store)(nil)
	_ task.Store    = (*Store)(nil)
	_ object.Store  = (*Store)(nil)
	_ statekw.Store = (*Store)(nil)
)

// Store is a fully in-memory implementation of store.Store.
// Safe for concurrent access. Intended for unit testing and development.
// A single mutex gives TakeNextTask the same exclusivity the SQL backends
// get from their transactions.
type Store struct {
	mu sync.Mutex

	jobs     map[int64]*job.Job
	tasks    map[int64]*task.Task
	objects  map[int64]*object.Object
	stateKWs map[int64]*statekw.StateKWArg

	nextJob, nextTask, nextObject, nextStateKW int64

	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Store) {
		m.logger = logger
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Store) {
		m.now = now
	}
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	m := &Store{
		jobs:     make(map[int64]*job.Job),
		tasks:    make(map[int64]*task.Task),
		objects:  make(map[int64]*object.Object),
		stateKWs: make(map[int64]*statekw.StateKWArg),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate, Ping, Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

func (m *Store) utcNow() time.Time {
	return m.now().UTC().Truncate(time.Microsecond)
}

// ──────────────────────────────────────────────────
// Object Store
// ──────────────────────────────────────────────────

// CreateObject stores o and sets its ID.
func (m *Store) CreateObject(_ context.Context, o *object.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertObject(o)
	return nil
}

func (m *Store) insertObject(o *object.Object) {
	m.nextObject++
	o.ID = m.nextObject
	cp := *o
	cp.Blob = append([]byte(nil), o.Blob...)
	m.objects[o.ID] = &cp
}

// GetObject loads an object by ID.
func (m *Store) GetObject(_ context.Context, objectID int64) (*object.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[objectID]
	if !ok {
		return nil, taskq.ErrObjectNotFound
	}
	cp := *o
	cp.Blob = append([]byte(nil), o.Blob...)
	return &cp, nil
}

// DeleteObject removes an object and nulls references to it.
func (m *Store) DeleteObject(_ context.Context, objectID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[objectID]; !ok {
		return taskq.ErrObjectNotFound
	}
	delete(m.objects, objectID)

	unref := func(p **int64) {
		if *p != nil && **p == objectID {
			*p = nil
		}
	}
	for _, t := range m.tasks {
		unref(&t.ArgsID)
		unref(&t.KwargsID)
		unref(&t.ResultID)
	}
	for _, kw := range m.stateKWs {
		unref(&kw.ArgsID)
		unref(&kw.KwargsID)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists j and sets its ID.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextJob++
	j.ID = m.nextJob
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

// GetJob loads a job by ID.
func (m *Store) GetJob(_ context.Context, jobID int64) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return nil, taskq.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// ListJobs returns jobs ordered by ID.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.sortedJobIDs()
	out := make([]*job.Job, 0, len(ids))
	for _, id := range page(ids, opts.Limit, opts.Offset) {
		cp := *m.jobs[id]
		out = append(out, &cp)
	}
	return out, nil
}

// UpdateJob overwrites the job's mutable fields.
func (m *Store) UpdateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[j.ID]; !ok {
		return taskq.ErrJobNotFound
	}
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

// DeleteJob removes a job with its tasks and state kwargs.
func (m *Store) DeleteJob(_ context.Context, jobID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[jobID]; !ok {
		return taskq.ErrJobNotFound
	}
	m.deleteJob(jobID)
	return nil
}

func (m *Store) deleteJob(jobID int64) {
	delete(m.jobs, jobID)
	for id, t := range m.tasks {
		if t.JobID == jobID {
			delete(m.tasks, id)
		}
	}
	for id, kw := range m.stateKWs {
		if kw.JobID == jobID {
			delete(m.stateKWs, id)
		}
	}
}

// KeepLatestJobs deletes all but the n most recently created jobs.
func (m *Store) KeepLatestJobs(_ context.Context, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.sortedJobIDs()
	if len(ids) <= n {
		return 0, nil
	}
	stale := ids[:len(ids)-n]
	for _, id := range stale {
		m.deleteJob(id)
	}
	return int64(len(stale)), nil
}

// JobsStatus returns per-job task counts by status.
func (m *Store) JobsStatus(_ context.Context, opts job.ListOpts) ([]*job.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := page(m.sortedJobIDs(), opts.Limit, opts.Offset)
	byJob := make(map[int64]*job.Summary, len(ids))
	out := make([]*job.Summary, 0, len(ids))
	for _, id := range ids {
		sm := &job.Summary{Job: *m.jobs[id]}
		byJob[id] = sm
		out = append(out, sm)
	}
	for _, t := range m.tasks {
		sm, ok := byJob[t.JobID]
		if !ok {
			continue
		}
		sm.Tasks++
		switch t.Status {
		case task.StatusPending:
			sm.Pending++
		case task.StatusRunning:
			sm.Running++
		case task.StatusSuccess:
			sm.Success++
		case task.StatusFailure:
			sm.Failure++
		}
	}
	return out, nil
}

func (m *Store) sortedJobIDs() []int64 {
	ids := make([]int64, 0, len(m.jobs))
	for id := range m.jobs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ──────────────────────────────────────────────────
// Task Store
// ──────────────────────────────────────────────────

// AddTasks inserts tasks atomically, storing inline Args and Kwargs first.
func (m *Store) AddTasks(_ context.Context, tasks ...*task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range tasks {
		if t.Entrypoint == "" {
			return fmt.Errorf("%w: task %q has no entrypoint", taskq.ErrInvalidTask, t.Name)
		}
		if t.Status != "" {
			if _, err := task.ParseStatus(string(t.Status)); err != nil {
				return err
			}
		}
		if _, ok := m.jobs[t.JobID]; !ok {
			return fmt.Errorf("%w: %d", taskq.ErrJobNotFound, t.JobID)
		}
	}

	for _, t := range tasks {
		if t.Status == "" {
			t.Status = task.StatusPending
		}
		m.attachObject(t.Args, &t.ArgsID)
		m.attachObject(t.Kwargs, &t.KwargsID)
		m.nextTask++
		t.ID = m.nextTask
		m.tasks[t.ID] = copyTask(t)
	}
	return nil
}

func (m *Store) attachObject(o *object.Object, dst **int64) {
	if o == nil {
		return
	}
	if o.ID == 0 {
		m.insertObject(o)
	}
	id := o.ID
	*dst = &id
}

// GetTask loads a task by ID.
func (m *Store) GetTask(_ context.Context, taskID int64) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, taskq.ErrTaskNotFound
	}
	return copyTask(t), nil
}

// ListTasks returns tasks ordered by job and ID.
func (m *Store) ListTasks(_ context.Context, opts task.ListOpts) ([]*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	matched := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if opts.JobID != nil && t.JobID != *opts.JobID {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		matched = append(matched, t)
	}
	sortTasks(matched)

	out := make([]*task.Task, 0, len(matched))
	for _, t := range page(matched, opts.Limit, opts.Offset) {
		out = append(out, copyTask(t))
	}
	return out, nil
}

// UpdateTask overwrites a task. Level and job are fixed at creation and the
// status may only move forward, see task.CanTransition.
func (m *Store) UpdateTask(_ context.Context, t *task.Task) error {
	if _, err := task.ParseStatus(string(t.Status)); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.tasks[t.ID]
	if !ok {
		return taskq.ErrTaskNotFound
	}
	if !task.CanTransition(existing.Status, t.Status) {
		return fmt.Errorf("%w: task %d is %s, cannot become %s",
			taskq.ErrInvalidTransition, t.ID, existing.Status, t.Status)
	}
	cp := copyTask(t)
	cp.Level = existing.Level
	cp.JobID = existing.JobID
	m.tasks[t.ID] = cp
	return nil
}

// DeleteTask removes a task.
func (m *Store) DeleteTask(_ context.Context, taskID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[taskID]; !ok {
		return taskq.ErrTaskNotFound
	}
	delete(m.tasks, taskID)
	return nil
}

// TakeNextTask applies the leasing table to the tasks in scope and claims
// the first pending task of the lowest pending level.
func (m *Store) TakeNextTask(_ context.Context, scope task.Scope) (task.Action, *task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var (
		minPending, minRunning *float64
		candidates             []*task.Task
	)
	for _, t := range m.tasks {
		if !scope.Contains(t) {
			continue
		}
		switch t.Status {
		case task.StatusPending:
			candidates = append(candidates, t)
			minPending = lower(minPending, t.Level)
		case task.StatusRunning:
			minRunning = lower(minRunning, t.Level)
		}
	}

	d := task.Decide(minPending, minRunning)
	if d.Action != task.ActionRunTask {
		return d.Action, nil, nil
	}
	if d.Anomalous {
		m.logger.Warn("pending level below running level",
			slog.Float64("pending_level", *minPending),
			slog.Float64("running_level", *minRunning),
		)
	}

	sortTasks(candidates)
	for _, t := range candidates {
		if t.Level != *minPending {
			continue
		}
		now := m.utcNow()
		pulse := now
		t.Status = task.StatusRunning
		t.TakeTime = &now
		t.PulseTime = &pulse
		return task.ActionRunTask, copyTask(t), nil
	}
	return task.ActionWait, nil, nil
}

func lower(cur *float64, level float64) *float64 {
	if cur == nil || level < *cur {
		v := level
		return &v
	}
	return cur
}

// FailPulseTimeoutTasks fails running tasks whose pulse is older than
// timeout.
func (m *Store) FailPulseTimeoutTasks(_ context.Context, timeout time.Duration) (int64, error) {
	if timeout <= 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.utcNow()
	cutoff := now.Add(-timeout)
	var n int64
	for _, t := range m.tasks {
		if t.Status != task.StatusRunning || t.PulseTime == nil || !t.PulseTime.Before(cutoff) {
			continue
		}
		done := now
		t.Status = task.StatusFailure
		t.DoneTime = &done
		n++
	}
	if n > 0 {
		m.logger.Warn("pulse timeout tasks failed",
			slog.Int64("count", n),
			slog.Duration("timeout", timeout),
		)
	}
	return n, nil
}

// CountPendingTasksBelowLevel counts pending tasks below level.
func (m *Store) CountPendingTasksBelowLevel(_ context.Context, jobID *int64, level float64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tasks {
		if t.Status != task.StatusPending || t.Level >= level {
			continue
		}
		if jobID != nil && t.JobID != *jobID {
			continue
		}
		n++
	}
	return n, nil
}

// SetTaskStartTime records when execution began.
func (m *Store) SetTaskStartTime(_ context.Context, taskID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return taskq.ErrTaskNotFound
	}
	start := at.UTC().Truncate(time.Microsecond)
	t.StartTime = &start
	return nil
}

// SetTaskStatus applies a status report to a running task.
func (m *Store) SetTaskStatus(_ context.Context, taskID int64, status task.Status, at time.Time) error {
	change, err := task.StatusChangeFor(status, at.UTC().Truncate(time.Microsecond))
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return taskq.ErrTaskNotFound
	}
	if t.Status != task.StatusRunning {
		return fmt.Errorf("%w: task %d is %s", taskq.ErrTaskNotRunning, taskID, t.Status)
	}
	change.Apply(t)
	return nil
}

// SetTaskResult stores o as the task's return value.
func (m *Store) SetTaskResult(_ context.Context, taskID int64, o *object.Object) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return taskq.ErrTaskNotFound
	}
	m.insertObject(o)
	id := o.ID
	t.ResultID = &id
	return nil
}

// TasksStatus returns task counts grouped by level and name.
func (m *Store) TasksStatus(_ context.Context, jobID *int64) ([]*task.LevelSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type key struct {
		level float64
		name  string
	}
	groups := make(map[key]*task.LevelSummary)
	for _, t := range m.tasks {
		if jobID != nil && t.JobID != *jobID {
			continue
		}
		k := key{t.Level, t.Name}
		ls, ok := groups[k]
		if !ok {
			ls = &task.LevelSummary{Level: t.Level, Name: t.Name}
			groups[k] = ls
		}
		ls.Tasks++
		switch t.Status {
		case task.StatusPending:
			ls.Pending++
		case task.StatusRunning:
			ls.Running++
		case task.StatusSuccess:
			ls.Success++
		case task.StatusFailure:
			ls.Failure++
		}
	}

	out := make([]*task.LevelSummary, 0, len(groups))
	for _, ls := range groups {
		out = append(out, ls)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// ──────────────────────────────────────────────────
// State kwarg Store
// ──────────────────────────────────────────────────

// AddStateKWArg persists a state kwarg definition.
func (m *Store) AddStateKWArg(_ context.Context, kw *statekw.StateKWArg) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[kw.JobID]; !ok {
		return taskq.ErrJobNotFound
	}
	for _, existing := range m.stateKWs {
		if existing.JobID == kw.JobID && existing.Name == kw.Name {
			return fmt.Errorf("taskq/memory: state kwarg %q already defined for job %d", kw.Name, kw.JobID)
		}
	}
	m.nextStateKW++
	kw.ID = m.nextStateKW
	cp := *kw
	m.stateKWs[kw.ID] = &cp
	return nil
}

// ListStateKWArgs returns the definitions of one job.
func (m *Store) ListStateKWArgs(_ context.Context, jobID int64) ([]*statekw.StateKWArg, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*statekw.StateKWArg
	for _, kw := range m.stateKWs {
		if kw.JobID == jobID {
			cp := *kw
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeleteStateKWArg removes a definition.
func (m *Store) DeleteStateKWArg(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stateKWs[id]; !ok {
		return taskq.ErrStateKWNotFound
	}
	delete(m.stateKWs, id)
	return nil
}

// ──────────────────────────────────────────────────
// helpers
// ──────────────────────────────────────────────────

func copyTask(t *task.Task) *task.Task {
	cp := *t
	cp.Args, cp.Kwargs = nil, nil
	cp.ArgsID = copyPtr(t.ArgsID)
	cp.KwargsID = copyPtr(t.KwargsID)
	cp.ResultID = copyPtr(t.ResultID)
	cp.TakeTime = copyPtr(t.TakeTime)
	cp.StartTime = copyPtr(t.StartTime)
	cp.DoneTime = copyPtr(t.DoneTime)
	cp.PulseTime = copyPtr(t.PulseTime)
	return &cp
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sortTasks(ts []*task.Task) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].JobID != ts[j].JobID {
			return ts[i].JobID < ts[j].JobID
		}
		return ts[i].ID < ts[j].ID
	})
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
