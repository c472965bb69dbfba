// Package storetest is a conformance suite run against every store.Store
// backend. Backend packages call Run from their tests.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/job"
	"github.com/xraph/taskq/object"
	"github.com/xraph/taskq/statekw"
	"github.com/xraph/taskq/store"
	"github.com/xraph/taskq/task"
)

// Factory returns a fresh, migrated store. It registers its own cleanup.
type Factory func(t *testing.T) store.Store

// Run executes the suite. Each subtest gets its own store.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Lifecycle", testLifecycle},
		{"JobCRUD", testJobCRUD},
		{"ObjectCRUD", testObjectCRUD},
		{"AddTasksWithObjects", testAddTasksWithObjects},
		{"AddTasksUnknownJob", testAddTasksUnknownJob},
		{"ListTasksFilters", testListTasksFilters},
		{"DrainLevel", testDrainLevel},
		{"WaitWhileRunning", testWaitWhileRunning},
		{"LowerLevelsFirst", testLowerLevelsFirst},
		{"AnomalousPendingBelowRunning", testAnomalousPendingBelowRunning},
		{"ScopeByJob", testScopeByJob},
		{"ScopeByLevel", testScopeByLevel},
		{"ConcurrentLeases", testConcurrentLeases},
		{"PulseTimeoutSweep", testPulseTimeoutSweep},
		{"LateSuccessAfterSweep", testLateSuccessAfterSweep},
		{"StatusUpdates", testStatusUpdates},
		{"UpdateTaskTransitions", testUpdateTaskTransitions},
		{"UnsupportedStatus", testUnsupportedStatus},
		{"TaskResult", testTaskResult},
		{"CountPendingBelowLevel", testCountPendingBelowLevel},
		{"DeleteJobCascades", testDeleteJobCascades},
		{"KeepLatestJobs", testKeepLatestJobs},
		{"StatusSummaries", testStatusSummaries},
		{"StateKWArgs", testStateKWArgs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// ── fixtures ─────────────────────────────────────────────────────

func createJob(t *testing.T, s store.Store, name string) *job.Job {
	t.Helper()
	j := &job.Job{Name: name}
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if j.ID == 0 {
		t.Fatal("expected job id to be set")
	}
	return j
}

func addTasks(t *testing.T, s store.Store, jobID int64, levels ...float64) []*task.Task {
	t.Helper()
	tasks := make([]*task.Task, len(levels))
	for i, lvl := range levels {
		tasks[i] = task.MustNew("demo", task.WithJob(jobID), task.WithLevel(lvl))
	}
	if err := s.AddTasks(context.Background(), tasks...); err != nil {
		t.Fatalf("add tasks: %v", err)
	}
	return tasks
}

func take(t *testing.T, s store.Store, scope task.Scope) (task.Action, *task.Task) {
	t.Helper()
	action, tk, err := s.TakeNextTask(context.Background(), scope)
	if err != nil {
		t.Fatalf("take next task: %v", err)
	}
	if action == task.ActionRunTask && tk == nil {
		t.Fatal("run_task without a task")
	}
	if action != task.ActionRunTask && tk != nil {
		t.Fatalf("%s returned task %d", action, tk.ID)
	}
	return action, tk
}

func finish(t *testing.T, s store.Store, taskID int64, status task.Status) {
	t.Helper()
	if err := s.SetTaskStatus(context.Background(), taskID, status, time.Now()); err != nil {
		t.Fatalf("set status %s on %d: %v", status, taskID, err)
	}
}

func getTask(t *testing.T, s store.Store, taskID int64) *task.Task {
	t.Helper()
	tk, err := s.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("get task %d: %v", taskID, err)
	}
	return tk
}

func ptr[T any](v T) *T { return &v }

// ── tests ────────────────────────────────────────────────────────

func testLifecycle(t *testing.T, s store.Store) {
	ctx := context.Background()
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	// Second migrate should be a no-op.
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func testJobCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := &job.Job{Name: "nightly", Description: "rebuild", Priority: 2.5}
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "nightly" || got.Description != "rebuild" || got.Priority != 2.5 {
		t.Fatalf("unexpected job: %+v", got)
	}

	got.Description = "rebuild all"
	if err := s.UpdateJob(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = s.GetJob(ctx, j.ID)
	if got.Description != "rebuild all" {
		t.Fatalf("expected updated description, got %q", got.Description)
	}

	createJob(t, s, "second")
	jobs, err := s.ListJobs(ctx, job.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != j.ID {
		t.Fatalf("expected 2 jobs ordered by id, got %d", len(jobs))
	}
	jobs, _ = s.ListJobs(ctx, job.ListOpts{Limit: 1, Offset: 1})
	if len(jobs) != 1 || jobs[0].Name != "second" {
		t.Fatalf("expected paged second job, got %+v", jobs)
	}

	if err := s.DeleteJob(ctx, j.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetJob(ctx, j.ID); !errors.Is(err, taskq.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	if err := s.DeleteJob(ctx, j.ID); !errors.Is(err, taskq.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound on second delete, got %v", err)
	}
	if err := s.UpdateJob(ctx, &job.Job{ID: 9999}); !errors.Is(err, taskq.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound on update, got %v", err)
	}
}

func testObjectCRUD(t *testing.T, s store.Store) {
	ctx := context.Background()
	o := object.MustNew(object.CodecMsgpack, map[string]int{"n": 7})
	if err := s.CreateObject(ctx, o); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.GetObject(ctx, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var v map[string]int
	if err := got.Decode(&v); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v["n"] != 7 {
		t.Fatalf("expected 7, got %v", v)
	}
	if err := s.DeleteObject(ctx, o.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetObject(ctx, o.ID); !errors.Is(err, taskq.ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func testAddTasksWithObjects(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := createJob(t, s, "objects")

	tk := task.MustNew("demo",
		task.WithJob(j.ID),
		task.WithName("resize"),
		task.WithLevel(1.5),
		task.WithArgs(map[string]string{"path": "/tmp/a.png"}),
		task.WithKwargs(map[string]int{"width": 640}),
	)
	if err := s.AddTasks(ctx, tk); err != nil {
		t.Fatalf("add: %v", err)
	}
	if tk.ID == 0 || tk.ArgsID == nil || tk.KwargsID == nil {
		t.Fatalf("expected ids to be assigned: %+v", tk)
	}

	got := getTask(t, s, tk.ID)
	if got.Status != task.StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
	if got.Name != "resize" || got.Level != 1.5 || got.JobID != j.ID {
		t.Fatalf("unexpected task: %+v", got)
	}
	if got.ArgsID == nil || *got.ArgsID != *tk.ArgsID {
		t.Fatalf("expected args id %d, got %v", *tk.ArgsID, got.ArgsID)
	}
	if got.TakeTime != nil || got.PulseTime != nil {
		t.Fatal("new task must not have take or pulse time")
	}

	args, err := s.GetObject(ctx, *got.ArgsID)
	if err != nil {
		t.Fatalf("get args: %v", err)
	}
	var m map[string]string
	if err := args.Decode(&m); err != nil || m["path"] != "/tmp/a.png" {
		t.Fatalf("unexpected args %v (%v)", m, err)
	}

	if err := s.AddTasks(ctx, &task.Task{JobID: j.ID}); !errors.Is(err, taskq.ErrInvalidTask) {
		t.Fatalf("expected ErrInvalidTask for empty entrypoint, got %v", err)
	}
}

func testAddTasksUnknownJob(t *testing.T, s store.Store) {
	err := s.AddTasks(context.Background(), task.MustNew("demo", task.WithJob(4242)))
	if !errors.Is(err, taskq.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func testListTasksFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := createJob(t, s, "a")
	b := createJob(t, s, "b")
	addTasks(t, s, a.ID, 0, 0, 1)
	addTasks(t, s, b.ID, 0)

	all, err := s.ListTasks(ctx, task.ListOpts{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(all))
	}

	onlyA, _ := s.ListTasks(ctx, task.ListOpts{JobID: &a.ID})
	if len(onlyA) != 3 {
		t.Fatalf("expected 3 tasks for job a, got %d", len(onlyA))
	}

	_, tk := take(t, s, task.Scope{JobID: &a.ID})
	running, _ := s.ListTasks(ctx, task.ListOpts{Status: task.StatusRunning})
	if len(running) != 1 || running[0].ID != tk.ID {
		t.Fatalf("expected running task %d, got %+v", tk.ID, running)
	}

	paged, _ := s.ListTasks(ctx, task.ListOpts{Limit: 2, Offset: 1})
	if len(paged) != 2 || paged[0].ID != all[1].ID {
		t.Fatalf("unexpected page: %+v", paged)
	}
}

// Three tasks on one level are each leased once; completing them drains the
// scope and the next call stops.
func testDrainLevel(t *testing.T, s store.Store) {
	j := createJob(t, s, "drain")
	tasks := addTasks(t, s, j.ID, 1, 1, 1)

	seen := make(map[int64]bool)
	for i := range tasks {
		action, tk := take(t, s, task.Scope{})
		if action != task.ActionRunTask {
			t.Fatalf("call %d: expected run_task, got %s", i+1, action)
		}
		if seen[tk.ID] {
			t.Fatalf("task %d leased twice", tk.ID)
		}
		seen[tk.ID] = true
		if tk.ID != tasks[i].ID {
			t.Fatalf("expected task %d in id order, got %d", tasks[i].ID, tk.ID)
		}
		if tk.Status != task.StatusRunning || tk.TakeTime == nil || tk.PulseTime == nil {
			t.Fatalf("leased task not marked running: %+v", tk)
		}
		finish(t, s, tk.ID, task.StatusSuccess)
	}

	if action, _ := take(t, s, task.Scope{}); action != task.ActionStop {
		t.Fatalf("expected stop, got %s", action)
	}
}

func testWaitWhileRunning(t *testing.T, s store.Store) {
	j := createJob(t, s, "wait")
	addTasks(t, s, j.ID, 1)

	take(t, s, task.Scope{})
	if action, _ := take(t, s, task.Scope{}); action != task.ActionWait {
		t.Fatalf("expected wait while a task is running, got %s", action)
	}
}

func testLowerLevelsFirst(t *testing.T, s store.Store) {
	j := createJob(t, s, "levels")
	tasks := addTasks(t, s, j.ID, 2, 1, 1)

	_, first := take(t, s, task.Scope{})
	_, second := take(t, s, task.Scope{})
	if first.ID != tasks[1].ID || second.ID != tasks[2].ID {
		t.Fatalf("expected level 1 tasks first, got %d then %d", first.ID, second.ID)
	}

	// Level 2 pending, level 1 running: wait.
	if action, _ := take(t, s, task.Scope{}); action != task.ActionWait {
		t.Fatalf("expected wait, got %s", action)
	}

	finish(t, s, first.ID, task.StatusSuccess)
	if action, _ := take(t, s, task.Scope{}); action != task.ActionWait {
		t.Fatalf("expected wait while level 1 still running, got %s", action)
	}

	finish(t, s, second.ID, task.StatusFailure)
	action, third := take(t, s, task.Scope{})
	if action != task.ActionRunTask || third.ID != tasks[0].ID {
		t.Fatalf("expected level 2 task after level 1 drained, got %s", action)
	}
}

func testAnomalousPendingBelowRunning(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := createJob(t, s, "anomaly")
	addTasks(t, s, j.ID, 2)
	_, running := take(t, s, task.Scope{})

	// A level 1 task shows up after level 2 started.
	late := addTasks(t, s, j.ID, 1)[0]
	action, tk, err := s.TakeNextTask(ctx, task.Scope{})
	if err != nil {
		t.Fatalf("take: %v", err)
	}
	if action != task.ActionRunTask || tk.ID != late.ID {
		t.Fatalf("expected the lower pending task to run, got %s", action)
	}
	if getTask(t, s, running.ID).Status != task.StatusRunning {
		t.Fatal("running task must be unaffected")
	}
}

func testScopeByJob(t *testing.T, s store.Store) {
	a := createJob(t, s, "a")
	b := createJob(t, s, "b")
	addTasks(t, s, a.ID, 0, 0)
	addTasks(t, s, b.ID, 0, 0, 0)

	scope := task.Scope{JobID: &a.ID}
	for {
		action, tk := take(t, s, scope)
		if action != task.ActionRunTask {
			break
		}
		if tk.JobID != a.ID {
			t.Fatalf("leased task %d of job %d while scoped to %d", tk.ID, tk.JobID, a.ID)
		}
		finish(t, s, tk.ID, task.StatusSuccess)
	}

	pending, _ := s.ListTasks(context.Background(), task.ListOpts{JobID: &b.ID, Status: task.StatusPending})
	if len(pending) != 3 {
		t.Fatalf("job b tasks must stay pending, got %d", len(pending))
	}
}

func testScopeByLevel(t *testing.T, s store.Store) {
	j := createJob(t, s, "levels")
	tasks := addTasks(t, s, j.ID, 0, 1, 1.5, 2)

	scope := task.Scope{JobID: &j.ID, Levels: task.Levels(1, 2)}
	var got []int64
	for {
		action, tk := take(t, s, scope)
		if action != task.ActionRunTask {
			if action != task.ActionStop {
				t.Fatalf("expected stop, got %s", action)
			}
			break
		}
		got = append(got, tk.ID)
		finish(t, s, tk.ID, task.StatusSuccess)
	}
	if len(got) != 2 || got[0] != tasks[1].ID || got[1] != tasks[2].ID {
		t.Fatalf("expected tasks at 1 and 1.5, got %v", got)
	}

	// Start only.
	action, tk := take(t, s, task.Scope{Levels: task.LevelRange{Start: ptr(2.0)}})
	if action != task.ActionRunTask || tk.ID != tasks[3].ID {
		t.Fatalf("expected level 2 task, got %s", action)
	}
	// Stop only.
	action, tk = take(t, s, task.Scope{Levels: task.LevelRange{Stop: ptr(1.0)}})
	if action != task.ActionRunTask || tk.ID != tasks[0].ID {
		t.Fatalf("expected level 0 task, got %s", action)
	}
}

func testConcurrentLeases(t *testing.T, s store.Store) {
	const n = 20
	j := createJob(t, s, "concurrent")
	levels := make([]float64, n)
	addTasks(t, s, j.ID, levels...)

	var (
		mu     sync.Mutex
		leased = make(map[int64]int)
		wg     sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				action, tk, err := s.TakeNextTask(context.Background(), task.Scope{JobID: &j.ID})
				if err != nil {
					t.Errorf("take: %v", err)
					return
				}
				switch action {
				case task.ActionRunTask:
					mu.Lock()
					leased[tk.ID]++
					mu.Unlock()
					if err := s.SetTaskStatus(context.Background(), tk.ID, task.StatusSuccess, time.Now()); err != nil {
						t.Errorf("set status: %v", err)
						return
					}
				case task.ActionWait:
					time.Sleep(time.Millisecond)
				case task.ActionStop:
					return
				}
			}
		}()
	}
	wg.Wait()

	if len(leased) != n {
		t.Fatalf("expected %d distinct leases, got %d", n, len(leased))
	}
	for id, count := range leased {
		if count != 1 {
			t.Fatalf("task %d leased %d times", id, count)
		}
	}
}

// markStale rewrites a leased task's pulse into the past.
func markStale(t *testing.T, s store.Store, tk *task.Task, age time.Duration) {
	t.Helper()
	stale := time.Now().UTC().Add(-age).Truncate(time.Microsecond)
	tk.PulseTime = &stale
	if err := s.UpdateTask(context.Background(), tk); err != nil {
		t.Fatalf("update task: %v", err)
	}
}

func testPulseTimeoutSweep(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := createJob(t, s, "sweep")
	addTasks(t, s, j.ID, 0, 0)

	_, stale := take(t, s, task.Scope{})
	_, fresh := take(t, s, task.Scope{})
	markStale(t, s, stale, time.Hour)

	n, err := s.FailPulseTimeoutTasks(ctx, time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept task, got %d", n)
	}
	got := getTask(t, s, stale.ID)
	if got.Status != task.StatusFailure || got.DoneTime == nil {
		t.Fatalf("expected failure with done time, got %+v", got)
	}
	if getTask(t, s, fresh.ID).Status != task.StatusRunning {
		t.Fatal("fresh task must keep running")
	}

	// Idempotent.
	n, err = s.FailPulseTimeoutTasks(ctx, time.Minute)
	if err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
	if getTask(t, s, stale.ID).Status != task.StatusFailure {
		t.Fatal("swept task must stay failed")
	}

	// Disabled.
	markStale(t, s, fresh, time.Hour)
	if n, _ := s.FailPulseTimeoutTasks(ctx, 0); n != 0 {
		t.Fatalf("zero timeout must not sweep, got %d", n)
	}
}

func testLateSuccessAfterSweep(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := createJob(t, s, "late")
	addTasks(t, s, j.ID, 0)
	_, tk := take(t, s, task.Scope{})
	markStale(t, s, tk, time.Hour)

	if _, err := s.FailPulseTimeoutTasks(ctx, time.Minute); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	err := s.SetTaskStatus(ctx, tk.ID, task.StatusSuccess, time.Now())
	if !errors.Is(err, taskq.ErrTaskNotRunning) {
		t.Fatalf("expected ErrTaskNotRunning, got %v", err)
	}
	if getTask(t, s, tk.ID).Status != task.StatusFailure {
		t.Fatal("the sweep's failure must stand")
	}
	if err := s.SetTaskStatus(ctx, 9999, task.StatusSuccess, time.Now()); !errors.Is(err, taskq.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func testStatusUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := createJob(t, s, "status")
	addTasks(t, s, j.ID, 0)
	_, tk := take(t, s, task.Scope{})

	start := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.SetTaskStartTime(ctx, tk.ID, start); err != nil {
		t.Fatalf("start time: %v", err)
	}

	pulse := start.Add(time.Second)
	if err := s.SetTaskStatus(ctx, tk.ID, task.StatusRunning, pulse); err != nil {
		t.Fatalf("pulse: %v", err)
	}
	got := getTask(t, s, tk.ID)
	if got.StartTime == nil || !got.StartTime.Equal(start) {
		t.Fatalf("expected start %v, got %v", start, got.StartTime)
	}
	if got.PulseTime == nil || !got.PulseTime.Equal(pulse) {
		t.Fatalf("expected pulse %v, got %v", pulse, got.PulseTime)
	}
	if got.DoneTime != nil {
		t.Fatal("running pulse must not set done time")
	}

	done := pulse.Add(time.Second)
	if err := s.SetTaskStatus(ctx, tk.ID, task.StatusSuccess, done); err != nil {
		t.Fatalf("success: %v", err)
	}
	got = getTask(t, s, tk.ID)
	if got.Status != task.StatusSuccess || got.DoneTime == nil || !got.DoneTime.Equal(done) {
		t.Fatalf("expected success at %v, got %+v", done, got)
	}
	if !got.PulseTime.Equal(done) {
		t.Fatalf("expected pulse %v, got %v", done, got.PulseTime)
	}

	if err := s.SetTaskStartTime(ctx, 9999, start); !errors.Is(err, taskq.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func testUpdateTaskTransitions(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := createJob(t, s, "transitions")
	tasks := addTasks(t, s, j.ID, 0, 0)

	pending := getTask(t, s, tasks[1].ID)
	pending.Status = task.StatusSuccess
	if err := s.UpdateTask(ctx, pending); !errors.Is(err, taskq.ErrInvalidTransition) {
		t.Fatalf("pending to success: expected ErrInvalidTransition, got %v", err)
	}

	_, tk := take(t, s, task.Scope{})
	finish(t, s, tk.ID, task.StatusSuccess)

	for _, status := range []task.Status{task.StatusPending, task.StatusRunning, task.StatusFailure} {
		done := getTask(t, s, tk.ID)
		done.Status = status
		err := s.UpdateTask(ctx, done)
		if !errors.Is(err, taskq.ErrInvalidTransition) {
			t.Fatalf("success to %s: expected ErrInvalidTransition, got %v", status, err)
		}
	}
	if got := getTask(t, s, tk.ID); got.Status != task.StatusSuccess {
		t.Fatalf("rejected update changed status to %s", got.Status)
	}

	// Finished tasks are never leased again.
	if action, next := take(t, s, task.Scope{}); action != task.ActionRunTask || next.ID == tk.ID {
		t.Fatalf("expected the other task, got %s %v", action, next)
	}

	// Unchanged status still updates descriptive fields.
	done := getTask(t, s, tk.ID)
	done.Description = "rewritten"
	if err := s.UpdateTask(ctx, done); err != nil {
		t.Fatalf("update description: %v", err)
	}
	if got := getTask(t, s, tk.ID); got.Description != "rewritten" {
		t.Fatalf("expected description to be updated, got %q", got.Description)
	}

	missing := &task.Task{ID: 9999, Entrypoint: "demo", Status: task.StatusPending}
	if err := s.UpdateTask(ctx, missing); !errors.Is(err, taskq.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func testUnsupportedStatus(t *testing.T, s store.Store) {
	j := createJob(t, s, "unsupported")
	addTasks(t, s, j.ID, 0)
	_, tk := take(t, s, task.Scope{})

	err := s.SetTaskStatus(context.Background(), tk.ID, task.StatusPending, time.Now())
	if !errors.Is(err, taskq.ErrUnsupportedStatus) {
		t.Fatalf("expected ErrUnsupportedStatus, got %v", err)
	}
	if getTask(t, s, tk.ID).Status != task.StatusRunning {
		t.Fatal("rejected update must not change the task")
	}
}

func testTaskResult(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := createJob(t, s, "result")
	tk := addTasks(t, s, j.ID, 0)[0]

	if err := s.SetTaskResult(ctx, tk.ID, object.MustNew(object.CodecJSON, 42)); err != nil {
		t.Fatalf("set result: %v", err)
	}
	got := getTask(t, s, tk.ID)
	if got.ResultID == nil {
		t.Fatal("expected ret_id")
	}
	o, err := s.GetObject(ctx, *got.ResultID)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	var v int
	if err := o.Decode(&v); err != nil || v != 42 {
		t.Fatalf("expected 42, got %d (%v)", v, err)
	}

	if err := s.SetTaskResult(ctx, 9999, object.MustNew(object.CodecJSON, 1)); !errors.Is(err, taskq.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func testCountPendingBelowLevel(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := createJob(t, s, "a")
	b := createJob(t, s, "b")
	addTasks(t, s, a.ID, 0, 0, 1, 2)
	addTasks(t, s, b.ID, 0)

	tests := []struct {
		jobID *int64
		level float64
		want  int64
	}{
		{nil, 1, 3},
		{&a.ID, 1, 2},
		{&a.ID, 0, 0},
		{&a.ID, 2, 3},
		{&b.ID, 5, 1},
	}
	for _, tt := range tests {
		got, err := s.CountPendingTasksBelowLevel(ctx, tt.jobID, tt.level)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if got != tt.want {
			t.Errorf("count(job=%v, level=%g) = %d, want %d", tt.jobID, tt.level, got, tt.want)
		}
	}

	// Running tasks are not pending.
	take(t, s, task.Scope{JobID: &a.ID})
	if got, _ := s.CountPendingTasksBelowLevel(ctx, &a.ID, 1); got != 1 {
		t.Fatalf("expected 1 pending after lease, got %d", got)
	}
}

func testDeleteJobCascades(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := createJob(t, s, "a")
	b := createJob(t, s, "b")
	doomed := addTasks(t, s, a.ID, 0, 1)
	kept := addTasks(t, s, b.ID, 0)
	if err := s.AddStateKWArg(ctx, &statekw.StateKWArg{Name: "db", Entrypoint: "open_db", JobID: a.ID}); err != nil {
		t.Fatalf("add state kwarg: %v", err)
	}

	if err := s.DeleteJob(ctx, a.ID); err != nil {
		t.Fatalf("delete job: %v", err)
	}
	for _, tk := range doomed {
		if _, err := s.GetTask(ctx, tk.ID); !errors.Is(err, taskq.ErrTaskNotFound) {
			t.Fatalf("expected task %d deleted, got %v", tk.ID, err)
		}
	}
	if _, err := s.GetTask(ctx, kept[0].ID); err != nil {
		t.Fatalf("other job's task must survive: %v", err)
	}
	kws, err := s.ListStateKWArgs(ctx, a.ID)
	if err != nil {
		t.Fatalf("list state kwargs: %v", err)
	}
	if len(kws) != 0 {
		t.Fatalf("expected state kwargs deleted, got %d", len(kws))
	}
}

func testKeepLatestJobs(t *testing.T, s store.Store) {
	ctx := context.Background()
	var jobs []*job.Job
	for _, name := range []string{"1", "2", "3", "4"} {
		j := createJob(t, s, name)
		addTasks(t, s, j.ID, 0)
		jobs = append(jobs, j)
	}

	n, err := s.KeepLatestJobs(ctx, 2)
	if err != nil {
		t.Fatalf("keep latest: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}
	left, _ := s.ListJobs(ctx, job.ListOpts{})
	if len(left) != 2 || left[0].ID != jobs[2].ID || left[1].ID != jobs[3].ID {
		t.Fatalf("expected the two newest jobs, got %+v", left)
	}
	tasks, _ := s.ListTasks(ctx, task.ListOpts{})
	if len(tasks) != 2 {
		t.Fatalf("expected tasks of deleted jobs to cascade, got %d", len(tasks))
	}

	if n, _ := s.KeepLatestJobs(ctx, 0); n != 0 {
		t.Fatalf("zero keeps everything, deleted %d", n)
	}
}

func testStatusSummaries(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := createJob(t, s, "summary")
	empty := createJob(t, s, "empty")
	tasks := []*task.Task{
		task.MustNew("demo", task.WithJob(j.ID), task.WithName("fetch"), task.WithLevel(0)),
		task.MustNew("demo", task.WithJob(j.ID), task.WithName("fetch"), task.WithLevel(0)),
		task.MustNew("demo", task.WithJob(j.ID), task.WithName("merge"), task.WithLevel(1)),
	}
	if err := s.AddTasks(ctx, tasks...); err != nil {
		t.Fatalf("add: %v", err)
	}
	_, tk := take(t, s, task.Scope{})
	finish(t, s, tk.ID, task.StatusSuccess)
	take(t, s, task.Scope{})

	levels, err := s.TasksStatus(ctx, &j.ID)
	if err != nil {
		t.Fatalf("tasks status: %v", err)
	}
	if len(levels) != 2 {
		t.Fatalf("expected 2 level rows, got %d", len(levels))
	}
	fetch := levels[0]
	if fetch.Name != "fetch" || fetch.Tasks != 2 || fetch.Success != 1 || fetch.Running != 1 {
		t.Fatalf("unexpected fetch row: %+v", fetch)
	}
	if levels[1].Name != "merge" || levels[1].Pending != 1 {
		t.Fatalf("unexpected merge row: %+v", levels[1])
	}

	jobs, err := s.JobsStatus(ctx, job.ListOpts{})
	if err != nil {
		t.Fatalf("jobs status: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 job rows, got %d", len(jobs))
	}
	if jobs[0].ID != j.ID || jobs[0].Tasks != 3 || jobs[0].Pending != 1 || jobs[0].Running != 1 || jobs[0].Success != 1 {
		t.Fatalf("unexpected job row: %+v", jobs[0])
	}
	if jobs[1].ID != empty.ID || jobs[1].Tasks != 0 {
		t.Fatalf("unexpected empty job row: %+v", jobs[1])
	}
}

func testStateKWArgs(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := createJob(t, s, "statekw")
	args := object.MustNew(object.CodecJSON, map[string]string{"dsn": "memory"})
	if err := s.CreateObject(ctx, args); err != nil {
		t.Fatalf("create object: %v", err)
	}

	kw := &statekw.StateKWArg{Name: "db", Entrypoint: "open_db", ArgsID: &args.ID, JobID: j.ID}
	if err := s.AddStateKWArg(ctx, kw); err != nil {
		t.Fatalf("add: %v", err)
	}
	if kw.ID == 0 {
		t.Fatal("expected id to be set")
	}

	list, err := s.ListStateKWArgs(ctx, j.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "db" || list[0].ArgsID == nil || *list[0].ArgsID != args.ID {
		t.Fatalf("unexpected list: %+v", list)
	}

	if err := s.DeleteStateKWArg(ctx, kw.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteStateKWArg(ctx, kw.ID); !errors.Is(err, taskq.ErrStateKWNotFound) {
		t.Fatalf("expected ErrStateKWNotFound, got %v", err)
	}
	if err := s.AddStateKWArg(ctx, &statekw.StateKWArg{Name: "x", Entrypoint: "y", JobID: 4242}); !errors.Is(err, taskq.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}
