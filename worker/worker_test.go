package worker_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/backoff"
	"github.com/xraph/taskq/ext"
	"github.com/xraph/taskq/job"
	"github.com/xraph/taskq/middleware"
	"github.com/xraph/taskq/object"
	"github.com/xraph/taskq/statekw"
	"github.com/xraph/taskq/store/memory"
	"github.com/xraph/taskq/task"
	"github.com/xraph/taskq/worker"
)

type greetArgs struct {
	Name     string `json:"name"`
	Greeting string `json:"greeting"`
}

// clock is a settable time source shared by a store and its test.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock { return &clock{now: time.Now().UTC()} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// recordingExt records lifecycle events by name.
type recordingExt struct {
	mu     sync.Mutex
	events []string
	swept  int64
}

func (e *recordingExt) Name() string { return "recording" }

func (e *recordingExt) add(name string) {
	e.mu.Lock()
	e.events = append(e.events, name)
	e.mu.Unlock()
}

func (e *recordingExt) count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev == name {
			n++
		}
	}
	return n
}

func (e *recordingExt) OnTaskTaken(context.Context, *task.Task) error {
	e.add("taken")
	return nil
}

func (e *recordingExt) OnTaskSucceeded(context.Context, *task.Task, time.Duration) error {
	e.add("succeeded")
	return nil
}

func (e *recordingExt) OnTaskFailed(context.Context, *task.Task, error) error {
	e.add("failed")
	return nil
}

func (e *recordingExt) OnLateReport(context.Context, *task.Task, task.Status) error {
	e.add("late")
	return nil
}

func (e *recordingExt) OnTasksSwept(_ context.Context, n int64) error {
	e.mu.Lock()
	e.swept += n
	e.mu.Unlock()
	return nil
}

func (e *recordingExt) OnShutdown(context.Context) error {
	e.add("shutdown")
	return nil
}

func setupStore(t *testing.T, opts ...memory.Option) (*memory.Store, int64) {
	t.Helper()
	s := memory.New(opts...)
	j := &job.Job{Name: "test-job"}
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("create job: %v", err)
	}
	return s, j.ID
}

func addTasks(t *testing.T, s *memory.Store, tasks ...*task.Task) {
	t.Helper()
	if err := s.AddTasks(context.Background(), tasks...); err != nil {
		t.Fatalf("add tasks: %v", err)
	}
}

func getTask(t *testing.T, s *memory.Store, taskID int64) *task.Task {
	t.Helper()
	tk, err := s.GetTask(context.Background(), taskID)
	if err != nil {
		t.Fatalf("get task %d: %v", taskID, err)
	}
	return tk
}

func fastOpts(extra ...worker.Option) []worker.Option {
	return append([]worker.Option{
		worker.WithLogger(slog.Default()),
		worker.WithPullInterval(5 * time.Millisecond),
		worker.WithPulseInterval(5 * time.Millisecond),
	}, extra...)
}

func TestPool_RunsAllTasksThenStops(t *testing.T) {
	s, jobID := setupStore(t)
	reg := task.NewRegistry()

	var seen []string
	var mu sync.Mutex
	task.RegisterDefinition(reg, task.NewDefinition("greet", func(_ context.Context, a greetArgs) error {
		mu.Lock()
		seen = append(seen, a.Greeting+" "+a.Name)
		mu.Unlock()
		return nil
	}))

	tasks := []*task.Task{
		task.MustNew("greet", task.WithJob(jobID), task.WithLevel(1),
			task.WithArgs(greetArgs{Name: "ada", Greeting: "hi"})),
		task.MustNew("greet", task.WithJob(jobID), task.WithLevel(1),
			task.WithArgs(greetArgs{Name: "bob", Greeting: "hi"}),
			task.WithKwargs(map[string]string{"greeting": "hello"})),
		task.MustNew("greet", task.WithJob(jobID), task.WithLevel(1),
			task.WithArgs(greetArgs{Name: "cy", Greeting: "hey"})),
	}
	addTasks(t, s, tasks...)

	pool := worker.NewPool(s, reg, fastOpts()...)
	if err := pool.Run(context.Background(), task.Scope{JobID: &jobID}); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := []string{"hi ada", "hello bob", "hey cy"}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, seen[i], want[i])
		}
	}
	for _, tk := range tasks {
		got := getTask(t, s, tk.ID)
		if got.Status != task.StatusSuccess {
			t.Errorf("task %d status = %s, want success", tk.ID, got.Status)
		}
		if got.StartTime == nil || got.DoneTime == nil || got.TakeTime == nil {
			t.Errorf("task %d missing timestamps: %+v", tk.ID, got)
		}
	}
}

func TestPool_LowerLevelsFirst(t *testing.T) {
	s, jobID := setupStore(t)
	reg := task.NewRegistry()

	var order []float64
	task.RegisterDefinition(reg, task.NewDefinition("record", func(ctx context.Context, _ struct{}) error {
		tk, _ := task.FromContext(ctx)
		order = append(order, tk.Level)
		return nil
	}))
	addTasks(t, s,
		task.MustNew("record", task.WithJob(jobID), task.WithLevel(2)),
		task.MustNew("record", task.WithJob(jobID), task.WithLevel(0.5)),
		task.MustNew("record", task.WithJob(jobID), task.WithLevel(1)),
		task.MustNew("record", task.WithJob(jobID), task.WithLevel(0.5)),
	)

	if err := worker.NewPool(s, reg, fastOpts()...).Run(context.Background(), task.Scope{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := []float64{0.5, 0.5, 1, 2}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("expected level order %v, got %v", want, order)
		}
	}
}

func TestPool_ConcurrentRunnersExecuteEachTaskOnce(t *testing.T) {
	s, jobID := setupStore(t)
	reg := task.NewRegistry()

	var mu sync.Mutex
	runs := make(map[int64]int)
	task.RegisterDefinition(reg, task.NewDefinition("count", func(ctx context.Context, _ struct{}) error {
		tk, _ := task.FromContext(ctx)
		mu.Lock()
		runs[tk.ID]++
		mu.Unlock()
		time.Sleep(time.Millisecond)
		return nil
	}))

	const n = 30
	tasks := make([]*task.Task, n)
	for i := range tasks {
		tasks[i] = task.MustNew("count", task.WithJob(jobID), task.WithLevel(float64(i%3)))
	}
	addTasks(t, s, tasks...)

	pool := worker.NewPool(s, reg, fastOpts(worker.WithConcurrency(4))...)
	if err := pool.Run(context.Background(), task.Scope{JobID: &jobID}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(runs) != n {
		t.Fatalf("expected %d distinct tasks run, got %d", n, len(runs))
	}
	for id, c := range runs {
		if c != 1 {
			t.Errorf("task %d ran %d times", id, c)
		}
	}
}

func TestPool_LevelGate(t *testing.T) {
	s, jobID := setupStore(t)
	reg := task.NewRegistry()
	var calls atomic.Int32
	task.RegisterDefinition(reg, task.NewDefinition("noop", func(context.Context, struct{}) error {
		calls.Add(1)
		return nil
	}))

	// One level 0 task is running and another is still pending.
	addTasks(t, s,
		task.MustNew("noop", task.WithJob(jobID), task.WithLevel(0)),
		task.MustNew("noop", task.WithJob(jobID), task.WithLevel(0)),
	)
	high := task.MustNew("noop", task.WithJob(jobID), task.WithLevel(1))
	addTasks(t, s, high)
	if _, _, err := s.TakeNextTask(context.Background(), task.Scope{JobID: &jobID}); err != nil {
		t.Fatalf("take: %v", err)
	}

	levels, err := worker.ResolveLevel([]int{1})
	if err != nil {
		t.Fatalf("resolve level: %v", err)
	}
	err = worker.NewPool(s, reg, fastOpts()...).Run(context.Background(), task.Scope{JobID: &jobID, Levels: levels})
	if !errors.Is(err, taskq.ErrLevelGate) {
		t.Fatalf("expected ErrLevelGate, got %v", err)
	}
	if calls.Load() != 0 {
		t.Fatal("no task may run when the level gate fails")
	}
	if got := getTask(t, s, high.ID); got.Status != task.StatusPending {
		t.Fatalf("level 1 task must stay pending, got %s", got.Status)
	}
}

func TestPool_LevelRangeScopesRun(t *testing.T) {
	s, jobID := setupStore(t)
	reg := task.NewRegistry()
	task.RegisterDefinition(reg, task.NewDefinition("noop", func(context.Context, struct{}) error { return nil }))

	l0 := task.MustNew("noop", task.WithJob(jobID), task.WithLevel(0))
	l1 := task.MustNew("noop", task.WithJob(jobID), task.WithLevel(1))
	addTasks(t, s, l0, l1)

	levels, _ := worker.ResolveLevel([]int{0})
	if err := worker.NewPool(s, reg, fastOpts()...).Run(context.Background(), task.Scope{JobID: &jobID, Levels: levels}); err != nil {
		t.Fatalf("run level 0: %v", err)
	}
	if got := getTask(t, s, l0.ID).Status; got != task.StatusSuccess {
		t.Fatalf("level 0 status = %s, want success", got)
	}
	if got := getTask(t, s, l1.ID).Status; got != task.StatusPending {
		t.Fatalf("level 1 status = %s, want pending", got)
	}

	levels, _ = worker.ResolveLevel([]int{1})
	if err := worker.NewPool(s, reg, fastOpts()...).Run(context.Background(), task.Scope{JobID: &jobID, Levels: levels}); err != nil {
		t.Fatalf("run level 1: %v", err)
	}
	if got := getTask(t, s, l1.ID).Status; got != task.StatusSuccess {
		t.Fatalf("level 1 status = %s, want success", got)
	}
}

func TestPool_FailuresAreIsolated(t *testing.T) {
	s, jobID := setupStore(t)
	reg := task.NewRegistry()
	task.RegisterDefinition(reg, task.NewDefinition("flaky", func(_ context.Context, a struct {
		Fail bool `json:"fail"`
	}) error {
		if a.Fail {
			return errors.New("boom")
		}
		return nil
	}))

	bad := task.MustNew("flaky", task.WithJob(jobID), task.WithArgs(map[string]bool{"fail": true}))
	good := task.MustNew("flaky", task.WithJob(jobID), task.WithArgs(map[string]bool{"fail": false}))
	addTasks(t, s, bad, good)

	if err := worker.NewPool(s, reg, fastOpts()...).Run(context.Background(), task.Scope{}); err != nil {
		t.Fatalf("a failing task must not fail the run: %v", err)
	}
	if got := getTask(t, s, bad.ID).Status; got != task.StatusFailure {
		t.Errorf("bad status = %s, want failure", got)
	}
	if got := getTask(t, s, good.ID).Status; got != task.StatusSuccess {
		t.Errorf("good status = %s, want success", got)
	}
}

func TestPool_RaiseExceptionAggregates(t *testing.T) {
	s, jobID := setupStore(t)
	reg := task.NewRegistry()
	task.RegisterDefinition(reg, task.NewDefinition("fail", func(context.Context, struct{}) error {
		return errors.New("boom")
	}))
	addTasks(t, s,
		task.MustNew("fail", task.WithJob(jobID)),
		task.MustNew("fail", task.WithJob(jobID)),
	)

	rec := &recordingExt{}
	exts := ext.NewRegistry(slog.Default())
	exts.Register(rec)

	pool := worker.NewPool(s, reg, fastOpts(
		worker.WithConcurrency(2),
		worker.WithRaiseException(true),
		worker.WithExtensions(exts),
	)...)
	err := pool.Run(context.Background(), task.Scope{JobID: &jobID})
	if !errors.Is(err, taskq.ErrWorkersFailed) {
		t.Fatalf("expected ErrWorkersFailed, got %v", err)
	}
	if rec.count("failed") == 0 {
		t.Fatal("expected failed events")
	}
	if rec.count("shutdown") != 1 {
		t.Fatalf("expected one shutdown event, got %d", rec.count("shutdown"))
	}
}

func TestPool_RaiseExceptionInline(t *testing.T) {
	s, jobID := setupStore(t)
	reg := task.NewRegistry()
	task.RegisterDefinition(reg, task.NewDefinition("fail", func(context.Context, struct{}) error {
		return errors.New("boom")
	}))
	first := task.MustNew("fail", task.WithJob(jobID))
	second := task.MustNew("fail", task.WithJob(jobID))
	addTasks(t, s, first, second)

	err := worker.NewPool(s, reg, fastOpts(worker.WithRaiseException(true))...).Run(context.Background(), task.Scope{})
	if err == nil {
		t.Fatal("expected the task error to be raised")
	}
	if got := getTask(t, s, first.ID).Status; got != task.StatusFailure {
		t.Errorf("first status = %s, want failure", got)
	}
	if got := getTask(t, s, second.ID).Status; got != task.StatusPending {
		t.Errorf("second status = %s, want pending after the runner stopped", got)
	}
}

func TestPool_MaxJobs(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := s.CreateJob(ctx, &job.Job{Name: "j"}); err != nil {
			t.Fatalf("create job: %v", err)
		}
	}

	if err := worker.NewPool(s, task.NewRegistry(), fastOpts(worker.WithMaxJobs(2))...).Run(ctx, task.Scope{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	jobs, err := s.ListJobs(ctx, job.ListOpts{})
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != 4 || jobs[1].ID != 5 {
		t.Fatalf("expected jobs 4 and 5 to remain, got %+v", jobs)
	}
}

func TestRunner_WaitTimeout(t *testing.T) {
	s, jobID := setupStore(t)
	reg := task.NewRegistry()
	addTasks(t, s,
		task.MustNew("never", task.WithJob(jobID), task.WithLevel(0)),
		task.MustNew("never", task.WithJob(jobID), task.WithLevel(1)),
	)
	// Another worker holds level 0, so level 1 has to wait.
	if action, _, err := s.TakeNextTask(context.Background(), task.Scope{}); err != nil || action != task.ActionRunTask {
		t.Fatalf("take: %v %v", action, err)
	}

	opts := fastOpts(worker.WithWaitTimeout(30*time.Millisecond), worker.WithFailPulseTimeout(false))
	r := worker.NewRunner(s, worker.NewExecutor(s, reg, opts...), opts...)
	start := time.Now()
	err := r.Run(context.Background(), task.Scope{})
	if !errors.Is(err, taskq.ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}
	if time.Since(start) < 30*time.Millisecond {
		t.Fatal("runner gave up before the wait timeout")
	}
}

func TestRunner_BackoffCountsWaits(t *testing.T) {
	s, jobID := setupStore(t)
	addTasks(t, s,
		task.MustNew("never", task.WithJob(jobID), task.WithLevel(0)),
		task.MustNew("never", task.WithJob(jobID), task.WithLevel(1)),
	)
	if action, _, err := s.TakeNextTask(context.Background(), task.Scope{}); err != nil || action != task.ActionRunTask {
		t.Fatalf("take: %v %v", action, err)
	}

	var attempts []int
	strategy := backoff.Func(func(attempt int) time.Duration {
		attempts = append(attempts, attempt)
		return time.Millisecond
	})
	opts := fastOpts(
		worker.WithBackoff(strategy),
		worker.WithWaitTimeout(20*time.Millisecond),
		worker.WithFailPulseTimeout(false),
	)
	r := worker.NewRunner(s, worker.NewExecutor(s, task.NewRegistry(), opts...), opts...)
	if err := r.Run(context.Background(), task.Scope{}); !errors.Is(err, taskq.ErrWaitTimeout) {
		t.Fatalf("expected ErrWaitTimeout, got %v", err)
	}
	if len(attempts) < 2 {
		t.Fatalf("expected several waits, got %v", attempts)
	}
	for i, a := range attempts {
		if a != i+1 {
			t.Fatalf("attempt %d = %d, waits must count up from 1", i, a)
		}
	}
}

func TestRunner_RunForeverUntilCancelled(t *testing.T) {
	s, _ := setupStore(t)
	reg := task.NewRegistry()

	opts := fastOpts(worker.WithRunForever(true))
	r := worker.NewRunner(s, worker.NewExecutor(s, reg, opts...), opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx, task.Scope{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestRunner_SweepsStaleTasks(t *testing.T) {
	clk := newClock()
	s, jobID := setupStore(t, memory.WithClock(clk.Now))
	reg := task.NewRegistry()
	task.RegisterDefinition(reg, task.NewDefinition("noop", func(context.Context, struct{}) error { return nil }))

	stale := task.MustNew("noop", task.WithJob(jobID))
	next := task.MustNew("noop", task.WithJob(jobID))
	addTasks(t, s, stale, next)
	if _, _, err := s.TakeNextTask(context.Background(), task.Scope{}); err != nil {
		t.Fatalf("take: %v", err)
	}
	clk.Advance(10 * time.Minute)

	rec := &recordingExt{}
	exts := ext.NewRegistry(nil)
	exts.Register(rec)

	opts := fastOpts(worker.WithPulseTimeout(5*time.Minute), worker.WithExtensions(exts))
	r := worker.NewRunner(s, worker.NewExecutor(s, reg, opts...), opts...)
	if err := r.Run(context.Background(), task.Scope{}); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := getTask(t, s, stale.ID).Status; got != task.StatusFailure {
		t.Errorf("stale status = %s, want failure", got)
	}
	if got := getTask(t, s, next.ID).Status; got != task.StatusSuccess {
		t.Errorf("next status = %s, want success", got)
	}
	if rec.swept != 1 {
		t.Errorf("expected 1 swept task, got %d", rec.swept)
	}
}

func runOne(t *testing.T, s *memory.Store, reg *task.Registry, opts ...worker.Option) (*task.Task, error) {
	t.Helper()
	action, tk, err := s.TakeNextTask(context.Background(), task.Scope{})
	if err != nil || action != task.ActionRunTask {
		t.Fatalf("take: %v %v", action, err)
	}
	return tk, worker.NewExecutor(s, reg, fastOpts(opts...)...).Execute(context.Background(), tk)
}

func TestExecutor_SkipEntrypoint(t *testing.T) {
	s, jobID := setupStore(t)
	addTasks(t, s, task.MustNew(taskq.SkipEntrypoint, task.WithJob(jobID)))

	tk, err := runOne(t, s, task.NewRegistry())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	got := getTask(t, s, tk.ID)
	if got.Status != task.StatusSuccess {
		t.Fatalf("status = %s, want success", got.Status)
	}
	if got.StartTime != nil {
		t.Fatal("skipped tasks never start")
	}
}

func TestExecutor_UnknownEntrypoint(t *testing.T) {
	s, jobID := setupStore(t)
	addTasks(t, s, task.MustNew("missing.entrypoint", task.WithJob(jobID)))

	tk, err := runOne(t, s, task.NewRegistry())
	if err != nil {
		t.Fatalf("failures are not raised by default: %v", err)
	}
	if got := getTask(t, s, tk.ID).Status; got != task.StatusFailure {
		t.Fatalf("status = %s, want failure", got)
	}

	addTasks(t, s, task.MustNew("missing.entrypoint", task.WithJob(jobID)))
	_, err = runOne(t, s, task.NewRegistry(), worker.WithRaiseException(true))
	if !errors.Is(err, taskq.ErrUnknownEntrypoint) {
		t.Fatalf("expected ErrUnknownEntrypoint, got %v", err)
	}
}

func TestExecutor_BadArgsFailTask(t *testing.T) {
	s, jobID := setupStore(t)
	reg := task.NewRegistry()
	task.RegisterDefinition(reg, task.NewDefinition("greet", func(context.Context, greetArgs) error { return nil }))
	addTasks(t, s, task.MustNew("greet", task.WithJob(jobID), task.WithArgs([]int{1, 2})))

	_, err := runOne(t, s, reg, worker.WithRaiseException(true))
	if err == nil {
		t.Fatal("expected decode failure")
	}
}

func TestExecutor_StoresResult(t *testing.T) {
	s, jobID := setupStore(t)
	reg := task.NewRegistry()
	task.RegisterResultDefinition(reg, task.NewResultDefinition("sum",
		func(_ context.Context, nums []int) (int, error) {
			total := 0
			for _, n := range nums {
				total += n
			}
			return total, nil
		},
		task.WithResultCodec(object.CodecMsgpack),
	))
	addTasks(t, s, task.MustNew("sum", task.WithJob(jobID), task.WithArgs([]int{1, 2, 3})))

	tk, err := runOne(t, s, reg)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	got := getTask(t, s, tk.ID)
	if got.Status != task.StatusSuccess || got.ResultID == nil {
		t.Fatalf("expected success with result, got %+v", got)
	}
	o, err := s.GetObject(context.Background(), *got.ResultID)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if o.Serializer != object.CodecMsgpack {
		t.Errorf("serializer = %q, want msgpack", o.Serializer)
	}
	var sum int
	if err := o.Decode(&sum); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if sum != 6 {
		t.Fatalf("result = %d, want 6", sum)
	}
}

func TestExecutor_PanicFailsTask(t *testing.T) {
	s, jobID := setupStore(t)
	reg := task.NewRegistry()
	task.RegisterDefinition(reg, task.NewDefinition("panic", func(context.Context, struct{}) error {
		panic("kaboom")
	}))
	addTasks(t, s, task.MustNew("panic", task.WithJob(jobID)))

	tk, err := runOne(t, s, reg)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := getTask(t, s, tk.ID).Status; got != task.StatusFailure {
		t.Fatalf("status = %s, want failure", got)
	}
}

func TestExecutor_StateKWArgsSharedAcrossTasks(t *testing.T) {
	s, jobID := setupStore(t)
	ctx := context.Background()
	reg := task.NewRegistry()

	type conn struct{ dsn string }
	var inits atomic.Int32
	task.RegisterInitializer(reg, "open_conn", func(_ context.Context, a struct {
		DSN string `json:"dsn"`
	}) (any, error) {
		inits.Add(1)
		return &conn{dsn: a.DSN}, nil
	})

	var seen []*conn
	task.RegisterDefinition(reg, task.NewDefinition("use", func(ctx context.Context, _ struct{}) error {
		c, err := task.State[*conn](ctx, "conn")
		if err != nil {
			return err
		}
		seen = append(seen, c)
		return nil
	}, task.WithStateKWArgs("conn")))

	args := object.MustNew(object.CodecJSON, map[string]string{"dsn": "mem://x"})
	if err := s.CreateObject(ctx, args); err != nil {
		t.Fatalf("create object: %v", err)
	}
	if err := s.AddStateKWArg(ctx, &statekw.StateKWArg{
		Name: "conn", Entrypoint: "open_conn", ArgsID: &args.ID, JobID: jobID,
	}); err != nil {
		t.Fatalf("add state kwarg: %v", err)
	}
	addTasks(t, s,
		task.MustNew("use", task.WithJob(jobID)),
		task.MustNew("use", task.WithJob(jobID)),
		task.MustNew("use", task.WithJob(jobID)),
	)

	if err := worker.NewPool(s, reg, fastOpts(worker.WithRaiseException(true))...).Run(ctx, task.Scope{}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if inits.Load() != 1 {
		t.Fatalf("expected one initialisation, got %d", inits.Load())
	}
	if len(seen) != 3 || seen[0] != seen[1] || seen[1] != seen[2] || seen[0].dsn != "mem://x" {
		t.Fatalf("expected the same conn for every task, got %v", seen)
	}
}

func TestExecutor_LateReportKeepsSweepFailure(t *testing.T) {
	s, jobID := setupStore(t)
	reg := task.NewRegistry()
	task.RegisterDefinition(reg, task.NewDefinition("slow", func(ctx context.Context, _ struct{}) error {
		// Simulate the sweep failing this task while it runs.
		tk, _ := task.FromContext(ctx)
		stored, err := s.GetTask(ctx, tk.ID)
		if err != nil {
			return err
		}
		stored.Status = task.StatusFailure
		return s.UpdateTask(ctx, stored)
	}))
	addTasks(t, s, task.MustNew("slow", task.WithJob(jobID)))

	rec := &recordingExt{}
	exts := ext.NewRegistry(nil)
	exts.Register(rec)

	tk, err := runOne(t, s, reg, worker.WithExtensions(exts), worker.WithRaiseException(true))
	if err != nil {
		t.Fatalf("a late report is not an error: %v", err)
	}
	if got := getTask(t, s, tk.ID).Status; got != task.StatusFailure {
		t.Fatalf("status = %s, the sweep's failure must stand", got)
	}
	if rec.count("late") != 1 {
		t.Fatalf("expected one late report, got %d", rec.count("late"))
	}
	if rec.count("succeeded") != 0 {
		t.Fatal("a late report must not count as success")
	}
}

func TestExecutor_LateFailureNotCounted(t *testing.T) {
	s, jobID := setupStore(t)
	reg := task.NewRegistry()
	task.RegisterDefinition(reg, task.NewDefinition("broken", func(ctx context.Context, _ struct{}) error {
		tk, _ := task.FromContext(ctx)
		stored, err := s.GetTask(ctx, tk.ID)
		if err != nil {
			return err
		}
		stored.Status = task.StatusFailure
		if err := s.UpdateTask(ctx, stored); err != nil {
			return err
		}
		return errors.New("boom")
	}))
	addTasks(t, s, task.MustNew("broken", task.WithJob(jobID)))

	rec := &recordingExt{}
	exts := ext.NewRegistry(nil)
	exts.Register(rec)

	if _, err := runOne(t, s, reg, worker.WithExtensions(exts)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if rec.count("late") != 1 {
		t.Fatalf("expected one late report, got %d", rec.count("late"))
	}
	if rec.count("failed") != 0 {
		t.Fatal("a late report must not count as a failure")
	}
}

func TestExecutor_PulsesWhileStateInitialises(t *testing.T) {
	s, jobID := setupStore(t)
	ctx := context.Background()
	tasks := []*task.Task{task.MustNew("use", task.WithJob(jobID))}
	addTasks(t, s, tasks...)
	taskID := tasks[0].ID

	reg := task.NewRegistry()
	task.RegisterInitializer(reg, "slow_conn", func(context.Context, struct{}) (any, error) {
		first := getTask(t, s, taskID).PulseTime
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if p := getTask(t, s, taskID).PulseTime; p != nil && (first == nil || p.After(*first)) {
				return "conn", nil
			}
			time.Sleep(5 * time.Millisecond)
		}
		return nil, errors.New("no pulse while initialising")
	})
	task.RegisterDefinition(reg, task.NewDefinition("use", func(ctx context.Context, _ struct{}) error {
		_, err := task.State[string](ctx, "conn")
		return err
	}, task.WithStateKWArgs("conn")))
	if err := s.AddStateKWArg(ctx, &statekw.StateKWArg{
		Name: "conn", Entrypoint: "slow_conn", JobID: jobID,
	}); err != nil {
		t.Fatalf("add state kwarg: %v", err)
	}

	tk, err := runOne(t, s, reg, worker.WithRaiseException(true))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := getTask(t, s, tk.ID).Status; got != task.StatusSuccess {
		t.Fatalf("status = %s, want success", got)
	}
}

func TestExecutor_MiddlewareWrapsHandler(t *testing.T) {
	s, jobID := setupStore(t)
	reg := task.NewRegistry()
	task.RegisterDefinition(reg, task.NewDefinition("noop", func(context.Context, struct{}) error { return nil }))
	addTasks(t, s, task.MustNew("noop", task.WithJob(jobID)))

	var wrapped bool
	var mw middleware.Middleware = func(ctx context.Context, _ *task.Task, next middleware.Handler) error {
		wrapped = true
		return next(ctx)
	}
	if _, err := runOne(t, s, reg, worker.WithMiddleware(mw)); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !wrapped {
		t.Fatal("middleware was not called")
	}
}
