package statekw_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/job"
	"github.com/xraph/taskq/object"
	"github.com/xraph/taskq/statekw"
	"github.com/xraph/taskq/store/memory"
	"github.com/xraph/taskq/task"
)

type dbArgs struct {
	DSN  string `json:"dsn"`
	Pool int    `json:"pool"`
}

type fakeDB struct {
	dsn  string
	pool int
}

func setupCache(t *testing.T, init func(ctx context.Context, args dbArgs) (any, error)) (*statekw.Cache, *memory.Store, int64) {
	t.Helper()
	ctx := context.Background()
	s := memory.New()

	j := &job.Job{Name: "with-state"}
	if err := s.CreateJob(ctx, j); err != nil {
		t.Fatalf("create job: %v", err)
	}

	args := object.MustNew(object.CodecJSON, dbArgs{DSN: "mem://a"})
	kwargs := object.MustNew(object.CodecJSON, map[string]int{"pool": 4})
	for _, o := range []*object.Object{args, kwargs} {
		if err := s.CreateObject(ctx, o); err != nil {
			t.Fatalf("create object: %v", err)
		}
	}
	if err := s.AddStateKWArg(ctx, &statekw.StateKWArg{
		Name: "db", Entrypoint: "open_db", ArgsID: &args.ID, KwargsID: &kwargs.ID, JobID: j.ID,
	}); err != nil {
		t.Fatalf("add state kwarg: %v", err)
	}

	reg := task.NewRegistry()
	task.RegisterInitializer(reg, "open_db", init)
	return statekw.NewCache(s, s, reg, nil), s, j.ID
}

func TestResolveInitialisesOncePerJob(t *testing.T) {
	var calls atomic.Int32
	cache, _, jobID := setupCache(t, func(_ context.Context, a dbArgs) (any, error) {
		calls.Add(1)
		return &fakeDB{dsn: a.DSN, pool: a.Pool}, nil
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]any, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			values, err := cache.Resolve(ctx, jobID, []string{"db"})
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			results[i] = values["db"]
		}(i)
	}
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("expected 1 initialisation, got %d", got)
	}
	db, ok := results[0].(*fakeDB)
	if !ok {
		t.Fatalf("expected *fakeDB, got %T", results[0])
	}
	if db.dsn != "mem://a" || db.pool != 4 {
		t.Fatalf("expected args with kwargs overlay, got %+v", db)
	}
	for _, r := range results[1:] {
		if r != results[0] {
			t.Fatal("every caller must see the same instance")
		}
	}
}

func TestResolveUndefined(t *testing.T) {
	cache, _, jobID := setupCache(t, func(context.Context, dbArgs) (any, error) { return 1, nil })
	_, err := cache.Resolve(context.Background(), jobID, []string{"cache"})
	if !errors.Is(err, taskq.ErrStateKWUndefined) {
		t.Fatalf("expected ErrStateKWUndefined, got %v", err)
	}
}

func TestResolveEmpty(t *testing.T) {
	cache, _, jobID := setupCache(t, func(context.Context, dbArgs) (any, error) { return 1, nil })
	values, err := cache.Resolve(context.Background(), jobID, nil)
	if err != nil || values != nil {
		t.Fatalf("expected nil, nil; got %v, %v", values, err)
	}
}

func TestResolveRetriesAfterFailure(t *testing.T) {
	var calls atomic.Int32
	cache, _, jobID := setupCache(t, func(context.Context, dbArgs) (any, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("connection refused")
		}
		return "ok", nil
	})
	ctx := context.Background()

	if _, err := cache.Resolve(ctx, jobID, []string{"db"}); err == nil {
		t.Fatal("expected first initialisation to fail")
	}
	values, err := cache.Resolve(ctx, jobID, []string{"db"})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if values["db"] != "ok" {
		t.Fatalf("expected ok, got %v", values["db"])
	}
}

func TestForget(t *testing.T) {
	var calls atomic.Int32
	cache, _, jobID := setupCache(t, func(context.Context, dbArgs) (any, error) {
		calls.Add(1)
		return calls.Load(), nil
	})
	ctx := context.Background()

	_, _ = cache.Resolve(ctx, jobID, []string{"db"})
	cache.Forget(jobID)
	_, _ = cache.Resolve(ctx, jobID, []string{"db"})
	if calls.Load() != 2 {
		t.Fatalf("expected re-initialisation after Forget, got %d calls", calls.Load())
	}
}

func TestUnknownInitializer(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	j := &job.Job{Name: "x"}
	_ = s.CreateJob(ctx, j)
	_ = s.AddStateKWArg(ctx, &statekw.StateKWArg{Name: "db", Entrypoint: "missing", JobID: j.ID})

	cache := statekw.NewCache(s, s, task.NewRegistry(), nil)
	if _, err := cache.Resolve(ctx, j.ID, []string{"db"}); !errors.Is(err, taskq.ErrUnknownEntrypoint) {
		t.Fatalf("expected ErrUnknownEntrypoint, got %v", err)
	}
}
