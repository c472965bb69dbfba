package memory_test

import (
	"context"
	"testing"

	"github.com/xraph/taskq/job"
	"github.com/xraph/taskq/store"
	"github.com/xraph/taskq/store/memory"
	"github.com/xraph/taskq/store/storetest"
	"github.com/xraph/taskq/task"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return memory.New()
	})
}

func TestLifecycle(t *testing.T) {
	t.Parallel()
	s := memory.New()
	ctx := context.Background()

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Migrate", func() error { return s.Migrate(ctx) }},
		{"Ping", func() error { return s.Ping(ctx) }},
		{"Close", func() error { return s.Close() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); err != nil {
				t.Fatalf("%s returned error: %v", tt.name, err)
			}
		})
	}
}

func TestReturnedTasksAreCopies(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	j := &job.Job{Name: "copies"}
	_ = s.CreateJob(ctx, j)
	tk := task.MustNew("demo", task.WithJob(j.ID))
	if err := s.AddTasks(ctx, tk); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, _ := s.GetTask(ctx, tk.ID)
	got.Status = task.StatusFailure
	again, _ := s.GetTask(ctx, tk.ID)
	if again.Status != task.StatusPending {
		t.Fatalf("mutating a returned task leaked into the store: %s", again.Status)
	}
}

func TestDeleteObjectClearsReferences(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	j := &job.Job{Name: "refs"}
	_ = s.CreateJob(ctx, j)
	tk := task.MustNew("demo", task.WithJob(j.ID), task.WithArgs(1))
	if err := s.AddTasks(ctx, tk); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.DeleteObject(ctx, *tk.ArgsID); err != nil {
		t.Fatalf("delete object: %v", err)
	}
	got, _ := s.GetTask(ctx, tk.ID)
	if got.ArgsID != nil {
		t.Fatalf("expected args_id cleared, got %d", *got.ArgsID)
	}
}
