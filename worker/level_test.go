package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/task"
	"github.com/xraph/taskq/worker"
)

func TestResolveLevel(t *testing.T) {
	tests := []struct {
		levels []int
		want   string
	}{
		{nil, "[, )"},
		{[]int{2}, "[2, 3)"},
		{[]int{-1}, "[-1, 0)"},
		{[]int{1, 4}, "[1, 4)"},
	}
	for _, tt := range tests {
		got, err := worker.ResolveLevel(tt.levels)
		if err != nil {
			t.Errorf("ResolveLevel(%v): unexpected error %v", tt.levels, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ResolveLevel(%v) = %s, want %s", tt.levels, got, tt.want)
		}
	}
}

func TestResolveLevelInvalid(t *testing.T) {
	for _, levels := range [][]int{{1, 2, 3}, {3, 3}, {4, 1}} {
		if _, err := worker.ResolveLevel(levels); !errors.Is(err, taskq.ErrInvalidLevel) {
			t.Errorf("ResolveLevel(%v): expected ErrInvalidLevel, got %v", levels, err)
		}
	}
}

func TestCheckLevelGate(t *testing.T) {
	s, jobID := setupStore(t)
	ctx := context.Background()
	low := task.MustNew("noop", task.WithJob(jobID), task.WithLevel(0))
	addTasks(t, s, low, task.MustNew("noop", task.WithJob(jobID), task.WithLevel(1)))

	level1, _ := worker.ResolveLevel([]int{1})
	scope := task.Scope{JobID: &jobID, Levels: level1}

	if err := worker.CheckLevelGate(ctx, s, task.Scope{JobID: &jobID}); err != nil {
		t.Fatalf("unbounded scope must pass: %v", err)
	}
	if err := worker.CheckLevelGate(ctx, s, scope); !errors.Is(err, taskq.ErrLevelGate) {
		t.Fatalf("expected ErrLevelGate, got %v", err)
	}

	// Running is no longer pending, so the gate opens.
	if _, _, err := s.TakeNextTask(ctx, task.Scope{JobID: &jobID}); err != nil {
		t.Fatalf("take: %v", err)
	}
	if err := worker.CheckLevelGate(ctx, s, scope); err != nil {
		t.Fatalf("expected gate to pass once level 0 left pending: %v", err)
	}
}
