package task_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/object"
	"github.com/xraph/taskq/task"
)

func TestNew_Options(t *testing.T) {
	tk, err := task.New("images.resize",
		task.WithJob(3),
		task.WithName("resize"),
		task.WithDescription("resize one image"),
		task.WithLevel(1.5),
		task.WithArgsCodec(object.CodecMsgpack, map[string]int{"width": 100}),
		task.WithKwargs(map[string]int{"height": 50}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if tk.Status != task.StatusPending {
		t.Errorf("Status = %q, want pending", tk.Status)
	}
	if tk.JobID != 3 || tk.Level != 1.5 || tk.Name != "resize" {
		t.Errorf("unexpected task %+v", tk)
	}
	if tk.Args == nil || tk.Args.Serializer != object.CodecMsgpack {
		t.Errorf("Args = %+v", tk.Args)
	}
	if tk.Kwargs == nil || tk.Kwargs.Serializer != object.DefaultCodec {
		t.Errorf("Kwargs = %+v", tk.Kwargs)
	}
}

func TestNew_BadCodec(t *testing.T) {
	_, err := task.New("x", task.WithArgsCodec("pickle", 1))
	if !errors.Is(err, taskq.ErrUnknownCodec) {
		t.Fatalf("expected ErrUnknownCodec, got %v", err)
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range []string{"pending", "running", "success", "failure"} {
		if _, err := task.ParseStatus(s); err != nil {
			t.Errorf("ParseStatus(%q): %v", s, err)
		}
	}
	if _, err := task.ParseStatus("done"); !errors.Is(err, taskq.ErrUnknownStatus) {
		t.Errorf("expected ErrUnknownStatus, got %v", err)
	}
	if !task.StatusFailure.Terminal() || task.StatusRunning.Terminal() {
		t.Error("Terminal() mismatch")
	}
}

func TestParseAction(t *testing.T) {
	for _, s := range []string{"run_task", "wait", "stop"} {
		if _, err := task.ParseAction(s); err != nil {
			t.Errorf("ParseAction(%q): %v", s, err)
		}
	}
	if _, err := task.ParseAction("sleep"); !errors.Is(err, taskq.ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestContext_TaskAndState(t *testing.T) {
	ctx := context.Background()
	if _, ok := task.FromContext(ctx); ok {
		t.Fatal("empty context should carry no task")
	}

	tk := &task.Task{ID: 4}
	ctx = task.WithTask(ctx, tk)
	ctx = task.WithState(ctx, map[string]any{"db": "conn", "n": 3})

	got, ok := task.FromContext(ctx)
	if !ok || got.ID != 4 {
		t.Fatalf("FromContext = %v, %v", got, ok)
	}

	db, err := task.State[string](ctx, "db")
	if err != nil || db != "conn" {
		t.Fatalf("State[string] = %q, %v", db, err)
	}
	if _, err := task.State[string](ctx, "n"); err == nil {
		t.Error("expected type mismatch error")
	}
	if _, err := task.State[string](ctx, "missing"); !errors.Is(err, taskq.ErrStateKWUndefined) {
		t.Errorf("expected ErrStateKWUndefined, got %v", err)
	}
}
