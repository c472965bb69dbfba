package task_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/object"
	"github.com/xraph/taskq/task"
)

type emailArgs struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
}

func call(t *testing.T, args, kwargs any) *task.Call {
	t.Helper()
	c := &task.Call{}
	if args != nil {
		c.Args = object.MustNew(object.CodecJSON, args)
	}
	if kwargs != nil {
		c.Kwargs = object.MustNew(object.CodecMsgpack, kwargs)
	}
	return c
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := task.NewRegistry()

	var got emailArgs
	def := task.NewDefinition("send-email", func(_ context.Context, a emailArgs) error {
		got = a
		return nil
	})
	task.RegisterDefinition(r, def)

	e, ok := r.Get("send-email")
	if !ok {
		t.Fatal("expected entrypoint to be registered")
	}

	res, err := e.Handler(context.Background(), call(t, emailArgs{To: "alice@example.com", Subject: "Hello"}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result, got %v", res)
	}
	if got.To != "alice@example.com" {
		t.Errorf("To = %q, want %q", got.To, "alice@example.com")
	}
	if got.Subject != "Hello" {
		t.Errorf("Subject = %q, want %q", got.Subject, "Hello")
	}
}

func TestRegistry_KwargsOverlayArgs(t *testing.T) {
	r := task.NewRegistry()

	var got emailArgs
	task.RegisterDefinition(r, task.NewDefinition("send-email", func(_ context.Context, a emailArgs) error {
		got = a
		return nil
	}))

	e, _ := r.Get("send-email")
	c := call(t, emailArgs{To: "alice@example.com", Subject: "Hello"}, map[string]string{"subject": "Override"})
	if _, err := e.Handler(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.To != "alice@example.com" || got.Subject != "Override" {
		t.Errorf("got %+v", got)
	}
}

func TestRegistry_Lookup_Unknown(t *testing.T) {
	r := task.NewRegistry()
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatal("expected no entrypoint for unregistered name")
	}
	_, err := r.Lookup("nonexistent")
	if !errors.Is(err, taskq.ErrUnknownEntrypoint) {
		t.Fatalf("expected ErrUnknownEntrypoint, got %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	r := task.NewRegistry()
	task.RegisterDefinition(r, task.NewDefinition("task-c", func(_ context.Context, _ struct{}) error { return nil }))
	task.RegisterDefinition(r, task.NewDefinition("task-a", func(_ context.Context, _ struct{}) error { return nil }))
	task.RegisterDefinition(r, task.NewDefinition("task-b", func(_ context.Context, _ struct{}) error { return nil }))

	names := r.Names()
	expected := []string{"task-a", "task-b", "task-c"}
	if len(names) != len(expected) {
		t.Fatalf("expected %d names, got %d", len(expected), len(names))
	}
	for i, want := range expected {
		if names[i] != want {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want)
		}
	}
}

func TestRegistry_InvalidArgs(t *testing.T) {
	r := task.NewRegistry()
	task.RegisterDefinition(r, task.NewDefinition("typed", func(_ context.Context, _ emailArgs) error {
		t.Fatal("handler should not be called with invalid args")
		return nil
	}))

	e, _ := r.Get("typed")
	c := &task.Call{Args: &object.Object{Deserializer: object.CodecJSON, Blob: []byte(`{invalid json`)}}
	if _, err := e.Handler(context.Background(), c); err == nil {
		t.Fatal("expected error for invalid args")
	}
}

func TestRegistry_EmptyArgs(t *testing.T) {
	r := task.NewRegistry()
	called := false
	task.RegisterDefinition(r, task.NewDefinition("no-args", func(_ context.Context, _ struct{}) error {
		called = true
		return nil
	}))

	e, _ := r.Get("no-args")
	if _, err := e.Handler(context.Background(), &task.Call{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty args")
	}
}

func TestRegistry_HandlerError(t *testing.T) {
	r := task.NewRegistry()
	want := errors.New("handler failed")
	task.RegisterDefinition(r, task.NewDefinition("failing", func(_ context.Context, _ struct{}) error {
		return want
	}))

	e, _ := r.Get("failing")
	_, err := e.Handler(context.Background(), &task.Call{})
	if !errors.Is(err, want) {
		t.Fatalf("expected %v, got %v", want, err)
	}
}

func TestRegistry_OverwriteHandler(t *testing.T) {
	r := task.NewRegistry()
	task.RegisterDefinition(r, task.NewDefinition("overwrite", func(_ context.Context, _ struct{}) error {
		return errors.New("old")
	}))
	task.RegisterDefinition(r, task.NewDefinition("overwrite", func(_ context.Context, _ struct{}) error {
		return errors.New("new")
	}))

	e, _ := r.Get("overwrite")
	_, err := e.Handler(context.Background(), &task.Call{})
	if err == nil || err.Error() != "new" {
		t.Fatalf("expected 'new' error, got %v", err)
	}
}

func TestRegistry_ResultDefinition(t *testing.T) {
	r := task.NewRegistry()
	task.RegisterResultDefinition(r, task.NewResultDefinition("sum",
		func(_ context.Context, in []int) (int, error) {
			total := 0
			for _, v := range in {
				total += v
			}
			return total, nil
		},
		task.WithResultCodec(object.CodecMsgpack),
	))

	e, _ := r.Get("sum")
	if e.Opts.ResultCodec != object.CodecMsgpack {
		t.Errorf("ResultCodec = %q, want %q", e.Opts.ResultCodec, object.CodecMsgpack)
	}
	res, err := e.Handler(context.Background(), call(t, []int{1, 2, 3}, nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res != 6 {
		t.Errorf("result = %v, want 6", res)
	}
}

func TestRegistry_Initializer(t *testing.T) {
	r := task.NewRegistry()
	task.RegisterInitializer(r, "conn", func(_ context.Context, dsn string) (any, error) {
		return "connected:" + dsn, nil
	})

	init, err := r.Initializer("conn")
	if err != nil {
		t.Fatalf("Initializer: %v", err)
	}
	v, err := init(context.Background(), call(t, "db://x", nil))
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if v != "connected:db://x" {
		t.Errorf("value = %v", v)
	}

	if _, err := r.Initializer("missing"); !errors.Is(err, taskq.ErrUnknownEntrypoint) {
		t.Fatalf("expected ErrUnknownEntrypoint, got %v", err)
	}
}

func TestDefinition_StateKWArgs(t *testing.T) {
	def := task.NewDefinition("uses-state", func(_ context.Context, _ struct{}) error { return nil },
		task.WithStateKWArgs("db", "cache"))
	if len(def.Opts.StateKWArgs) != 2 || def.Opts.StateKWArgs[0] != "db" {
		t.Errorf("StateKWArgs = %v", def.Opts.StateKWArgs)
	}
}
