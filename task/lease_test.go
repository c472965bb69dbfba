package task_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/task"
)

func lvl(v float64) *float64 { return &v }

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		pending   *float64
		running   *float64
		action    task.Action
		anomalous bool
	}{
		{"nothing left", nil, nil, task.ActionStop, false},
		{"only running", nil, lvl(1), task.ActionWait, false},
		{"only pending", lvl(1), nil, task.ActionRunTask, false},
		{"pending above running", lvl(2), lvl(1), task.ActionWait, false},
		{"pending below running", lvl(1), lvl(2), task.ActionRunTask, true},
		{"same level", lvl(1), lvl(1), task.ActionRunTask, false},
		{"fractional levels", lvl(1.5), lvl(1.25), task.ActionWait, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := task.Decide(tt.pending, tt.running)
			if d.Action != tt.action {
				t.Errorf("Action = %q, want %q", d.Action, tt.action)
			}
			if d.Anomalous != tt.anomalous {
				t.Errorf("Anomalous = %v, want %v", d.Anomalous, tt.anomalous)
			}
		})
	}
}

func TestStatusChangeFor(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	c, err := task.StatusChangeFor(task.StatusRunning, at)
	if err != nil {
		t.Fatalf("running: %v", err)
	}
	if !c.PulseTime.Equal(at) || c.DoneTime != nil {
		t.Errorf("running change = %+v", c)
	}

	for _, st := range []task.Status{task.StatusSuccess, task.StatusFailure} {
		c, err := task.StatusChangeFor(st, at)
		if err != nil {
			t.Fatalf("%s: %v", st, err)
		}
		if !c.PulseTime.Equal(at) || c.DoneTime == nil || !c.DoneTime.Equal(at) {
			t.Errorf("%s change = %+v", st, c)
		}
	}

	for _, st := range []task.Status{task.StatusPending, "bogus"} {
		if _, err := task.StatusChangeFor(st, at); !errors.Is(err, taskq.ErrUnsupportedStatus) {
			t.Errorf("%q: expected ErrUnsupportedStatus, got %v", st, err)
		}
	}
}

func TestStatusChange_Apply(t *testing.T) {
	at := time.Now().UTC()
	tk := &task.Task{Status: task.StatusRunning}

	c, _ := task.StatusChangeFor(task.StatusRunning, at)
	c.Apply(tk)
	if tk.DoneTime != nil || tk.PulseTime == nil {
		t.Fatalf("after pulse: %+v", tk)
	}

	c, _ = task.StatusChangeFor(task.StatusSuccess, at)
	c.Apply(tk)
	if tk.Status != task.StatusSuccess || tk.DoneTime == nil {
		t.Fatalf("after success: %+v", tk)
	}
}

func TestLevelRange_Contains(t *testing.T) {
	tests := []struct {
		name  string
		r     task.LevelRange
		level float64
		want  bool
	}{
		{"unbounded", task.LevelRange{}, -5, true},
		{"start inclusive", task.Levels(1, 2), 1, true},
		{"stop exclusive", task.Levels(1, 2), 2, false},
		{"below start", task.Levels(1, 2), 0.5, false},
		{"only start", task.LevelRange{Start: lvl(3)}, 100, true},
		{"only stop", task.LevelRange{Stop: lvl(3)}, 2.999, true},
		{"zero start honoured", task.LevelRange{Start: lvl(0)}, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.r.Contains(tt.level); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.level, got, tt.want)
			}
		})
	}
}

func TestScope_Contains(t *testing.T) {
	jobA := int64(1)
	s := task.Scope{JobID: &jobA, Levels: task.Levels(0, 1)}

	if !s.Contains(&task.Task{JobID: 1, Level: 0}) {
		t.Error("expected task in job A level 0 to be in scope")
	}
	if s.Contains(&task.Task{JobID: 2, Level: 0}) {
		t.Error("task of job B must not be in scope")
	}
	if s.Contains(&task.Task{JobID: 1, Level: 1}) {
		t.Error("level 1 must be outside [0, 1)")
	}
	if !(task.Scope{}).Contains(&task.Task{JobID: 9, Level: 42}) {
		t.Error("zero scope must contain everything")
	}
}

func TestLevelRange_String(t *testing.T) {
	if got := task.Levels(1, 2.5).String(); got != "[1, 2.5)" {
		t.Errorf("String() = %q", got)
	}
	if got := (task.LevelRange{}).String(); got != "[, )" {
		t.Errorf("String() = %q", got)
	}
}

func TestCanTransition(t *testing.T) {
	var (
		p = task.StatusPending
		r = task.StatusRunning
		s = task.StatusSuccess
		f = task.StatusFailure
	)
	tests := []struct {
		from, to task.Status
		want     bool
	}{
		{p, p, true},
		{p, r, true},
		{p, s, false},
		{p, f, false},
		{r, p, false},
		{r, r, true},
		{r, s, true},
		{r, f, true},
		{s, p, false},
		{s, r, false},
		{s, s, true},
		{s, f, false},
		{f, p, false},
		{f, r, false},
		{f, s, false},
		{f, f, true},
	}
	for _, tt := range tests {
		if got := task.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
	if task.CanTransition("", task.StatusPending) {
		t.Error("unknown source status must not transition")
	}
}
