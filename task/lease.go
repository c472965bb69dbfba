package task

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/xraph/taskq"
)

// LevelRange bounds leasing to levels in [Start, Stop). Either bound may be
// nil, meaning unbounded on that side.
type LevelRange struct {
	Start *float64 `json:"level_start,omitempty"`
	Stop  *float64 `json:"level_stop,omitempty"`
}

// Levels returns the range [start, stop).
func Levels(start, stop float64) LevelRange {
	return LevelRange{Start: &start, Stop: &stop}
}

// Contains reports whether level falls inside the range.
func (r LevelRange) Contains(level float64) bool {
	if r.Start != nil && level < *r.Start {
		return false
	}
	if r.Stop != nil && level >= *r.Stop {
		return false
	}
	return true
}

func (r LevelRange) String() string {
	bound := func(p *float64) string {
		if p == nil {
			return ""
		}
		return strconv.FormatFloat(*p, 'g', -1, 64)
	}
	return "[" + bound(r.Start) + ", " + bound(r.Stop) + ")"
}

// Scope restricts leasing to one job and a level range. The zero Scope
// covers every task.
type Scope struct {
	JobID  *int64
	Levels LevelRange
}

// Contains reports whether t is inside the scope.
func (s Scope) Contains(t *Task) bool {
	if s.JobID != nil && t.JobID != *s.JobID {
		return false
	}
	return s.Levels.Contains(t.Level)
}

// Decision is the outcome of Decide.
type Decision struct {
	Action Action
	// Anomalous is set when a pending level lies below a running level.
	// Leasing proceeds but the store logs a warning.
	Anomalous bool
}

// Decide applies the leasing table to the minimum pending and minimum
// running levels of a scope. A nil pointer means no task in that status.
//
//	pending  running  action
//	-        -        stop
//	-        R        wait
//	P        -        run_task
//	P > R    R        wait
//	P < R    R        run_task (anomalous)
//	P == R   R        run_task
func Decide(minPending, minRunning *float64) Decision {
	switch {
	case minPending == nil && minRunning == nil:
		return Decision{Action: ActionStop}
	case minPending == nil:
		return Decision{Action: ActionWait}
	case minRunning == nil:
		return Decision{Action: ActionRunTask}
	case *minPending > *minRunning:
		return Decision{Action: ActionWait}
	case *minPending < *minRunning:
		return Decision{Action: ActionRunTask, Anomalous: true}
	default:
		return Decision{Action: ActionRunTask}
	}
}

// predecessors lists, per status, the statuses a task may hold before it
// is written with that status. Terminal statuses are never left.
var predecessors = map[Status][]Status{
	StatusPending: {StatusPending},
	StatusRunning: {StatusPending, StatusRunning},
	StatusSuccess: {StatusRunning, StatusSuccess},
	StatusFailure: {StatusRunning, StatusFailure},
}

// CanTransition reports whether a task in status from may be written with
// status to: pending to running to success or failure, or unchanged.
func CanTransition(from, to Status) bool {
	return slices.Contains(predecessors[to], from)
}

// Predecessors returns the statuses from which to can be written.
func Predecessors(to Status) []Status {
	return slices.Clone(predecessors[to])
}

// StatusChange is the set of columns a status update writes.
type StatusChange struct {
	Status    Status
	PulseTime time.Time
	// DoneTime is set only for terminal statuses.
	DoneTime *time.Time
}

// StatusChangeFor returns the columns written when a running task reports
// status at time at. Running refreshes the pulse; success and failure also
// stamp the done time. Any other status is a programming error.
func StatusChangeFor(status Status, at time.Time) (StatusChange, error) {
	switch status {
	case StatusRunning:
		return StatusChange{Status: status, PulseTime: at}, nil
	case StatusSuccess, StatusFailure:
		done := at
		return StatusChange{Status: status, PulseTime: at, DoneTime: &done}, nil
	default:
		return StatusChange{}, fmt.Errorf("%w: %q", taskq.ErrUnsupportedStatus, status)
	}
}

// Apply writes the change onto t.
func (c StatusChange) Apply(t *Task) {
	pulse := c.PulseTime
	t.Status = c.Status
	t.PulseTime = &pulse
	if c.DoneTime != nil {
		done := *c.DoneTime
		t.DoneTime = &done
	}
}
