// Package statekw defines job-scoped state keyword arguments: named values
// built once per job by a registered initializer and shared by every task
// of that job that declares them.
//
// A typical use is an expensive client (a database handle, a model loaded
// into memory) that many tasks of a job need. The rows only describe how to
// build the value; the value itself lives in each worker's [Cache].
package statekw

import "context"

// StateKWArg describes one lazily initialised value of a job.
type StateKWArg struct {
	ID          int64  `json:"state_kwargs_id"`
	Name        string `json:"name"`
	Entrypoint  string `json:"entrypoint"`
	ArgsID      *int64 `json:"args_id"`
	KwargsID    *int64 `json:"kwargs_id"`
	Description string `json:"description"`
	JobID       int64  `json:"job_id"`
}

// Store defines the persistence contract for state kwargs.
type Store interface {
	// AddStateKWArg inserts s and assigns its ID.
	AddStateKWArg(ctx context.Context, s *StateKWArg) error

	// ListStateKWArgs returns the state kwargs of a job ordered by ID.
	ListStateKWArgs(ctx context.Context, jobID int64) ([]*StateKWArg, error)

	// DeleteStateKWArg removes a state kwarg by ID.
	DeleteStateKWArg(ctx context.Context, id int64) error
}
