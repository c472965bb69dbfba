package store

import (
	"context"

	"github.com/xraph/taskq/job"
	"github.com/xraph/taskq/object"
	"github.com/xraph/taskq/statekw"
	"github.com/xraph/taskq/task"
)

// Store is the aggregate persistence interface.
// A single backend implements all of the entity stores.
type Store interface {
	job.Store
	task.Store
	object.Store
	statekw.Store

	// Migrate creates the schema and verifies its version.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
