package taskq

import "errors"

var (
	// Store errors.
	ErrInvalidConnection     = errors.New("taskq: invalid connection string")
	ErrSchemaVersionMismatch = errors.New("taskq: schema version mismatch")
	ErrTransactionFailed     = errors.New("taskq: transaction failed")
	ErrRemoteRequestRejected = errors.New("taskq: remote request rejected")
	ErrInvalidTask           = errors.New("taskq: invalid task")

	// Not found errors.
	ErrJobNotFound      = errors.New("taskq: job not found")
	ErrTaskNotFound     = errors.New("taskq: task not found")
	ErrObjectNotFound   = errors.New("taskq: object not found")
	ErrStateKWNotFound  = errors.New("taskq: state kwarg not found")
	ErrUnknownCodec     = errors.New("taskq: unknown codec")
	ErrUnknownPreset    = errors.New("taskq: unknown config preset")
	ErrUnknownStatus    = errors.New("taskq: unknown status")
	ErrUnknownAction    = errors.New("taskq: unknown action")
	ErrStateKWUndefined = errors.New("taskq: state kwarg not defined for job")

	// ErrUnknownEntrypoint is returned when a task names an entrypoint that
	// was never registered.
	ErrUnknownEntrypoint = errors.New("taskq: unknown entrypoint")

	// State errors.
	ErrUnsupportedStatus = errors.New("taskq: unsupported status for status update")
	ErrTaskNotRunning    = errors.New("taskq: task is no longer running")
	ErrInvalidTransition = errors.New("taskq: invalid task status transition")

	// Run errors.
	ErrLevelGate     = errors.New("taskq: tasks below level are still pending")
	ErrInvalidLevel  = errors.New("taskq: invalid level")
	ErrWaitTimeout   = errors.New("taskq: task pull wait timeout reached")
	ErrWorkersFailed = errors.New("taskq: some workers failed")

	// Config errors.
	ErrInvalidConfig = errors.New("taskq: invalid configuration")
)
