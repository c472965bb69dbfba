package job

import "context"

// ListOpts controls pagination for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
}

// Store defines the persistence contract for jobs.
type Store interface {
	// CreateJob inserts j and assigns its ID.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID int64) (*Job, error)

	// ListJobs returns jobs ordered by ID.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// UpdateJob persists changes to an existing job.
	UpdateJob(ctx context.Context, j *Job) error

	// DeleteJob removes a job and, by cascade, its tasks and state kwargs.
	DeleteJob(ctx context.Context, jobID int64) error

	// KeepLatestJobs deletes every job except the n with the highest IDs
	// and returns how many were deleted. n <= 0 is a no-op.
	KeepLatestJobs(ctx context.Context, n int) (int64, error)

	// JobsStatus returns per-job task counts by status, ordered by job ID.
	JobsStatus(ctx context.Context, opts ListOpts) ([]*Summary, error)
}
