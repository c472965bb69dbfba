// Package job defines the job entity and its store interface.
//
// A [Job] is a named group of tasks. Jobs own their tasks and state
// kwargs: deleting a job deletes them too. Jobs have no lifecycle of
// their own; progress is read from their tasks via [Store.JobsStatus].
//
//	j := &job.Job{Name: "nightly-report", Priority: 1}
//	if err := s.CreateJob(ctx, j); err != nil {
//	    return err
//	}
//	// j.ID is now assigned by the store.
//
// Retention is expressed with [Store.KeepLatestJobs], which deletes every
// job outside the n most recently created ones.
package job
