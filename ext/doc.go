// Package ext defines the extension system for taskq workers.
//
// Extensions are notified of task lifecycle events and can react to them,
// for example by recording metrics or writing audit logs. Each lifecycle
// hook is a separate interface so extensions opt in only to the events
// they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnTaskSucceeded(ctx context.Context, t *task.Task, elapsed time.Duration) error {
//	    log.Printf("task %d succeeded in %s", t.ID, elapsed)
//	    return nil
//	}
//
// # Task Lifecycle Hooks
//
//   - [TaskTaken]: a worker leased the task
//   - [TaskStarted]: the entrypoint is about to run
//   - [TaskSucceeded]: the entrypoint returned without error
//   - [TaskFailed]: the entrypoint failed or could not be set up
//   - [LateReport]: a status report arrived after the task left running
//
// # Other Hooks
//
//   - [TasksSwept]: the pulse sweep failed stale running tasks
//   - [Shutdown]: a worker pool is stopping
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface.
package ext
