// Package task defines the task entity, the leasing decision table, the
// status transition rules and the entrypoint registry.
//
// # Task Entity
//
// A [Task] belongs to a job and carries a real-valued level, an entrypoint
// name and optional argument objects. It progresses monotonically:
//
//	pending → running → success
//	pending → running → failure
//
// A running task whose pulse goes stale is failed by the pulse sweep; a late
// success report from its original worker is rejected with
// taskq.ErrTaskNotRunning.
//
// # Leasing
//
// [Decide] is the single source of the leasing decision. Every store
// computes the minimum pending and minimum running level within a [Scope]
// and asks Decide whether the caller should run a task, wait or stop.
//
// # Entrypoints
//
// Entrypoints are plain Go functions registered under a stable name:
//
//	var Resize = task.NewDefinition("images.resize",
//	    func(ctx context.Context, in ResizeInput) error {
//	        return resize(ctx, in.Path, in.Width)
//	    },
//	)
//
//	task.RegisterDefinition(registry, Resize)
//
// Arguments are decoded from the task's args object and then overlaid with
// its kwargs object, using the codec recorded on each object.
package task
