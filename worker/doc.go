// Package worker runs tasks leased from a taskq store.
//
// A [Runner] is one PULL/WAIT/RUN/STOP loop: it optionally sweeps tasks
// whose pulse timed out, asks the store for the next task in its scope and
// either runs it through the [Executor], sleeps, or returns. A [Pool] fans
// out several runners over the same scope. Runners never talk to each
// other; the store's leasing transaction is the only coordination point.
//
// While an entrypoint executes, a [Monitor] refreshes the task's pulse so
// the sweep does not fail it.
package worker
