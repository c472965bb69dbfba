// Package taskq provides a leveled, distributed task queue for Go.
//
// Clients group units of work ("tasks") into jobs. One or more workers
// repeatedly lease pending tasks from a shared backing store, execute the
// registered entrypoint and report the outcome. Tasks carry a real-valued
// level: every task at a lower level must leave the pending state before a
// higher level is leased, which gives coarse dependency barriers without a
// workflow engine.
//
// # Quick Start
//
//	s, err := store.Open(ctx, "sqlite://taskq.db.sqlite3", store.WithInitDB(true))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer s.Close()
//
//	reg := task.NewRegistry()
//	task.RegisterDefinition(reg, task.NewDefinition("send-email", sendEmail))
//
//	pool := worker.NewPool(s, reg, worker.WithConcurrency(4))
//	err = pool.Run(ctx, task.Scope{JobID: &jobID})
//
// # Architecture
//
// Each entity (job, task, object, state kwarg) defines its own store
// interface. The composite store.Store embeds them all and is implemented by
// the SQLite and PostgreSQL adapters, an in-memory store and an HTTP client
// for the api server. Backends are selected from a connection string of the
// form "<scheme>://<body>" (sqlite, pg, http, https).
//
// Leasing is performed by TakeNextTask inside an exclusive transaction, so
// workers never coordinate with each other directly.
package taskq
