// Package store defines the aggregate persistence interface. Each entity
// package (job, task, object, statekw) defines its own store interface and
// the composite Store composes them all.
//
// Backends: SQLite and PostgreSQL (both through store/sqlstore), Memory,
// and Remote, an HTTP client for a taskq api server. Open selects one
// from a connection string:
//
//	sqlite://taskq.db.sqlite3
//	pg://user:password@localhost:5432/taskq
//	http://localhost:8080
package store
