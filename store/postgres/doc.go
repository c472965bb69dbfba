// Package postgres opens taskq stores on PostgreSQL. Connections are pooled
// by pgxpool and exposed to the shared SQL engine through pgx/v5/stdlib.
// Concurrent leases skip rows held by other transactions (FOR UPDATE SKIP
// LOCKED), so any number of workers may poll the same database.
package postgres
