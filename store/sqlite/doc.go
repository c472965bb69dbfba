// Package sqlite opens taskq stores on SQLite files through the pure-Go
// modernc.org/sqlite driver. Suitable for single-host deployments, CLI
// tools and tests.
//
//	s, err := sqlite.Open(ctx, "taskq.db.sqlite3")
//	if err != nil { ... }
//	defer s.Close()
//	err = s.Migrate(ctx)
//
// Leasing serialises on BEGIN EXCLUSIVE; concurrent writers wait on the
// busy timeout instead of failing.
package sqlite
