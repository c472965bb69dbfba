// Package remote implements store.Store as an HTTP client of a taskq api
// server. Workers on hosts without database access lease and report tasks
// through it with the same semantics as a direct SQL store; the server owns
// the schema, so Migrate is a no-op.
//
//	s := remote.New("http://taskq.internal:8080")
//	action, t, err := s.TakeNextTask(ctx, task.Scope{})
package remote
