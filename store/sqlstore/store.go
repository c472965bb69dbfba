// Package sqlstore implements the taskq persistence contract once over
// database/sql. The SQLite and Postgres adapters supply a *sql.DB and a
// dialect.Dialect; everything else, including the leasing engine, lives
// here.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/job"
	"github.com/xraph/taskq/object"
	"github.com/xraph/taskq/statekw"
	"github.com/xraph/taskq/store/dialect"
	"github.com/xraph/taskq/task"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ job.Store     = (*Store)(nil)
	_ task.Store    = (*Store)(nil)
	_ object.Store  = (*Store)(nil)
	_ statekw.Store = (*Store)(nil)
)

// Store is a relational implementation of store.Store.
type Store struct {
	db      *sql.DB
	d       dialect.Dialect
	logger  *slog.Logger
	now     func() time.Time
	onClose func() error
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for take, pulse and sweep
// timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithCloser registers a function run after the *sql.DB is closed.
func WithCloser(fn func() error) Option {
	return func(s *Store) {
		s.onClose = fn
	}
}

// New wraps db. The Store owns db and closes it on Close.
func New(db *sql.DB, d dialect.Dialect, opts ...Option) *Store {
	s := &Store{
		db:     db,
		d:      d,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() dialect.Dialect {
	return s.d
}

// Migrate creates missing tables and indexes, then records or verifies the
// schema version. A database written with another version is rejected.
func (s *Store) Migrate(ctx context.Context) error {
	for _, t := range tables {
		if _, err := s.db.ExecContext(ctx, dialect.CreateTable(s.d, t)); err != nil {
			return s.wrap("create table "+t.Name, err)
		}
	}
	for _, idx := range indexes {
		if _, err := s.db.ExecContext(ctx, idx); err != nil {
			return s.wrap("create index", err)
		}
	}

	version, err := s.SchemaVersion(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		q := s.rebind("INSERT INTO schema_version (version) VALUES (?)")
		if _, err := s.db.ExecContext(ctx, q, taskq.SchemaVersion); err != nil {
			return s.wrap("record schema version", err)
		}
		s.logger.Debug("schema initialised", slog.Int("version", taskq.SchemaVersion))
		return nil
	case err != nil:
		return s.wrap("read schema version", err)
	case version != taskq.SchemaVersion:
		return fmt.Errorf("%w: database has %d, expected %d",
			taskq.ErrSchemaVersionMismatch, version, taskq.SchemaVersion)
	}
	return nil
}

// SchemaVersion returns the recorded version, or sql.ErrNoRows when the
// schema_version table is empty.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx,
		"SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	return version, err
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	err := s.db.Close()
	if s.onClose != nil {
		if cerr := s.onClose(); err == nil {
			err = cerr
		}
	}
	return err
}

// ── helpers ──────────────────────────────────────────────────────

// querier is satisfied by *sql.DB, *sql.Tx and *sql.Conn.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) rebind(query string) string {
	return dialect.Rebind(s.d, query)
}

func (s *Store) wrap(op string, err error) error {
	return fmt.Errorf("taskq/%s: %s: %w", s.d.Name(), op, err)
}

// utcNow returns the current time truncated to the microsecond precision
// both backends store.
func (s *Store) utcNow() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// inTx runs fn inside a regular transaction.
func (s *Store) inTx(ctx context.Context, fn func(q querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// exclusive runs fn on a dedicated connection inside the dialect's
// exclusive transaction. The connection is discarded if the transaction
// cannot be closed cleanly.
func (s *Store) exclusive(ctx context.Context, fn func(q querier) error) (err error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, s.d.BeginExclusive()); err != nil {
		return err
	}

	finish := func(stmt string) error {
		_, ferr := conn.ExecContext(context.WithoutCancel(ctx), stmt)
		if ferr != nil {
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		return ferr
	}

	if err := fn(conn); err != nil {
		if rerr := finish("ROLLBACK"); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	if err := finish("COMMIT"); err != nil {
		return err
	}
	return nil
}

// levelFilter renders the scope restriction of lease and count queries.
func levelFilter(scope task.Scope) (string, []any) {
	var (
		where string
		args  []any
	)
	if scope.JobID != nil {
		where += " AND job_id = ?"
		args = append(args, *scope.JobID)
	}
	if scope.Levels.Start != nil {
		where += " AND level >= ?"
		args = append(args, *scope.Levels.Start)
	}
	if scope.Levels.Stop != nil {
		where += " AND level < ?"
		args = append(args, *scope.Levels.Stop)
	}
	return where, args
}

func nullInt(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func ptrInt(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func (s *Store) nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return s.d.EncodeTime(*t)
}

// timeScanner scans a nullable timestamp column through the dialect.
type timeScanner struct {
	d   dialect.Dialect
	dst **time.Time
}

func (ts timeScanner) Scan(src any) error {
	if src == nil {
		*ts.dst = nil
		return nil
	}
	t, err := ts.d.DecodeTime(src)
	if err != nil {
		return err
	}
	*ts.dst = &t
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
