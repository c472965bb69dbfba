package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register the "sqlite" driver

	"github.com/xraph/taskq/store/dialect"
	"github.com/xraph/taskq/store/sqlstore"
)

// DefaultBusyTimeout is how long a connection waits for a lock.
const DefaultBusyTimeout = 10 * time.Second

type options struct {
	logger      *slog.Logger
	busyTimeout time.Duration
	clock       func() time.Time
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBusyTimeout overrides DefaultBusyTimeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.busyTimeout = d
	}
}

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// Open opens the database at path. ":memory:" opens a private in-memory
// database on a single connection.
func Open(ctx context.Context, path string, opts ...Option) (*sqlstore.Store, error) {
	o := options{logger: slog.Default(), busyTimeout: DefaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := sql.Open("sqlite", DSN(path, o.busyTimeout))
	if err != nil {
		return nil, fmt.Errorf("taskq/sqlite: open: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("taskq/sqlite: ping %s: %w", path, err)
	}

	storeOpts := []sqlstore.Option{sqlstore.WithLogger(o.logger)}
	if o.clock != nil {
		storeOpts = append(storeOpts, sqlstore.WithClock(o.clock))
	}
	return sqlstore.New(db, dialect.SQLite{}, storeOpts...), nil
}

// DSN builds the modernc.org/sqlite data source name for path with foreign
// keys enabled and the given busy timeout.
func DSN(path string, busyTimeout time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))

	name := path
	if !strings.HasPrefix(name, "file:") {
		name = "file:" + name
	}
	sep := "?"
	if strings.Contains(name, "?") {
		sep = "&"
	}
	return name + sep + q.Encode()
}
