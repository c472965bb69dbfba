package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/store/dialect"
	"github.com/xraph/taskq/store/sqlstore"
)

type options struct {
	logger   *slog.Logger
	maxConns int32
	clock    func() time.Time
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) Option {
	return func(o *options) {
		o.maxConns = n
	}
}

// WithClock overrides the store's time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// Open connects to connString, which is either a postgres:// URL or the
// body of a pg:// connection (user[:password]@host[:port]/database).
func Open(ctx context.Context, connString string, opts ...Option) (*sqlstore.Store, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	dsn := connString
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		var err error
		if dsn, err = DSN(connString); err != nil {
			return nil, err
		}
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("taskq/postgres: parse config: %w", err)
	}
	if o.maxConns > 0 {
		cfg.MaxConns = o.maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("taskq/postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("taskq/postgres: ping: %w", err)
	}
	return NewFromPool(pool, opts...), nil
}

// NewFromPool wraps an existing pool. Closing the store closes the pool.
func NewFromPool(pool *pgxpool.Pool, opts ...Option) *sqlstore.Store {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	storeOpts := []sqlstore.Option{
		sqlstore.WithLogger(o.logger),
		sqlstore.WithCloser(func() error {
			pool.Close()
			return nil
		}),
	}
	if o.clock != nil {
		storeOpts = append(storeOpts, sqlstore.WithClock(o.clock))
	}
	return sqlstore.New(stdlib.OpenDBFromPool(pool), dialect.Postgres{}, storeOpts...)
}

// DSN translates user[:password]@host[:port]/database into a postgres://
// URL. The user and database are required.
func DSN(body string) (string, error) {
	u, err := url.Parse("postgres://" + body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", taskq.ErrInvalidConnection, err)
	}
	if u.User == nil || u.User.Username() == "" {
		return "", fmt.Errorf("%w: missing user, expected pg://user[:password]@host[:port]/database", taskq.ErrInvalidConnection)
	}
	if strings.Trim(u.Path, "/") == "" {
		return "", fmt.Errorf("%w: missing database, expected pg://user[:password]@host[:port]/database", taskq.ErrInvalidConnection)
	}
	if u.Host == "" {
		u.Host = "localhost"
	}
	return u.String(), nil
}
