package store

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/xraph/taskq/store/postgres"
	"github.com/xraph/taskq/store/remote"
	"github.com/xraph/taskq/store/sqlite"
)

type openOptions struct {
	logger     *slog.Logger
	initDB     bool
	httpClient *http.Client

	busyTimeout time.Duration
	maxConns    int32
}

// Option configures Open.
type Option func(*openOptions)

// WithLogger sets the logger handed to the backend.
func WithLogger(logger *slog.Logger) Option {
	return func(o *openOptions) {
		o.logger = logger
	}
}

// WithInitDB runs Migrate after connecting.
func WithInitDB(init bool) Option {
	return func(o *openOptions) {
		o.initDB = init
	}
}

// WithHTTPClient sets the client used by http and https connections.
func WithHTTPClient(c *http.Client) Option {
	return func(o *openOptions) {
		o.httpClient = c
	}
}

// WithBusyTimeout sets how long SQLite waits on a locked database.
// Zero keeps sqlite.DefaultBusyTimeout.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *openOptions) {
		o.busyTimeout = d
	}
}

// WithMaxConns caps the PostgreSQL pool size. Zero keeps the pgxpool
// default.
func WithMaxConns(n int32) Option {
	return func(o *openOptions) {
		o.maxConns = n
	}
}

// Open validates conn, connects to the backend it names and optionally
// creates the schema.
func Open(ctx context.Context, conn string, opts ...Option) (Store, error) {
	o := openOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	c, err := ParseConnection(conn)
	if err != nil {
		return nil, err
	}

	var s Store
	switch c.Scheme {
	case SchemeSQLite:
		sopts := []sqlite.Option{sqlite.WithLogger(o.logger)}
		if o.busyTimeout > 0 {
			sopts = append(sopts, sqlite.WithBusyTimeout(o.busyTimeout))
		}
		s, err = sqlite.Open(ctx, c.Body, sopts...)
	case SchemePG:
		popts := []postgres.Option{postgres.WithLogger(o.logger)}
		if o.maxConns > 0 {
			popts = append(popts, postgres.WithMaxConns(o.maxConns))
		}
		s, err = postgres.Open(ctx, c.Body, popts...)
	default:
		ropts := []remote.Option{remote.WithLogger(o.logger)}
		if o.httpClient != nil {
			ropts = append(ropts, remote.WithHTTPClient(o.httpClient))
		}
		s = remote.New(c.String(), ropts...)
	}
	if err != nil {
		return nil, err
	}

	if o.initDB {
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	o.logger.Debug("store opened", slog.String("scheme", c.Scheme))
	return s, nil
}
