package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/taskq"
	"github.com/xraph/taskq/api"
	"github.com/xraph/taskq/backoff"
	"github.com/xraph/taskq/middleware"
	"github.com/xraph/taskq/store"
	"github.com/xraph/taskq/worker"
)

// Config is the complete taskq configuration.
type Config struct {
	// Connection selects the backing store, "<scheme>://<body>".
	Connection string `json:"connection" toml:"connection"`

	Run     Run     `json:"run" toml:"run"`
	Monitor Monitor `json:"monitor" toml:"monitor"`
	DB      DB      `json:"db" toml:"db"`
	API     API     `json:"api" toml:"api"`
	Server  Server  `json:"server" toml:"server"`
}

// Run configures the worker run loop.
type Run struct {
	// WaitTimeout fails a runner that waited this long without running a
	// task. Zero waits forever.
	WaitTimeout  Duration `json:"wait_timeout" toml:"wait_timeout"`
	PullInterval Duration `json:"pull_interval" toml:"pull_interval"`

	// DBInit creates the schema when the store is opened.
	DBInit bool `json:"db_init" toml:"db_init"`

	// FailPulseTimeout sweeps stale running tasks before pulls. Clients of
	// a remote server usually leave this to the server.
	FailPulseTimeout bool `json:"fail_pulse_timeout" toml:"fail_pulse_timeout"`
	RunForever       bool `json:"run_forever" toml:"run_forever"`
	RaiseException   bool `json:"raise_exception" toml:"raise_exception"`

	// TaskTimeout cancels the context of a task running longer than this.
	TaskTimeout Duration `json:"task_timeout" toml:"task_timeout"`

	// Concurrency is parsed by worker.ParseConcurrency.
	Concurrency string `json:"concurrency" toml:"concurrency"`

	// Backoff names how idle waits grow from PullInterval: constant,
	// linear, exponential or jitter. BackoffMax caps the growth.
	Backoff    string   `json:"backoff" toml:"backoff"`
	BackoffMax Duration `json:"backoff_max" toml:"backoff_max"`
}

// Monitor configures task heartbeats.
type Monitor struct {
	PulseInterval Duration `json:"pulse_interval" toml:"pulse_interval"`
	PulseTimeout  Duration `json:"pulse_timeout" toml:"pulse_timeout"`
}

// DB configures the backing store.
type DB struct {
	// MaxJobs keeps only the newest jobs before each run. Zero keeps all.
	MaxJobs     int      `json:"max_jobs" toml:"max_jobs"`
	BusyTimeout Duration `json:"busy_timeout" toml:"busy_timeout"`
	MaxConns    int      `json:"max_conns" toml:"max_conns"`
}

// API configures the HTTP server's list endpoints.
type API struct {
	Limit int `json:"limit" toml:"limit"`
}

// Server configures the HTTP server.
type Server struct {
	Addr          string   `json:"addr" toml:"addr"`
	SweepInterval Duration `json:"sweep_interval" toml:"sweep_interval"`
}

// Default returns the standalone configuration.
func Default() *Config {
	return &Config{
		Connection: "sqlite://taskq.db.sqlite3",
		Run: Run{
			PullInterval:     Duration(200 * time.Millisecond),
			DBInit:           true,
			FailPulseTimeout: true,
		},
		Monitor: Monitor{
			PulseInterval: Duration(200 * time.Millisecond),
			PulseTimeout:  Duration(5 * time.Minute),
		},
		API: API{Limit: 100},
		Server: Server{
			Addr:          ":8080",
			SweepInterval: Duration(time.Minute),
		},
	}
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := store.ParseConnection(c.Connection); err != nil {
		return err
	}
	if _, err := worker.ParseConcurrency(c.Run.Concurrency); err != nil {
		return err
	}
	if _, err := c.backoff(); err != nil {
		return err
	}
	switch {
	case c.Run.WaitTimeout < 0, c.Run.PullInterval < 0, c.Run.TaskTimeout < 0, c.Run.BackoffMax < 0,
		c.Monitor.PulseInterval < 0, c.Monitor.PulseTimeout < 0,
		c.DB.BusyTimeout < 0, c.Server.SweepInterval < 0:
		return fmt.Errorf("%w: durations must not be negative", taskq.ErrInvalidConfig)
	case c.DB.MaxJobs < 0:
		return fmt.Errorf("%w: db.max_jobs must not be negative", taskq.ErrInvalidConfig)
	case c.DB.MaxConns < 0:
		return fmt.Errorf("%w: db.max_conns must not be negative", taskq.ErrInvalidConfig)
	case c.API.Limit < 0:
		return fmt.Errorf("%w: api.limit must not be negative", taskq.ErrInvalidConfig)
	}
	return nil
}

// StoreOptions returns the store.Open options for c.
func (c *Config) StoreOptions(logger *slog.Logger) []store.Option {
	if logger == nil {
		logger = slog.Default()
	}
	return []store.Option{
		store.WithLogger(logger),
		store.WithInitDB(c.Run.DBInit),
		store.WithBusyTimeout(c.DB.BusyTimeout.Std()),
		store.WithMaxConns(int32(c.DB.MaxConns)), //nolint:gosec // validated non-negative, pool sizes are small
	}
}

// WorkerOptions returns the worker options for c.
func (c *Config) WorkerOptions(logger *slog.Logger) ([]worker.Option, error) {
	if logger == nil {
		logger = slog.Default()
	}
	concurrency, err := worker.ParseConcurrency(c.Run.Concurrency)
	if err != nil {
		return nil, err
	}
	strategy, err := c.backoff()
	if err != nil {
		return nil, err
	}
	opts := []worker.Option{
		worker.WithLogger(logger),
		worker.WithConcurrency(concurrency),
		worker.WithPullInterval(c.Run.PullInterval.Std()),
		worker.WithBackoff(strategy),
		worker.WithWaitTimeout(c.Run.WaitTimeout.Std()),
		worker.WithRunForever(c.Run.RunForever),
		worker.WithRaiseException(c.Run.RaiseException),
		worker.WithFailPulseTimeout(c.Run.FailPulseTimeout),
		worker.WithPulseInterval(c.Monitor.PulseInterval.Std()),
		worker.WithPulseTimeout(c.Monitor.PulseTimeout.Std()),
		worker.WithMaxJobs(c.DB.MaxJobs),
	}
	if c.Run.TaskTimeout > 0 {
		opts = append(opts, worker.WithMiddleware(middleware.Timeout(c.Run.TaskTimeout.Std(), logger)))
	}
	return opts, nil
}

func (c *Config) backoff() (backoff.Strategy, error) {
	return backoff.New(c.Run.Backoff, c.Run.PullInterval.Std(), c.Run.BackoffMax.Std())
}

// ServerOptions returns the api server options for c. The server sweeps
// with the monitor's pulse timeout.
func (c *Config) ServerOptions(logger *slog.Logger) []api.Option {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []api.Option{
		api.WithLogger(logger),
		api.WithSweeper(c.Server.SweepInterval.Std(), c.Monitor.PulseTimeout.Std()),
	}
	if c.API.Limit > 0 {
		opts = append(opts, api.WithDefaultLimit(c.API.Limit))
	}
	return opts
}
