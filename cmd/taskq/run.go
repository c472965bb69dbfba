package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/xraph/taskq/ext"
	"github.com/xraph/taskq/middleware"
	"github.com/xraph/taskq/observability"
	"github.com/xraph/taskq/store"
	"github.com/xraph/taskq/task"
	"github.com/xraph/taskq/worker"
)

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "Lease and execute tasks until none are left",
	Flags: []cli.Flag{
		connectionFlag,
		&cli.Int64Flag{
			Name:    "job-id",
			Aliases: []string{"jid"},
			Usage:   "only run tasks of this job",
		},
		&cli.IntSliceFlag{
			Name:    "level",
			Aliases: []string{"l"},
			Usage:   "one level L runs [L, L+1), two levels A,B run [A, B)",
		},
		&cli.StringFlag{
			Name:    "concurrency",
			Aliases: []string{"cn"},
			Usage:   "runner count: N, a CPU fraction such as 0.5, or -N for CPUs minus N",
		},
		&cli.StringFlag{
			Name:  "backoff",
			Usage: "how idle waits grow: constant, linear, exponential or jitter",
		},
		&cli.BoolFlag{
			Name:  "run-forever",
			Usage: "keep polling after the scope is drained",
		},
		&cli.BoolFlag{
			Name:  "raise-exception",
			Usage: "exit non-zero when a task fails",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		if cctx.IsSet("concurrency") {
			cfg.Run.Concurrency = cctx.String("concurrency")
		}
		if cctx.IsSet("backoff") {
			cfg.Run.Backoff = cctx.String("backoff")
		}
		if cctx.IsSet("run-forever") {
			cfg.Run.RunForever = cctx.Bool("run-forever")
		}
		if cctx.IsSet("raise-exception") {
			cfg.Run.RaiseException = cctx.Bool("raise-exception")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		scope, err := runScope(cctx)
		if err != nil {
			return err
		}

		logger := slog.Default()
		s, err := store.Open(cctx.Context, cfg.Connection, cfg.StoreOptions(logger)...)
		if err != nil {
			return err
		}
		defer s.Close()

		opts, err := cfg.WorkerOptions(logger)
		if err != nil {
			return err
		}
		exts := ext.NewRegistry(logger)
		exts.Register(observability.NewMetricsExtension())
		opts = append(opts,
			worker.WithExtensions(exts),
			worker.WithMiddleware(
				middleware.Tracing(),
				middleware.Metrics(),
				middleware.Logging(logger),
			),
		)

		reg := task.NewRegistry()
		registerBuiltins(reg)

		err = worker.NewPool(s, reg, opts...).Run(cctx.Context, scope)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func runScope(cctx *cli.Context) (task.Scope, error) {
	levels, err := worker.ResolveLevel(cctx.IntSlice("level"))
	if err != nil {
		return task.Scope{}, err
	}
	scope := task.Scope{Levels: levels}
	if cctx.IsSet("job-id") {
		jobID := cctx.Int64("job-id")
		scope.JobID = &jobID
	}
	return scope, nil
}
