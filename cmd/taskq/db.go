package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/xraph/taskq/job"
	"github.com/xraph/taskq/store"
)

var initDBCmd = &cli.Command{
	Name:  "init-db",
	Usage: "Create the schema of the backing store",
	Flags: []cli.Flag{connectionFlag},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		s, err := store.Open(cctx.Context, cfg.Connection, store.WithLogger(slog.Default()), store.WithInitDB(true))
		if err != nil {
			return err
		}
		defer s.Close()
		slog.Info("schema ready", slog.String("connection", cfg.Connection))
		return nil
	},
}

var statusCmd = &cli.Command{
	Name:  "status",
	Usage: "Print per-job and per-level task counts",
	Flags: []cli.Flag{
		connectionFlag,
		&cli.Int64Flag{
			Name:    "job-id",
			Aliases: []string{"jid"},
			Usage:   "restrict the tasks view to one job",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print JSON instead of tables",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		cfg.Run.DBInit = false
		s, err := store.Open(cctx.Context, cfg.Connection, cfg.StoreOptions(slog.Default())...)
		if err != nil {
			return err
		}
		defer s.Close()

		jobs, err := s.JobsStatus(cctx.Context, job.ListOpts{Limit: cfg.API.Limit})
		if err != nil {
			return err
		}
		var jobID *int64
		if cctx.IsSet("job-id") {
			v := cctx.Int64("job-id")
			jobID = &v
		}
		levels, err := s.TasksStatus(cctx.Context, jobID)
		if err != nil {
			return err
		}

		out := cctx.App.Writer
		if out == nil {
			out = os.Stdout
		}
		if cctx.Bool("json") {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"jobs": jobs, "tasks": levels})
		}
		fmt.Fprintf(out, "%-8s %-24s %8s %8s %8s %8s %8s\n", "JOB", "NAME", "TASKS", "PENDING", "RUNNING", "SUCCESS", "FAILURE")
		for _, j := range jobs {
			fmt.Fprintf(out, "%-8d %-24s %8d %8d %8d %8d %8d\n", j.ID, j.Name, j.Tasks, j.Pending, j.Running, j.Success, j.Failure)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "%-8s %-24s %8s %8s %8s %8s %8s\n", "LEVEL", "NAME", "TASKS", "PENDING", "RUNNING", "SUCCESS", "FAILURE")
		for _, l := range levels {
			fmt.Fprintf(out, "%-8g %-24s %8d %8d %8d %8d %8d\n", l.Level, l.Name, l.Tasks, l.Pending, l.Running, l.Success, l.Failure)
		}
		return nil
	},
}
