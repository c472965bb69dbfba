// Command taskq runs taskq workers and the taskq HTTP server, and inspects
// a backing store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/xraph/taskq/config"
)

func main() {
	app := &cli.App{
		Name:  "taskq",
		Usage: "Leveled distributed task queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "comma separated presets or .json/.toml files, earlier entries win",
				EnvVars: []string{config.EnvConfig},
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: "dotenv files loaded before the environment is read",
				Value: cli.NewStringSlice(".env"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "text or json",
				Value: "text",
			},
		},
		Before: func(cctx *cli.Context) error {
			logger, err := newLogger(cctx.String("log-level"), cctx.String("log-format"))
			if err != nil {
				return err
			}
			slog.SetDefault(logger)
			return config.LoadDotEnv(cctx.StringSlice("env-file")...)
		},
		Commands: []*cli.Command{
			runCmd,
			serveCmd,
			initDBCmd,
			statusCmd,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.RunContext(ctx, os.Args)
	stop()
	if err != nil {
		slog.Error("taskq failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// loadConfig layers the --config sources and the environment, then applies
// the connection flag when the command defines one.
func loadConfig(cctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(config.SplitSources(cctx.String("config")), true)
	if err != nil {
		return nil, err
	}
	if cctx.IsSet("connection") {
		cfg.Connection = cctx.String("connection")
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

var connectionFlag = &cli.StringFlag{
	Name:    "connection",
	Aliases: []string{"c"},
	Usage:   "backing store, sqlite://<path>, pg://<dsn> or http(s)://<host>",
}
