package main

import (
	"log/slog"

	"github.com/urfave/cli/v2"

	"github.com/xraph/taskq/api"
	"github.com/xraph/taskq/store"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Serve a local store over HTTP for remote workers and clients",
	Flags: []cli.Flag{
		connectionFlag,
		&cli.StringFlag{
			Name:  "addr",
			Usage: "listen address, defaults to server.addr",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg, err := loadConfig(cctx)
		if err != nil {
			return err
		}
		if cctx.IsSet("addr") {
			cfg.Server.Addr = cctx.String("addr")
		}

		logger := slog.Default()
		s, err := store.Open(cctx.Context, cfg.Connection, cfg.StoreOptions(logger)...)
		if err != nil {
			return err
		}
		defer s.Close()

		logger.Info("serving store",
			slog.String("addr", cfg.Server.Addr),
			slog.String("connection", cfg.Connection),
		)
		return api.New(s, cfg.ServerOptions(logger)...).ListenAndServe(cctx.Context, cfg.Server.Addr)
	},
}
