package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/DePasqualeOrg/mlx-vlm/internal/api"
	"github.com/DePasqualeOrg/mlx-vlm/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		rps         float64
		burst       int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the generation REST API",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Float64Flag{
				Name:        "rps",
				Usage:       "request rate limit per second (0 = unlimited)",
				Destination: &rps,
			},
			&cli.Int64Flag{
				Name:        "burst",
				Usage:       "rate limiter burst size",
				Value:       4,
				Destination: &burst,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg := LoadConfig()
			applyServeConfig(cmd, cfg, &addr)

			session, err := buildSession(ctx)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			server := api.NewServer(session, log, api.Options{
				RequestsPerSecond: rps,
				Burst:             int(burst),
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
