package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/DePasqualeOrg/mlx-vlm/internal/logger"
)

func main() {
	var (
		logLevel  string
		logFormat string
	)

	app := &cli.Command{
		Name:  "mlxvlm",
		Usage: "Multimodal generation engine CLI",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Value:       "info",
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "log format (pretty, json)",
				Value:       "pretty",
				Destination: &logFormat,
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg := LoadConfig()
			if cfg.LogLevel != "" && !cmd.IsSet("log-level") {
				logLevel = cfg.LogLevel
			}
			if cfg.LogFormat != "" && !cmd.IsSet("log-format") {
				logFormat = cfg.LogFormat
			}
			return logger.WithContext(ctx, newLogger(logLevel, logFormat)), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			generateCmd(),
			serveCmd(),
			versionCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(level, format string) logger.Logger {
	lvl := logger.ParseLevel(level)
	if format == "json" {
		return logger.JSON(os.Stderr, lvl)
	}
	return logger.Pretty(os.Stderr, lvl)
}
