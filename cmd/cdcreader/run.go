package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"cdcreader/internal/logging"
	"cdcreader/internal/worker"
)

var runCmd = &cli.Command{
	Name:      "run",
	Usage:     "Run one task until interrupted",
	ArgsUsage: "<task.yml|task.toml>",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "health-port",
			Usage:   "gRPC health port (overrides runtime.health_port)",
			Sources: cli.EnvVars("CDCREADER_HEALTH_PORT"),
		},
		&cli.IntFlag{
			Name:    "metrics-port",
			Usage:   "Prometheus port (overrides runtime.metrics_port)",
			Sources: cli.EnvVars("CDCREADER_METRICS_PORT"),
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "debug|info|warn|error (default from CDCREADER_LOG_LEVEL)",
		},
		&cli.BoolFlag{
			Name:  "log-json",
			Usage: "JSON log output (default from CDCREADER_LOG_JSON)",
		},
	},
	Action: func(ctx context.Context, c *cli.Command) error {
		path := c.Args().First()
		if path == "" {
			return fmt.Errorf("run: task file required")
		}
		logging.InitFromEnv()
		if c.IsSet("log-level") || c.IsSet("log-json") {
			logging.Configure(logging.Options{Level: c.String("log-level"), JSON: c.Bool("log-json")})
		}

		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		w, err := worker.Bootstrap(ctx, worker.Config{
			TaskFile:    path,
			HealthPort:  int(c.Int("health-port")),
			MetricsPort: int(c.Int("metrics-port")),
		})
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		return w.Run(ctx)
	},
}
