package worker

import (
	"context"
	"fmt"

	"cdcreader/internal/logging"
	"cdcreader/internal/pipeline"
	"cdcreader/internal/telemetry"
	"cdcreader/internal/transport"
	"cdcreader/source/binlog"
)

type Config struct {
	TaskFile    string
	HealthPort  int // 0 → runtime.health_port of the task file
	MetricsPort int // 0 → runtime.metrics_port, disabled when both unset

	ReaderOptions []binlog.Option
}

func Bootstrap(ctx context.Context, cfg Config) (*Worker, error) {
	// 1. pipeline runner
	runner, file, err := pipeline.CompileFile(cfg.TaskFile, cfg.ReaderOptions...)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	// 2. health transport
	port := cfg.HealthPort
	if port == 0 {
		port = file.Runtime.HealthPort
	}
	var srv *transport.Server
	if port > 0 {
		if srv, err = transport.StartServer(port); err != nil {
			_ = runner.Close()
			return nil, fmt.Errorf("transport: %w", err)
		}
		srv.Track(runner)
	}

	// 3. metrics
	metrics := cfg.MetricsPort
	if metrics == 0 {
		metrics = file.Runtime.MetricsPort
	}
	if metrics > 0 {
		telemetry.Expose(metrics)
	}

	logging.L().Info("worker ready", "task", file.Task.ID, "name", file.Task.Name,
		"health_port", port, "metrics_port", metrics)
	return &Worker{transport: srv, runner: runner}, nil
}
