package worker

import (
	"context"
	"errors"
	"fmt"

	"cdcreader/internal/pipeline"
	"cdcreader/internal/transport"
)

type Worker struct {
	transport *transport.Server
	runner    *pipeline.Runner
}

func (w *Worker) Runner() *pipeline.Runner { return w.runner }

// Run drives the runner until ctx ends or the health server fails, then
// releases the reader, the sinks and the health server.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var serveErr error
	served := make(chan struct{})
	if w.transport != nil {
		go func() {
			defer close(served)
			if err := w.transport.Serve(); err != nil {
				serveErr = fmt.Errorf("transport: %w", err)
				cancel()
			}
		}()
	} else {
		close(served)
	}

	err := w.runner.Run(ctx)
	if w.transport != nil {
		w.transport.Stop()
	}
	<-served
	return errors.Join(err, serveErr, w.runner.Close())
}
