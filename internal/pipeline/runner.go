package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cdcreader/internal/logging"
	"cdcreader/record"
	"cdcreader/sink"
	"cdcreader/source/binlog"
)

// Reader is the task reader a Runner drives; *binlog.TaskReader
// implements it.
type Reader interface {
	Start(ctx context.Context) error
	Stop()
	Close() error
	Fetch(ctx context.Context) (*record.Chunk, error)
	Dump(chunk *record.Chunk)
	Commit(ctx context.Context, chunk *record.Chunk) error
	Rollback(ctx context.Context, chunk *record.Chunk, cause error) error
}

type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusDegraded // last cycle failed, retrying
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusDegraded:
		return "degraded"
	case StatusStopped:
		return "stopped"
	}
	return "unknown"
}

// StatusFunc observes status changes; err is the failure behind
// StatusDegraded.
type StatusFunc func(taskID string, s Status, err error)

type Runner struct {
	taskID string
	reader Reader
	sinks  []sink.Adapter
	retry  time.Duration
	log    *slog.Logger

	// chunk whose rollback failed; retried before the next fetch
	unresolved *record.Chunk

	mu      sync.Mutex
	status  Status
	lastErr error
	subs    []StatusFunc
	done    chan struct{}
}

func NewRunner(taskID string, reader Reader) *Runner {
	return &Runner{
		taskID: taskID,
		reader: reader,
		retry:  time.Second,
		log:    logging.ForTask("runner", taskID),
		done:   make(chan struct{}),
	}
}

func (r *Runner) TaskID() string { return r.taskID }

func (r *Runner) AddSink(s sink.Adapter) { r.sinks = append(r.sinks, s) }

func (r *Runner) SetRetryBackoff(d time.Duration) {
	if d > 0 {
		r.retry = d
	}
}

func (r *Runner) SubscribeStatus(fn StatusFunc) {
	r.mu.Lock()
	r.subs = append(r.subs, fn)
	r.mu.Unlock()
}

func (r *Runner) Status() (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.lastErr
}

// Done is closed once Run returned.
func (r *Runner) Done() <-chan struct{} { return r.done }

func (r *Runner) setStatus(s Status, err error) {
	r.mu.Lock()
	if r.status == s && errors.Is(err, r.lastErr) {
		r.mu.Unlock()
		return
	}
	r.status, r.lastErr = s, err
	handlers := append([]StatusFunc{}, r.subs...)
	r.mu.Unlock()

	for _, fn := range handlers {
		fn(r.taskID, s, err)
	}
}

/*──────── chunk routing ───────*/
func (r *Runner) pushChunk(ctx context.Context, c *record.Chunk) error {
	for _, s := range r.sinks {
		if err := s.Push(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// cycle moves one chunk from the reader to every sink. The chunk is
// committed only when all sinks accepted it and rolled back otherwise.
func (r *Runner) cycle(ctx context.Context) error {
	if r.unresolved != nil {
		if err := r.reader.Rollback(ctx, r.unresolved, errors.New("retrying earlier rollback")); err != nil {
			return fmt.Errorf("runner: rollback: %w", err)
		}
		r.unresolved = nil
	}

	chunk, err := r.reader.Fetch(ctx)
	if err != nil {
		return err
	}
	r.reader.Dump(chunk)

	settle := context.WithoutCancel(ctx)
	if err := r.pushChunk(ctx, chunk); err != nil {
		return r.rollback(settle, chunk, fmt.Errorf("runner: push: %w", err))
	}
	if err := r.reader.Commit(settle, chunk); err != nil {
		return r.rollback(settle, chunk, fmt.Errorf("runner: commit: %w", err))
	}
	return nil
}

func (r *Runner) rollback(ctx context.Context, c *record.Chunk, cause error) error {
	if err := r.reader.Rollback(ctx, c, cause); err != nil {
		r.unresolved = c
		return errors.Join(cause, err)
	}
	return cause
}

// Run starts the reader and loops until ctx ends. Failed cycles are
// retried after the retry backoff.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	if r.reader == nil {
		return errors.New("runner: no reader configured")
	}
	if err := r.reader.Start(ctx); err != nil {
		r.setStatus(StatusStopped, err)
		return fmt.Errorf("runner: start reader: %w", err)
	}
	r.setStatus(StatusRunning, nil)
	r.log.Info("runner started", "sinks", len(r.sinks))

	for ctx.Err() == nil {
		err := r.cycle(ctx)
		switch {
		case err == nil:
			r.setStatus(StatusRunning, nil)
		case errors.Is(err, binlog.ErrFetchCancelled):
			// ctx ended or the reader was stopped; the loop condition decides
			if ctx.Err() == nil {
				r.pause(ctx)
			}
		default:
			r.log.Warn("cycle failed", "err", err)
			r.setStatus(StatusDegraded, err)
			r.pause(ctx)
		}
	}
	r.setStatus(StatusStopped, nil)
	return nil
}

func (r *Runner) pause(ctx context.Context) {
	t := time.NewTimer(r.retry)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Close stops the reader and releases it and every sink.
func (r *Runner) Close() error {
	var errs []error
	if r.reader != nil {
		r.reader.Stop()
		errs = append(errs, r.reader.Close())
	}
	for _, s := range r.sinks {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
