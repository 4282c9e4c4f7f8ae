// Package embedded is an in-process capture engine: one Instance per
// destination, each reading its sources into a bounded store that clients
// drain with non-committing fetches and explicit ack/rollback.
package embedded

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cdcreader/capture"
)

var (
	ErrServerStopped   = errors.New("embedded: server not running")
	ErrUnknownInstance = errors.New("embedded: unknown destination")
)

// InstanceGenerator builds the instance serving one destination.
type InstanceGenerator func(destination string) (*Instance, error)

type Server struct {
	generate InstanceGenerator

	mu        sync.Mutex
	running   bool
	instances map[string]*Instance
}

func NewServer(generate InstanceGenerator) *Server {
	return &Server{generate: generate, instances: map[string]*Instance{}}
}

func (s *Server) Start() error {
	s.mu.Lock()
	s.running = true
	s.mu.Unlock()
	return nil
}

// Stop stops every instance still running.
func (s *Server) Stop() error {
	s.mu.Lock()
	insts := s.instances
	s.instances = map[string]*Instance{}
	s.running = false
	s.mu.Unlock()

	var errs []error
	for _, inst := range insts {
		errs = append(errs, inst.Stop())
	}
	return errors.Join(errs...)
}

// StartInstance generates and starts the instance for destination. A
// failed start leaves nothing registered.
func (s *Server) StartInstance(ctx context.Context, destination string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrServerStopped
	}
	if _, ok := s.instances[destination]; ok {
		return nil
	}
	inst, err := s.generate(destination)
	if err != nil {
		return fmt.Errorf("embedded: generate %s: %w", destination, err)
	}
	if err := inst.Start(ctx); err != nil {
		_ = inst.Stop()
		return err
	}
	s.instances[destination] = inst
	return nil
}

func (s *Server) StopInstance(destination string) error {
	s.mu.Lock()
	inst, ok := s.instances[destination]
	delete(s.instances, destination)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return inst.Stop()
}

// Instance returns the running instance for destination.
func (s *Server) Instance(destination string) (*Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[destination]
	return inst, ok
}

func (s *Server) lookup(id capture.Identity) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, ErrServerStopped
	}
	inst, ok := s.instances[id.Destination]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstance, id.Destination)
	}
	return inst, nil
}

func (s *Server) Subscribe(_ context.Context, id capture.Identity) error {
	inst, err := s.lookup(id)
	if err != nil {
		return err
	}
	return inst.subscribe(id)
}

func (s *Server) Unsubscribe(_ context.Context, id capture.Identity) error {
	inst, err := s.lookup(id)
	if err != nil {
		return err
	}
	inst.unsubscribe(id)
	return nil
}

// FetchWithoutAck returns whatever is available without waiting.
func (s *Server) FetchWithoutAck(ctx context.Context, id capture.Identity, batchSize int) (*capture.Message, error) {
	inst, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	return inst.get(ctx, id, batchSize, -1)
}

// FetchWithoutAckTimeout waits up to timeout for batchSize entries; a zero
// timeout waits for the first entry.
func (s *Server) FetchWithoutAckTimeout(ctx context.Context, id capture.Identity, batchSize int, timeout time.Duration) (*capture.Message, error) {
	inst, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	if timeout < 0 {
		timeout = 0
	}
	return inst.get(ctx, id, batchSize, timeout)
}

func (s *Server) Ack(_ context.Context, id capture.Identity, batchID int64) error {
	inst, err := s.lookup(id)
	if err != nil {
		return err
	}
	return inst.ack(id, batchID)
}

func (s *Server) Rollback(_ context.Context, id capture.Identity, batchID int64) error {
	inst, err := s.lookup(id)
	if err != nil {
		return err
	}
	return inst.rollback(id, batchID)
}
