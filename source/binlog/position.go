package binlog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cdcreader/capture"
)

// Checkpoint is what a CheckpointStore keeps per task.
type Checkpoint struct {
	Filter    string           `json:"filter"`
	Position  capture.Position `json:"position"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// CheckpointStore persists acknowledged positions; it is owned by the host
// running the task.
type CheckpointStore interface {
	// Load returns nil when the task has no checkpoint yet.
	Load(ctx context.Context, taskID string) (*Checkpoint, error)
	Save(ctx context.Context, taskID string, cp Checkpoint) error
}

type MemoryCheckpointStore struct {
	mu sync.Mutex
	m  map[string]Checkpoint
}

func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{m: map[string]Checkpoint{}}
}

func (s *MemoryCheckpointStore) Load(_ context.Context, taskID string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.m[taskID]
	if !ok {
		return nil, nil
	}
	cp.Position = cp.Position.Clone()
	return &cp, nil
}

func (s *MemoryCheckpointStore) Save(_ context.Context, taskID string, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp.Position = cp.Position.Clone()
	s.m[taskID] = cp
	return nil
}

// TaskPositionStrategy is the engine-facing view of a task's checkpoints.
// It reports the task's own identity, filter included, as the only
// subscription of the task's destination.
type TaskPositionStrategy struct {
	identity capture.Identity
	store    CheckpointStore
	timeout  time.Duration
	log      *slog.Logger
}

func NewTaskPositionStrategy(id capture.Identity, store CheckpointStore, log *slog.Logger) *TaskPositionStrategy {
	return &TaskPositionStrategy{identity: id, store: store, timeout: 10 * time.Second, log: log}
}

func (s *TaskPositionStrategy) Subscriptions(destination string) ([]capture.Identity, error) {
	if destination != s.identity.Destination {
		return nil, nil
	}
	return []capture.Identity{s.identity}, nil
}

func (s *TaskPositionStrategy) Load(id capture.Identity) (capture.Position, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	cp, err := s.store.Load(ctx, id.Destination)
	if err != nil || cp == nil {
		return capture.Position{}, err
	}
	if cp.Filter != "" && cp.Filter != s.identity.Filter {
		s.log.Warn("checkpoint was recorded under another filter; resuming anyway",
			"stored", cp.Filter, "current", s.identity.Filter)
	}
	return cp.Position.Clone(), nil
}

func (s *TaskPositionStrategy) Save(id capture.Identity, pos capture.Position) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	return s.store.Save(ctx, id.Destination, Checkpoint{
		Filter:    s.identity.Filter,
		Position:  pos,
		UpdatedAt: time.Now(),
	})
}
