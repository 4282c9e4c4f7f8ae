package embedded

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cdcreader/capture"
)

var (
	ErrNotSubscribed = errors.New("embedded: client not subscribed")
	ErrBatchOrder    = errors.New("embedded: batch is not the earliest outstanding")
	ErrUnknownBatch  = errors.New("embedded: unknown batch")
)

type batch struct {
	id       int64
	from, to int64
	pos      capture.Position
}

type client struct {
	id      capture.Identity
	batches []batch
}

// Instance is one running capture pipeline: sources → sink → store, plus
// the batch bookkeeping of the clients reading from the store.
type Instance struct {
	destination  string
	store        *Store
	sink         EventSink
	meta         capture.PositionStrategy
	alarm        capture.AlarmHandler
	sources      []Source
	handlers     []Handler
	restartDelay time.Duration
	log          *slog.Logger

	filter atomic.Pointer[Filter]

	mu        sync.Mutex
	clients   map[string]*client
	acked     capture.Position
	sunk      capture.Position
	nextBatch int64
	running   bool
	stopped   bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (i *Instance) Destination() string { return i.destination }

// Sink exposes the sink the instance was assembled with.
func (i *Instance) Sink() EventSink { return i.sink }

// Start resumes every source from the position recorded for the first
// subscription known to the position strategy.
func (i *Instance) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.running {
		return nil
	}
	if i.stopped {
		return fmt.Errorf("embedded: %s: instance already stopped", i.destination)
	}

	subs, err := i.meta.Subscriptions(i.destination)
	if err != nil {
		return fmt.Errorf("embedded: %s: list subscriptions: %w", i.destination, err)
	}
	if len(subs) > 0 {
		if err := i.setFilter(subs[0].Filter); err != nil {
			return err
		}
		pos, err := i.meta.Load(subs[0])
		if err != nil {
			return fmt.Errorf("embedded: %s: load position: %w", i.destination, err)
		}
		i.acked = pos.Clone()
		i.sunk = pos.Clone()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	i.cancel = cancel
	for _, src := range i.sources {
		i.wg.Add(1)
		go i.runSource(runCtx, src)
	}
	i.running = true
	i.log.Info("instance started", "destination", i.destination, "sources", len(i.sources), "filter", i.filter.Load().String())
	return nil
}

func (i *Instance) resumePoint(name string) *capture.EntryPosition {
	i.mu.Lock()
	defer i.mu.Unlock()
	if p, ok := i.sunk[name]; ok {
		return &p
	}
	return nil
}

func (i *Instance) runSource(ctx context.Context, src Source) {
	defer i.wg.Done()
	name := src.Name()
	emit := func(ctx context.Context, entries []capture.Entry) error {
		for k := range entries {
			if entries[k].Header.Source == "" {
				entries[k].Header.Source = name
			}
		}
		if err := i.sink.Sink(ctx, name, entries); err != nil {
			return err
		}
		if pos, ok := capture.PositionOf(entries)[name]; ok {
			i.mu.Lock()
			i.sunk[name] = pos
			i.mu.Unlock()
		}
		return nil
	}

	for {
		err := src.Run(ctx, i.resumePoint(name), emit)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			err = errors.New("source ended unexpectedly")
		}
		i.log.Error("source failed", "destination", i.destination, "source", name, "err", err)
		i.alarm.SendAlarm(i.destination, fmt.Sprintf("source %s failed: %v", name, err))

		select {
		case <-ctx.Done():
			return
		case <-time.After(i.restartDelay):
		}
	}
}

// must be called with i.mu held
func (i *Instance) setFilter(expr string) error {
	if cur := i.filter.Load(); cur != nil && cur.String() == expr {
		return nil
	}
	f, err := CompileFilter(expr)
	if err != nil {
		return err
	}
	i.filter.Store(f)
	return nil
}

func (i *Instance) subscribe(id capture.Identity) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.setFilter(id.Filter); err != nil {
		return err
	}
	if c, ok := i.clients[id.Key()]; ok {
		c.id = id
		return nil
	}
	i.clients[id.Key()] = &client{id: id}
	return nil
}

func (i *Instance) unsubscribe(id capture.Identity) {
	i.mu.Lock()
	delete(i.clients, id.Key())
	i.mu.Unlock()
}

func (i *Instance) subscribed(id capture.Identity) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.clients[id.Key()]
	return ok
}

func (i *Instance) get(ctx context.Context, id capture.Identity, size int, timeout time.Duration) (*capture.Message, error) {
	if !i.subscribed(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotSubscribed, id)
	}
	entries, from, to, err := i.store.Get(ctx, size, timeout)
	if errors.Is(err, ErrStoreClosed) {
		return nil, capture.ErrInterrupted
	}
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return &capture.Message{ID: capture.EmptyBatchID}, nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	c, ok := i.clients[id.Key()]
	if !ok {
		i.store.Rollback()
		return nil, fmt.Errorf("%w: %s", ErrNotSubscribed, id)
	}
	i.nextBatch++
	c.batches = append(c.batches, batch{id: i.nextBatch, from: from, to: to, pos: capture.PositionOf(entries)})
	return &capture.Message{ID: i.nextBatch, Entries: entries}, nil
}

// ack records the batch position through the strategy before releasing
// the entries, so a failed save leaves the batch outstanding.
func (i *Instance) ack(id capture.Identity, batchID int64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	c, ok := i.clients[id.Key()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, id)
	}
	if len(c.batches) == 0 || c.batches[0].id != batchID {
		return fmt.Errorf("%w: %d", ErrBatchOrder, batchID)
	}
	b := c.batches[0]
	next := i.acked.Merge(b.pos)
	if err := i.meta.Save(c.id, next.Clone()); err != nil {
		return fmt.Errorf("embedded: save position for batch %d: %w", batchID, err)
	}
	i.acked = next
	c.batches = c.batches[1:]
	i.store.Ack(b.to)
	return nil
}

func (i *Instance) rollback(id capture.Identity, batchID int64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	c, ok := i.clients[id.Key()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotSubscribed, id)
	}
	found := false
	for _, b := range c.batches {
		if b.id == batchID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %d", ErrUnknownBatch, batchID)
	}
	c.batches = nil
	i.store.Rollback()
	return nil
}

// Stop unblocks and joins every source, then releases sources and
// handlers. It also releases an instance whose Start failed.
func (i *Instance) Stop() error {
	i.mu.Lock()
	if i.stopped {
		i.mu.Unlock()
		return nil
	}
	i.stopped = true
	running := i.running
	i.running = false
	i.mu.Unlock()

	if running {
		i.cancel()
	}
	i.sink.Stop()
	i.store.Close()
	i.wg.Wait()

	var errs []error
	for _, src := range i.sources {
		if err := src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close source %s: %w", src.Name(), err))
		}
	}
	for _, h := range i.handlers {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	i.log.Info("instance stopped", "destination", i.destination)
	return errors.Join(errs...)
}
