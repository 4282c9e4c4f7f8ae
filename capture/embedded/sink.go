package embedded

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"cdcreader/capture"
)

var ErrSinkStopped = errors.New("embedded: sink stopped")

// EventSink moves entries produced by sources into the instance store.
type EventSink interface {
	Sink(ctx context.Context, source string, entries []capture.Entry) error
	Stop()

	bind(store *Store, filter *atomic.Pointer[Filter], handlers []Handler)
}

// Handler sees every batch a sink is about to store and may rewrite it.
type Handler interface {
	Before(ctx context.Context, entries []capture.Entry) ([]capture.Entry, error)
	Close() error
}

/* ───────────────────────── single stream ───────────────────────── */

// EntrySink stores entries of every source into one stream in arrival
// order.
type EntrySink struct {
	filterTransaction bool

	store    *Store
	filter   *atomic.Pointer[Filter]
	handlers []Handler
	stopped  atomic.Bool
}

type EntrySinkOption func(*EntrySink)

// WithTransactionFilter drops transaction begin/end markers.
func WithTransactionFilter(enabled bool) EntrySinkOption {
	return func(s *EntrySink) { s.filterTransaction = enabled }
}

func NewEntrySink(opts ...EntrySinkOption) *EntrySink {
	s := &EntrySink{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *EntrySink) bind(store *Store, filter *atomic.Pointer[Filter], handlers []Handler) {
	s.store, s.filter, s.handlers = store, filter, handlers
}

func (s *EntrySink) Sink(ctx context.Context, _ string, entries []capture.Entry) error {
	if s.stopped.Load() {
		return ErrSinkStopped
	}
	var f *Filter
	if s.filter != nil {
		f = s.filter.Load()
	}
	kept := make([]capture.Entry, 0, len(entries))
	for _, e := range entries {
		switch e.Kind {
		case capture.KindHeartbeat:
			continue
		case capture.KindTransactionBegin, capture.KindTransactionEnd:
			if s.filterTransaction {
				continue
			}
		default:
			if !f.Match(e.Header.Schema, e.Header.Table) {
				continue
			}
		}
		kept = append(kept, e)
	}
	var err error
	for _, h := range s.handlers {
		if kept, err = h.Before(ctx, kept); err != nil {
			return err
		}
	}
	return s.store.Put(ctx, kept)
}

func (s *EntrySink) Stop() { s.stopped.Store(true) }

/* ───────────────────────── coordinated group ───────────────────────── */

// GroupSink merges a fixed number of sources into one timeline: a member's
// batch is stored only once every member has reported a timestamp and the
// batch is not later than the slowest member.
type GroupSink struct {
	size  int
	inner *EntrySink

	mu      sync.Mutex
	cond    *sync.Cond
	last    map[string]int64
	stopped bool
}

func NewGroupSink(size int, opts ...EntrySinkOption) *GroupSink {
	g := &GroupSink{
		size:  size,
		inner: NewEntrySink(opts...),
		last:  map[string]int64{},
	}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *GroupSink) bind(store *Store, filter *atomic.Pointer[Filter], handlers []Handler) {
	g.inner.bind(store, filter, handlers)
}

func (g *GroupSink) Size() int { return g.size }

func (g *GroupSink) Sink(ctx context.Context, source string, entries []capture.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	var ts int64
	data := false
	for _, e := range entries {
		ts = max(ts, e.Header.ExecuteTime)
		if e.Kind != capture.KindHeartbeat {
			data = true
		}
	}

	stop := context.AfterFunc(ctx, func() {
		g.mu.Lock()
		g.cond.Broadcast()
		g.mu.Unlock()
	})
	defer stop()

	g.mu.Lock()
	if ts > g.last[source] {
		g.last[source] = ts
	}
	g.cond.Broadcast()
	if !data {
		g.mu.Unlock()
		return nil
	}
	for !g.admits(ts) {
		if g.stopped {
			g.mu.Unlock()
			return ErrSinkStopped
		}
		if err := ctx.Err(); err != nil {
			g.mu.Unlock()
			return err
		}
		g.cond.Wait()
	}
	stopped := g.stopped
	g.mu.Unlock()
	if stopped {
		return ErrSinkStopped
	}
	return g.inner.Sink(ctx, source, entries)
}

// must be called with g.mu held
func (g *GroupSink) admits(ts int64) bool {
	if g.stopped || len(g.last) < g.size {
		return false
	}
	for _, t := range g.last {
		if t < ts {
			return false
		}
	}
	return true
}

func (g *GroupSink) Stop() {
	g.mu.Lock()
	g.stopped = true
	g.cond.Broadcast()
	g.mu.Unlock()
	g.inner.Stop()
}
