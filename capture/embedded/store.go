package embedded

import (
	"context"
	"errors"
	"sync"
	"time"

	"cdcreader/capture"
)

var ErrStoreClosed = errors.New("embedded: store closed")

// Store is a bounded in-memory event buffer with three cursors:
//
//	ackSeq <= getSeq <= putSeq
//
// Entries in [ackSeq, putSeq) are retained; [ackSeq, getSeq) have been
// handed out but not acknowledged.
type Store struct {
	capacity int64

	mu      sync.Mutex
	cond    *sync.Cond
	entries []capture.Entry // entries[0] has sequence ackSeq
	putSeq  int64
	getSeq  int64
	ackSeq  int64
	closed  bool
}

func NewStore(capacity int64) *Store {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	s := &Store{capacity: capacity}
	s.cond = sync.NewCond(&s.mu)
	return s
}

const DefaultStoreCapacity = 16 * 1024

// wake broadcasts on the condition once ctx ends, so waiters can observe it.
func (s *Store) wake(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
}

// Put blocks while the store cannot take entries. A batch larger than the
// capacity is admitted once the store is empty.
func (s *Store) Put(ctx context.Context, entries []capture.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	stop := s.wake(ctx)
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(entries))
	for pend := s.putSeq - s.ackSeq; pend > 0 && pend+n > s.capacity; pend = s.putSeq - s.ackSeq {
		if s.closed {
			return ErrStoreClosed
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	if s.closed {
		return ErrStoreClosed
	}
	s.entries = append(s.entries, entries...)
	s.putSeq += n
	s.cond.Broadcast()
	return nil
}

// Get hands out up to max entries after the get cursor and returns the
// sequence range [from, to) they occupy.
//
// timeout < 0 returns immediately; timeout == 0 waits until at least one
// entry is available; timeout > 0 waits for max entries or the timeout,
// whichever comes first.
func (s *Store) Get(ctx context.Context, max int, timeout time.Duration) (entries []capture.Entry, from, to int64, err error) {
	if max <= 0 {
		max = 1
	}
	stop := s.wake(ctx)
	defer stop()

	var expired bool
	if timeout > 0 {
		t := time.AfterFunc(timeout, func() {
			s.mu.Lock()
			expired = true
			s.cond.Broadcast()
			s.mu.Unlock()
		})
		defer t.Stop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.closed {
			return nil, 0, 0, ErrStoreClosed
		}
		avail := s.putSeq - s.getSeq
		if timeout < 0 || avail >= int64(max) || (timeout == 0 && avail > 0) || expired {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, 0, 0, err
		}
		s.cond.Wait()
	}

	from = s.getSeq
	to = min(s.putSeq, from+int64(max))
	if to == from {
		return nil, from, to, nil
	}
	entries = make([]capture.Entry, to-from)
	copy(entries, s.entries[from-s.ackSeq:to-s.ackSeq])
	s.getSeq = to
	return entries, from, to, nil
}

// Ack releases every entry below seq.
func (s *Store) Ack(seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq <= s.ackSeq || seq > s.getSeq {
		return
	}
	n := seq - s.ackSeq
	rest := make([]capture.Entry, int64(len(s.entries))-n)
	copy(rest, s.entries[n:])
	s.entries = rest
	s.ackSeq = seq
	s.cond.Broadcast()
}

// Rollback makes every unacknowledged entry eligible for the next Get.
func (s *Store) Rollback() {
	s.mu.Lock()
	s.getSeq = s.ackSeq
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Pending is the number of retained entries.
func (s *Store) Pending() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putSeq - s.ackSeq
}

func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
}
