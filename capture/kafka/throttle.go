package kafka

import (
	"context"
	"sync"
	"time"
)

// Throttle is a token bucket refilled on a ticker; it caps how many
// entries a source pushes into the instance per tick.
type Throttle struct {
	capacity int64
	refill   int64

	mu     sync.Mutex
	tokens int64
	cond   *sync.Cond
	closed bool
}

func NewThrottle(cap, refill int64, tick time.Duration) *Throttle {
	c := &Throttle{
		capacity: cap,
		refill:   refill,
		tokens:   cap,
	}
	c.cond = sync.NewCond(&c.mu)

	go func() {
		t := time.NewTicker(tick)
		defer t.Stop()
		for range t.C {
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			c.tokens += c.refill
			if c.tokens > c.capacity {
				c.tokens = c.capacity
			}
			c.mu.Unlock()
			c.cond.Broadcast()
		}
	}()
	return c
}

// Acquire takes n tokens, waiting for refills. n above the capacity is
// clamped so a large batch still gets through.
func (c *Throttle) Acquire(ctx context.Context, n int64) error {
	stop := context.AfterFunc(ctx, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer stop()

	n = min(n, c.capacity)
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.tokens < n && ctx.Err() == nil && !c.closed {
		c.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.closed {
		return nil
	}
	c.tokens -= n
	return nil
}

func (c *Throttle) TryAcquire(n int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens < n {
		return false
	}
	c.tokens -= n
	return true
}

func (c *Throttle) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.cond.Broadcast()
}
