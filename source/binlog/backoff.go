package binlog

import (
	"context"
	"runtime"
	"time"
)

// MaxEmptyCount caps the consecutive empty polls Backoff distinguishes.
const MaxEmptyCount = 10

// Backoff is the pause after the n-th consecutive empty poll (1-based).
// The first three polls only yield the processor; later ones sleep n ms,
// never more than MaxEmptyCount ms.
func Backoff(n int) time.Duration {
	n = min(n, MaxEmptyCount)
	if n <= 3 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}

// pause yields when d is zero and otherwise sleeps for d or until ctx ends.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		runtime.Gosched()
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
