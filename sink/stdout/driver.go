// cdcreader/sink/stdout/driver.go
package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"cdcreader/record"
	"cdcreader/sink"
)

/* ────────── public config ────────── */
type Config struct {
	DelayMS      int  // artificial per-chunk delay
	PrintCounter bool // prepend seq#
	Pretty       bool // indented JSON
	SkipDDL      bool

	Out io.Writer // nil → os.Stdout
}

/* ────────── driver ────────── */
type driver struct {
	cfg Config

	mu  sync.Mutex // guards out
	out io.Writer
	enc *json.Encoder
}

var seq uint64

/* ────────── sink.Adapter ────────── */
func (d *driver) Configure(raw any) error {
	c, ok := raw.(Config)
	if !ok {
		return fmt.Errorf("stdout-sink: expected Config, got %T", raw)
	}
	d.cfg = c
	d.out = c.Out
	if d.out == nil {
		d.out = os.Stdout
	}
	d.enc = json.NewEncoder(d.out)
	if c.Pretty {
		d.enc.SetIndent("", "  ")
	}
	return nil
}

func (d *driver) Push(ctx context.Context, c *record.Chunk) error {
	if d.cfg.DelayMS > 0 {
		t := time.NewTimer(time.Duration(d.cfg.DelayMS) * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range c.Records {
		if d.cfg.SkipDDL && r.Type == record.DDL {
			continue
		}
		if d.cfg.PrintCounter {
			if _, err := fmt.Fprintf(d.out, "[sink %06d] ", atomic.AddUint64(&seq, 1)); err != nil {
				return fmt.Errorf("stdout-sink: %w", err)
			}
		}
		if err := d.enc.Encode(r); err != nil {
			return fmt.Errorf("stdout-sink: %w", err)
		}
	}
	return nil
}

func (d *driver) Close() error { return nil }

/* ────────── auto-register ────────── */
func init() {
	sink.Register("stdout", func() sink.Adapter { return &driver{} })
}
