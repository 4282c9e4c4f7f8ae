package sink

import (
	"context"
	"fmt"

	"cdcreader/record"
)

// Adapter is the common behaviour every sink exposes. Push returns only
// once the chunk is durably handed off; the task commits after every sink
// returned nil.
type Adapter interface {
	Configure(any) error                             // driver-specific config ⇒ struct
	Push(ctx context.Context, c *record.Chunk) error // consume one chunk
	Close() error                                    // idempotent
}

/*──────── registry ───────*/

type factory = func() Adapter

var reg = map[string]factory{}

func Register(name string, f factory) { reg[name] = f }

func NewAdapter(name string) (Adapter, error) {
	if f, ok := reg[name]; ok {
		return f(), nil
	}
	return nil, fmt.Errorf("unknown sink %q", name)
}
