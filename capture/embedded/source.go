package embedded

import (
	"context"
	"fmt"
	"sort"

	"cdcreader/capture"
)

// EmitFunc hands a batch of entries read by a source to the instance sink.
type EmitFunc func(ctx context.Context, entries []capture.Entry) error

// Source tails one physical change log.
type Source interface {
	Name() string
	// Run reads from just after from (or the configured start when from is
	// nil) until ctx ends or reading fails.
	Run(ctx context.Context, from *capture.EntryPosition, emit EmitFunc) error
	Close() error
}

// SourceOptions is what the instance factory knows about one data source.
type SourceOptions struct {
	Name             string
	SlaveID          int64
	FilterTableError bool
	Options          map[string]any
}

// SourceFactory builds a Source (e.g., the sarama-backed kafka source).
type SourceFactory func(SourceOptions) (Source, error)

var sources = map[string]SourceFactory{}

// RegisterSource is called from main with every linked driver.
func RegisterSource(driver string, f SourceFactory) {
	sources[driver] = f
}

func NewSource(driver string, opts SourceOptions) (Source, error) {
	if f, ok := sources[driver]; ok {
		return f(opts)
	}
	return nil, fmt.Errorf("embedded: unsupported source driver %q", driver)
}

func Drivers() []string {
	out := make([]string, 0, len(sources))
	for name := range sources {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
