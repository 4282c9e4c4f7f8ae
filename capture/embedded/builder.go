package embedded

import (
	"errors"
	"log/slog"
	"time"

	"cdcreader/capture"
)

// Builder assembles an Instance from injected strategies.
type Builder struct {
	destination  string
	capacity     int64
	meta         capture.PositionStrategy
	sink         EventSink
	alarm        capture.AlarmHandler
	sources      []Source
	handlers     []Handler
	restartDelay time.Duration
	log          *slog.Logger
}

func NewBuilder(destination string) *Builder {
	return &Builder{
		destination:  destination,
		capacity:     DefaultStoreCapacity,
		restartDelay: 5 * time.Second,
	}
}

func (b *Builder) WithStoreCapacity(n int64) *Builder {
	if n > 0 {
		b.capacity = n
	}
	return b
}

func (b *Builder) WithPositionStrategy(s capture.PositionStrategy) *Builder {
	b.meta = s
	return b
}

func (b *Builder) WithSink(s EventSink) *Builder {
	b.sink = s
	return b
}

func (b *Builder) WithAlarmHandler(h capture.AlarmHandler) *Builder {
	b.alarm = h
	return b
}

func (b *Builder) WithSources(srcs ...Source) *Builder {
	b.sources = append(b.sources, srcs...)
	return b
}

func (b *Builder) WithHandlers(hs ...Handler) *Builder {
	b.handlers = append(b.handlers, hs...)
	return b
}

func (b *Builder) WithRestartDelay(d time.Duration) *Builder {
	if d > 0 {
		b.restartDelay = d
	}
	return b
}

func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.log = l
	return b
}

func (b *Builder) Build() (*Instance, error) {
	if b.destination == "" {
		return nil, errors.New("embedded: instance needs a destination")
	}
	if b.meta == nil {
		return nil, errors.New("embedded: instance needs a position strategy")
	}
	if b.sink == nil {
		b.sink = NewEntrySink()
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	if b.alarm == nil {
		b.alarm = logAlarm{log: b.log}
	}

	inst := &Instance{
		destination:  b.destination,
		store:        NewStore(b.capacity),
		sink:         b.sink,
		meta:         b.meta,
		alarm:        b.alarm,
		sources:      b.sources,
		handlers:     b.handlers,
		restartDelay: b.restartDelay,
		log:          b.log,
		clients:      map[string]*client{},
		acked:        capture.Position{},
		sunk:         capture.Position{},
	}
	inst.filter.Store(&Filter{})
	inst.sink.bind(inst.store, &inst.filter, inst.handlers)
	return inst, nil
}

type logAlarm struct{ log *slog.Logger }

func (a logAlarm) SendAlarm(destination, msg string) {
	a.log.Warn("alarm", "destination", destination, "msg", msg)
}
