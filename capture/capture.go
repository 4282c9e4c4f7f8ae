// Package capture defines the contract between a task reader and the change
// capture engine it consumes: identities, raw entries, batches, positions and
// the collaborators the engine calls back into.
package capture

import (
	"errors"
	"fmt"
)

// EmptyBatchID marks a Message that carries no events.
const EmptyBatchID int64 = -1

// ErrInterrupted is returned by engine calls aborted by the engine's own
// coordination layer rather than by the caller.
var ErrInterrupted = errors.New("capture: interrupted")

// Identity is the key under which a client subscribes to and polls an
// engine instance. Destination names the instance, ClientID the consumer.
type Identity struct {
	Destination string
	ClientID    int16
	Filter      string
}

// Key ignores Filter: re-subscribing with a new filter keeps the same
// client bookkeeping.
func (i Identity) Key() string {
	return fmt.Sprintf("%s#%d", i.Destination, i.ClientID)
}

func (i Identity) String() string {
	return fmt.Sprintf("%s#%d[%s]", i.Destination, i.ClientID, i.Filter)
}

// Message is one batch returned by a non-committing fetch.
type Message struct {
	ID      int64
	Entries []Entry
}

// Empty reports whether m is nil or the empty-batch sentinel.
func (m *Message) Empty() bool {
	return m == nil || m.ID == EmptyBatchID
}

// PositionStrategy is the checkpoint store an engine instance consults to
// resume and to record acknowledged progress.
type PositionStrategy interface {
	// Subscriptions lists the identities that resume on destination.
	Subscriptions(destination string) ([]Identity, error)
	Load(id Identity) (Position, error)
	Save(id Identity, pos Position) error
}

// AlarmHandler receives operator-facing failures of an engine instance.
type AlarmHandler interface {
	SendAlarm(destination, msg string)
}
