package capture

import "fmt"

type EventType string

const (
	EventInsert   EventType = "INSERT"
	EventUpdate   EventType = "UPDATE"
	EventDelete   EventType = "DELETE"
	EventCreate   EventType = "CREATE"
	EventAlter    EventType = "ALTER"
	EventErase    EventType = "ERASE"
	EventTruncate EventType = "TRUNCATE"
	EventRename   EventType = "RENAME"
	EventQuery    EventType = "QUERY"
)

// IsDDL reports whether t changes schema rather than rows.
func (t EventType) IsDDL() bool {
	switch t {
	case EventCreate, EventAlter, EventErase, EventTruncate, EventRename, EventQuery:
		return true
	}
	return false
}

type EntryKind string

const (
	KindRowData          EntryKind = "ROWDATA"
	KindTransactionBegin EntryKind = "TRANSACTIONBEGIN"
	KindTransactionEnd   EntryKind = "TRANSACTIONEND"
	// KindHeartbeat carries only a timestamp; sinks never store it.
	KindHeartbeat EntryKind = "HEARTBEAT"
)

// Header locates an entry in its physical source. Journal and Offset are
// the coordinates the source resumes from.
type Header struct {
	Source      string
	Journal     string
	Offset      int64
	ServerID    int64
	ExecuteTime int64 // unix millis
	EventLength int64
	Schema      string
	Table       string
	EventType   EventType
	Props       map[string]string
}

type Column struct {
	Name    string
	SQLType string
	Value   string
	IsNull  bool
	IsKey   bool
	Updated bool
}

type RowChange struct {
	Before []Column
	After  []Column
}

type Entry struct {
	Header Header
	Kind   EntryKind
	SQL    string
	Rows   []RowChange
}

// Position returns the resume coordinates of e.
func (e Entry) Position() EntryPosition {
	return EntryPosition{
		Journal:   e.Header.Journal,
		Offset:    e.Header.Offset,
		Timestamp: e.Header.ExecuteTime,
		ServerID:  e.Header.ServerID,
	}
}

// EntryPosition is a resume point inside one physical source.
type EntryPosition struct {
	Journal   string `json:"journal"`
	Offset    int64  `json:"offset"`
	Timestamp int64  `json:"timestamp"`
	ServerID  int64  `json:"server_id"`
}

func (p EntryPosition) String() string {
	return fmt.Sprintf("%s:%d:%d", p.Journal, p.Offset, p.Timestamp)
}

// Position holds one EntryPosition per source name.
type Position map[string]EntryPosition

func (p Position) Clone() Position {
	out := make(Position, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Merge overwrites p with every source present in other.
func (p Position) Merge(other Position) Position {
	out := p.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// PositionOf returns the last position of every source appearing in entries.
func PositionOf(entries []Entry) Position {
	pos := Position{}
	for _, e := range entries {
		if e.Kind == KindHeartbeat {
			continue
		}
		pos[e.Header.Source] = e.Position()
	}
	return pos
}
