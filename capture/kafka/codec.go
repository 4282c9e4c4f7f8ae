package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/IBM/sarama"

	"cdcreader/capture"
)

// Wire format of one change entry on the topic. Binlog coordinates are
// informational; the reader resumes from topic offsets.
type wireColumn struct {
	Name    string  `json:"name"`
	Type    string  `json:"type,omitempty"`
	Value   *string `json:"value"`
	Key     bool    `json:"key,omitempty"`
	Updated bool    `json:"updated,omitempty"`
}

type wireRow struct {
	Before []wireColumn `json:"before,omitempty"`
	After  []wireColumn `json:"after,omitempty"`
}

type wireEntry struct {
	Kind        string    `json:"kind,omitempty"`
	Journal     string    `json:"journal,omitempty"`
	Offset      int64     `json:"offset,omitempty"`
	ServerID    int64     `json:"server_id,omitempty"`
	ExecuteTime int64     `json:"execute_time,omitempty"`
	Schema      string    `json:"schema,omitempty"`
	Table       string    `json:"table,omitempty"`
	Type        string    `json:"type,omitempty"`
	SQL         string    `json:"sql,omitempty"`
	Rows        []wireRow `json:"rows,omitempty"`
}

var errNoEventType = errors.New("row entry without event type")

func decodeEntry(journal string, msg *sarama.ConsumerMessage) (capture.Entry, error) {
	var w wireEntry
	if err := json.Unmarshal(msg.Value, &w); err != nil {
		return capture.Entry{}, fmt.Errorf("decode %s@%d: %w", journal, msg.Offset, err)
	}
	kind := capture.EntryKind(strings.ToUpper(w.Kind))
	if kind == "" {
		kind = capture.KindRowData
	}
	et := capture.EventType(strings.ToUpper(w.Type))
	if kind == capture.KindRowData && et == "" {
		return capture.Entry{}, fmt.Errorf("decode %s@%d: %w", journal, msg.Offset, errNoEventType)
	}
	ts := w.ExecuteTime
	if ts == 0 && !msg.Timestamp.IsZero() {
		ts = msg.Timestamp.UnixMilli()
	}

	e := capture.Entry{
		Kind: kind,
		SQL:  w.SQL,
		Header: capture.Header{
			Journal:     journal,
			Offset:      msg.Offset,
			ServerID:    w.ServerID,
			ExecuteTime: ts,
			EventLength: int64(len(msg.Value)),
			Schema:      w.Schema,
			Table:       w.Table,
			EventType:   et,
		},
	}
	if w.Journal != "" {
		e.Header.Props = map[string]string{
			"binlog.journal": w.Journal,
			"binlog.offset":  strconv.FormatInt(w.Offset, 10),
		}
	}
	for _, r := range w.Rows {
		e.Rows = append(e.Rows, capture.RowChange{Before: toColumns(r.Before), After: toColumns(r.After)})
	}
	return e, nil
}

func toColumns(in []wireColumn) []capture.Column {
	if len(in) == 0 {
		return nil
	}
	out := make([]capture.Column, len(in))
	for i, c := range in {
		out[i] = capture.Column{
			Name:    c.Name,
			SQLType: c.Type,
			IsKey:   c.Key,
			Updated: c.Updated,
			IsNull:  c.Value == nil,
		}
		if c.Value != nil {
			out[i].Value = *c.Value
		}
	}
	return out
}
