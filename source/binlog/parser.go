package binlog

import (
	"fmt"

	"cdcreader/capture"
	"cdcreader/record"
)

// TaskContext is what a Parser knows about the task it parses for.
type TaskContext struct {
	TaskID string
	Filter string
}

// Parser turns raw engine entries into domain records.
type Parser interface {
	Parse(entries []capture.Entry, tc TaskContext) ([]*record.Record, error)
}

// EntryParser emits one record per changed row and one DDL record per
// schema change. Transaction markers and heartbeats produce nothing.
type EntryParser struct{}

func (EntryParser) Parse(entries []capture.Entry, _ TaskContext) ([]*record.Record, error) {
	var out []*record.Record
	for _, e := range entries {
		if e.Kind != capture.KindRowData {
			continue
		}
		h := e.Header
		pos := fmt.Sprintf("%s:%s:%d", h.Source, h.Journal, h.Offset)
		if h.EventType.IsDDL() {
			out = append(out, &record.Record{
				Schema:      h.Schema,
				Table:       h.Table,
				Type:        record.DDL,
				ExecuteTime: h.ExecuteTime,
				SQL:         e.SQL,
				Position:    pos,
			})
			continue
		}

		var typ record.EventType
		switch h.EventType {
		case capture.EventInsert:
			typ = record.Insert
		case capture.EventUpdate:
			typ = record.Update
		case capture.EventDelete:
			typ = record.Delete
		default:
			return nil, fmt.Errorf("binlog: %s at %s: unsupported event type %q", h.Schema+"."+h.Table, pos, h.EventType)
		}
		for _, row := range e.Rows {
			rec := &record.Record{
				Schema:      h.Schema,
				Table:       h.Table,
				Type:        typ,
				ExecuteTime: h.ExecuteTime,
				Position:    pos,
			}
			switch typ {
			case record.Delete:
				rec.Columns = columns(row.Before)
			case record.Update:
				rec.Columns = columns(row.After)
				rec.OldColumns = columns(row.Before)
			default:
				rec.Columns = columns(row.After)
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func columns(in []capture.Column) []record.Column {
	if len(in) == 0 {
		return nil
	}
	out := make([]record.Column, len(in))
	for i, c := range in {
		out[i] = record.Column{
			Name:    c.Name,
			Type:    c.SQLType,
			Value:   c.Value,
			IsNull:  c.IsNull,
			IsKey:   c.IsKey,
			Updated: c.Updated,
		}
	}
	return out
}
