// Package record holds the domain records a task reader hands downstream.
package record

import (
	"fmt"
	"strings"
)

type EventType string

const (
	Insert EventType = "INSERT"
	Update EventType = "UPDATE"
	Delete EventType = "DELETE"
	DDL    EventType = "DDL"
)

// ParseEventType accepts any case.
func ParseEventType(s string) (EventType, error) {
	switch t := EventType(strings.ToUpper(strings.TrimSpace(s))); t {
	case Insert, Update, Delete, DDL:
		return t, nil
	}
	return "", fmt.Errorf("record: unknown event type %q", s)
}

type Column struct {
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Value   string `json:"value"`
	IsNull  bool   `json:"is_null,omitempty"`
	IsKey   bool   `json:"is_key,omitempty"`
	Updated bool   `json:"updated,omitempty"`
}

// Record is one change event.
type Record struct {
	Schema      string    `json:"schema"`
	Table       string    `json:"table"`
	Type        EventType `json:"type"`
	ExecuteTime int64     `json:"execute_time"`
	Columns     []Column  `json:"columns,omitempty"`
	OldColumns  []Column  `json:"old_columns,omitempty"`
	SQL         string    `json:"sql,omitempty"`
	// Position is "source:journal:offset" of the raw entry.
	Position string `json:"position"`
}

// Keys returns the primary key columns of the current row image.
func (r *Record) Keys() []Column {
	var out []Column
	for _, c := range r.Columns {
		if c.IsKey {
			out = append(out, c)
		}
	}
	return out
}

func (r *Record) TableName() string {
	return r.Schema + "." + r.Table
}
