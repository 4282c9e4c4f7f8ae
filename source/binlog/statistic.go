package binlog

import (
	"maps"

	"cdcreader/capture"
)

const (
	StatFetchTimeThrough = "fetch_time_through_ms" // last fetch, until data
	StatFetchEntryCount  = "fetch_entry_count"     // last fetch
	StatFetchEntryTotal  = "fetch_entry_total"
	StatFetchBatchTotal  = "fetch_batch_total"
)

// Statistic accumulates per-task counters. Keys are added, never removed.
type Statistic struct {
	extend map[string]int64
}

func NewStatistic() *Statistic {
	return &Statistic{extend: map[string]int64{}}
}

func (s *Statistic) Put(key string, v int64) { s.extend[key] = v }

func (s *Statistic) Add(key string, delta int64) { s.extend[key] += delta }

func (s *Statistic) Get(key string) (int64, bool) {
	v, ok := s.extend[key]
	return v, ok
}

func (s *Statistic) Snapshot() map[string]int64 {
	return maps.Clone(s.extend)
}

// Session is the scratch state of one task. pending is set by Fetch when
// dumping is enabled and consumed by the next Dump.
type Session struct {
	Statistic *Statistic

	pending *capture.Message
}

func newSession() *Session {
	return &Session{Statistic: NewStatistic()}
}

func (s *Session) takePending() *capture.Message {
	m := s.pending
	s.pending = nil
	return m
}
