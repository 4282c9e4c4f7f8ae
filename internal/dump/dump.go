// Package dump writes fetched batches out for troubleshooting.
package dump

import (
	"fmt"
	"log/slog"

	"cdcreader/capture"
	"cdcreader/record"
)

// Writer receives the raw message and the filtered chunk of one cycle.
type Writer interface {
	WriteMessage(msg *capture.Message, batchID int64, entryCount int) error
	WriteChunk(chunk *record.Chunk, startPos, endPos string, entryCount int, detail bool) error
}

// PositionOf renders the position of a raw entry the way dumps show it.
func PositionOf(e capture.Entry) string {
	return fmt.Sprintf("%s:%s:%d:%d", e.Header.Source, e.Header.Journal, e.Header.Offset, e.Header.ExecuteTime)
}

// LogWriter writes dumps as structured log records.
type LogWriter struct {
	log *slog.Logger
}

func NewLogWriter(l *slog.Logger) *LogWriter {
	return &LogWriter{log: l.With("component", "dump")}
}

func (w *LogWriter) WriteMessage(msg *capture.Message, batchID int64, entryCount int) error {
	w.log.Info("message", "batch_id", batchID, "entries", entryCount)
	for _, e := range msg.Entries {
		w.log.Info("entry",
			"batch_id", batchID,
			"kind", e.Kind,
			"position", PositionOf(e),
			"table", e.Header.Schema+"."+e.Header.Table,
			"type", e.Header.EventType,
			"rows", len(e.Rows),
		)
	}
	return nil
}

func (w *LogWriter) WriteChunk(chunk *record.Chunk, startPos, endPos string, entryCount int, detail bool) error {
	w.log.Info("records",
		"start", startPos,
		"end", endPos,
		"entries", entryCount,
		"records", len(chunk.Records),
		"first_entry_time", chunk.FirstEntryTime,
		"payload_bytes", chunk.PayloadSize,
	)
	if !detail {
		return nil
	}
	for _, r := range chunk.Records {
		w.log.Info("record", "table", r.TableName(), "type", r.Type, "position", r.Position, "columns", len(r.Columns))
	}
	return nil
}
