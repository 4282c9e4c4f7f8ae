package dump

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"cdcreader/capture"
	"cdcreader/record"
)

// TableWriter renders dumps as console tables.
type TableWriter struct {
	out            io.Writer
	colorEnabled   bool
	maxColumnWidth int
}

type TableOption func(*TableWriter)

func WithColor(enabled bool) TableOption {
	return func(w *TableWriter) { w.colorEnabled = enabled }
}

func WithMaxColumnWidth(width int) TableOption {
	return func(w *TableWriter) { w.maxColumnWidth = width }
}

func NewTableWriter(out io.Writer, opts ...TableOption) *TableWriter {
	if out == nil {
		out = os.Stdout
	}
	w := &TableWriter{out: out, colorEnabled: true, maxColumnWidth: 60}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *TableWriter) newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w.out)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	if !w.colorEnabled {
		t.Style().Color = table.ColorOptions{}
		t.Style().Title.Colors = text.Colors{}
	} else {
		t.Style().Title.Colors = text.Colors{text.FgHiWhite, text.Bold}
	}
	return t
}

func (w *TableWriter) typeColor(t string) string {
	if !w.colorEnabled {
		return t
	}
	switch {
	case strings.EqualFold(t, string(record.Insert)):
		return color.New(color.FgGreen, color.Bold).Sprint(t)
	case strings.EqualFold(t, string(record.Update)):
		return color.New(color.FgYellow, color.Bold).Sprint(t)
	case strings.EqualFold(t, string(record.Delete)):
		return color.New(color.FgRed, color.Bold).Sprint(t)
	default:
		return color.New(color.FgBlue).Sprint(t)
	}
}

func (w *TableWriter) truncate(s string) string {
	if w.maxColumnWidth <= 0 || len(s) <= w.maxColumnWidth {
		return s
	}
	return s[:w.maxColumnWidth-3] + "..."
}

func (w *TableWriter) WriteMessage(msg *capture.Message, batchID int64, entryCount int) error {
	t := w.newTable(fmt.Sprintf("batch %d (%d entries)", batchID, entryCount))
	t.AppendHeader(table.Row{"#", "Kind", "Position", "Table", "Type", "Rows", "Executed"})
	for i, e := range msg.Entries {
		t.AppendRow(table.Row{
			i,
			e.Kind,
			w.truncate(PositionOf(e)),
			e.Header.Schema + "." + e.Header.Table,
			w.typeColor(string(e.Header.EventType)),
			len(e.Rows),
			time.UnixMilli(e.Header.ExecuteTime).UTC().Format(time.RFC3339),
		})
	}
	t.Render()
	return nil
}

func (w *TableWriter) WriteChunk(chunk *record.Chunk, startPos, endPos string, entryCount int, detail bool) error {
	t := w.newTable(fmt.Sprintf("records %d of %d entries", len(chunk.Records), entryCount))
	t.AppendRow(table.Row{"Start", startPos})
	t.AppendRow(table.Row{"End", endPos})
	t.AppendRow(table.Row{"Payload", fmt.Sprintf("%d bytes", chunk.PayloadSize)})
	t.Render()
	if !detail {
		return nil
	}

	rt := w.newTable("record detail")
	rt.AppendHeader(table.Row{"Table", "Type", "Position", "Columns"})
	for _, r := range chunk.Records {
		cols := make([]string, 0, len(r.Columns))
		for _, c := range r.Columns {
			v := c.Value
			if c.IsNull {
				v = "NULL"
			}
			cols = append(cols, c.Name+"="+v)
		}
		rt.AppendRow(table.Row{r.TableName(), w.typeColor(string(r.Type)), r.Position, w.truncate(strings.Join(cols, ", "))})
	}
	rt.Render()
	return nil
}
