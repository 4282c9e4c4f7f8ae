package logging

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
)

type Options struct {
	Level  string // debug|info|warn|error, also "warn+2" style offsets
	JSON   bool
	Output io.Writer // defaults to stderr
}

var current atomic.Pointer[slog.Logger]

func init() { Configure(Options{}) }

// Configure replaces the process logger. Loggers derived earlier with
// ForTask keep the old handler.
func Configure(opts Options) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: parseLevel(opts.Level)}
	if opts.JSON {
		current.Store(slog.New(slog.NewJSONHandler(out, ho)))
		return
	}
	current.Store(slog.New(slog.NewTextHandler(out, ho)))
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func L() *slog.Logger { return current.Load() }

// ForTask tags every record with the component and task id.
func ForTask(component, taskID string) *slog.Logger {
	return L().With("component", component, "task", taskID)
}

// InitFromEnv configures from CDCREADER_LOG_LEVEL and CDCREADER_LOG_JSON.
func InitFromEnv() {
	asJSON, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv("CDCREADER_LOG_JSON")))
	Configure(Options{Level: os.Getenv("CDCREADER_LOG_LEVEL"), JSON: asJSON})
}
