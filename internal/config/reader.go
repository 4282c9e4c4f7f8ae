package config

import (
	"cdcreader/source/binlog"
)

// LoadReaderParameter delegates to the binlog reader loader while
// centralizing loader entrypoints under internal/config.
func LoadReaderParameter(path string) (binlog.Parameter, error) {
	return binlog.LoadParameter(path)
}
