package binlog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"cdcreader/capture"
)

// DefaultBaseSlaveID is added to the numeric task id when the reader
// configures no slave_id.
const DefaultBaseSlaveID int64 = 10000

// DeriveSlaveID gives every task sharing a base its own replication id.
func DeriveSlaveID(base int64, taskID string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(taskID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("binlog: task id %q is not numeric: %w", taskID, err)
	}
	if base <= 0 {
		base = DefaultBaseSlaveID
	}
	return base + n, nil
}

// NewIdentity subscribes task taskID under its own id as client id.
func NewIdentity(taskID, filter string) (capture.Identity, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(taskID), 10, 16)
	if err != nil {
		return capture.Identity{}, fmt.Errorf("binlog: task id %q does not fit a client id: %w", taskID, err)
	}
	return capture.Identity{Destination: taskID, ClientID: int16(n), Filter: filter}, nil
}

// BuildFilterExpression turns "schema.table" names into the engine's
// regex list. "*" matches any run of characters.
func BuildFilterExpression(tables []string) string {
	parts := make([]string, 0, len(tables))
	for _, t := range tables {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		segs := strings.Split(t, "*")
		for i, s := range segs {
			segs[i] = regexp.QuoteMeta(s)
		}
		parts = append(parts, strings.Join(segs, ".*"))
	}
	return strings.Join(parts, ",")
}
