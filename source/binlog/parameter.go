package binlog

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"cdcreader/record"
)

type GroupSinkMode string

const (
	GroupSinkDefault    GroupSinkMode = "default"    // merge sources as they arrive
	GroupSinkCoordinate GroupSinkMode = "coordinate" // merge sources on one timeline
)

// DataSource is one physical change log feeding the engine instance.
type DataSource struct {
	Name    string         `koanf:"name"`
	Driver  string         `koanf:"driver"`
	Options map[string]any `koanf:"options"`
}

type StoreCfg struct {
	Capacity int64 `koanf:"capacity"` // buffered entries
}

type Parameter struct {
	MessageBatchSize   int           `koanf:"message_batch_size"`
	BatchTimeoutMS     int64         `koanf:"batch_timeout_ms"` // < 0 polls without engine timeout
	FilterTableError   bool          `koanf:"filter_table_error"`
	GroupSinkMode      GroupSinkMode `koanf:"group_sink_mode"`
	Dump               bool          `koanf:"dump"`
	DumpDetail         bool          `koanf:"dump_detail"`
	FilteredEventTypes []string      `koanf:"filtered_event_types"`

	Tables             []string       `koanf:"tables"`
	SlaveID            int64          `koanf:"slave_id"`
	Store              StoreCfg       `koanf:"store"`
	Groups             [][]DataSource `koanf:"groups"`
	SourceRestartDelay time.Duration  `koanf:"source_restart_delay"`
}

func DefaultParameter() Parameter {
	return Parameter{
		MessageBatchSize: 10000,
		BatchTimeoutMS:   -1,
		GroupSinkMode:    GroupSinkDefault,
	}
}

const envPrefix = "CDCREADER_READER__"

// LoadParameter merges YAML (if present) with env-vars
// (prefix `CDCREADER_READER__`, delimiter `__`).
func LoadParameter(path string) (Parameter, error) {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Parameter{}, err
		}
	}
	sv := k.String("schema_version")
	if sv != "" && sv != "v1" {
		return Parameter{}, fmt.Errorf("reader schema_version %q not supported (want v1)", sv)
	}

	_ = k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil)

	p := DefaultParameter()
	if err := k.Unmarshal("", &p); err != nil {
		return p, err
	}
	applyDefaults(&p)
	return p, p.Validate()
}

func applyDefaults(p *Parameter) {
	if p.MessageBatchSize == 0 {
		p.MessageBatchSize = 10000
	}
	if p.GroupSinkMode == "" {
		p.GroupSinkMode = GroupSinkDefault
	}
	p.GroupSinkMode = GroupSinkMode(strings.ToLower(string(p.GroupSinkMode)))
}

func (p Parameter) Validate() error {
	if p.MessageBatchSize < 0 {
		return fmt.Errorf("binlog: message_batch_size %d must not be negative", p.MessageBatchSize)
	}
	if p.GroupSinkMode != GroupSinkDefault && p.GroupSinkMode != GroupSinkCoordinate {
		return fmt.Errorf("binlog: group_sink_mode %q (want default|coordinate)", p.GroupSinkMode)
	}
	if _, err := p.ExcludedEventTypes(); err != nil {
		return err
	}
	for gi, g := range p.Groups {
		for si, ds := range g {
			if ds.Driver == "" {
				return fmt.Errorf("binlog: groups[%d][%d]: driver required", gi, si)
			}
		}
	}
	return nil
}

func (p Parameter) BatchTimeout() time.Duration {
	return time.Duration(p.BatchTimeoutMS) * time.Millisecond
}

// GroupSize is the number of sources in the first group; 1 without
// groups, e.g. when the source list is sharded outside the reader.
func (p Parameter) GroupSize() int {
	if len(p.Groups) == 0 || len(p.Groups[0]) == 0 {
		return 1
	}
	return len(p.Groups[0])
}

func (p Parameter) ExcludedEventTypes() ([]record.EventType, error) {
	out := make([]record.EventType, 0, len(p.FilteredEventTypes))
	for _, s := range p.FilteredEventTypes {
		t, err := record.ParseEventType(s)
		if err != nil {
			return nil, fmt.Errorf("binlog: filtered_event_types: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}
