package spec

type StdoutSink struct {
	DelayMS      int  `yaml:"delay_ms" toml:"delay_ms"`           // artificial per-chunk delay
	PrintCounter bool `yaml:"print_counter" toml:"print_counter"` // prepend seq#
	Pretty       bool `yaml:"pretty" toml:"pretty"`
	SkipDDL      bool `yaml:"skip_ddl" toml:"skip_ddl"`
}

// KafkaSink writes to Topic, or to <TopicPrefix><schema>.<table> when
// Topic is empty.
type KafkaSink struct {
	Brokers     []string `yaml:"brokers" toml:"brokers"`
	Topic       string   `yaml:"topic" toml:"topic"`
	TopicPrefix string   `yaml:"topic_prefix" toml:"topic_prefix"`
	Version     string   `yaml:"version" toml:"version"`
	Acks        int16    `yaml:"required_acks" toml:"required_acks"` // 0,1,-1
}

// SinkSpec configures one downstream writer; Driver selects which of the
// driver blocks applies.
type SinkSpec struct {
	Name   string      `yaml:"name" toml:"name"`
	Driver string      `yaml:"driver" toml:"driver"`
	Stdout *StdoutSink `yaml:"stdout" toml:"stdout"`
	Kafka  *KafkaSink  `yaml:"kafka" toml:"kafka"`
}

type dumpSection struct {
	Format         string `yaml:"format" toml:"format"` // log|table
	Color          bool   `yaml:"color" toml:"color"`
	MaxColumnWidth int    `yaml:"max_column_width" toml:"max_column_width"`
}

type runtimeSection struct {
	RetryBackoffMS int `yaml:"retry_backoff_ms" toml:"retry_backoff_ms"` // pause after a failed cycle
	HealthPort     int `yaml:"health_port" toml:"health_port"`
	MetricsPort    int `yaml:"metrics_port" toml:"metrics_port"`
}

// File is one task definition.
type File struct {
	SchemaVersion string `yaml:"schema_version" toml:"schema_version"`

	Task struct {
		ID   string `yaml:"id" toml:"id"`
		Name string `yaml:"name" toml:"name"`
	} `yaml:"task" toml:"task"`

	Reader struct {
		// reader parameter YAML, relative to this file
		Config string `yaml:"config" toml:"config"`
	} `yaml:"reader" toml:"reader"`

	Sinks   []SinkSpec     `yaml:"sinks" toml:"sinks"`
	Dump    dumpSection    `yaml:"dump" toml:"dump"`
	Runtime runtimeSection `yaml:"runtime" toml:"runtime"`
}
