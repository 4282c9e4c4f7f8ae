package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-viper/mapstructure/v2"
)

type ThrottleCfg struct {
	MaxRate int64         `koanf:"max_rate"` // entries per tick, 0 = unlimited
	Tick    time.Duration `koanf:"tick"`
}

// Config is the per data-source block of the reader parameters, e.g.
//
//	driver: kafka
//	options:
//	  brokers: [localhost:9092]
//	  topic: binlog.shop
//	  partition: 0
type Config struct {
	Brokers   []string `koanf:"brokers"`
	Topic     string   `koanf:"topic"`
	Partition int32    `koanf:"partition"`
	StartFrom string   `koanf:"start_from"` // oldest|newest (default newest)
	Version   string   `koanf:"version"`
	TLSEn     bool     `koanf:"tls_enabled"`
	SASLUser  string   `koanf:"sasl_user"`
	SASLPass  string   `koanf:"sasl_pass"`

	MaxBatch     int           `koanf:"max_batch"`
	HeartbeatInt time.Duration `koanf:"heartbeat_interval"`
	Throttle     ThrottleCfg   `koanf:"throttle"`
}

// DecodeConfig turns the raw option map of a data source into a Config.
func DecodeConfig(raw map[string]any) (Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "koanf",
		WeaklyTypedInput: true,
		Result:           &cfg,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(raw); err != nil {
		return cfg, fmt.Errorf("kafka-source: options: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, cfg.validate()
}

func applyDefaults(c *Config) {
	if c.StartFrom == "" {
		c.StartFrom = "newest"
	}
	if c.Version == "" {
		c.Version = "2.8.0"
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 512
	}
	if c.HeartbeatInt == 0 {
		c.HeartbeatInt = time.Second
	}
	if c.Throttle.Tick == 0 {
		c.Throttle.Tick = 100 * time.Millisecond
	}
}

func (c Config) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka-source: brokers required")
	}
	if c.Topic == "" {
		return errors.New("kafka-source: topic required")
	}
	if c.StartFrom != "oldest" && c.StartFrom != "newest" {
		return fmt.Errorf("kafka-source: start_from %q (want oldest|newest)", c.StartFrom)
	}
	return nil
}

// journal names the topic partition in resume positions.
func (c Config) journal() string {
	return fmt.Sprintf("%s-%d", c.Topic, c.Partition)
}
