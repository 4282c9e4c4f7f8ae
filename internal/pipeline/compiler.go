package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"cdcreader/internal/config"
	"cdcreader/internal/dump"
	"cdcreader/internal/logging"
	"cdcreader/internal/spec"
	"cdcreader/sink"
	"cdcreader/sink/kafka"
	"cdcreader/sink/stdout"
	"cdcreader/source/binlog"
)

func Compile(path string, opts ...binlog.Option) (*Runner, error) {
	r, _, err := CompileFile(path, opts...)
	return r, err
}

// CompileFile builds a Runner from the task file at path and also returns
// the parsed file so callers can read its runtime section. Options are
// applied after the ones derived from the file.
func CompileFile(path string, opts ...binlog.Option) (*Runner, spec.File, error) {
	cfg, confPath, err := config.LoadTaskSpec(path)
	if err != nil {
		return nil, cfg, err
	}
	param, err := config.LoadReaderParameter(confPath)
	if err != nil {
		return nil, cfg, err
	}

	log := logging.ForTask("binlog-reader", cfg.Task.ID)
	readerOpts := []binlog.Option{
		binlog.WithLogger(log),
		binlog.WithDumpWriter(dumpWriter(cfg, log)),
	}
	reader, err := binlog.NewTaskReader(cfg.Task.ID, param, append(readerOpts, opts...)...)
	if err != nil {
		return nil, cfg, err
	}

	r := NewRunner(cfg.Task.ID, reader)
	if ms := cfg.Runtime.RetryBackoffMS; ms > 0 {
		r.SetRetryBackoff(time.Duration(ms) * time.Millisecond)
	}

	for _, s := range cfg.Sinks {
		drv, err := newSink(s)
		if err != nil {
			_ = r.Close()
			return nil, cfg, fmt.Errorf("sink %s: %w", s.Name, err)
		}
		r.AddSink(drv)
	}
	return r, cfg, nil
}

func dumpWriter(cfg spec.File, log *slog.Logger) dump.Writer {
	if cfg.Dump.Format == "table" {
		opts := []dump.TableOption{dump.WithColor(cfg.Dump.Color)}
		if cfg.Dump.MaxColumnWidth > 0 {
			opts = append(opts, dump.WithMaxColumnWidth(cfg.Dump.MaxColumnWidth))
		}
		return dump.NewTableWriter(os.Stderr, opts...)
	}
	return dump.NewLogWriter(log)
}

func newSink(s spec.SinkSpec) (sink.Adapter, error) {
	drv, err := sink.NewAdapter(s.Driver)
	if err != nil {
		return nil, err
	}
	switch s.Driver {
	case "stdout":
		c := stdout.Config{}
		if s.Stdout != nil {
			c.DelayMS = s.Stdout.DelayMS
			c.PrintCounter = s.Stdout.PrintCounter
			c.Pretty = s.Stdout.Pretty
			c.SkipDDL = s.Stdout.SkipDDL
		}
		err = drv.Configure(c)
	case "kafka":
		if s.Kafka == nil {
			return nil, fmt.Errorf("no kafka block for driver %q", s.Driver)
		}
		err = drv.Configure(kafka.Config{
			Brokers:     s.Kafka.Brokers,
			Topic:       s.Kafka.Topic,
			TopicPrefix: s.Kafka.TopicPrefix,
			Version:     s.Kafka.Version,
			Acks:        s.Kafka.Acks,
		})
	default:
		err = fmt.Errorf("no config block for sink %q", s.Driver)
	}
	if err != nil {
		return nil, err
	}
	return drv, nil
}
