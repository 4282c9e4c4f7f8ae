// Package kafka is an embedded-engine source that tails one topic
// partition carrying JSON encoded change entries.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"cdcreader/capture"
	"cdcreader/capture/embedded"
	"cdcreader/internal/logging"
)

type Source struct {
	name             string
	cfg              Config
	filterTableError bool

	cl       sarama.Client // nil when the consumer was injected
	consumer sarama.Consumer
	throttle *Throttle
	log      *slog.Logger
}

// New is the embedded.SourceFactory for the "kafka" driver.
func New(opts embedded.SourceOptions) (embedded.Source, error) {
	cfg, err := DecodeConfig(opts.Options)
	if err != nil {
		return nil, err
	}
	sc, err := saramaConfig(cfg, opts.SlaveID)
	if err != nil {
		return nil, err
	}
	cl, err := sarama.NewClient(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("kafka-source: %s: client: %w", opts.Name, err)
	}
	consumer, err := sarama.NewConsumerFromClient(cl)
	if err != nil {
		_ = cl.Close()
		return nil, fmt.Errorf("kafka-source: %s: consumer: %w", opts.Name, err)
	}
	s := newSource(opts.Name, cfg, consumer, opts.FilterTableError)
	s.cl = cl
	return s, nil
}

func newSource(name string, cfg Config, consumer sarama.Consumer, filterTableError bool) *Source {
	s := &Source{
		name:             name,
		cfg:              cfg,
		filterTableError: filterTableError,
		consumer:         consumer,
		log:              logging.L().With("component", "kafka-source", "source", name),
	}
	if cfg.Throttle.MaxRate > 0 {
		s.throttle = NewThrottle(cfg.Throttle.MaxRate, cfg.Throttle.MaxRate, cfg.Throttle.Tick)
	}
	return s
}

func saramaConfig(cfg Config, slaveID int64) (*sarama.Config, error) {
	ver, err := sarama.ParseKafkaVersion(cfg.Version)
	if err != nil {
		return nil, err
	}
	sc := sarama.NewConfig()
	sc.Version = ver
	sc.ClientID = fmt.Sprintf("cdcreader-%d", slaveID)
	sc.Consumer.Return.Errors = true
	if cfg.TLSEn {
		sc.Net.TLS.Enable = true
	}
	if cfg.SASLUser != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User, sc.Net.SASL.Password = cfg.SASLUser, cfg.SASLPass
	}
	return sc, nil
}

func (s *Source) Name() string { return s.name }

func (s *Source) startOffset(from *capture.EntryPosition) int64 {
	if from != nil {
		if from.Journal == s.cfg.journal() {
			return from.Offset + 1
		}
		s.log.Warn("resume position belongs to another partition; using start_from",
			"journal", from.Journal, "want", s.cfg.journal(), "start_from", s.cfg.StartFrom)
	}
	if s.cfg.StartFrom == "oldest" {
		return sarama.OffsetOldest
	}
	return sarama.OffsetNewest
}

func (s *Source) Run(ctx context.Context, from *capture.EntryPosition, emit embedded.EmitFunc) error {
	offset := s.startOffset(from)
	pc, err := s.consumer.ConsumePartition(s.cfg.Topic, s.cfg.Partition, offset)
	if err != nil {
		return fmt.Errorf("kafka-source: consume %s: %w", s.cfg.journal(), err)
	}
	defer pc.AsyncClose()
	s.log.Info("tailing partition", "topic", s.cfg.Topic, "partition", s.cfg.Partition, "offset", offset)

	hb := time.NewTicker(s.cfg.HeartbeatInt)
	defer hb.Stop()

	next := int64(-1)
	if offset >= 0 {
		next = offset
	}
	lastActivity := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case cerr, ok := <-pc.Errors():
			if !ok {
				return errors.New("kafka-source: partition consumer closed")
			}
			return fmt.Errorf("kafka-source: %s: %w", s.cfg.journal(), cerr.Err)

		case msg, ok := <-pc.Messages():
			if !ok {
				return errors.New("kafka-source: partition consumer closed")
			}
			msgs := s.drain(pc, msg)
			entries, err := s.decode(msgs)
			if err != nil {
				return err
			}
			if s.throttle != nil {
				if err := s.throttle.Acquire(ctx, int64(len(msgs))); err != nil {
					return err
				}
			}
			if len(entries) > 0 {
				if err := emit(ctx, entries); err != nil {
					return err
				}
			}
			next = msgs[len(msgs)-1].Offset + 1
			lastActivity = time.Now()

		case now := <-hb.C:
			if now.Sub(lastActivity) < s.cfg.HeartbeatInt || !caughtUp(pc.HighWaterMarkOffset(), next) {
				continue
			}
			beat := capture.Entry{
				Kind:   capture.KindHeartbeat,
				Header: capture.Header{Source: s.name, ExecuteTime: now.UnixMilli()},
			}
			if err := emit(ctx, []capture.Entry{beat}); err != nil {
				return err
			}
		}
	}
}

// caughtUp: nothing has been read yet, or the next offset reached the
// high water mark.
func caughtUp(hwm, next int64) bool {
	return next < 0 || next >= hwm
}

// drain collects whatever else is already buffered, up to MaxBatch.
func (s *Source) drain(pc sarama.PartitionConsumer, first *sarama.ConsumerMessage) []*sarama.ConsumerMessage {
	msgs := []*sarama.ConsumerMessage{first}
	for len(msgs) < s.cfg.MaxBatch {
		select {
		case m, ok := <-pc.Messages():
			if !ok {
				return msgs
			}
			msgs = append(msgs, m)
		default:
			return msgs
		}
	}
	return msgs
}

func (s *Source) decode(msgs []*sarama.ConsumerMessage) ([]capture.Entry, error) {
	entries := make([]capture.Entry, 0, len(msgs))
	for _, m := range msgs {
		e, err := decodeEntry(s.cfg.journal(), m)
		if err != nil {
			if s.filterTableError {
				s.log.Warn("skipping undecodable entry", "offset", m.Offset, "err", err)
				continue
			}
			return nil, fmt.Errorf("kafka-source: %w", err)
		}
		e.Header.Source = s.name
		entries = append(entries, e)
	}
	return entries, nil
}

func (s *Source) Close() error {
	if s.throttle != nil {
		s.throttle.Close()
	}
	err := s.consumer.Close()
	if s.cl != nil {
		if cerr := s.cl.Close(); cerr != nil && !errors.Is(cerr, sarama.ErrClosedClient) {
			err = errors.Join(err, cerr)
		}
	}
	return err
}
