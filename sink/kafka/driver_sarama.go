package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/IBM/sarama"

	"cdcreader/record"
	"cdcreader/sink"
)

type Config struct {
	Brokers     []string
	Topic       string
	TopicPrefix string
	Version     string
	Acks        int16 // 0,1,-1
}

// topic picks the destination of r.
func (c Config) topic(r *record.Record) string {
	if c.Topic != "" {
		return c.Topic
	}
	return c.TopicPrefix + r.TableName()
}

type driver struct {
	cfg Config
	p   sarama.SyncProducer
}

func (d *driver) Configure(c any) error {
	cfg, ok := c.(Config)
	if !ok {
		return fmt.Errorf("kafka-sink: want Config, got %T", c)
	}
	if len(cfg.Brokers) == 0 {
		return errors.New("kafka-sink: brokers required")
	}
	if cfg.Topic == "" && cfg.TopicPrefix == "" {
		return errors.New("kafka-sink: topic or topic_prefix required")
	}
	d.cfg = cfg

	sc := sarama.NewConfig()
	if cfg.Version != "" {
		ver, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return fmt.Errorf("kafka-sink: %w", err)
		}
		sc.Version = ver
	}
	sc.Producer.RequiredAcks = sarama.RequiredAcks(cfg.Acks)
	sc.Producer.Return.Successes = true // required by SyncProducer
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	var err error
	d.p, err = sarama.NewSyncProducer(cfg.Brokers, sc)
	return err
}

// Push sends every record of c and returns once the broker acknowledged
// all of them. Records of one row share a key so they stay ordered.
func (d *driver) Push(ctx context.Context, c *record.Chunk) error {
	if len(c.Records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msgs := make([]*sarama.ProducerMessage, 0, len(c.Records))
	for _, r := range c.Records {
		val, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("kafka-sink: encode %s: %w", r.Position, err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: d.cfg.topic(r),
			Key:   sarama.StringEncoder(Key(r)),
			Value: sarama.ByteEncoder(val),
			Headers: []sarama.RecordHeader{
				{Key: []byte("cdc.type"), Value: []byte(r.Type)},
				{Key: []byte("cdc.position"), Value: []byte(r.Position)},
			},
		})
	}
	if err := d.p.SendMessages(msgs); err != nil {
		return fmt.Errorf("kafka-sink: %w", err)
	}
	return nil
}

// Key is "schema.table" followed by the primary key values of the row;
// DDL records are keyed by table only.
func Key(r *record.Record) string {
	var b strings.Builder
	b.WriteString(r.TableName())
	for _, k := range r.Keys() {
		b.WriteByte('/')
		b.WriteString(k.Value)
	}
	return b.String()
}

func (d *driver) Close() error {
	if d.p == nil {
		return nil
	}
	p := d.p
	d.p = nil
	return p.Close()
}

func init() { sink.Register("kafka", func() sink.Adapter { return &driver{} }) }
