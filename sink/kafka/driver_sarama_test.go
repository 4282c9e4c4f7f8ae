package kafka

import (
	"context"
	"fmt"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"cdcreader/record"
)

func producer(t *testing.T) *mocks.SyncProducer {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	return mocks.NewSyncProducer(t, sc)
}

func rows() *record.Chunk {
	return record.NewChunk([]*record.Record{
		{Schema: "shop", Table: "orders", Type: record.Insert, Position: "db1:bin.3:10",
			Columns: []record.Column{{Name: "id", Value: "7", IsKey: true}, {Name: "note", Value: "x"}}},
		{Schema: "shop", Table: "items", Type: record.Delete, Position: "db1:bin.3:11",
			Columns: []record.Column{{Name: "sku", Value: "A-1", IsKey: true}}},
	}, 0, 0)
}

func expectMessage(topic, key string) mocks.MessageChecker {
	return func(m *sarama.ProducerMessage) error {
		if m.Topic != topic {
			return fmt.Errorf("topic %q, want %q", m.Topic, topic)
		}
		k, _ := m.Key.Encode()
		if string(k) != key {
			return fmt.Errorf("key %q, want %q", k, key)
		}
		return nil
	}
}

func TestDriver_PushSendsEveryRecord(t *testing.T) {
	p := producer(t)
	p.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(expectMessage("cdc.shop.orders", "shop.orders/7"))
	p.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(expectMessage("cdc.shop.items", "shop.items/A-1"))

	d := &driver{cfg: Config{TopicPrefix: "cdc."}, p: p}
	if err := d.Push(context.Background(), rows()); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestDriver_PushReportsBrokerFailure(t *testing.T) {
	p := producer(t)
	p.ExpectSendMessageAndSucceed()
	p.ExpectSendMessageAndFail(sarama.ErrNotLeaderForPartition)

	d := &driver{cfg: Config{Topic: "cdc"}, p: p}
	if err := d.Push(context.Background(), rows()); err == nil {
		t.Fatal("expected push to fail when the broker rejects a record")
	}
	_ = d.Close()
}

func TestDriver_EmptyChunkSendsNothing(t *testing.T) {
	d := &driver{cfg: Config{Topic: "cdc"}, p: producer(t)}
	if err := d.Push(context.Background(), record.NewChunk(nil, 0, 0)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	_ = d.Close()
}

func TestKey(t *testing.T) {
	r := &record.Record{Schema: "shop", Table: "orders", Type: record.DDL}
	if got := Key(r); got != "shop.orders" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestDriver_ConfigureValidates(t *testing.T) {
	for _, c := range []any{struct{}{}, Config{Topic: "t"}, Config{Brokers: []string{"k:9092"}}} {
		if err := (&driver{}).Configure(c); err == nil {
			t.Fatalf("expected error for %+v", c)
		}
	}
}
