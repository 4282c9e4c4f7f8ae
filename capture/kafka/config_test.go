package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdcreader/capture"
)

func TestDecodeConfig_Defaults(t *testing.T) {
	cfg, err := DecodeConfig(map[string]any{
		"brokers": []any{"k1:9092", "k2:9092"},
		"topic":   "binlog.shop",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Brokers)
	assert.Equal(t, "newest", cfg.StartFrom)
	assert.Equal(t, "2.8.0", cfg.Version)
	assert.Equal(t, 512, cfg.MaxBatch)
	assert.Equal(t, time.Second, cfg.HeartbeatInt)
	assert.Equal(t, "binlog.shop-0", cfg.journal())
}

func TestDecodeConfig_WeakTypes(t *testing.T) {
	cfg, err := DecodeConfig(map[string]any{
		"brokers":   "k1:9092,k2:9092",
		"topic":     "binlog.shop",
		"partition": "3",
		"max_batch": 64,
		"throttle":  map[string]any{"max_rate": "1000", "tick": "250ms"},
	})
	require.NoError(t, err)
	assert.Len(t, cfg.Brokers, 2)
	assert.Equal(t, int32(3), cfg.Partition)
	assert.Equal(t, int64(1000), cfg.Throttle.MaxRate)
	assert.Equal(t, 250*time.Millisecond, cfg.Throttle.Tick)
}

func TestDecodeConfig_Rejects(t *testing.T) {
	for _, raw := range []map[string]any{
		{"topic": "t"},
		{"brokers": "k:9092"},
		{"brokers": "k:9092", "topic": "t", "start_from": "latest"},
	} {
		_, err := DecodeConfig(raw)
		assert.Error(t, err, "%v", raw)
	}
}

func TestSaramaConfig(t *testing.T) {
	cfg, err := DecodeConfig(map[string]any{"brokers": "k:9092", "topic": "t", "sasl_user": "u", "sasl_pass": "p"})
	require.NoError(t, err)
	sc, err := saramaConfig(cfg, 10007)
	require.NoError(t, err)
	assert.Equal(t, "cdcreader-10007", sc.ClientID)
	assert.True(t, sc.Net.SASL.Enable)
	assert.True(t, sc.Version.IsAtLeast(sarama.V2_8_0_0))

	cfg.Version = "not-a-version"
	_, err = saramaConfig(cfg, 1)
	assert.Error(t, err)
}

func TestDecodeEntry(t *testing.T) {
	ts := time.UnixMilli(1_700_000_123_000)
	e, err := decodeEntry("t-0", &sarama.ConsumerMessage{
		Offset:    7,
		Timestamp: ts,
		Value:     []byte(`{"schema":"shop","table":"orders","type":"alter","sql":"ALTER TABLE orders ADD note TEXT"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, capture.KindRowData, e.Kind)
	assert.True(t, e.Header.EventType.IsDDL())
	assert.Equal(t, ts.UnixMilli(), e.Header.ExecuteTime)
	assert.Equal(t, int64(7), e.Header.Offset)
	assert.Nil(t, e.Header.Props)

	e, err = decodeEntry("t-0", &sarama.ConsumerMessage{Value: []byte(`{"kind":"transactionend"}`)})
	require.NoError(t, err)
	assert.Equal(t, capture.KindTransactionEnd, e.Kind)

	_, err = decodeEntry("t-0", &sarama.ConsumerMessage{Value: []byte(`{`)})
	assert.Error(t, err)
}

func TestThrottle(t *testing.T) {
	th := NewThrottle(5, 5, time.Hour)
	defer th.Close()

	assert.True(t, th.TryAcquire(3))
	assert.False(t, th.TryAcquire(3))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, th.Acquire(ctx, 4), context.DeadlineExceeded)

	// oversized requests are clamped to the capacity
	refilled := NewThrottle(5, 5, 5*time.Millisecond)
	defer refilled.Close()
	assert.NoError(t, refilled.Acquire(context.Background(), 50))
}
