package binlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdcreader/record"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadParameter_Defaults(t *testing.T) {
	p, err := LoadParameter(filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, 10000, p.MessageBatchSize)
	assert.Equal(t, int64(-1), p.BatchTimeoutMS)
	assert.Equal(t, GroupSinkDefault, p.GroupSinkMode)
	assert.Equal(t, 1, p.GroupSize())
}

func TestLoadParameter_FileAndEnv(t *testing.T) {
	path := writeFile(t, "reader.yml", `schema_version: v1
message_batch_size: 500
batch_timeout_ms: 250
group_sink_mode: Coordinate
dump: true
filtered_event_types: [delete, ddl]
tables: [shop.orders, shop.items]
store:
  capacity: 2048
groups:
  - - name: db1
      driver: kafka
      options:
        brokers: [localhost:9092]
        topic: db1.binlog
    - name: db2
      driver: kafka
      options:
        brokers: [localhost:9092]
        topic: db2.binlog
`)
	t.Setenv("CDCREADER_READER__MESSAGE_BATCH_SIZE", "64")
	t.Setenv("CDCREADER_READER__SOURCE_RESTART_DELAY", "2s")

	p, err := LoadParameter(path)
	require.NoError(t, err)
	assert.Equal(t, 64, p.MessageBatchSize)
	assert.Equal(t, 250*time.Millisecond, p.BatchTimeout())
	assert.Equal(t, GroupSinkCoordinate, p.GroupSinkMode)
	assert.True(t, p.Dump)
	assert.Equal(t, int64(2048), p.Store.Capacity)
	assert.Equal(t, 2*time.Second, p.SourceRestartDelay)
	assert.Equal(t, 2, p.GroupSize())
	assert.Equal(t, "db2.binlog", p.Groups[0][1].Options["topic"])

	ex, err := p.ExcludedEventTypes()
	require.NoError(t, err)
	assert.Equal(t, []record.EventType{record.Delete, record.DDL}, ex)
}

func TestLoadParameter_Rejects(t *testing.T) {
	for name, body := range map[string]string{
		"schema":     "schema_version: v2\n",
		"mode":       "group_sink_mode: round-robin\n",
		"event type": "filtered_event_types: [merge]\n",
		"no driver":  "groups:\n  - - name: db1\n",
		"negative":   "message_batch_size: -5\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadParameter(writeFile(t, "reader.yml", body))
			assert.Error(t, err)
		})
	}
}

func TestDeriveSlaveID(t *testing.T) {
	id, err := DeriveSlaveID(0, "7")
	require.NoError(t, err)
	assert.Equal(t, int64(10007), id)

	id, err = DeriveSlaveID(DefaultBaseSlaveID, "7")
	require.NoError(t, err)
	assert.Equal(t, int64(10007), id)

	id, err = DeriveSlaveID(20000, "31")
	require.NoError(t, err)
	assert.Equal(t, int64(20031), id)

	_, err = DeriveSlaveID(0, "orders")
	assert.Error(t, err)
}

func TestNewIdentity(t *testing.T) {
	id, err := NewIdentity("12", `shop\.orders`)
	require.NoError(t, err)
	assert.Equal(t, "12", id.Destination)
	assert.Equal(t, int16(12), id.ClientID)
	assert.Equal(t, `shop\.orders`, id.Filter)

	_, err = NewIdentity("70000", "")
	assert.Error(t, err)
}

func TestBuildFilterExpression(t *testing.T) {
	assert.Equal(t, "", BuildFilterExpression(nil))
	assert.Equal(t, `shop\.orders,shop\..*`, BuildFilterExpression([]string{"shop.orders", " shop.* ", ""}))
}

func TestAssembleSink(t *testing.T) {
	cases := []struct {
		size int
		mode GroupSinkMode
		want SinkTopology
	}{
		{0, GroupSinkDefault, SinkTopology{SingleStream, 1}},
		{1, GroupSinkDefault, SinkTopology{SingleStream, 1}},
		{1, GroupSinkCoordinate, SinkTopology{SingleStream, 1}},
		{3, GroupSinkDefault, SinkTopology{SingleStream, 3}},
		{3, GroupSinkCoordinate, SinkTopology{CoordinatedGroup, 3}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, AssembleSink(c.size, c.mode), "size=%d mode=%s", c.size, c.mode)
	}
}

func TestParameter_ValidateBatchSize(t *testing.T) {
	p := DefaultParameter()
	p.MessageBatchSize = -1
	assert.ErrorContains(t, p.Validate(), "must not be negative")

	// zero falls back to the default before validation
	loaded, err := LoadParameter(writeFile(t, "reader.yml", "message_batch_size: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 10000, loaded.MessageBatchSize)
}
