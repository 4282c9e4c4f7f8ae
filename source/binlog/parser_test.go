package binlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdcreader/capture"
	"cdcreader/record"
)

func TestEntryParser_RowImages(t *testing.T) {
	update := rowEntry(capture.EventUpdate, 10)
	update.Rows[0].After = []capture.Column{{Name: "id", Value: "1", IsKey: true}, {Name: "qty", Value: "4", Updated: true}}
	del := rowEntry(capture.EventDelete, 11)
	del.Rows[0].After = nil

	out, err := EntryParser{}.Parse([]capture.Entry{
		{Kind: capture.KindTransactionBegin},
		update,
		del,
		{Kind: capture.KindTransactionEnd},
	}, TaskContext{TaskID: "1"})
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, record.Update, out[0].Type)
	assert.Len(t, out[0].Columns, 2)
	assert.True(t, out[0].Columns[1].Updated)
	assert.Len(t, out[0].OldColumns, 1)
	assert.Equal(t, "db1:mysql-bin.000003:10", out[0].Position)

	assert.Equal(t, record.Delete, out[1].Type)
	assert.Equal(t, "1", out[1].Columns[0].Value, "delete carries the before image")
	assert.Nil(t, out[1].OldColumns)
}

func TestEntryParser_DDLAndMultiRow(t *testing.T) {
	ins := rowEntry(capture.EventInsert, 20)
	ins.Rows = append(ins.Rows, capture.RowChange{After: []capture.Column{{Name: "id", Value: "2", IsKey: true}}})
	ddl := rowEntry(capture.EventAlter, 21)
	ddl.SQL = "ALTER TABLE orders ADD note TEXT"

	out, err := EntryParser{}.Parse([]capture.Entry{ins, ddl}, TaskContext{})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "2", out[1].Columns[0].Value)
	assert.Equal(t, record.DDL, out[2].Type)
	assert.Equal(t, ddl.SQL, out[2].SQL)
	assert.Empty(t, out[2].Columns)
}

func TestEntryParser_UnknownEventType(t *testing.T) {
	bad := rowEntry(capture.EventType("MERGE"), 30)
	_, err := EntryParser{}.Parse([]capture.Entry{bad}, TaskContext{})
	assert.Error(t, err)
}
