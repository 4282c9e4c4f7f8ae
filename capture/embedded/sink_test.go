package embedded

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdcreader/capture"
)

func bound(t *testing.T, s EventSink, expr string, hs ...Handler) *Store {
	t.Helper()
	store := NewStore(64)
	f, err := CompileFilter(expr)
	require.NoError(t, err)
	var p atomic.Pointer[Filter]
	p.Store(f)
	s.bind(store, &p, hs)
	return store
}

func drain(t *testing.T, s *Store) []capture.Entry {
	t.Helper()
	got, _, _, err := s.Get(context.Background(), 100, -1)
	require.NoError(t, err)
	return got
}

type tagHandler struct{ closed bool }

func (h *tagHandler) Before(_ context.Context, in []capture.Entry) ([]capture.Entry, error) {
	for i := range in {
		if in[i].Header.Props == nil {
			in[i].Header.Props = map[string]string{}
		}
		in[i].Header.Props["seen"] = "yes"
	}
	return in, nil
}

func (h *tagHandler) Close() error { h.closed = true; return nil }

func TestEntrySink_FiltersAndRunsHandlers(t *testing.T) {
	s := NewEntrySink()
	h := &tagHandler{}
	store := bound(t, s, `shop\.orders`, h)

	in := []capture.Entry{
		{Kind: capture.KindTransactionBegin},
		{Kind: capture.KindRowData, Header: capture.Header{Schema: "shop", Table: "orders"}},
		{Kind: capture.KindRowData, Header: capture.Header{Schema: "shop", Table: "audit"}},
		{Kind: capture.KindHeartbeat},
		{Kind: capture.KindTransactionEnd},
	}
	require.NoError(t, s.Sink(context.Background(), "db1", in))

	got := drain(t, store)
	require.Len(t, got, 3)
	assert.Equal(t, capture.KindTransactionBegin, got[0].Kind)
	assert.Equal(t, "orders", got[1].Header.Table)
	assert.Equal(t, "yes", got[1].Header.Props["seen"])
	assert.Equal(t, capture.KindTransactionEnd, got[2].Kind)
}

func TestEntrySink_TransactionFilter(t *testing.T) {
	s := NewEntrySink(WithTransactionFilter(true))
	store := bound(t, s, "")
	require.NoError(t, s.Sink(context.Background(), "db1", []capture.Entry{
		{Kind: capture.KindTransactionBegin},
		{Kind: capture.KindRowData, Header: capture.Header{Schema: "a", Table: "b"}},
		{Kind: capture.KindTransactionEnd},
	}))
	assert.Len(t, drain(t, store), 1)

	s.Stop()
	assert.ErrorIs(t, s.Sink(context.Background(), "db1", nil), ErrSinkStopped)
}

func at(source string, ts int64, kind capture.EntryKind) capture.Entry {
	return capture.Entry{Kind: kind, Header: capture.Header{Source: source, Schema: "s", Table: "t", ExecuteTime: ts}}
}

func TestGroupSink_WaitsForSlowestMember(t *testing.T) {
	g := NewGroupSink(2)
	store := bound(t, g, "")
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- g.Sink(ctx, "a", []capture.Entry{at("a", 100, capture.KindRowData)}) }()

	select {
	case <-done:
		t.Fatal("member a must wait until b reports")
	case <-time.After(30 * time.Millisecond):
	}

	// b reports an earlier time; a stays blocked
	require.NoError(t, g.Sink(ctx, "b", []capture.Entry{at("b", 50, capture.KindHeartbeat)}))
	select {
	case <-done:
		t.Fatal("member a must wait until b passes its time")
	case <-time.After(30 * time.Millisecond):
	}
	assert.Empty(t, drain(t, store))

	require.NoError(t, g.Sink(ctx, "b", []capture.Entry{at("b", 150, capture.KindHeartbeat)}))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("member a not admitted")
	}
	got := drain(t, store)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].Header.Source)
}

func TestGroupSink_StopReleasesWaiters(t *testing.T) {
	g := NewGroupSink(3)
	_ = bound(t, g, "")

	done := make(chan error, 1)
	go func() { done <- g.Sink(context.Background(), "a", []capture.Entry{at("a", 1, capture.KindRowData)}) }()
	time.Sleep(10 * time.Millisecond)
	g.Stop()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrSinkStopped))
	case <-time.After(time.Second):
		t.Fatal("stop did not release the waiting member")
	}
	assert.Equal(t, 3, g.Size())
}

func TestGroupSink_HonoursContext(t *testing.T) {
	g := NewGroupSink(2)
	_ = bound(t, g, "")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Sink(ctx, "a", []capture.Entry{at("a", 1, capture.KindRowData)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
