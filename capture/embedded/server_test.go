package embedded

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"cdcreader/capture"
)

type memMeta struct {
	mu    sync.Mutex
	id    capture.Identity
	saved []capture.Position
	fail  error
}

func (m *memMeta) Subscriptions(dest string) ([]capture.Identity, error) {
	if dest != m.id.Destination {
		return nil, nil
	}
	return []capture.Identity{m.id}, nil
}

func (m *memMeta) Load(capture.Identity) (capture.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return capture.Position{}, nil
	}
	return m.saved[len(m.saved)-1].Clone(), nil
}

func (m *memMeta) Save(_ capture.Identity, pos capture.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.saved = append(m.saved, pos)
	return nil
}

func (m *memMeta) last() capture.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil
	}
	return m.saved[len(m.saved)-1]
}

// chanSource emits every batch received on feed.
type chanSource struct {
	name string
	feed chan []capture.Entry
	runs chan *capture.EntryPosition
	fail chan error
}

func newChanSource(name string) *chanSource {
	return &chanSource{
		name: name,
		feed: make(chan []capture.Entry),
		runs: make(chan *capture.EntryPosition, 4),
		fail: make(chan error, 1),
	}
}

func (s *chanSource) Name() string { return s.name }

func (s *chanSource) Run(ctx context.Context, from *capture.EntryPosition, emit EmitFunc) error {
	s.runs <- from
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-s.fail:
			return err
		case batch := <-s.feed:
			if err := emit(ctx, batch); err != nil {
				return err
			}
		}
	}
}

func (s *chanSource) Close() error { return nil }

type recordingAlarm struct {
	mu   sync.Mutex
	msgs []string
}

func (a *recordingAlarm) SendAlarm(_, msg string) {
	a.mu.Lock()
	a.msgs = append(a.msgs, msg)
	a.mu.Unlock()
}

func (a *recordingAlarm) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.msgs)
}

type ServerSuite struct {
	suite.Suite

	id     capture.Identity
	meta   *memMeta
	src    *chanSource
	alarm  *recordingAlarm
	server *Server
	ctx    context.Context
}

func TestServerSuite(t *testing.T) { suite.Run(t, new(ServerSuite)) }

func (s *ServerSuite) SetupTest() {
	s.id = capture.Identity{Destination: "7", ClientID: 7, Filter: `shop\..*`}
	s.meta = &memMeta{id: s.id}
	s.src = newChanSource("db1")
	s.alarm = &recordingAlarm{}
	s.ctx = context.Background()

	s.server = NewServer(func(dest string) (*Instance, error) {
		return NewBuilder(dest).
			WithStoreCapacity(64).
			WithPositionStrategy(s.meta).
			WithAlarmHandler(s.alarm).
			WithSources(s.src).
			WithRestartDelay(10 * time.Millisecond).
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
			Build()
	})
	s.Require().NoError(s.server.Start())
	s.Require().NoError(s.server.StartInstance(s.ctx, "7"))
	s.Require().NoError(s.server.Subscribe(s.ctx, s.id))
	<-s.src.runs
}

func (s *ServerSuite) TearDownTest() {
	s.NoError(s.server.Stop())
}

func (s *ServerSuite) emit(n int, offset int64) {
	s.src.feed <- entries(n, offset)
}

func (s *ServerSuite) fetch(n int) *capture.Message {
	msg, err := s.server.FetchWithoutAckTimeout(s.ctx, s.id, n, 0)
	s.Require().NoError(err)
	return msg
}

func (s *ServerSuite) TestFetchEmptyWithoutWaiting() {
	msg, err := s.server.FetchWithoutAck(s.ctx, s.id, 10)
	s.Require().NoError(err)
	s.True(msg.Empty())
	s.Equal(capture.EmptyBatchID, msg.ID)
}

func (s *ServerSuite) TestAckInOrderAndSavesPosition() {
	s.emit(4, 1)
	b1 := s.fetch(2)
	b2 := s.fetch(2)
	s.Len(b1.Entries, 2)
	s.Len(b2.Entries, 2)
	s.Less(b1.ID, b2.ID)

	s.ErrorIs(s.server.Ack(s.ctx, s.id, b2.ID), ErrBatchOrder)
	s.Require().NoError(s.server.Ack(s.ctx, s.id, b1.ID))
	s.Equal(int64(2), s.meta.last()["db1"].Offset)
	s.Require().NoError(s.server.Ack(s.ctx, s.id, b2.ID))
	s.Equal(int64(4), s.meta.last()["db1"].Offset)
}

func (s *ServerSuite) TestFailedSaveKeepsBatch() {
	s.emit(1, 1)
	b := s.fetch(5)
	s.meta.fail = errors.New("disk full")
	s.Error(s.server.Ack(s.ctx, s.id, b.ID))
	s.meta.fail = nil
	s.NoError(s.server.Ack(s.ctx, s.id, b.ID))
}

func (s *ServerSuite) TestRollbackRedelivers() {
	s.emit(3, 1)
	b := s.fetch(10)
	s.Require().Len(b.Entries, 3)

	s.ErrorIs(s.server.Rollback(s.ctx, s.id, b.ID+10), ErrUnknownBatch)
	s.Require().NoError(s.server.Rollback(s.ctx, s.id, b.ID))

	again := s.fetch(10)
	s.Greater(again.ID, b.ID)
	s.Equal(b.Entries, again.Entries)
	s.ErrorIs(s.server.Ack(s.ctx, s.id, b.ID), ErrBatchOrder)
}

func (s *ServerSuite) TestFilterAppliesToSources() {
	s.src.feed <- []capture.Entry{
		{Kind: capture.KindRowData, Header: capture.Header{Schema: "crm", Table: "leads", Offset: 1}},
		{Kind: capture.KindRowData, Header: capture.Header{Schema: "shop", Table: "orders", Offset: 2}},
	}
	b := s.fetch(10)
	s.Require().Len(b.Entries, 1)
	s.Equal("db1", b.Entries[0].Header.Source)
}

func (s *ServerSuite) TestUnsubscribedClientRejected() {
	other := capture.Identity{Destination: "7", ClientID: 8}
	_, err := s.server.FetchWithoutAck(s.ctx, other, 1)
	s.ErrorIs(err, ErrNotSubscribed)

	_, err = s.server.FetchWithoutAck(s.ctx, capture.Identity{Destination: "9"}, 1)
	s.ErrorIs(err, ErrUnknownInstance)
}

func (s *ServerSuite) TestSourceRestartsAfterFailure() {
	s.emit(2, 1)
	s.src.fail <- errors.New("connection reset")

	select {
	case from := <-s.src.runs:
		s.Require().NotNil(from)
		s.Equal(int64(2), from.Offset)
	case <-time.After(time.Second):
		s.Fail("source not restarted")
	}
	s.Equal(1, s.alarm.count())
}

func (s *ServerSuite) TestStopInterruptsFetch() {
	done := make(chan error, 1)
	go func() {
		_, err := s.server.FetchWithoutAckTimeout(s.ctx, s.id, 10, 0)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	s.Require().NoError(s.server.StopInstance("7"))

	select {
	case err := <-done:
		s.ErrorIs(err, capture.ErrInterrupted)
	case <-time.After(time.Second):
		s.Fail("fetch not interrupted")
	}
}

func TestServer_FailedStartRegistersNothing(t *testing.T) {
	srv := NewServer(func(string) (*Instance, error) { return nil, errors.New("bad config") })
	require.ErrorIs(t, srv.StartInstance(context.Background(), "1"), ErrServerStopped)
	require.NoError(t, srv.Start())
	require.Error(t, srv.StartInstance(context.Background(), "1"))
	_, ok := srv.Instance("1")
	assert.False(t, ok)
}

func TestBuilder_RequiresStrategy(t *testing.T) {
	_, err := NewBuilder("1").Build()
	assert.Error(t, err)
	_, err = NewBuilder("").WithPositionStrategy(&memMeta{}).Build()
	assert.Error(t, err)

	inst, err := NewBuilder("1").WithPositionStrategy(&memMeta{}).Build()
	require.NoError(t, err)
	_, ok := inst.Sink().(*EntrySink)
	assert.True(t, ok)
	assert.Equal(t, "1", inst.Destination())
}
