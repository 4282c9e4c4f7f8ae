// Package binlog is the task-level reader of a change capture engine. A
// TaskReader assembles one engine instance per task, polls it for batches,
// converts them into record chunks and forwards downstream acknowledgments
// back to the engine.
package binlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"cdcreader/capture"
	"cdcreader/capture/embedded"
	"cdcreader/internal/dump"
	"cdcreader/internal/logging"
	"cdcreader/internal/telemetry"
	"cdcreader/record"
)

var (
	ErrFetchCancelled = errors.New("binlog: fetch cancelled")
	ErrBatchInFlight  = errors.New("binlog: a batch is already in flight")
	ErrMissingBatchID = errors.New("binlog: chunk carries no batch id")
	ErrStaleBatch     = errors.New("binlog: batch is not the one in flight")
	ErrReaderClosed   = errors.New("binlog: reader closed")
)

type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
	Closed
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Engine is the capture engine surface a TaskReader drives.
// *embedded.Server implements it.
type Engine interface {
	Start() error
	Stop() error
	StartInstance(ctx context.Context, destination string) error
	StopInstance(destination string) error
	Subscribe(ctx context.Context, id capture.Identity) error
	Unsubscribe(ctx context.Context, id capture.Identity) error
	FetchWithoutAck(ctx context.Context, id capture.Identity, batchSize int) (*capture.Message, error)
	FetchWithoutAckTimeout(ctx context.Context, id capture.Identity, batchSize int, timeout time.Duration) (*capture.Message, error)
	Ack(ctx context.Context, id capture.Identity, batchID int64) error
	Rollback(ctx context.Context, id capture.Identity, batchID int64) error
}

// EngineFunc creates the engine serving the instances built by generate.
type EngineFunc func(generate embedded.InstanceGenerator) Engine

func newEmbeddedEngine(generate embedded.InstanceGenerator) Engine {
	return embedded.NewServer(generate)
}

type Option func(*TaskReader)

func WithParser(p Parser) Option { return func(r *TaskReader) { r.parser = p } }

func WithCheckpointStore(s CheckpointStore) Option {
	return func(r *TaskReader) { r.checkpoints = s }
}

func WithDumpWriter(w dump.Writer) Option { return func(r *TaskReader) { r.dumper = w } }

func WithAlarmNotifier(f AlarmFunc) Option { return func(r *TaskReader) { r.notify = f } }

// WithHandlers installs handlers run by the engine sink before entries are
// stored. The engine closes them when the instance stops.
func WithHandlers(hs ...embedded.Handler) Option {
	return func(r *TaskReader) { r.handlers = append(r.handlers, hs...) }
}

func WithEngine(f EngineFunc) Option { return func(r *TaskReader) { r.newEngine = f } }

// WithWait replaces the pause between empty polls.
func WithWait(f func(ctx context.Context, d time.Duration) error) Option {
	return func(r *TaskReader) { r.wait = f }
}

func WithLogger(l *slog.Logger) Option { return func(r *TaskReader) { r.log = l } }

// TaskReader is driven by a single goroutine calling Fetch, Dump and then
// Commit or Rollback. Stop and Close may be called from any goroutine.
type TaskReader struct {
	taskID      string
	param       Parameter
	excluded    []record.EventType
	parser      Parser
	checkpoints CheckpointStore
	dumper      dump.Writer
	notify      AlarmFunc
	handlers    []embedded.Handler
	newEngine   EngineFunc
	wait        func(ctx context.Context, d time.Duration) error
	log         *slog.Logger
	metrics     *telemetry.Reader

	mu       sync.Mutex
	state    State
	engine   Engine
	identity capture.Identity
	stopCtx  context.Context
	stopFn   context.CancelFunc

	session     *Session
	inflight    int64
	hasInflight bool
}

func NewTaskReader(taskID string, param Parameter, opts ...Option) (*TaskReader, error) {
	applyDefaults(&param)
	if err := param.Validate(); err != nil {
		return nil, err
	}
	excluded, _ := param.ExcludedEventTypes()

	r := &TaskReader{
		taskID:      taskID,
		param:       param,
		excluded:    excluded,
		parser:      EntryParser{},
		checkpoints: NewMemoryCheckpointStore(),
		newEngine:   newEmbeddedEngine,
		wait:        pause,
		metrics:     telemetry.ForTask(taskID),
		session:     newSession(),
	}
	for _, o := range opts {
		o(r)
	}
	if r.log == nil {
		r.log = logging.ForTask("binlog-reader", taskID)
	}
	if r.dumper == nil {
		r.dumper = dump.NewLogWriter(r.log)
	}
	return r, nil
}

func (r *TaskReader) TaskID() string { return r.taskID }

func (r *TaskReader) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *TaskReader) Identity() capture.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identity
}

func (r *TaskReader) Session() *Session { return r.session }

// Start assembles the engine and subscribes the task. A reader that was
// stopped but not closed resumes on its existing engine.
func (r *TaskReader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case Running:
		return nil
	case Closed:
		return ErrReaderClosed
	}
	if r.engine != nil {
		r.arm()
		r.log.Info("reader resumed")
		return nil
	}

	r.state = Starting
	eng, id, err := r.assemble(ctx)
	if err != nil {
		r.state = Stopped
		return err
	}
	r.engine, r.identity = eng, id
	r.arm()
	r.log.Info("reader started",
		"identity", id.String(),
		"batch_size", r.param.MessageBatchSize,
		"batch_timeout_ms", r.param.BatchTimeoutMS,
	)
	return nil
}

func (r *TaskReader) arm() {
	r.stopCtx, r.stopFn = context.WithCancel(context.Background())
	r.state = Running
}

func (r *TaskReader) assemble(ctx context.Context) (Engine, capture.Identity, error) {
	filter := BuildFilterExpression(r.param.Tables)
	id, err := NewIdentity(r.taskID, filter)
	if err != nil {
		return nil, id, err
	}
	if _, err := DeriveSlaveID(r.param.SlaveID, r.taskID); err != nil {
		return nil, id, err
	}

	factory := &InstanceFactory{
		TaskID:      r.taskID,
		Param:       r.param,
		Identity:    id,
		Checkpoints: r.checkpoints,
		Alarm:       NewTaskAlarm(r.taskID, r.notify, r.metrics, r.log),
		Handlers:    r.handlers,
		Log:         r.log,
	}
	eng := r.newEngine(factory.Generate)
	if err := eng.Start(); err != nil {
		return nil, id, fmt.Errorf("binlog: start engine: %w", err)
	}
	if err := eng.StartInstance(ctx, r.taskID); err != nil {
		_ = eng.Stop()
		return nil, id, fmt.Errorf("binlog: start instance %s: %w", r.taskID, err)
	}
	if err := eng.Subscribe(ctx, id); err != nil {
		_ = eng.StopInstance(r.taskID)
		_ = eng.Stop()
		return nil, id, fmt.Errorf("binlog: subscribe %s: %w", id, err)
	}
	return eng, id, nil
}

// Stop cancels outstanding fetches. The engine and any in-flight batch
// survive; Start resumes and Close releases them.
func (r *TaskReader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != Running {
		return
	}
	r.state = Stopping
	r.stopFn()
	r.state = Stopped
	r.log.Info("reader stopped")
}

// Close unsubscribes and shuts the engine down. It is idempotent.
func (r *TaskReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Closed {
		return nil
	}
	if r.state == Running {
		r.state = Stopping
		r.stopFn()
	}

	var errs []error
	if eng := r.engine; eng != nil {
		ctx := context.Background()
		if err := eng.Unsubscribe(ctx, r.identity); err != nil {
			r.log.Warn("unsubscribe failed", "err", err)
			errs = append(errs, err)
		}
		// stopping the instance closes its handlers
		if err := eng.StopInstance(r.taskID); err != nil {
			r.log.Warn("stop instance failed", "err", err)
			errs = append(errs, err)
		}
		if err := eng.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	r.engine = nil
	r.hasInflight = false
	r.state = Closed
	r.log.Info("reader closed")
	return errors.Join(errs...)
}

func (r *TaskReader) running() (Engine, capture.Identity, context.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engine, r.identity, r.stopCtx, r.state == Running
}

// current returns the engine for acknowledgments, which stay possible
// while stopped.
func (r *TaskReader) current() (Engine, capture.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Closed || r.engine == nil {
		return nil, r.identity, ErrReaderClosed
	}
	return r.engine, r.identity, nil
}

// Fetch blocks until the engine returns a non-empty batch and converts it
// into a chunk tagged with the batch id. Cancellation of ctx, Stop and
// engine interruptions all surface as ErrFetchCancelled.
func (r *TaskReader) Fetch(ctx context.Context) (*record.Chunk, error) {
	eng, id, stopCtx, ok := r.running()
	if !ok {
		return nil, ErrFetchCancelled
	}
	if bid, busy := r.inFlight(); busy {
		return nil, fmt.Errorf("%w: batch %d", ErrBatchInFlight, bid)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(stopCtx, cancel)()

	start := time.Now()
	msg, err := r.poll(ctx, eng, id)
	if err != nil {
		return nil, err
	}
	if stopCtx.Err() != nil {
		// stopped while the batch was on its way; hand it back
		if err := eng.Rollback(context.WithoutCancel(ctx), id, msg.ID); err != nil {
			r.log.Warn("hand-back rollback failed", "batch_id", msg.ID, "err", err)
		}
		return nil, ErrFetchCancelled
	}
	elapsed := time.Since(start)

	var firstEntryTime, payloadSize int64
	if len(msg.Entries) > 0 {
		firstEntryTime = msg.Entries[0].Header.ExecuteTime
	}
	for _, e := range msg.Entries {
		payloadSize += e.Header.EventLength
	}

	st := r.session.Statistic
	st.Put(StatFetchTimeThrough, elapsed.Milliseconds())
	st.Put(StatFetchEntryCount, int64(len(msg.Entries)))
	st.Add(StatFetchEntryTotal, int64(len(msg.Entries)))
	st.Add(StatFetchBatchTotal, 1)
	r.metrics.ObserveFetch(elapsed, len(msg.Entries), payloadSize)

	if r.param.Dump {
		r.session.pending = msg
	}

	records, err := r.parser.Parse(msg.Entries, TaskContext{TaskID: r.taskID, Filter: id.Filter})
	if err != nil {
		r.session.pending = nil
		perr := fmt.Errorf("binlog: parse batch %d: %w", msg.ID, err)
		if rbErr := eng.Rollback(context.WithoutCancel(ctx), id, msg.ID); rbErr != nil {
			return nil, errors.Join(perr, rbErr)
		}
		return nil, perr
	}
	if len(r.excluded) > 0 {
		records = lo.Filter(records, func(rec *record.Record, _ int) bool {
			return !lo.Contains(r.excluded, rec.Type)
		})
	}

	chunk := record.NewChunk(records, firstEntryTime, payloadSize)
	chunk.PutMeta(record.MetaBatchID, msg.ID)
	r.setInFlight(msg.ID, true)
	return chunk, nil
}

func (r *TaskReader) inFlight() (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inflight, r.hasInflight
}

func (r *TaskReader) setInFlight(bid int64, ok bool) {
	r.mu.Lock()
	r.inflight, r.hasInflight = bid, ok
	r.mu.Unlock()
}

func (r *TaskReader) poll(ctx context.Context, eng Engine, id capture.Identity) (*capture.Message, error) {
	size := r.param.MessageBatchSize
	timeout := r.param.BatchTimeout()
	bounded := r.param.BatchTimeoutMS >= 0

	emptyCount := 0
	for {
		if ctx.Err() != nil {
			return nil, ErrFetchCancelled
		}
		var (
			msg *capture.Message
			err error
		)
		if bounded {
			msg, err = eng.FetchWithoutAckTimeout(ctx, id, size, timeout)
		} else {
			msg, err = eng.FetchWithoutAck(ctx, id, size)
		}
		if err != nil {
			return nil, normalize(ctx, err)
		}
		if !msg.Empty() {
			return msg, nil
		}
		r.metrics.EmptyPoll()
		if bounded {
			continue
		}
		emptyCount = min(emptyCount+1, MaxEmptyCount)
		if err := r.wait(ctx, Backoff(emptyCount)); err != nil {
			return nil, ErrFetchCancelled
		}
	}
}

func normalize(ctx context.Context, err error) error {
	if ctx.Err() != nil ||
		errors.Is(err, capture.ErrInterrupted) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return ErrFetchCancelled
	}
	return fmt.Errorf("binlog: fetch: %w", err)
}

func (r *TaskReader) checkInFlight(chunk *record.Chunk) (int64, error) {
	bid, ok := chunk.BatchID()
	if !ok {
		return 0, ErrMissingBatchID
	}
	cur, ok := r.inFlight()
	if !ok {
		return 0, fmt.Errorf("%w: batch %d, none in flight", ErrStaleBatch, bid)
	}
	if bid != cur {
		return 0, fmt.Errorf("%w: batch %d, in flight %d", ErrStaleBatch, bid, cur)
	}
	return bid, nil
}

// Commit acknowledges the in-flight batch. On failure the batch stays in
// flight.
func (r *TaskReader) Commit(ctx context.Context, chunk *record.Chunk) error {
	bid, err := r.checkInFlight(chunk)
	if err != nil {
		return err
	}
	eng, id, err := r.current()
	if err != nil {
		return err
	}
	if err := eng.Ack(ctx, id, bid); err != nil {
		return fmt.Errorf("binlog: ack batch %d: %w", bid, err)
	}
	r.setInFlight(0, false)
	r.metrics.Ack()
	return nil
}

// Rollback asks the engine to redeliver the in-flight batch.
func (r *TaskReader) Rollback(ctx context.Context, chunk *record.Chunk, cause error) error {
	bid, err := r.checkInFlight(chunk)
	if err != nil {
		return err
	}
	eng, id, err := r.current()
	if err != nil {
		return err
	}
	r.log.Warn("rolling back batch", "batch_id", bid, "cause", cause)
	if err := eng.Rollback(ctx, id, bid); err != nil {
		return fmt.Errorf("binlog: rollback batch %d: %w", bid, err)
	}
	r.setInFlight(0, false)
	r.metrics.Rollback()
	return nil
}

// Dump writes the raw message stashed by the last Fetch together with
// chunk. Failures are logged; the stash is cleared either way.
func (r *TaskReader) Dump(chunk *record.Chunk) {
	msg := r.session.takePending()
	if msg == nil || r.dumper == nil || !r.log.Enabled(context.Background(), slog.LevelInfo) {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Warn("dump panicked", "panic", p)
		}
	}()

	var startPos, endPos string
	if n := len(msg.Entries); n > 0 {
		startPos = dump.PositionOf(msg.Entries[0])
		endPos = dump.PositionOf(msg.Entries[n-1])
	}
	if err := r.dumper.WriteMessage(msg, msg.ID, len(msg.Entries)); err != nil {
		r.log.Warn("dump message failed", "batch_id", msg.ID, "err", err)
		return
	}
	if chunk == nil {
		return
	}
	if err := r.dumper.WriteChunk(chunk, startPos, endPos, len(msg.Entries), r.param.DumpDetail); err != nil {
		r.log.Warn("dump records failed", "batch_id", msg.ID, "err", err)
	}
}
