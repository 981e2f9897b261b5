// Package bridge owns the worker subprocess that fronts the database and
// correlates its replies to submitted queries.
//
// One bridge runs at most one worker. Submissions allocate a monotonically
// increasing message id, park a callback in the pending table, and write
// one request line to the worker. A single run loop consumes everything
// the worker emits: reply lines settle their pending entry (removed
// before the callback fires, so an id settles at most once), error-stream
// output fails every in-flight query with one shared fault, and process
// exit returns the bridge to the disconnected state.
//
// The callback, future, and blocking submission forms all ride the same
// table and the same listener; none of them installs extra stream
// handlers.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/sqlbridge/internal/config"
	"github.com/mattjoyce/sqlbridge/internal/events"
	"github.com/mattjoyce/sqlbridge/internal/log"
	"github.com/mattjoyce/sqlbridge/internal/protocol"
	"github.com/mattjoyce/sqlbridge/internal/worker"
)

// State names the connection lifecycle phase.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

// QueryOutcome carries a finished query's result or error to future-style
// callers.
type QueryOutcome struct {
	Result any
	Err    error
}

// Bridge correlates worker replies to submitted queries by message id.
type Bridge struct {
	cfg      *config.Config
	hub      *events.Hub
	recorder Recorder
	spawner  worker.Spawner
	logger   *slog.Logger
	connID   string

	nextID  atomic.Int64
	pending *pendingTable

	mu      sync.Mutex
	state   State
	faulted bool
	channel *worker.Channel
	runDone chan struct{}
}

// New builds a disconnected bridge. hub and recorder may be nil; the
// bridge then publishes and records nothing.
func New(cfg *config.Config, hub *events.Hub, recorder Recorder) *Bridge {
	connID := uuid.NewString()
	return &Bridge{
		cfg:      cfg,
		hub:      hub,
		recorder: recorder,
		spawner:  worker.ExecSpawner{},
		logger:   log.WithConn(connID),
		connID:   connID,
		pending:  newPendingTable(),
		state:    StateDisconnected,
	}
}

// ConnID identifies this bridge instance in logs and events.
func (b *Bridge) ConnID() string { return b.connID }

// ConnectAsync launches the worker and returns a buffered channel that
// yields the handshake outcome exactly once. Only the first thing the
// worker says decides the outcome: the expected ready line connects,
// anything else on either stream fails the attempt.
func (b *Bridge) ConnectAsync(ctx context.Context) <-chan error {
	result := make(chan error, 1)

	b.mu.Lock()
	if b.state == StateConnecting || b.state == StateConnected {
		b.mu.Unlock()
		result <- ErrAlreadyConnected
		return result
	}
	b.state = StateConnecting
	b.faulted = false
	b.mu.Unlock()

	go func() { result <- b.connect(ctx) }()
	return result
}

// Connect is the blocking form of ConnectAsync.
func (b *Bridge) Connect(ctx context.Context) error {
	return <-b.ConnectAsync(ctx)
}

func (b *Bridge) connect(ctx context.Context) error {
	opts := worker.Options{
		Command:        b.cfg.Worker.Command,
		Args:           b.cfg.Worker.Args,
		Env:            b.cfg.Database.Env(),
		Encoding:       b.cfg.Worker.Encoding,
		TerminateGrace: b.cfg.Worker.TerminateGrace,
		Spawner:        b.spawner,
	}

	b.logger.Info("starting worker", "command", opts.Command)

	ch, err := worker.Start(opts)
	if err != nil {
		b.setState(StateFailed)
		return fmt.Errorf("start worker: %w", err)
	}

	ev, ok, err := b.awaitHandshake(ctx, ch)
	if err != nil {
		return err
	}
	if !ok {
		b.setState(StateFailed)
		if ev.Err != nil {
			return fmt.Errorf("worker exited before handshake: %w", ev.Err)
		}
		return errors.New("worker exited before handshake")
	}

	switch ev.Kind {
	case worker.EventOutput:
		if protocol.IsHandshake(ev.Line) {
			b.adopt(ch)
			return nil
		}
		b.abandon(ch)
		b.setState(StateFailed)
		return &HandshakeError{Line: strings.TrimSpace(ev.Line)}
	case worker.EventStderr:
		b.abandon(ch)
		b.setState(StateFailed)
		return &HandshakeError{Line: strings.TrimSpace(ev.Text), Stderr: true}
	default:
		b.setState(StateFailed)
		if ev.Err != nil {
			return fmt.Errorf("worker exited before handshake: %w", ev.Err)
		}
		return errors.New("worker exited before handshake")
	}
}

// awaitHandshake blocks for the worker's first event. ok is false when the
// feed closed without one; err is non-nil only for context cancellation.
func (b *Bridge) awaitHandshake(ctx context.Context, ch *worker.Channel) (worker.Event, bool, error) {
	select {
	case ev, ok := <-ch.Events():
		return ev, ok, nil
	case <-ctx.Done():
		b.abandon(ch)
		b.setState(StateFailed)
		return worker.Event{}, false, fmt.Errorf("connect: %w", ctx.Err())
	}
}

// adopt installs a handshaken channel and starts the run loop.
func (b *Bridge) adopt(ch *worker.Channel) {
	done := make(chan struct{})

	b.mu.Lock()
	b.state = StateConnected
	b.channel = ch
	b.runDone = done
	b.mu.Unlock()

	b.logger.Info("worker ready", "pid", ch.Pid())
	b.publish("bridge.connected", map[string]any{"conn_id": b.connID, "pid": ch.Pid()})

	go b.run(ch, done)
}

// abandon terminates a worker that never handshook and discards whatever
// it still emits so the channel can wind down.
func (b *Bridge) abandon(ch *worker.Channel) {
	ch.Terminate()
	go func() {
		for range ch.Events() {
		}
	}()
}

// run is the sole consumer of the worker's event feed after the
// handshake. It exits when the feed closes.
func (b *Bridge) run(ch *worker.Channel, done chan struct{}) {
	defer close(done)
	for ev := range ch.Events() {
		switch ev.Kind {
		case worker.EventOutput:
			b.handleReply(ev.Line)
		case worker.EventStderr:
			b.handleFault(ev.Text)
		case worker.EventExit:
			b.handleExit(ev.Err)
		}
	}
}

// handleReply settles the pending query a reply line names. The entry is
// removed before the callback runs, so a duplicate id finds nothing.
func (b *Bridge) handleReply(line string) {
	reply, err := protocol.DecodeReply([]byte(line))
	if err != nil {
		b.logger.Debug("dropping undecodable worker line", "error", err)
		return
	}

	pq, ok := b.pending.take(reply.MsgID)
	if !ok {
		b.logger.Debug("dropping reply with no pending query", "msg_id", reply.MsgID)
		return
	}

	received := time.Now()
	elapsed := received.Sub(pq.submittedAt)
	var transport time.Duration
	if reply.WorkerEnd > 0 {
		transport = time.Duration(received.UnixMilli()-reply.WorkerEnd) * time.Millisecond
	}
	workerTime := reply.ProcessingTime()

	logger := b.logger.With(slog.Int64("msg_id", reply.MsgID))
	if b.cfg.Diagnostics.Timing {
		logger.Info("query timing",
			"elapsed_ms", elapsed.Milliseconds(),
			"worker_ms", workerTime.Milliseconds(),
			"transport_ms", transport.Milliseconds())
	}

	if reply.Failed() {
		logger.Warn("query failed", "error", reply.Error)
		b.record(pq, StatusError, reply.Error, elapsed, transport, workerTime)
		b.publish("query.failed", map[string]any{"msg_id": reply.MsgID, "error": reply.Error})
		pq.done(nil, &QueryError{MsgID: reply.MsgID, Text: reply.Error})
		return
	}

	result, err := protocol.UnwrapResult(reply.Result)
	if err != nil {
		logger.Warn("malformed result payload", "error", err)
		b.record(pq, StatusError, err.Error(), elapsed, transport, workerTime)
		b.publish("query.failed", map[string]any{"msg_id": reply.MsgID, "error": err.Error()})
		pq.done(nil, fmt.Errorf("query %d: %w", reply.MsgID, err))
		return
	}

	logger.Debug("query completed")
	b.record(pq, StatusOK, "", elapsed, transport, workerTime)
	b.publish("query.completed", map[string]any{"msg_id": reply.MsgID, "elapsed_ms": elapsed.Milliseconds()})
	pq.done(result, nil)
}

// handleFault fails every in-flight query with one fault carrying the
// error-stream text. The connection state is left as is: the flag from
// Faulted tells callers the channel can no longer be trusted, and tearing
// it down stays their call.
func (b *Bridge) handleFault(text string) {
	fault := &ChannelFault{Text: strings.TrimSpace(text)}

	b.mu.Lock()
	if b.state != StateConnected {
		// The channel is already torn down; there is nothing left to fail.
		b.mu.Unlock()
		b.logger.Debug("ignoring stderr from a stopped worker", "stderr", fault.Text)
		return
	}
	b.faulted = true
	b.mu.Unlock()

	failed := b.pending.drain()
	b.logger.Warn("worker error output failed all in-flight queries",
		"pending", len(failed), "stderr", fault.Text)
	b.publish("channel.fault", map[string]any{"pending_failed": len(failed), "stderr": fault.Text})

	for _, pq := range failed {
		pq.done(nil, fault)
	}
}

// handleExit reaps a worker that went away on its own: outstanding
// queries fail and the bridge returns to disconnected so later
// submissions fail fast.
func (b *Bridge) handleExit(exitErr error) {
	b.mu.Lock()
	wasConnected := b.state == StateConnected
	if wasConnected {
		b.state = StateDisconnected
		b.channel = nil
	}
	b.mu.Unlock()

	if !wasConnected {
		// Disconnect already settled the table and the state.
		return
	}

	text := "worker exited"
	if exitErr != nil {
		text = fmt.Sprintf("worker exited: %v", exitErr)
	}
	fault := &ChannelFault{Text: text}

	failed := b.pending.drain()
	b.logger.Warn("worker exited while connected", "pending", len(failed), "error", exitErr)
	b.publish("worker.exited", map[string]any{"pending_failed": len(failed)})

	for _, pq := range failed {
		pq.done(nil, fault)
	}
}

// SubmitQuery sends sql to the worker and registers fn to receive the
// outcome. It returns an error only when the bridge is not connected;
// nothing is allocated or sent in that case. Every later failure arrives
// through fn.
func (b *Bridge) SubmitQuery(sql string, fn QueryCallback) error {
	if fn == nil {
		return errors.New("nil query callback")
	}

	b.mu.Lock()
	if b.state != StateConnected {
		b.mu.Unlock()
		return ErrNotConnected
	}
	ch := b.channel
	b.mu.Unlock()

	id := b.nextID.Add(1)
	now := time.Now()

	line, err := protocol.MarshalRequest(&protocol.QueryRequest{
		MsgID:    id,
		SQL:      sql,
		SentTime: now.UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("encode query %d: %w", id, err)
	}

	// Park the entry before writing: the reply must always find it, no
	// matter how fast the worker answers.
	pq := &pendingQuery{id: id, sql: sql, submittedAt: now, done: fn}
	b.pending.put(pq)

	if err := ch.WriteLine(line); err != nil {
		// The reply can never come. Settle through the callback like any
		// other post-submission failure.
		if settled, ok := b.pending.take(id); ok {
			settled.done(nil, fmt.Errorf("send query %d: %w", id, err))
		}
		return nil
	}

	b.logger.Debug("query submitted", "msg_id", id)
	return nil
}

// SubmitQueryAsync submits sql and returns a buffered channel that yields
// the outcome exactly once. Abandoning the channel leaks nothing.
func (b *Bridge) SubmitQueryAsync(sql string) (<-chan QueryOutcome, error) {
	out := make(chan QueryOutcome, 1)
	err := b.SubmitQuery(sql, func(result any, err error) {
		out <- QueryOutcome{Result: result, Err: err}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitQuerySync submits sql and blocks for the outcome. Cancelling ctx
// abandons the wait, not the query: the pending entry stands until the
// worker answers it.
func (b *Bridge) SubmitQuerySync(ctx context.Context, sql string) (any, error) {
	out, err := b.SubmitQueryAsync(sql)
	if err != nil {
		return nil, err
	}
	select {
	case o := <-out:
		return o.Result, o.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Disconnect terminates the worker and waits for its channel to wind
// down. Queries still in flight fail with ErrDisconnected before the
// process is signaled.
func (b *Bridge) Disconnect() error {
	b.mu.Lock()
	if b.state != StateConnected {
		b.mu.Unlock()
		return ErrNotConnected
	}
	ch := b.channel
	done := b.runDone
	b.state = StateDisconnected
	b.channel = nil
	b.faulted = false
	b.mu.Unlock()

	for _, pq := range b.pending.drain() {
		pq.done(nil, ErrDisconnected)
	}

	ch.Terminate()
	<-done

	b.logger.Info("disconnected")
	b.publish("bridge.disconnected", map[string]any{"conn_id": b.connID})
	return nil
}

// IsConnected reports whether queries can be submitted right now.
func (b *Bridge) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == StateConnected
}

// State returns the lifecycle phase.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Faulted reports whether worker error output has failed in-flight
// queries since the last connect.
func (b *Bridge) Faulted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.faulted
}

// Pending returns the number of queries awaiting replies.
func (b *Bridge) Pending() int {
	return b.pending.size()
}

func (b *Bridge) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

func (b *Bridge) record(pq *pendingQuery, status, errText string, elapsed, transport, workerTime time.Duration) {
	if b.recorder == nil {
		return
	}
	b.recorder.Record(QueryRecord{
		MsgID:       pq.id,
		ConnID:      b.connID,
		SQL:         pq.sql,
		Status:      status,
		Error:       errText,
		SubmittedAt: pq.submittedAt,
		Elapsed:     elapsed,
		Transport:   transport,
		WorkerTime:  workerTime,
	})
}

func (b *Bridge) publish(eventType string, data map[string]any) {
	if b.hub == nil {
		return
	}
	b.hub.Publish(eventType, data)
}
