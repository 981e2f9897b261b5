package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is the only synchronous submission failure: the
	// bridge was not in the connected state, so nothing was sent and no
	// message id was allocated.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyConnected rejects a connect attempt while a worker is
	// already starting or serving.
	ErrAlreadyConnected = errors.New("already connected")

	// ErrDisconnected settles queries still in flight when Disconnect
	// tears the worker down before their replies arrive.
	ErrDisconnected = errors.New("disconnected before reply arrived")
)

// HandshakeError reports that the worker's first utterance was not the
// expected ready line.
type HandshakeError struct {
	Line   string // offending output line, or the error-stream text
	Stderr bool   // true when the error stream preempted the handshake
}

func (e *HandshakeError) Error() string {
	if e.Stderr {
		return fmt.Sprintf("worker handshake failed: stderr: %s", e.Line)
	}
	return fmt.Sprintf("worker handshake failed: unexpected first line %q", e.Line)
}

// ChannelFault carries worker error-stream text (or an unexpected exit)
// that failed every in-flight query at once. Individual queries cannot be
// blamed, so they all receive the same fault.
type ChannelFault struct {
	Text string
}

func (e *ChannelFault) Error() string {
	return fmt.Sprintf("worker channel fault: %s", e.Text)
}

// QueryError is a failure the worker reported for a single query.
type QueryError struct {
	MsgID int64
	Text  string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %d failed: %s", e.MsgID, e.Text)
}
