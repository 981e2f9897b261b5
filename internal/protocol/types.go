package protocol

import (
	"encoding/json"
	"strings"
	"time"
)

// Handshake is the literal line the worker must print on stdout, before
// anything else, to signal it is ready to accept queries. Comparison is
// case-sensitive after trimming surrounding whitespace.
const Handshake = "connected"

// QueryRequest is the envelope written to the worker via stdin, one JSON
// object per line. SentTime is epoch milliseconds at submission.
type QueryRequest struct {
	MsgID    int64  `json:"msgId"`
	SQL      string `json:"sql"`
	SentTime int64  `json:"sentTime"`
}

// QueryReply is the envelope read from the worker via stdout, one JSON value
// per line. Result is the ordered array of result-set objects, kept raw so
// the dispatch path can unwrap it lazily. The javaStartTime/javaEndTime keys
// mirror the worker's JVM-side serializer and bound the worker's own
// processing window in epoch milliseconds. Error, when present, fails the
// matching request only.
type QueryReply struct {
	MsgID       int64           `json:"msgId"`
	Result      json.RawMessage `json:"result,omitempty"`
	WorkerStart int64           `json:"javaStartTime"`
	WorkerEnd   int64           `json:"javaEndTime"`
	Error       string          `json:"error,omitempty"`
}

// Failed reports whether the reply carries a per-query error.
func (r *QueryReply) Failed() bool {
	return r.Error != ""
}

// ProcessingTime returns the worker-reported processing duration.
func (r *QueryReply) ProcessingTime() time.Duration {
	return time.Duration(r.WorkerEnd-r.WorkerStart) * time.Millisecond
}

// ResultSet is one tabular result produced by a single SQL statement. The
// bridge itself treats result entries as opaque JSON; this concrete shape is
// what sqlbridge-worker emits and what Go callers typically decode into.
type ResultSet struct {
	Columns      []string `json:"columns,omitempty"`
	Rows         [][]any  `json:"rows,omitempty"`
	RowsAffected int64    `json:"rowsAffected,omitempty"`
}

// IsHandshake reports whether a raw output line is the handshake token.
func IsHandshake(line string) bool {
	return strings.TrimSpace(line) == Handshake
}
