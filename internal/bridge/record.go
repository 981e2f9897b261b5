package bridge

import "time"

// Statuses recorded for finished queries.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// QueryRecord describes one finished query for history sinks.
type QueryRecord struct {
	MsgID       int64
	ConnID      string
	SQL         string
	Status      string
	Error       string
	SubmittedAt time.Time
	Elapsed     time.Duration // submission to settlement, monotonic
	Transport   time.Duration // reply receipt minus worker end, wall clock
	WorkerTime  time.Duration // worker-reported processing span
}

// Recorder receives finished-query records. The bridge calls Record on
// its reply dispatch path, so implementations must hand the record off
// without blocking.
type Recorder interface {
	Record(rec QueryRecord)
}
