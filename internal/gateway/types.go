package gateway

// QueryRequest is the JSON body for POST /query.
type QueryRequest struct {
	SQL string `json:"sql"`
}

// QueryResponse is returned on successful query execution. Result is the
// bridge's decoded payload: one result-set object for a single statement,
// an ordered array for a batch.
type QueryResponse struct {
	Result any `json:"result"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	State          string `json:"state"`
	Faulted        bool   `json:"faulted"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	PendingQueries int    `json:"pending_queries"`
	ConnID         string `json:"conn_id"`
}
