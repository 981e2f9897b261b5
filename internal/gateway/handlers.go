package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mattjoyce/sqlbridge/internal/bridge"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	state := s.runner.State()
	faulted := s.runner.Faulted()

	status := "ok"
	if state != bridge.StateConnected || faulted {
		status = "degraded"
	}

	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:         status,
		State:          string(state),
		Faulted:        faulted,
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		PendingQueries: s.runner.Pending(),
		ConnID:         s.runner.ConnID(),
	})
}

// handleQuery handles POST /query: one synchronous query per request,
// bounded by the sync semaphore and the configured timeout.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		s.writeError(w, http.StatusBadRequest, "sql is required")
		return
	}

	select {
	case s.syncSemaphore <- struct{}{}:
		defer func() { <-s.syncSemaphore }()
	default:
		s.writeError(w, http.StatusServiceUnavailable, "too many concurrent queries, try again later")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.SyncTimeout)
	defer cancel()

	result, err := s.runner.SubmitQuerySync(ctx, req.SQL)
	if err != nil {
		s.writeQueryError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, QueryResponse{Result: result})
}

// writeQueryError maps bridge failures onto HTTP statuses: the caller's
// SQL is a 400, a missing or broken worker is an upstream problem.
func (s *Server) writeQueryError(w http.ResponseWriter, err error) {
	var qErr *bridge.QueryError
	switch {
	case errors.Is(err, bridge.ErrNotConnected):
		s.writeError(w, http.StatusServiceUnavailable, "bridge is not connected")
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "query timed out")
	case errors.As(err, &qErr):
		s.writeError(w, http.StatusBadRequest, qErr.Error())
	default:
		s.writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
