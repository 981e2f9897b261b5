// Package history persists finished queries to a local SQLite database.
// Records arrive from the bridge's dispatch path, so writes are queued and
// performed by a single background writer; a full queue drops records
// rather than slowing query settlement down.
package history

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	_ "modernc.org/sqlite"

	"github.com/mattjoyce/sqlbridge/internal/bridge"
	"github.com/mattjoyce/sqlbridge/internal/log"
)

const recordQueueDepth = 256

// Entry is one stored query outcome.
type Entry struct {
	ID          string
	MsgID       int64
	ConnID      string
	Fingerprint string
	SQL         string
	Status      string
	Error       string
	SubmittedAt time.Time
	Elapsed     time.Duration
	Transport   time.Duration
	WorkerTime  time.Duration
}

// Store owns the history database and its background writer.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	done   chan struct{}

	mu     sync.Mutex
	queue  chan bridge.QueryRecord
	closed bool
}

// Open opens (and creates if needed) the history database at path, ensures
// the schema exists, and starts the writer.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("history path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:     db,
		logger: log.WithComponent("history"),
		done:   make(chan struct{}),
		queue:  make(chan bridge.QueryRecord, recordQueueDepth),
	}
	go s.writeLoop()
	return s, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS query_log (
  id           TEXT PRIMARY KEY,
  msg_id       INTEGER NOT NULL,
  conn_id      TEXT NOT NULL DEFAULT '',
  fingerprint  TEXT NOT NULL,
  sql_text     TEXT NOT NULL,
  status       TEXT NOT NULL,
  error        TEXT,
  submitted_at TEXT NOT NULL,
  elapsed_ms   INTEGER NOT NULL,
  transport_ms INTEGER NOT NULL,
  worker_ms    INTEGER NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS query_log_submitted_at_idx ON query_log(submitted_at);`,
		`CREATE INDEX IF NOT EXISTS query_log_fingerprint_idx ON query_log(fingerprint);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap history db: %w", err)
		}
	}
	return nil
}

// Fingerprint returns a stable hex digest used to group runs of the same
// statement regardless of whitespace and case differences.
func Fingerprint(sqlText string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(sqlText), " "))
	sum := blake3.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Record queues one finished query for persistence. It never blocks; when
// the queue is full the record is dropped with a warning.
func (s *Store) Record(rec bridge.QueryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- rec:
	default:
		s.logger.Warn("history queue full, dropping record", "msg_id", rec.MsgID)
	}
}

func (s *Store) writeLoop() {
	defer close(s.done)
	for rec := range s.queue {
		if err := s.insert(context.Background(), rec); err != nil {
			s.logger.Warn("failed to record query", "msg_id", rec.MsgID, "error", err)
		}
	}
}

func (s *Store) insert(ctx context.Context, rec bridge.QueryRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO query_log (id, msg_id, conn_id, fingerprint, sql_text, status, error, submitted_at, elapsed_ms, transport_ms, worker_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, uuid.NewString(), rec.MsgID, rec.ConnID, Fingerprint(rec.SQL), rec.SQL, rec.Status, rec.Error,
		rec.SubmittedAt.UTC().Format(time.RFC3339Nano),
		rec.Elapsed.Milliseconds(), rec.Transport.Milliseconds(), rec.WorkerTime.Milliseconds())
	if err != nil {
		return fmt.Errorf("insert query record: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, msg_id, conn_id, fingerprint, sql_text, status, COALESCE(error, ''), submitted_at, elapsed_ms, transport_ms, worker_ms
FROM query_log
ORDER BY submitted_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// ByFingerprint returns runs of one statement, most recent first.
func (s *Store) ByFingerprint(ctx context.Context, fingerprint string, limit int) ([]Entry, error) {
	if fingerprint == "" {
		return nil, fmt.Errorf("fingerprint is empty")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, msg_id, conn_id, fingerprint, sql_text, status, COALESCE(error, ''), submitted_at, elapsed_ms, transport_ms, worker_ms
FROM query_log
WHERE fingerprint = ?
ORDER BY submitted_at DESC
LIMIT ?;
`, fingerprint, limit)
	if err != nil {
		return nil, fmt.Errorf("query history by fingerprint: %w", err)
	}
	defer rows.Close()

	return collectEntries(rows)
}

// Prune deletes entries older than the retention window and returns how
// many were removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM query_log WHERE submitted_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune history: %w", err)
	}
	return n, nil
}

// Close stops the writer after draining queued records, then closes the
// database. Safe to call more than once.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history rows: %w", err)
	}
	return entries, nil
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		e           Entry
		submittedAt string
		elapsedMS   int64
		transportMS int64
		workerMS    int64
	)
	err := row.Scan(&e.ID, &e.MsgID, &e.ConnID, &e.Fingerprint, &e.SQL, &e.Status, &e.Error,
		&submittedAt, &elapsedMS, &transportMS, &workerMS)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, err
	}
	if err != nil {
		return Entry{}, fmt.Errorf("scan history row: %w", err)
	}

	e.SubmittedAt, err = time.Parse(time.RFC3339Nano, submittedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse submitted_at: %w", err)
	}
	e.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	e.Transport = time.Duration(transportMS) * time.Millisecond
	e.WorkerTime = time.Duration(workerMS) * time.Millisecond
	return e, nil
}
