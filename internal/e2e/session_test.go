package e2e

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/sqlbridge/internal/bridge"
	"github.com/mattjoyce/sqlbridge/internal/events"
	"github.com/mattjoyce/sqlbridge/internal/history"
)

// sessionWorker answers ordinary statements with one row and fails any
// statement containing "boom" the way a real engine would, in the reply.
const sessionWorker = `#!/bin/bash
echo connected
while read -r line; do
  id=$(echo "$line" | sed -n 's/.*"msgId":\([0-9]*\).*/\1/p')
  case "$line" in
  *boom*)
    echo "{\"msgId\":$id,\"result\":[],\"javaStartTime\":10,\"javaEndTime\":25,\"error\":\"ORA-00942: table or view does not exist\"}"
    ;;
  *)
    echo "{\"msgId\":$id,\"result\":[[\"row\"]],\"javaStartTime\":10,\"javaEndTime\":25}"
    ;;
  esac
done
`

func TestSessionRecordsHistoryAndPublishesEvents(t *testing.T) {
	// 1. Wire the full stack: worker script, event hub, history store.
	tmpDir := t.TempDir()
	script := createWorker(t, tmpDir, "session", sessionWorker)
	historyPath := filepath.Join(tmpDir, "history.db")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	store, err := history.Open(ctx, historyPath)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}

	hub := events.NewHub(16)
	b := bridge.New(workerConfig(script), hub, store)

	// 2. Run a short session: two successes and one worker-side failure.
	if err := b.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, err := b.SubmitQuerySync(ctx, "select 'a'"); err != nil {
		t.Fatalf("first query: %v", err)
	}
	if _, err := b.SubmitQuerySync(ctx, "select 'b'"); err != nil {
		t.Fatalf("second query: %v", err)
	}
	_, err = b.SubmitQuerySync(ctx, "select boom")
	var qerr *bridge.QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected a query error, got %v", err)
	}
	if qerr.MsgID != 3 || !strings.Contains(qerr.Text, "ORA-00942") {
		t.Fatalf("unexpected query error: %+v", qerr)
	}
	if err := b.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	// 3. The hub saw the whole lifecycle in order.
	snapshot := hub.SnapshotSince(0)
	var types []string
	for _, ev := range snapshot {
		types = append(types, ev.Type)
	}
	want := "bridge.connected,query.completed,query.completed,query.failed,bridge.disconnected"
	if got := strings.Join(types, ","); got != want {
		t.Fatalf("unexpected event sequence:\n got %s\nwant %s", got, want)
	}
	if !strings.Contains(string(snapshot[0].Data), b.ConnID()) {
		t.Fatalf("connected event should name the connection, got %s", snapshot[0].Data)
	}

	// 4. Close flushes the recorder, then the entries survive a reopen.
	if err := store.Close(); err != nil {
		t.Fatalf("store.Close: %v", err)
	}
	reopened, err := history.Open(ctx, historyPath)
	if err != nil {
		t.Fatalf("reopen history: %v", err)
	}
	defer reopened.Close()

	entries, err := reopened.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(entries))
	}
	newest := entries[0]
	if newest.MsgID != 3 || newest.Status != bridge.StatusError {
		t.Fatalf("newest entry should be the failed query, got %+v", newest)
	}
	if !strings.Contains(newest.Error, "ORA-00942") {
		t.Fatalf("failed entry should carry the worker error, got %q", newest.Error)
	}
	oldest := entries[2]
	if oldest.MsgID != 1 || oldest.Status != bridge.StatusOK || oldest.Error != "" {
		t.Fatalf("oldest entry should be the first success, got %+v", oldest)
	}
	if oldest.WorkerTime != 15*time.Millisecond {
		t.Fatalf("expected the worker-reported 15ms span, got %s", oldest.WorkerTime)
	}
	for _, e := range entries {
		if e.ConnID != b.ConnID() {
			t.Fatalf("entry %d recorded under conn %q, want %q", e.MsgID, e.ConnID, b.ConnID())
		}
	}

	// 5. Fingerprint lookup normalizes case and whitespace.
	matches, err := reopened.ByFingerprint(ctx, history.Fingerprint("SELECT   'a'"), 10)
	if err != nil {
		t.Fatalf("ByFingerprint: %v", err)
	}
	if len(matches) != 1 || matches[0].SQL != "select 'a'" {
		t.Fatalf("fingerprint lookup should find the normalized statement, got %+v", matches)
	}
}
