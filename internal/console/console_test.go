package console

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/sqlbridge/internal/bridge"
)

// fakeRunner implements Runner for testing.
type fakeRunner struct {
	submitFunc func(sql string) (<-chan bridge.QueryOutcome, error)
	state      bridge.State
	faulted    bool
	pending    int
}

func (f *fakeRunner) SubmitQueryAsync(sql string) (<-chan bridge.QueryOutcome, error) {
	return f.submitFunc(sql)
}

func (f *fakeRunner) State() bridge.State {
	if f.state == "" {
		return bridge.StateConnected
	}
	return f.state
}

func (f *fakeRunner) Faulted() bool { return f.faulted }
func (f *fakeRunner) Pending() int  { return f.pending }

func resultChan(out bridge.QueryOutcome) <-chan bridge.QueryOutcome {
	ch := make(chan bridge.QueryOutcome, 1)
	ch <- out
	return ch
}

func resized(t *testing.T, m tea.Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func pressEnter(t *testing.T, m Model) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func transcriptText(m Model) string {
	return strings.Join(m.transcript, "\n")
}

func TestSubmitDispatchesQuery(t *testing.T) {
	var submitted string
	runner := &fakeRunner{
		submitFunc: func(sql string) (<-chan bridge.QueryOutcome, error) {
			submitted = sql
			return resultChan(bridge.QueryOutcome{
				Result: map[string]any{"columns": []any{"id"}},
			}), nil
		},
	}

	m := resized(t, New(runner, nil, true))
	m.input.SetValue("select id from users")

	m, cmd := pressEnter(t, m)
	if submitted != "select id from users" {
		t.Fatalf("expected sql to reach runner, got %q", submitted)
	}
	if cmd == nil {
		t.Fatal("expected an outcome command")
	}
	if !strings.Contains(transcriptText(m), "select id from users") {
		t.Fatalf("expected prompt echo in transcript:\n%s", transcriptText(m))
	}
	if m.input.Value() != "" {
		t.Fatalf("expected input reset, got %q", m.input.Value())
	}

	out, ok := cmd().(queryOutcomeMsg)
	if !ok {
		t.Fatalf("expected queryOutcomeMsg, got %T", cmd())
	}
	if out.seq != 1 {
		t.Fatalf("expected seq 1, got %d", out.seq)
	}

	next, _ := m.Update(out)
	m = next.(Model)
	text := transcriptText(m)
	if !strings.Contains(text, "[1] ok") {
		t.Fatalf("expected success marker in transcript:\n%s", text)
	}
	if !strings.Contains(text, `"columns"`) {
		t.Fatalf("expected rendered result in transcript:\n%s", text)
	}
}

func TestSubmitErrorShownInTranscript(t *testing.T) {
	runner := &fakeRunner{
		submitFunc: func(sql string) (<-chan bridge.QueryOutcome, error) {
			return nil, bridge.ErrNotConnected
		},
		state: bridge.StateDisconnected,
	}

	m := resized(t, New(runner, nil, false))
	m.input.SetValue("select 1")

	m, cmd := pressEnter(t, m)
	if cmd == nil {
		t.Fatal("expected an outcome command")
	}

	next, _ := m.Update(cmd())
	m = next.(Model)
	text := transcriptText(m)
	if !strings.Contains(text, "error") || !strings.Contains(text, "not connected") {
		t.Fatalf("expected error in transcript:\n%s", text)
	}
}

func TestTimingOnlyWithDiagnostics(t *testing.T) {
	m := resized(t, New(&fakeRunner{}, nil, false))

	next, _ := m.Update(queryOutcomeMsg{seq: 1, result: "x", elapsed: 42 * time.Millisecond})
	m = next.(Model)
	if strings.Contains(transcriptText(m), "42ms") {
		t.Fatalf("timing should be hidden without diagnostics:\n%s", transcriptText(m))
	}

	timed := resized(t, New(&fakeRunner{}, nil, true))
	next, _ = timed.Update(queryOutcomeMsg{seq: 1, result: "x", elapsed: 42 * time.Millisecond})
	timed = next.(Model)
	if !strings.Contains(transcriptText(timed), "42ms") {
		t.Fatalf("timing should be shown with diagnostics:\n%s", transcriptText(timed))
	}
}

func TestQuitCommands(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.Msg
		sql  string
	}{
		{"ctrl+c", tea.KeyMsg{Type: tea.KeyCtrlC}, ""},
		{"backslash q", tea.KeyMsg{Type: tea.KeyEnter}, `\q`},
		{"exit", tea.KeyMsg{Type: tea.KeyEnter}, "exit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := resized(t, New(&fakeRunner{}, nil, false))
			if tt.sql != "" {
				m.input.SetValue(tt.sql)
			}

			_, cmd := m.Update(tt.msg)
			if cmd == nil {
				t.Fatal("expected quit command")
			}
			if _, ok := cmd().(tea.QuitMsg); !ok {
				t.Fatalf("expected QuitMsg, got %T", cmd())
			}
		})
	}
}

func TestEmptyInputIgnored(t *testing.T) {
	m := resized(t, New(&fakeRunner{}, nil, false))
	m.input.SetValue("   ")

	m, cmd := pressEnter(t, m)
	if cmd != nil {
		t.Fatal("expected no command for blank input")
	}
	if len(m.transcript) != 0 {
		t.Fatalf("expected empty transcript, got %v", m.transcript)
	}
}

func TestHistoryRecall(t *testing.T) {
	runner := &fakeRunner{
		submitFunc: func(sql string) (<-chan bridge.QueryOutcome, error) {
			return resultChan(bridge.QueryOutcome{Result: "ok"}), nil
		},
	}

	m := resized(t, New(runner, nil, false))
	for _, sql := range []string{"select 1", "select 2"} {
		m.input.SetValue(sql)
		m, _ = pressEnter(t, m)
	}

	up := tea.KeyMsg{Type: tea.KeyUp}
	down := tea.KeyMsg{Type: tea.KeyDown}

	next, _ := m.Update(up)
	m = next.(Model)
	if m.input.Value() != "select 2" {
		t.Fatalf("expected most recent statement, got %q", m.input.Value())
	}

	next, _ = m.Update(up)
	m = next.(Model)
	if m.input.Value() != "select 1" {
		t.Fatalf("expected oldest statement, got %q", m.input.Value())
	}

	// Past the oldest entry recall stays put.
	next, _ = m.Update(up)
	m = next.(Model)
	if m.input.Value() != "select 1" {
		t.Fatalf("expected recall to stop at oldest, got %q", m.input.Value())
	}

	next, _ = m.Update(down)
	m = next.(Model)
	if m.input.Value() != "select 2" {
		t.Fatalf("expected next statement, got %q", m.input.Value())
	}

	next, _ = m.Update(down)
	m = next.(Model)
	if m.input.Value() != "" {
		t.Fatalf("expected cleared input past newest, got %q", m.input.Value())
	}
}

func TestStatusCommand(t *testing.T) {
	runner := &fakeRunner{state: bridge.StateConnected, pending: 2, faulted: true}

	m := resized(t, New(runner, nil, false))
	m.input.SetValue(`\status`)

	m, _ = pressEnter(t, m)
	text := transcriptText(m)
	if !strings.Contains(text, "state=connected") || !strings.Contains(text, "pending=2") || !strings.Contains(text, "faulted") {
		t.Fatalf("unexpected status line:\n%s", text)
	}
}

func TestViewRendersAfterResize(t *testing.T) {
	m := resized(t, New(&fakeRunner{pending: 1}, nil, false))

	view := m.View()
	if !strings.Contains(view, "Results") {
		t.Fatalf("expected results panel in view:\n%s", view)
	}
	if !strings.Contains(view, "In flight: 1") {
		t.Fatalf("expected pending count in view:\n%s", view)
	}
}
