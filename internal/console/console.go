// Package console implements the interactive SQL console. A text input
// submits statements through the bridge asynchronously; outcomes land in a
// scrollback viewport as they arrive, tagged so interleaved replies stay
// attributable.
package console

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/sqlbridge/internal/bridge"
	"github.com/mattjoyce/sqlbridge/internal/events"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusFailed = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

// Runner is the slice of the bridge the console drives.
type Runner interface {
	SubmitQueryAsync(sql string) (<-chan bridge.QueryOutcome, error)
	State() bridge.State
	Faulted() bool
	Pending() int
}

// Model is the Bubble Tea model for the console.
type Model struct {
	runner     Runner
	showTiming bool

	width  int
	height int

	input    textinput.Model
	viewport viewport.Model

	transcript []string
	history    []string
	histIdx    int

	// nextSeq tags submissions so interleaved outcomes stay readable.
	nextSeq int

	hubEvents  <-chan events.Event
	cancelFeed func()
	lastEvent  string
}

type queryOutcomeMsg struct {
	seq     int
	sql     string
	result  any
	err     error
	elapsed time.Duration
}

type eventMsg events.Event

// New creates a console model. hub may be nil; the status line then only
// reflects the runner's state.
func New(runner Runner, hub *events.Hub, showTiming bool) *Model {
	ti := textinput.New()
	ti.Placeholder = "select ..."
	ti.Prompt = promptStyle.Render("sql> ")
	ti.Focus()

	m := &Model{
		runner:     runner,
		showTiming: showTiming,
		input:      ti,
		nextSeq:    1,
	}
	if hub != nil {
		m.hubEvents, m.cancelFeed = hub.Subscribe()
	}
	return m
}

func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, tea.EnterAltScreen}
	if m.hubEvents != nil {
		cmds = append(cmds, receiveNextEvent(m.hubEvents))
	}
	return tea.Batch(cmds...)
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m.quit()
		case "enter":
			return m.submitCurrent()
		case "up":
			m.recallPrev()
			return m, nil
		case "down":
			m.recallNext()
			return m, nil
		case "pgup", "pgdown":
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = m.width - 12
		m.viewport.Width = m.width - 6
		m.viewport.Height = m.height - 9
		if m.viewport.Height < 3 {
			m.viewport.Height = 3
		}
		m.refreshViewport()

	case queryOutcomeMsg:
		m.appendOutcome(msg)
		return m, nil

	case eventMsg:
		e := events.Event(msg)
		m.lastEvent = fmt.Sprintf("%s %s", e.At.Format("15:04:05"), e.Type)
		return m, receiveNextEvent(m.hubEvents)
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.cancelFeed != nil {
		m.cancelFeed()
	}
	return m, tea.Quit
}

func (m Model) submitCurrent() (tea.Model, tea.Cmd) {
	sql := strings.TrimSpace(m.input.Value())
	if sql == "" {
		return m, nil
	}

	switch sql {
	case `\q`, `\quit`, "exit", "quit":
		return m.quit()
	case `\status`:
		m.appendLine(dimStyle.Render(m.statusLine()))
		m.input.Reset()
		return m, nil
	}

	m.history = append(m.history, sql)
	m.histIdx = len(m.history)

	seq := m.nextSeq
	m.nextSeq++

	m.appendLine(promptStyle.Render(fmt.Sprintf("[%d] sql> ", seq)) + sql)
	m.input.Reset()

	return m, m.submitQuery(seq, sql)
}

func (m *Model) recallPrev() {
	if len(m.history) == 0 || m.histIdx == 0 {
		return
	}
	m.histIdx--
	m.input.SetValue(m.history[m.histIdx])
	m.input.CursorEnd()
}

func (m *Model) recallNext() {
	if m.histIdx >= len(m.history) {
		return
	}
	m.histIdx++
	if m.histIdx == len(m.history) {
		m.input.Reset()
		return
	}
	m.input.SetValue(m.history[m.histIdx])
	m.input.CursorEnd()
}

func (m *Model) appendOutcome(out queryOutcomeMsg) {
	if out.err != nil {
		m.appendLine(statusFailed.Render(fmt.Sprintf("[%d] error: %v", out.seq, out.err)))
		return
	}

	header := fmt.Sprintf("[%d] ok", out.seq)
	if m.showTiming {
		header += fmt.Sprintf(" (%s)", out.elapsed.Round(time.Millisecond))
	}
	m.appendLine(statusOK.Render(header))
	m.appendLine(renderResult(out.result))
}

func (m *Model) appendLine(line string) {
	m.transcript = append(m.transcript, line)
	// Bound the scrollback.
	if len(m.transcript) > 2000 {
		m.transcript = m.transcript[len(m.transcript)-2000:]
	}
	m.refreshViewport()
}

func (m *Model) refreshViewport() {
	m.viewport.SetContent(strings.Join(m.transcript, "\n"))
	m.viewport.GotoBottom()
}

func renderResult(result any) string {
	if result == nil {
		return dimStyle.Render("(no result)")
	}
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	return string(out)
}

func (m Model) statusLine() string {
	state := m.runner.State()
	line := fmt.Sprintf("state=%s pending=%d", state, m.runner.Pending())
	if m.runner.Faulted() {
		line += " faulted"
	}
	return line
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := m.renderHeader()

	results := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Results"),
			m.viewport.View(),
		),
	)

	help := dimStyle.Render(` [enter] Run • [↑/↓] History • [pgup/pgdn] Scroll • [\q] Quit`)

	return docStyle.Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			results,
			m.input.View(),
			help,
		),
	)
}

func (m Model) renderHeader() string {
	state := m.runner.State()
	status := statusOK.Render(strings.ToUpper(string(state)))
	if state != bridge.StateConnected {
		status = statusFailed.Render(strings.ToUpper(string(state)))
	}
	if m.runner.Faulted() {
		status += statusFailed.Render(" (FAULTED)")
	}

	items := []string{
		fmt.Sprintf("Bridge: %s", status),
		fmt.Sprintf("In flight: %d", m.runner.Pending()),
		dimStyle.Render(m.lastEvent),
	}

	third := (m.width - 4) / 3
	return borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width(third).Render(items[0]),
			lipgloss.NewStyle().Width(third).Render(items[1]),
			lipgloss.NewStyle().Width(third).Render(items[2]),
		),
	)
}

// --- Commands ---

func (m Model) submitQuery(seq int, sql string) tea.Cmd {
	start := time.Now()
	ch, err := m.runner.SubmitQueryAsync(sql)
	if err != nil {
		return func() tea.Msg {
			return queryOutcomeMsg{seq: seq, sql: sql, err: err}
		}
	}
	return func() tea.Msg {
		out := <-ch
		return queryOutcomeMsg{
			seq:     seq,
			sql:     sql,
			result:  out.Result,
			err:     out.Err,
			elapsed: time.Since(start),
		}
	}
}

func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}
