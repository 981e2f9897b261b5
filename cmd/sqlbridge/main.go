package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/sqlbridge/internal/bridge"
	"github.com/mattjoyce/sqlbridge/internal/config"
	"github.com/mattjoyce/sqlbridge/internal/console"
	"github.com/mattjoyce/sqlbridge/internal/doctor"
	"github.com/mattjoyce/sqlbridge/internal/events"
	"github.com/mattjoyce/sqlbridge/internal/gateway"
	"github.com/mattjoyce/sqlbridge/internal/history"
	"github.com/mattjoyce/sqlbridge/internal/lock"
	"github.com/mattjoyce/sqlbridge/internal/log"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "query":
		os.Exit(runQuery(args))
	case "console":
		os.Exit(runConsole(args))
	case "gateway":
		os.Exit(runGateway(args))
	case "history":
		os.Exit(runHistoryNoun(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "doctor":
		os.Exit(runDoctor(args))
	case "version":
		fmt.Printf("sqlbridge version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`sqlbridge - SQL bridge to a worker-managed database

Usage:
  sqlbridge <command> [flags]

Commands:
  query "<sql>"     Connect, run one query, print the JSON result
  console           Interactive SQL console
  gateway           Serve the HTTP gateway over one bridge connection
  history recent    Show recent query history
  history prune     Delete history entries older than the retention window
  config show       Print the effective configuration (secrets redacted)
  config get <path> Print one configuration value (dot notation)
  doctor            Check the configuration and worker setup

General:
  version           Show version information
  help              Show this help message

Configuration is read from --config, $SQLBRIDGE_CONFIG, or the standard
locations (./sqlbridge.yaml, ./config.yaml, ~/.config/sqlbridge/config.yaml,
/etc/sqlbridge/config.yaml).
`)
}

// loadConfigAt loads configuration from path, falling back to the standard
// locations when path is empty.
func loadConfigAt(path string) (*config.Config, error) {
	if path == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			return nil, err
		}
		fmt.Fprintf(os.Stderr, "Using discovered config: %s\n", discovered)
		path = discovered
	}
	return config.Load(path)
}

// openRecorder opens the history store when enabled. The returned close
// function flushes queued writes and is safe to call either way.
func openRecorder(ctx context.Context, cfg *config.Config) (bridge.Recorder, func(), error) {
	if !cfg.History.Enabled {
		return nil, func() {}, nil
	}
	store, err := history.Open(ctx, cfg.History.Path)
	if err != nil {
		return nil, nil, err
	}
	return store, func() { _ = store.Close() }, nil
}

func runQuery(args []string) int {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	timeout := fs.Duration("timeout", 60*time.Second, "Deadline covering connect and query")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, `Usage: sqlbridge query [flags] "<sql>"`)
		return 1
	}
	sqlText := fs.Arg(0)

	cfg, err := loadConfigAt(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	log.Setup(cfg.Log.Level)
	logger := log.WithComponent("main")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	recorder, closeRecorder, err := openRecorder(ctx, cfg)
	if err != nil {
		logger.Error("failed to open history store", "path", cfg.History.Path, "error", err)
		return 1
	}
	defer closeRecorder()

	b := bridge.New(cfg, events.NewHub(events.DefaultCapacity), recorder)

	if err := b.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Connect failed: %v\n", err)
		return 1
	}
	defer func() { _ = b.Disconnect() }()

	result, err := b.SubmitQuerySync(ctx, sqlText)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		return 1
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render result: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

func runConsole(args []string) int {
	fs := flag.NewFlagSet("console", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	timing := fs.Bool("timing", false, "Show per-query timing (implies diagnostics.timing)")
	connectTimeout := fs.Duration("connect-timeout", 30*time.Second, "Worker connect deadline")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigAt(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	// Log lines would scribble over the alternate screen.
	log.Setup("off")

	ctx, cancel := context.WithTimeout(context.Background(), *connectTimeout)
	defer cancel()

	recorder, closeRecorder, err := openRecorder(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history store: %v\n", err)
		return 1
	}
	defer closeRecorder()

	hub := events.NewHub(events.DefaultCapacity)
	b := bridge.New(cfg, hub, recorder)

	if err := b.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Connect failed: %v\n", err)
		return 1
	}

	showTiming := cfg.Diagnostics.Timing || *timing
	p := tea.NewProgram(console.New(b, hub, showTiming))
	_, tuiErr := p.Run()

	if err := b.Disconnect(); err != nil && !errors.Is(err, bridge.ErrNotConnected) {
		fmt.Fprintf(os.Stderr, "Disconnect failed: %v\n", err)
	}

	if tuiErr != nil {
		fmt.Fprintf(os.Stderr, "Console error: %v\n", tuiErr)
		return 1
	}
	return 0
}

func runGateway(args []string) int {
	fs := flag.NewFlagSet("gateway", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	listen := fs.String("listen", "", "Listen address (overrides gateway.listen)")
	pidFile := fs.String("pidfile", "", "Acquire a PID lock at this path to prevent a second gateway")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigAt(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	if *listen != "" {
		cfg.Gateway.Listen = *listen
	}
	if cfg.Gateway.APIKey == "" {
		fmt.Fprintln(os.Stderr, "Error: gateway.api_key is required to run the gateway")
		return 1
	}

	log.Setup(cfg.Log.Level)
	logger := log.WithComponent("main")
	logger.Info("sqlbridge starting", "version", version, "mode", "gateway")

	if *pidFile != "" {
		pidLock, err := lock.AcquirePIDLock(*pidFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: another gateway appears to be running: %v\n", err)
			return 1
		}
		defer func() { _ = pidLock.Release() }()
		logger.Info("acquired pid lock", "path", pidLock.Path())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recorder, closeRecorder, err := openRecorder(ctx, cfg)
	if err != nil {
		logger.Error("failed to open history store", "path", cfg.History.Path, "error", err)
		return 1
	}
	defer closeRecorder()

	hub := events.NewHub(events.DefaultCapacity)
	b := bridge.New(cfg, hub, recorder)

	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	err = b.Connect(connectCtx)
	connectCancel()
	if err != nil {
		logger.Error("worker connect failed", "error", err)
		return 1
	}
	defer func() { _ = b.Disconnect() }()

	srv := gateway.New(gateway.Config{
		Listen:            cfg.Gateway.Listen,
		APIKey:            cfg.Gateway.APIKey,
		MaxConcurrentSync: cfg.Gateway.MaxConcurrentSync,
		SyncTimeout:       cfg.Gateway.SyncTimeout,
	}, b, hub, log.WithComponent("gateway"))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	logger.Info("sqlbridge running (press Ctrl+C to stop)", "listen", cfg.Gateway.Listen)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("gateway failed", "error", err)
			return 1
		}
	}

	logger.Info("sqlbridge stopped")
	return 0
}

// --- HISTORY NOUN ---

func runHistoryNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: sqlbridge history <recent|prune> [flags]")
		return 1
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "recent":
		return runHistoryRecent(actionArgs)
	case "prune":
		return runHistoryPrune(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown history action: %s\n", action)
		return 1
	}
}

// historyRow is the JSON presentation of a history entry, with durations in
// whole milliseconds.
type historyRow struct {
	ID          string    `json:"id"`
	MsgID       int64     `json:"msg_id"`
	ConnID      string    `json:"conn_id"`
	Fingerprint string    `json:"fingerprint"`
	SQL         string    `json:"sql"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	ElapsedMS   int64     `json:"elapsed_ms"`
	TransportMS int64     `json:"transport_ms"`
	WorkerMS    int64     `json:"worker_ms"`
}

func toHistoryRow(e history.Entry) historyRow {
	return historyRow{
		ID:          e.ID,
		MsgID:       e.MsgID,
		ConnID:      e.ConnID,
		Fingerprint: e.Fingerprint,
		SQL:         e.SQL,
		Status:      e.Status,
		Error:       e.Error,
		SubmittedAt: e.SubmittedAt,
		ElapsedMS:   e.Elapsed.Milliseconds(),
		TransportMS: e.Transport.Milliseconds(),
		WorkerMS:    e.WorkerTime.Milliseconds(),
	}
}

func runHistoryRecent(args []string) int {
	fs := flag.NewFlagSet("recent", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	limit := fs.Int("limit", 20, "Maximum entries to show")
	fingerprint := fs.String("fingerprint", "", "Filter by statement fingerprint")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigAt(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	log.Setup("off")
	ctx := context.Background()

	store, err := history.Open(ctx, cfg.History.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history store: %v\n", err)
		return 1
	}
	defer store.Close()

	var entries []history.Entry
	if *fingerprint != "" {
		entries, err = store.ByFingerprint(ctx, *fingerprint, *limit)
	} else {
		entries, err = store.Recent(ctx, *limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read history: %v\n", err)
		return 1
	}

	if *jsonOut {
		rows := make([]historyRow, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, toHistoryRow(e))
		}
		data, _ := json.MarshalIndent(rows, "", "  ")
		fmt.Println(string(data))
		return 0
	}

	if len(entries) == 0 {
		fmt.Println("No history entries.")
		return 0
	}
	for _, e := range entries {
		line := fmt.Sprintf("%s  %-5s  %6dms  %s",
			e.SubmittedAt.Local().Format("2006-01-02 15:04:05"),
			e.Status,
			e.Elapsed.Milliseconds(),
			truncateSQL(e.SQL, 60),
		)
		if e.Error != "" {
			line += "  (" + e.Error + ")"
		}
		fmt.Println(line)
	}
	return 0
}

func runHistoryPrune(args []string) int {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	retention := fs.Duration("retention", 0, "Retention window (defaults to history.retention)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigAt(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	window := *retention
	if window == 0 {
		window = cfg.History.Retention
	}

	log.Setup("off")
	ctx := context.Background()

	store, err := history.Open(ctx, cfg.History.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open history store: %v\n", err)
		return 1
	}
	defer store.Close()

	pruned, err := store.Prune(ctx, window)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Prune failed: %v\n", err)
		return 1
	}

	fmt.Printf("Pruned %d entries older than %s\n", pruned, window)
	return 0
}

func truncateSQL(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

// --- CONFIG NOUN ---

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: sqlbridge config <show|get> [flags]")
		return 1
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "show":
		return runConfigShow(actionArgs)
	case "get":
		return runConfigGet(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigAt(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	redacted, err := cfg.Redacted()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(redacted, "", "  ")
		fmt.Println(string(data))
	} else {
		data, _ := yaml.Marshal(redacted)
		fmt.Print(string(data))
	}
	return 0
}

func runConfigGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: sqlbridge config get <path> [--json]")
		return 1
	}
	path := fs.Arg(0)

	cfg, err := loadConfigAt(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	val, err := cfg.GetPath(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(val, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("%v\n", val)
	}
	return 0
}

// --- DOCTOR ---

func runDoctor(args []string) int {
	fs := flag.NewFlagSet("doctor", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := loadConfigAt(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}
