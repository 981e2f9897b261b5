// Package doctor validates sqlbridge configuration and worker setup.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/mattjoyce/sqlbridge/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor runs setup checks that config loading cannot: filesystem state,
// listen addresses, and cross-field coherence.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.checkWorker(r)
	d.checkDatabase(r)
	d.checkHistory(r)
	d.checkGateway(r)
	d.warnUnresolvedEnvVars(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// workerDrivers are the engines the reference worker accepts. Custom
// workers may support more, so an unknown driver is only a warning.
var workerDrivers = map[string]bool{
	"sqlite":   true,
	"sqlite3":  true,
	"postgres": true,
	"pgx":      true,
}

// checkWorker verifies the worker command can actually be launched.
func (d *Doctor) checkWorker(r *Result) {
	cmd := d.cfg.Worker.Command
	if cmd == "" {
		d.addError(r, "worker", "worker.command", "worker.command is required")
		return
	}
	if _, err := exec.LookPath(cmd); err != nil {
		d.addError(r, "worker", "worker.command", fmt.Sprintf("cannot launch worker: %v", err))
	}
	if d.cfg.Worker.TerminateGrace > time.Minute {
		d.addWarning(r, "worker", "worker.terminate_grace",
			fmt.Sprintf("grace of %s delays shutdown after SIGTERM", d.cfg.Worker.TerminateGrace))
	}
}

// checkDatabase flags coordinate combinations the worker will reject or
// silently ignore.
func (d *Doctor) checkDatabase(r *Result) {
	db := d.cfg.Database
	if !workerDrivers[db.Driver] {
		d.addWarning(r, "database", "database.driver",
			fmt.Sprintf("driver %q is not supported by the reference worker", db.Driver))
	}
	switch db.Driver {
	case "sqlite", "sqlite3":
		if db.User != "" || db.Password != "" {
			d.addWarning(r, "database", "database.user", "sqlite ignores database credentials")
		}
		if db.Port != 0 {
			d.addWarning(r, "database", "database.port", "sqlite ignores database.host and database.port")
		}
	case "postgres", "pgx":
		if strings.ContainsAny(db.Name, `/\`) {
			d.addWarning(r, "database", "database.name",
				fmt.Sprintf("%q looks like a file path; postgres expects a database name", db.Name))
		}
		if db.User == "" {
			d.addWarning(r, "database", "database.user", "no database user configured")
		}
	}
}

// checkHistory verifies the history store location is usable.
func (d *Doctor) checkHistory(r *Result) {
	h := d.cfg.History
	if !h.Enabled {
		return
	}
	if info, err := os.Stat(h.Path); err == nil && info.IsDir() {
		d.addError(r, "history", "history.path", fmt.Sprintf("%q is a directory", h.Path))
	}
	sqlite := d.cfg.Database.Driver == "sqlite" || d.cfg.Database.Driver == "sqlite3"
	if sqlite && h.Path == d.cfg.Database.Name {
		d.addWarning(r, "history", "history.path", "history shares the worker's sqlite database file")
	}
	if h.Retention < 24*time.Hour {
		d.addWarning(r, "history", "history.retention",
			fmt.Sprintf("retention of %s keeps less than a day", h.Retention))
	}
}

// checkGateway verifies the listen address and flags weak settings.
func (d *Doctor) checkGateway(r *Result) {
	gw := d.cfg.Gateway
	if !gw.Enabled {
		return
	}
	host, _, err := net.SplitHostPort(gw.Listen)
	if err != nil {
		d.addError(r, "gateway", "gateway.listen",
			fmt.Sprintf("invalid listen address %q: %v", gw.Listen, err))
	} else if host == "" || host == "0.0.0.0" || host == "::" {
		d.addWarning(r, "gateway", "gateway.listen",
			fmt.Sprintf("%q exposes the gateway on all interfaces", gw.Listen))
	}
	if gw.APIKey == "" {
		d.addError(r, "gateway", "gateway.api_key", "gateway.api_key is required when the gateway is enabled")
	} else if len(gw.APIKey) < 16 {
		d.addWarning(r, "gateway", "gateway.api_key",
			fmt.Sprintf("api key is only %d characters", len(gw.APIKey)))
	}
	if gw.SyncTimeout > 10*time.Minute {
		d.addWarning(r, "gateway", "gateway.sync_timeout",
			fmt.Sprintf("sync timeout of %s holds HTTP connections open a long time", gw.SyncTimeout))
	}
}

var envVarRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// warnUnresolvedEnvVars flags ${VAR} placeholders that survived config
// interpolation in fields load-time validation does not police.
func (d *Doctor) warnUnresolvedEnvVars(r *Result) {
	fields := []struct {
		field string
		value string
	}{
		{"database.user", d.cfg.Database.User},
		{"database.host", d.cfg.Database.Host},
		{"gateway.api_key", d.cfg.Gateway.APIKey},
	}
	for _, f := range fields {
		for _, m := range envVarRe.FindAllStringSubmatch(f.value, -1) {
			if os.Getenv(m[1]) == "" {
				d.addWarning(r, "env_vars", f.field,
					fmt.Sprintf("environment variable ${%s} is not set", m[1]))
			}
		}
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
