package doctor

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/sqlbridge/internal/config"
)

func validConfig(t *testing.T) *config.Config {
	cfg := config.Defaults()
	cfg.Worker.Command = writeWorkerStub(t, 0755)
	return cfg
}

func writeWorkerStub(t *testing.T, mode os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	if err := os.WriteFile(path, []byte("#!/bin/bash\necho connected\n"), mode); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := New(validConfig(t)).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
}

func TestValidate_MissingWorkerCommand(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Worker.Command = ""
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "worker", "required")
}

func TestValidate_WorkerNotFound(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Worker.Command = filepath.Join(t.TempDir(), "missing-worker")
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "worker", "cannot launch")
}

func TestValidate_WorkerNotExecutable(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Worker.Command = writeWorkerStub(t, 0644)
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "worker", "cannot launch")
}

func TestValidate_LongTerminateGraceWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Worker.TerminateGrace = 2 * time.Minute
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got: %v", r.Errors)
	}
	assertHasWarning(t, r, "worker", "delays shutdown")
}

func TestValidate_UnknownDriverWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Database.Driver = "oracle"
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got: %v", r.Errors)
	}
	assertHasWarning(t, r, "database", "not supported")
}

func TestValidate_SqliteIgnoresCredentials(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Database.User = "app"
	r := New(cfg).Validate()
	assertHasWarning(t, r, "database", "credentials")
}

func TestValidate_SqliteIgnoresPort(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Database.Port = 5432
	r := New(cfg).Validate()
	assertHasWarning(t, r, "database", "ignores database.host")
}

func TestValidate_PostgresNameLooksLikePath(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Database.Driver = "postgres"
	cfg.Database.User = "app"
	r := New(cfg).Validate()
	// Defaults leave database.name pointing at a sqlite file.
	assertHasWarning(t, r, "database", "file path")
}

func TestValidate_PostgresMissingUserWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Database.Driver = "postgres"
	cfg.Database.Name = "appdb"
	r := New(cfg).Validate()
	assertHasWarning(t, r, "database", "no database user")
}

func TestValidate_HistoryPathIsDirectory(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.History.Enabled = true
	cfg.History.Path = t.TempDir()
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "history", "directory")
}

func TestValidate_HistorySharesSqliteFile(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.History.Enabled = true
	cfg.History.Path = cfg.Database.Name
	r := New(cfg).Validate()
	assertHasWarning(t, r, "history", "shares")
}

func TestValidate_ShortRetentionWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.History.Enabled = true
	cfg.History.Path = filepath.Join(t.TempDir(), "history.db")
	cfg.History.Retention = time.Hour
	r := New(cfg).Validate()
	assertHasWarning(t, r, "history", "less than a day")
}

func TestValidate_GatewayListenInvalid(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Gateway.Enabled = true
	cfg.Gateway.APIKey = "0123456789abcdef0123456789abcdef"
	cfg.Gateway.Listen = "no-port-here"
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "gateway", "invalid listen")
}

func TestValidate_GatewayAllInterfacesWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Gateway.Enabled = true
	cfg.Gateway.APIKey = "0123456789abcdef0123456789abcdef"
	cfg.Gateway.Listen = "0.0.0.0:8833"
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got: %v", r.Errors)
	}
	assertHasWarning(t, r, "gateway", "all interfaces")
}

func TestValidate_GatewayMissingKey(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Gateway.Enabled = true
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "gateway", "api_key is required")
}

func TestValidate_GatewayShortKeyWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Gateway.Enabled = true
	cfg.Gateway.APIKey = "short"
	r := New(cfg).Validate()
	assertHasWarning(t, r, "gateway", "characters")
}

func TestValidate_UnresolvedEnvVarWarns(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Gateway.APIKey = "${DOCTOR_TEST_UNSET_VAR_XYZ}"
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got: %v", r.Errors)
	}
	assertHasWarning(t, r, "env_vars", "DOCTOR_TEST_UNSET_VAR_XYZ")
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:  false,
		Errors: []Issue{{Category: "test", Message: "bad thing"}},
	}
	out, err := FormatJSON(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "bad thing") {
		t.Fatalf("expected JSON to contain error message, got: %s", out)
	}
}

func TestFormatHuman_Valid(t *testing.T) {
	t.Parallel()
	r := &Result{Valid: true}
	out := FormatHuman(r)
	if !strings.Contains(out, "valid") {
		t.Fatalf("expected 'valid' in output, got: %s", out)
	}
}

func TestFormatHuman_Errors(t *testing.T) {
	t.Parallel()
	r := &Result{
		Valid:  false,
		Errors: []Issue{{Category: "test", Field: "x.y", Message: "broken"}},
	}
	out := FormatHuman(r)
	if !strings.Contains(out, "ERROR") || !strings.Contains(out, "broken") {
		t.Fatalf("expected error in output, got: %s", out)
	}
}

// --- helpers ---

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && strings.Contains(e.Message, substring) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return
		}
	}
	t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
}
