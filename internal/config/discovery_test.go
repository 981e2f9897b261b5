package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestDiscoverConfigPathFromEnv(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "bridge.yaml")
	writeTestFile(t, cfgPath, "worker:\n  command: w\n")

	t.Setenv("SQLBRIDGE_CONFIG", cfgPath)

	got, err := DiscoverConfigPath()
	if err != nil {
		t.Fatalf("DiscoverConfigPath() failed: %v", err)
	}
	if got != cfgPath {
		t.Errorf("expected %q, got %q", cfgPath, got)
	}
}

func TestDiscoverConfigPathEnvMissingFile(t *testing.T) {
	t.Setenv("SQLBRIDGE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := DiscoverConfigPath(); err == nil {
		t.Fatal("expected error for dangling SQLBRIDGE_CONFIG")
	}
}

func TestDiscoverConfigPathCurrentDir(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, "sqlbridge.yaml"), "worker:\n  command: w\n")

	t.Setenv("SQLBRIDGE_CONFIG", "")
	t.Chdir(tmpDir)

	got, err := DiscoverConfigPath()
	if err != nil {
		t.Fatalf("DiscoverConfigPath() failed: %v", err)
	}
	if got != "sqlbridge.yaml" {
		t.Errorf("expected sqlbridge.yaml, got %q", got)
	}
}

func TestDiscoverConfigPathPrefersProjectFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeTestFile(t, filepath.Join(tmpDir, "sqlbridge.yaml"), "a: 1\n")
	writeTestFile(t, filepath.Join(tmpDir, "config.yaml"), "b: 2\n")

	t.Setenv("SQLBRIDGE_CONFIG", "")
	t.Chdir(tmpDir)

	got, err := DiscoverConfigPath()
	if err != nil {
		t.Fatalf("DiscoverConfigPath() failed: %v", err)
	}
	if got != "sqlbridge.yaml" {
		t.Errorf("expected sqlbridge.yaml to win, got %q", got)
	}
}
