package config

import (
	"fmt"
	"time"
)

// Config represents the complete sqlbridge configuration.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Database    DatabaseConfig    `yaml:"database"`
	Worker      WorkerConfig      `yaml:"worker"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	History     HistoryConfig     `yaml:"history"`
	Gateway     GatewayConfig     `yaml:"gateway,omitempty"`
}

// LogConfig defines logging settings. Level "off" disables output entirely.
type LogConfig struct {
	Level string `yaml:"level"`
}

// DatabaseConfig holds the coordinates of the database the worker connects
// to. The bridge never dials these itself; they are forwarded to the worker
// process environment verbatim.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// WorkerConfig defines how the worker subprocess is launched and read.
type WorkerConfig struct {
	Command        string        `yaml:"command"`
	Args           []string      `yaml:"args,omitempty"`
	Encoding       string        `yaml:"encoding"`
	TerminateGrace time.Duration `yaml:"terminate_grace"`
}

// DiagnosticsConfig toggles timing diagnostics. When enabled, per-query
// transport/end-to-end/worker durations are logged; they are never returned
// to callers.
type DiagnosticsConfig struct {
	Timing bool `yaml:"timing"`
}

// HistoryConfig defines the local query history store.
type HistoryConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// GatewayConfig defines the optional HTTP gateway settings.
type GatewayConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Listen            string        `yaml:"listen"`
	APIKey            string        `yaml:"api_key"`
	MaxConcurrentSync int           `yaml:"max_concurrent_sync"`
	SyncTimeout       time.Duration `yaml:"sync_timeout"`
}

// Env renders the database coordinates as SQLBRIDGE_DB_* environment
// variables for the worker process.
func (d *DatabaseConfig) Env() []string {
	return []string{
		"SQLBRIDGE_DB_DRIVER=" + d.Driver,
		"SQLBRIDGE_DB_HOST=" + d.Host,
		fmt.Sprintf("SQLBRIDGE_DB_PORT=%d", d.Port),
		"SQLBRIDGE_DB_NAME=" + d.Name,
		"SQLBRIDGE_DB_USER=" + d.User,
		"SQLBRIDGE_DB_PASSWORD=" + d.Password,
	}
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			Host:   "localhost",
			Name:   "./data/sqlbridge.db",
		},
		Worker: WorkerConfig{
			Command:        "sqlbridge-worker",
			Encoding:       "utf-8",
			TerminateGrace: 5 * time.Second,
		},
		Diagnostics: DiagnosticsConfig{
			Timing: false,
		},
		History: HistoryConfig{
			Enabled:   false,
			Path:      "./data/history.db",
			Retention: 30 * 24 * time.Hour,
		},
		Gateway: GatewayConfig{
			Enabled:           false,
			Listen:            "127.0.0.1:8833",
			MaxConcurrentSync: 10,
			SyncTimeout:       60 * time.Second,
		},
	}
}
