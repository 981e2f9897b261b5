package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. A directory may be given
// instead, in which case config.yaml inside it is loaded.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Apply environment variable interpolation before parsing so secrets
	// like database.password can live outside the file.
	interpolated := interpolateEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyConfigDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}

		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = defaults.Database.Driver
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = defaults.Database.Host
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = defaults.Database.Name
	}

	if cfg.Worker.Command == "" {
		cfg.Worker.Command = defaults.Worker.Command
	}
	if cfg.Worker.Encoding == "" {
		cfg.Worker.Encoding = defaults.Worker.Encoding
	}
	if cfg.Worker.TerminateGrace == 0 {
		cfg.Worker.TerminateGrace = defaults.Worker.TerminateGrace
	}

	if cfg.History.Path == "" {
		cfg.History.Path = defaults.History.Path
	}
	if cfg.History.Retention == 0 {
		cfg.History.Retention = defaults.History.Retention
	}

	if cfg.Gateway.Listen == "" {
		cfg.Gateway.Listen = defaults.Gateway.Listen
	}
	if cfg.Gateway.MaxConcurrentSync == 0 {
		cfg.Gateway.MaxConcurrentSync = defaults.Gateway.MaxConcurrentSync
	}
	if cfg.Gateway.SyncTimeout == 0 {
		cfg.Gateway.SyncTimeout = defaults.Gateway.SyncTimeout
	}
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "off": true}
	if !validLogLevels[cfg.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error, off (got %q)", cfg.Log.Level)
	}

	if cfg.Worker.Command == "" {
		return fmt.Errorf("worker.command is required")
	}

	validEncodings := map[string]bool{"utf-8": true, "utf8": true, "latin-1": true, "latin1": true, "iso-8859-1": true}
	if !validEncodings[cfg.Worker.Encoding] {
		return fmt.Errorf("worker.encoding must be one of: utf-8, latin-1, iso-8859-1 (got %q)", cfg.Worker.Encoding)
	}

	if cfg.Worker.TerminateGrace < 0 {
		return fmt.Errorf("worker.terminate_grace must not be negative")
	}

	if cfg.Database.Port < 0 || cfg.Database.Port > 65535 {
		return fmt.Errorf("database.port must be between 0 and 65535 (got %d)", cfg.Database.Port)
	}

	// Check for unresolved env vars in secrets (security: no placeholders
	// silently forwarded to the worker).
	if envVarPattern.MatchString(cfg.Database.Password) {
		matches := envVarPattern.FindStringSubmatch(cfg.Database.Password)
		if len(matches) > 1 {
			return fmt.Errorf("database.password: environment variable ${%s} is not set", matches[1])
		}
		return fmt.Errorf("database.password: unresolved environment variable")
	}

	if cfg.History.Enabled {
		if cfg.History.Path == "" {
			return fmt.Errorf("history.path is required when history is enabled")
		}
		if cfg.History.Retention <= 0 {
			return fmt.Errorf("history.retention must be positive")
		}
	}

	if cfg.Gateway.Enabled {
		if cfg.Gateway.Listen == "" {
			return fmt.Errorf("gateway.listen is required when the gateway is enabled")
		}
		if cfg.Gateway.APIKey == "" {
			return fmt.Errorf("gateway.api_key is required when the gateway is enabled")
		}
		if envVarPattern.MatchString(cfg.Gateway.APIKey) {
			matches := envVarPattern.FindStringSubmatch(cfg.Gateway.APIKey)
			if len(matches) > 1 {
				return fmt.Errorf("gateway.api_key: environment variable ${%s} is not set", matches[1])
			}
			return fmt.Errorf("gateway.api_key: unresolved environment variable")
		}
		if cfg.Gateway.MaxConcurrentSync <= 0 {
			return fmt.Errorf("gateway.max_concurrent_sync must be positive")
		}
	}

	return nil
}
