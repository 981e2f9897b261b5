package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DiscoverConfigPath returns the first configuration file found in the
// standard locations. Checked in order: $SQLBRIDGE_CONFIG, ./sqlbridge.yaml,
// ./config.yaml, ~/.config/sqlbridge/config.yaml, /etc/sqlbridge/config.yaml.
func DiscoverConfigPath() (string, error) {
	if env := os.Getenv("SQLBRIDGE_CONFIG"); env != "" {
		if fileExists(env) {
			return env, nil
		}
		return "", fmt.Errorf("SQLBRIDGE_CONFIG points to %s but it does not exist", env)
	}

	candidates := []string{
		"sqlbridge.yaml",
		"config.yaml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "sqlbridge", "config.yaml"))
	}
	candidates = append(candidates, "/etc/sqlbridge/config.yaml")

	for _, path := range candidates {
		if fileExists(path) {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration found; looked for %v (set SQLBRIDGE_CONFIG or pass --config)", candidates)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
