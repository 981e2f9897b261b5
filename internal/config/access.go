package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetPath retrieves a value from the configuration using a dot-notation
// path such as "worker.command" or "gateway.listen".
func (c *Config) GetPath(path string) (any, error) {
	m, err := c.asMap()
	if err != nil {
		return nil, err
	}
	return getValue(m, path)
}

// Redacted returns the configuration as a generic map with secrets masked,
// suitable for printing.
func (c *Config) Redacted() (map[string]any, error) {
	m, err := c.asMap()
	if err != nil {
		return nil, err
	}

	if db, ok := m["database"].(map[string]any); ok {
		if pw, ok := db["password"].(string); ok && pw != "" {
			db["password"] = "[redacted]"
		}
	}
	if gw, ok := m["gateway"].(map[string]any); ok {
		if key, ok := gw["api_key"].(string); ok && key != "" {
			gw["api_key"] = "[redacted]"
		}
	}
	return m, nil
}

// asMap round-trips the config through YAML so paths follow the yaml tags.
func (c *Config) asMap() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

func getValue(m map[string]any, path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any = m

	for _, part := range parts {
		if part == "" {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}
