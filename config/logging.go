package config

import (
	"fmt"

	"github.com/kilianp07/groundsched/infra/diaglog"
)

// LoggingConfig controls the application log.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks the level name.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("unknown level %s", c.Level)
}

// DiagnosticsConfig defines the classification log and its rotation.
type DiagnosticsConfig struct {
	Enabled        bool `json:"enabled"`
	diaglog.Config `json:",squash"`
}

// SetDefaults applies sane defaults.
func (c *DiagnosticsConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "diagnostics.jsonl"
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 10
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 30
	}
}

// Validate checks mandatory fields.
func (c DiagnosticsConfig) Validate() error {
	if c.Enabled && c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}
