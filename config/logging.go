package config

import (
	"slices"

	"github.com/kilianp07/pvbess/core/factory"
	"github.com/kilianp07/pvbess/core/model"
	"github.com/kilianp07/pvbess/core/steplog"
)

// LoggingConfig defines settings for step log storage and rotation.
type LoggingConfig struct {
	// Backend selects the log store type: "jsonl", "rotating", "sqlite" or
	// "none".
	Backend string `json:"backend"`
	// Path is the file location of the log store.
	Path string `json:"path"`
	// MaxSizeMB triggers rotation when the file exceeds this size in megabytes.
	MaxSizeMB int `json:"max_size_mb"`
	// MaxBackups limits the number of rotated files to keep.
	MaxBackups int `json:"max_backups"`
	// MaxAgeDays removes rotated files older than this number of days.
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "none"
	}
	if c.Path == "" {
		switch c.Backend {
		case "sqlite":
			c.Path = "steps.db"
		default:
			c.Path = "steps.jsonl"
		}
	}
}

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	if c.Backend == "none" {
		return nil
	}
	if types := steplog.Registry.Types(); !slices.Contains(types, c.Backend) {
		return model.ConfigErrorf("logging.backend", "unknown backend %q, expected none or one of %v", c.Backend, types)
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return model.ConfigErrorf("logging", "rotation limits must be >= 0")
	}
	return nil
}

// Enabled reports whether step records are persisted.
func (c LoggingConfig) Enabled() bool { return c.Backend != "none" }

// Store returns the module configuration of the step log store.
func (c LoggingConfig) Store() factory.ModuleConfig {
	conf := map[string]any{"path": c.Path}
	if c.Backend == "rotating" {
		if c.MaxSizeMB > 0 {
			conf["max_size_mb"] = c.MaxSizeMB
		}
		if c.MaxBackups > 0 {
			conf["max_backups"] = c.MaxBackups
		}
		if c.MaxAgeDays > 0 {
			conf["max_age_days"] = c.MaxAgeDays
		}
	}
	return factory.ModuleConfig{Type: c.Backend, Conf: conf}
}
