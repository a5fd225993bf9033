// Package persistence provides durable backends for the schedule store.
package persistence

import (
	"time"

	"github.com/kilianp07/groundsched/core/factory"
	"github.com/kilianp07/groundsched/core/schedule"
)

var registry = factory.NewRegistry[schedule.Persistence]()

// Register adds a persistence backend factory.
func Register(name string, f factory.Factory[schedule.Persistence]) error {
	return registry.Register(name, f)
}

// Known reports whether a backend named name is registered.
func Known(name string) bool { return registry.Has(name) }

// New builds the backend described by cfg. An empty type selects memory.
// File backends take an exclusive writer lock, so a second writer on the
// same storage fails with ErrLocked.
func New(cfg factory.ModuleConfig) (schedule.Persistence, error) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	return registry.Create(cfg)
}

// NewReadOnly builds the backend without the writer lock. It is meant for
// inspecting storage that a running service owns.
func NewReadOnly(cfg factory.ModuleConfig) (schedule.Persistence, error) {
	conf := make(map[string]any, len(cfg.Conf)+1)
	for k, v := range cfg.Conf {
		conf[k] = v
	}
	conf["read_only"] = true
	cfg.Conf = conf
	return New(cfg)
}

func openOptions(readOnly bool) []Option {
	if readOnly {
		return []Option{ReadOnly()}
	}
	return nil
}

func init() {
	_ = Register("memory", func(map[string]any) (schedule.Persistence, error) {
		return schedule.NewMemoryPersistence(), nil
	})
	_ = Register("jsonfile", func(conf map[string]any) (schedule.Persistence, error) {
		var c struct {
			Dir      string `json:"dir"`
			ReadOnly bool   `json:"read_only"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewJSONFileStore(c.Dir, openOptions(c.ReadOnly)...)
	})
	_ = Register("sqlite", func(conf map[string]any) (schedule.Persistence, error) {
		var c struct {
			Path     string        `json:"path"`
			Timeout  time.Duration `json:"timeout"`
			ReadOnly bool          `json:"read_only"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = "groundsched.db"
		}
		return NewSQLiteStore(c.Path, c.Timeout, openOptions(c.ReadOnly)...)
	})
}
