// Package config loads the scheduler configuration from YAML or JSON files
// with K_ prefixed environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/groundsched/core/factory"
	"github.com/kilianp07/groundsched/core/metrics"
	"github.com/kilianp07/groundsched/infra/mqtt"
	"github.com/kilianp07/groundsched/infra/persistence"
)

type Config struct {
	Station     StationConfig        `json:"station"`
	Storage     factory.ModuleConfig `json:"storage"`
	Logging     LoggingConfig        `json:"logging"`
	Diagnostics DiagnosticsConfig    `json:"diagnostics"`
	MQTT        mqtt.Config          `json:"mqtt"`
	Metrics     metrics.Config       `json:"metrics"`
	Sentry      SentryConfig         `json:"sentry"`
	Expiry      ExpiryConfig         `json:"expiry"`
	API         APIConfig            `json:"api"`
}

// Load reads path, applies environment overrides, then defaults and
// validation. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Station.SetDefaults()
	c.Logging.SetDefaults()
	c.Diagnostics.SetDefaults()
	c.Expiry.SetDefaults()
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "groundsched-" + c.Station.Name
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "groundsched/" + c.Station.Name
	}
	c.Sentry.Station = c.Station.Name
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Station.Validate(); err != nil {
		return fmt.Errorf("station: %w", err)
	}
	if !persistence.Known(c.Storage.Type) {
		return fmt.Errorf("storage: unknown type %q", c.Storage.Type)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Diagnostics.Validate(); err != nil {
		return fmt.Errorf("diagnostics: %w", err)
	}
	if err := c.Expiry.Validate(); err != nil {
		return fmt.Errorf("expiry: %w", err)
	}
	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if c.MQTT.QoS > 2 || c.MQTT.LWTQoS > 2 {
		return fmt.Errorf("mqtt: qos must be 0, 1 or 2")
	}
	return nil
}
