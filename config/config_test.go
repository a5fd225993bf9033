package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `station:
  name: "gs-toulouse"
  timezone: "Europe/Paris"
storage:
  type: "sqlite"
  conf:
    path: "/var/lib/groundsched/schedule.db"
    timeout: "3s"
logging:
  level: "debug"
diagnostics:
  enabled: true
  path: "/var/log/groundsched/diag.jsonl"
  max_size_mb: 2
mqtt:
  broker: "tcp://localhost:1883"
  username: "user"
  qos: 1
metrics:
  prometheus_addr: ":9102"
  sinks:
    - type: "prometheus"
sentry:
  dsn: "https://key@sentry.example/1"
expiry:
  interval: "30s"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gs-toulouse", cfg.Station.Name)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, "/var/lib/groundsched/schedule.db", cfg.Storage.Conf["path"])
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Diagnostics.Enabled)
	assert.Equal(t, "/var/log/groundsched/diag.jsonl", cfg.Diagnostics.Path)
	assert.Equal(t, 2, cfg.Diagnostics.MaxSizeMB)
	assert.Equal(t, 5, cfg.Diagnostics.MaxBackups)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, "groundsched-gs-toulouse", cfg.MQTT.ClientID)
	assert.Equal(t, "groundsched/gs-toulouse/schedule", cfg.MQTT.ScheduleTopic())
	assert.Equal(t, ":9102", cfg.Metrics.PrometheusAddr)
	require.Len(t, cfg.Metrics.Sinks, 1)
	assert.Equal(t, "prometheus", cfg.Metrics.Sinks[0].Type)
	assert.Equal(t, "gs-toulouse", cfg.Sentry.Station)
	assert.Equal(t, 30*time.Second, cfg.Expiry.Interval)
}

func TestLoadJSONDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{"station": {"name": "gs-1"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "UTC", cfg.Station.Timezone)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "diagnostics.jsonl", cfg.Diagnostics.Path)
	assert.Equal(t, time.Minute, cfg.Expiry.Interval)
	assert.False(t, cfg.MQTT.Enabled())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("K_LOGGING__LEVEL", "warn")
	t.Setenv("K_STATION__NAME", "gs-env")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "gs-env", cfg.Station.Name)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"format", "config.toml", "x = 1"},
		{"level", "config.yaml", "logging:\n  level: loud\n"},
		{"timezone", "config.yaml", "station:\n  timezone: Mars/Olympus\n"},
		{"storage", "config.yaml", "storage:\n  type: tape\n"},
		{"expiry", "config.yaml", "expiry:\n  interval: -1s\n"},
		{"qos", "config.yaml", "mqtt:\n  qos: 3\n"},
		{"api", "config.yaml", "api:\n  addr: nowhere\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
