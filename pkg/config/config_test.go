package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, cfg.Validate())
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeFile(t, `
state_dir: /var/lib/tempest
log_level: debug
local:
  address: "0.0.0.0:50222"
  discovery_timeout: 5s
  capture_file: /tmp/udp.cbor
cloud:
  update_interval: 2m
mqtt:
  enabled: true
  broker: tcp://broker:1883
web:
  listen: ":9000"
  advertise: false
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/tempest", cfg.StateDir)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:50222", cfg.Local.Address)
	assert.Equal(t, 5*time.Second, cfg.Local.DiscoveryTimeout)
	assert.Equal(t, "/tmp/udp.cbor", cfg.Local.CaptureFile)
	assert.Equal(t, 2*time.Minute, cfg.Cloud.UpdateInterval)
	assert.True(t, cfg.Cloud.Enabled, "unset fields keep defaults")
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "homeassistant", cfg.MQTT.DiscoveryPrefix)
	assert.Equal(t, ":9000", cfg.Web.Listen)
	assert.False(t, cfg.Web.Advertise)
	assert.Equal(t, "/var/lib/tempest/entries.json", cfg.EntriesPath())
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeFile(t, "local: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(writeFile(t, "log_level: loud\nmqtt:\n  enabled: true\n"))
		assert.ErrorIs(t, err, ErrInvalid)
		assert.ErrorContains(t, err, "log_level")
		assert.ErrorContains(t, err, "mqtt.broker")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"empty address", func(c *Config) { c.Local.Address = "" }, false},
		{"zero timeout", func(c *Config) { c.Local.DiscoveryTimeout = 0 }, false},
		{"fast polling", func(c *Config) { c.Cloud.UpdateInterval = time.Millisecond }, false},
		{"fast polling with cloud disabled", func(c *Config) {
			c.Cloud.Enabled = false
			c.Cloud.UpdateInterval = 0
		}, true},
		{"retry max below initial", func(c *Config) { c.Retry.Max = time.Second }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}
