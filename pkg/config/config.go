// Package config loads the bridge configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tempest-bridge/tempest-go/pkg/cloud"
	"github.com/tempest-bridge/tempest-go/pkg/discovery"
	"github.com/tempest-bridge/tempest-go/pkg/oauth"
)

// ErrInvalid is returned for configurations that fail validation.
var ErrInvalid = errors.New("invalid configuration")

// Config is the bridge configuration.
type Config struct {
	StateDir string      `yaml:"state_dir"`
	LogLevel string      `yaml:"log_level"`
	Local    LocalConfig `yaml:"local"`
	Cloud    CloudConfig `yaml:"cloud"`
	MQTT     MQTTConfig  `yaml:"mqtt"`
	Web      WebConfig   `yaml:"web"`
	Retry    RetryConfig `yaml:"retry"`
}

// LocalConfig configures the UDP listener.
type LocalConfig struct {
	Address          string        `yaml:"address"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`

	// CaptureFile, when set, records every datagram to a CBOR capture log.
	CaptureFile string `yaml:"capture_file"`
}

// CloudConfig configures the REST client and OAuth endpoints.
type CloudConfig struct {
	Enabled        bool          `yaml:"enabled"`
	BaseURL        string        `yaml:"base_url"`
	ClientID       string        `yaml:"client_id"`
	AuthorizeURL   string        `yaml:"authorize_url"`
	TokenURL       string        `yaml:"token_url"`
	RedirectURL    string        `yaml:"redirect_url"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

// MQTTConfig configures the MQTT entity sink.
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"`
	ClientID        string `yaml:"client_id"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	BaseTopic       string `yaml:"base_topic"`
}

// WebConfig configures the HTTP API.
type WebConfig struct {
	Listen       string `yaml:"listen"`
	Advertise    bool   `yaml:"advertise"`
	InstanceName string `yaml:"instance_name"`
}

// RetryConfig configures setup retries.
type RetryConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StateDir: ".",
		LogLevel: "info",
		Local: LocalConfig{
			Address:          fmt.Sprintf(":%d", discovery.DefaultPort),
			DiscoveryTimeout: discovery.DefaultDiscoveryTimeout,
		},
		Cloud: CloudConfig{
			Enabled:        true,
			BaseURL:        cloud.DefaultBaseURL,
			ClientID:       oauth.ClientID,
			AuthorizeURL:   oauth.AuthorizeURL,
			TokenURL:       oauth.TokenURL,
			UpdateInterval: cloud.DefaultUpdateInterval,
		},
		MQTT: MQTTConfig{
			DiscoveryPrefix: "homeassistant",
			BaseTopic:       "tempest",
		},
		Web: WebConfig{
			Listen:       ":8088",
			Advertise:    true,
			InstanceName: "Tempest Bridge",
		},
		Retry: RetryConfig{
			Initial: 5 * time.Second,
			Max:     5 * time.Minute,
		},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q", c.LogLevel))
	}
	if c.Local.Address == "" {
		problems = append(problems, "local.address is empty")
	}
	if c.Local.DiscoveryTimeout <= 0 {
		problems = append(problems, "local.discovery_timeout must be positive")
	}
	if c.Cloud.Enabled && c.Cloud.UpdateInterval < time.Second {
		problems = append(problems, "cloud.update_interval must be at least 1s")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		problems = append(problems, "mqtt.broker is required when mqtt is enabled")
	}
	if c.Retry.Max > 0 && c.Retry.Max < c.Retry.Initial {
		problems = append(problems, "retry.max is below retry.initial")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// EntriesPath returns the entry store file.
func (c Config) EntriesPath() string {
	return filepath.Join(c.StateDir, "entries.json")
}
