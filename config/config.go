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

	"github.com/kilianp07/fleettrack/core/metrics"
	"github.com/kilianp07/fleettrack/infra/mqtt"
)

// EnvPrefix is the prefix of environment overrides. Nested keys are joined
// with "__": FLEETTRACK_PROVIDER__TOKEN sets provider.token.
const EnvPrefix = "FLEETTRACK_"

type Config struct {
	LogLevel string         `json:"log_level"`
	Server   ServerConfig   `json:"server"`
	Provider ProviderConfig `json:"provider"`
	Tracker  TrackerConfig  `json:"tracker"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Metrics  metrics.Config `json:"metrics"`
	Audit    AuditConfig    `json:"audit"`
	Sentry   SentryConfig   `json:"sentry"`
}

// MQTTConfig enables the position publisher.
type MQTTConfig struct {
	Enabled     bool `json:"enabled"`
	mqtt.Config `json:",squash"`
}

// Load reads the YAML or JSON file at path, then applies environment
// overrides. An empty path loads the environment only.
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
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
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

// SetDefaults fills every section's unset values.
func (c *Config) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.Server.SetDefaults()
	c.Provider.SetDefaults()
	c.Tracker.SetDefaults()
	c.Audit.SetDefaults()
}

// Validate checks every section. A missing provider token is not an error
// here: it surfaces as a configuration error on the first login.
func (c Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Provider.Validate(); err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	if err := c.Tracker.Validate(); err != nil {
		return fmt.Errorf("tracker: %w", err)
	}
	if err := c.Audit.Validate(); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt: broker is required when enabled")
	}
	return nil
}
