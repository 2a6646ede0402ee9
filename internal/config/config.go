package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models oversight.yml.
type Config struct {
	Geofence struct {
		BufferMeters   float64 `yaml:"buffer_meters"`
		Strategy       string  `yaml:"strategy"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
	} `yaml:"geofence"`
	Violations struct {
		DefaultFixDeadlineDays int `yaml:"default_fix_deadline_days"`
	} `yaml:"violations"`
	Files struct {
		Dir string `yaml:"dir"`
	} `yaml:"files"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig describes one outbound event subscription.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

var logLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with ov config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Geofence.BufferMeters < 0 {
		return fmt.Errorf("config.geofence.buffer_meters must not be negative")
	}
	switch c.Geofence.Strategy {
	case "proximity", "containment":
	default:
		return fmt.Errorf("config.geofence.strategy must be 'proximity' or 'containment'")
	}
	if c.Geofence.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.geofence.timeout_seconds must be positive")
	}
	if c.Violations.DefaultFixDeadlineDays < 0 {
		return fmt.Errorf("config.violations.default_fix_deadline_days must not be negative")
	}
	if _, ok := logLevels[strings.ToLower(c.Logging.Level)]; !ok {
		return fmt.Errorf("config.logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
		for _, evt := range hook.Events {
			if strings.TrimSpace(evt) == "" {
				return fmt.Errorf("config.webhooks[%d] has empty event name", i)
			}
		}
	}
	return nil
}

// FilesDir resolves the upload directory against the workspace.
func (c *Config) FilesDir(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	dir := c.Files.Dir
	if dir == "" {
		return filepath.Join(workspace, ".oversight", "uploads")
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(workspace, dir)
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "oversight.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `geofence:
  # added to the GPS accuracy reported by the device
  buffer_meters: 100
  # proximity: nearest vertex or centroid; containment: strict point-in-polygon
  strategy: proximity
  timeout_seconds: 10

violations:
  default_fix_deadline_days: 7

files:
  dir: ""

logging:
  level: info

webhooks: []
`
