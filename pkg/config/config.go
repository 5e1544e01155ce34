// Package config loads and validates the Tether configuration from YAML
// with environment overrides. Configuration changes always restart the
// bridge connection, so the loader is also used by the file watcher.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable overrides, applied after the file.
const (
	EnvEnabled   = "TETHER_BRIDGE_ENABLED"
	EnvEndpoint  = "TETHER_BRIDGE_ENDPOINT"
	EnvAuthToken = "TETHER_BRIDGE_TOKEN"
)

// Config is the complete Tether configuration.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Workspace WorkspaceConfig `yaml:"workspace"`
	Logging   LoggingConfig   `yaml:"logging"`
	Actions   ActionsConfig   `yaml:"actions"`
}

// BridgeConfig drives the external agent connection.
type BridgeConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AuthToken string `yaml:"auth_token"`
}

// WorkspaceConfig lists the workspace roots used for relative URI
// resolution and context snapshots.
type WorkspaceConfig struct {
	Roots []string `yaml:"roots"`
}

// LoggingConfig controls the JSONL log sink.
type LoggingConfig struct {
	Dir      string `yaml:"dir"`
	MinLevel string `yaml:"min_level"`
}

// ActionsConfig holds action-tracking policy knobs.
type ActionsConfig struct {
	// Deadline bounds how long an invoked remote action may stay in-flight
	// without a completion frame. Zero keeps actions in-flight forever.
	Deadline time.Duration `yaml:"deadline"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Bridge: BridgeConfig{Enabled: true},
		Logging: LoggingConfig{
			MinLevel: "info",
		},
	}
}

// Load reads the config file at path (a missing file is not an error),
// merges it over the defaults, applies environment overrides, and
// validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvEnabled)); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Bridge.Enabled = enabled
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvEndpoint)); v != "" {
		cfg.Bridge.Endpoint = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvAuthToken)); v != "" {
		cfg.Bridge.AuthToken = v
	}
}

// Validate checks field formats. A missing endpoint is not an error here:
// the bridge reports that as a connection Error state so the user sees it
// where the connection status is shown rather than at startup.
func (c Config) Validate() error {
	if ep := strings.TrimSpace(c.Bridge.Endpoint); ep != "" {
		if !strings.HasPrefix(ep, "ws://") && !strings.HasPrefix(ep, "wss://") {
			return fmt.Errorf("bridge endpoint %q must use ws:// or wss://", ep)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.MinLevel)) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.MinLevel)
	}
	if c.Actions.Deadline < 0 {
		return fmt.Errorf("actions deadline must not be negative")
	}
	return nil
}
