package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	// Zero is a meaningful value for these keys, so ApplyDefaults must
	// know whether the file set them.
	var keys explicitKeys
	if err := yaml.Unmarshal([]byte(expanded), &keys); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.Manager.baseDelaySet = keys.Manager.ReconnectBaseDelay != nil
	cfg.Slack.maxRetriesSet = keys.Slack.MaxRetries != nil

	return &cfg, nil
}

// explicitKeys mirrors the keys whose zero value must survive defaults.
type explicitKeys struct {
	Manager struct {
		ReconnectBaseDelay *time.Duration `yaml:"reconnect_base_delay"`
	} `yaml:"manager"`
	Slack struct {
		MaxRetries *int `yaml:"max_retries"`
	} `yaml:"slack"`
}

// LoadWithDefaults loads config and applies default values.
func LoadWithDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// LoadAndValidate loads config, applies defaults, and validates.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns a configuration with every default applied. The
// in-memory store is selected, which only the monitor and probe commands
// accept.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}
