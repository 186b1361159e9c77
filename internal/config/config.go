// Package config loads the Broker's YAML configuration file, grounded
// on cellorg's internal/config/config.go: read-unmarshal-default-
// validate, one yaml.v3 document, no environment variable layer.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level document a Broker process loads at startup.
type Config struct {
	EndpointID string        `yaml:"endpoint_id"`
	Listen     ListenConfig  `yaml:"listen"`
	Limits     LimitsConfig  `yaml:"limits"`
	Storage    StorageConfig `yaml:"storage"`
	Logging    LoggingConfig `yaml:"logging"`
	Metrics    MetricsConfig `yaml:"metrics"`
}

type ListenConfig struct {
	Addr string `yaml:"addr"`
}

type LimitsConfig struct {
	MaxUSPServices       int    `yaml:"max_usp_services"`
	MaxVendorParamGroups int    `yaml:"max_vendor_param_groups"`
	MaxDMPath            int    `yaml:"max_dm_path"`
	MaxMsgIDLen          int    `yaml:"max_msg_id_len"`
	MaxCompoundKeyParams int    `yaml:"max_compound_key_params"`
	MaxInFlightRequests  int    `yaml:"max_in_flight_requests"`
	ResponseTimeout      string `yaml:"response_timeout"`
	InstanceCacheExpiry  string `yaml:"instance_cache_expiry"`
}

type StorageConfig struct {
	Dir string `yaml:"dir"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads and parses filename, filling in defaults for anything
// left unset and rejecting values that would violate a Broker
// invariant: a non-positive max_usp_services, or a response_timeout
// that is negative or does not parse. The other limits are not
// range-checked.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", filename, err)
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.EndpointID == "" {
		cfg.EndpointID = "proto::usp-broker"
	}
	if cfg.Listen.Addr == "" {
		cfg.Listen.Addr = ":9001"
	}
	if cfg.Limits.MaxUSPServices == 0 {
		cfg.Limits.MaxUSPServices = 64
	}
	if cfg.Limits.MaxVendorParamGroups == 0 {
		cfg.Limits.MaxVendorParamGroups = 256
	}
	if cfg.Limits.MaxDMPath == 0 {
		cfg.Limits.MaxDMPath = 256
	}
	if cfg.Limits.MaxMsgIDLen == 0 {
		cfg.Limits.MaxMsgIDLen = 64
	}
	if cfg.Limits.MaxCompoundKeyParams == 0 {
		cfg.Limits.MaxCompoundKeyParams = 16
	}
	if cfg.Limits.MaxInFlightRequests == 0 {
		cfg.Limits.MaxInFlightRequests = 4096
	}
	if cfg.Limits.ResponseTimeout == "" {
		cfg.Limits.ResponseTimeout = "30s"
	}
	if cfg.Limits.InstanceCacheExpiry == "" {
		cfg.Limits.InstanceCacheExpiry = "-1s"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "./data"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
}

func validate(cfg *Config) error {
	if cfg.Limits.MaxUSPServices <= 0 {
		return fmt.Errorf("config: limits.max_usp_services must be positive, got %d", cfg.Limits.MaxUSPServices)
	}
	d, err := ParseTimeout(cfg.Limits.ResponseTimeout)
	if err != nil {
		return fmt.Errorf("config: limits.response_timeout: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("config: limits.response_timeout must not be negative, got %s", cfg.Limits.ResponseTimeout)
	}
	return nil
}

// ParseTimeout parses a duration string, treating an empty string as
// "no timeout" rather than an error.
func ParseTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
