package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Load reads and parses the configuration file. Endpoint URLs can be
// overridden through BITESYNC_STREAM_URL and BITESYNC_POLL_URL so deployments
// configure endpoints environment-style without editing the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BITESYNC_STREAM_URL"); v != "" {
		cfg.StreamURL = v
	}
	if v := os.Getenv("BITESYNC_POLL_URL"); v != "" {
		cfg.PollURL = v
	}
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.ReconnectInitialDelay == 0 {
		cfg.ReconnectInitialDelay = DefaultReconnectInitialDelay
	}
	if cfg.MaxReconnectAttempts == 0 {
		cfg.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollRequestTimeout == 0 {
		cfg.PollRequestTimeout = DefaultPollRequestTimeout
	}
	if cfg.DedupCacheSize == 0 {
		cfg.DedupCacheSize = DefaultDedupCacheSize
	}
	if cfg.StatusLogInterval == 0 {
		cfg.StatusLogInterval = DefaultStatusLogInterval
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if cfg.StreamURL == "" {
		return errors.New("streamUrl is required")
	}
	if !strings.HasPrefix(cfg.StreamURL, "ws://") && !strings.HasPrefix(cfg.StreamURL, "wss://") {
		return fmt.Errorf("streamUrl must be a ws:// or wss:// URL, got '%s'", cfg.StreamURL)
	}
	if cfg.PollURL == "" {
		return errors.New("pollUrl is required")
	}
	if !strings.HasPrefix(cfg.PollURL, "http://") && !strings.HasPrefix(cfg.PollURL, "https://") {
		return fmt.Errorf("pollUrl must be an http:// or https:// URL, got '%s'", cfg.PollURL)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.HeartbeatInterval < 0 {
		return fmt.Errorf("heartbeatInterval must be non-negative")
	}
	if cfg.ReconnectInitialDelay < 0 {
		return fmt.Errorf("reconnectInitialDelay must be non-negative")
	}
	if cfg.MaxReconnectAttempts < 0 {
		return fmt.Errorf("maxReconnectAttempts must be non-negative")
	}
	if cfg.PollInterval < 0 {
		return fmt.Errorf("pollInterval must be non-negative")
	}
	if cfg.DedupCacheSize < 0 {
		return fmt.Errorf("dedupCacheSize must be non-negative")
	}

	for i, sub := range cfg.Subscriptions {
		if sub.Scope == "" {
			return fmt.Errorf("subscriptions[%d]: scope is required", i)
		}
	}

	return nil
}
