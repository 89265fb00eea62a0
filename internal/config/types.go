package config

import "time"

// Config represents the main configuration structure
type Config struct {
	StreamURL string `json:"streamUrl"`
	PollURL   string `json:"pollUrl"`
	LogLevel  string `json:"logLevel"`

	HeartbeatInterval     int `json:"heartbeatInterval"`     // ms - interval between keep-alive frames while connected
	ReconnectInitialDelay int `json:"reconnectInitialDelay"` // ms - backoff base; attempt n waits base * 2^n
	MaxReconnectAttempts  int `json:"maxReconnectAttempts"`  // consecutive failed attempts before degraded mode
	HandshakeTimeout      int `json:"handshakeTimeout"`      // ms - stream dial timeout
	ReadTimeout           int `json:"readTimeout"`           // ms - deadline for receiving anything on the stream
	PollInterval          int `json:"pollInterval"`          // ms - degraded-mode fetch interval
	PollRequestTimeout    int `json:"pollRequestTimeout"`    // ms - per-scope poll request timeout
	DedupCacheSize        int `json:"dedupCacheSize"`
	StatusLogInterval     int `json:"statusLogInterval"` // ms - interval for logging client status; negative disables

	Subscriptions []SubscriptionConfig `json:"subscriptions"`
}

// SubscriptionConfig declares one subscription the daemon registers at startup
type SubscriptionConfig struct {
	Scope string   `json:"scope"`
	Kinds []string `json:"kinds"`
}

// Default values
const (
	DefaultLogLevel              = "info"
	DefaultHeartbeatInterval     = 30000 // ms (30s)
	DefaultReconnectInitialDelay = 1000  // ms
	DefaultMaxReconnectAttempts  = 5
	DefaultHandshakeTimeout      = 10000 // ms
	DefaultReadTimeout           = 60000 // ms
	DefaultPollInterval          = 10000 // ms (10s)
	DefaultPollRequestTimeout    = 5000  // ms
	DefaultDedupCacheSize        = 1024
	DefaultStatusLogInterval     = 60000 // ms
)

// GetHeartbeatIntervalDuration returns the heartbeat interval as time.Duration
func (c *Config) GetHeartbeatIntervalDuration() time.Duration {
	return time.Duration(c.HeartbeatInterval) * time.Millisecond
}

// GetReconnectInitialDelayDuration returns the backoff base as time.Duration
func (c *Config) GetReconnectInitialDelayDuration() time.Duration {
	return time.Duration(c.ReconnectInitialDelay) * time.Millisecond
}

// GetHandshakeTimeoutDuration returns the dial timeout as time.Duration
func (c *Config) GetHandshakeTimeoutDuration() time.Duration {
	return time.Duration(c.HandshakeTimeout) * time.Millisecond
}

// GetReadTimeoutDuration returns the stream read deadline as time.Duration
func (c *Config) GetReadTimeoutDuration() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Millisecond
}

// GetPollIntervalDuration returns the poll interval as time.Duration
func (c *Config) GetPollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Millisecond
}

// GetPollRequestTimeoutDuration returns the poll request timeout as time.Duration
func (c *Config) GetPollRequestTimeoutDuration() time.Duration {
	return time.Duration(c.PollRequestTimeout) * time.Millisecond
}

// GetStatusLogIntervalDuration returns the status log interval as time.Duration
func (c *Config) GetStatusLogIntervalDuration() time.Duration {
	return time.Duration(c.StatusLogInterval) * time.Millisecond
}
