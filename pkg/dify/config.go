package dify

import (
	"strings"
	"time"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultMaxConns        = 100
	DefaultMaxConnsPerHost = 10
	DefaultUser            = "default"
	DefaultRetryAttempts   = 3
	DefaultRetryDelay      = time.Second
)

// Config configures a Client.
type Config struct {
	// BaseURL is the Dify API root, e.g. "https://api.dify.ai/v1". A trailing
	// slash is ignored.
	BaseURL string

	// APIKey is the application key sent as a bearer token.
	APIKey string

	// User is sent when a call does not name its own user.
	User string

	// Timeout bounds a whole exchange, streaming body included.
	Timeout time.Duration

	// MaxConns caps idle pooled connections across all hosts.
	MaxConns int

	// MaxConnsPerHost caps simultaneous connections to the Dify host.
	MaxConnsPerHost int

	Retry RetryConfig
}

// RetryConfig is the retry budget for chat calls. Companion calls (feedback,
// message history, suggestions) get one attempt fewer and half the delay.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

func (c Config) withDefaults() Config {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxConns <= 0 {
		c.MaxConns = DefaultMaxConns
	}
	if c.MaxConnsPerHost <= 0 {
		c.MaxConnsPerHost = DefaultMaxConnsPerHost
	}
	c.Retry = c.Retry.withDefaults()
	return c
}

func (r RetryConfig) withDefaults() RetryConfig {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = DefaultRetryAttempts
	}
	if r.Delay < 0 {
		r.Delay = 0
	}
	if r.Delay == 0 {
		r.Delay = DefaultRetryDelay
	}
	return r
}

func (r RetryConfig) companion() RetryConfig {
	attempts := r.MaxAttempts - 1
	if attempts < 1 {
		attempts = 1
	}
	return RetryConfig{MaxAttempts: attempts, Delay: r.Delay / 2}
}

// Validate reports a ConfigurationError when required settings are missing.
func (c Config) Validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return &ConfigurationError{Message: "dify base url is required"}
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return &ConfigurationError{Message: "dify api key is required"}
	}
	return nil
}
