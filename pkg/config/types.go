package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent wenshu configuration stored as config.toml
// in the .wenshu/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Dify        DifyConfig        `toml:"dify"`
	Retry       RetryConfig       `toml:"retry"`
	Storage     StorageConfig     `toml:"storage"`
	Proxy       ProxyConfig       `toml:"proxy"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	EventStream EventStreamConfig `toml:"eventstream"`
	Log         LogConfig         `toml:"log"`
}

// DifyConfig holds the upstream Dify application settings. The API key is not
// stored here; it lives in credentials.toml.
type DifyConfig struct {
	BaseURL         string `toml:"base_url,omitempty"`
	User            string `toml:"user,omitempty"`
	AppName         string `toml:"app_name,omitempty"`
	TimeoutSeconds  uint   `toml:"timeout_seconds,omitempty"`
	MaxConns        uint   `toml:"max_conns,omitempty"`
	MaxConnsPerHost uint   `toml:"max_conns_per_host,omitempty"`
}

// RetryConfig holds the upstream retry budget. It can be changed while the
// gateway runs.
type RetryConfig struct {
	MaxAttempts uint `toml:"max_attempts,omitempty"`
	DelayMS     uint `toml:"delay_ms,omitempty"`
}

// StorageConfig holds shared storage settings used by both gateway and API.
// PostgresDSN wins over SQLitePath; with neither, history is kept in memory.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// ProxyConfig holds chat gateway settings.
type ProxyConfig struct {
	Listen      string `toml:"listen,omitempty"`
	CORSOrigins string `toml:"cors_origins,omitempty"`
}

// APIConfig holds records API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to the running
// gateway and API servers (e.g. wenshu history). Values are full URLs.
type ClientConfig struct {
	ProxyTarget string `toml:"proxy_target,omitempty"`
	APITarget   string `toml:"api_target,omitempty"`
}

// EventStreamConfig selects where finished exchanges are published.
// Provider is "none" or "kafka"; Brokers is a comma separated list.
type EventStreamConfig struct {
	Provider string `toml:"provider,omitempty"`
	Brokers  string `toml:"brokers,omitempty"`
	Topic    string `toml:"topic,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	JSON bool `toml:"json,omitempty"`

	// File additionally receives every service log record as a JSON line.
	File string `toml:"file,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"dify.base_url":           stringKey(func(c *Config) *string { return &c.Dify.BaseURL }),
	"dify.user":               stringKey(func(c *Config) *string { return &c.Dify.User }),
	"dify.app_name":           stringKey(func(c *Config) *string { return &c.Dify.AppName }),
	"dify.timeout_seconds":    uintKey("dify.timeout_seconds", func(c *Config) *uint { return &c.Dify.TimeoutSeconds }),
	"dify.max_conns":          uintKey("dify.max_conns", func(c *Config) *uint { return &c.Dify.MaxConns }),
	"dify.max_conns_per_host": uintKey("dify.max_conns_per_host", func(c *Config) *uint { return &c.Dify.MaxConnsPerHost }),
	"retry.max_attempts":      uintKey("retry.max_attempts", func(c *Config) *uint { return &c.Retry.MaxAttempts }),
	"retry.delay_ms":          uintKey("retry.delay_ms", func(c *Config) *uint { return &c.Retry.DelayMS }),
	"storage.sqlite_path":     stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn":    stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"proxy.listen":            stringKey(func(c *Config) *string { return &c.Proxy.Listen }),
	"proxy.cors_origins":      stringKey(func(c *Config) *string { return &c.Proxy.CORSOrigins }),
	"api.listen":              stringKey(func(c *Config) *string { return &c.API.Listen }),
	"client.proxy_target":     stringKey(func(c *Config) *string { return &c.Client.ProxyTarget }),
	"client.api_target":       stringKey(func(c *Config) *string { return &c.Client.APITarget }),
	"eventstream.provider":    stringKey(func(c *Config) *string { return &c.EventStream.Provider }),
	"eventstream.brokers":     stringKey(func(c *Config) *string { return &c.EventStream.Brokers }),
	"eventstream.topic":       stringKey(func(c *Config) *string { return &c.EventStream.Topic }),
	"log.json":                boolKey("log.json", func(c *Config) *bool { return &c.Log.JSON }),
	"log.file":                stringKey(func(c *Config) *string { return &c.Log.File }),
}

// orderedKeys lists the config keys in the TOML section layout order.
var orderedKeys = []string{
	"dify.base_url",
	"dify.user",
	"dify.app_name",
	"dify.timeout_seconds",
	"dify.max_conns",
	"dify.max_conns_per_host",
	"retry.max_attempts",
	"retry.delay_ms",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"proxy.listen",
	"proxy.cors_origins",
	"api.listen",
	"client.proxy_target",
	"client.api_target",
	"eventstream.provider",
	"eventstream.brokers",
	"eventstream.topic",
	"log.json",
	"log.file",
}
