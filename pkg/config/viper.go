package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/papercomputeco/wenshu/pkg/dify"
	"github.com/papercomputeco/wenshu/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the WENSHU_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (WENSHU_DIFY_BASE_URL, WENSHU_PROXY_LISTEN, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: WENSHU_DIFY_BASE_URL, WENSHU_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("WENSHU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Dify
	v.SetDefault("dify.base_url", d.Dify.BaseURL)
	v.SetDefault("dify.user", d.Dify.User)
	v.SetDefault("dify.app_name", d.Dify.AppName)
	v.SetDefault("dify.timeout_seconds", d.Dify.TimeoutSeconds)
	v.SetDefault("dify.max_conns", d.Dify.MaxConns)
	v.SetDefault("dify.max_conns_per_host", d.Dify.MaxConnsPerHost)

	// Retry
	v.SetDefault("retry.max_attempts", d.Retry.MaxAttempts)
	v.SetDefault("retry.delay_ms", d.Retry.DelayMS)

	// Storage
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Proxy
	v.SetDefault("proxy.listen", d.Proxy.Listen)
	v.SetDefault("proxy.cors_origins", d.Proxy.CORSOrigins)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Client
	v.SetDefault("client.proxy_target", d.Client.ProxyTarget)
	v.SetDefault("client.api_target", d.Client.APITarget)

	// Event stream
	v.SetDefault("eventstream.provider", d.EventStream.Provider)
	v.SetDefault("eventstream.brokers", d.EventStream.Brokers)
	v.SetDefault("eventstream.topic", d.EventStream.Topic)

	// Log
	v.SetDefault("log.json", d.Log.JSON)
	v.SetDefault("log.file", d.Log.File)
}

// FromViper assembles a Config from the effective viper values, so flags and
// environment variables are reflected.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Dify: DifyConfig{
			BaseURL:         v.GetString("dify.base_url"),
			User:            v.GetString("dify.user"),
			AppName:         v.GetString("dify.app_name"),
			TimeoutSeconds:  v.GetUint("dify.timeout_seconds"),
			MaxConns:        v.GetUint("dify.max_conns"),
			MaxConnsPerHost: v.GetUint("dify.max_conns_per_host"),
		},
		Retry: RetryConfig{
			MaxAttempts: v.GetUint("retry.max_attempts"),
			DelayMS:     v.GetUint("retry.delay_ms"),
		},
		Storage: StorageConfig{
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		Proxy: ProxyConfig{
			Listen:      v.GetString("proxy.listen"),
			CORSOrigins: v.GetString("proxy.cors_origins"),
		},
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Client: ClientConfig{
			ProxyTarget: v.GetString("client.proxy_target"),
			APITarget:   v.GetString("client.api_target"),
		},
		EventStream: EventStreamConfig{
			Provider: v.GetString("eventstream.provider"),
			Brokers:  v.GetString("eventstream.brokers"),
			Topic:    v.GetString("eventstream.topic"),
		},
		Log: LogConfig{
			JSON: v.GetBool("log.json"),
			File: v.GetString("log.file"),
		},
	}
}

// WatchRetry watches the config file and calls apply with the new retry
// budget whenever it changes. It is a no-op when no config file was read.
func WatchRetry(v *viper.Viper, logger *slog.Logger, apply func(dify.RetryConfig)) {
	if v.ConfigFileUsed() == "" {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		r := FromViper(v).DifyRetry()
		logger.Info("config file changed", "file", e.Name, "op", e.Op.String())
		apply(r)
	})
	v.WatchConfig()
}

// DifyClient returns the upstream client configuration for apiKey.
func (c *Config) DifyClient(apiKey string) dify.Config {
	return dify.Config{
		BaseURL:         c.Dify.BaseURL,
		APIKey:          apiKey,
		User:            c.Dify.User,
		Timeout:         time.Duration(c.Dify.TimeoutSeconds) * time.Second,
		MaxConns:        int(c.Dify.MaxConns),
		MaxConnsPerHost: int(c.Dify.MaxConnsPerHost),
		Retry:           c.DifyRetry(),
	}
}

// DifyRetry returns the upstream retry budget.
func (c *Config) DifyRetry() dify.RetryConfig {
	return dify.RetryConfig{
		MaxAttempts: int(c.Retry.MaxAttempts),
		Delay:       time.Duration(c.Retry.DelayMS) * time.Millisecond,
	}
}

// BrokerList splits the comma separated Kafka broker list.
func (c *EventStreamConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(c.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
