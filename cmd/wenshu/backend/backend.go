// Package backend builds the storage drivers, event stream publishers and
// upstream clients shared by the wenshu commands.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/wenshu/pkg/config"
	"github.com/papercomputeco/wenshu/pkg/credentials"
	"github.com/papercomputeco/wenshu/pkg/dify"
	"github.com/papercomputeco/wenshu/pkg/eventstream"
	"github.com/papercomputeco/wenshu/pkg/eventstream/kafka"
	"github.com/papercomputeco/wenshu/pkg/eventstream/nop"
	"github.com/papercomputeco/wenshu/pkg/logger"
	"github.com/papercomputeco/wenshu/pkg/storage"
	"github.com/papercomputeco/wenshu/pkg/storage/inmemory"
	"github.com/papercomputeco/wenshu/pkg/storage/postgres"
	"github.com/papercomputeco/wenshu/pkg/storage/sqlite"
)

// Flags is the flag registry shared by every wenshu command.
var Flags = config.FlagSet{
	config.FlagProxyListen:           {Name: "proxy-listen", Shorthand: "p", ViperKey: "proxy.listen", Description: "Address for the chat gateway to listen on"},
	config.FlagAPIListen:             {Name: "api-listen", Shorthand: "a", ViperKey: "api.listen", Description: "Address for the records API to listen on"},
	config.FlagProxyListenStandalone: {Name: "listen", Shorthand: "l", ViperKey: "proxy.listen", Description: "Address for the chat gateway to listen on"},
	config.FlagAPIListenStandalone:   {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the records API to listen on"},
	config.FlagDifyURL:               {Name: "dify-url", Shorthand: "u", ViperKey: "dify.base_url", Description: "Dify API base URL"},
	config.FlagDifyUser:              {Name: "dify-user", ViperKey: "dify.user", Description: "Default Dify end-user id"},
	config.FlagTimeout:               {Name: "timeout", ViperKey: "dify.timeout_seconds", Description: "Upstream request timeout in seconds"},
	config.FlagRetryAttempts:         {Name: "retry-attempts", ViperKey: "retry.max_attempts", Description: "Total upstream attempts per request"},
	config.FlagRetryDelay:            {Name: "retry-delay-ms", ViperKey: "retry.delay_ms", Description: "Delay between upstream attempts in milliseconds"},
	config.FlagSQLite:                {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to SQLite database (default: in-memory)"},
	config.FlagPostgres:              {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string (wins over --sqlite)"},
	config.FlagCORSOrigins:           {Name: "cors-origins", ViperKey: "proxy.cors_origins", Description: "Comma separated allowed CORS origins"},
	config.FlagEventStream:           {Name: "eventstream", ViperKey: "eventstream.provider", Description: "Event stream provider (none, kafka)"},
	config.FlagKafkaBrokers:          {Name: "kafka-brokers", ViperKey: "eventstream.brokers", Description: "Comma separated Kafka brokers"},
	config.FlagKafkaTopic:            {Name: "kafka-topic", ViperKey: "eventstream.topic", Description: "Kafka topic for chat events"},
	config.FlagAPITarget:             {Name: "api-target", ViperKey: "client.api_target", Description: "wenshu records API URL"},
	config.FlagProxyTarget:           {Name: "proxy-target", ViperKey: "client.proxy_target", Description: "wenshu chat gateway URL"},
	config.FlagLogJSON:               {Name: "log-json", ViperKey: "log.json", Description: "Write service logs as JSON lines"},
}

// UpstreamFlags are the registry keys of the Dify connection flags.
var UpstreamFlags = []string{
	config.FlagDifyURL,
	config.FlagDifyUser,
	config.FlagTimeout,
	config.FlagRetryAttempts,
	config.FlagRetryDelay,
}

// StorageFlags are the registry keys of the history storage flags.
var StorageFlags = []string{
	config.FlagSQLite,
	config.FlagPostgres,
}

// EventStreamFlags are the registry keys of the event stream flags.
var EventStreamFlags = []string{
	config.FlagEventStream,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

// ServiceFlags returns extra followed by the upstream, storage, event stream
// and logging registry keys.
func ServiceFlags(extra ...string) []string {
	keys := append([]string{}, extra...)
	keys = append(keys, UpstreamFlags...)
	keys = append(keys, StorageFlags...)
	keys = append(keys, EventStreamFlags...)
	return append(keys, config.FlagLogJSON)
}

// AddFlags registers the given registry flags on cmd. Targets are throwaway;
// viper owns the values once the flags are bound.
func AddFlags(cmd *cobra.Command, keys ...string) {
	for _, key := range keys {
		switch key {
		case config.FlagLogJSON:
			config.AddBoolFlag(cmd, Flags, key, new(bool))
		case config.FlagTimeout, config.FlagRetryAttempts, config.FlagRetryDelay:
			config.AddUintFlag(cmd, Flags, key, new(uint))
		default:
			config.AddStringFlag(cmd, Flags, key, new(string))
		}
	}
}

// LoadViper resolves the effective configuration of cmd: defaults, the
// config file of --config-dir, WENSHU_* environment variables and the flags
// named by keys.
func LoadViper(cmd *cobra.Command, keys ...string) (*viper.Viper, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	config.BindRegisteredFlags(v, cmd, Flags, keys)
	return v, nil
}

// NewLogger returns the service logger: JSON lines when log.json is set,
// charmbracelet output otherwise. When log.file is set every record is also
// appended to that file as JSON; the returned func closes it.
func NewLogger(cfg *config.Config, debug bool) (*slog.Logger, func(), error) {
	console := logger.New(logger.WithPretty(!cfg.Log.JSON), logger.WithJSON(cfg.Log.JSON), logger.WithDebug(debug))
	if cfg.Log.File == "" {
		return console, func() {}, nil
	}

	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(logger.WithJSON(true), logger.WithDebug(debug), logger.WithSource(debug), logger.WithWriter(f))

	return logger.Multi(console, file), func() { _ = f.Close() }, nil
}

// NewStorageDriver opens the history store: PostgreSQL when a DSN is
// configured, then SQLite, then an in-memory store.
func NewStorageDriver(ctx context.Context, cfg *config.Config, log *slog.Logger) (storage.Driver, error) {
	switch {
	case cfg.Storage.PostgresDSN != "":
		driver, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		log.Info("using PostgreSQL storage")
		return driver, nil

	case cfg.Storage.SQLitePath != "":
		driver, err := sqlite.NewDriver(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		log.Info("using SQLite storage", "path", cfg.Storage.SQLitePath)
		return driver, nil
	}

	log.Info("using in-memory storage")
	return inmemory.NewDriver(), nil
}

// NewPublisher returns the event stream publisher selected by
// eventstream.provider.
func NewPublisher(cfg *config.Config, log *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.EventStream.Provider {
	case "", config.EventStreamNone:
		return nop.NewPublisher(), nil

	case config.EventStreamKafka:
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.EventStream.BrokerList(),
			Topic:   cfg.EventStream.Topic,
			Logger:  log,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		log.Info("publishing chat events to kafka",
			"brokers", cfg.EventStream.Brokers,
			"topic", cfg.EventStream.Topic,
		)
		return pub, nil
	}

	return nil, fmt.Errorf("unknown event stream provider: %q", cfg.EventStream.Provider)
}

// NewDifyClient builds the upstream client. The API key comes from the
// environment or from credentials.toml in configDir.
func NewDifyClient(cfg *config.Config, configDir string, log *slog.Logger) (*dify.Client, error) {
	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	key, err := mgr.ResolveKey(cfg.Dify.AppName)
	if err != nil {
		return nil, fmt.Errorf("resolving api key: %w", err)
	}

	client, err := dify.New(cfg.DifyClient(key), dify.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("creating dify client (run 'wenshu auth' to store a key): %w", err)
	}
	return client, nil
}

// CLILogger returns the logger of the client commands: charmbracelet output
// on stderr with --debug, silence otherwise.
func CLILogger(debug bool) *slog.Logger {
	if debug {
		return logger.NewCLI(true)
	}
	return logger.Nop()
}
