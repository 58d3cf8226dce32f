// Package configcmder provides the config command for managing persistent
// wenshu configuration stored in the .wenshu/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent wenshu configuration.

Configuration is stored as config.toml in the .wenshu/ directory and provides
default values for command flags. CLI flags and WENSHU_* environment variables
always take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  dify.base_url, dify.user, dify.app_name, dify.timeout_seconds,
  retry.max_attempts, retry.delay_ms,
  storage.sqlite_path, storage.postgres_dsn,
  proxy.listen, proxy.cors_origins, api.listen,
  client.proxy_target, client.api_target,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  log.json

Use subcommands to get, set, or list configuration values:
  wenshu config set <key> <value>    Set a configuration value
  wenshu config get <key>            Get a configuration value
  wenshu config list                 List all configuration values

Examples:
  wenshu config set dify.base_url http://localhost/v1
  wenshu config set retry.max_attempts 5
  wenshu config get dify.base_url
  wenshu config list`

const configShortDesc string = "Manage persistent wenshu configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
