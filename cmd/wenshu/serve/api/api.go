// Package apicmder provides the records API server cobra command.
package apicmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/wenshu/api"
	"github.com/papercomputeco/wenshu/cmd/wenshu/backend"
	"github.com/papercomputeco/wenshu/pkg/chat"
	"github.com/papercomputeco/wenshu/pkg/config"
)

type apiCommander struct {
	configDir string
	debug     bool

	cfg    *config.Config
	logger *slog.Logger
}

const apiLongDesc string = `Run the wenshu records API server.

The API serves recorded exchanges, sessions and usage statistics from the
configured history store, and an MCP endpoint on /mcp. The MCP "ask" tool is
available when a Dify API key can be resolved.`

const apiShortDesc string = "Run the wenshu records API server"

var apiFlags = append(
	append([]string{config.FlagAPIListenStandalone, config.FlagLogJSON}, backend.UpstreamFlags...),
	backend.StorageFlags...,
)

func NewAPICmd() *cobra.Command {
	cmder := &apiCommander{}

	cmd := &cobra.Command{
		Use:   "api",
		Short: apiShortDesc,
		Long:  apiLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := backend.LoadViper(cmd, apiFlags...)
			if err != nil {
				return err
			}
			cmder.cfg = config.FromViper(v)
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	backend.AddFlags(cmd, apiFlags...)

	return cmd
}

func (c *apiCommander) run() error {
	var (
		closeLog func()
		err      error
	)
	c.logger, closeLog, err = backend.NewLogger(c.cfg, c.debug)
	if err != nil {
		return err
	}
	defer closeLog()

	driver, err := backend.NewStorageDriver(context.Background(), c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	apiConfig := api.Config{
		ListenAddr: c.cfg.API.Listen,
	}

	client, err := backend.NewDifyClient(c.cfg, c.configDir, c.logger)
	if err != nil {
		c.logger.Warn("mcp ask tool disabled", "error", err)
	} else {
		defer client.Close()
		apiConfig.Asker = chat.NewService(client,
			chat.WithHistory(driver),
			chat.WithLogger(c.logger),
			chat.WithAppName(c.cfg.Dify.AppName),
		)
	}

	server, err := api.NewServer(apiConfig, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}
	defer server.Shutdown()

	c.logger.Info("starting API server",
		"listen", c.cfg.API.Listen,
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Run()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return nil
	}
}
