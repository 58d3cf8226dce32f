// Package servecmder provides the serve command with subcommands for running services.
package servecmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/wenshu/api"
	"github.com/papercomputeco/wenshu/cmd/wenshu/backend"
	apicmder "github.com/papercomputeco/wenshu/cmd/wenshu/serve/api"
	proxycmder "github.com/papercomputeco/wenshu/cmd/wenshu/serve/proxy"
	"github.com/papercomputeco/wenshu/pkg/config"
	"github.com/papercomputeco/wenshu/proxy"
)

type ServeCommander struct {
	configDir string
	debug     bool

	viper  *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
}

const serveLongDesc string = `Run wenshu services.

Use subcommands to run individual services or all services together:
  wenshu serve          Run both the chat gateway and the records API together
  wenshu serve api      Run just the records API server
  wenshu serve proxy    Run just the chat gateway

Retry settings in config.toml are applied while the services run.`

const serveShortDesc string = "Run wenshu services"

var serveFlags = backend.ServiceFlags(
	config.FlagProxyListen,
	config.FlagAPIListen,
	config.FlagCORSOrigins,
)

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.viper, err = backend.LoadViper(cmd, serveFlags...)
			if err != nil {
				return err
			}
			cmder.cfg = config.FromViper(cmder.viper)
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

	backend.AddFlags(cmd, serveFlags...)

	cmd.AddCommand(apicmder.NewAPICmd())
	cmd.AddCommand(proxycmder.NewProxyCmd())

	return cmd
}

func (c *ServeCommander) run() error {
	var (
		closeLog func()
		err      error
	)
	c.logger, closeLog, err = backend.NewLogger(c.cfg, c.debug)
	if err != nil {
		return err
	}
	defer closeLog()
	ctx := context.Background()

	driver, err := backend.NewStorageDriver(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := backend.NewPublisher(c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	client, err := backend.NewDifyClient(c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer client.Close()

	config.WatchRetry(c.viper, c.logger, client.SetRetry)

	p, err := proxy.New(proxy.Config{
		ListenAddr:  c.cfg.Proxy.Listen,
		Upstream:    client,
		AppName:     c.cfg.Dify.AppName,
		CORSOrigins: c.cfg.Proxy.CORSOrigins,
		Publisher:   publisher,
	}, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating proxy: %w", err)
	}
	defer p.Close()

	apiServer, err := api.NewServer(api.Config{
		ListenAddr: c.cfg.API.Listen,
		Asker:      p.Service(),
	}, driver, c.logger)
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}
	defer apiServer.Shutdown()

	c.logger.Info("starting chat gateway",
		"proxy_addr", c.cfg.Proxy.Listen,
		"dify_url", c.cfg.Dify.BaseURL,
	)
	c.logger.Info("starting api server",
		"api_addr", c.cfg.API.Listen,
	)

	// Channel to capture errors from goroutines
	errChan := make(chan error, 2)

	go func() {
		if err := p.Run(); err != nil {
			errChan <- fmt.Errorf("proxy error: %w", err)
		}
	}()

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
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
