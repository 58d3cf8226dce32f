// Package proxycmder provides the chat gateway command.
package proxycmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/wenshu/cmd/wenshu/backend"
	"github.com/papercomputeco/wenshu/pkg/config"
	"github.com/papercomputeco/wenshu/proxy"
)

type proxyCommander struct {
	configDir string
	debug     bool

	viper  *viper.Viper
	cfg    *config.Config
	logger *slog.Logger
}

const proxyLongDesc string = `Run the chat gateway.

The gateway accepts questions on /chat/query and /chat/analyze, relays them to
the configured Dify application and answers either with one JSON document or,
when "stream" is set, with a re-framed server-sent event stream. Broken upstream
streams are retried before the first event reaches the client.

Finished exchanges are recorded to the configured history store and, when an
event stream provider is configured, published as chat.completed events.`

const proxyShortDesc string = "Run the wenshu chat gateway"

var proxyFlags = backend.ServiceFlags(
	config.FlagProxyListenStandalone,
	config.FlagCORSOrigins,
)

func NewProxyCmd() *cobra.Command {
	cmder := &proxyCommander{}

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: proxyShortDesc,
		Long:  proxyLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.viper, err = backend.LoadViper(cmd, proxyFlags...)
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

	backend.AddFlags(cmd, proxyFlags...)

	return cmd
}

func (c *proxyCommander) run() error {
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

	c.logger.Info("starting chat gateway",
		"listen", c.cfg.Proxy.Listen,
		"dify_url", c.cfg.Dify.BaseURL,
		"retry_attempts", c.cfg.Retry.MaxAttempts,
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- p.Run()
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
