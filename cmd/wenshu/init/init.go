// Package initcmder provides the init command for initializing a local .wenshu
// directory in the current working directory.
package initcmder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/wenshu/pkg/cliui"
	"github.com/papercomputeco/wenshu/pkg/config"
)

const (
	dirName = ".wenshu"
)

const initLongDesc string = `Initialize a new .wenshu/ directory in the current working directory.

Creates a local .wenshu/ directory that takes precedence over the default
~/.wenshu/ directory for configuration, credentials and conversation state.

With --preset a config.toml is written for a common deployment:
  cloud        Dify cloud, SQLite history in wenshu.db
  self-hosted  Dify on localhost, SQLite history in wenshu.db
  postgres     Dify on localhost, PostgreSQL history, Kafka chat events

Examples:
  wenshu init
  wenshu init --preset self-hosted`

const initShortDesc string = "Initialize a local .wenshu/ directory"

func NewInitCmd() *cobra.Command {
	var preset string

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.OutOrStdout(), preset)
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "Write a preset config.toml ("+strings.Join(config.ValidPresetNames(), ", ")+")")

	return cmd
}

func runInit(out io.Writer, preset string) error {
	var cfg *config.Config
	if preset != "" {
		var err error
		cfg, err = config.PresetConfig(preset)
		if err != nil {
			return err
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	info, err := os.Stat(dir)
	switch {
	case err == nil && info.IsDir():
		fmt.Fprintf(out, "Already initialized: %s\n", dir)
	default:
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating .wenshu directory: %w", err)
		}
		fmt.Fprintf(out, "Initialized .wenshu directory: %s\n", dir)
	}

	if cfg == nil {
		return nil
	}

	cfger, err := config.NewConfiger(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "%s Wrote %s preset to %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(preset),
		cliui.DimStyle.Render(cfger.GetTarget()),
	)
	return nil
}
