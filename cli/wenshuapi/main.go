package main

import (
	"os"

	apicmder "github.com/papercomputeco/wenshu/cmd/wenshu/serve/api"
	"github.com/papercomputeco/wenshu/pkg/cliui"
)

func main() {
	cmd := apicmder.NewAPICmd()
	cmd.Use = "wenshuapi"
	cmd.SilenceErrors = true
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .wenshu/ config directory")

	if err := cmd.Execute(); err != nil {
		cliui.PrintError(cmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}
