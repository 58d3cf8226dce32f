package main

import (
	"os"

	proxycmder "github.com/papercomputeco/wenshu/cmd/wenshu/serve/proxy"
	"github.com/papercomputeco/wenshu/pkg/cliui"
)

func main() {
	cmd := proxycmder.NewProxyCmd()

	cmd.Use = "wenshuproxy"
	cmd.SilenceErrors = true
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .wenshu/ config directory")

	if err := cmd.Execute(); err != nil {
		cliui.PrintError(cmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}
