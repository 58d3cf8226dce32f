package main

import (
	"os"

	wenshucmder "github.com/papercomputeco/wenshu/cmd/wenshu"
	"github.com/papercomputeco/wenshu/pkg/cliui"
)

func main() {
	cmd := wenshucmder.NewWenshuCmd()
	if err := cmd.Execute(); err != nil {
		cliui.PrintError(cmd.ErrOrStderr(), err)
		os.Exit(1)
	}
}
