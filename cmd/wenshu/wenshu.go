// Package wenshucmder
package wenshucmder

import (
	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/wenshu/cmd/wenshu/ask"
	authcmder "github.com/papercomputeco/wenshu/cmd/wenshu/auth"
	configcmder "github.com/papercomputeco/wenshu/cmd/wenshu/config"
	feedbackcmder "github.com/papercomputeco/wenshu/cmd/wenshu/feedback"
	historycmder "github.com/papercomputeco/wenshu/cmd/wenshu/history"
	initcmder "github.com/papercomputeco/wenshu/cmd/wenshu/init"
	messagescmder "github.com/papercomputeco/wenshu/cmd/wenshu/messages"
	servecmder "github.com/papercomputeco/wenshu/cmd/wenshu/serve"
	suggestcmder "github.com/papercomputeco/wenshu/cmd/wenshu/suggest"
	versioncmder "github.com/papercomputeco/wenshu/cmd/version"
)

const wenshuLongDesc string = `Wenshu is an ask-your-data gateway for Dify applications.

Run services using:
  wenshu serve api      Run the records API server
  wenshu serve proxy    Run the chat gateway
  wenshu serve          Run both servers together

Talk to the Dify application using:
  wenshu ask            Ask a question
  wenshu feedback       Rate an answer
  wenshu suggest        List suggested follow-up questions
  wenshu messages       List upstream messages
  wenshu history        List recorded exchanges`

const wenshuShortDesc string = "Wenshu - Dify chat gateway"

func NewWenshuCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "wenshu",
		Short:         wenshuShortDesc,
		Long:          wenshuLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .wenshu/ config directory")

	// Add subcommands
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(askcmder.NewAskCmd())
	cmd.AddCommand(feedbackcmder.NewFeedbackCmd())
	cmd.AddCommand(suggestcmder.NewSuggestCmd())
	cmd.AddCommand(messagescmder.NewMessagesCmd())
	cmd.AddCommand(historycmder.NewHistoryCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
