// Package suggestcmder provides the suggest command for listing the
// follow-up questions suggested for an answer.
package suggestcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/wenshu/cmd/wenshu/backend"
	"github.com/papercomputeco/wenshu/pkg/chat"
	"github.com/papercomputeco/wenshu/pkg/cliui"
	"github.com/papercomputeco/wenshu/pkg/config"
	"github.com/papercomputeco/wenshu/pkg/dotdir"
)

type suggestCommander struct {
	messageID string
	user      string

	configDir string
	debug     bool
	cfg       *config.Config
	out       io.Writer
	logger    *slog.Logger
}

const suggestLongDesc string = `List the follow-up questions Dify suggests for an answer.

Without a message id the last answer received by "wenshu ask" is used.

Examples:
  wenshu suggest
  wenshu suggest 9f1c...`

const suggestShortDesc string = "List suggested follow-up questions"

func NewSuggestCmd() *cobra.Command {
	cmder := &suggestCommander{}

	cmd := &cobra.Command{
		Use:   "suggest [message-id]",
		Short: suggestShortDesc,
		Long:  suggestLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := backend.LoadViper(cmd, backend.UpstreamFlags...)
			if err != nil {
				return err
			}
			cmder.cfg = config.FromViper(v)
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cmder.messageID = args[0]
			}
			cmder.out = cmd.OutOrStdout()

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	backend.AddFlags(cmd, backend.UpstreamFlags...)
	cmd.Flags().StringVar(&cmder.user, "user", "", "End-user id (default: dify.user)")

	return cmd
}

func (c *suggestCommander) run(ctx context.Context) error {
	c.logger = backend.CLILogger(c.debug)

	if c.messageID == "" {
		state, err := dotdir.NewManager().LoadConversation(c.configDir)
		if err != nil {
			return err
		}
		if state == nil || state.LastMessageID == "" {
			return errors.New("no previous answer found; pass a message id")
		}
		c.messageID = state.LastMessageID
		if c.user == "" {
			c.user = state.UserID
		}
	}
	if c.user == "" {
		c.user = c.cfg.Dify.User
	}

	client, err := backend.NewDifyClient(c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer client.Close()

	svc := chat.NewService(client, chat.WithLogger(c.logger))
	questions, err := svc.Suggested(ctx, c.messageID, c.user)
	if err != nil {
		return err
	}

	if len(questions) == 0 {
		fmt.Fprintf(c.out, "%s No suggestions.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	for i, q := range questions {
		fmt.Fprintf(c.out, "  %s %s\n", cliui.StepStyle.Render(fmt.Sprintf("%d.", i+1)), q)
	}
	return nil
}
