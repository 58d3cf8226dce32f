// Package feedbackcmder provides the feedback command for rating answers.
package feedbackcmder

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

type feedbackCommander struct {
	messageID string
	rating    string
	content   string
	user      string

	configDir string
	debug     bool
	cfg       *config.Config
	out       io.Writer
	logger    *slog.Logger
}

const feedbackLongDesc string = `Rate an answer of the Dify application.

The rating is "like" or "dislike"; "clear" removes a previous rating. Without
--message the last answer received by "wenshu ask" is rated.

Examples:
  wenshu feedback like
  wenshu feedback dislike --message 9f1c... --content "wrong quarter"
  wenshu feedback clear --message 9f1c...`

const feedbackShortDesc string = "Rate an answer"

func NewFeedbackCmd() *cobra.Command {
	cmder := &feedbackCommander{}

	cmd := &cobra.Command{
		Use:       "feedback <like|dislike|clear>",
		Short:     feedbackShortDesc,
		Long:      feedbackLongDesc,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"like", "dislike", "clear"},
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
			cmder.rating = args[0]
			if cmder.rating == "clear" {
				cmder.rating = ""
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
	cmd.Flags().StringVarP(&cmder.messageID, "message", "m", "", "Message id to rate (default: last answer)")
	cmd.Flags().StringVar(&cmder.content, "content", "", "Optional feedback text")
	cmd.Flags().StringVar(&cmder.user, "user", "", "End-user id (default: dify.user)")

	return cmd
}

func (c *feedbackCommander) run(ctx context.Context) error {
	c.logger = backend.CLILogger(c.debug)

	if c.messageID == "" {
		state, err := dotdir.NewManager().LoadConversation(c.configDir)
		if err != nil {
			return err
		}
		if state == nil || state.LastMessageID == "" {
			return errors.New("no previous answer found; pass --message")
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
	res, err := svc.Feedback(ctx, c.messageID, c.rating, c.user, c.content)
	if err != nil {
		return err
	}

	rating := c.rating
	if rating == "" {
		rating = "cleared"
	}
	fmt.Fprintf(c.out, "%s Feedback %s for message %s (%s)\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(rating),
		cliui.StepStyle.Render(c.messageID),
		res.Result,
	)
	return nil
}
