// Package messagescmder provides the messages command for listing the
// upstream conversation history of a user.
package messagescmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/wenshu/cmd/wenshu/backend"
	"github.com/papercomputeco/wenshu/pkg/chat"
	"github.com/papercomputeco/wenshu/pkg/cliui"
	"github.com/papercomputeco/wenshu/pkg/config"
	"github.com/papercomputeco/wenshu/pkg/dotdir"
)

type messagesCommander struct {
	user           string
	conversationID string
	last           bool
	limit          int

	configDir string
	debug     bool
	cfg       *config.Config
	out       io.Writer
	logger    *slog.Logger
}

const messagesLongDesc string = `List the messages Dify holds for a user.

Messages are read from the Dify application itself, not from the local
history store (see "wenshu history").

Examples:
  wenshu messages
  wenshu messages --last
  wenshu messages --conversation 4a7e... --limit 5`

const messagesShortDesc string = "List upstream messages"

func NewMessagesCmd() *cobra.Command {
	cmder := &messagesCommander{}

	cmd := &cobra.Command{
		Use:   "messages",
		Short: messagesShortDesc,
		Long:  messagesLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := backend.LoadViper(cmd, backend.UpstreamFlags...)
			if err != nil {
				return err
			}
			cmder.cfg = config.FromViper(v)
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
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
	cmd.Flags().StringVar(&cmder.conversationID, "conversation", "", "Restrict to one conversation")
	cmd.Flags().BoolVar(&cmder.last, "last", false, "Restrict to the last conversation of \"wenshu ask\"")
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 20, "Maximum number of messages")

	return cmd
}

func (c *messagesCommander) run(ctx context.Context) error {
	c.logger = backend.CLILogger(c.debug)

	if c.last && c.conversationID == "" {
		state, err := dotdir.NewManager().LoadConversation(c.configDir)
		if err != nil {
			return err
		}
		if state != nil {
			c.conversationID = state.ConversationID
			if c.user == "" {
				c.user = state.UserID
			}
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
	res, err := svc.Messages(ctx, c.user, c.conversationID, c.limit)
	if err != nil {
		return err
	}

	if len(res.Data) == 0 {
		fmt.Fprintf(c.out, "%s No messages.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	for _, m := range res.Data {
		cliui.Exchange(c.out, time.Unix(m.CreatedAt, 0), m.Query, m.Answer)
	}
	if res.HasMore {
		fmt.Fprintln(c.out, cliui.DimStyle.Render("more messages available; raise --limit"))
	}
	return nil
}
