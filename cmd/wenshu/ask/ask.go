// Package askcmder provides the ask command for questioning the Dify
// application from the terminal.
package askcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/wenshu/cmd/wenshu/backend"
	"github.com/papercomputeco/wenshu/pkg/chat"
	"github.com/papercomputeco/wenshu/pkg/cliui"
	"github.com/papercomputeco/wenshu/pkg/config"
	"github.com/papercomputeco/wenshu/pkg/dify"
	"github.com/papercomputeco/wenshu/pkg/dotdir"
	"github.com/papercomputeco/wenshu/pkg/storage"
)

type askCommander struct {
	query          string
	user           string
	conversationID string
	analyze        bool
	cont           bool
	stream         bool
	raw            bool

	configDir string
	debug     bool
	cfg       *config.Config
	out       io.Writer
	errOut    io.Writer
	logger    *slog.Logger
}

const askLongDesc string = `Ask the configured Dify application a question.

By default the whole answer is fetched in one request and rendered as
markdown. Use --stream to print the answer as it arrives; a stream that breaks
before its first event is retried under the configured retry budget.

The conversation of every answer is remembered in the .wenshu/ directory so
that --continue asks a follow-up question in the same conversation.

Examples:
  wenshu ask "How many orders shipped last week?"
  wenshu ask --continue "And the week before?"
  wenshu ask --stream "Summarise the refund policy"
  wenshu ask --raw "Summarise the refund policy" 2> stream.log`

const askShortDesc string = "Ask the Dify application a question"

var askFlags = backend.UpstreamFlags

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: askShortDesc,
		Long:  askLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := backend.LoadViper(cmd, askFlags...)
			if err != nil {
				return err
			}
			cmder.cfg = config.FromViper(v)
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = strings.Join(args, " ")
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	backend.AddFlags(cmd, askFlags...)
	cmd.Flags().StringVar(&cmder.user, "user", "", "End-user id (default: dify.user)")
	cmd.Flags().StringVar(&cmder.conversationID, "conversation", "", "Conversation id to continue")
	cmd.Flags().BoolVarP(&cmder.cont, "continue", "c", false, "Continue the last conversation")
	cmd.Flags().BoolVar(&cmder.analyze, "analyze", false, "Record the question as an analysis")
	cmd.Flags().BoolVar(&cmder.stream, "stream", false, "Print the answer as it streams")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Mirror the raw upstream stream to stderr (implies --stream)")

	return cmd
}

func (c *askCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.logger = backend.CLILogger(c.debug)

	client, err := backend.NewDifyClient(c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer client.Close()

	ddm := dotdir.NewManager()
	req := chat.Request{
		Query:          c.query,
		UserID:         c.user,
		ConversationID: c.conversationID,
		QueryType:      storage.QueryTypeQuery,
		Path:           "cli:ask",
	}
	if c.analyze {
		req.QueryType = storage.QueryTypeAnalysis
	}

	if c.cont && req.ConversationID == "" {
		state, err := ddm.LoadConversation(c.configDir)
		if err != nil {
			return err
		}
		if state != nil {
			req.ConversationID = state.ConversationID
			if req.UserID == "" {
				req.UserID = state.UserID
			}
		}
	}
	if req.UserID == "" {
		req.UserID = c.cfg.Dify.User
	}

	svc := chat.NewService(client, chat.WithLogger(c.logger), chat.WithAppName(c.cfg.Dify.AppName))

	var conversationID, messageID string
	if c.stream || c.raw {
		conversationID, messageID, err = c.streamAnswer(ctx, svc, req)
	} else {
		conversationID, messageID, err = c.blockingAnswer(ctx, svc, req)
	}
	if err != nil {
		return err
	}

	if conversationID != "" {
		err := ddm.SaveConversation(&dotdir.ConversationState{
			ConversationID: conversationID,
			UserID:         req.UserID,
			LastMessageID:  messageID,
			UpdatedAt:      time.Now().UTC(),
		}, c.configDir)
		if err != nil {
			c.logger.Warn("could not save conversation state", "error", err)
		}
	}

	fmt.Fprintln(c.out)
	cliui.KeyValue(c.out, "conversation", cliui.StepStyle.Render(conversationID))
	if messageID != "" {
		cliui.KeyValue(c.out, "message", cliui.StepStyle.Render(messageID))
	}
	return nil
}

func (c *askCommander) blockingAnswer(ctx context.Context, svc *chat.Service, req chat.Request) (string, string, error) {
	var resp *chat.Response
	err := cliui.Step(c.errOut, "Waiting for the answer", func() error {
		var err error
		resp, err = svc.Query(ctx, req)
		return err
	})
	if err != nil {
		return "", "", err
	}

	cliui.Answer(c.out, resp.Answer)
	return resp.ConversationID, resp.MessageID, nil
}

func (c *askCommander) streamAnswer(ctx context.Context, svc *chat.Service, req chat.Request) (string, string, error) {
	var opts []dify.StreamOption
	if c.raw {
		opts = append(opts, dify.WithRawTee(os.Stderr))
	}

	turn, err := svc.QueryStream(ctx, req, opts...)
	if err != nil {
		return "", "", err
	}
	defer turn.Close()

	attempt := 0
	for {
		ev, err := turn.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintln(c.out)
			return "", "", err
		}

		if n := turn.Attempts(); n != attempt {
			if attempt != 0 {
				fmt.Fprintf(c.out, "\n%s\n", cliui.StepStyle.Render(fmt.Sprintf("(retrying, attempt %d)", n)))
			}
			attempt = n
		}

		p := dify.ParseEvent(ev)
		switch p.EventType {
		case dify.EventMessage, dify.EventAgentMessage:
			fmt.Fprint(c.out, p.Answer)
		case dify.EventError:
			fmt.Fprintln(c.out)
			return "", "", &dify.ServiceError{Message: streamErrorMessage(p)}
		}
	}
	fmt.Fprintln(c.out)

	res := turn.Result()
	return res.ConversationID, res.MessageID, nil
}

func streamErrorMessage(p dify.ParsedEvent) string {
	if msg, ok := p.Raw["message"].(string); ok && msg != "" {
		return msg
	}
	return "upstream reported an error event"
}
