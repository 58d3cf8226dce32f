// Package historycmder provides the history command for listing recorded
// exchanges.
package historycmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/wenshu/cmd/wenshu/backend"
	"github.com/papercomputeco/wenshu/cmd/wenshu/sqlitepath"
	"github.com/papercomputeco/wenshu/pkg/cliui"
	"github.com/papercomputeco/wenshu/pkg/config"
	"github.com/papercomputeco/wenshu/pkg/storage"
	"github.com/papercomputeco/wenshu/pkg/storage/sqlite"
	"github.com/papercomputeco/wenshu/pkg/utils"
)

// previewRunes bounds how much of each answer is listed without --full.
const previewRunes = 200

type historyCommander struct {
	user           string
	conversationID string
	limit          int
	local          bool
	full           bool
	sqlitePath     string

	apiTarget string
	debug     bool
	out       io.Writer
	logger    *slog.Logger
}

// Output is the body of the records API history endpoint.
type Output struct {
	Count   int                    `json:"count"`
	Records []*storage.QueryRecord `json:"records"`
}

const historyLongDesc string = `List exchanges recorded by the wenshu gateway, newest first.

Records are read through the wenshu records API. Use --local to read a SQLite
history database directly instead.

Examples:
  wenshu history
  wenshu history --user alice --limit 5
  wenshu history --api-target http://localhost:8081
  wenshu history --local --sqlite ./wenshu.db`

const historyShortDesc string = "List recorded exchanges"

func NewHistoryCmd() *cobra.Command {
	cmder := &historyCommander{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: historyShortDesc,
		Long:  historyLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := backend.LoadViper(cmd, config.FlagAPITarget)
			if err != nil {
				return err
			}
			cmder.apiTarget = config.FromViper(v).Client.APITarget
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

	backend.AddFlags(cmd, config.FlagAPITarget)
	cmd.Flags().StringVar(&cmder.user, "user", "", "Only exchanges of this end-user")
	cmd.Flags().StringVar(&cmder.conversationID, "conversation", "", "Only exchanges of this conversation")
	cmd.Flags().IntVarP(&cmder.limit, "limit", "n", 20, "Maximum number of exchanges")
	cmd.Flags().BoolVar(&cmder.local, "local", false, "Read a SQLite history database directly")
	cmd.Flags().StringVarP(&cmder.sqlitePath, "sqlite", "s", "", "SQLite database for --local (default: auto-detect)")
	cmd.Flags().BoolVar(&cmder.full, "full", false, "Print whole answers instead of a preview")

	return cmd
}

func (c *historyCommander) run(ctx context.Context) error {
	c.logger = backend.CLILogger(c.debug)

	var (
		records []*storage.QueryRecord
		err     error
	)
	if c.local {
		records, err = c.localHistory(ctx)
	} else {
		var out *Output
		out, err = HistoryAPI(ctx, c.apiTarget, c.user, c.conversationID, c.limit)
		if out != nil {
			records = out.Records
		}
	}
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintf(c.out, "%s No recorded exchanges.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	for _, r := range records {
		answer := r.Answer
		if !c.full {
			answer = utils.Truncate(answer, previewRunes)
		}
		cliui.Exchange(c.out, r.CreatedAt, r.Query, answer)
	}
	return nil
}

func (c *historyCommander) localHistory(ctx context.Context) ([]*storage.QueryRecord, error) {
	path, err := sqlitepath.ResolveSQLitePath(c.sqlitePath)
	if err != nil {
		return nil, err
	}

	driver, err := sqlite.NewDriver(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer driver.Close()

	c.logger.Debug("reading local history", "path", path)
	return driver.ListQueries(ctx, storage.HistoryQuery{
		UserID:         c.user,
		ConversationID: c.conversationID,
		Limit:          c.limit,
	})
}

// HistoryAPI calls the records API history endpoint and returns the parsed output.
func HistoryAPI(ctx context.Context, apiTarget, user, conversationID string, limit int) (*Output, error) {
	historyURL, err := url.Parse(apiTarget)
	if err != nil {
		return nil, fmt.Errorf("invalid API target URL: %w", err)
	}
	historyURL.Path = "/history"
	q := historyURL.Query()
	if user != "" {
		q.Set("user", user)
	}
	if conversationID != "" {
		q.Set("conversation_id", conversationID)
	}
	q.Set("limit", strconv.Itoa(limit))
	historyURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, historyURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating history request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to wenshu API at %s: %w", apiTarget, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("history request failed (HTTP %d): %s", resp.StatusCode, string(body))
	}

	var output Output
	if err := sonic.ConfigStd.Unmarshal(body, &output); err != nil {
		return nil, fmt.Errorf("failed to parse history response: %w", err)
	}

	return &output, nil
}
