// Package authcmder provides the auth command for storing Dify API keys.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/wenshu/pkg/cliui"
	"github.com/papercomputeco/wenshu/pkg/credentials"
)

const authLongDesc string = `Store the API key of a Dify application.

Keys are stored in credentials.toml in the .wenshu/ directory, one per app
name. The gateway uses the key of the app named by dify.app_name, or of the
"default" app. WENSHU_DIFY_API_KEY and DIFY_API_KEY take precedence over
stored keys.

Examples:
  wenshu auth                    Prompt for the default app key
  wenshu auth sales-bot          Prompt for the key of the sales-bot app
  wenshu auth --list             List stored credentials
  wenshu auth --remove sales-bot Remove stored credentials of an app
  echo $KEY | wenshu auth        Pipe the API key from stdin`

const authShortDesc string = "Store Dify API credentials"

func NewAuthCmd() *cobra.Command {
	var listFlag bool
	var removeFlag string

	cmd := &cobra.Command{
		Use:   "auth [app]",
		Short: authShortDesc,
		Long:  authLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			out := cmd.OutOrStdout()

			switch {
			case listFlag:
				return runList(out, configDir)
			case removeFlag != "":
				return runRemove(out, removeFlag, configDir)
			default:
				app := credentials.DefaultApp
				if len(args) == 1 {
					app = args[0]
				}
				return runAuth(out, cmd.InOrStdin(), app, configDir)
			}
		},
	}

	cmd.Flags().BoolVar(&listFlag, "list", false, "List stored credentials")
	cmd.Flags().StringVar(&removeFlag, "remove", "", "Remove stored credentials for an app")

	return cmd
}

func runAuth(out io.Writer, in io.Reader, app, configDir string) error {
	app = strings.TrimSpace(app)

	apiKey, err := readAPIKey(out, in, app)
	if err != nil {
		return err
	}

	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return errors.New("API key cannot be empty")
	}

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.SetKey(app, apiKey); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Stored %s credentials %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(app),
		cliui.DimStyle.Render("("+mgr.GetTarget()+")"),
	)

	if !strings.HasPrefix(apiKey, "app-") {
		fmt.Fprintf(out, "  %s Dify application keys usually start with app-.\n",
			cliui.WarnStyle.Render("!"))
	}

	fmt.Fprintln(out)
	return nil
}

func runList(out io.Writer, configDir string) error {
	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	apps, err := mgr.ListApps()
	if err != nil {
		return err
	}

	if len(apps) == 0 {
		fmt.Fprintf(out, "\n  %s No stored credentials.\n", cliui.DimStyle.Render("●"))
		fmt.Fprintf(out, "  Use 'wenshu auth [app]' to store credentials.\n\n")
		return nil
	}

	fmt.Fprintf(out, "\n  %s\n\n", cliui.HeaderStyle.Render("Stored credentials"))
	for _, app := range apps {
		fmt.Fprintf(out, "  %s  %s\n", cliui.SuccessMark, cliui.NameStyle.Render(app))
	}
	fmt.Fprintln(out)

	return nil
}

func runRemove(out io.Writer, app, configDir string) error {
	app = strings.TrimSpace(app)

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.RemoveKey(app); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n  %s Removed %s credentials.\n\n", cliui.SuccessMark, cliui.NameStyle.Render(app))

	return nil
}

// readAPIKey reads an API key from in. If in is not a terminal, it reads the
// first line. Otherwise, it prompts interactively with hidden input.
func readAPIKey(out io.Writer, in io.Reader, app string) (string, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		scanner := bufio.NewScanner(in)
		if scanner.Scan() {
			return scanner.Text(), nil
		}
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return "", errors.New("no input received on stdin")
	}

	fmt.Fprintf(out, "Enter Dify API key for %s: ", app)

	keyBytes, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(out) // newline after hidden input
	if err != nil {
		return "", fmt.Errorf("reading API key: %w", err)
	}

	return string(keyBytes), nil
}
