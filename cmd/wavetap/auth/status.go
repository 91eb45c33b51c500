package authcmder

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/wavetapco/wavetap/pkg/cliui"
	"github.com/wavetapco/wavetap/pkg/config"
	"github.com/wavetapco/wavetap/pkg/credentials"
	"github.com/wavetapco/wavetap/pkg/dotdir"
	"github.com/wavetapco/wavetap/pkg/token"
)

const statusLongDesc string = `Show stored credentials and cached token state.

Reads the credential store and the shared token cache; never contacts
the network.

Examples:
  wavetap auth status`

type statusCommander struct {
	tokenURL string
	audience string

	configDir string
}

func newStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored credentials and cached token state",
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}

			cmder.tokenURL = v.GetString("auth.token_url")
			cmder.audience = v.GetString("auth.audience")

			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return cmder.run()
		},
	}

	return cmd
}

func (c *statusCommander) run() error {
	creds, target, err := loadCredentials(c.configDir)
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s\n\n", cliui.HeaderStyle.Render("Authentication status"))

	if !creds.Configured() {
		fmt.Printf("  %s No stored credentials. Run 'wavetap auth login' first.\n\n", cliui.FailMark)
		return nil
	}

	fmt.Printf("  %s Client %s %s\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(creds.ClientID),
		cliui.DimStyle.Render("("+target+")"),
	)
	fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Token endpoint:"), cliui.ValueStyle.Render(c.tokenURL))
	if c.audience != "" {
		fmt.Printf("  %s %s\n", cliui.KeyStyle.Render("Audience:"), cliui.ValueStyle.Render(c.audience))
	}

	tok := cachedToken(c.configDir)
	switch {
	case tok == nil:
		fmt.Printf("\n  %s No cached token. The next command will request one.\n\n", cliui.DimStyle.Render("●"))
	case tok.Valid(time.Now()):
		fmt.Printf("\n  %s Cached token valid until %s\n\n",
			cliui.SuccessMark,
			cliui.ValueStyle.Render(tok.ExpiresAt().Local().Format(time.RFC3339)),
		)
	default:
		fmt.Printf("\n  %s Cached token expired at %s. The next command will refresh it.\n\n",
			cliui.WarnStyle.Render("!"),
			cliui.ValueStyle.Render(tok.ExpiresAt().Local().Format(time.RFC3339)),
		)
	}

	return nil
}

func loadCredentials(configDir string) (*credentials.Credentials, string, error) {
	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return nil, "", fmt.Errorf("loading credentials: %w", err)
	}

	creds, err := mgr.Load()
	if err != nil {
		return nil, "", err
	}

	return creds, mgr.GetTarget(), nil
}

// cachedToken reads the shared cache without any network access. A
// missing directory or record just means no token yet.
func cachedToken(configDir string) *token.Token {
	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil || target == "" {
		return nil
	}

	store := token.NewStore(token.Config{
		CachePath: filepath.Join(target, "token.cache"),
	})

	return store.Cached()
}
