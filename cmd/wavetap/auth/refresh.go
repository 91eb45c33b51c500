package authcmder

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wavetapco/wavetap/pkg/cliui"
	"github.com/wavetapco/wavetap/pkg/config"
	"github.com/wavetapco/wavetap/pkg/logger"
	"github.com/wavetapco/wavetap/pkg/session"
	"github.com/wavetapco/wavetap/pkg/token"
)

const refreshLongDesc string = `Force a token refresh.

Invalidates the cached access token and requests a new one from the
authorization endpoint, regardless of whether the cached token is still
valid.

Examples:
  wavetap auth refresh`

type refreshCommander struct {
	apiURL   string
	tokenURL string
	audience string

	configDir string
	debug     bool
}

func newRefreshCmd() *cobra.Command {
	cmder := &refreshCommander{}

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Force a token refresh",
		Long:  refreshLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, []string{
				config.FlagAPIURL, config.FlagTokenURL, config.FlagAudience,
			})

			cmder.apiURL = v.GetString("api.url")
			cmder.tokenURL = v.GetString("auth.token_url")
			cmder.audience = v.GetString("auth.audience")

			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIURL, &cmder.apiURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagTokenURL, &cmder.tokenURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagAudience, &cmder.audience)

	return cmd
}

func (c *refreshCommander) run() error {
	log := logger.NewLogger(c.debug)
	defer func() { _ = log.Sync() }()

	sess, err := session.New(session.Options{
		APIURL:    c.apiURL,
		TokenURL:  c.tokenURL,
		Audience:  c.audience,
		ConfigDir: c.configDir,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var tok *token.Token
	err = cliui.Step(os.Stderr, "Refreshing access token", func() error {
		var stepErr error
		tok, stepErr = sess.Tokens.Refresh(ctx)
		return stepErr
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s Token refreshed, valid until %s\n\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(tok.ExpiresAt().Local().Format(time.RFC3339)),
	)

	return nil
}
