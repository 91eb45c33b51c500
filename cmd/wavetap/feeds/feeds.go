// Package feedscmder provides the uplink and downlink commands for
// fetching a single device event feed.
package feedscmder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wavetapco/wavetap/pkg/config"
	"github.com/wavetapco/wavetap/pkg/feed"
	"github.com/wavetapco/wavetap/pkg/logger"
	"github.com/wavetapco/wavetap/pkg/session"
	"github.com/wavetapco/wavetap/pkg/sse"
	"github.com/wavetapco/wavetap/pkg/timeutil"
)

type feedCommander struct {
	apiURL   string
	tokenURL string
	audience string

	since  string
	until  string
	follow bool

	configDir string
	debug     bool

	deviceEUI string
	path      func(string) string
	logger    *zap.Logger
}

const uplinkLongDesc string = `Fetch the uplink event feed for a device.

With --until the query is a bounded historical range returned as one
JSON document. Without --until, --follow keeps the connection open and
streams events live as the network receives them.

Examples:
  wavetap uplink ffffffffff00001b --since 2026-08-01 --until 2026-08-02
  wavetap uplink ffffffffff00001b --since 2026-08-25 --follow`

const downlinkLongDesc string = `Fetch the downlink event feed for a device.

With --until the query is a bounded historical range returned as one
JSON document. Without --until, --follow keeps the connection open and
streams events live as the network sends them.

Examples:
  wavetap downlink ffffffffff00001b --since 2026-08-01 --until 2026-08-02
  wavetap downlink ffffffffff00001b --follow`

// NewUplinkCmd returns the uplink feed command.
func NewUplinkCmd() *cobra.Command {
	return newFeedCmd("uplink", "Fetch the uplink event feed for a device", uplinkLongDesc, feed.UplinkPath)
}

// NewDownlinkCmd returns the downlink feed command.
func NewDownlinkCmd() *cobra.Command {
	return newFeedCmd("downlink", "Fetch the downlink event feed for a device", downlinkLongDesc, feed.DownlinkPath)
}

func newFeedCmd(use, short, long string, path func(string) string) *cobra.Command {
	cmder := &feedCommander{path: path}

	cmd := &cobra.Command{
		Use:   use + " <device-eui>",
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(1),
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
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.deviceEUI = args[0]

			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIURL, &cmder.apiURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagTokenURL, &cmder.tokenURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagAudience, &cmder.audience)
	cmd.Flags().StringVar(&cmder.since, "since", "", "Only events at or after this time (RFC3339 or YYYY-MM-DD[ HH:MM[:SS]])")
	cmd.Flags().StringVar(&cmder.until, "until", "", "Only events before this time; selects the one-shot historical query")
	cmd.Flags().BoolVarP(&cmder.follow, "follow", "f", false, "Keep the connection open and stream events live")

	return cmd
}

// parseFilters validates the time arguments. Failures here are fatal
// and must surface before any network call.
func (c *feedCommander) parseFilters() (feed.Filters, error) {
	var filters feed.Filters

	if c.since != "" {
		since, err := timeutil.ParseWhen(c.since)
		if err != nil {
			return filters, fmt.Errorf("parsing --since: %w", err)
		}
		filters.Since = since
	}

	if c.until != "" {
		until, err := timeutil.ParseWhen(c.until)
		if err != nil {
			return filters, fmt.Errorf("parsing --until: %w", err)
		}
		filters.Until = until
	}

	filters.Follow = c.follow

	return filters, nil
}

func (c *feedCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	if c.until != "" && c.follow {
		return errors.New("--until and --follow are mutually exclusive")
	}

	filters, err := c.parseFilters()
	if err != nil {
		return err
	}

	sess, err := session.New(session.Options{
		APIURL:    c.apiURL,
		TokenURL:  c.tokenURL,
		Audience:  c.audience,
		ConfigDir: c.configDir,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := c.path(c.deviceEUI)

	// A bounded historical range comes back as one JSON document.
	if c.until != "" {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()

		doc, err := sess.Client.FetchDocument(ctx, path, filters)
		if err != nil {
			return err
		}

		fmt.Println(string(doc))
		return nil
	}

	return c.stream(ctx, sess, path, filters)
}

// stream decodes the live SSE feed and prints each event payload.
func (c *feedCommander) stream(ctx context.Context, sess *session.Session, path string, filters feed.Filters) error {
	body, err := sess.Client.OpenStream(ctx, path, filters)
	if err != nil {
		return err
	}
	defer body.Close()

	dec := sse.NewDecoder(body, os.Stderr, c.logger)
	for {
		ev, err := dec.Next()
		if err != nil {
			// Interrupts surface as read errors on the body.
			if ctx.Err() != nil {
				c.logger.Debug("stream cancelled")
				return nil
			}
			return err
		}
		if ev == nil {
			return nil
		}

		fmt.Println(ev.Data)
	}
}
