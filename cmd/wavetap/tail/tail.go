// Package tailcmder provides the tail command for merging a device's
// uplink and downlink feeds into one ordered output stream.
package tailcmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wavetapco/wavetap/pkg/config"
	"github.com/wavetapco/wavetap/pkg/feed"
	"github.com/wavetapco/wavetap/pkg/logger"
	"github.com/wavetapco/wavetap/pkg/merge"
	"github.com/wavetapco/wavetap/pkg/session"
	"github.com/wavetapco/wavetap/pkg/timeutil"
)

const tailLongDesc string = `Merge the uplink and downlink event feeds for a device.

Both feeds are fetched concurrently. Events arriving in the initial
aggregation window are sorted by their payload timestamp so the
historical backlog comes out in time order; everything after the window
is relayed as it arrives, each line prefixed with its feed of origin
(UP or DOWN). With --follow the connections stay open and events stream
live until interrupted.

Interrupt with Ctrl-C to stop; both connections are torn down before
exit.

Examples:
  wavetap tail ffffffffff00001b --follow
  wavetap tail ffffffffff00001b --since 2026-08-25 --until 2026-08-26
  wavetap tail ffffffffff00001b --follow --window 5 --no-sort`

const tailShortDesc string = "Merge the uplink and downlink feeds for a device"

type tailCommander struct {
	apiURL   string
	tokenURL string
	audience string

	since     string
	until     string
	follow    bool
	noSort    bool
	window    uint
	queueSize uint

	configDir string
	debug     bool

	deviceEUI string
	logger    *zap.Logger
}

func NewTailCmd() *cobra.Command {
	cmder := &tailCommander{}

	cmd := &cobra.Command{
		Use:   "tail <device-eui>",
		Short: tailShortDesc,
		Long:  tailLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return err
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, []string{
				config.FlagAPIURL, config.FlagTokenURL, config.FlagAudience,
				config.FlagWindow, config.FlagQueueSize,
			})

			cmder.apiURL = v.GetString("api.url")
			cmder.tokenURL = v.GetString("auth.token_url")
			cmder.audience = v.GetString("auth.audience")
			cmder.window = v.GetUint("tail.window_seconds")
			cmder.queueSize = v.GetUint("tail.queue_size")

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
	config.AddUintFlag(cmd, config.Flags, config.FlagWindow, &cmder.window)
	config.AddUintFlag(cmd, config.Flags, config.FlagQueueSize, &cmder.queueSize)
	cmd.Flags().StringVar(&cmder.since, "since", "", "Only events at or after this time (RFC3339 or YYYY-MM-DD[ HH:MM[:SS]])")
	cmd.Flags().StringVar(&cmder.until, "until", "", "Only events before this time")
	cmd.Flags().BoolVarP(&cmder.follow, "follow", "f", false, "Keep both connections open and stream events live")
	cmd.Flags().BoolVar(&cmder.noSort, "no-sort", false, "Skip the aggregation window and relay in arrival order")

	return cmd
}

func (c *tailCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	if c.until != "" && c.follow {
		return errors.New("--until and --follow are mutually exclusive")
	}

	var filters feed.Filters
	if c.since != "" {
		since, err := timeutil.ParseWhen(c.since)
		if err != nil {
			return fmt.Errorf("parsing --since: %w", err)
		}
		filters.Since = since
	}
	if c.until != "" {
		until, err := timeutil.ParseWhen(c.until)
		if err != nil {
			return fmt.Errorf("parsing --until: %w", err)
		}
		filters.Until = until
	}
	filters.Follow = c.follow

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

	merger := merge.New(merge.Config{
		Window:    time.Duration(c.window) * time.Second,
		QueueSize: int(c.queueSize),
		Sort:      !c.noSort,
		Logs:      os.Stderr,
		Logger:    c.logger,
	})

	up := merge.Pipeline{
		Origin: merge.OriginUp,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return sess.Client.OpenStream(ctx, feed.UplinkPath(c.deviceEUI), filters)
		},
	}
	down := merge.Pipeline{
		Origin: merge.OriginDown,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			return sess.Client.OpenStream(ctx, feed.DownlinkPath(c.deviceEUI), filters)
		},
	}

	err = merger.Run(ctx, up, down, os.Stdout)
	if errors.Is(err, context.Canceled) {
		c.logger.Debug("tail interrupted")
		return nil
	}

	return err
}
