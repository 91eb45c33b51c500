// Package sendcmder provides the send command for queueing a downlink
// packet to a device.
package sendcmder

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wavetapco/wavetap/pkg/cliui"
	"github.com/wavetapco/wavetap/pkg/config"
	"github.com/wavetapco/wavetap/pkg/logger"
	"github.com/wavetapco/wavetap/pkg/session"
)

const sendLongDesc string = `Queue a downlink packet for a device.

The payload is hex-encoded application bytes; the network schedules the
packet for the device's next receive window. With --confirmed the device
must acknowledge receipt.

Examples:
  wavetap send ffffffffff00001b --port 1 --payload 0101
  wavetap send ffffffffff00001b --port 12 --payload deadbeef --confirmed`

const sendShortDesc string = "Queue a downlink packet for a device"

type sendCommander struct {
	apiURL   string
	tokenURL string
	audience string

	port      int
	payload   string
	confirmed bool

	configDir string
	debug     bool

	deviceEUI string
}

func NewSendCmd() *cobra.Command {
	cmder := &sendCommander{}

	cmd := &cobra.Command{
		Use:   "send <device-eui>",
		Short: sendShortDesc,
		Long:  sendLongDesc,
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
	cmd.Flags().IntVarP(&cmder.port, "port", "p", 1, "Application port (fPort) for the packet")
	cmd.Flags().StringVar(&cmder.payload, "payload", "", "Hex-encoded packet payload (required)")
	cmd.Flags().BoolVar(&cmder.confirmed, "confirmed", false, "Request device acknowledgement")
	_ = cmd.MarkFlagRequired("payload")

	return cmd
}

// validate checks the packet arguments before any network call.
func (c *sendCommander) validate() error {
	if c.port < 1 || c.port > 223 {
		return fmt.Errorf("port %d out of range (1-223)", c.port)
	}

	if c.payload == "" {
		return errors.New("payload cannot be empty")
	}
	if _, err := hex.DecodeString(c.payload); err != nil {
		return fmt.Errorf("payload is not valid hex: %w", err)
	}

	return nil
}

func (c *sendCommander) run() error {
	log := logger.NewLogger(c.debug)
	defer func() { _ = log.Sync() }()

	if err := c.validate(); err != nil {
		return err
	}

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

	err = cliui.Step(os.Stderr, "Queueing downlink packet", func() error {
		return sess.Client.SubmitDownlink(ctx, c.deviceEUI, c.port, c.confirmed, c.payload)
	})
	if err != nil {
		return err
	}

	fmt.Printf("\n  %s Queued %s on port %s for device %s\n\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(c.payload),
		cliui.ValueStyle.Render(fmt.Sprintf("%d", c.port)),
		cliui.NameStyle.Render(c.deviceEUI),
	)

	return nil
}
