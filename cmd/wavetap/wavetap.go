// Package wavetapcmder
package wavetapcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/wavetapco/wavetap/cmd/wavetap/auth"
	configcmder "github.com/wavetapco/wavetap/cmd/wavetap/config"
	feedscmder "github.com/wavetapco/wavetap/cmd/wavetap/feeds"
	sendcmder "github.com/wavetapco/wavetap/cmd/wavetap/send"
	tailcmder "github.com/wavetapco/wavetap/cmd/wavetap/tail"
	versioncmder "github.com/wavetapco/wavetap/cmd/version"
)

const wavetapLongDesc string = `Wavetap is a command-line client for the device-telemetry network API.

Fetch event feeds for a device:
  wavetap uplink <device-eui>     Fetch the uplink event feed
  wavetap downlink <device-eui>   Fetch the downlink event feed
  wavetap tail <device-eui>       Merge both feeds into one ordered stream

Queue a downlink packet:
  wavetap send <device-eui> --port 1 --payload 0101

Manage authentication:
  wavetap auth login              Store OAuth2 client credentials
  wavetap auth refresh            Force a token refresh
  wavetap auth status             Show cached token validity`

const wavetapShortDesc string = "Wavetap - device telemetry CLI"

func NewWavetapCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wavetap",
		Short: wavetapShortDesc,
		Long:  wavetapLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .wavetap/ directory location")

	// Add subcommands
	cmd.AddCommand(feedscmder.NewUplinkCmd())
	cmd.AddCommand(feedscmder.NewDownlinkCmd())
	cmd.AddCommand(tailcmder.NewTailCmd())
	cmd.AddCommand(sendcmder.NewSendCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
