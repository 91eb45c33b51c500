// Package configcmder provides the config command for managing persistent
// wavetap configuration stored in the .wavetap/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent wavetap configuration.

Configuration is stored as config.toml in the .wavetap/ directory and
provides default values for command flags. CLI flags always take
precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  api.url,
  auth.token_url, auth.audience,
  tail.window_seconds, tail.queue_size

Use subcommands to get, set, or list configuration values:
  wavetap config set <key> <value>    Set a configuration value
  wavetap config get <key>            Get a configuration value
  wavetap config list                 List all configuration values

Examples:
  wavetap config set api.url https://network.wavetap.io/v1
  wavetap config set tail.window_seconds 5
  wavetap config get auth.token_url
  wavetap config list`

const configShortDesc string = "Manage persistent wavetap configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
