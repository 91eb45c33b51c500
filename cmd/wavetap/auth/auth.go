// Package authcmder provides the auth command for managing OAuth2
// client credentials and the shared token cache.
package authcmder

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wavetapco/wavetap/pkg/cliui"
	"github.com/wavetapco/wavetap/pkg/credentials"
)

const authLongDesc string = `Manage OAuth2 client credentials for the network API.

Credentials are stored in credentials.toml in the .wavetap/ directory.
Access tokens obtained with them are cached in the same directory and
shared across concurrent wavetap processes.

Examples:
  wavetap auth login               Prompt for client id and secret
  printf '%s\n%s\n' "$ID" "$SECRET" | wavetap auth login
  wavetap auth refresh             Force a new token now
  wavetap auth status              Show stored credentials and token state
  wavetap auth logout              Remove the stored credential pair`

const authShortDesc string = "Manage OAuth2 client credentials"

func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: authShortDesc,
		Long:  authLongDesc,
	}

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newLogoutCmd())

	return cmd
}

const loginLongDesc string = `Store the OAuth2 client id and secret.

Prompts interactively with hidden secret input. When stdin is a pipe,
reads the client id from the first line and the secret from the second.

Examples:
  wavetap auth login
  printf '%s\n%s\n' "$ID" "$SECRET" | wavetap auth login`

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store the OAuth2 client id and secret",
		Long:  loginLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runLogin(configDir)
		},
	}
}

func runLogin(configDir string) error {
	clientID, clientSecret, err := readCredentialPair()
	if err != nil {
		return err
	}

	clientID = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)
	if clientID == "" {
		return errors.New("client id cannot be empty")
	}
	if clientSecret == "" {
		return errors.New("client secret cannot be empty")
	}

	mgr, err := credentials.NewManager(configDir)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	if err := mgr.Set(clientID, clientSecret); err != nil {
		return err
	}

	fmt.Printf("\n  %s Stored credentials for client %s\n\n",
		cliui.SuccessMark,
		cliui.NameStyle.Render(clientID),
	)

	return nil
}

// readCredentialPair reads the client id and secret from stdin. If stdin
// is a pipe it reads two lines; otherwise it prompts interactively with
// hidden secret input.
func readCredentialPair() (string, string, error) {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return "", "", fmt.Errorf("checking stdin: %w", err)
	}

	// Piped input
	if (fi.Mode() & os.ModeCharDevice) == 0 {
		scanner := bufio.NewScanner(os.Stdin)

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", "", fmt.Errorf("reading stdin: %w", err)
			}
			return "", "", errors.New("no input received on stdin")
		}
		clientID := scanner.Text()

		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", "", fmt.Errorf("reading stdin: %w", err)
			}
			return "", "", errors.New("expected client secret on second stdin line")
		}

		return clientID, scanner.Text(), nil
	}

	// Interactive terminal
	fmt.Print("Client ID: ")
	reader := bufio.NewReader(os.Stdin)
	clientID, err := reader.ReadString('\n')
	if err != nil {
		return "", "", fmt.Errorf("reading client id: %w", err)
	}

	fmt.Print("Client secret: ")
	secretBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println() // newline after hidden input
	if err != nil {
		return "", "", fmt.Errorf("reading client secret: %w", err)
	}

	return clientID, string(secretBytes), nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credential pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")

			mgr, err := credentials.NewManager(configDir)
			if err != nil {
				return fmt.Errorf("loading credentials: %w", err)
			}

			if err := mgr.Clear(); err != nil {
				return err
			}

			fmt.Printf("\n  %s Removed stored credentials.\n\n", cliui.SuccessMark)
			return nil
		},
	}
}
