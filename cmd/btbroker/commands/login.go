package commands

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/systmms/btbroker/internal/config"
	dserrors "github.com/systmms/btbroker/internal/errors"
)

func NewLoginCommand(cfg *config.Config) *cobra.Command {
	var (
		key       string
		fromStdin bool
		remove    bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the BeyondTrust API key in the OS keyring",
		Long: `Save the API key for the configured BEYONDTRUST_API_URL in the OS keyring
so it need not be kept in the environment. Enable its use with
BEYONDTRUST_USE_KEYRING=true.

The key may carry a run-as user: "key=<key>;runas=<user>;".

Examples:
  btbroker login --key 'key=abc123;runas=svc-broker;'
  cat key.txt | btbroker login --stdin
  btbroker login --delete`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			apiURL := cfg.Options.APIURL
			user := config.KeyringUser(apiURL)
			out := cmd.OutOrStdout()

			if remove {
				if err := config.DeleteAPIKey(apiURL); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(out, "✓ Removed API key for %s\n", user)
				return nil
			}

			if fromStdin {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return dserrors.UserError{
						Message:    "No API key on standard input",
						Suggestion: "Pipe the key in, e.g. cat key.txt | btbroker login --stdin",
						Err:        err,
					}
				}
				key = line
			}

			key = strings.TrimSpace(key)
			if key == "" {
				return dserrors.UserError{
					Message:    "API key is required",
					Suggestion: "Use --key <key> or --stdin",
				}
			}

			if err := config.StoreAPIKey(apiURL, key); err != nil {
				return dserrors.UserError{
					Message:    "Failed to store API key",
					Details:    err.Error(),
					Suggestion: "Make sure an OS keyring (Keychain, Secret Service, Credential Manager) is available",
					Err:        err,
				}
			}

			_, _ = fmt.Fprintf(out, "✓ Stored API key for %s in keyring service %q\n", user, config.KeyringService)
			if !cfg.Options.UseKeyring {
				_, _ = fmt.Fprintln(out, "  Set BEYONDTRUST_USE_KEYRING=true to use it")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "", "API key to store")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read the API key from standard input")
	cmd.Flags().BoolVar(&remove, "delete", false, "Remove the stored API key")

	return cmd
}
