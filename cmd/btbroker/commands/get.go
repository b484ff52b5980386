package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/btbroker/internal/config"
	dserrors "github.com/systmms/btbroker/internal/errors"
	"github.com/systmms/btbroker/pkg/provider"
)

func NewGetCommand(cfg *config.Config) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Fetch once and print a single secret value",
		Long: `Run one refresh cycle and print the value cached under <key>.

Managed accounts are keyed bt.acc.<system>.<account>; Secrets Safe items
bt.safe.<folder>.<title>.password and .username. Keys are case-insensitive.
A fetch that failed prints its error sentinel (ERROR_REQ_ID_NOT_FOUND,
ERROR_EXCEPTION or ERROR_CRED_FAIL).

Examples:
  btbroker get bt.acc.DB01.sa
  btbroker get bt.safe.Dev.App1_DB.password --json
  export DB_PASS=$(btbroker get bt.acc.DB01.sa)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := strings.TrimSpace(args[0])

			opts, err := loadOptions(cfg)
			if err != nil {
				return err
			}
			settings := brokerSettings(opts)
			settings.Interval = 0

			b, err := newBroker(cfg, opts, settings)
			if err != nil {
				return err
			}
			defer b.Cache().Close()

			if !b.Active() {
				return dserrors.UserError{
					Message:    "Nothing to fetch",
					Suggestion: "Set BEYONDTRUST_ENABLED=true and BEYONDTRUST_API_KEY (or run 'btbroker login')",
				}
			}

			ctx := cmd.Context()
			if err := b.Start(ctx); err != nil {
				return err
			}

			p := provider.NewBeyondTrust(b.Cache(), b.Ready)
			sv, err := p.Resolve(ctx, provider.Reference{Provider: provider.BeyondTrustName, Key: key})
			if err != nil {
				var nf provider.NotFoundError
				if errors.As(err, &nf) {
					suggestion := "Run 'btbroker list' to see available keys"
					if similar := similarKeys(p.Keys(), key, 5); len(similar) > 0 {
						suggestion = fmt.Sprintf("Similar keys: %s", strings.Join(similar, ", "))
					}
					return dserrors.UserError{
						Message:    fmt.Sprintf("Key '%s' not found", key),
						Suggestion: suggestion,
						Err:        err,
					}
				}
				return err
			}

			if sv.Metadata["sentinel"] == "true" {
				loggerOf(cfg).Warn("%s could not be fetched: %s", key, sv.Value)
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				payload := map[string]interface{}{
					"key":        key,
					"value":      sv.Value,
					"type":       sv.Metadata["type"],
					"sentinel":   sv.Metadata["sentinel"] == "true",
					"updated_at": sv.UpdatedAt.UTC().Format(time.RFC3339),
				}
				data, err := json.MarshalIndent(payload, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal JSON: %w", err)
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}

			_, err = fmt.Fprintln(out, sv.Value)
			return err
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output value with metadata as JSON")

	return cmd
}
