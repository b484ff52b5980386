package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/btbroker/internal/cache"
	"github.com/systmms/btbroker/internal/config"
	"github.com/systmms/btbroker/internal/logging"
)

func NewListCommand(cfg *config.Config) *cobra.Command {
	var reveal bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch once and list cached keys",
		Long: `Run one refresh cycle and list every cached key with its status.

Values are redacted unless --reveal is given. Error sentinels are always
shown so failed fetches stand out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
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

			if err := b.Start(cmd.Context()); err != nil {
				return err
			}
			return printCache(cmd.OutOrStdout(), b.Cache(), reveal)
		},
	}

	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print secret values instead of [REDACTED]")

	return cmd
}

// printCache writes a KEY/STATUS/UPDATED/VALUE table.
func printCache(w io.Writer, c *cache.Cache, reveal bool) error {
	keys := c.Keys()
	if len(keys) == 0 {
		_, err := fmt.Fprintln(w, "(cache is empty)")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "KEY\tSTATUS\tUPDATED\tVALUE\n")

	for _, key := range keys {
		info, ok := c.Describe(key)
		if !ok {
			continue
		}
		value := c.Value(key)

		status := "✓ ok"
		shown := fmt.Sprint(logging.Secret(value))
		switch {
		case cache.IsSentinel(value):
			status = "✗ error"
			shown = value
		case reveal:
			shown = value
		}

		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Key, status, info.UpdatedAt.Format(time.RFC3339), shown)
	}

	return tw.Flush()
}
