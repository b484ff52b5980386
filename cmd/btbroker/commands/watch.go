package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/btbroker/internal/config"
	dserrors "github.com/systmms/btbroker/internal/errors"
)

func NewWatchCommand(cfg *config.Config) *cobra.Command {
	var (
		every  time.Duration
		reveal bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the broker and print the cache periodically",
		Long: `Start the broker with its configured refresh interval and print the
cache contents every --every until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if every <= 0 {
				return dserrors.UserError{
					Message:    "Print interval must be positive",
					Suggestion: "Use --every 5s",
				}
			}

			opts, err := loadOptions(cfg)
			if err != nil {
				return err
			}

			b, err := newBroker(cfg, opts, brokerSettings(opts))
			if err != nil {
				return err
			}
			defer b.Cache().Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := b.Start(ctx); err != nil {
				return err
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = b.Stop(shutdownCtx)
			}()

			out := cmd.OutOrStdout()
			ticker := time.NewTicker(every)
			defer ticker.Stop()

			for {
				_, _ = fmt.Fprintf(out, "--- %s ---\n", time.Now().Format(time.RFC3339))
				if err := printCache(out, b.Cache(), reveal); err != nil {
					return err
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().DurationVar(&every, "every", 5*time.Second, "How often to print the cache")
	cmd.Flags().BoolVar(&reveal, "reveal", false, "Print secret values instead of [REDACTED]")

	return cmd
}
