package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/systmms/btbroker/internal/config"
	"github.com/systmms/btbroker/internal/metrics"
)

const shutdownTimeout = 15 * time.Second

func NewServeCommand(cfg *config.Config) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the broker with a metrics and health endpoint",
		Long: `Start the broker and keep its cache refreshed until SIGINT or SIGTERM.

The metrics server exposes /metrics (Prometheus), /health and /ready. /ready
reports 503 until the initial refresh cycle has completed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := loadOptions(cfg)
			if err != nil {
				return err
			}

			metrics.Init()

			b, err := newBroker(cfg, opts, brokerSettings(opts))
			if err != nil {
				return err
			}
			defer b.Cache().Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			serverCfg := metrics.DefaultServerConfig()
			serverCfg.Addr = metricsAddr
			server := metrics.NewServer(serverCfg, b.Ready)

			logger := loggerOf(cfg)
			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				logger.Info("metrics listening on %s", metricsAddr)
				return server.Serve(gctx, shutdownTimeout)
			})

			g.Go(func() error {
				if err := b.Start(gctx); err != nil {
					return err
				}
				<-gctx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return b.Stop(shutdownCtx)
			})

			err = g.Wait()
			logger.Info("broker stopped")
			return err
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", metrics.DefaultServerConfig().Addr, "Listen address for /metrics, /health and /ready")

	return cmd
}
