package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/systmms/btbroker/cmd/btbroker/commands"
	"github.com/systmms/btbroker/internal/config"
	dserrors "github.com/systmms/btbroker/internal/errors"
	"github.com/systmms/btbroker/internal/logging"
	"github.com/systmms/btbroker/internal/secure"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := run()
	secure.Purge()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", dserrors.SimplifyError(err))
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile string
		noColor    bool
		debug      bool
	)

	cfg := &config.Config{}

	rootCmd := &cobra.Command{
		Use:   "btbroker",
		Short: "BeyondTrust Password Safe credential broker",
		Long: `btbroker checks out managed account passwords and Secrets Safe items
from BeyondTrust Password Safe and serves them from a periodically
refreshed in-memory cache.

Configuration comes from BEYONDTRUST_* environment variables, optionally
layered over a YAML file given with --config.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg.Path = configFile
			cfg.Required = configFile != ""
			cfg.Logger = logging.New(debug, noColor)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Optional YAML config file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		commands.NewGetCommand(cfg),
		commands.NewListCommand(cfg),
		commands.NewWatchCommand(cfg),
		commands.NewServeCommand(cfg),
		commands.NewDoctorCommand(cfg),
		commands.NewLoginCommand(cfg),
	)

	return rootCmd.Execute()
}
