// Package cli provides the command-line interface for the rebalancer.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"anchor-rebalancer/internal/config"
	"anchor-rebalancer/internal/store"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.DataStore
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	switch cfg.Store.Driver {
	case "memory":
		app.Store = store.NewMemoryStore()
	default:
		ds, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize store, falling back to memory")
			app.Store = store.NewMemoryStore()
		} else {
			app.Store = ds
		}
	}

	rootCmd := &cobra.Command{
		Use:   "rebalancer",
		Short: "Anchor-based rebalancing for single-asset position cells",
		Long: `rebalancer runs a rules-based, semi-passive rebalancing strategy:
each position cell (cash + stock) is evaluated against a reference anchor
price, and deviation beyond the configured band proposes a guardrail-checked
rebalancing trade. The same decision engine drives live polling, backtests
and parameter sweeps.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		newRunCmd(app),
		newBacktestCmd(app),
		newSweepCmd(app),
		newPositionCmd(app),
		newAnchorCmd(app),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("rebalancer %s\n", Version)
		},
	}
}
