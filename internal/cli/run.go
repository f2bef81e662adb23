package cli

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"anchor-rebalancer/internal/broker"
	"anchor-rebalancer/internal/config"
	"anchor-rebalancer/internal/events"
	"anchor-rebalancer/internal/market"
	"anchor-rebalancer/internal/metrics"
	"anchor-rebalancer/internal/orchestrator"
	"anchor-rebalancer/internal/orders"
)

func newRunCmd(app *App) *cobra.Command {
	var fillDelay time.Duration
	var barFiles map[string]string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the live polling loop over all stored positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			positions, err := app.Store.ListPositions(ctx)
			if err != nil {
				return err
			}

			resolver := config.NewResolver(app.Config.Defaults, app.Config.Overrides)
			provider := market.NewReplayProvider(time.Now)
			for symbol, path := range barFiles {
				bars, err := market.LoadCandlesCSV(path)
				if err != nil {
					return err
				}
				provider.AddSeries(symbol, bars)
				app.Logger.Info().Str("symbol", symbol).Int("bars", len(bars)).Msg("Quote series loaded")
			}
			brk := broker.NewPaperBroker(fillDelay)

			core := orchestrator.NewCore(app.Logger, app.Store, events.NewLog(), orders.NewBook(),
				resolver, brk, app.Config.Metrics.Enabled)
			for i := range positions {
				pos := positions[i]
				core.RegisterPosition(&pos)
				if _, ok := barFiles[pos.Symbol]; !ok {
					app.Logger.Warn().Str("symbol", pos.Symbol).Msg("No bar file for symbol, its polls will fail")
				}
				app.Logger.Info().
					Str("position", pos.ID).
					Str("symbol", pos.Symbol).
					Float64("anchor", pos.AnchorPrice).
					Msg("Position registered")
			}

			if app.Config.Metrics.Enabled {
				go func() {
					if err := metrics.Serve(app.Config.Metrics.Addr); err != nil {
						app.Logger.Error().Err(err).Msg("Metrics endpoint failed")
					}
				}()
			}

			live := orchestrator.NewLive(core, provider, orchestrator.RealClock{}, orchestrator.LiveConfig{
				PollInterval:  app.Config.Engine.PollInterval,
				QuoteMaxAge:   app.Config.Engine.QuoteMaxAge,
				RetryAttempts: app.Config.Engine.RetryAttempts,
			}, app.Logger)

			app.Logger.Info().
				Dur("interval", app.Config.Engine.PollInterval).
				Int("positions", len(positions)).
				Msg("Starting live loop")
			return live.Run(ctx)
		},
	}

	cmd.Flags().DurationVar(&fillDelay, "fill-delay", 500*time.Millisecond, "artificial paper-broker fill latency")
	cmd.Flags().StringToStringVar(&barFiles, "bars", nil, "symbol=path CSV bar files replayed as the live quote feed")
	cmd.MarkFlagRequired("bars")
	return cmd
}
