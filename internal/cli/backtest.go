package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"anchor-rebalancer/internal/config"
	"anchor-rebalancer/internal/market"
	"anchor-rebalancer/internal/models"
	"anchor-rebalancer/internal/orchestrator"
	"anchor-rebalancer/pkg/utils"
)

func newBacktestCmd(app *App) *cobra.Command {
	var (
		barsPath string
		symbol   string
		cash     float64
		qty      float64
		anchor   float64
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay a historical bar file against a fresh position",
		RunE: func(cmd *cobra.Command, args []string) error {
			bars, err := market.LoadCandlesCSV(barsPath)
			if err != nil {
				return err
			}
			if len(bars) == 0 {
				return fmt.Errorf("no bars in %s", barsPath)
			}
			if anchor <= 0 {
				anchor = bars[0].Close
			}

			pos := models.PositionCell{
				ID:          "backtest",
				TenantID:    "local",
				PortfolioID: "backtest",
				Symbol:      symbol,
				Qty:         qty,
				Cash:        cash,
				AnchorPrice: anchor,
				AvgCost:     anchor,
				CreatedAt:   bars[0].Timestamp,
				UpdatedAt:   bars[0].Timestamp,
			}

			resolver := config.NewResolver(app.Config.Defaults, app.Config.Overrides)
			sim := orchestrator.NewSimulation(pos, resolver, app.Logger)
			res, err := sim.Run(cmd.Context(), pos.ID, market.NewBarSource(symbol, bars))
			if err != nil {
				return err
			}

			printBacktestResult(res, len(bars))
			return nil
		},
	}

	cmd.Flags().StringVar(&barsPath, "bars", "", "CSV file of historical bars (timestamp,open,high,low,close,volume)")
	cmd.Flags().StringVar(&symbol, "symbol", "SPY", "asset symbol")
	cmd.Flags().Float64Var(&cash, "cash", 10000, "starting cash")
	cmd.Flags().Float64Var(&qty, "qty", 0, "starting share quantity")
	cmd.Flags().Float64Var(&anchor, "anchor", 0, "starting anchor price (default: first close)")
	cmd.MarkFlagRequired("bars")
	return cmd
}

func printBacktestResult(res *orchestrator.BacktestResult, barCount int) {
	var b strings.Builder
	fmt.Fprintf(&b, "Bars:           %d\n", barCount)
	fmt.Fprintf(&b, "Initial value:  %s\n", utils.FormatMoney(res.InitialValue))
	fmt.Fprintf(&b, "Final value:    %s\n", utils.FormatMoney(res.FinalValue))
	fmt.Fprintf(&b, "Return:         %s\n", utils.FormatPercent(res.ReturnPct))
	fmt.Fprintf(&b, "Max drawdown:   %.2f%%\n", res.MaxDrawdown*100)
	fmt.Fprintf(&b, "Triggers fired: %d\n", res.TriggersFired)
	fmt.Fprintf(&b, "Skips:          %d\n", res.Skips)
	fmt.Fprintf(&b, "Trades:         %d\n", res.Trades)
	fmt.Fprintf(&b, "Final position: qty=%s cash=%s anchor=%.2f\n",
		utils.FormatQty(res.FinalPosition.Qty),
		utils.FormatMoney(res.FinalPosition.Cash),
		res.FinalPosition.AnchorPrice)
	fmt.Print(b.String())
}

func newSweepCmd(app *App) *cobra.Command {
	var (
		barsPath string
		symbol   string
		cash     float64
		qty      float64
		anchor   float64
		ups      []float64
		downs    []float64
		ratios   []float64
		top      int
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Grid-search trigger thresholds and rebalance ratio over a bar file",
		RunE: func(cmd *cobra.Command, args []string) error {
			bars, err := market.LoadCandlesCSV(barsPath)
			if err != nil {
				return err
			}
			if len(bars) == 0 {
				return fmt.Errorf("no bars in %s", barsPath)
			}
			if anchor <= 0 {
				anchor = bars[0].Close
			}

			pos := models.PositionCell{
				ID:          "sweep",
				TenantID:    "local",
				PortfolioID: "sweep",
				Symbol:      symbol,
				Qty:         qty,
				Cash:        cash,
				AnchorPrice: anchor,
				AvgCost:     anchor,
				CreatedAt:   bars[0].Timestamp,
				UpdatedAt:   bars[0].Timestamp,
			}

			started := time.Now()
			rows, err := orchestrator.RunSweep(cmd.Context(), pos, app.Config.Defaults, bars, orchestrator.SweepGrid{
				UpThresholds:   ups,
				DownThresholds: downs,
				RebalanceRatio: ratios,
			}, app.Logger)
			if err != nil {
				return err
			}

			fmt.Printf("%d combinations in %s\n\n", len(rows), time.Since(started).Round(time.Millisecond))
			fmt.Printf("%-8s %-8s %-8s %-10s %-10s %s\n", "UP%", "DOWN%", "RATIO", "RETURN", "MAXDD", "TRADES")
			for i, row := range rows {
				if top > 0 && i >= top {
					break
				}
				fmt.Printf("%-8.2f %-8.2f %-8.2f %-10s %-10.2f %d\n",
					row.UpThresholdPct, row.DownThresholdPct, row.RebalanceRatio,
					utils.FormatPercent(row.Result.ReturnPct), row.Result.MaxDrawdown*100, row.Result.Trades)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&barsPath, "bars", "", "CSV file of historical bars")
	cmd.Flags().StringVar(&symbol, "symbol", "SPY", "asset symbol")
	cmd.Flags().Float64Var(&cash, "cash", 10000, "starting cash")
	cmd.Flags().Float64Var(&qty, "qty", 0, "starting share quantity")
	cmd.Flags().Float64Var(&anchor, "anchor", 0, "starting anchor price (default: first close)")
	cmd.Flags().Float64SliceVar(&ups, "up", nil, "up thresholds to sweep")
	cmd.Flags().Float64SliceVar(&downs, "down", nil, "down thresholds to sweep")
	cmd.Flags().Float64SliceVar(&ratios, "ratio", nil, "rebalance ratios to sweep")
	cmd.Flags().IntVar(&top, "top", 10, "rows to print (0 = all)")
	cmd.MarkFlagRequired("bars")
	return cmd
}
