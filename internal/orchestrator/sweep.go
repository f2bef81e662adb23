package orchestrator

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"anchor-rebalancer/internal/config"
	"anchor-rebalancer/internal/market"
	"anchor-rebalancer/internal/models"
)

// SweepGrid defines the parameter combinations to backtest. Empty lists
// fall back to the base config's value.
type SweepGrid struct {
	UpThresholds   []float64
	DownThresholds []float64
	RebalanceRatio []float64
}

// SweepRow is one grid point's outcome.
type SweepRow struct {
	UpThresholdPct   float64
	DownThresholdPct float64
	RebalanceRatio   float64
	Result           *BacktestResult
}

// RunSweep backtests every grid combination against the same bar series.
// Runs execute in parallel; each owns an isolated simulation, so there is
// no shared mutation across runs. Rows come back sorted by return,
// best first.
func RunSweep(ctx context.Context, base models.PositionCell, defaults config.StrategyDefaults, bars []models.Candle, grid SweepGrid, logger zerolog.Logger) ([]SweepRow, error) {
	ups := orDefault(grid.UpThresholds, defaults.Trigger.UpThresholdPct)
	downs := orDefault(grid.DownThresholds, defaults.Trigger.DownThresholdPct)
	ratios := orDefault(grid.RebalanceRatio, defaults.Policy.RebalanceRatio)

	type job struct {
		up, down, ratio float64
	}
	var jobs []job
	for _, up := range ups {
		for _, down := range downs {
			for _, ratio := range ratios {
				jobs = append(jobs, job{up, down, ratio})
			}
		}
	}

	rows := make([]SweepRow, len(jobs))
	errs := make([]error, len(jobs))
	var wg sync.WaitGroup
	for i, j := range jobs {
		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			d := defaults
			d.Trigger.UpThresholdPct = j.up
			d.Trigger.DownThresholdPct = j.down
			d.Policy.RebalanceRatio = j.ratio

			sim := NewSimulation(base.Clone(), config.NewResolver(d, nil), logger)
			res, err := sim.Run(ctx, base.ID, market.NewBarSource(base.Symbol, bars))
			if err != nil {
				errs[i] = err
				return
			}
			rows[i] = SweepRow{
				UpThresholdPct:   j.up,
				DownThresholdPct: j.down,
				RebalanceRatio:   j.ratio,
				Result:           res,
			}
		}(i, j)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	sort.SliceStable(rows, func(a, b int) bool {
		return rows[a].Result.ReturnPct > rows[b].Result.ReturnPct
	})
	return rows, nil
}

func orDefault(vals []float64, fallback float64) []float64 {
	if len(vals) == 0 {
		return []float64{fallback}
	}
	return vals
}
