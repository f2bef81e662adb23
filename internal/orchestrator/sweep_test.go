package orchestrator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"anchor-rebalancer/internal/config"
)

func TestRunSweepCoversGrid(t *testing.T) {
	base := simPosition(80, 2000, 100)
	bars := dayBars(101, 94, 98, 99, 88, 92, 97, 102)

	grid := SweepGrid{
		UpThresholds:   []float64{3, 5},
		DownThresholds: []float64{3, 5},
		RebalanceRatio: []float64{0.5, 1},
	}

	rows, err := RunSweep(context.Background(), base, config.Default().Defaults, bars, grid, zerolog.Nop())
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if len(rows) != 8 {
		t.Fatalf("rows = %d, want 2x2x2 grid", len(rows))
	}

	seen := make(map[[3]float64]bool)
	for i, row := range rows {
		if row.Result == nil {
			t.Fatalf("row %d has no result", i)
		}
		seen[[3]float64{row.UpThresholdPct, row.DownThresholdPct, row.RebalanceRatio}] = true
		if i > 0 && rows[i-1].Result.ReturnPct < row.Result.ReturnPct {
			t.Errorf("rows not sorted by return: %v before %v", rows[i-1].Result.ReturnPct, row.Result.ReturnPct)
		}
	}
	if len(seen) != 8 {
		t.Errorf("distinct grid points = %d, want 8", len(seen))
	}
}

func TestRunSweepFallsBackToDefaults(t *testing.T) {
	base := simPosition(80, 2000, 100)
	bars := dayBars(101, 94, 98)

	rows, err := RunSweep(context.Background(), base, config.Default().Defaults, bars, SweepGrid{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want 1 for an empty grid", len(rows))
	}
	if rows[0].UpThresholdPct != 5 || rows[0].RebalanceRatio != 1 {
		t.Errorf("row = %+v, want base defaults", rows[0])
	}
}

// A sweep run must not contaminate its sibling runs: the same grid twice
// yields the same rows.
func TestRunSweepIsRepeatable(t *testing.T) {
	base := simPosition(80, 2000, 100)
	bars := dayBars(101, 94, 98, 99, 88)
	grid := SweepGrid{UpThresholds: []float64{4, 6}}

	a, err := RunSweep(context.Background(), base, config.Default().Defaults, bars, grid, zerolog.Nop())
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	b, err := RunSweep(context.Background(), base, config.Default().Defaults, bars, grid, zerolog.Nop())
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	for i := range a {
		if a[i].Result.FinalPosition != b[i].Result.FinalPosition {
			t.Errorf("row %d diverges across sweeps", i)
		}
		if a[i].Result.Trades != b[i].Result.Trades {
			t.Errorf("row %d trade counts diverge", i)
		}
	}
}
