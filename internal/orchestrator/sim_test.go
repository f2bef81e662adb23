package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"anchor-rebalancer/internal/config"
	"anchor-rebalancer/internal/events"
	"anchor-rebalancer/internal/market"
	"anchor-rebalancer/internal/models"
)

func fp(v float64) *float64 { return &v }
func bp(v bool) *bool { return &v }
func sp(v models.SizingStrategy) *models.SizingStrategy { return &v }

func simPosition(qty, cash, anchor float64) models.PositionCell {
	ts := time.Date(2024, 2, 29, 16, 0, 0, 0, time.UTC)
	return models.PositionCell{
		ID: "pos-1", TenantID: "t1", Symbol: "SPY",
		Qty: qty, Cash: cash, AnchorPrice: anchor, AvgCost: anchor,
		CreatedAt: ts, UpdatedAt: ts,
	}
}

func dayBars(closes ...float64) []models.Candle {
	bars := make([]models.Candle, len(closes))
	for i, c := range closes {
		bars[i] = models.Candle{
			Timestamp: time.Date(2024, 3, 1+i, 16, 0, 0, 0, time.UTC),
			Open:      c, High: c, Low: c, Close: c, Volume: 1000,
		}
	}
	return bars
}

func TestSimulationRunMidpointStrategy(t *testing.T) {
	resolver := config.NewResolver(config.Default().Defaults, nil)
	seed := simPosition(80, 2000, 100)

	sim := NewSimulation(seed.Clone(), resolver, zerolog.Nop())
	// +1% hold, -6% sell, +4.3% hold, +5.3% up but already past target, -6.4% sell
	source := market.NewBarSource("SPY", dayBars(101, 94, 98, 99, 88))

	result, err := sim.Run(context.Background(), seed.ID, source)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.TriggersFired != 3 {
		t.Errorf("triggers = %d, want 3", result.TriggersFired)
	}
	if result.Trades != 2 {
		t.Errorf("trades = %d, want 2", result.Trades)
	}
	if result.Skips != 1 {
		t.Errorf("skips = %d, want 1", result.Skips)
	}

	final := result.FinalPosition
	// sell 25 at 94 then 2.5 at 88, anchor following each fill
	if final.Qty != 52.5 {
		t.Errorf("final qty = %v, want 52.5", final.Qty)
	}
	if final.AnchorPrice != 88 {
		t.Errorf("final anchor = %v, want 88", final.AnchorPrice)
	}
	if final.Cash <= 2000 {
		t.Errorf("final cash = %v, want sale proceeds added", final.Cash)
	}
	if final.RealizedPnL >= 0 {
		t.Errorf("realized pnl = %v, want a loss from selling below cost", final.RealizedPnL)
	}
	if len(result.EquityCurve) != 5 {
		t.Errorf("equity curve = %d points, want 5", len(result.EquityCurve))
	}
	if result.MaxDrawdown <= 0 {
		t.Errorf("max drawdown = %v, want positive for a falling series", result.MaxDrawdown)
	}
}

// Two runs over the same bars must produce identical decisions, fills and
// event sequences.
func TestSimulationIsDeterministic(t *testing.T) {
	resolver := config.NewResolver(config.Default().Defaults, nil)
	seed := simPosition(80, 2000, 100)
	closes := []float64{101, 94, 98, 99, 88, 92, 97, 102}

	run := func() *BacktestResult {
		sim := NewSimulation(seed.Clone(), resolver, zerolog.Nop())
		result, err := sim.Run(context.Background(), seed.ID, market.NewBarSource("SPY", dayBars(closes...)))
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return result
	}

	a, b := run(), run()

	if a.Trades != b.Trades || a.TriggersFired != b.TriggersFired || a.Skips != b.Skips {
		t.Errorf("run counters diverge: %d/%d/%d vs %d/%d/%d",
			a.Trades, a.TriggersFired, a.Skips, b.Trades, b.TriggersFired, b.Skips)
	}
	if a.FinalPosition != b.FinalPosition {
		t.Errorf("final positions diverge:\na: %+v\nb: %+v", a.FinalPosition, b.FinalPosition)
	}
	if a.ReturnPct != b.ReturnPct || a.MaxDrawdown != b.MaxDrawdown {
		t.Errorf("summary stats diverge: %v/%v vs %v/%v", a.ReturnPct, a.MaxDrawdown, b.ReturnPct, b.MaxDrawdown)
	}
	if len(a.Events) != len(b.Events) {
		t.Fatalf("event counts diverge: %d vs %d", len(a.Events), len(b.Events))
	}
	for i := range a.Events {
		if a.Events[i].Type != b.Events[i].Type || a.Events[i].Seq != b.Events[i].Seq {
			t.Errorf("event %d diverges: %s/%d vs %s/%d",
				i, a.Events[i].Type, a.Events[i].Seq, b.Events[i].Type, b.Events[i].Seq)
		}
	}
}

// Replaying the run's event log over the seed must land exactly on the
// final simulated state.
func TestSimulationEventsReplayToFinalState(t *testing.T) {
	resolver := config.NewResolver(config.Default().Defaults, nil)
	seed := simPosition(80, 2000, 100)

	sim := NewSimulation(seed.Clone(), resolver, zerolog.Nop())
	result, err := sim.Run(context.Background(), seed.ID, market.NewBarSource("SPY", dayBars(101, 94, 98, 99, 88)))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	replayed, err := events.Replay(seed, result.Events)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if replayed != result.FinalPosition {
		t.Errorf("replay diverges from simulated state:\nreplayed: %+v\nfinal:    %+v", replayed, result.FinalPosition)
	}
}

// With anchor resets disabled the same trigger recurs within the day; the
// idempotency key must collapse it to a single executed order.
func TestSimulationIdempotentWithinDay(t *testing.T) {
	overrides := map[string]config.ScopeOverride{
		config.PositionKey("pos-1"): {
			Policy: config.PolicyOverride{
				SizingStrategy:    sp(models.SizingFixedFraction),
				RebalanceRatio:    fp(0.25),
				ResetAnchorOnFill: bp(false),
			},
		},
	}
	resolver := config.NewResolver(config.Default().Defaults, overrides)
	seed := simPosition(10, 6000, 100)

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := []models.Candle{
		{Timestamp: day.Add(10 * time.Hour), Open: 106, High: 106, Low: 106, Close: 106, Volume: 100},
		{Timestamp: day.Add(11 * time.Hour), Open: 106, High: 106, Low: 106, Close: 106, Volume: 100},
	}

	sim := NewSimulation(seed.Clone(), resolver, zerolog.Nop())
	result, err := sim.Run(context.Background(), seed.ID, market.NewBarSource("SPY", bars))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.TriggersFired != 2 {
		t.Errorf("triggers = %d, want 2", result.TriggersFired)
	}
	if result.Trades != 1 {
		t.Errorf("trades = %d, want 1 (duplicate trigger must reuse the order)", result.Trades)
	}
	if result.FinalPosition.Qty != 24 {
		t.Errorf("final qty = %v, want 24 from a single 14-share fill", result.FinalPosition.Qty)
	}
	if result.FinalPosition.AnchorPrice != 100 {
		t.Errorf("anchor = %v, want unchanged 100", result.FinalPosition.AnchorPrice)
	}
}

func TestSimulationProcessesDividends(t *testing.T) {
	resolver := config.NewResolver(config.Default().Defaults, nil)
	seed := simPosition(80, 2000, 100)

	sim := NewSimulation(seed.Clone(), resolver, zerolog.Nop())
	sim.AnnounceDividend(models.Dividend{
		ID: "d-1", Symbol: "SPY", DPS: 0.5,
		ExDate:             time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
		PayDate:            time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		Currency:           "USD",
		WithholdingTaxRate: 0.25,
	})

	// in-band prices so only the dividend changes state
	bars := []models.Candle{
		{Timestamp: time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC), Close: 100},
		{Timestamp: time.Date(2024, 3, 3, 16, 0, 0, 0, time.UTC), Close: 100.5},
		{Timestamp: time.Date(2024, 3, 5, 16, 0, 0, 0, time.UTC), Close: 101},
	}

	result, err := sim.Run(context.Background(), seed.ID, market.NewBarSource("SPY", bars))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	final := result.FinalPosition
	if result.Trades != 0 {
		t.Fatalf("trades = %d, want 0", result.Trades)
	}
	// 80 shares x 0.50 = 40 gross, 25% withheld, 30 net
	if final.Cash != 2030 {
		t.Errorf("cash = %v, want 2030 after the net credit", final.Cash)
	}
	if final.DividendReceivable != 0 {
		t.Errorf("receivable = %v, want 0 after pay-date", final.DividendReceivable)
	}
	if final.TotalDividendsReceived != 30 {
		t.Errorf("total dividends = %v, want 30", final.TotalDividendsReceived)
	}

	var phases []models.DividendPhase
	for _, ev := range result.Events {
		if ev.Type == models.EventDividend {
			var p models.DividendPayload
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				t.Fatalf("decoding dividend payload: %v", err)
			}
			phases = append(phases, p.Phase)
		}
	}
	if len(phases) != 2 || phases[0] != models.DividendAccrued || phases[1] != models.DividendCredited {
		t.Errorf("dividend phases = %v, want [ACCRUED CREDITED]", phases)
	}
}
