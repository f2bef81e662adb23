package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"anchor-rebalancer/internal/broker"
	"anchor-rebalancer/internal/config"
	"anchor-rebalancer/internal/events"
	"anchor-rebalancer/internal/models"
	"anchor-rebalancer/internal/orders"
	"anchor-rebalancer/internal/store"
)

// SimClock is a cursor advanced by the bar iterator.
type SimClock struct {
	current time.Time
}

// Now returns the simulated time.
func (c *SimClock) Now() time.Time { return c.current }

// Set advances the cursor.
func (c *SimClock) Set(t time.Time) { c.current = t }

// EquityPoint is one point on the backtest equity curve.
type EquityPoint struct {
	Time  time.Time
	Value float64
}

// BacktestResult summarizes one simulation run.
type BacktestResult struct {
	InitialValue  float64
	FinalValue    float64
	ReturnPct     float64
	MaxDrawdown   float64
	Trades        int
	TriggersFired int
	Skips         int
	EquityCurve   []EquityPoint
	FinalPosition models.PositionCell
	Events        []models.Event
}

// Simulation replays a historical bar series against one position with
// synchronous fills. Each run owns isolated state (memory store, event
// log, order book, sim broker), so parameter sweeps can run many in
// parallel without shared mutation.
type Simulation struct {
	core   *Core
	clock  *SimClock
	log    *events.Log
	book   *orders.Book
	logger zerolog.Logger
}

// NewSimulation wires an isolated simulation around a cloned position.
func NewSimulation(pos models.PositionCell, resolver *config.Resolver, logger zerolog.Logger) *Simulation {
	log := events.NewLog()
	book := orders.NewBook()
	clock := &SimClock{}
	core := NewCore(logger, store.NewMemoryStore(), log, book, resolver, broker.NewSimBroker(), false)
	core.RegisterPosition(&pos)
	return &Simulation{core: core, clock: clock, log: log, book: book, logger: logger}
}

// AnnounceDividend registers a dividend for the run.
func (s *Simulation) AnnounceDividend(div models.Dividend) {
	s.core.AnnounceDividend(div)
}

// Run replays the tick source to exhaustion and returns the summary.
// Single-threaded and deterministic: the same bars and configs always
// produce the same decisions, fills and events.
func (s *Simulation) Run(ctx context.Context, positionID string, source TickSource) (*BacktestResult, error) {
	result := &BacktestResult{}
	peak := 0.0
	first := true

	for {
		quote, ok, err := source.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		s.clock.Set(quote.Timestamp)

		res, err := s.core.Tick(ctx, positionID, quote)
		if err != nil {
			return nil, err
		}

		if res.Trigger.Fired {
			result.TriggersFired++
		}
		if res.Intent.Action == models.ActionSkip {
			result.Skips++
		}

		equity := res.PositionAfter.TotalValue(quote.Price)
		if first {
			result.InitialValue = res.PositionBefore.TotalValue(quote.Price)
			peak = equity
			first = false
		}
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > result.MaxDrawdown {
				result.MaxDrawdown = dd
			}
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Time: quote.Timestamp, Value: equity})
		result.FinalValue = equity
		result.FinalPosition = res.PositionAfter
	}

	result.Trades = len(s.book.Trades(positionID))
	result.Events = s.log.ForPosition(positionID)
	if result.InitialValue > 0 {
		result.ReturnPct = (result.FinalValue - result.InitialValue) / result.InitialValue * 100
	}
	return result, nil
}
