// Package orchestrator drives the tick loop around the decision engine.
// The live and simulation variants differ only in their source of quotes
// and time and in their fill model; both delegate every decision to
// engine.EvaluateTick so live trading and backtests stay bit-identical.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"anchor-rebalancer/internal/broker"
	"anchor-rebalancer/internal/config"
	"anchor-rebalancer/internal/engine"
	"anchor-rebalancer/internal/errors"
	"anchor-rebalancer/internal/events"
	"anchor-rebalancer/internal/metrics"
	"anchor-rebalancer/internal/models"
	"anchor-rebalancer/internal/orders"
	"anchor-rebalancer/internal/store"
	"anchor-rebalancer/pkg/utils"
)

// Clock abstracts time: wall clock for the live loop, bar cursor for
// simulation.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

// Now returns the current wall-clock time.
func (RealClock) Now() time.Time { return time.Now() }

// TickSource produces the quote stream for a simulation run, advancing
// strictly forward.
type TickSource interface {
	Next(ctx context.Context) (models.Quote, bool, error)
}

// Core holds the shared per-position serialization, persistence and fill
// plumbing used by both orchestrator variants.
type Core struct {
	logger   zerolog.Logger
	store    store.DataStore
	log      *events.Log
	book     *orders.Book
	resolver *config.Resolver
	brk      broker.Adapter
	retry    utils.RetryConfig
	metrics  bool

	mu        sync.Mutex
	locks     map[string]*sync.Mutex
	positions map[string]*models.PositionCell
	pending   map[string]pendingOrder // orderID -> context for fill handling
	queued    map[string][]models.Trade
	dividends map[string][]models.Dividend // symbol -> announced dividends
	accrued   map[string]bool              // positionID+dividendID
}

type pendingOrder struct {
	positionID string
	policy     models.OrderPolicyConfig
	guardrail  models.GuardrailConfig
	traceID    string
}

// NewCore wires the shared orchestration state. The broker's fill callback
// is registered here; fills are queued and applied under the owning
// position's lock.
func NewCore(logger zerolog.Logger, ds store.DataStore, log *events.Log, book *orders.Book, resolver *config.Resolver, brk broker.Adapter, recordMetrics bool) *Core {
	c := &Core{
		logger:    logger,
		store:     ds,
		log:       log,
		book:      book,
		resolver:  resolver,
		brk:       brk,
		retry: utils.RetryConfig{
			MaxAttempts:   3,
			InitialDelay:  200 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			IsRetryable:   errors.IsTransient,
		},
		metrics:   recordMetrics,
		locks:     make(map[string]*sync.Mutex),
		positions: make(map[string]*models.PositionCell),
		pending:   make(map[string]pendingOrder),
		queued:    make(map[string][]models.Trade),
		dividends: make(map[string][]models.Dividend),
		accrued:   make(map[string]bool),
	}
	brk.OnFill(c.onFill)
	return c
}

// RegisterPosition adds a position to the orchestrated set, seeding the
// event sequence from any persisted history.
func (c *Core) RegisterPosition(pos *models.PositionCell) {
	if existing, err := c.store.GetEvents(context.Background(), pos.ID); err == nil && len(existing) > 0 {
		c.log.SeedSeq(pos.ID, existing[len(existing)-1].Seq)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[pos.ID] = pos
	c.locks[pos.ID] = &sync.Mutex{}
}

// Position returns the live position snapshot.
func (c *Core) Position(positionID string) (models.PositionCell, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pos, ok := c.positions[positionID]
	if !ok {
		return models.PositionCell{}, false
	}
	return pos.Clone(), true
}

// AnnounceDividend registers a declared dividend for ex/pay-date
// processing on subsequent ticks.
func (c *Core) AnnounceDividend(div models.Dividend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dividends[div.Symbol] = append(c.dividends[div.Symbol], div)
}

// Tick runs one evaluation for one position. Strictly serialized per
// position: the position lock is held across the evaluation, the order
// submission and any synchronous fill, so overlapping triggers can never
// double-submit.
func (c *Core) Tick(ctx context.Context, positionID string, quote models.Quote) (*engine.EvaluationResult, error) {
	lock, pos, err := c.lookup(positionID)
	if err != nil {
		return nil, err
	}
	lock.Lock()
	defer lock.Unlock()

	traceID := uuid.NewString()
	cfg := c.resolver.Effective(pos.TenantID, pos.Symbol, positionID)

	if err := c.processDividends(ctx, pos, cfg.Policy, quote.Timestamp, traceID); err != nil {
		return nil, err
	}

	res, err := engine.EvaluateTick(engine.TickInput{
		Position: pos,
		Quote:    quote,
		Config:   cfg,
		Day:      c.book.DayStats(positionID, quote.Timestamp),
		TraceID:  traceID,
	})
	if err != nil {
		return nil, err
	}

	c.persistEvents(ctx, res.Events)
	c.record(res, pos, quote)

	if res.Order != nil {
		if err := c.submit(ctx, res, cfg, traceID); err != nil {
			return nil, err
		}
	}

	// apply fills the broker delivered synchronously during submission
	c.drainLocked(ctx, positionID)

	if err := c.store.SavePosition(ctx, pos); err != nil {
		c.logger.Error().Err(err).Str("position", positionID).Msg("Failed to persist position")
	}
	res.PositionAfter = pos.Clone()
	return res, nil
}

// ManualAnchorReset applies an operator anchor override outside the
// trigger pipeline.
func (c *Core) ManualAnchorReset(ctx context.Context, positionID string, newPrice float64, at time.Time) error {
	lock, pos, err := c.lookup(positionID)
	if err != nil {
		return err
	}
	lock.Lock()
	defer lock.Unlock()

	evs, err := engine.ManualAnchorReset(pos, newPrice, uuid.NewString(), at)
	if err != nil {
		return err
	}
	c.persistEvents(ctx, evs)
	return c.store.SavePosition(ctx, pos)
}

func (c *Core) lookup(positionID string) (*sync.Mutex, *models.PositionCell, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.locks[positionID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", errors.ErrPositionNotFound, positionID)
	}
	return lock, c.positions[positionID], nil
}

// submit registers the order with the idempotent book and forwards it to
// the broker with bounded-backoff retry on transient failures. A duplicate
// idempotency key resolves to the existing order and nothing is sent.
func (c *Core) submit(ctx context.Context, res *engine.EvaluationResult, cfg models.EffectiveConfig, traceID string) error {
	order, created := c.book.Submit(res.Order)
	res.Order = order
	if !created {
		c.logger.Debug().
			Str("order_id", order.ID).
			Str("idempotency_key", order.IdempotencyKey).
			Msg("Duplicate trigger decision, reusing existing order")
		return nil
	}
	c.recordOrderEvent(ctx, order, traceID, "", order.CreatedAt)

	c.mu.Lock()
	c.pending[order.ID] = pendingOrder{
		positionID: order.PositionID,
		policy:     cfg.Policy,
		guardrail:  cfg.Guardrail,
		traceID:    traceID,
	}
	c.mu.Unlock()

	if err := c.store.SaveOrder(ctx, order); err != nil {
		c.logger.Error().Err(err).Str("order_id", order.ID).Msg("Failed to persist order")
	}
	if c.metrics {
		metrics.Orders.WithLabelValues(string(order.Side)).Inc()
	}

	brokerID, err := utils.RetryWithResult(ctx, c.retry, func() (string, error) {
		return c.brk.SubmitOrder(ctx, order, res.Intent)
	})
	if err != nil {
		// the book lets the next trigger evaluation resubmit under the same
		// idempotency key once the order is rejected
		rejected, terr := c.book.Transition(order.ID, models.OrderRejected, err.Error(), order.CreatedAt)
		if terr != nil {
			c.logger.Error().Err(terr).Str("order_id", order.ID).Msg("Failed to mark order rejected")
		} else {
			c.recordOrderEvent(ctx, rejected, traceID, err.Error(), order.CreatedAt)
			if serr := c.store.SaveOrder(ctx, rejected); serr != nil {
				c.logger.Error().Err(serr).Str("order_id", order.ID).Msg("Failed to persist order")
			}
		}
		return err
	}

	if err := c.book.SetBrokerOrderID(order.ID, brokerID); err != nil {
		c.logger.Error().Err(err).Str("order_id", order.ID).Msg("Failed to record broker order id")
	}
	// the sim broker may already have filled the order synchronously
	if current, gerr := c.book.Get(order.ID); gerr == nil && current.Status == models.OrderSubmitted {
		working, terr := c.book.Transition(order.ID, models.OrderWorking, "", order.CreatedAt)
		if terr != nil {
			c.logger.Error().Err(terr).Str("order_id", order.ID).Msg("Failed to mark order working")
		} else {
			c.recordOrderEvent(ctx, working, traceID, "", order.CreatedAt)
		}
	}
	return nil
}

// recordOrderEvent appends an ORDER audit event carrying the order's
// current status, so the event log reconstructs the full order lifecycle,
// not just creation.
func (c *Core) recordOrderEvent(ctx context.Context, order *models.Order, traceID, reason string, at time.Time) {
	c.persistEvents(ctx, []models.Event{models.NewEvent(order.PositionID, models.EventOrder, traceID, at, models.OrderPayload{
		OrderID:        order.ID,
		Side:           order.Side,
		Qty:            order.Qty,
		Status:         order.Status,
		IdempotencyKey: order.IdempotencyKey,
		Reason:         reason,
	})})
}

// onFill is the broker callback. Fills are queued under the core lock and
// applied under the owning position's lock, either inline by the tick in
// progress or by the spawned drain.
func (c *Core) onFill(orderID string, fill models.Trade) {
	c.mu.Lock()
	p, ok := c.pending[orderID]
	if !ok {
		c.mu.Unlock()
		c.logger.Warn().Str("order_id", orderID).Msg("Fill for unknown order dropped")
		return
	}
	c.queued[p.positionID] = append(c.queued[p.positionID], fill)
	c.mu.Unlock()

	go func() {
		lock, _, err := c.lookup(p.positionID)
		if err != nil {
			return
		}
		lock.Lock()
		defer lock.Unlock()
		c.drainLocked(context.Background(), p.positionID)
	}()
}

// drainLocked applies queued fills for a position. Caller must hold the
// position lock.
func (c *Core) drainLocked(ctx context.Context, positionID string) {
	for {
		c.mu.Lock()
		queue := c.queued[positionID]
		if len(queue) == 0 {
			c.mu.Unlock()
			return
		}
		fill := queue[0]
		c.queued[positionID] = queue[1:]
		p := c.pending[fill.OrderID]
		pos := c.positions[positionID]
		c.mu.Unlock()

		c.applyFill(ctx, pos, p, fill)
	}
}

// applyFill records the fill on the order, mutates the position, runs the
// post-fill consistency check, and persists everything. A funds error here
// means the guardrails let a bad size through; the fill is rejected and
// never retried.
func (c *Core) applyFill(ctx context.Context, pos *models.PositionCell, p pendingOrder, fill models.Trade) {
	order, err := c.book.RecordFill(fill.OrderID, fill)
	if err != nil {
		c.logger.Error().Err(err).Str("order_id", fill.OrderID).Msg("Fill rejected by order book")
		return
	}
	c.recordOrderEvent(ctx, order, p.traceID, "", fill.ExecutedAt)

	fres, err := engine.ApplyTrade(pos, fill, p.policy, p.traceID)
	if err != nil {
		c.logger.Error().Err(err).
			Str("order_id", fill.OrderID).
			Str("position", pos.ID).
			Msg("Fatal consistency error applying fill")
		rejected, terr := c.book.Transition(fill.OrderID, models.OrderRejected, err.Error(), fill.ExecutedAt)
		if terr != nil {
			c.logger.Error().Err(terr).Str("order_id", fill.OrderID).Msg("Failed to mark order rejected")
		} else {
			c.recordOrderEvent(ctx, rejected, p.traceID, err.Error(), fill.ExecutedAt)
		}
		return
	}

	if v := engine.ValidateAfterFill(pos, fill.Price, p.guardrail); !v.OK {
		// the trade already executed; log the sizing bug, do not retry
		c.logger.Warn().
			Strs("violations", v.Violations).
			Str("position", pos.ID).
			Msg("Post-fill guardrail validation failed")
	}

	c.persistEvents(ctx, fres.Events)
	if err := c.store.SaveTrade(ctx, &fill); err != nil {
		c.logger.Error().Err(err).Str("trade_id", fill.ID).Msg("Failed to persist trade")
	}
	if err := c.store.SaveOrder(ctx, order); err != nil {
		c.logger.Error().Err(err).Str("order_id", order.ID).Msg("Failed to persist order")
	}
	if err := c.store.SavePosition(ctx, pos); err != nil {
		c.logger.Error().Err(err).Str("position", pos.ID).Msg("Failed to persist position")
	}
	if c.metrics {
		metrics.Fills.WithLabelValues(string(fill.Side)).Inc()
	}

	if order.Status == models.OrderFilled {
		c.mu.Lock()
		delete(c.pending, order.ID)
		c.mu.Unlock()
	}

	c.logger.Info().
		Str("position", pos.ID).
		Str("side", string(fill.Side)).
		Float64("qty", fill.Qty).
		Float64("price", fill.Price).
		Float64("cash", pos.Cash).
		Float64("anchor", pos.AnchorPrice).
		Msg("Fill applied")
}

// processDividends accrues dividends whose ex-date has passed and credits
// receivables whose pay-date has arrived. Caller holds the position lock.
func (c *Core) processDividends(ctx context.Context, pos *models.PositionCell, pol models.OrderPolicyConfig, now time.Time, traceID string) error {
	c.mu.Lock()
	announced := append([]models.Dividend(nil), c.dividends[pos.Symbol]...)
	c.mu.Unlock()

	for _, div := range announced {
		key := pos.ID + ":" + div.ID
		c.mu.Lock()
		done := c.accrued[key]
		c.mu.Unlock()
		if done || now.Before(div.ExDate) {
			continue
		}

		_, rcv, evs, err := engine.ProcessDividendAccrual(pos, div, traceID)
		if err != nil {
			return err
		}
		rcv.ID = uuid.NewString()
		if err := c.store.SaveReceivable(ctx, rcv); err != nil {
			c.logger.Error().Err(err).Str("position", pos.ID).Msg("Failed to persist receivable")
		}
		c.persistEvents(ctx, evs)
		c.mu.Lock()
		c.accrued[key] = true
		c.mu.Unlock()
	}

	due, err := c.store.GetPendingReceivables(ctx, pos.ID, now)
	if err != nil {
		return err
	}
	for i := range due {
		rcv := due[i]
		div := c.findDividend(pos.Symbol, rcv.DividendID)
		evs, err := engine.ProcessDividendCredit(pos, &rcv, div, pol, traceID)
		if err != nil {
			return err
		}
		if err := c.store.SaveReceivable(ctx, &rcv); err != nil {
			c.logger.Error().Err(err).Str("position", pos.ID).Msg("Failed to persist receivable")
		}
		c.persistEvents(ctx, evs)
	}
	return nil
}

func (c *Core) findDividend(symbol, dividendID string) models.Dividend {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.dividends[symbol] {
		if d.ID == dividendID {
			return d
		}
	}
	return models.Dividend{ID: dividendID, Symbol: symbol}
}

func (c *Core) persistEvents(ctx context.Context, evs []models.Event) {
	for _, stored := range c.log.AppendAll(evs) {
		if err := c.store.AppendEvent(ctx, stored); err != nil {
			c.logger.Error().Err(err).Str("event", string(stored.Type)).Msg("Failed to persist event")
		}
	}
}

func (c *Core) record(res *engine.EvaluationResult, pos *models.PositionCell, quote models.Quote) {
	if !c.metrics {
		return
	}
	metrics.TicksEvaluated.Inc()
	if res.Trigger.Fired {
		metrics.Triggers.WithLabelValues(string(res.Trigger.Direction)).Inc()
	}
	if res.Intent.Action == models.ActionSkip {
		metrics.GuardrailBlocks.Inc()
	}
	metrics.PositionValue.WithLabelValues(pos.ID).Set(pos.TotalValue(quote.Price))
	metrics.StockAllocation.WithLabelValues(pos.ID).Set(pos.StockPct(quote.Price))
}
