// Package orders provides the order lifecycle state machine and an
// idempotent order book.
package orders

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"anchor-rebalancer/internal/errors"
	"anchor-rebalancer/internal/models"
)

// transitions enumerates the legal order status moves. PARTIAL self-loops
// until the cumulative filled quantity reaches the order quantity.
var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderCreated:   {models.OrderSubmitted, models.OrderRejected, models.OrderCancelled},
	models.OrderSubmitted: {models.OrderWorking, models.OrderPartial, models.OrderFilled, models.OrderRejected, models.OrderCancelled},
	models.OrderWorking:   {models.OrderPartial, models.OrderFilled, models.OrderRejected, models.OrderCancelled},
	models.OrderPartial:   {models.OrderPartial, models.OrderFilled, models.OrderCancelled},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to models.OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Book tracks orders per position with idempotent submission: a duplicate
// idempotency key returns the existing order instead of creating a new one,
// so periodic re-evaluation never double-executes a trigger.
type Book struct {
	mu     sync.RWMutex
	byID   map[string]*models.Order
	byKey  map[string]*models.Order
	byPos  map[string][]*models.Order
	trades map[string][]models.Trade
}

// NewBook creates an empty order book.
func NewBook() *Book {
	return &Book{
		byID:   make(map[string]*models.Order),
		byKey:  make(map[string]*models.Order),
		byPos:  make(map[string][]*models.Order),
		trades: make(map[string][]models.Trade),
	}
}

// Submit registers a CREATED order and moves it to SUBMITTED. When an order
// with the same idempotency key already exists it is returned unchanged and
// created is false; the conflict is resolved, never surfaced as an error.
// A rejected holder of the key does not block resubmission: the rejection
// ended that attempt, not the trigger, so a fresh order takes over the key.
func (b *Book) Submit(order *models.Order) (*models.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.byKey[order.IdempotencyKey]; ok && existing.Status != models.OrderRejected {
		return existing, false
	}

	stored := *order
	stored.ID = uuid.NewString()
	stored.Status = models.OrderSubmitted
	b.byID[stored.ID] = &stored
	b.byKey[stored.IdempotencyKey] = &stored
	b.byPos[stored.PositionID] = append(b.byPos[stored.PositionID], &stored)
	return &stored, true
}

// Get returns an order by id.
func (b *Book) Get(orderID string) (*models.Order, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	o, ok := b.byID[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrOrderNotFound, orderID)
	}
	cp := *o
	return &cp, nil
}

// Transition moves an order to a new status, validating against the state
// machine. Terminal states admit no further moves.
func (b *Book) Transition(orderID string, to models.OrderStatus, reason string, at time.Time) (*models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.byID[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrOrderNotFound, orderID)
	}
	if !CanTransition(o.Status, to) {
		return nil, fmt.Errorf("%w: illegal transition %s -> %s for order %s",
			errors.ErrInvalidOrder, o.Status, to, orderID)
	}
	o.Status = to
	o.UpdatedAt = at
	if to == models.OrderRejected {
		o.RejectionReason = reason
	}
	cp := *o
	return &cp, nil
}

// SetBrokerOrderID records the broker's id for an order.
func (b *Book) SetBrokerOrderID(orderID, brokerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.byID[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrOrderNotFound, orderID)
	}
	o.BrokerOrderID = brokerID
	return nil
}

// RecordFill applies one fill to the order, updating the filled quantity
// and average fill price, and transitions to PARTIAL or FILLED.
func (b *Book) RecordFill(orderID string, fill models.Trade) (*models.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.byID[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrOrderNotFound, orderID)
	}
	if o.Status.Terminal() {
		return nil, fmt.Errorf("%w: fill on terminal order %s (%s)", errors.ErrInvalidOrder, orderID, o.Status)
	}
	if fill.Qty <= 0 || fill.Qty > o.Remaining()+1e-9 {
		return nil, fmt.Errorf("%w: fill qty %.4f exceeds remaining %.4f", errors.ErrInvalidOrder, fill.Qty, o.Remaining())
	}

	filled := o.FilledQty + fill.Qty
	o.AvgFillPrice = (o.AvgFillPrice*o.FilledQty + fill.Price*fill.Qty) / filled
	o.FilledQty = filled
	o.UpdatedAt = fill.ExecutedAt
	if o.Remaining() <= 1e-9 {
		o.FilledQty = o.Qty
		o.Status = models.OrderFilled
	} else {
		o.Status = models.OrderPartial
	}

	b.trades[o.PositionID] = append(b.trades[o.PositionID], fill)
	cp := *o
	return &cp, nil
}

// Trades returns the fills recorded for a position in execution order.
func (b *Book) Trades(positionID string) []models.Trade {
	b.mu.RLock()
	defer b.mu.RUnlock()
	src := b.trades[positionID]
	out := make([]models.Trade, len(src))
	copy(out, src)
	return out
}

// DayStats returns the order count and traded notional for a position on
// the given day, feeding the daily guardrail checks.
func (b *Book) DayStats(positionID string, day time.Time) models.DayStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var stats models.DayStats
	y, m, d := day.Date()
	for _, o := range b.byPos[positionID] {
		oy, om, od := o.CreatedAt.Date()
		if oy == y && om == m && od == d && o.Status != models.OrderRejected {
			stats.Orders++
		}
	}
	for _, t := range b.trades[positionID] {
		ty, tm, td := t.ExecutedAt.Date()
		if ty == y && tm == m && td == d {
			stats.Notional += t.Qty * t.Price
		}
	}
	return stats
}
