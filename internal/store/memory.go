package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"anchor-rebalancer/internal/errors"
	"anchor-rebalancer/internal/models"
)

// MemoryStore implements DataStore in memory. Used by tests and by
// simulation runs, which keep state isolated per run.
type MemoryStore struct {
	mu          sync.RWMutex
	positions   map[string]models.PositionCell
	events      map[string][]models.Event
	orders      map[string]models.Order
	ordersByKey map[string]string
	trades      map[string][]models.Trade
	receivables map[string]models.DividendReceivable
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		positions:   make(map[string]models.PositionCell),
		events:      make(map[string][]models.Event),
		orders:      make(map[string]models.Order),
		ordersByKey: make(map[string]string),
		trades:      make(map[string][]models.Trade),
		receivables: make(map[string]models.DividendReceivable),
	}
}

// SavePosition upserts a position snapshot.
func (m *MemoryStore) SavePosition(_ context.Context, pos *models.PositionCell) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.ID] = *pos
	return nil
}

// GetPosition loads a position by id.
func (m *MemoryStore) GetPosition(_ context.Context, id string) (*models.PositionCell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos, ok := m.positions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errors.ErrPositionNotFound, id)
	}
	cp := pos
	return &cp, nil
}

// ListPositions returns all position snapshots.
func (m *MemoryStore) ListPositions(_ context.Context) ([]models.PositionCell, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.PositionCell, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out, nil
}

// AppendEvent stores one audit event.
func (m *MemoryStore) AppendEvent(_ context.Context, ev models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.PositionID] = append(m.events[ev.PositionID], ev)
	return nil
}

// GetEvents returns all events for a position in append order.
func (m *MemoryStore) GetEvents(_ context.Context, positionID string) ([]models.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.events[positionID]
	out := make([]models.Event, len(src))
	copy(out, src)
	return out, nil
}

// SaveOrder upserts an order.
func (m *MemoryStore) SaveOrder(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = *order
	m.ordersByKey[order.IdempotencyKey] = order.ID
	return nil
}

// GetOrderByIdempotencyKey loads an order by its dedup token.
func (m *MemoryStore) GetOrderByIdempotencyKey(_ context.Context, key string) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.ordersByKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: idempotency key %s", errors.ErrOrderNotFound, key)
	}
	o := m.orders[id]
	return &o, nil
}

// SaveTrade stores one fill.
func (m *MemoryStore) SaveTrade(_ context.Context, trade *models.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[trade.PositionID] = append(m.trades[trade.PositionID], *trade)
	return nil
}

// GetTrades returns fills for a position within a time range.
func (m *MemoryStore) GetTrades(_ context.Context, positionID string, from, to time.Time) ([]models.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Trade
	for _, t := range m.trades[positionID] {
		if !t.ExecutedAt.Before(from) && !t.ExecutedAt.After(to) {
			out = append(out, t)
		}
	}
	return out, nil
}

// SaveReceivable upserts a dividend receivable.
func (m *MemoryStore) SaveReceivable(_ context.Context, rcv *models.DividendReceivable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receivables[rcv.ID] = *rcv
	return nil
}

// GetPendingReceivables returns uncredited receivables due on or before
// asOf.
func (m *MemoryStore) GetPendingReceivables(_ context.Context, positionID string, asOf time.Time) ([]models.DividendReceivable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.DividendReceivable
	for _, r := range m.receivables {
		if r.PositionID == positionID && !r.Credited && !r.PayDate.After(asOf) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Close is a no-op for the memory store.
func (m *MemoryStore) Close() error {
	return nil
}
