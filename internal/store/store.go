// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"anchor-rebalancer/internal/models"
)

// DataStore defines the interface for data persistence. Events are
// append-only; orders and trades are append-plus-status-update; positions
// are snapshots.
type DataStore interface {
	// Positions
	SavePosition(ctx context.Context, pos *models.PositionCell) error
	GetPosition(ctx context.Context, id string) (*models.PositionCell, error)
	ListPositions(ctx context.Context) ([]models.PositionCell, error)

	// Events (append-only audit log)
	AppendEvent(ctx context.Context, ev models.Event) error
	GetEvents(ctx context.Context, positionID string) ([]models.Event, error)

	// Orders & trades
	SaveOrder(ctx context.Context, order *models.Order) error
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	SaveTrade(ctx context.Context, trade *models.Trade) error
	GetTrades(ctx context.Context, positionID string, from, to time.Time) ([]models.Trade, error)

	// Dividends
	SaveReceivable(ctx context.Context, rcv *models.DividendReceivable) error
	GetPendingReceivables(ctx context.Context, positionID string, asOf time.Time) ([]models.DividendReceivable, error)

	Close() error
}
