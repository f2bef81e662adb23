package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"anchor-rebalancer/internal/models"
)

// PaperBroker simulates a live broker for paper trading: orders are
// accepted immediately and fills arrive asynchronously via the callback,
// exercising the same working-order path a real adapter uses.
type PaperBroker struct {
	mu        sync.Mutex
	cb        FillCallback
	counter   int
	fillDelay time.Duration
}

// NewPaperBroker creates a paper broker with the given artificial fill
// latency.
func NewPaperBroker(fillDelay time.Duration) *PaperBroker {
	return &PaperBroker{fillDelay: fillDelay}
}

// OnFill registers the fill callback.
func (b *PaperBroker) OnFill(cb FillCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cb = cb
}

// SubmitOrder accepts the order and schedules an asynchronous full fill at
// the intent price.
func (b *PaperBroker) SubmitOrder(ctx context.Context, order *models.Order, intent models.TradeIntent) (string, error) {
	b.mu.Lock()
	b.counter++
	brokerID := fmt.Sprintf("PAPER_%d_%d", time.Now().Unix(), b.counter)
	cb := b.cb
	delay := b.fillDelay
	b.mu.Unlock()

	fill := models.Trade{
		ID:         uuid.NewString(),
		OrderID:    order.ID,
		PositionID: order.PositionID,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Qty:        order.Qty,
		Price:      intent.Price,
		Commission: intent.EstimatedCommission,
	}

	go func() {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
		fill.ExecutedAt = time.Now()
		if cb != nil {
			cb(order.ID, fill)
		}
	}()
	return brokerID, nil
}
