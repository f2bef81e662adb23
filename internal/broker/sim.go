package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"anchor-rebalancer/internal/models"
)

// SimBroker fills every market order instantly at the intent price. The
// synchronous fill model keeps backtests and parameter sweeps reproducible.
type SimBroker struct {
	mu      sync.Mutex
	cb      FillCallback
	counter int
}

// NewSimBroker creates a simulated broker.
func NewSimBroker() *SimBroker {
	return &SimBroker{}
}

// OnFill registers the fill callback.
func (b *SimBroker) OnFill(cb FillCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cb = cb
}

// SubmitOrder fills the order synchronously at the intent price with the
// intent's estimated commission, then returns.
func (b *SimBroker) SubmitOrder(_ context.Context, order *models.Order, intent models.TradeIntent) (string, error) {
	b.mu.Lock()
	b.counter++
	brokerID := fmt.Sprintf("SIM_%d", b.counter)
	cb := b.cb
	b.mu.Unlock()

	if cb != nil {
		cb(order.ID, models.Trade{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			PositionID: order.PositionID,
			Symbol:     order.Symbol,
			Side:       order.Side,
			Qty:        order.Qty,
			Price:      intent.Price,
			Commission: intent.EstimatedCommission,
			ExecutedAt: order.CreatedAt,
		})
	}
	return brokerID, nil
}
