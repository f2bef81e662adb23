// Package broker provides broker integration interfaces and
// implementations.
package broker

import (
	"context"

	"anchor-rebalancer/internal/models"
)

// FillCallback receives fills pushed by the broker. Live brokers invoke it
// asynchronously; the simulated broker invokes it before SubmitOrder
// returns.
type FillCallback func(orderID string, fill models.Trade)

// Adapter defines the interface for order submission. Transport details
// (HTTP, websockets, auth) live behind implementations; the engine never
// sees them.
type Adapter interface {
	// SubmitOrder forwards an order to the broker and returns the broker's
	// order id. Fills arrive via the registered callback.
	SubmitOrder(ctx context.Context, order *models.Order, intent models.TradeIntent) (string, error)
	// OnFill registers the fill callback. Must be called before the first
	// SubmitOrder.
	OnFill(cb FillCallback)
}
