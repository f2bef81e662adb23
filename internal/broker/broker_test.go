package broker

import (
	"context"
	"testing"
	"time"

	"anchor-rebalancer/internal/models"
)

func testOrder() *models.Order {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.Order{
		ID: "o-1", PositionID: "pos-1", Symbol: "SPY",
		Side: models.OrderSideBuy, Qty: 5.5,
		Status: models.OrderSubmitted, CreatedAt: now, UpdatedAt: now,
	}
}

func TestSimBrokerFillsSynchronously(t *testing.T) {
	b := NewSimBroker()

	var got models.Trade
	filled := false
	b.OnFill(func(orderID string, fill models.Trade) {
		filled = true
		got = fill
	})

	order := testOrder()
	intent := models.TradeIntent{Side: models.OrderSideBuy, Qty: 5.5, Price: 478.52, EstimatedCommission: 0.26}
	brokerID, err := b.SubmitOrder(context.Background(), order, intent)
	if err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	if brokerID == "" {
		t.Error("missing broker order id")
	}

	// the sim broker delivers the fill before SubmitOrder returns
	if !filled {
		t.Fatal("expected a synchronous fill")
	}
	if got.OrderID != order.ID || got.Qty != 5.5 || got.Price != 478.52 || got.Commission != 0.26 {
		t.Errorf("fill = %+v", got)
	}
	if !got.ExecutedAt.Equal(order.CreatedAt) {
		t.Errorf("executed at = %v, want order creation time %v", got.ExecutedAt, order.CreatedAt)
	}
}

func TestPaperBrokerFillsAsynchronously(t *testing.T) {
	b := NewPaperBroker(5 * time.Millisecond)

	fills := make(chan models.Trade, 1)
	b.OnFill(func(orderID string, fill models.Trade) {
		fills <- fill
	})

	order := testOrder()
	intent := models.TradeIntent{Side: models.OrderSideBuy, Qty: 5.5, Price: 478.52, EstimatedCommission: 0.26}
	if _, err := b.SubmitOrder(context.Background(), order, intent); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}

	select {
	case fill := <-fills:
		if fill.OrderID != order.ID || fill.Price != 478.52 {
			t.Errorf("fill = %+v", fill)
		}
	case <-time.After(time.Second):
		t.Fatal("fill never arrived")
	}
}

func TestPaperBrokerHonorsCancellation(t *testing.T) {
	b := NewPaperBroker(time.Hour)

	fills := make(chan models.Trade, 1)
	b.OnFill(func(orderID string, fill models.Trade) {
		fills <- fill
	})

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := b.SubmitOrder(ctx, testOrder(), models.TradeIntent{Price: 100}); err != nil {
		t.Fatalf("SubmitOrder: %v", err)
	}
	cancel()

	select {
	case <-fills:
		t.Error("cancelled context must drop the pending fill")
	case <-time.After(50 * time.Millisecond):
	}
}
