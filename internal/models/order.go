package models

import "time"

// OrderStatus represents a state in the order lifecycle.
type OrderStatus string

const (
	OrderCreated   OrderStatus = "CREATED"
	OrderSubmitted OrderStatus = "SUBMITTED"
	OrderWorking   OrderStatus = "WORKING"
	OrderPartial   OrderStatus = "PARTIAL"
	OrderFilled    OrderStatus = "FILLED"
	OrderRejected  OrderStatus = "REJECTED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderFilled || s == OrderRejected || s == OrderCancelled
}

// Order represents a rebalancing order.
type Order struct {
	ID              string
	PositionID      string
	Symbol          string
	Side            OrderSide
	Qty             float64
	LimitPrice      float64
	Status          OrderStatus
	IdempotencyKey  string
	BrokerOrderID   string
	FilledQty       float64
	AvgFillPrice    float64
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() float64 {
	return o.Qty - o.FilledQty
}

// Trade represents a single fill against an order. An order may have more
// than one when the broker fills partially.
type Trade struct {
	ID         string
	OrderID    string
	PositionID string
	Symbol     string
	Side       OrderSide
	Qty        float64
	Price      float64
	Commission float64
	ExecutedAt time.Time
}
