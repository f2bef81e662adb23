// Package models provides domain models for the rebalancing engine.
package models

import (
	"time"
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// TriggerDirection represents the direction of a fired trigger.
type TriggerDirection string

const (
	TriggerUp   TriggerDirection = "UP"
	TriggerDown TriggerDirection = "DOWN"
	TriggerNone TriggerDirection = "NONE"
)

// IntentAction represents the final action of a tick evaluation.
type IntentAction string

const (
	ActionBuy  IntentAction = "BUY"
	ActionSell IntentAction = "SELL"
	ActionHold IntentAction = "HOLD"
	ActionSkip IntentAction = "SKIP"
)

// MarketSession represents the trading session a quote belongs to.
type MarketSession string

const (
	SessionRegular    MarketSession = "REGULAR"
	SessionPreMarket  MarketSession = "PRE_MARKET"
	SessionAfterHours MarketSession = "AFTER_HOURS"
	SessionClosed     MarketSession = "CLOSED"
)

// Quote represents a market quote.
type Quote struct {
	Symbol    string
	Price     float64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	Session   MarketSession
	Timestamp time.Time
}

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Quote converts a historical candle into the quote shape the engine
// consumes, using the close as the effective price.
func (c Candle) Quote(symbol string) Quote {
	return Quote{
		Symbol:    symbol,
		Price:     c.Close,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
		Session:   SessionRegular,
		Timestamp: c.Timestamp,
	}
}

// TriggerDecision is the outcome of evaluating a quote against the anchor.
type TriggerDecision struct {
	Fired     bool
	Direction TriggerDirection
	DeltaPct  float64
	Reason    string
}

// GuardrailDecision is the outcome of the pre-trade guardrail check.
type GuardrailDecision struct {
	Allowed bool
	Reason  string
}

// TradeIntent is the sized trade proposal produced for one tick.
type TradeIntent struct {
	Side                OrderSide
	Action              IntentAction
	RawQty              float64
	Qty                 float64
	Price               float64
	Notional            float64
	EstimatedCommission float64
	TrimReason          string
	SkipReason          string
}

// DayStats is a snapshot of per-position activity for the current trading
// day, supplied to the guardrail evaluator by the order book.
type DayStats struct {
	Orders   int
	Notional float64
}
