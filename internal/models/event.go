package models

import (
	"encoding/json"
	"time"
)

// EventType classifies audit events.
type EventType string

const (
	EventEvaluate    EventType = "EVALUATE"
	EventTrigger     EventType = "TRIGGER"
	EventGuardrail   EventType = "GUARDRAIL"
	EventOrder       EventType = "ORDER"
	EventFill        EventType = "FILL"
	EventDividend    EventType = "DIVIDEND"
	EventAnchorReset EventType = "ANCHOR_RESET"
)

// Event is an append-only audit record. Events are the sole source of
// historical reconstruction and are never mutated or deleted.
type Event struct {
	ID         string
	PositionID string
	Seq        int64
	Type       EventType
	TraceID    string
	Timestamp  time.Time
	Payload    json.RawMessage
}

// EvaluatePayload records the inputs of one tick evaluation.
type EvaluatePayload struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	AnchorPrice float64 `json:"anchor_price"`
	Qty         float64 `json:"qty"`
	Cash        float64 `json:"cash"`
	StockPct    float64 `json:"stock_pct"`
}

// TriggerPayload records a trigger decision.
type TriggerPayload struct {
	Fired     bool             `json:"fired"`
	Direction TriggerDirection `json:"direction"`
	DeltaPct  float64          `json:"delta_pct"`
	Reason    string           `json:"reason"`
}

// GuardrailPayload records a guardrail decision.
type GuardrailPayload struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// OrderPayload records order creation or a status transition.
type OrderPayload struct {
	OrderID        string      `json:"order_id"`
	Side           OrderSide   `json:"side"`
	Qty            float64     `json:"qty"`
	Status         OrderStatus `json:"status"`
	IdempotencyKey string      `json:"idempotency_key"`
	Reason         string      `json:"reason,omitempty"`
}

// FillPayload records an applied fill. Replay applies these to rebuild
// position state.
type FillPayload struct {
	OrderID    string    `json:"order_id"`
	Side       OrderSide `json:"side"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price"`
	Commission float64   `json:"commission"`
}

// DividendPhase distinguishes ex-date accrual from pay-date crediting.
type DividendPhase string

const (
	DividendAccrued  DividendPhase = "ACCRUED"
	DividendCredited DividendPhase = "CREDITED"
)

// DividendPayload records a dividend accrual or credit.
type DividendPayload struct {
	DividendID  string        `json:"dividend_id"`
	Phase       DividendPhase `json:"phase"`
	DPS         float64       `json:"dps"`
	QtyAtExDate float64       `json:"qty_at_ex_date"`
	Gross       float64       `json:"gross"`
	Withholding float64       `json:"withholding"`
	Net         float64       `json:"net"`
}

// AnchorResetPayload records an anchor change with its reason.
type AnchorResetPayload struct {
	OldValue float64 `json:"old_value"`
	NewValue float64 `json:"new_value"`
	Reason   string  `json:"reason"`
}

// NewEvent builds an event with a marshaled payload. Marshaling the typed
// payload structs above cannot fail, so errors are ignored.
func NewEvent(positionID string, typ EventType, traceID string, ts time.Time, payload any) Event {
	raw, _ := json.Marshal(payload)
	return Event{
		PositionID: positionID,
		Type:       typ,
		TraceID:    traceID,
		Timestamp:  ts,
		Payload:    raw,
	}
}
