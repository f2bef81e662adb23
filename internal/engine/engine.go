// Package engine implements the decision and state-transition core: the
// deterministic pipeline that turns a market price tick into a trigger
// evaluation, a guardrail-checked trade intent, and the position mutations
// that follow fills and dividends. All functions here are synchronous,
// pure computations over in-memory snapshots; they never perform I/O, so
// the live loop and the backtest engine share bit-identical decisions.
package engine

import (
	"fmt"
	"time"

	"anchor-rebalancer/internal/models"
)

// TickInput bundles everything one evaluation needs: the position, the
// quote, the resolved configs, and the day's activity snapshot.
type TickInput struct {
	Position *models.PositionCell
	Quote    models.Quote
	Config   models.EffectiveConfig
	Day      models.DayStats
	TraceID  string
}

// EvaluationResult is the outcome of one tick evaluation. Order is non-nil
// only when the action is BUY or SELL; it is in CREATED state and has not
// been submitted. Fill results are merged in by the orchestrator after the
// order executes.
type EvaluationResult struct {
	TraceID        string
	Trigger        models.TriggerDecision
	Guardrail      *models.GuardrailDecision
	Intent         models.TradeIntent
	Order          *models.Order
	PositionBefore models.PositionCell
	PositionAfter  models.PositionCell
	Events         []models.Event
}

// EvaluateTick runs the decision pipeline for one quote: trigger, sizing,
// guardrails, order creation. It never mutates the position; mutations
// happen when a fill is applied via ApplyTrade. Both orchestrator variants
// and the parameter-sweep layer call this one entry point.
func EvaluateTick(in TickInput) (*EvaluationResult, error) {
	pos := in.Position
	quote := in.Quote
	before := pos.Clone()

	res := &EvaluationResult{
		TraceID:        in.TraceID,
		PositionBefore: before,
		PositionAfter:  before,
	}

	res.Events = append(res.Events, models.NewEvent(pos.ID, models.EventEvaluate, in.TraceID, quote.Timestamp, models.EvaluatePayload{
		Symbol:      quote.Symbol,
		Price:       quote.Price,
		AnchorPrice: pos.AnchorPrice,
		Qty:         pos.Qty,
		Cash:        pos.Cash,
		StockPct:    pos.StockPct(quote.Price),
	}))

	// sessions outside regular hours are a HOLD unless the policy opts in
	if quote.Session != models.SessionRegular && !in.Config.Policy.AllowAfterHours {
		res.Intent = models.TradeIntent{Action: models.ActionHold, Price: quote.Price}
		res.Trigger = models.TriggerDecision{
			Direction: models.TriggerNone,
			Reason:    fmt.Sprintf("session %s outside regular hours", quote.Session),
		}
		return res, nil
	}

	trigger, err := EvaluateTrigger(pos.AnchorPrice, quote.Price, in.Config.Trigger)
	if err != nil {
		return nil, err
	}
	res.Trigger = trigger

	if !trigger.Fired {
		res.Intent = models.TradeIntent{Action: models.ActionHold, Price: quote.Price}
		return res, nil
	}

	res.Events = append(res.Events, models.NewEvent(pos.ID, models.EventTrigger, in.TraceID, quote.Timestamp, models.TriggerPayload{
		Fired:     trigger.Fired,
		Direction: trigger.Direction,
		DeltaPct:  trigger.DeltaPct,
		Reason:    trigger.Reason,
	}))

	intent, err := SizeTradeIntent(pos, trigger, quote, in.Config.Guardrail, in.Config.Policy)
	if err != nil {
		return nil, err
	}

	if intent.Action == models.ActionSkip {
		// sizing rules zeroed the trade; recorded like a guardrail block
		res.Intent = intent
		res.Guardrail = &models.GuardrailDecision{Allowed: false, Reason: intent.SkipReason}
		res.Events = append(res.Events, models.NewEvent(pos.ID, models.EventGuardrail, in.TraceID, quote.Timestamp, models.GuardrailPayload{
			Allowed: false,
			Reason:  intent.SkipReason,
		}))
		return res, nil
	}

	decision, err := EvaluateGuardrails(pos, intent, in.Day, in.Config.Guardrail)
	if err != nil {
		return nil, err
	}
	res.Guardrail = &decision
	res.Events = append(res.Events, models.NewEvent(pos.ID, models.EventGuardrail, in.TraceID, quote.Timestamp, models.GuardrailPayload{
		Allowed: decision.Allowed,
		Reason:  decision.Reason,
	}))

	if !decision.Allowed {
		intent.Action = models.ActionSkip
		intent.SkipReason = decision.Reason
		res.Intent = intent
		return res, nil
	}

	res.Intent = intent
	order := &models.Order{
		PositionID:     pos.ID,
		Symbol:         quote.Symbol,
		Side:           intent.Side,
		Qty:            intent.Qty,
		Status:         models.OrderCreated,
		IdempotencyKey: IdempotencyKey(pos, intent.Side, quote),
		CreatedAt:      quote.Timestamp,
		UpdatedAt:      quote.Timestamp,
	}
	res.Order = order
	res.Events = append(res.Events, models.NewEvent(pos.ID, models.EventOrder, in.TraceID, quote.Timestamp, models.OrderPayload{
		Side:           order.Side,
		Qty:            order.Qty,
		Status:         order.Status,
		IdempotencyKey: order.IdempotencyKey,
	}))
	return res, nil
}

// IdempotencyKey derives the dedup token for one trigger decision. The key
// is stable across re-evaluations of the same anchor, direction and trading
// day, so periodic polling never double-submits; a fill resets the anchor
// and therefore produces a fresh key.
func IdempotencyKey(pos *models.PositionCell, side models.OrderSide, quote models.Quote) string {
	return fmt.Sprintf("%s:%s:%.4f:%s", pos.ID, side, pos.AnchorPrice, quote.Timestamp.Format("2006-01-02"))
}

// FillResult is the state change produced by applying one fill.
type FillResult struct {
	Trade          models.Trade
	PositionBefore models.PositionCell
	PositionAfter  models.PositionCell
	AnchorReset    *AnchorReset
	Events         []models.Event
}

// ApplyTrade applies a fill to the position, resets the anchor per policy,
// and emits the FILL and ANCHOR_RESET audit events. Atomic: on error the
// position is unchanged.
func ApplyTrade(pos *models.PositionCell, trade models.Trade, pol models.OrderPolicyConfig, traceID string) (*FillResult, error) {
	before, _, err := ApplyFill(pos, trade.Side, trade.Qty, trade.Price, trade.Commission, trade.ExecutedAt)
	if err != nil {
		return nil, err
	}

	res := &FillResult{Trade: trade, PositionBefore: before}
	res.Events = append(res.Events, models.NewEvent(pos.ID, models.EventFill, traceID, trade.ExecutedAt, models.FillPayload{
		OrderID:    trade.OrderID,
		Side:       trade.Side,
		Qty:        trade.Qty,
		Price:      trade.Price,
		Commission: trade.Commission,
	}))

	if reset := ResetAnchorAfterFill(pos, trade.Price, pol); reset != nil {
		res.AnchorReset = reset
		res.Events = append(res.Events, models.NewEvent(pos.ID, models.EventAnchorReset, traceID, trade.ExecutedAt, models.AnchorResetPayload{
			OldValue: reset.OldValue,
			NewValue: reset.NewValue,
			Reason:   reset.Reason,
		}))
	}

	res.PositionAfter = pos.Clone()
	return res, nil
}

// ProcessDividendAccrual books a dividend receivable at ex-date and emits
// the DIVIDEND audit event.
func ProcessDividendAccrual(pos *models.PositionCell, div models.Dividend, traceID string) (models.DividendApplication, *models.DividendReceivable, []models.Event, error) {
	app, rcv, err := AccrueDividend(pos, div)
	if err != nil {
		return models.DividendApplication{}, nil, nil, err
	}
	ev := models.NewEvent(pos.ID, models.EventDividend, traceID, div.ExDate, models.DividendPayload{
		DividendID:  div.ID,
		Phase:       models.DividendAccrued,
		DPS:         div.DPS,
		QtyAtExDate: app.QtyAtExDate,
		Gross:       app.Gross,
		Withholding: app.WithholdingTax,
		Net:         app.Net,
	})
	return app, rcv, []models.Event{ev}, nil
}

// ProcessDividendCredit credits a matured receivable to cash at pay-date,
// applies the optional ex-dividend anchor adjustment, and emits the
// DIVIDEND (and possibly ANCHOR_RESET) audit events.
func ProcessDividendCredit(pos *models.PositionCell, rcv *models.DividendReceivable, div models.Dividend, pol models.OrderPolicyConfig, traceID string) ([]models.Event, error) {
	if err := CreditDividend(pos, rcv); err != nil {
		return nil, err
	}
	events := []models.Event{models.NewEvent(pos.ID, models.EventDividend, traceID, rcv.PayDate, models.DividendPayload{
		DividendID:  rcv.DividendID,
		Phase:       models.DividendCredited,
		DPS:         div.DPS,
		QtyAtExDate: rcv.QtyAtExDate,
		Gross:       rcv.Gross,
		Withholding: rcv.Withholding,
		Net:         rcv.Net,
	})}

	if reset := AdjustAnchorForDividend(pos, div.DPS, pol); reset != nil {
		events = append(events, models.NewEvent(pos.ID, models.EventAnchorReset, traceID, rcv.PayDate, models.AnchorResetPayload{
			OldValue: reset.OldValue,
			NewValue: reset.NewValue,
			Reason:   reset.Reason,
		}))
	}
	return events, nil
}

// ManualAnchorReset applies an operator anchor override and emits the
// ANCHOR_RESET audit event.
func ManualAnchorReset(pos *models.PositionCell, newPrice float64, traceID string, ts time.Time) ([]models.Event, error) {
	reset, err := SetAnchor(pos, newPrice)
	if err != nil {
		return nil, err
	}
	ev := models.NewEvent(pos.ID, models.EventAnchorReset, traceID, ts, models.AnchorResetPayload{
		OldValue: reset.OldValue,
		NewValue: reset.NewValue,
		Reason:   reset.Reason,
	})
	return []models.Event{ev}, nil
}
