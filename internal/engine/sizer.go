package engine

import (
	"fmt"
	"math"

	"anchor-rebalancer/internal/errors"
	"anchor-rebalancer/internal/models"
	"anchor-rebalancer/pkg/utils"
)

// SizeTradeIntent turns a fired trigger into a concrete trade quantity,
// applying the sizing strategy, lot rounding, the max-trade-size cap and
// the below-minimum policy. A trigger that did not fire yields HOLD; a
// fired trigger that sizing rules zero out yields SKIP.
func SizeTradeIntent(pos *models.PositionCell, trigger models.TriggerDecision, quote models.Quote, gcfg models.GuardrailConfig, pol models.OrderPolicyConfig) (models.TradeIntent, error) {
	if !trigger.Fired {
		return models.TradeIntent{Action: models.ActionHold, Price: quote.Price}, nil
	}
	if err := validatePolicy(pol); err != nil {
		return models.TradeIntent{}, err
	}

	price := quote.Price
	side := models.OrderSideBuy
	if trigger.Direction == models.TriggerDown {
		side = models.OrderSideSell
	}

	intent := models.TradeIntent{Side: side, Price: price}

	raw, skip := rawQty(pos, side, price, gcfg, pol)
	if skip != "" {
		intent.Action = models.ActionSkip
		intent.SkipReason = skip
		return intent, nil
	}
	intent.RawQty = raw

	qty := utils.RoundDownToStep(raw, pol.QtyStep)

	// guardrail cap on trade size
	if gcfg.MaxTradePctOfPosition > 0 {
		maxNotional := pos.TotalValue(price) * gcfg.MaxTradePctOfPosition
		if qty*price > maxNotional {
			capped := utils.RoundDownToStep(maxNotional/price, pol.QtyStep)
			intent.TrimReason = fmt.Sprintf("trimmed from %s to %s shares by max trade size %.0f%% of position",
				utils.FormatQty(qty), utils.FormatQty(capped), gcfg.MaxTradePctOfPosition*100)
			qty = capped
		}
	}

	// a BUY can never be sized past available cash including commission
	if side == models.OrderSideBuy {
		affordable := utils.RoundDownToStep(pos.Cash/(price*(1+pol.CommissionRatePct/100)), pol.QtyStep)
		if qty > affordable {
			intent.TrimReason = fmt.Sprintf("trimmed from %s to %s shares by available cash %.2f",
				utils.FormatQty(qty), utils.FormatQty(affordable), pos.Cash)
			qty = affordable
		}
	} else if qty > pos.Qty {
		capped := utils.RoundDownToStep(pos.Qty, pol.QtyStep)
		intent.TrimReason = fmt.Sprintf("trimmed from %s to %s shares by held quantity",
			utils.FormatQty(qty), utils.FormatQty(capped))
		qty = capped
	}

	if qty <= 0 {
		intent.Action = models.ActionSkip
		intent.SkipReason = "sized quantity rounded to zero"
		return intent, nil
	}

	// below-minimum policy
	if qty < pol.MinQty || qty*price < pol.MinNotional {
		if pol.ActionBelowMin == models.BelowMinRoundUp {
			minQty := pol.MinQty
			if pol.MinNotional > 0 {
				minQty = math.Max(minQty, pol.MinNotional/price)
			}
			qty = utils.RoundUpToStep(minQty, pol.QtyStep)
		} else {
			intent.Action = models.ActionSkip
			intent.SkipReason = fmt.Sprintf("sized trade %s shares (%.2f notional) below minimum",
				utils.FormatQty(qty), qty*price)
			return intent, nil
		}
	}

	intent.Qty = qty
	intent.Notional = qty * price
	intent.EstimatedCommission = intent.Notional * pol.CommissionRatePct / 100
	if side == models.OrderSideBuy {
		intent.Action = models.ActionBuy
	} else {
		intent.Action = models.ActionSell
	}
	return intent, nil
}

// rawQty computes the pre-rounding quantity for the configured strategy.
// Returns a non-empty skip reason when the strategy cannot produce a trade
// in the trigger's direction.
func rawQty(pos *models.PositionCell, side models.OrderSide, price float64, gcfg models.GuardrailConfig, pol models.OrderPolicyConfig) (float64, string) {
	switch pol.SizingStrategy {
	case models.SizingFixedFraction:
		if side == models.OrderSideBuy {
			return pos.Cash * pol.RebalanceRatio / price, ""
		}
		return pos.Qty * pol.RebalanceRatio, ""
	default: // target-midpoint
		total := pos.TotalValue(price)
		target := (gcfg.MinStockPct + gcfg.MaxStockPct) / 2
		deltaValue := target*total - pos.Qty*price
		if side == models.OrderSideBuy {
			if deltaValue <= 0 {
				return 0, fmt.Sprintf("allocation %.1f%% already at or past target %.0f%%, nothing to buy",
					pos.StockPct(price)*100, target*100)
			}
			return deltaValue / price * pol.RebalanceRatio, ""
		}
		if deltaValue >= 0 {
			return 0, fmt.Sprintf("allocation %.1f%% already at or below target %.0f%%, nothing to sell",
				pos.StockPct(price)*100, target*100)
		}
		return -deltaValue / price * pol.RebalanceRatio, ""
	}
}

func validatePolicy(pol models.OrderPolicyConfig) error {
	if pol.RebalanceRatio <= 0 || pol.RebalanceRatio > 1 {
		return errors.NewConfigError("rebalance_ratio", pol.RebalanceRatio, "must be in (0, 1]")
	}
	if pol.QtyStep < 0 {
		return errors.NewConfigError("qty_step", pol.QtyStep, "must be non-negative")
	}
	if pol.CommissionRatePct < 0 {
		return errors.NewConfigError("commission_rate_pct", pol.CommissionRatePct, "must be non-negative")
	}
	if pol.SizingStrategy != "" && pol.SizingStrategy != models.SizingTargetMidpoint && pol.SizingStrategy != models.SizingFixedFraction {
		return errors.NewConfigError("order_sizing_strategy", pol.SizingStrategy, "unknown strategy")
	}
	return nil
}
