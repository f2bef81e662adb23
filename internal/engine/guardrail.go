package engine

import (
	"fmt"

	"anchor-rebalancer/internal/errors"
	"anchor-rebalancer/internal/models"
)

// EvaluateGuardrails runs the pre-trade guardrail checks against a sized
// intent. The first failing check short-circuits with a human-readable
// reason. Pure function over immutable snapshots.
func EvaluateGuardrails(pos *models.PositionCell, intent models.TradeIntent, day models.DayStats, cfg models.GuardrailConfig) (models.GuardrailDecision, error) {
	if err := validateGuardrailConfig(cfg); err != nil {
		return models.GuardrailDecision{}, err
	}

	price := intent.Price
	total := pos.TotalValue(price)
	current := pos.StockPct(price)
	cost := intent.Notional + intent.EstimatedCommission

	// (a) allocation bounds
	switch intent.Side {
	case models.OrderSideBuy:
		if current >= cfg.MaxStockPct {
			return blocked(fmt.Sprintf("Already at %.1f%% stock allocation, exceeds max %.0f%%",
				current*100, cfg.MaxStockPct*100)), nil
		}
		postTotal := total - intent.EstimatedCommission
		if postTotal > 0 {
			post := (pos.Qty*price + intent.Notional) / postTotal
			if post > cfg.MaxStockPct {
				return blocked(fmt.Sprintf("trade would raise stock allocation to %.1f%%, above max %.0f%%",
					post*100, cfg.MaxStockPct*100)), nil
			}
		}
	case models.OrderSideSell:
		if current <= cfg.MinStockPct {
			return blocked(fmt.Sprintf("Already at %.1f%% stock allocation, below min %.0f%%",
				current*100, cfg.MinStockPct*100)), nil
		}
		postTotal := total - intent.EstimatedCommission
		if postTotal > 0 {
			post := (pos.Qty*price - intent.Notional) / postTotal
			if post < cfg.MinStockPct {
				return blocked(fmt.Sprintf("trade would drop stock allocation to %.1f%%, below min %.0f%%",
					post*100, cfg.MinStockPct*100)), nil
			}
		}
	}

	// (b) cash sufficiency for BUY
	if intent.Side == models.OrderSideBuy && pos.Cash < cost {
		return blocked(fmt.Sprintf("insufficient cash: need %.2f, have %.2f", cost, pos.Cash)), nil
	}

	// (c) daily order count
	if cfg.MaxOrdersPerDay > 0 && day.Orders >= cfg.MaxOrdersPerDay {
		return blocked(fmt.Sprintf("daily order limit reached (%d of %d)", day.Orders, cfg.MaxOrdersPerDay)), nil
	}

	// (d) daily notional cap
	if cfg.MaxDailyNotional > 0 && day.Notional+intent.Notional > cfg.MaxDailyNotional {
		return blocked(fmt.Sprintf("daily notional cap exceeded: %.2f + %.2f > %.2f",
			day.Notional, intent.Notional, cfg.MaxDailyNotional)), nil
	}

	return models.GuardrailDecision{Allowed: true, Reason: "all guardrail checks passed"}, nil
}

// ValidationResult is the outcome of the post-fill consistency check.
type ValidationResult struct {
	OK         bool
	Violations []string
}

// ValidateAfterFill is a post-fill sanity check used to detect sizing bugs.
// The trade already executed, so violations are logged, never retried.
func ValidateAfterFill(pos *models.PositionCell, price float64, cfg models.GuardrailConfig) ValidationResult {
	res := ValidationResult{OK: true}
	if pos.Cash < -floatTolerance {
		res.OK = false
		res.Violations = append(res.Violations, fmt.Sprintf("cash is negative: %.4f", pos.Cash))
	}
	if pos.Qty < -floatTolerance {
		res.OK = false
		res.Violations = append(res.Violations, fmt.Sprintf("qty is negative: %.4f", pos.Qty))
	}
	pct := pos.StockPct(price)
	if pct > cfg.MaxStockPct+floatTolerance {
		res.OK = false
		res.Violations = append(res.Violations, fmt.Sprintf("stock allocation %.1f%% above max %.0f%%",
			pct*100, cfg.MaxStockPct*100))
	}
	if pos.Qty > 0 && pct < cfg.MinStockPct-floatTolerance {
		res.OK = false
		res.Violations = append(res.Violations, fmt.Sprintf("stock allocation %.1f%% below min %.0f%%",
			pct*100, cfg.MinStockPct*100))
	}
	return res
}

func validateGuardrailConfig(cfg models.GuardrailConfig) error {
	if cfg.MinStockPct < 0 || cfg.MaxStockPct > 1 || cfg.MinStockPct >= cfg.MaxStockPct {
		return errors.NewConfigError("guardrail", fmt.Sprintf("min=%.2f max=%.2f", cfg.MinStockPct, cfg.MaxStockPct),
			"require 0 <= min < max <= 1")
	}
	if cfg.MaxTradePctOfPosition < 0 || cfg.MaxTradePctOfPosition > 1 {
		return errors.NewConfigError("max_trade_pct_of_position", cfg.MaxTradePctOfPosition, "must be in [0, 1]")
	}
	return nil
}

func blocked(reason string) models.GuardrailDecision {
	return models.GuardrailDecision{Allowed: false, Reason: reason}
}
