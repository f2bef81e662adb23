package engine

import (
	"fmt"

	"anchor-rebalancer/internal/errors"
	"anchor-rebalancer/internal/models"
)

// EvaluateTrigger compares the current price against the anchor and decides
// whether a rebalancing trigger fires. Pure and deterministic; both
// thresholds are inclusive.
func EvaluateTrigger(anchorPrice, currentPrice float64, cfg models.TriggerConfig) (models.TriggerDecision, error) {
	if anchorPrice <= 0 {
		return models.TriggerDecision{}, errors.NewConfigError("anchor_price", anchorPrice, "must be positive")
	}
	if currentPrice <= 0 {
		return models.TriggerDecision{}, errors.NewConfigError("current_price", currentPrice, "must be positive")
	}
	if cfg.UpThresholdPct <= 0 {
		return models.TriggerDecision{}, errors.NewConfigError("up_threshold_pct", cfg.UpThresholdPct, "must be positive")
	}
	if cfg.DownThresholdPct <= 0 {
		return models.TriggerDecision{}, errors.NewConfigError("down_threshold_pct", cfg.DownThresholdPct, "must be positive")
	}

	deltaPct := (currentPrice - anchorPrice) / anchorPrice * 100

	switch {
	case deltaPct >= cfg.UpThresholdPct:
		return models.TriggerDecision{
			Fired:     true,
			Direction: models.TriggerUp,
			DeltaPct:  deltaPct,
			Reason: fmt.Sprintf("price %.2f is %+.2f%% from anchor %.2f, at or above up threshold %.2f%%",
				currentPrice, deltaPct, anchorPrice, cfg.UpThresholdPct),
		}, nil
	case deltaPct <= -cfg.DownThresholdPct:
		return models.TriggerDecision{
			Fired:     true,
			Direction: models.TriggerDown,
			DeltaPct:  deltaPct,
			Reason: fmt.Sprintf("price %.2f is %+.2f%% from anchor %.2f, at or below down threshold -%.2f%%",
				currentPrice, deltaPct, anchorPrice, cfg.DownThresholdPct),
		}, nil
	default:
		return models.TriggerDecision{
			Fired:     false,
			Direction: models.TriggerNone,
			DeltaPct:  deltaPct,
			Reason: fmt.Sprintf("price %.2f is %+.2f%% from anchor %.2f, within band",
				currentPrice, deltaPct, anchorPrice),
		}, nil
	}
}
