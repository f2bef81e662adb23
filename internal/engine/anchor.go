package engine

import (
	"anchor-rebalancer/internal/errors"
	"anchor-rebalancer/internal/models"
)

// AnchorReset records an anchor change for audit.
type AnchorReset struct {
	OldValue float64
	NewValue float64
	Reason   string
}

// ResetAnchorAfterFill resets the anchor to the fill price when the order
// policy asks for it. Returns nil when no reset applies.
func ResetAnchorAfterFill(pos *models.PositionCell, fillPrice float64, pol models.OrderPolicyConfig) *AnchorReset {
	if !pol.ResetAnchorOnFill || fillPrice <= 0 {
		return nil
	}
	reset := &AnchorReset{OldValue: pos.AnchorPrice, NewValue: fillPrice, Reason: "Post-trade reset to fill price"}
	pos.AnchorPrice = fillPrice
	return reset
}

// AdjustAnchorForDividend reduces the anchor by the dividend per share
// (ex-dividend adjustment) when configured. The adjustment is skipped if it
// would make the anchor non-positive.
func AdjustAnchorForDividend(pos *models.PositionCell, dps float64, pol models.OrderPolicyConfig) *AnchorReset {
	if !pol.AdjustAnchorOnDividend || dps <= 0 {
		return nil
	}
	next := pos.AnchorPrice - dps
	if next <= 0 {
		return nil
	}
	reset := &AnchorReset{OldValue: pos.AnchorPrice, NewValue: next, Reason: "Ex-dividend adjustment"}
	pos.AnchorPrice = next
	return reset
}

// SetAnchor applies a manual anchor override, bypassing trigger logic.
func SetAnchor(pos *models.PositionCell, newPrice float64) (*AnchorReset, error) {
	if newPrice <= 0 {
		return nil, errors.NewConfigError("anchor_price", newPrice, "must be positive")
	}
	reset := &AnchorReset{OldValue: pos.AnchorPrice, NewValue: newPrice, Reason: "Manual reset"}
	pos.AnchorPrice = newPrice
	return reset, nil
}
