package engine

import (
	"fmt"
	"time"

	"anchor-rebalancer/internal/errors"
	"anchor-rebalancer/internal/models"
)

// floatTolerance absorbs float64 rounding noise in invariant checks.
const floatTolerance = 1e-6

// ApplyFill applies a fill to the position, returning before/after
// snapshots. The mutation is all-or-nothing: on any error the position is
// untouched. A BUY that would drive cash negative returns a FundsError;
// the guardrail layer should have made that unreachable, so callers treat
// it as a fatal consistency error.
func ApplyFill(pos *models.PositionCell, side models.OrderSide, qty, price, commission float64, executedAt time.Time) (before, after models.PositionCell, err error) {
	before = pos.Clone()

	if qty <= 0 {
		return before, before, fmt.Errorf("%w: fill qty %.4f must be positive", errors.ErrInvalidOrder, qty)
	}
	if price <= 0 {
		return before, before, fmt.Errorf("%w: fill price %.4f must be positive", errors.ErrInvalidOrder, price)
	}
	if commission < 0 {
		return before, before, fmt.Errorf("%w: commission %.4f must be non-negative", errors.ErrInvalidOrder, commission)
	}

	next := pos.Clone()
	switch side {
	case models.OrderSideBuy:
		cost := qty*price + commission
		if cost > next.Cash+floatTolerance {
			return before, before, &errors.FundsError{PositionID: pos.ID, Required: cost, Available: pos.Cash}
		}
		next.AvgCost = (next.AvgCost*next.Qty + qty*price) / (next.Qty + qty)
		next.Cash -= cost
		next.Qty += qty
	case models.OrderSideSell:
		if qty > next.Qty+floatTolerance {
			return before, before, fmt.Errorf("%w: sell qty %.4f exceeds held %.4f", errors.ErrInvalidOrder, qty, next.Qty)
		}
		proceeds := qty*price - commission
		if next.Cash+proceeds < -floatTolerance {
			return before, before, &errors.FundsError{PositionID: pos.ID, Required: -proceeds, Available: pos.Cash}
		}
		next.RealizedPnL += (price - next.AvgCost) * qty
		next.Cash += proceeds
		next.Qty -= qty
	default:
		return before, before, fmt.Errorf("%w: unknown side %q", errors.ErrInvalidOrder, side)
	}

	next.TotalCommissionPaid += commission
	next.Cash = clampZero(next.Cash)
	next.Qty = clampZero(next.Qty)
	next.UpdatedAt = executedAt

	*pos = next
	return before, next, nil
}

// clampZero maps float noise just below zero back to zero.
func clampZero(v float64) float64 {
	if v < 0 && v > -floatTolerance {
		return 0
	}
	return v
}
