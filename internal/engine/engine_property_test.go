package engine

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"anchor-rebalancer/internal/models"
)

// Property: the trigger fires upward exactly when the percentage deviation
// from the anchor is at or above the up threshold, and downward exactly when
// it is at or below the negated down threshold. No other combination fires.
func TestProperty_TriggerFiresExactlyAtThresholds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("trigger direction matches deviation sign and magnitude", prop.ForAll(
		func(anchor, price, up, down float64) bool {
			cfg := models.TriggerConfig{UpThresholdPct: up, DownThresholdPct: down}
			d, err := EvaluateTrigger(anchor, price, cfg)
			if err != nil {
				return false
			}
			delta := (price - anchor) / anchor * 100
			switch {
			case delta >= up:
				return d.Fired && d.Direction == models.TriggerUp
			case delta <= -down:
				return d.Fired && d.Direction == models.TriggerDown
			default:
				return !d.Fired && d.Direction == models.TriggerNone
			}
		},
		gen.Float64Range(1.0, 5000.0),
		gen.Float64Range(1.0, 5000.0),
		gen.Float64Range(0.5, 25.0),
		gen.Float64Range(0.5, 25.0),
	))

	properties.TestingRun(t)
}

// Property: applying a BUY fill conserves value. Cash decreases by exactly
// notional plus commission, quantity grows by the fill quantity, and neither
// cash nor quantity ever goes negative.
func TestProperty_BuyFillConservesValue(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("buy fill arithmetic", prop.ForAll(
		func(heldQty, cash, qty, price, commRate float64) bool {
			pos := &models.PositionCell{ID: "p", Symbol: "SPY", Qty: heldQty, Cash: cash, AnchorPrice: price, AvgCost: price}
			commission := qty * price * commRate / 100
			cost := qty*price + commission

			before, after, err := ApplyFill(pos, models.OrderSideBuy, qty, price, commission, time.Now())
			if cost > cash+floatTolerance {
				return err != nil && *pos == before
			}
			if err != nil {
				return false
			}
			if after.Cash < 0 || after.Qty < 0 {
				return false
			}
			if math.Abs(before.Cash-after.Cash-cost) > floatTolerance {
				return false
			}
			return math.Abs(after.Qty-before.Qty-qty) <= floatTolerance
		},
		gen.Float64Range(0, 1000),
		gen.Float64Range(0, 100000),
		gen.Float64Range(0.01, 500),
		gen.Float64Range(0.5, 1000),
		gen.Float64Range(0, 1),
	))

	properties.TestingRun(t)
}

// Property: a SELL fill books realized profit of (price - avg cost) * qty,
// credits the net proceeds to cash, and never sells more than is held.
func TestProperty_SellFillBooksRealizedPnL(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("sell fill arithmetic", prop.ForAll(
		func(heldQty, qty, price, avgCost float64) bool {
			pos := &models.PositionCell{ID: "p", Symbol: "SPY", Qty: heldQty, Cash: 1000, AnchorPrice: price, AvgCost: avgCost}

			before, after, err := ApplyFill(pos, models.OrderSideSell, qty, price, 0, time.Now())
			if qty > heldQty+floatTolerance {
				return err != nil && *pos == before
			}
			if err != nil {
				return false
			}
			wantPnL := (price - avgCost) * qty
			if math.Abs(after.RealizedPnL-before.RealizedPnL-wantPnL) > floatTolerance {
				return false
			}
			if math.Abs(after.Cash-before.Cash-qty*price) > floatTolerance {
				return false
			}
			return after.Qty >= 0 && after.AvgCost == before.AvgCost
		},
		gen.Float64Range(0.01, 1000),
		gen.Float64Range(0.01, 1000),
		gen.Float64Range(0.5, 1000),
		gen.Float64Range(0.5, 1000),
	))

	properties.TestingRun(t)
}

// Property: dividend accrual always splits gross into withholding plus net,
// freezes the ex-date quantity, and leaves cash untouched until the credit.
func TestProperty_DividendAccrualSplitsGross(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("gross = withholding + net, qty frozen", prop.ForAll(
		func(qty, dps, taxRate float64) bool {
			pos := &models.PositionCell{ID: "p", Symbol: "SPY", Qty: qty, Cash: 500, AnchorPrice: 100}
			div := models.Dividend{ID: "d", Symbol: "SPY", DPS: dps, WithholdingTaxRate: taxRate,
				PayDate: time.Now().Add(14 * 24 * time.Hour)}

			app, rcv, err := AccrueDividend(pos, div)
			if err != nil {
				return false
			}
			if app.Gross != qty*dps {
				return false
			}
			if math.Abs(app.Gross-app.WithholdingTax-app.Net) > floatTolerance {
				return false
			}
			if rcv.QtyAtExDate != qty || pos.Cash != 500 {
				return false
			}

			if err := CreditDividend(pos, rcv); err != nil {
				return false
			}
			return pos.Cash == 500+rcv.Net && pos.TotalDividendsReceived == rcv.Net
		},
		gen.Float64Range(0.5, 10000),
		gen.Float64Range(0.01, 50),
		gen.Float64Range(0, 0.5),
	))

	properties.TestingRun(t)
}

// Property: a sized BUY intent is always affordable after estimated
// commission, is a whole multiple of the quantity step, and a sized SELL
// never exceeds the held quantity.
func TestProperty_SizedIntentRespectsLimits(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	gcfg := models.GuardrailConfig{MinStockPct: 0.2, MaxStockPct: 0.8, MaxTradePctOfPosition: 0.25}
	pol := models.OrderPolicyConfig{
		MinQty:            0.5,
		MinNotional:       10,
		QtyStep:           0.5,
		RebalanceRatio:    1,
		SizingStrategy:    models.SizingTargetMidpoint,
		CommissionRatePct: 0.05,
		ActionBelowMin:    models.BelowMinSkip,
	}

	properties.Property("sized trades stay within means", prop.ForAll(
		func(heldQty, cash, price float64, down bool) bool {
			pos := &models.PositionCell{ID: "p", Symbol: "SPY", Qty: heldQty, Cash: cash, AnchorPrice: price}
			dir := models.TriggerUp
			if down {
				dir = models.TriggerDown
			}
			trigger := models.TriggerDecision{Fired: true, Direction: dir}

			intent, err := SizeTradeIntent(pos, trigger, models.Quote{Symbol: "SPY", Price: price, Session: models.SessionRegular}, gcfg, pol)
			if err != nil {
				return false
			}
			switch intent.Action {
			case models.ActionSkip:
				return true
			case models.ActionBuy:
				if intent.Notional+intent.EstimatedCommission > pos.Cash+floatTolerance {
					return false
				}
			case models.ActionSell:
				if intent.Qty > pos.Qty+floatTolerance {
					return false
				}
			default:
				return false
			}
			steps := intent.Qty / pol.QtyStep
			return math.Abs(steps-math.Round(steps)) < 1e-9
		},
		gen.Float64Range(0, 1000),
		gen.Float64Range(0, 100000),
		gen.Float64Range(1, 1000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
