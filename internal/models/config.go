package models

// SizingStrategy selects how the trade intent sizer computes the raw
// rebalancing quantity.
type SizingStrategy string

const (
	// SizingTargetMidpoint sizes the trade to move stock allocation toward
	// the midpoint of the guardrail band, scaled by the rebalance ratio.
	SizingTargetMidpoint SizingStrategy = "target-midpoint"
	// SizingFixedFraction sizes the trade as a fixed fraction of available
	// cash (BUY) or held quantity (SELL).
	SizingFixedFraction SizingStrategy = "fixed-fraction"
)

// BelowMinAction selects what to do when a sized trade falls below the
// configured minimum quantity or notional.
type BelowMinAction string

const (
	BelowMinSkip    BelowMinAction = "skip"
	BelowMinRoundUp BelowMinAction = "round_up"
)

// TriggerConfig holds the symmetric deviation band around the anchor.
// Both thresholds are positive percentages.
type TriggerConfig struct {
	UpThresholdPct   float64 `mapstructure:"up_threshold_pct"`
	DownThresholdPct float64 `mapstructure:"down_threshold_pct"`
}

// GuardrailConfig holds allocation and activity limits enforced before a
// trade executes.
type GuardrailConfig struct {
	MinStockPct           float64 `mapstructure:"min_stock_pct"`
	MaxStockPct           float64 `mapstructure:"max_stock_pct"`
	MaxTradePctOfPosition float64 `mapstructure:"max_trade_pct_of_position"`
	MaxOrdersPerDay       int     `mapstructure:"max_orders_per_day"`
	// MaxDailyNotional caps total traded notional per day; zero disables it.
	MaxDailyNotional float64 `mapstructure:"max_daily_notional"`
}

// OrderPolicyConfig holds order sizing and execution policy.
type OrderPolicyConfig struct {
	MinQty            float64        `mapstructure:"min_qty"`
	MinNotional       float64        `mapstructure:"min_notional"`
	QtyStep           float64        `mapstructure:"qty_step"`
	RebalanceRatio    float64        `mapstructure:"rebalance_ratio"`
	SizingStrategy    SizingStrategy `mapstructure:"order_sizing_strategy"`
	AllowAfterHours   bool           `mapstructure:"allow_after_hours"`
	CommissionRatePct float64        `mapstructure:"commission_rate_pct"`
	ActionBelowMin    BelowMinAction `mapstructure:"action_below_min"`
	// ResetAnchorOnFill resets the anchor to the fill price after any
	// executed trade.
	ResetAnchorOnFill bool `mapstructure:"reset_anchor_on_fill"`
	// AdjustAnchorOnDividend reduces the anchor by the dividend per share
	// when a dividend is credited.
	AdjustAnchorOnDividend bool `mapstructure:"adjust_anchor_on_dividend"`
}

// EffectiveConfig bundles the three resolved config objects for one
// position.
type EffectiveConfig struct {
	Trigger   TriggerConfig
	Guardrail GuardrailConfig
	Policy    OrderPolicyConfig
}
