package config

import (
	"fmt"

	"anchor-rebalancer/internal/models"
)

// Scope identifies one layer of the strategy-config hierarchy. Narrower
// scopes override broader ones.
type Scope string

const (
	ScopeGlobal      Scope = "GLOBAL"
	ScopeTenant      Scope = "TENANT"
	ScopeTenantAsset Scope = "TENANT_ASSET"
	ScopePosition    Scope = "POSITION"
)

// TriggerOverride holds optional trigger fields for one scope. Nil fields
// fall through to the next broader layer.
type TriggerOverride struct {
	UpThresholdPct   *float64 `mapstructure:"up_threshold_pct"`
	DownThresholdPct *float64 `mapstructure:"down_threshold_pct"`
}

// GuardrailOverride holds optional guardrail fields for one scope.
type GuardrailOverride struct {
	MinStockPct           *float64 `mapstructure:"min_stock_pct"`
	MaxStockPct           *float64 `mapstructure:"max_stock_pct"`
	MaxTradePctOfPosition *float64 `mapstructure:"max_trade_pct_of_position"`
	MaxOrdersPerDay       *int     `mapstructure:"max_orders_per_day"`
	MaxDailyNotional      *float64 `mapstructure:"max_daily_notional"`
}

// PolicyOverride holds optional order-policy fields for one scope.
type PolicyOverride struct {
	MinQty                 *float64               `mapstructure:"min_qty"`
	MinNotional            *float64               `mapstructure:"min_notional"`
	QtyStep                *float64               `mapstructure:"qty_step"`
	RebalanceRatio         *float64               `mapstructure:"rebalance_ratio"`
	SizingStrategy         *models.SizingStrategy `mapstructure:"order_sizing_strategy"`
	AllowAfterHours        *bool                  `mapstructure:"allow_after_hours"`
	CommissionRatePct      *float64               `mapstructure:"commission_rate_pct"`
	ActionBelowMin         *models.BelowMinAction `mapstructure:"action_below_min"`
	ResetAnchorOnFill      *bool                  `mapstructure:"reset_anchor_on_fill"`
	AdjustAnchorOnDividend *bool                  `mapstructure:"adjust_anchor_on_dividend"`
}

// ScopeOverride bundles the three override groups for one scope key.
type ScopeOverride struct {
	Trigger   TriggerOverride   `mapstructure:"trigger"`
	Guardrail GuardrailOverride `mapstructure:"guardrail"`
	Policy    PolicyOverride    `mapstructure:"policy"`
}

// TenantKey builds the override map key for a tenant scope.
func TenantKey(tenantID string) string { return fmt.Sprintf("tenant:%s", tenantID) }

// TenantAssetKey builds the override map key for a tenant+asset scope.
func TenantAssetKey(tenantID, symbol string) string {
	return fmt.Sprintf("tenant:%s:asset:%s", tenantID, symbol)
}

// PositionKey builds the override map key for a position scope.
func PositionKey(positionID string) string { return fmt.Sprintf("position:%s", positionID) }

// Resolver resolves the effective strategy config for a position from an
// ordered list of override layers: GLOBAL defaults, then TENANT,
// TENANT_ASSET and POSITION overrides, first non-nil field wins (narrowest
// last, so it wins).
type Resolver struct {
	defaults  StrategyDefaults
	overrides map[string]ScopeOverride
}

// NewResolver creates a resolver over the defaults and override map.
func NewResolver(defaults StrategyDefaults, overrides map[string]ScopeOverride) *Resolver {
	if overrides == nil {
		overrides = map[string]ScopeOverride{}
	}
	return &Resolver{defaults: defaults, overrides: overrides}
}

// Effective returns the resolved config for one position. Pure: the same
// inputs always resolve identically.
func (r *Resolver) Effective(tenantID, symbol, positionID string) models.EffectiveConfig {
	eff := models.EffectiveConfig{
		Trigger:   r.defaults.Trigger,
		Guardrail: r.defaults.Guardrail,
		Policy:    r.defaults.Policy,
	}
	for _, key := range []string{TenantKey(tenantID), TenantAssetKey(tenantID, symbol), PositionKey(positionID)} {
		if layer, ok := r.overrides[key]; ok {
			applyLayer(&eff, layer)
		}
	}
	return eff
}

func applyLayer(eff *models.EffectiveConfig, layer ScopeOverride) {
	setF(&eff.Trigger.UpThresholdPct, layer.Trigger.UpThresholdPct)
	setF(&eff.Trigger.DownThresholdPct, layer.Trigger.DownThresholdPct)

	setF(&eff.Guardrail.MinStockPct, layer.Guardrail.MinStockPct)
	setF(&eff.Guardrail.MaxStockPct, layer.Guardrail.MaxStockPct)
	setF(&eff.Guardrail.MaxTradePctOfPosition, layer.Guardrail.MaxTradePctOfPosition)
	setI(&eff.Guardrail.MaxOrdersPerDay, layer.Guardrail.MaxOrdersPerDay)
	setF(&eff.Guardrail.MaxDailyNotional, layer.Guardrail.MaxDailyNotional)

	setF(&eff.Policy.MinQty, layer.Policy.MinQty)
	setF(&eff.Policy.MinNotional, layer.Policy.MinNotional)
	setF(&eff.Policy.QtyStep, layer.Policy.QtyStep)
	setF(&eff.Policy.RebalanceRatio, layer.Policy.RebalanceRatio)
	if layer.Policy.SizingStrategy != nil {
		eff.Policy.SizingStrategy = *layer.Policy.SizingStrategy
	}
	setB(&eff.Policy.AllowAfterHours, layer.Policy.AllowAfterHours)
	setF(&eff.Policy.CommissionRatePct, layer.Policy.CommissionRatePct)
	if layer.Policy.ActionBelowMin != nil {
		eff.Policy.ActionBelowMin = *layer.Policy.ActionBelowMin
	}
	setB(&eff.Policy.ResetAnchorOnFill, layer.Policy.ResetAnchorOnFill)
	setB(&eff.Policy.AdjustAnchorOnDividend, layer.Policy.AdjustAnchorOnDividend)
}

func setF(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setI(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setB(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}
