// Package config provides configuration management for the rebalancing
// application, including the hierarchical strategy-config resolver.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"anchor-rebalancer/internal/models"
)

// Config holds all application configuration.
type Config struct {
	Engine    EngineConfig             `mapstructure:"engine"`
	Store     StoreConfig              `mapstructure:"store"`
	Metrics   MetricsConfig            `mapstructure:"metrics"`
	Defaults  StrategyDefaults         `mapstructure:"defaults"`
	Overrides map[string]ScopeOverride `mapstructure:"overrides"`
}

// EngineConfig holds live-loop configuration.
type EngineConfig struct {
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	QuoteMaxAge   time.Duration `mapstructure:"quote_max_age"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
}

// StoreConfig holds persistence configuration.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // "sqlite", "memory"
	Path   string `mapstructure:"path"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// StrategyDefaults holds the GLOBAL layer of strategy configuration.
type StrategyDefaults struct {
	Trigger   models.TriggerConfig     `mapstructure:"trigger"`
	Guardrail models.GuardrailConfig   `mapstructure:"guardrail"`
	Policy    models.OrderPolicyConfig `mapstructure:"policy"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/anchor-rebalancer"
	}
	return filepath.Join(home, ".config", "anchor-rebalancer")
}

// Default returns a runnable configuration with sane defaults.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			PollInterval:  30 * time.Second,
			QuoteMaxAge:   time.Minute,
			RetryAttempts: 3,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   filepath.Join(DefaultConfigDir(), "rebalancer.db"),
		},
		Metrics: MetricsConfig{Enabled: false, Addr: ":9090"},
		Defaults: StrategyDefaults{
			Trigger: models.TriggerConfig{UpThresholdPct: 5, DownThresholdPct: 5},
			Guardrail: models.GuardrailConfig{
				MinStockPct:           0.2,
				MaxStockPct:           0.8,
				MaxTradePctOfPosition: 0.25,
				MaxOrdersPerDay:       4,
			},
			Policy: models.OrderPolicyConfig{
				MinQty:            1,
				MinNotional:       100,
				QtyStep:           0.5,
				RebalanceRatio:    1,
				SizingStrategy:    models.SizingTargetMidpoint,
				CommissionRatePct: 0.01,
				ActionBelowMin:    models.BelowMinSkip,
				ResetAnchorOnFill: true,
			},
		},
	}
}

// Load loads configuration from the specified directory. If configDir is
// empty, the default config directory is used; a missing file yields the
// defaults.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.SetEnvPrefix("REBALANCER")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return cfg, nil
		}
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate checks invariants the engine depends on.
func (c *Config) Validate() error {
	g := c.Defaults.Guardrail
	if g.MinStockPct < 0 || g.MaxStockPct > 1 || g.MinStockPct >= g.MaxStockPct {
		return fmt.Errorf("guardrail defaults: require 0 <= min (%.2f) < max (%.2f) <= 1", g.MinStockPct, g.MaxStockPct)
	}
	t := c.Defaults.Trigger
	if t.UpThresholdPct <= 0 || t.DownThresholdPct <= 0 {
		return fmt.Errorf("trigger defaults: thresholds must be positive")
	}
	p := c.Defaults.Policy
	if p.RebalanceRatio <= 0 || p.RebalanceRatio > 1 {
		return fmt.Errorf("policy defaults: rebalance_ratio must be in (0, 1]")
	}
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("engine: poll_interval must be positive")
	}
	return nil
}
