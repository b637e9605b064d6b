// Package config defines the full, immutable configuration surface for a
// backtest run: capital and sizing bounds, per-symbol risk overrides, cost
// model rates, filter thresholds, and validation-layer parameters. The config
// is parsed and validated once at run start and never mutated mid-run.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v2"

	"github.com/quantfoundry/backtest/internal/indicator"
	"github.com/quantfoundry/backtest/pkg/errors"
)

// LiquidityTier classifies how cheaply a symbol trades. Broad index ETFs are
// high liquidity, large caps medium, thin or volatile instruments low.
type LiquidityTier string

const (
	TierHigh   LiquidityTier = "high"
	TierMedium LiquidityTier = "medium"
	TierLow    LiquidityTier = "low"
)

// AllTiers lists valid tiers, used for schema generation.
var AllTiers = []any{TierHigh, TierMedium, TierLow}

// SymbolConfig carries per-symbol risk parameters. Symbol-specific behavior
// is data in this table, not branching code: unknown symbols fall back to
// the default entry.
type SymbolConfig struct {
	// StopMultiplier scales ATR% into the stop distance.
	StopMultiplier float64 `yaml:"stop_multiplier" validate:"gt=0"`
	// ProfitMultiplier scales ATR% into the target distance. Must exceed
	// StopMultiplier so risk:reward stays above one.
	ProfitMultiplier float64 `yaml:"profit_multiplier" validate:"gt=0"`
	// MinStopPct and MaxStopPct clamp the final stop/target distances so an
	// ATR spike cannot produce unusable stops.
	MinStopPct float64 `yaml:"min_stop_pct" validate:"gte=0"`
	MaxStopPct float64 `yaml:"max_stop_pct" validate:"gt=0"`
	// TrailingPct is the distance the trailing stop follows the best price.
	TrailingPct float64 `yaml:"trailing_pct" validate:"gt=0,lt=1"`
	// SizeAdjustment scales position size for this symbol class.
	SizeAdjustment float64 `yaml:"size_adjustment" validate:"gt=0"`
	// MaxHoldingBars triggers the time exit when progress is insufficient.
	MaxHoldingBars int `yaml:"max_holding_bars" validate:"gt=0"`
	// MinHoldingBars delays take-profit and discretionary exits. Stop-loss
	// exits ignore it: a crash through the stop exits immediately.
	MinHoldingBars int `yaml:"min_holding_bars" validate:"gte=0"`
	// MinProgressPct is the favorable move required to escape the time exit.
	MinProgressPct float64 `yaml:"min_progress_pct" validate:"gte=0"`
	// Tier is the liquidity class consumed by the cost model.
	Tier LiquidityTier `yaml:"tier" validate:"omitempty,oneof=high medium low"`
	// FirstTradingDate feeds the survivorship-bias check, formatted
	// YYYY-MM-DD. Empty disables the check for this symbol.
	FirstTradingDate string `yaml:"first_trading_date" validate:"omitempty,datetime=2006-01-02"`
}

// CostConfig parameterizes the transaction cost model. Rates are fractions
// of the raw price.
type CostConfig struct {
	CommissionRate float64 `yaml:"commission_rate" validate:"gte=0"`
	// SpreadRates is the full bid-ask spread per tier; half is paid per fill.
	SpreadRates map[LiquidityTier]float64 `yaml:"spread_rates" validate:"required"`
	// BaseSlippageRates scale the square-root market impact term per tier.
	BaseSlippageRates map[LiquidityTier]float64 `yaml:"base_slippage_rates" validate:"required"`
	// DefaultTier is the documented fallback for unknown symbols.
	DefaultTier LiquidityTier `yaml:"default_tier" validate:"oneof=high medium low"`
	// HighVolatilityThreshold is annualized volatility above which slippage
	// is scaled by HighVolatilityMultiplier.
	HighVolatilityThreshold  float64 `yaml:"high_volatility_threshold" validate:"gte=0"`
	HighVolatilityMultiplier float64 `yaml:"high_volatility_multiplier" validate:"gte=1"`
}

// SizingConfig bounds position sizing.
type SizingConfig struct {
	// BaseSizePct is the fraction of equity a full-strength signal commits.
	BaseSizePct float64 `yaml:"base_size_pct" validate:"gt=0,lte=1"`
	MinSizePct  float64 `yaml:"min_size_pct" validate:"gte=0,lte=1"`
	MaxSizePct  float64 `yaml:"max_size_pct" validate:"gt=0,lte=1"`
	// MinConfidence is the admission floor; signals below it are rejected.
	MinConfidence float64 `yaml:"min_confidence" validate:"gte=0,lte=100"`
	// HighConfidenceThreshold and HighConfidenceBoost add an extra size
	// bump for very strong signals.
	HighConfidenceThreshold float64 `yaml:"high_confidence_threshold" validate:"gte=0,lte=100"`
	HighConfidenceBoost     float64 `yaml:"high_confidence_boost" validate:"gte=1"`
}

// FilterConfig holds the independent signal admission gates. A signal is
// admitted only if every enabled gate passes.
type FilterConfig struct {
	TrendEnabled   bool    `yaml:"trend_enabled"`
	TrendThreshold float64 `yaml:"trend_threshold" validate:"gte=0"`
	VolumeEnabled  bool    `yaml:"volume_enabled"`
	VolumeThreshold float64 `yaml:"volume_threshold" validate:"gte=0"`
}

// RiskConfig couples the default symbol entry with per-symbol overrides and
// the fixed-percentage fallback used while ATR is still warming up.
type RiskConfig struct {
	Default           SymbolConfig            `yaml:"default"`
	Symbols           map[string]SymbolConfig `yaml:"symbols"`
	FallbackStopPct   float64                 `yaml:"fallback_stop_pct" validate:"gt=0"`
	FallbackTargetPct float64                 `yaml:"fallback_target_pct" validate:"gt=0"`
}

// ValidationConfig parameterizes the validation layer.
type ValidationConfig struct {
	CPCVBlocks     int `yaml:"cpcv_blocks" validate:"gte=0"`
	CPCVTestBlocks int `yaml:"cpcv_test_blocks" validate:"gte=0"`
	PurgeBars      int `yaml:"purge_bars" validate:"gte=0"`
	EmbargoBars    int `yaml:"embargo_bars" validate:"gte=0"`
	// Permutations is the Monte Carlo reordering count.
	Permutations int `yaml:"permutations" validate:"gte=0"`
	// Seed makes every randomized validation run reproducible.
	Seed int64 `yaml:"seed"`
	// MinSampleSize gates significance testing; below it no p-value is
	// reported as meaningful.
	MinSampleSize int `yaml:"min_sample_size" validate:"gte=2"`
}

// RunConfig is the complete configuration for one backtest run.
type RunConfig struct {
	InitialCapital float64          `yaml:"initial_capital" json:"initial_capital" jsonschema:"title=Initial Capital,description=Starting capital in USD,minimum=0" validate:"gt=0"`
	MinBars        int              `yaml:"min_bars" json:"min_bars" jsonschema:"title=Minimum Bars,description=Minimum series length accepted for a run" validate:"gt=0"`
	BatchSize      int              `yaml:"batch_size" json:"batch_size" jsonschema:"title=Batch Size,description=Signal computation batch size for the parallel path" validate:"gt=0"`
	Indicators     indicator.Config `yaml:"indicators" json:"indicators"`
	Risk           RiskConfig       `yaml:"risk" json:"risk"`
	Sizing         SizingConfig     `yaml:"sizing" json:"sizing"`
	Filters        FilterConfig     `yaml:"filters" json:"filters"`
	Costs          CostConfig       `yaml:"costs" json:"costs"`
	Validation     ValidationConfig `yaml:"validation" json:"validation"`
}

// DefaultConfig returns the documented baseline parameters.
func DefaultConfig() RunConfig {
	return RunConfig{
		InitialCapital: 100_000,
		MinBars:        100,
		BatchSize:      32,
		Indicators:     indicator.DefaultConfig(),
		Risk: RiskConfig{
			Default: SymbolConfig{
				StopMultiplier:   1.5,
				ProfitMultiplier: 2.5,
				MinStopPct:       0.01,
				MaxStopPct:       0.08,
				TrailingPct:      0.02,
				SizeAdjustment:   1.0,
				MaxHoldingBars:   20,
				MinHoldingBars:   0,
				MinProgressPct:   0.01,
				Tier:             TierMedium,
			},
			Symbols:           map[string]SymbolConfig{},
			FallbackStopPct:   0.03,
			FallbackTargetPct: 0.06,
		},
		Sizing: SizingConfig{
			BaseSizePct:             0.10,
			MinSizePct:              0.02,
			MaxSizePct:              0.25,
			MinConfidence:           55,
			HighConfidenceThreshold: 85,
			HighConfidenceBoost:     1.10,
		},
		Filters: FilterConfig{
			TrendEnabled:    true,
			TrendThreshold:  20,
			VolumeEnabled:   true,
			VolumeThreshold: 0.8,
		},
		Costs: CostConfig{
			CommissionRate: 0.0005,
			SpreadRates: map[LiquidityTier]float64{
				TierHigh:   0.0002,
				TierMedium: 0.0005,
				TierLow:    0.0015,
			},
			BaseSlippageRates: map[LiquidityTier]float64{
				TierHigh:   0.0001,
				TierMedium: 0.0003,
				TierLow:    0.0010,
			},
			DefaultTier:              TierMedium,
			HighVolatilityThreshold:  0.30,
			HighVolatilityMultiplier: 2.0,
		},
		Validation: ValidationConfig{
			CPCVBlocks:     6,
			CPCVTestBlocks: 2,
			PurgeBars:      5,
			EmbargoBars:    5,
			Permutations:   1000,
			Seed:           42,
			MinSampleSize:  30,
		},
	}
}

// ParseYAML unmarshals and validates a run config. Missing sections inherit
// the defaults; validation failures are config errors.
func ParseYAML(data []byte) (RunConfig, error) {
	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse run config", err)
	}

	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}

	return cfg, nil
}

// Validate checks the config with go-playground/validator plus the
// cross-field rules the tag language cannot express.
func (c RunConfig) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "run config failed validation", err)
	}

	if err := validateSymbolConfig(c.Risk.Default); err != nil {
		return err
	}

	for symbol, sc := range c.Risk.Symbols {
		if err := validateSymbolConfig(sc); err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "symbol config %s invalid", symbol)
		}
	}

	if c.Sizing.MinSizePct > c.Sizing.MaxSizePct {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"min size pct %.4f exceeds max size pct %.4f", c.Sizing.MinSizePct, c.Sizing.MaxSizePct)
	}

	return nil
}

func validateSymbolConfig(sc SymbolConfig) error {
	if sc.ProfitMultiplier <= sc.StopMultiplier {
		return errors.Newf(errors.ErrCodeInvalidMultiplier,
			"profit multiplier %.2f must exceed stop multiplier %.2f", sc.ProfitMultiplier, sc.StopMultiplier)
	}

	if sc.MinStopPct > sc.MaxStopPct {
		return errors.Newf(errors.ErrCodeInvalidConfiguration,
			"min stop pct %.4f exceeds max stop pct %.4f", sc.MinStopPct, sc.MaxStopPct)
	}

	return nil
}

// SymbolConfig resolves the config for a symbol. The second return reports
// whether a dedicated entry existed; callers log the fallback as a warning.
func (c RunConfig) SymbolConfig(symbol string) (SymbolConfig, bool) {
	if sc, ok := c.Risk.Symbols[symbol]; ok {
		return sc, true
	}

	return c.Risk.Default, false
}

// FirstListedRegistry extracts the symbol -> first trading date table the
// bias guard consumes. Dates are validated during config validation, so a
// parse failure here is a config error.
func (c RunConfig) FirstListedRegistry() (map[string]time.Time, error) {
	registry := make(map[string]time.Time, len(c.Risk.Symbols))

	for symbol, sc := range c.Risk.Symbols {
		if sc.FirstTradingDate == "" {
			continue
		}

		date, err := time.Parse("2006-01-02", sc.FirstTradingDate)
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err,
				"invalid first_trading_date for %s", symbol)
		}

		registry[symbol] = date
	}

	return registry, nil
}
