package config

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/quantfoundry/backtest/pkg/errors"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) TestDefaultConfigIsValid() {
	cfg := DefaultConfig()
	suite.NoError(cfg.Validate())
	suite.Greater(cfg.Risk.Default.ProfitMultiplier, cfg.Risk.Default.StopMultiplier)
	suite.Equal(TierMedium, cfg.Costs.DefaultTier)
}

func (suite *ConfigTestSuite) TestParseYAMLOverridesDefaults() {
	data := []byte(`
initial_capital: 250000
min_bars: 150
risk:
  symbols:
    BTC-USD:
      stop_multiplier: 2.0
      profit_multiplier: 3.5
      min_stop_pct: 0.02
      max_stop_pct: 0.15
      trailing_pct: 0.04
      size_adjustment: 0.5
      max_holding_bars: 10
      min_holding_bars: 2
      min_progress_pct: 0.02
      tier: low
      first_trading_date: "2014-09-17"
`)

	cfg, err := ParseYAML(data)
	suite.NoError(err)
	suite.Equal(250000.0, cfg.InitialCapital)
	suite.Equal(150, cfg.MinBars)

	// Untouched sections keep their defaults
	suite.Equal(0.10, cfg.Sizing.BaseSizePct)

	sc, ok := cfg.SymbolConfig("BTC-USD")
	suite.True(ok)
	suite.Equal(TierLow, sc.Tier)
	suite.Equal(2.0, sc.StopMultiplier)
}

func (suite *ConfigTestSuite) TestSymbolConfigFallsBackToDefault() {
	cfg := DefaultConfig()
	sc, ok := cfg.SymbolConfig("UNMAPPED")
	suite.False(ok)
	suite.Equal(cfg.Risk.Default, sc)
}

func (suite *ConfigTestSuite) TestValidateRejectsInvertedMultipliers() {
	cfg := DefaultConfig()
	cfg.Risk.Default.ProfitMultiplier = 1.0
	cfg.Risk.Default.StopMultiplier = 2.0

	err := cfg.Validate()
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidMultiplier))
}

func (suite *ConfigTestSuite) TestValidateRejectsInvertedSizeBounds() {
	cfg := DefaultConfig()
	cfg.Sizing.MinSizePct = 0.30
	cfg.Sizing.MaxSizePct = 0.20

	err := cfg.Validate()
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestParseYAMLRejectsNonPositiveCapital() {
	_, err := ParseYAML([]byte("initial_capital: -5"))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestFirstListedRegistry() {
	cfg := DefaultConfig()
	cfg.Risk.Symbols["NEWCO"] = SymbolConfig{
		StopMultiplier: 1.5, ProfitMultiplier: 2.5,
		MinStopPct: 0.01, MaxStopPct: 0.08, TrailingPct: 0.02,
		SizeAdjustment: 1.0, MaxHoldingBars: 20, MinProgressPct: 0.01,
		Tier: TierMedium, FirstTradingDate: "2022-06-01",
	}
	cfg.Risk.Symbols["OLDCO"] = SymbolConfig{
		StopMultiplier: 1.5, ProfitMultiplier: 2.5,
		MinStopPct: 0.01, MaxStopPct: 0.08, TrailingPct: 0.02,
		SizeAdjustment: 1.0, MaxHoldingBars: 20, MinProgressPct: 0.01,
		Tier: TierMedium,
	}

	registry, err := cfg.FirstListedRegistry()
	suite.NoError(err)
	suite.Len(registry, 1)
	suite.Equal(2022, registry["NEWCO"].Year())
}

func (suite *ConfigTestSuite) TestGenerateSchemaJSON() {
	schema, err := DefaultConfig().GenerateSchemaJSON()
	suite.NoError(err)
	suite.Contains(schema, "backtest-run-config")
	suite.Contains(schema, "initial_capital")
}
