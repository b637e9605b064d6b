// Package costmodel prices order fills. Every fill pays commission, half the
// bid-ask spread, and a square-root market impact term; the adjusted price is
// always at least as bad as the raw price for the trader.
package costmodel

import (
	"math"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/quantfoundry/backtest/internal/config"
	"github.com/quantfoundry/backtest/internal/logger"
	"github.com/quantfoundry/backtest/internal/types"
	"github.com/quantfoundry/backtest/pkg/errors"
)

// Model computes execution prices and commissions from configured rates and a
// symbol -> liquidity tier table. Unknown symbols fall back to the default
// tier with a warning; the run continues.
type Model struct {
	cfg    config.CostConfig
	tiers  map[string]config.LiquidityTier
	logger *logger.Logger
}

// New creates a cost model from a cost config and a symbol tier table.
func New(cfg config.CostConfig, tiers map[string]config.LiquidityTier, log *logger.Logger) *Model {
	if tiers == nil {
		tiers = map[string]config.LiquidityTier{}
	}

	return &Model{cfg: cfg, tiers: tiers, logger: log}
}

// NewFromRun builds the tier table out of the run config's symbol entries.
func NewFromRun(cfg config.RunConfig, log *logger.Logger) *Model {
	tiers := make(map[string]config.LiquidityTier, len(cfg.Risk.Symbols))
	for symbol, sc := range cfg.Risk.Symbols {
		if sc.Tier != "" {
			tiers[symbol] = sc.Tier
		}
	}

	return New(cfg.Costs, tiers, log)
}

// Tier resolves the liquidity tier for a symbol, falling back to the default
// tier when the symbol is unmapped.
func (m *Model) Tier(symbol string) config.LiquidityTier {
	if tier, ok := m.tiers[symbol]; ok {
		return tier
	}

	m.logger.Warn("symbol has no liquidity tier, using default",
		zap.String("symbol", symbol),
		zap.String("default_tier", string(m.cfg.DefaultTier)))

	return m.cfg.DefaultTier
}

// VolatilityMultiplier returns the slippage scale for the current regime.
// Warm-up bars without a volatility reading use the normal regime.
func (m *Model) VolatilityMultiplier(volatility optional.Option[float64]) float64 {
	vol, err := volatility.Take()
	if err != nil {
		return 1.0
	}

	if vol > m.cfg.HighVolatilityThreshold {
		return m.cfg.HighVolatilityMultiplier
	}

	return 1.0
}

// ExecutionPrice adjusts a raw fill price for half-spread and market impact.
// Buys (long entries and short exits) pay above the raw price, sells receive
// below it. orderQty and avgVolume share the same unit.
func (m *Model) ExecutionPrice(raw float64, side types.Side, isEntry bool, symbol string, orderQty, avgVolume, volMultiplier float64) (float64, error) {
	if raw <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidCostInput, "raw price %.4f must be positive", raw)
	}
	if orderQty <= 0 {
		return 0, errors.Newf(errors.ErrCodeInvalidCostInput, "order quantity %.4f must be positive", orderQty)
	}

	tier := m.Tier(symbol)

	halfSpread := raw * m.spreadRate(tier) * 0.5

	// Square-root impact: cost grows with the order's share of typical volume.
	participation := 1.0
	if avgVolume > 0 {
		participation = orderQty / avgVolume
	}
	slippage := raw * m.slippageRate(tier) * math.Sqrt(participation) * volMultiplier

	cost := halfSpread + slippage

	if isBuy(side, isEntry) {
		return raw + cost, nil
	}

	return raw - cost, nil
}

// Commission returns the commission for one fill at the raw price.
func (m *Model) Commission(raw, qty float64) float64 {
	if raw <= 0 || qty <= 0 {
		return 0
	}

	return raw * qty * m.cfg.CommissionRate
}

// isBuy reports whether the fill takes liquidity from the ask side. Long
// entries and short exits buy; long exits and short entries sell.
func isBuy(side types.Side, isEntry bool) bool {
	return (side == types.SideLong) == isEntry
}

func (m *Model) spreadRate(tier config.LiquidityTier) float64 {
	if rate, ok := m.cfg.SpreadRates[tier]; ok {
		return rate
	}

	return m.cfg.SpreadRates[m.cfg.DefaultTier]
}

func (m *Model) slippageRate(tier config.LiquidityTier) float64 {
	if rate, ok := m.cfg.BaseSlippageRates[tier]; ok {
		return rate
	}

	return m.cfg.BaseSlippageRates[m.cfg.DefaultTier]
}
