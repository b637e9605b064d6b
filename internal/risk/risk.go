// Package risk decides how much to commit to a signal and when to get out.
// All decisions are pure functions of the position, the current bar, and the
// configured symbol parameters; symbol-specific behavior lives in the config
// table, not in branching code.
package risk

import (
	"math"

	"github.com/moznion/go-optional"
	"go.uber.org/zap"

	"github.com/quantfoundry/backtest/internal/config"
	"github.com/quantfoundry/backtest/internal/indicator"
	"github.com/quantfoundry/backtest/internal/logger"
	"github.com/quantfoundry/backtest/internal/types"
	"github.com/quantfoundry/backtest/pkg/errors"
)

// Controller applies stop placement, trailing, sizing, admission filters and
// exit rules.
type Controller struct {
	cfg    config.RunConfig
	logger *logger.Logger
}

// New creates a risk controller for one run.
func New(cfg config.RunConfig, log *logger.Logger) *Controller {
	return &Controller{cfg: cfg, logger: log}
}

// SymbolConfig resolves the parameter set for a symbol, warning once per call
// when the default entry is used.
func (c *Controller) SymbolConfig(symbol string) config.SymbolConfig {
	sc, ok := c.cfg.SymbolConfig(symbol)
	if !ok {
		c.logger.Warn("no symbol config, using default risk parameters",
			zap.String("symbol", symbol))
	}

	return sc
}

// Stops is a stop-loss / take-profit price pair.
type Stops struct {
	StopLoss   float64
	TakeProfit float64
}

// CalculateStops places the initial stop and target around the entry price.
// Distances scale with ATR%, clamped to the configured band so a volatility
// spike cannot produce unusable stops. During ATR warm-up the fixed fallback
// percentages apply.
func (c *Controller) CalculateStops(entry float64, side types.Side, atrPct optional.Option[float64], sc config.SymbolConfig) Stops {
	stopPct := c.cfg.Risk.FallbackStopPct
	targetPct := c.cfg.Risk.FallbackTargetPct

	if atr, err := atrPct.Take(); err == nil {
		stopPct = clamp(atr*sc.StopMultiplier, sc.MinStopPct, sc.MaxStopPct)
		targetPct = clamp(atr*sc.ProfitMultiplier, sc.MinStopPct, sc.MaxStopPct)
	}

	if side == types.SideShort {
		return Stops{
			StopLoss:   entry * (1 + stopPct),
			TakeProfit: entry * (1 - targetPct),
		}
	}

	return Stops{
		StopLoss:   entry * (1 - stopPct),
		TakeProfit: entry * (1 + targetPct),
	}
}

// UpdateTrailingStop advances the water marks with the current bar and
// tightens the stop behind the best price seen since entry. The stop is
// monotonic: it never moves away from the position.
func (c *Controller) UpdateTrailingStop(pos *types.Position, bar types.Bar, sc config.SymbolConfig) {
	pos.HighWaterMark = math.Max(pos.HighWaterMark, bar.High)
	pos.LowWaterMark = math.Min(pos.LowWaterMark, bar.Low)

	if pos.Side == types.SideShort {
		candidate := pos.LowWaterMark * (1 + sc.TrailingPct)
		if candidate < pos.StopLoss {
			pos.StopLoss = candidate
		}

		return
	}

	candidate := pos.HighWaterMark * (1 - sc.TrailingPct)
	if candidate > pos.StopLoss {
		pos.StopLoss = candidate
	}
}

// confidenceFloor is the sizing factor assigned to the weakest admissible
// signal. Confidence maps linearly from the floor at MinConfidence up to 1.0
// at full confidence.
const confidenceFloor = 0.5

// PositionSize converts a signal into a quantity. Size scales with confidence
// across the admissible band and inversely with realized volatility above the
// high-volatility threshold, then clamps to the configured equity fraction
// band.
func (c *Controller) PositionSize(confidence float64, volatility optional.Option[float64], equity, entry float64, sc config.SymbolConfig) (float64, error) {
	if equity <= 0 {
		return 0, errors.Newf(errors.ErrCodeInsufficientCapital, "equity %.2f is not positive", equity)
	}
	if entry <= 0 {
		return 0, errors.Newf(errors.ErrCodeNonPositiveQuantity, "entry price %.4f is not positive", entry)
	}

	sizing := c.cfg.Sizing

	confidenceFactor := c.confidenceScale(confidence)

	volatilityFactor := 1.0
	if vol, err := volatility.Take(); err == nil && vol > c.cfg.Costs.HighVolatilityThreshold {
		volatilityFactor = c.cfg.Costs.HighVolatilityThreshold / vol
	}

	sizePct := sizing.BaseSizePct * confidenceFactor * volatilityFactor * sc.SizeAdjustment
	if confidence >= sizing.HighConfidenceThreshold {
		sizePct *= sizing.HighConfidenceBoost
	}

	sizePct = clamp(sizePct, sizing.MinSizePct, sizing.MaxSizePct)

	qty := sizePct * equity / entry
	if qty <= 0 {
		return 0, errors.Newf(errors.ErrCodeNonPositiveQuantity, "computed quantity %.6f is not positive", qty)
	}

	if qty*entry > equity {
		return 0, errors.Newf(errors.ErrCodeInsufficientCapital,
			"order cost %.2f exceeds equity %.2f", qty*entry, equity)
	}

	return qty, nil
}

// confidenceScale maps [MinConfidence, 100] onto [confidenceFloor, 1].
// Confidence below the minimum (possible when gates are disabled) sizes at
// the floor rather than scaling toward zero.
func (c *Controller) confidenceScale(confidence float64) float64 {
	minConf := c.cfg.Sizing.MinConfidence
	if confidence >= 100 || minConf >= 100 {
		return 1
	}

	if confidence <= minConf {
		return confidenceFloor
	}

	return confidenceFloor + (confidence-minConf)/(100-minConf)*(1-confidenceFloor)
}

// AdmitSignal runs the independent admission gates. Every enabled gate must
// pass; the returned reason names the first gate that rejected. Indicators
// still warming up fail their gate.
func (c *Controller) AdmitSignal(sig types.Signal, snap indicator.Snapshot) (bool, string) {
	if sig.Confidence < c.cfg.Sizing.MinConfidence {
		return false, "confidence below minimum"
	}

	filters := c.cfg.Filters

	if filters.TrendEnabled {
		trend, err := snap.TrendStrength.Take()
		if err != nil || trend < filters.TrendThreshold {
			return false, "trend strength below threshold"
		}
	}

	if filters.VolumeEnabled {
		ratio, err := snap.VolumeRatio.Take()
		if err != nil || ratio < filters.VolumeThreshold {
			return false, "volume ratio below threshold"
		}
	}

	return true, ""
}

// ExitDecision names the exit and the raw price it triggers at, before cost
// adjustment.
type ExitDecision struct {
	Reason types.ExitReason
	Price  float64
}

// CheckExit evaluates the exit rules for an open position against the current
// bar. Stop-loss fires regardless of the minimum holding period; take-profit
// and the time exit wait it out. When the bar gaps through a level the fill
// happens at the open.
func (c *Controller) CheckExit(pos *types.Position, bar types.Bar, barIdx int, sc config.SymbolConfig) (ExitDecision, bool) {
	holding := pos.HoldingBars(barIdx)

	if stopHit(pos, bar) {
		return ExitDecision{Reason: types.ExitReasonStopLoss, Price: stopFillPrice(pos, bar)}, true
	}

	if holding < sc.MinHoldingBars {
		return ExitDecision{}, false
	}

	if targetHit(pos, bar) {
		return ExitDecision{Reason: types.ExitReasonTakeProfit, Price: targetFillPrice(pos, bar)}, true
	}

	if holding >= sc.MaxHoldingBars && pos.ProgressPct(bar.Close) < sc.MinProgressPct {
		return ExitDecision{Reason: types.ExitReasonTimeExit, Price: bar.Close}, true
	}

	return ExitDecision{}, false
}

func stopHit(pos *types.Position, bar types.Bar) bool {
	if pos.Side == types.SideShort {
		return bar.High >= pos.StopLoss
	}

	return bar.Low <= pos.StopLoss
}

func stopFillPrice(pos *types.Position, bar types.Bar) float64 {
	if pos.Side == types.SideShort {
		return math.Max(bar.Open, pos.StopLoss)
	}

	return math.Min(bar.Open, pos.StopLoss)
}

func targetHit(pos *types.Position, bar types.Bar) bool {
	if pos.Side == types.SideShort {
		return bar.Low <= pos.TakeProfit
	}

	return bar.High >= pos.TakeProfit
}

func targetFillPrice(pos *types.Position, bar types.Bar) float64 {
	if pos.Side == types.SideShort {
		return math.Min(bar.Open, pos.TakeProfit)
	}

	return math.Max(bar.Open, pos.TakeProfit)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}

	return v
}
