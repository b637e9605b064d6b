package risk

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/quantfoundry/backtest/internal/config"
	"github.com/quantfoundry/backtest/internal/indicator"
	"github.com/quantfoundry/backtest/internal/logger"
	"github.com/quantfoundry/backtest/internal/types"
	"github.com/quantfoundry/backtest/pkg/errors"
)

type RiskTestSuite struct {
	suite.Suite
	ctrl *Controller
	sc   config.SymbolConfig
}

func TestRiskSuite(t *testing.T) {
	suite.Run(t, new(RiskTestSuite))
}

func (suite *RiskTestSuite) SetupTest() {
	cfg := config.DefaultConfig()
	suite.ctrl = New(cfg, logger.NewNopLogger())
	suite.sc = cfg.Risk.Default
}

func (suite *RiskTestSuite) TestCalculateStopsLong() {
	// ATR% 2: stop = 3%, target = 5%, both inside the clamp band.
	stops := suite.ctrl.CalculateStops(100, types.SideLong, optional.Some(0.02), suite.sc)
	suite.InDelta(97.0, stops.StopLoss, 1e-9)
	suite.InDelta(105.0, stops.TakeProfit, 1e-9)
}

func (suite *RiskTestSuite) TestCalculateStopsShortMirrored() {
	stops := suite.ctrl.CalculateStops(100, types.SideShort, optional.Some(0.02), suite.sc)
	suite.InDelta(103.0, stops.StopLoss, 1e-9)
	suite.InDelta(95.0, stops.TakeProfit, 1e-9)
}

func (suite *RiskTestSuite) TestCalculateStopsClampsATRSpike() {
	// ATR% 10 would put the stop 15% away; the band caps it at 8%.
	stops := suite.ctrl.CalculateStops(100, types.SideLong, optional.Some(0.10), suite.sc)
	suite.InDelta(92.0, stops.StopLoss, 1e-9)
	suite.InDelta(108.0, stops.TakeProfit, 1e-9)
}

func (suite *RiskTestSuite) TestCalculateStopsClampsTinyATR() {
	stops := suite.ctrl.CalculateStops(100, types.SideLong, optional.Some(0.001), suite.sc)
	suite.InDelta(99.0, stops.StopLoss, 1e-9)
}

func (suite *RiskTestSuite) TestCalculateStopsFallbackDuringWarmup() {
	stops := suite.ctrl.CalculateStops(100, types.SideLong, optional.None[float64](), suite.sc)
	suite.InDelta(97.0, stops.StopLoss, 1e-9)
	suite.InDelta(106.0, stops.TakeProfit, 1e-9)
}

func (suite *RiskTestSuite) TestTrailingStopTightensLong() {
	pos := &types.Position{
		Side: types.SideLong, EntryPrice: 100, StopLoss: 97,
		HighWaterMark: 100, LowWaterMark: 100,
	}

	suite.ctrl.UpdateTrailingStop(pos, bar(110, 112, 108, 111), suite.sc)
	suite.InDelta(112*0.98, pos.StopLoss, 1e-9)
	suite.InDelta(112.0, pos.HighWaterMark, 1e-9)
}

func (suite *RiskTestSuite) TestTrailingStopNeverLoosens() {
	pos := &types.Position{
		Side: types.SideLong, EntryPrice: 100, StopLoss: 97,
		HighWaterMark: 120, LowWaterMark: 100,
	}
	pos.StopLoss = 120 * 0.98

	// Price falls back; the stop must hold its level.
	suite.ctrl.UpdateTrailingStop(pos, bar(105, 106, 104, 105), suite.sc)
	suite.InDelta(120*0.98, pos.StopLoss, 1e-9)
}

func (suite *RiskTestSuite) TestTrailingStopShort() {
	pos := &types.Position{
		Side: types.SideShort, EntryPrice: 100, StopLoss: 103,
		HighWaterMark: 100, LowWaterMark: 100,
	}

	suite.ctrl.UpdateTrailingStop(pos, bar(92, 93, 90, 91), suite.sc)
	suite.InDelta(90*1.02, pos.StopLoss, 1e-9)

	// Bounce: short stop must not move back up.
	suite.ctrl.UpdateTrailingStop(pos, bar(95, 96, 94, 95), suite.sc)
	suite.InDelta(90*1.02, pos.StopLoss, 1e-9)
}

func (suite *RiskTestSuite) TestPositionSizeScalesWithConfidence() {
	weak, err := suite.ctrl.PositionSize(60, optional.None[float64](), 100_000, 100, suite.sc)
	suite.NoError(err)

	strong, err := suite.ctrl.PositionSize(80, optional.None[float64](), 100_000, 100, suite.sc)
	suite.NoError(err)

	suite.Greater(strong, weak)
}

func (suite *RiskTestSuite) TestPositionSizeHighConfidenceBoost() {
	// 90 sits above the boost threshold of 85.
	boosted, err := suite.ctrl.PositionSize(90, optional.None[float64](), 100_000, 100, suite.sc)
	suite.NoError(err)

	// base * confidence factor * boost * equity / price
	factor := 0.5 + (90.0-55.0)/(100.0-55.0)*0.5
	suite.InDelta(0.10*factor*1.10*100_000/100, boosted, 1e-9)
}

func (suite *RiskTestSuite) TestPositionSizeConfidenceBandEndpoints() {
	// The weakest admissible signal sizes at the floor factor.
	atMin, err := suite.ctrl.PositionSize(55, optional.None[float64](), 100_000, 100, suite.sc)
	suite.NoError(err)
	suite.InDelta(0.10*0.5*100_000/100, atMin, 1e-9)

	// Full confidence reaches the full factor, plus the boost.
	full, err := suite.ctrl.PositionSize(100, optional.None[float64](), 100_000, 100, suite.sc)
	suite.NoError(err)
	suite.InDelta(0.10*1.0*1.10*100_000/100, full, 1e-9)
}

func (suite *RiskTestSuite) TestPositionSizeShrinksInHighVolatility() {
	calm, err := suite.ctrl.PositionSize(70, optional.Some(0.15), 100_000, 100, suite.sc)
	suite.NoError(err)

	stressed, err := suite.ctrl.PositionSize(70, optional.Some(0.60), 100_000, 100, suite.sc)
	suite.NoError(err)

	suite.Less(stressed, calm)
}

func (suite *RiskTestSuite) TestPositionSizeClampedToBand() {
	// Floor confidence in stressed volatility still produces at least the
	// minimum size: 0.10 * 0.5 * (0.30/0.90) < 0.02.
	qty, err := suite.ctrl.PositionSize(1, optional.Some(0.90), 100_000, 100, suite.sc)
	suite.NoError(err)
	suite.InDelta(0.02*100_000/100, qty, 1e-9)
}

func (suite *RiskTestSuite) TestPositionSizeRejectsBadInputs() {
	_, err := suite.ctrl.PositionSize(70, optional.None[float64](), 0, 100, suite.sc)
	suite.True(errors.HasCode(err, errors.ErrCodeInsufficientCapital))

	_, err = suite.ctrl.PositionSize(70, optional.None[float64](), 100_000, 0, suite.sc)
	suite.True(errors.HasCode(err, errors.ErrCodeNonPositiveQuantity))
}

func (suite *RiskTestSuite) TestAdmitSignalGates() {
	snap := indicator.Snapshot{
		TrendStrength: optional.Some(30.0),
		VolumeRatio:   optional.Some(1.2),
	}

	ok, _ := suite.ctrl.AdmitSignal(signal(70), snap)
	suite.True(ok)

	ok, reason := suite.ctrl.AdmitSignal(signal(40), snap)
	suite.False(ok)
	suite.Contains(reason, "confidence")

	weakTrend := snap
	weakTrend.TrendStrength = optional.Some(10.0)
	ok, reason = suite.ctrl.AdmitSignal(signal(70), weakTrend)
	suite.False(ok)
	suite.Contains(reason, "trend")

	thinVolume := snap
	thinVolume.VolumeRatio = optional.Some(0.5)
	ok, reason = suite.ctrl.AdmitSignal(signal(70), thinVolume)
	suite.False(ok)
	suite.Contains(reason, "volume")
}

func (suite *RiskTestSuite) TestAdmitSignalWarmupFailsGates() {
	ok, _ := suite.ctrl.AdmitSignal(signal(70), indicator.Snapshot{})
	suite.False(ok)
}

func (suite *RiskTestSuite) TestAdmitSignalDisabledGatesPass() {
	cfg := config.DefaultConfig()
	cfg.Filters.TrendEnabled = false
	cfg.Filters.VolumeEnabled = false
	ctrl := New(cfg, logger.NewNopLogger())

	ok, _ := ctrl.AdmitSignal(signal(70), indicator.Snapshot{})
	suite.True(ok)
}

func (suite *RiskTestSuite) TestCheckExitStopLoss() {
	pos := position(types.SideLong, 100, 97, 105, 0)

	decision, hit := suite.ctrl.CheckExit(pos, bar(99, 100, 96, 98), 3, suite.sc)
	suite.True(hit)
	suite.Equal(types.ExitReasonStopLoss, decision.Reason)
	suite.InDelta(97.0, decision.Price, 1e-9)
}

func (suite *RiskTestSuite) TestCheckExitStopGapFillsAtOpen() {
	pos := position(types.SideLong, 100, 97, 105, 0)

	decision, hit := suite.ctrl.CheckExit(pos, bar(92, 94, 91, 93), 3, suite.sc)
	suite.True(hit)
	suite.Equal(types.ExitReasonStopLoss, decision.Reason)
	suite.InDelta(92.0, decision.Price, 1e-9)
}

func (suite *RiskTestSuite) TestCheckExitStopBypassesMinHolding() {
	sc := suite.sc
	sc.MinHoldingBars = 5

	pos := position(types.SideLong, 100, 97, 105, 0)

	decision, hit := suite.ctrl.CheckExit(pos, bar(99, 100, 96, 98), 2, sc)
	suite.True(hit)
	suite.Equal(types.ExitReasonStopLoss, decision.Reason)
}

func (suite *RiskTestSuite) TestCheckExitTakeProfitHonorsMinHolding() {
	sc := suite.sc
	sc.MinHoldingBars = 5

	pos := position(types.SideLong, 100, 97, 105, 0)

	// Target is touched at bar 2 but the position must be held 5 bars.
	_, hit := suite.ctrl.CheckExit(pos, bar(104, 106, 103, 105), 2, sc)
	suite.False(hit)

	decision, hit := suite.ctrl.CheckExit(pos, bar(104, 106, 103, 105), 5, sc)
	suite.True(hit)
	suite.Equal(types.ExitReasonTakeProfit, decision.Reason)
	suite.InDelta(105.0, decision.Price, 1e-9)
}

func (suite *RiskTestSuite) TestCheckExitStopBeforeTargetOnWideBar() {
	pos := position(types.SideLong, 100, 97, 105, 0)

	decision, hit := suite.ctrl.CheckExit(pos, bar(100, 106, 96, 101), 3, suite.sc)
	suite.True(hit)
	suite.Equal(types.ExitReasonStopLoss, decision.Reason)
}

func (suite *RiskTestSuite) TestCheckExitTimeExit() {
	pos := position(types.SideLong, 100, 90, 120, 0)

	// Held past max holding with negligible progress.
	decision, hit := suite.ctrl.CheckExit(pos, bar(100, 101, 99, 100.2), 20, suite.sc)
	suite.True(hit)
	suite.Equal(types.ExitReasonTimeExit, decision.Reason)
	suite.InDelta(100.2, decision.Price, 1e-9)
}

func (suite *RiskTestSuite) TestCheckExitTimeExitSkippedOnProgress() {
	pos := position(types.SideLong, 100, 90, 120, 0)

	// 3% progress beats the 1% minimum, so the position stays on.
	_, hit := suite.ctrl.CheckExit(pos, bar(103, 104, 102, 103), 20, suite.sc)
	suite.False(hit)
}

func (suite *RiskTestSuite) TestCheckExitShortStop() {
	pos := position(types.SideShort, 100, 103, 95, 0)

	decision, hit := suite.ctrl.CheckExit(pos, bar(102, 104, 101, 103), 3, suite.sc)
	suite.True(hit)
	suite.Equal(types.ExitReasonStopLoss, decision.Reason)
	suite.InDelta(103.0, decision.Price, 1e-9)
}

func bar(open, high, low, closePrice float64) types.Bar {
	return types.Bar{
		Symbol: "SPY",
		Time:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePrice,
		Volume: 1_000_000,
	}
}

func position(side types.Side, entry, stop, target float64, entryBar int) *types.Position {
	return &types.Position{
		Symbol:        "SPY",
		Side:          side,
		EntryPrice:    entry,
		EntryBarIndex: entryBar,
		Quantity:      100,
		StopLoss:      stop,
		TakeProfit:    target,
		HighWaterMark: entry,
		LowWaterMark:  entry,
		OpenedAt:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Confidence:    70,
	}
}

func signal(confidence float64) types.Signal {
	return types.Signal{
		Symbol:     "SPY",
		Side:       types.SideLong,
		Confidence: confidence,
		EntryPrice: 100,
		BarIndex:   60,
		Time:       time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}
