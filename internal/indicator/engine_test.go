package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quantfoundry/backtest/internal/series"
	"github.com/quantfoundry/backtest/internal/types"
)

type IndicatorTestSuite struct {
	suite.Suite
	start time.Time
}

func TestIndicatorSuite(t *testing.T) {
	suite.Run(t, new(IndicatorTestSuite))
}

func (suite *IndicatorTestSuite) SetupTest() {
	suite.start = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
}

func barsFromCloses(closes []float64) []types.Bar {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, len(closes))

	for i, c := range closes {
		bars[i] = types.Bar{
			Symbol: "TEST",
			Time:   start.Add(time.Duration(i) * 24 * time.Hour),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1000,
		}
	}

	return bars
}

func (suite *IndicatorTestSuite) TestSMAWarmupAndValue() {
	closes := []float64{1, 2, 3, 4, 5, 6}
	sma := SMA(barsFromCloses(closes), 3)

	suite.True(sma[0].IsNone())
	suite.True(sma[1].IsNone())
	suite.InDelta(2.0, sma[2].Unwrap(), 1e-9)
	suite.InDelta(3.0, sma[3].Unwrap(), 1e-9)
	suite.InDelta(5.0, sma[5].Unwrap(), 1e-9)
}

func (suite *IndicatorTestSuite) TestEMASeededWithSimpleAverage() {
	closes := []float64{10, 12, 14, 16}
	ema := EMA(barsFromCloses(closes), 3)

	suite.True(ema[1].IsNone())
	suite.InDelta(12.0, ema[2].Unwrap(), 1e-9) // seed = (10+12+14)/3

	// next = (16-12)*0.5 + 12 with multiplier 2/(3+1)
	suite.InDelta(14.0, ema[3].Unwrap(), 1e-9)
}

func (suite *IndicatorTestSuite) TestRSIAllGainsIs100() {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	rsi := RSI(barsFromCloses(closes), 14)
	suite.True(rsi[13].IsNone())
	suite.InDelta(100.0, rsi[14].Unwrap(), 1e-9)
	suite.InDelta(100.0, rsi[39].Unwrap(), 1e-9)
}

func (suite *IndicatorTestSuite) TestRSIBalancedMovesNear50() {
	closes := make([]float64, 60)
	for i := range closes {
		if i%2 == 0 {
			closes[i] = 100
		} else {
			closes[i] = 101
		}
	}

	rsi := RSI(barsFromCloses(closes), 14)
	suite.True(rsi[59].IsSome())
	suite.InDelta(50.0, rsi[59].Unwrap(), 5.0)
}

func (suite *IndicatorTestSuite) TestMACDDefinedIndices() {
	s := series.GenerateWave("TEST", 80, 100, 0.05, 20, 1e6, suite.start)
	macd := MACD(s.Bars(), 12, 26, 9)

	suite.True(macd.Line[24].IsNone())
	suite.True(macd.Line[25].IsSome())
	suite.True(macd.Signal[32].IsNone())
	suite.True(macd.Signal[33].IsSome())
	suite.True(macd.Histogram[33].IsSome())

	line := macd.Line[40].Unwrap()
	sig := macd.Signal[40].Unwrap()
	suite.InDelta(line-sig, macd.Histogram[40].Unwrap(), 1e-9)
}

func (suite *IndicatorTestSuite) TestATRConstantRange() {
	// Flat closes with a fixed 2-point intrabar range: TR is always 2.
	bars := make([]types.Bar, 30)
	for i := range bars {
		bars[i] = types.Bar{
			Symbol: "TEST",
			Time:   suite.start.Add(time.Duration(i) * 24 * time.Hour),
			Open:   100, High: 101, Low: 99, Close: 100, Volume: 1000,
		}
	}

	atr := ATR(bars, 14)
	suite.True(atr[13].IsNone())
	suite.InDelta(2.0, atr[14].Unwrap(), 1e-9)
	suite.InDelta(2.0, atr[29].Unwrap(), 1e-9)

	atrPct := ATRPct(bars, 14)
	suite.InDelta(0.02, atrPct[14].Unwrap(), 1e-9)
}

func (suite *IndicatorTestSuite) TestRollingVolatilityFlatIsZero() {
	s := series.GenerateFlat("TEST", 60, 100, 1e6, suite.start)
	vol := RollingVolatility(s.Bars(), 20)

	suite.True(vol[19].IsNone())
	suite.InDelta(0.0, vol[20].Unwrap(), 1e-12)
	suite.InDelta(0.0, vol[59].Unwrap(), 1e-12)
}

func (suite *IndicatorTestSuite) TestVolumeRatioConstantIsOne() {
	s := series.GenerateFlat("TEST", 40, 100, 5e5, suite.start)
	vr := VolumeRatio(s.Bars(), 20)

	suite.True(vr[18].IsNone())
	suite.InDelta(1.0, vr[19].Unwrap(), 1e-9)
	suite.InDelta(1.0, vr[39].Unwrap(), 1e-9)
}

func (suite *IndicatorTestSuite) TestVolumeRatioSpike() {
	s := series.GenerateFlat("TEST", 40, 100, 1000, suite.start)
	bars := s.Bars()
	bars[30].Volume = 3000

	vr := VolumeRatio(bars, 20)
	suite.Greater(vr[30].Unwrap(), 2.0)
}

func (suite *IndicatorTestSuite) TestTrendStrengthDefinedAfterWarmup() {
	s := series.GenerateTrend("TEST", 60, 100, 0.01, 0.004, 1e6, suite.start)
	adx := TrendStrength(s.Bars(), 14)

	suite.True(adx[26].IsNone())
	suite.True(adx[27].IsSome())

	// A persistent one-directional trend should read as strong.
	suite.Greater(adx[59].Unwrap(), 25.0)
}

func (suite *IndicatorTestSuite) TestEngineSnapshotLookup() {
	s := series.GenerateWave("TEST", 120, 100, 0.05, 30, 1e6, suite.start)
	eng := Compute(s)

	suite.Equal(120, eng.Len())
	suite.Equal("TEST", eng.Symbol())

	snap, err := eng.At(100)
	suite.NoError(err)
	suite.True(snap.SMAFast.IsSome())
	suite.True(snap.SMASlow.IsSome())
	suite.True(snap.RSI.IsSome())
	suite.True(snap.ATRPct.IsSome())
	suite.True(snap.Volatility.IsSome())
	suite.True(snap.VolumeRatio.IsSome())
	suite.True(snap.TrendStrength.IsSome())

	_, err = eng.At(120)
	suite.Error(err)

	_, err = eng.At(-1)
	suite.Error(err)
}

// TestNoLookahead verifies the core temporal invariant: the snapshot at bar i
// is unchanged when every bar after i is deleted before computation.
func (suite *IndicatorTestSuite) TestNoLookahead() {
	s := series.GenerateWave("TEST", 150, 100, 0.08, 25, 1e6, suite.start)
	full := Compute(s)

	for _, i := range []int{0, 10, 35, 60, 100, 149} {
		truncated := Compute(s.Prefix(i))

		fullSnap, err := full.At(i)
		suite.NoError(err)

		truncSnap, err := truncated.At(i)
		suite.NoError(err)

		suite.Equal(fullSnap, truncSnap, "snapshot at bar %d changed when future bars were removed", i)
	}
}
