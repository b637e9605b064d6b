package signal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quantfoundry/backtest/internal/indicator"
	"github.com/quantfoundry/backtest/internal/series"
	"github.com/quantfoundry/backtest/internal/types"
)

type CrossoverTestSuite struct {
	suite.Suite
	ctx context.Context
}

func TestCrossoverSuite(t *testing.T) {
	suite.Run(t, new(CrossoverTestSuite))
}

func (suite *CrossoverTestSuite) SetupTest() {
	suite.ctx = context.Background()
}

func (suite *CrossoverTestSuite) TestWaveProducesAlternatingCrosses() {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	s := series.GenerateWave("SPY", 400, 100, 0.08, 80, 1_000_000, start)
	provider := NewCrossoverProvider(s, indicator.Compute(s))

	var signals []types.Signal
	for i := 0; i < s.Len(); i++ {
		res := provider.SignalAt(suite.ctx, "SPY", i)
		suite.NotEqual(KindError, res.Kind)

		if res.Kind == KindSignal {
			signals = append(signals, res.Signal)
		}
	}

	// A full wave cycle crosses the averages in both directions.
	suite.NotEmpty(signals)

	seenLong, seenShort := false, false
	for i, sig := range signals {
		suite.GreaterOrEqual(sig.Confidence, 55.0)
		suite.LessOrEqual(sig.Confidence, 95.0)

		if sig.Side == types.SideLong {
			seenLong = true
		} else {
			seenShort = true
		}

		if i > 0 {
			suite.NotEqual(signals[i-1].Side, sig.Side, "consecutive crosses must alternate")
		}
	}

	suite.True(seenLong)
	suite.True(seenShort)
}

func (suite *CrossoverTestSuite) TestWarmupAndForeignSymbolAreEmpty() {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	s := series.GenerateWave("SPY", 200, 100, 0.05, 40, 1_000_000, start)
	provider := NewCrossoverProvider(s, indicator.Compute(s))

	// Slow SMA needs 50 bars; nothing can fire before that.
	for i := 0; i < 50; i++ {
		suite.Equal(KindEmpty, provider.SignalAt(suite.ctx, "SPY", i).Kind)
	}

	suite.Equal(KindEmpty, provider.SignalAt(suite.ctx, "QQQ", 100).Kind)
}

func (suite *CrossoverTestSuite) TestFlatSeriesNeverCrosses() {
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	s := series.GenerateFlat("SPY", 200, 100, 1_000_000, start)
	provider := NewCrossoverProvider(s, indicator.Compute(s))

	for i := 0; i < s.Len(); i++ {
		suite.Equal(KindEmpty, provider.SignalAt(suite.ctx, "SPY", i).Kind)
	}
}
