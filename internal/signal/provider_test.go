package signal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quantfoundry/backtest/internal/types"
	"github.com/quantfoundry/backtest/pkg/errors"
)

type ProviderTestSuite struct {
	suite.Suite
	ctx context.Context
}

func TestProviderSuite(t *testing.T) {
	suite.Run(t, new(ProviderTestSuite))
}

func (suite *ProviderTestSuite) SetupTest() {
	suite.ctx = context.Background()
}

func testSignal(barIdx int) types.Signal {
	return types.Signal{
		Symbol:     "SPY",
		Side:       types.SideLong,
		Confidence: 70,
		EntryPrice: 100,
		BarIndex:   barIdx,
		Time:       time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func (suite *ProviderTestSuite) TestSliceProviderServesOnce() {
	p, err := NewSliceProvider([]types.Signal{testSignal(5)})
	suite.NoError(err)

	res := p.SignalAt(suite.ctx, "SPY", 5)
	suite.Equal(KindSignal, res.Kind)
	suite.Equal(5, res.Signal.BarIndex)

	res = p.SignalAt(suite.ctx, "SPY", 5)
	suite.Equal(KindError, res.Kind)
	suite.True(errors.HasCode(res.Err, errors.ErrCodeSignalAlreadyUsed))
}

func (suite *ProviderTestSuite) TestSliceProviderEmptyBars() {
	p, err := NewSliceProvider([]types.Signal{testSignal(5)})
	suite.NoError(err)

	suite.Equal(KindEmpty, p.SignalAt(suite.ctx, "SPY", 4).Kind)
	suite.Equal(KindEmpty, p.SignalAt(suite.ctx, "QQQ", 5).Kind)
}

func (suite *ProviderTestSuite) TestSliceProviderRejectsDuplicates() {
	_, err := NewSliceProvider([]types.Signal{testSignal(5), testSignal(5)})
	suite.True(errors.HasCode(err, errors.ErrCodeSignalAlreadyUsed))
}

func (suite *ProviderTestSuite) TestSliceProviderRejectsInvalidSignal() {
	bad := testSignal(5)
	bad.EntryPrice = 0

	_, err := NewSliceProvider([]types.Signal{bad})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidSignal))
}

func (suite *ProviderTestSuite) TestFuncProvider() {
	p := FuncProvider(func(_ context.Context, _ string, barIdx int) Result {
		if barIdx == 7 {
			return Some(testSignal(7))
		}

		return Empty()
	})

	suite.Equal(KindSignal, p.SignalAt(suite.ctx, "SPY", 7).Kind)
	suite.Equal(KindEmpty, p.SignalAt(suite.ctx, "SPY", 8).Kind)
}

func (suite *ProviderTestSuite) TestFallbackSkipsFailedProvider() {
	failing := FuncProvider(func(context.Context, string, int) Result {
		return Fail(errors.New(errors.ErrCodeProviderFailed, "provider down"))
	})
	working := FuncProvider(func(_ context.Context, _ string, barIdx int) Result {
		return Some(testSignal(barIdx))
	})

	p := NewFallbackProvider(failing, working)

	res := p.SignalAt(suite.ctx, "SPY", 3)
	suite.Equal(KindSignal, res.Kind)
}

func (suite *ProviderTestSuite) TestFallbackAllFailed() {
	failing := FuncProvider(func(context.Context, string, int) Result {
		return Fail(errors.New(errors.ErrCodeProviderFailed, "provider down"))
	})

	p := NewFallbackProvider(failing, failing)

	res := p.SignalAt(suite.ctx, "SPY", 3)
	suite.Equal(KindError, res.Kind)
	suite.True(errors.HasCode(res.Err, errors.ErrCodeProviderFailed))
}

func (suite *ProviderTestSuite) TestFallbackEmptyChain() {
	p := NewFallbackProvider()
	suite.Equal(KindEmpty, p.SignalAt(suite.ctx, "SPY", 3).Kind)
}
