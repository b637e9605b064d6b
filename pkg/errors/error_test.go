package errors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ErrorTestSuite struct {
	suite.Suite
}

func TestErrorSuite(t *testing.T) {
	suite.Run(t, new(ErrorTestSuite))
}

func (suite *ErrorTestSuite) TestNewError() {
	err := New(ErrCodeInvalidOHLC, "high below low")
	suite.NotNil(err)
	suite.Equal(ErrCodeInvalidOHLC, err.Code)
	suite.Equal("high below low", err.Message)
	suite.Nil(err.Cause)
}

func (suite *ErrorTestSuite) TestNewfError() {
	err := Newf(ErrCodeInsufficientBars, "need %d bars, have %d", 100, 42)
	suite.NotNil(err)
	suite.Equal(ErrCodeInsufficientBars, err.Code)
	suite.Equal("need 100 bars, have 42", err.Message)
}

func (suite *ErrorTestSuite) TestWrapError() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeStoreWriteFailed, "failed to persist trades", cause)
	suite.NotNil(err)
	suite.Equal(ErrCodeStoreWriteFailed, err.Code)
	suite.Equal(cause, err.Cause)
	suite.Equal(cause, err.Unwrap())
}

func (suite *ErrorTestSuite) TestWrapfError() {
	cause := errors.New("underlying error")
	err := Wrapf(ErrCodeDataParseFailed, cause, "bad row for symbol %s", "SPY")
	suite.Equal("bad row for symbol SPY", err.Message)
	suite.Equal(cause, err.Cause)
}

func (suite *ErrorTestSuite) TestErrorString() {
	err := New(ErrCodeInsufficientBars, "not enough bars")
	suite.Equal("[100] not enough bars", err.Error())
}

func (suite *ErrorTestSuite) TestErrorStringWithCause() {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeLookaheadRead, "read past decision bar", cause)
	suite.Equal("[200] read past decision bar: underlying error", err.Error())
}

func (suite *ErrorTestSuite) TestGetCodeFromWrapped() {
	cause := New(ErrCodeUnknownLiquidityTier, "no tier for symbol")
	err := Wrap(ErrCodeInvalidCostInput, "cost lookup failed", cause)
	suite.Equal(ErrCodeInvalidCostInput, GetCode(err))
	suite.True(HasCode(err, ErrCodeInvalidCostInput))
}

func (suite *ErrorTestSuite) TestGetCodeUnknownForPlainError() {
	suite.Equal(ErrCodeUnknown, GetCode(errors.New("plain")))
}

func (suite *ErrorTestSuite) TestIsFatal() {
	suite.True(IsFatal(New(ErrCodeUnsortedTimestamps, "out of order")))
	suite.True(IsFatal(NewLookaheadError("SPY", 10, 11)))
	suite.False(IsFatal(New(ErrCodeNonPositiveQuantity, "zero quantity")))
	suite.False(IsFatal(New(ErrCodeUnknownLiquidityTier, "unknown tier")))
	suite.False(IsFatal(New(ErrCodeUnknownSymbolConfig, "no config")))
}

func (suite *ErrorTestSuite) TestInsufficientDataError() {
	err := NewInsufficientDataErrorf(14, 5, "SPY", "ATR needs %d bars, have %d", 14, 5)
	suite.Equal(14, err.Required)
	suite.Equal(5, err.Actual)
	suite.Equal("SPY", err.Symbol)
	suite.True(IsInsufficientDataError(err))
	suite.False(IsInsufficientDataError(errors.New("plain")))
}

func (suite *ErrorTestSuite) TestLookaheadError() {
	err := NewLookaheadError("QQQ", 150, 152)
	suite.Equal(ErrCodeLookaheadRead, err.Code)
	suite.Equal(150, err.AsOfIndex)
	suite.Equal(152, err.OffendingIdx)
	suite.True(IsBiasViolation(err))
	suite.Equal(ErrCodeLookaheadRead, GetCode(err))
	suite.Contains(err.Error(), "bias violation")
}

func (suite *ErrorTestSuite) TestSymbolExistenceError() {
	listed := time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2019, 6, 1, 0, 0, 0, 0, time.UTC)
	err := NewSymbolExistenceError("NEWCO", asOf, listed)
	suite.Equal(ErrCodeSymbolNotYetListed, err.Code)
	suite.True(IsBiasViolation(err))
	suite.True(IsFatal(err))
	suite.Contains(err.Error(), "NEWCO")
}
