package types

import (
	"time"

	"github.com/quantfoundry/backtest/pkg/errors"
)

// Bar is a single OHLCV observation for one symbol. Timestamps are strictly
// increasing and unique within a series.
type Bar struct {
	Symbol string    `csv:"symbol"`
	Time   time.Time `csv:"time"`
	Open   float64   `csv:"open"`
	High   float64   `csv:"high"`
	Low    float64   `csv:"low"`
	Close  float64   `csv:"close"`
	Volume float64   `csv:"volume"`
}

// Validate checks the OHLCV relationships of a single bar:
// high >= max(open, close, low), low <= min(open, close, high), volume >= 0.
func (b Bar) Validate() error {
	if b.Volume < 0 {
		return errors.Newf(errors.ErrCodeNegativeVolume, "negative volume %.2f at %s", b.Volume, b.Time.Format(time.RFC3339))
	}

	if b.High < b.Open || b.High < b.Close || b.High < b.Low {
		return errors.Newf(errors.ErrCodeInvalidOHLC,
			"high %.4f below open/close/low (o=%.4f c=%.4f l=%.4f) at %s",
			b.High, b.Open, b.Close, b.Low, b.Time.Format(time.RFC3339))
	}

	if b.Low > b.Open || b.Low > b.Close {
		return errors.Newf(errors.ErrCodeInvalidOHLC,
			"low %.4f above open/close (o=%.4f c=%.4f) at %s",
			b.Low, b.Open, b.Close, b.Time.Format(time.RFC3339))
	}

	return nil
}

// TrueRange returns the bar's true range given the previous close:
// max(high-low, |high-prevClose|, |low-prevClose|).
func (b Bar) TrueRange(prevClose float64) float64 {
	tr := b.High - b.Low

	if hc := abs(b.High - prevClose); hc > tr {
		tr = hc
	}

	if lc := abs(b.Low - prevClose); lc > tr {
		tr = lc
	}

	return tr
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}

	return x
}
