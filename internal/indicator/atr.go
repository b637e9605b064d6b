package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/quantfoundry/backtest/internal/types"
)

// ATR computes the average true range: a simple trailing average of the true
// range over period bars. True range needs the previous close, so the first
// value appears at index period.
func ATR(bars []types.Bar, period int) []optional.Option[float64] {
	out := make([]optional.Option[float64], len(bars))
	if period <= 0 {
		return out
	}

	trs := make([]float64, len(bars))
	sum := 0.0

	for i := range bars {
		if i == 0 {
			out[i] = optional.None[float64]()

			continue
		}

		trs[i] = bars[i].TrueRange(bars[i-1].Close)
		sum += trs[i]

		if i > period {
			sum -= trs[i-period]
		}

		if i < period {
			out[i] = optional.None[float64]()

			continue
		}

		out[i] = optional.Some(sum / float64(period))
	}

	return out
}

// ATRPct divides the ATR by the close, giving the volatility-scaled distance
// the risk controller multiplies into stop and target offsets.
func ATRPct(bars []types.Bar, period int) []optional.Option[float64] {
	atr := ATR(bars, period)
	out := make([]optional.Option[float64], len(bars))

	for i := range bars {
		if atr[i].IsNone() || bars[i].Close <= 0 {
			out[i] = optional.None[float64]()

			continue
		}

		out[i] = optional.Some(atr[i].Unwrap() / bars[i].Close)
	}

	return out
}
