package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/quantfoundry/backtest/internal/types"
)

// RSI computes Wilder's relative strength index over closes. The first value
// appears at index period (it needs period price changes); everything before
// is None rather than a warm-up guess.
func RSI(bars []types.Bar, period int) []optional.Option[float64] {
	out := make([]optional.Option[float64], len(bars))
	if period <= 0 || len(bars) <= period {
		for i := range out {
			out[i] = optional.None[float64]()
		}

		return out
	}

	var avgGain, avgLoss float64

	for i := range bars {
		if i == 0 {
			out[i] = optional.None[float64]()

			continue
		}

		change := bars[i].Close - bars[i-1].Close
		gain, loss := 0.0, 0.0

		if change > 0 {
			gain = change
		} else {
			loss = -change
		}

		switch {
		case i < period:
			avgGain += gain
			avgLoss += loss
			out[i] = optional.None[float64]()

			continue
		case i == period:
			// Seed with the simple mean of the first period changes.
			avgGain = (avgGain + gain) / float64(period)
			avgLoss = (avgLoss + loss) / float64(period)
		default:
			// Wilder smoothing.
			avgGain = (avgGain*float64(period-1) + gain) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		}

		if avgLoss == 0 {
			out[i] = optional.Some(100.0)

			continue
		}

		rs := avgGain / avgLoss
		out[i] = optional.Some(100.0 - 100.0/(1.0+rs))
	}

	return out
}
