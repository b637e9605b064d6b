package indicator

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/quantfoundry/backtest/internal/types"
)

// annualizationFactor converts per-bar volatility of daily data to annual
// terms (252 trading days).
const annualizationFactor = 252.0

// RollingVolatility computes the annualized standard deviation of log returns
// over a trailing window. The value at index i needs window returns, so it is
// defined from index window on.
func RollingVolatility(bars []types.Bar, window int) []optional.Option[float64] {
	out := make([]optional.Option[float64], len(bars))
	if window <= 1 {
		return out
	}

	returns := make([]float64, len(bars))

	for i := range bars {
		if i == 0 {
			out[i] = optional.None[float64]()

			continue
		}

		if bars[i-1].Close > 0 && bars[i].Close > 0 {
			returns[i] = math.Log(bars[i].Close / bars[i-1].Close)
		}

		if i < window {
			out[i] = optional.None[float64]()

			continue
		}

		// Sample stddev over returns [i-window+1 .. i].
		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			sum += returns[j]
		}

		mean := sum / float64(window)

		var sq float64
		for j := i - window + 1; j <= i; j++ {
			d := returns[j] - mean
			sq += d * d
		}

		std := math.Sqrt(sq / float64(window-1))
		out[i] = optional.Some(std * math.Sqrt(annualizationFactor))
	}

	return out
}
