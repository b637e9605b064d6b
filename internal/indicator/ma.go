package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/quantfoundry/backtest/internal/types"
)

// SMA computes the simple moving average of closes over a trailing window.
// The value at index i uses bars [i-window+1 .. i] only and is None until the
// window is filled. An insufficient-data sentinel is never a fabricated number.
func SMA(bars []types.Bar, window int) []optional.Option[float64] {
	out := make([]optional.Option[float64], len(bars))
	if window <= 0 {
		return out
	}

	sum := 0.0

	for i, bar := range bars {
		sum += bar.Close
		if i >= window {
			sum -= bars[i-window].Close
		}

		if i >= window-1 {
			out[i] = optional.Some(sum / float64(window))
		} else {
			out[i] = optional.None[float64]()
		}
	}

	return out
}

// EMA computes the exponential moving average of closes, seeded by the simple
// average of the first period closes. Defined from index period-1 on.
func EMA(bars []types.Bar, period int) []optional.Option[float64] {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}

	return emaOver(closes, period)
}

// emaOver runs the EMA recursion over arbitrary values. Shared by EMA, MACD
// and the MACD signal line.
func emaOver(values []float64, period int) []optional.Option[float64] {
	out := make([]optional.Option[float64], len(values))
	if period <= 0 || len(values) < period {
		for i := range out {
			out[i] = optional.None[float64]()
		}

		return out
	}

	multiplier := 2.0 / (float64(period) + 1.0)

	sum := 0.0
	prev := 0.0

	for i, v := range values {
		if i < period-1 {
			sum += v
			out[i] = optional.None[float64]()

			continue
		}

		if i == period-1 {
			// Seed with the simple average of the first period values.
			sum += v
			prev = sum / float64(period)
			out[i] = optional.Some(prev)

			continue
		}

		prev = (v-prev)*multiplier + prev
		out[i] = optional.Some(prev)
	}

	return out
}

// VolumeRatio is the current volume divided by the trailing window-bar
// average volume. None until the window fills or when average volume is zero.
func VolumeRatio(bars []types.Bar, window int) []optional.Option[float64] {
	out := make([]optional.Option[float64], len(bars))
	if window <= 0 {
		return out
	}

	sum := 0.0

	for i, bar := range bars {
		sum += bar.Volume
		if i >= window {
			sum -= bars[i-window].Volume
		}

		if i < window-1 {
			out[i] = optional.None[float64]()

			continue
		}

		avg := sum / float64(window)
		if avg <= 0 {
			out[i] = optional.None[float64]()

			continue
		}

		out[i] = optional.Some(bar.Volume / avg)
	}

	return out
}
