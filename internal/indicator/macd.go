package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/quantfoundry/backtest/internal/types"
)

// MACDSeries holds the three MACD outputs as parallel series.
type MACDSeries struct {
	Line      []optional.Option[float64]
	Signal    []optional.Option[float64]
	Histogram []optional.Option[float64]
}

// MACD computes moving average convergence/divergence from EMA(fast) minus
// EMA(slow), with a signal line that is an EMA of the MACD line itself. Each
// EMA is seeded by the simple average of its first period inputs, so the line
// is defined from index slow-1 and the signal from slow-1+signalPeriod-1.
func MACD(bars []types.Bar, fast, slow, signalPeriod int) MACDSeries {
	n := len(bars)
	result := MACDSeries{
		Line:      make([]optional.Option[float64], n),
		Signal:    make([]optional.Option[float64], n),
		Histogram: make([]optional.Option[float64], n),
	}

	fastEMA := EMA(bars, fast)
	slowEMA := EMA(bars, slow)

	// The MACD line exists only where both EMAs do.
	lineValues := make([]float64, 0, n)
	lineStart := -1

	for i := 0; i < n; i++ {
		if fastEMA[i].IsNone() || slowEMA[i].IsNone() {
			result.Line[i] = optional.None[float64]()

			continue
		}

		v := fastEMA[i].Unwrap() - slowEMA[i].Unwrap()
		result.Line[i] = optional.Some(v)

		if lineStart < 0 {
			lineStart = i
		}

		lineValues = append(lineValues, v)
	}

	if lineStart < 0 {
		for i := range result.Signal {
			result.Signal[i] = optional.None[float64]()
			result.Histogram[i] = optional.None[float64]()
		}

		return result
	}

	signalOver := emaOver(lineValues, signalPeriod)

	for i := 0; i < n; i++ {
		if i < lineStart || signalOver[i-lineStart].IsNone() {
			result.Signal[i] = optional.None[float64]()
			result.Histogram[i] = optional.None[float64]()

			continue
		}

		sig := signalOver[i-lineStart].Unwrap()
		result.Signal[i] = optional.Some(sig)
		result.Histogram[i] = optional.Some(result.Line[i].Unwrap() - sig)
	}

	return result
}
