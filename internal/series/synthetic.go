package series

import (
	"math"
	"time"

	"github.com/quantfoundry/backtest/internal/types"
)

// Synthetic series builders shared by tests across packages. All builders are
// deterministic: same inputs, same bars.

// GenerateFlat returns n identical bars at the given price with constant
// volume. Useful for asserting that a quiet market produces no activity.
func GenerateFlat(symbol string, n int, price, volume float64, start time.Time) *Series {
	bars := make([]types.Bar, n)
	for i := range bars {
		bars[i] = types.Bar{
			Symbol: symbol,
			Time:   start.Add(time.Duration(i) * 24 * time.Hour),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: volume,
		}
	}

	return New(symbol, bars)
}

// GenerateTrend returns n bars drifting from startPrice by dailyDriftPct per
// bar, with a fixed intrabar range so ATR is well defined.
func GenerateTrend(symbol string, n int, startPrice, dailyDriftPct, rangePct, volume float64, start time.Time) *Series {
	bars := make([]types.Bar, n)
	price := startPrice

	for i := range bars {
		next := price * (1 + dailyDriftPct)
		high := math.Max(price, next) * (1 + rangePct/2)
		low := math.Min(price, next) * (1 - rangePct/2)
		bars[i] = types.Bar{
			Symbol: symbol,
			Time:   start.Add(time.Duration(i) * 24 * time.Hour),
			Open:   price,
			High:   high,
			Low:    low,
			Close:  next,
			Volume: volume,
		}
		price = next
	}

	return New(symbol, bars)
}

// GenerateWave returns n bars following a sine wave around basePrice with the
// given amplitude fraction and period in bars. Gives indicators realistic
// ups and downs without randomness.
func GenerateWave(symbol string, n int, basePrice, amplitudePct float64, periodBars int, volume float64, start time.Time) *Series {
	bars := make([]types.Bar, n)

	closeAt := func(i int) float64 {
		return basePrice * (1 + amplitudePct*math.Sin(2*math.Pi*float64(i)/float64(periodBars)))
	}

	for i := range bars {
		open := closeAt(i - 1)
		if i == 0 {
			open = basePrice
		}

		cls := closeAt(i)
		bars[i] = types.Bar{
			Symbol: symbol,
			Time:   start.Add(time.Duration(i) * 24 * time.Hour),
			Open:   open,
			High:   math.Max(open, cls) * 1.002,
			Low:    math.Min(open, cls) * 0.998,
			Close:  cls,
			Volume: volume,
		}
	}

	return New(symbol, bars)
}
