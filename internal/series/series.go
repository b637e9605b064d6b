// Package series holds the ordered, gap-checked OHLCV series a backtest runs
// over. All data is loaded and validated up front; nothing in the bar loop
// touches disk or network.
package series

import (
	"sort"
	"time"

	"github.com/quantfoundry/backtest/internal/types"
	"github.com/quantfoundry/backtest/pkg/errors"
)

// DefaultMinBars is the minimum series length accepted for a run.
const DefaultMinBars = 100

// Series is an immutable, index-addressable bar series for one symbol.
type Series struct {
	symbol string
	bars   []types.Bar
}

// New builds a series from bars. The bars are not validated here; call
// Validate before handing the series to an engine.
func New(symbol string, bars []types.Bar) *Series {
	return &Series{symbol: symbol, bars: bars}
}

// Symbol returns the symbol this series belongs to.
func (s *Series) Symbol() string {
	return s.symbol
}

// Len returns the number of bars.
func (s *Series) Len() int {
	return len(s.bars)
}

// At returns the bar at index i. Callers are expected to stay within bounds;
// the engine guards every indexed access through the bias guard first.
func (s *Series) At(i int) types.Bar {
	return s.bars[i]
}

// Bars returns the underlying bars. The slice must be treated as read-only.
func (s *Series) Bars() []types.Bar {
	return s.bars
}

// First and Last return the boundary bars of the series.
func (s *Series) First() types.Bar { return s.bars[0] }
func (s *Series) Last() types.Bar  { return s.bars[len(s.bars)-1] }

// Prefix returns a view of the series containing bars [0..endIdx] only.
// This is the bias-safe way to hand history to a decision made at endIdx.
func (s *Series) Prefix(endIdx int) *Series {
	if endIdx >= len(s.bars) {
		endIdx = len(s.bars) - 1
	}

	return &Series{symbol: s.symbol, bars: s.bars[:endIdx+1]}
}

// Window returns a view of the series over bar indices [start, end).
func (s *Series) Window(start, end int) *Series {
	if start < 0 {
		start = 0
	}

	if end > len(s.bars) {
		end = len(s.bars)
	}

	return &Series{symbol: s.symbol, bars: s.bars[start:end]}
}

// Validate checks the whole series: minimum length, strictly increasing
// unique timestamps, per-bar OHLCV relationships, and symbol consistency.
// Any failure is a fatal data error; a run must abort before its bar loop.
func (s *Series) Validate(minBars int) error {
	if minBars <= 0 {
		minBars = DefaultMinBars
	}

	if len(s.bars) == 0 {
		return errors.Newf(errors.ErrCodeEmptySeries, "series %s has no bars", s.symbol)
	}

	if len(s.bars) < minBars {
		shortfall := errors.NewInsufficientDataErrorf(minBars, len(s.bars), s.symbol,
			"series %s has %d bars, minimum is %d", s.symbol, len(s.bars), minBars)

		return errors.Wrapf(errors.ErrCodeInsufficientBars, shortfall,
			"series %s below minimum length", s.symbol)
	}

	for i, bar := range s.bars {
		if bar.Symbol != "" && bar.Symbol != s.symbol {
			return errors.Newf(errors.ErrCodeSymbolMismatch,
				"bar %d belongs to %s, series is %s", i, bar.Symbol, s.symbol)
		}

		if err := bar.Validate(); err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidOHLC, err, "bar %d failed validation", i)
		}

		if i == 0 {
			continue
		}

		prev := s.bars[i-1]
		if bar.Time.Equal(prev.Time) {
			return errors.Newf(errors.ErrCodeDuplicateTimestamp,
				"duplicate timestamp %s at bars %d and %d", bar.Time.Format(time.RFC3339), i-1, i)
		}

		if bar.Time.Before(prev.Time) {
			return errors.Newf(errors.ErrCodeUnsortedTimestamps,
				"timestamp at bar %d (%s) precedes bar %d (%s)",
				i, bar.Time.Format(time.RFC3339), i-1, prev.Time.Format(time.RFC3339))
		}
	}

	return nil
}

// Gap describes a spacing anomaly between two adjacent bars.
type Gap struct {
	Index    int           // index of the bar after the gap
	Duration time.Duration // observed spacing
}

// Gaps returns spacings larger than maxMultiple times the median bar spacing.
// Gaps are reported, not fatal: daily series legitimately skip weekends.
func (s *Series) Gaps(maxMultiple float64) []Gap {
	if len(s.bars) < 3 || maxMultiple <= 0 {
		return nil
	}

	spacings := make([]time.Duration, 0, len(s.bars)-1)
	for i := 1; i < len(s.bars); i++ {
		spacings = append(spacings, s.bars[i].Time.Sub(s.bars[i-1].Time))
	}

	sorted := make([]time.Duration, len(spacings))
	copy(sorted, spacings)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	median := sorted[len(sorted)/2]

	threshold := time.Duration(float64(median) * maxMultiple)

	var gaps []Gap

	for i, spacing := range spacings {
		if spacing > threshold {
			gaps = append(gaps, Gap{Index: i + 1, Duration: spacing})
		}
	}

	return gaps
}
