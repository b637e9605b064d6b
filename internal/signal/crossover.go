package signal

import (
	"context"

	"github.com/quantfoundry/backtest/internal/indicator"
	"github.com/quantfoundry/backtest/internal/series"
	"github.com/quantfoundry/backtest/internal/types"
)

// CrossoverProvider is the built-in moving-average crossover strategy used by
// the CLI when no external signal file is supplied. It reads only the
// precomputed snapshot at the decision bar and the one before it, so every
// signal is a function of past bars.
type CrossoverProvider struct {
	series     *series.Series
	indicators *indicator.Engine
}

// NewCrossoverProvider builds the strategy over a series and its indicators.
func NewCrossoverProvider(s *series.Series, indicators *indicator.Engine) *CrossoverProvider {
	return &CrossoverProvider{series: s, indicators: indicators}
}

// SignalAt emits a long signal when the fast SMA crosses above the slow SMA
// and a short signal on the opposite cross. Confidence scales with trend
// strength.
func (p *CrossoverProvider) SignalAt(_ context.Context, symbol string, barIdx int) Result {
	if symbol != p.series.Symbol() || barIdx < 1 || barIdx >= p.indicators.Len() {
		return Empty()
	}

	cur, err := p.indicators.At(barIdx)
	if err != nil {
		return Fail(err)
	}

	prev, err := p.indicators.At(barIdx - 1)
	if err != nil {
		return Fail(err)
	}

	fastCur, err := cur.SMAFast.Take()
	if err != nil {
		return Empty()
	}

	slowCur, err := cur.SMASlow.Take()
	if err != nil {
		return Empty()
	}

	fastPrev, err := prev.SMAFast.Take()
	if err != nil {
		return Empty()
	}

	slowPrev, err := prev.SMASlow.Take()
	if err != nil {
		return Empty()
	}

	var side types.Side

	switch {
	case fastPrev <= slowPrev && fastCur > slowCur:
		side = types.SideLong
	case fastPrev >= slowPrev && fastCur < slowCur:
		side = types.SideShort
	default:
		return Empty()
	}

	bar := p.series.At(barIdx)

	return Some(types.Signal{
		Symbol:     symbol,
		Side:       side,
		Confidence: crossoverConfidence(cur),
		EntryPrice: bar.Close,
		BarIndex:   barIdx,
		Time:       bar.Time,
	})
}

// crossoverConfidence maps trend strength into a 55-95 confidence band. A
// cross without a trend reading gets the floor.
func crossoverConfidence(snap indicator.Snapshot) float64 {
	const (
		floor   = 55.0
		ceiling = 95.0
	)

	trend, err := snap.TrendStrength.Take()
	if err != nil {
		return floor
	}

	confidence := floor + trend/100*(ceiling-floor)
	if confidence > ceiling {
		return ceiling
	}

	return confidence
}
