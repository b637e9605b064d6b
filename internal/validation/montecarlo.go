package validation

import (
	"math/rand"

	"github.com/quantfoundry/backtest/internal/config"
	"github.com/quantfoundry/backtest/internal/metrics"
	"github.com/quantfoundry/backtest/internal/types"
	"github.com/quantfoundry/backtest/pkg/errors"
)

// MonteCarloReport describes how the observed trade ordering sits inside the
// distribution of random reorderings. A strategy whose drawdown is entirely
// path-dependent shows up here.
type MonteCarloReport struct {
	Permutations int `yaml:"permutations"`

	ObservedSharpe      float64 `yaml:"observed_sharpe"`
	ObservedMaxDrawdown float64 `yaml:"observed_max_drawdown"`

	Sharpe      Distribution `yaml:"sharpe"`
	MaxDrawdown Distribution `yaml:"max_drawdown"`

	// SharpePercentile is the fraction of permutations with a Sharpe at or
	// below the observed one; DrawdownPercentile likewise for max drawdown.
	SharpePercentile   float64 `yaml:"sharpe_percentile"`
	DrawdownPercentile float64 `yaml:"drawdown_percentile"`
}

// RunMonteCarlo permutes the realized trade order cfg.Permutations times with
// a seeded generator, rebuilds the equity path from each ordering, and
// reports the resulting Sharpe and drawdown distributions. Deterministic for
// a fixed seed.
func RunMonteCarlo(trades []types.Trade, initialCapital float64, cfg config.ValidationConfig) (MonteCarloReport, error) {
	if len(trades) == 0 {
		return MonteCarloReport{}, errors.New(errors.ErrCodeNoTradesToPermute, "no trades to permute")
	}

	if cfg.Permutations <= 0 {
		return MonteCarloReport{}, errors.Newf(errors.ErrCodeInvalidParameter,
			"permutation count %d must be positive", cfg.Permutations)
	}

	pnls := make([]float64, len(trades))
	for i, t := range trades {
		pnls[i] = t.NetPnL
	}

	observedSharpe, observedDD := pathStats(pnls, initialCapital)

	rng := rand.New(rand.NewSource(cfg.Seed))

	sharpes := make([]float64, cfg.Permutations)
	drawdowns := make([]float64, cfg.Permutations)

	shuffled := make([]float64, len(pnls))
	copy(shuffled, pnls)

	for p := 0; p < cfg.Permutations; p++ {
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		sharpes[p], drawdowns[p] = pathStats(shuffled, initialCapital)
	}

	return MonteCarloReport{
		Permutations:        cfg.Permutations,
		ObservedSharpe:      observedSharpe,
		ObservedMaxDrawdown: observedDD,
		Sharpe:              Summarize(sharpes),
		MaxDrawdown:         Summarize(drawdowns),
		SharpePercentile:    percentileRank(sharpes, observedSharpe),
		DrawdownPercentile:  percentileRank(drawdowns, observedDD),
	}, nil
}

// pathStats rebuilds an equity path from per-trade P&Ls and returns its
// Sharpe ratio and max drawdown.
func pathStats(pnls []float64, initialCapital float64) (float64, float64) {
	equity := make([]float64, len(pnls)+1)
	equity[0] = initialCapital
	for i, pnl := range pnls {
		equity[i+1] = equity[i] + pnl
	}

	returns := make([]float64, 0, len(pnls))
	for i := 1; i < len(equity); i++ {
		if equity[i-1] > 0 {
			returns = append(returns, (equity[i]-equity[i-1])/equity[i-1])
		}
	}

	return metrics.Sharpe(returns), metrics.MaxDrawdown(equity)
}

// percentileRank is the fraction of the sample at or below the observed value.
func percentileRank(sample []float64, observed float64) float64 {
	count := 0
	for _, v := range sample {
		if v <= observed {
			count++
		}
	}

	return float64(count) / float64(len(sample))
}
