// Package validation answers whether a backtest result is trustworthy:
// combinatorial purged cross-validation over the series, Monte Carlo
// permutation of the realized trades, and significance testing of the return
// stream. Everything here is seeded and deterministic.
package validation

import (
	"math"
	"sort"
)

// Distribution summarizes a sample of one metric across validation runs.
type Distribution struct {
	N      int     `yaml:"n"`
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"std_dev"`
	Min    float64 `yaml:"min"`
	Max    float64 `yaml:"max"`
	P25    float64 `yaml:"p25"`
	P50    float64 `yaml:"p50"`
	P75    float64 `yaml:"p75"`
}

// Summarize computes the distribution of a sample. An empty sample yields a
// zero distribution.
func Summarize(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	return Distribution{
		N:      len(sorted),
		Mean:   mean(sorted),
		StdDev: sampleStdDev(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
		P25:    percentile(sorted, 0.25),
		P50:    percentile(sorted, 0.50),
		P75:    percentile(sorted, 0.75),
	}
}

// percentile interpolates linearly on a sorted sample.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := p * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))

	if lo == hi {
		return sorted[lo]
	}

	frac := rank - float64(lo)

	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	m := mean(values)

	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}

	return math.Sqrt(sumSq / float64(len(values)-1))
}
