// Package metrics derives performance statistics from a closed trade ledger
// and an equity curve. Calculate is a pure function: same inputs, same
// output, no state.
package metrics

import (
	"math"

	"github.com/quantfoundry/backtest/internal/types"
)

// annualizationFactor converts per-bar return statistics to annual terms,
// assuming daily bars.
const annualizationFactor = 252

// Calculate computes the full metric set from trades and the equity curve.
// An empty ledger produces zero-valued trade statistics; the return and
// drawdown figures still reflect the equity curve.
func Calculate(trades []types.Trade, equity []types.EquityPoint, initialCapital float64) types.BacktestMetrics {
	m := types.BacktestMetrics{
		NumberOfTrades: len(trades),
	}

	if initialCapital > 0 && len(equity) > 0 {
		m.TotalReturnPct = (equity[len(equity)-1].Equity - initialCapital) / initialCapital
	}

	grossProfit := 0.0
	grossLoss := 0.0
	totalHolding := 0

	for _, t := range trades {
		m.TotalFees += t.Fees
		totalHolding += t.HoldingBars

		switch {
		case t.NetPnL > 0:
			m.NumberOfWinningTrades++
			grossProfit += t.NetPnL
		case t.NetPnL < 0:
			m.NumberOfLosingTrades++
			grossLoss += -t.NetPnL
		}
	}

	if len(trades) > 0 {
		m.WinRate = float64(m.NumberOfWinningTrades) / float64(len(trades))
		m.AvgHoldingBars = float64(totalHolding) / float64(len(trades))
	}

	if m.NumberOfWinningTrades > 0 {
		m.AverageWin = grossProfit / float64(m.NumberOfWinningTrades)
	}

	if m.NumberOfLosingTrades > 0 {
		m.AverageLoss = -grossLoss / float64(m.NumberOfLosingTrades)
	}

	if grossLoss > 0 {
		m.ProfitFactor = grossProfit / grossLoss
	} else if grossProfit > 0 {
		m.ProfitFactor = math.Inf(1)
	}

	returns := barReturns(equity)
	m.SharpeRatio = sharpe(returns)
	m.SortinoRatio = sortino(returns)
	m.MaxDrawdownPct = MaxDrawdown(equityValues(equity))

	return m
}

// MaxDrawdown returns the largest peak-to-trough decline as a positive
// fraction of the peak.
func MaxDrawdown(equity []float64) float64 {
	maxDD := 0.0
	peak := math.Inf(-1)

	for _, v := range equity {
		if v > peak {
			peak = v
		}

		if peak > 0 {
			dd := (peak - v) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// Sharpe returns the annualized Sharpe ratio of a per-bar return series.
func Sharpe(returns []float64) float64 {
	return sharpe(returns)
}

func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	mean := meanOf(returns)
	sd := stddev(returns, mean)
	if sd == 0 {
		return 0
	}

	return mean / sd * math.Sqrt(annualizationFactor)
}

func sortino(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	mean := meanOf(returns)

	downside := 0.0
	for _, r := range returns {
		if r < 0 {
			downside += r * r
		}
	}
	downside = math.Sqrt(downside / float64(len(returns)))

	if downside == 0 {
		return 0
	}

	return mean / downside * math.Sqrt(annualizationFactor)
}

func barReturns(equity []types.EquityPoint) []float64 {
	if len(equity) < 2 {
		return nil
	}

	returns := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		prev := equity[i-1].Equity
		if prev <= 0 {
			continue
		}

		returns = append(returns, (equity[i].Equity-prev)/prev)
	}

	return returns
}

func equityValues(equity []types.EquityPoint) []float64 {
	values := make([]float64, len(equity))
	for i, p := range equity {
		values[i] = p.Equity
	}

	return values
}

func meanOf(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

func stddev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}

	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}

	return math.Sqrt(sumSq / float64(len(values)-1))
}
