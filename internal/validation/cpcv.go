package validation

import (
	"context"

	"go.uber.org/zap"

	"github.com/quantfoundry/backtest/internal/config"
	"github.com/quantfoundry/backtest/internal/engine"
	"github.com/quantfoundry/backtest/internal/logger"
	"github.com/quantfoundry/backtest/internal/metrics"
	"github.com/quantfoundry/backtest/internal/series"
	"github.com/quantfoundry/backtest/internal/signal"
	"github.com/quantfoundry/backtest/internal/types"
	"github.com/quantfoundry/backtest/pkg/errors"
)

// Block is a contiguous bar range [Start, End).
type Block struct {
	Start int
	End   int
}

// Split is one train/test partition of the series. Test blocks are chosen
// combinatorially; bars purged or embargoed around test boundaries belong to
// neither side.
type Split struct {
	ID         int
	TestBlocks []Block
	Train      []Block
}

// Splits partitions nBars into cfg.CPCVBlocks contiguous blocks and emits one
// split per combination of cfg.CPCVTestBlocks test blocks. Train blocks lose
// purgeBars adjacent to every test boundary plus embargoBars after each test
// block.
func Splits(nBars int, cfg config.ValidationConfig) ([]Split, error) {
	n := cfg.CPCVBlocks
	k := cfg.CPCVTestBlocks

	if n < 2 || k < 1 || k >= n {
		return nil, errors.Newf(errors.ErrCodeInvalidSplit,
			"invalid CPCV shape: %d blocks, %d test blocks", n, k)
	}

	if nBars < n {
		return nil, errors.Newf(errors.ErrCodeInvalidSplit,
			"%d bars cannot form %d blocks", nBars, n)
	}

	blocks := partition(nBars, n)

	var splits []Split

	for _, combo := range combinations(n, k) {
		split := Split{ID: len(splits)}

		isTest := make([]bool, n)
		for _, b := range combo {
			isTest[b] = true
			split.TestBlocks = append(split.TestBlocks, blocks[b])
		}

		for b := 0; b < n; b++ {
			if isTest[b] {
				continue
			}

			train := blocks[b]

			// Purge before a following test block, purge plus embargo after a
			// preceding one.
			if b+1 < n && isTest[b+1] {
				train.End -= cfg.PurgeBars
			}

			if b > 0 && isTest[b-1] {
				train.Start += cfg.PurgeBars + cfg.EmbargoBars
			}

			if train.Start < train.End {
				split.Train = append(split.Train, train)
			}
		}

		splits = append(splits, split)
	}

	return splits, nil
}

// partition slices nBars into n contiguous blocks of near-equal length.
func partition(nBars, n int) []Block {
	blocks := make([]Block, n)
	base := nBars / n
	rem := nBars % n

	start := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}

		blocks[i] = Block{Start: start, End: start + size}
		start += size
	}

	return blocks
}

// combinations enumerates k-subsets of [0, n) in lexicographic order.
func combinations(n, k int) [][]int {
	var out [][]int

	combo := make([]int, k)
	var build func(next, depth int)
	build = func(next, depth int) {
		if depth == k {
			picked := make([]int, k)
			copy(picked, combo)
			out = append(out, picked)

			return
		}

		for i := next; i < n; i++ {
			combo[depth] = i
			build(i+1, depth+1)
		}
	}
	build(0, 0)

	return out
}

// ProviderFactory builds a signal provider for a test window. The window is a
// re-indexed view of the full series; offset is the window's first bar index
// in the full series.
type ProviderFactory func(window *series.Series, offset int) signal.Provider

// SplitResult carries the aggregate metrics of one split's test blocks.
type SplitResult struct {
	SplitID int                   `yaml:"split_id"`
	Metrics types.BacktestMetrics `yaml:"metrics"`
}

// CPCVReport is the distribution of key metrics across all splits.
type CPCVReport struct {
	Splits      []SplitResult `yaml:"splits"`
	TotalReturn Distribution  `yaml:"total_return"`
	Sharpe      Distribution  `yaml:"sharpe"`
	MaxDrawdown Distribution  `yaml:"max_drawdown"`
	WinRate     Distribution  `yaml:"win_rate"`
}

// RunCPCV evaluates the strategy independently on every split's test blocks
// and summarizes the metric distributions. Each test block runs its own
// engine over a window view of the series; nothing is shared between runs.
func RunCPCV(ctx context.Context, cfg config.RunConfig, s *series.Series, factory ProviderFactory, log *logger.Logger) (CPCVReport, error) {
	splits, err := Splits(s.Len(), cfg.Validation)
	if err != nil {
		return CPCVReport{}, err
	}

	var report CPCVReport

	returns := make([]float64, 0, len(splits))
	sharpes := make([]float64, 0, len(splits))
	drawdowns := make([]float64, 0, len(splits))
	winRates := make([]float64, 0, len(splits))

	for _, split := range splits {
		metrics, err := runSplit(ctx, cfg, s, split, factory, log)
		if err != nil {
			if errors.IsFatal(err) {
				return CPCVReport{}, err
			}

			log.Warn("CPCV split failed, excluded from distribution",
				zap.Int("split", split.ID),
				zap.Error(err))

			continue
		}

		report.Splits = append(report.Splits, SplitResult{SplitID: split.ID, Metrics: metrics})
		returns = append(returns, metrics.TotalReturnPct)
		sharpes = append(sharpes, metrics.SharpeRatio)
		drawdowns = append(drawdowns, metrics.MaxDrawdownPct)
		winRates = append(winRates, metrics.WinRate)
	}

	if len(report.Splits) == 0 {
		return CPCVReport{}, errors.New(errors.ErrCodeValidationRunFailed, "every CPCV split failed")
	}

	report.TotalReturn = Summarize(returns)
	report.Sharpe = Summarize(sharpes)
	report.MaxDrawdown = Summarize(drawdowns)
	report.WinRate = Summarize(winRates)

	return report, nil
}

// runSplit runs one engine per test block and combines the block results into
// split-level metrics by concatenating trades and chaining equity.
func runSplit(ctx context.Context, cfg config.RunConfig, s *series.Series, split Split, factory ProviderFactory, log *logger.Logger) (types.BacktestMetrics, error) {
	var trades []types.Trade
	var equity []types.EquityPoint

	runCfg := cfg
	capital := cfg.InitialCapital

	for _, block := range split.TestBlocks {
		window := s.Window(block.Start, block.End)

		if window.Len() < runCfg.MinBars {
			return types.BacktestMetrics{}, errors.Newf(errors.ErrCodeInvalidSplit,
				"test block [%d,%d) has %d bars, engine minimum is %d",
				block.Start, block.End, window.Len(), runCfg.MinBars)
		}

		runCfg.InitialCapital = capital

		eng, err := engine.New(runCfg, window, factory(window, block.Start), log)
		if err != nil {
			return types.BacktestMetrics{}, err
		}

		result, err := eng.Run(ctx, engine.ModeSequential)
		if err != nil {
			return types.BacktestMetrics{}, err
		}

		trades = append(trades, result.Trades...)
		equity = append(equity, result.Equity...)
		capital = result.FinalEquity
	}

	return metrics.Calculate(trades, equity, cfg.InitialCapital), nil
}
