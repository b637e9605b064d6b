package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BacktestMetrics is derived from the trade ledger and equity curve. It is
// recomputable at any time and never a source of truth.
type BacktestMetrics struct {
	// TotalReturnPct is (final equity - initial capital) / initial capital.
	TotalReturnPct float64 `yaml:"total_return_pct"`
	// NumberOfTrades counts all closed trades.
	NumberOfTrades int `yaml:"number_of_trades"`
	// NumberOfWinningTrades counts trades with positive net pnl.
	NumberOfWinningTrades int `yaml:"number_of_winning_trades"`
	// NumberOfLosingTrades counts trades with negative net pnl.
	NumberOfLosingTrades int `yaml:"number_of_losing_trades"`
	// WinRate is winners / total, zero when there are no trades.
	WinRate float64 `yaml:"win_rate"`
	// ProfitFactor is gross profit / gross loss across all trades.
	ProfitFactor float64 `yaml:"profit_factor"`
	// SharpeRatio is the annualized mean/stddev of per-bar equity returns.
	SharpeRatio float64 `yaml:"sharpe_ratio"`
	// SortinoRatio uses downside deviation in the denominator instead.
	SortinoRatio float64 `yaml:"sortino_ratio"`
	// MaxDrawdownPct is the largest peak-to-trough equity decline.
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct"`
	// AverageWin and AverageLoss are mean net pnl of winners and losers.
	AverageWin  float64 `yaml:"average_win"`
	AverageLoss float64 `yaml:"average_loss"`
	// TotalFees is the sum of commissions across all trades.
	TotalFees float64 `yaml:"total_fees"`
	// AvgHoldingBars is the mean holding period across trades.
	AvgHoldingBars float64 `yaml:"avg_holding_bars"`
}

// BacktestResult is the full output of one simulation run. A failed run has
// Failed set and carries no partial trades; it is always distinguishable from
// a genuinely flat zero-trade run.
type BacktestResult struct {
	RunID          string          `yaml:"run_id"`
	Symbol         string          `yaml:"symbol"`
	Timestamp      time.Time       `yaml:"timestamp"`
	Failed         bool            `yaml:"failed"`
	FailureReason  string          `yaml:"failure_reason,omitempty"`
	InitialCapital float64         `yaml:"initial_capital"`
	FinalEquity    float64         `yaml:"final_equity"`
	Trades         []Trade         `yaml:"trades"`
	Equity         []EquityPoint   `yaml:"equity"`
	Metrics        BacktestMetrics `yaml:"metrics"`
}

// WriteMetricsReport marshals results to YAML and writes them to path.
func WriteMetricsReport(path string, results []BacktestResult) error {
	data, err := yaml.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to marshal backtest results to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write backtest results to file: %w", err)
	}

	return nil
}
