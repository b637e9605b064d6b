// Package store persists finished run results to DuckDB. It is strictly
// post-run: the simulation engine never touches it, and writing a result
// after the fact cannot change what the run computed.
package store

import (
	"database/sql"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"go.uber.org/zap"

	"github.com/quantfoundry/backtest/internal/logger"
	"github.com/quantfoundry/backtest/internal/types"
	"github.com/quantfoundry/backtest/pkg/errors"
)

// Store is a DuckDB-backed result archive.
type Store struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// Open opens (or creates) a store at path. An empty path opens an in-memory
// store, useful for tests and one-shot runs.
func Open(path string, log *logger.Logger) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreOpenFailed, err, "failed to open result store at %s", path)
	}

	s := &Store{
		db:     db,
		logger: log,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := s.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			symbol TEXT,
			run_time TIMESTAMP,
			failed BOOLEAN,
			failure_reason TEXT,
			initial_capital DOUBLE,
			final_equity DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			trade_id TEXT PRIMARY KEY,
			run_id TEXT,
			symbol TEXT,
			side TEXT,
			entry_price DOUBLE,
			entry_time TIMESTAMP,
			exit_price DOUBLE,
			exit_time TIMESTAMP,
			quantity DOUBLE,
			gross_pnl DOUBLE,
			net_pnl DOUBLE,
			fees DOUBLE,
			confidence DOUBLE,
			holding_bars INTEGER,
			exit_reason TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS equity (
			run_id TEXT,
			bar_time TIMESTAMP,
			equity DOUBLE
		)`,
		`CREATE TABLE IF NOT EXISTS metrics (
			run_id TEXT PRIMARY KEY,
			total_return_pct DOUBLE,
			number_of_trades INTEGER,
			winning_trades INTEGER,
			losing_trades INTEGER,
			win_rate DOUBLE,
			profit_factor DOUBLE,
			sharpe_ratio DOUBLE,
			sortino_ratio DOUBLE,
			max_drawdown_pct DOUBLE,
			average_win DOUBLE,
			average_loss DOUBLE,
			total_fees DOUBLE,
			avg_holding_bars DOUBLE
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return errors.Wrap(errors.ErrCodeStoreOpenFailed, "failed to create result tables", err)
		}
	}

	return nil
}

// SaveResult writes a full run result in one transaction.
func (s *Store) SaveResult(result types.BacktestResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to begin transaction", err)
	}

	insertRun := s.sq.
		Insert("runs").
		Columns("run_id", "symbol", "run_time", "failed", "failure_reason", "initial_capital", "final_equity").
		Values(result.RunID, result.Symbol, result.Timestamp, result.Failed, result.FailureReason,
			result.InitialCapital, result.FinalEquity).
		RunWith(tx)

	if _, err := insertRun.Exec(); err != nil {
		tx.Rollback()

		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to insert run", err)
	}

	for _, trade := range result.Trades {
		insertTrade := s.sq.
			Insert("trades").
			Columns("trade_id", "run_id", "symbol", "side", "entry_price", "entry_time",
				"exit_price", "exit_time", "quantity", "gross_pnl", "net_pnl", "fees",
				"confidence", "holding_bars", "exit_reason").
			Values(trade.ID, result.RunID, trade.Symbol, string(trade.Side), trade.EntryPrice,
				trade.EntryTime, trade.ExitPrice, trade.ExitTime, trade.Quantity,
				trade.GrossPnL, trade.NetPnL, trade.Fees, trade.Confidence,
				trade.HoldingBars, string(trade.ExitReason)).
			RunWith(tx)

		if _, err := insertTrade.Exec(); err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to insert trade", err)
		}
	}

	for _, point := range result.Equity {
		insertEquity := s.sq.
			Insert("equity").
			Columns("run_id", "bar_time", "equity").
			Values(result.RunID, point.Time, point.Equity).
			RunWith(tx)

		if _, err := insertEquity.Exec(); err != nil {
			tx.Rollback()

			return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to insert equity point", err)
		}
	}

	m := result.Metrics
	insertMetrics := s.sq.
		Insert("metrics").
		Columns("run_id", "total_return_pct", "number_of_trades", "winning_trades", "losing_trades",
			"win_rate", "profit_factor", "sharpe_ratio", "sortino_ratio", "max_drawdown_pct",
			"average_win", "average_loss", "total_fees", "avg_holding_bars").
		Values(result.RunID, m.TotalReturnPct, m.NumberOfTrades, m.NumberOfWinningTrades,
			m.NumberOfLosingTrades, m.WinRate, m.ProfitFactor, m.SharpeRatio, m.SortinoRatio,
			m.MaxDrawdownPct, m.AverageWin, m.AverageLoss, m.TotalFees, m.AvgHoldingBars).
		RunWith(tx)

	if _, err := insertMetrics.Exec(); err != nil {
		tx.Rollback()

		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to insert metrics", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeStoreWriteFailed, "failed to commit result", err)
	}

	s.logger.Debug("run result persisted",
		zap.String("run_id", result.RunID),
		zap.Int("trades", len(result.Trades)),
		zap.Int("equity_points", len(result.Equity)))

	return nil
}

// LoadResult reads a full run result back by run ID.
func (s *Store) LoadResult(runID string) (types.BacktestResult, error) {
	var result types.BacktestResult

	runRow := s.sq.
		Select("run_id", "symbol", "run_time", "failed", "failure_reason", "initial_capital", "final_equity").
		From("runs").
		Where(squirrel.Eq{"run_id": runID}).
		RunWith(s.db).
		QueryRow()

	err := runRow.Scan(&result.RunID, &result.Symbol, &result.Timestamp, &result.Failed,
		&result.FailureReason, &result.InitialCapital, &result.FinalEquity)
	if err != nil {
		return types.BacktestResult{}, errors.Wrapf(errors.ErrCodeStoreQueryFailed, err,
			"failed to load run %s", runID)
	}

	trades, err := s.loadTrades(runID)
	if err != nil {
		return types.BacktestResult{}, err
	}
	result.Trades = trades

	equity, err := s.loadEquity(runID)
	if err != nil {
		return types.BacktestResult{}, err
	}
	result.Equity = equity

	metrics, err := s.loadMetrics(runID)
	if err != nil {
		return types.BacktestResult{}, err
	}
	result.Metrics = metrics

	return result, nil
}

func (s *Store) loadTrades(runID string) ([]types.Trade, error) {
	rows, err := s.sq.
		Select("trade_id", "symbol", "side", "entry_price", "entry_time", "exit_price",
			"exit_time", "quantity", "gross_pnl", "net_pnl", "fees", "confidence",
			"holding_bars", "exit_reason").
		From("trades").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("entry_time").
		RunWith(s.db).
		Query()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreQueryFailed, err, "failed to load trades for run %s", runID)
	}
	defer rows.Close()

	var trades []types.Trade

	for rows.Next() {
		var t types.Trade
		var side, reason string

		err := rows.Scan(&t.ID, &t.Symbol, &side, &t.EntryPrice, &t.EntryTime, &t.ExitPrice,
			&t.ExitTime, &t.Quantity, &t.GrossPnL, &t.NetPnL, &t.Fees, &t.Confidence,
			&t.HoldingBars, &reason)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to scan trade row", err)
		}

		t.Side = types.Side(side)
		t.ExitReason = types.ExitReason(reason)
		trades = append(trades, t)
	}

	return trades, rows.Err()
}

func (s *Store) loadEquity(runID string) ([]types.EquityPoint, error) {
	rows, err := s.sq.
		Select("bar_time", "equity").
		From("equity").
		Where(squirrel.Eq{"run_id": runID}).
		OrderBy("bar_time").
		RunWith(s.db).
		Query()
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeStoreQueryFailed, err, "failed to load equity for run %s", runID)
	}
	defer rows.Close()

	var points []types.EquityPoint

	for rows.Next() {
		var p types.EquityPoint
		if err := rows.Scan(&p.Time, &p.Equity); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to scan equity row", err)
		}

		points = append(points, p)
	}

	return points, rows.Err()
}

func (s *Store) loadMetrics(runID string) (types.BacktestMetrics, error) {
	var m types.BacktestMetrics

	row := s.sq.
		Select("total_return_pct", "number_of_trades", "winning_trades", "losing_trades",
			"win_rate", "profit_factor", "sharpe_ratio", "sortino_ratio", "max_drawdown_pct",
			"average_win", "average_loss", "total_fees", "avg_holding_bars").
		From("metrics").
		Where(squirrel.Eq{"run_id": runID}).
		RunWith(s.db).
		QueryRow()

	err := row.Scan(&m.TotalReturnPct, &m.NumberOfTrades, &m.NumberOfWinningTrades,
		&m.NumberOfLosingTrades, &m.WinRate, &m.ProfitFactor, &m.SharpeRatio,
		&m.SortinoRatio, &m.MaxDrawdownPct, &m.AverageWin, &m.AverageLoss,
		&m.TotalFees, &m.AvgHoldingBars)
	if err != nil {
		return types.BacktestMetrics{}, errors.Wrapf(errors.ErrCodeStoreQueryFailed, err,
			"failed to load metrics for run %s", runID)
	}

	return m, nil
}

// ListRuns returns the IDs of all persisted runs, newest first.
func (s *Store) ListRuns() ([]string, error) {
	rows, err := s.sq.
		Select("run_id").
		From("runs").
		OrderBy("run_time DESC").
		RunWith(s.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to list runs", err)
	}
	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to scan run id", err)
		}

		ids = append(ids, id)
	}

	return ids, rows.Err()
}
