// Package engine runs the bar-by-bar simulation: it advances through the
// series in strict time order, consults the signal provider, applies risk and
// cost rules, and maintains the trade ledger and equity curve. All data is
// validated before the loop starts; the loop itself never touches disk,
// network, wall clock or unseeded randomness.
package engine

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/quantfoundry/backtest/internal/biasguard"
	"github.com/quantfoundry/backtest/internal/config"
	"github.com/quantfoundry/backtest/internal/costmodel"
	"github.com/quantfoundry/backtest/internal/indicator"
	"github.com/quantfoundry/backtest/internal/logger"
	"github.com/quantfoundry/backtest/internal/metrics"
	"github.com/quantfoundry/backtest/internal/risk"
	"github.com/quantfoundry/backtest/internal/series"
	"github.com/quantfoundry/backtest/internal/signal"
	"github.com/quantfoundry/backtest/internal/types"
	"github.com/quantfoundry/backtest/pkg/errors"
)

// Mode selects the execution strategy. Both modes produce identical results;
// the parallel mode only batches signal lookups, never state mutation.
type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"

	// gapWarnMultiple flags bar spacings wider than this multiple of the
	// median spacing during preparation.
	gapWarnMultiple = 4.0
)

// SimulationEngine owns all mutable state for one run. Engines are not
// reusable; build a fresh one per run.
type SimulationEngine struct {
	cfg        config.RunConfig
	series     *series.Series
	provider   signal.Provider
	risk       *risk.Controller
	costs      *costmodel.Model
	guard      *biasguard.Guard
	indicators *indicator.Engine
	logger     *logger.Logger
	progress   func(done, total int)
}

// New wires an engine from its parts. The series is validated at Run time,
// not here.
func New(cfg config.RunConfig, s *series.Series, provider signal.Provider, log *logger.Logger) (*SimulationEngine, error) {
	if provider == nil {
		return nil, errors.New(errors.ErrCodeEngineNotPrepared, "signal provider is required")
	}

	registry, err := cfg.FirstListedRegistry()
	if err != nil {
		return nil, err
	}

	return &SimulationEngine{
		cfg:      cfg,
		series:   s,
		provider: provider,
		risk:     risk.New(cfg, log),
		costs:    costmodel.NewFromRun(cfg, log),
		guard:    biasguard.New(s.Symbol(), registry),
		logger:   log,
	}, nil
}

// SetProgress installs a per-bar progress callback, used by the CLI to drive
// a progress bar.
func (e *SimulationEngine) SetProgress(fn func(done, total int)) {
	e.progress = fn
}

// runState is the per-run mutable state. Exactly one goroutine touches it.
type runState struct {
	cash   float64
	pos    *types.Position
	trades []types.Trade
	equity []types.EquityPoint
}

// Run executes the full simulation. A failed run returns a result with
// Failed set and no partial trades, alongside the error.
func (e *SimulationEngine) Run(ctx context.Context, mode Mode) (types.BacktestResult, error) {
	result := types.BacktestResult{
		RunID:          uuid.New().String(),
		Symbol:         e.series.Symbol(),
		InitialCapital: e.cfg.InitialCapital,
	}

	fail := func(err error) (types.BacktestResult, error) {
		result.Failed = true
		result.FailureReason = err.Error()
		result.Trades = nil
		result.Equity = nil

		return result, err
	}

	if err := e.prepare(); err != nil {
		return fail(err)
	}

	// Timestamps come from the data, never the wall clock.
	result.Timestamp = e.series.Last().Time

	st := &runState{cash: e.cfg.InitialCapital}

	var err error
	if mode == ModeParallel {
		err = e.runBatched(ctx, st)
	} else {
		err = e.runSequential(ctx, st)
	}

	if err != nil {
		return fail(err)
	}

	e.forceClose(st)

	result.Trades = st.trades
	result.Equity = st.equity
	result.FinalEquity = st.cash
	result.Metrics = metrics.Calculate(st.trades, st.equity, e.cfg.InitialCapital)

	return result, nil
}

// prepare validates the series and precomputes indicators. Any error here is
// fatal; the bar loop never starts on bad data.
func (e *SimulationEngine) prepare() error {
	if err := e.series.Validate(e.cfg.MinBars); err != nil {
		return err
	}

	if err := e.guard.ValidateSymbolExists(e.series.Symbol(), e.series.First().Time); err != nil {
		return err
	}

	for _, gap := range e.series.Gaps(gapWarnMultiple) {
		e.logger.Warn("unusually wide bar spacing",
			zap.String("symbol", e.series.Symbol()),
			zap.Int("bar", gap.Index),
			zap.Duration("spacing", gap.Duration))
	}

	e.indicators = indicator.ComputeWithConfig(e.series, e.cfg.Indicators)

	return nil
}

func (e *SimulationEngine) runSequential(ctx context.Context, st *runState) error {
	n := e.series.Len()

	for i := 0; i < n; i++ {
		res := e.provider.SignalAt(ctx, e.series.Symbol(), i)
		if err := e.step(ctx, st, i, res); err != nil {
			return err
		}
	}

	return nil
}

// runBatched prefetches signal lookups for a bounded batch of bars in
// goroutines, then commits them strictly in bar order. Guard checks, risk
// decisions and fills all happen on the committing goroutine.
func (e *SimulationEngine) runBatched(ctx context.Context, st *runState) error {
	n := e.series.Len()

	batchSize := e.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1
	}

	for start := 0; start < n; start += batchSize {
		end := start + batchSize
		if end > n {
			end = n
		}

		results := make([]signal.Result, end-start)

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)

			go func(i int) {
				defer wg.Done()
				results[i-start] = e.provider.SignalAt(ctx, e.series.Symbol(), i)
			}(i)
		}
		wg.Wait()

		for i := start; i < end; i++ {
			if err := e.step(ctx, st, i, results[i-start]); err != nil {
				return err
			}
		}
	}

	return nil
}

// step processes one bar: trailing update, exit checks, signal handling,
// equity sample.
func (e *SimulationEngine) step(ctx context.Context, st *runState, barIdx int, res signal.Result) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeRunAborted, "run cancelled", err)
	}

	bar := e.series.At(barIdx)

	snap, err := e.indicators.At(barIdx)
	if err != nil {
		return err
	}

	if st.pos != nil {
		sc := e.risk.SymbolConfig(st.pos.Symbol)
		e.risk.UpdateTrailingStop(st.pos, bar, sc)

		if decision, hit := e.risk.CheckExit(st.pos, bar, barIdx, sc); hit {
			if err := e.settleExit(st, decision.Price, bar, barIdx, snap, decision.Reason); err != nil {
				return err
			}
		}
	}

	if err := e.handleSignal(st, res, bar, barIdx, snap); err != nil {
		return err
	}

	st.equity = append(st.equity, types.EquityPoint{
		Time:   bar.Time,
		Equity: st.cash + markValue(st.pos, bar.Close),
	})

	if e.progress != nil {
		e.progress(barIdx+1, e.series.Len())
	}

	return nil
}

func (e *SimulationEngine) handleSignal(st *runState, res signal.Result, bar types.Bar, barIdx int, snap indicator.Snapshot) error {
	switch res.Kind {
	case signal.KindEmpty:
		return nil

	case signal.KindError:
		if errors.IsFatal(res.Err) {
			return res.Err
		}

		e.logger.Warn("signal provider failed, bar skipped",
			zap.String("symbol", e.series.Symbol()),
			zap.Int("bar", barIdx),
			zap.Error(res.Err))

		return nil
	}

	sig := res.Signal

	// A signal generated at a future bar is a look-ahead read.
	if err := e.guard.AssertNoLookahead(sig.BarIndex, barIdx); err != nil {
		return err
	}

	if err := e.guard.ValidateSymbolExists(sig.Symbol, bar.Time); err != nil {
		return err
	}

	if st.pos == nil {
		e.tryEnter(st, sig, bar, barIdx, snap)

		return nil
	}

	if st.pos.Side == sig.Side {
		return nil
	}

	// Opposite-direction signal: reverse, but only once the minimum holding
	// period has passed. Reversal is a discretionary exit.
	sc := e.risk.SymbolConfig(st.pos.Symbol)
	if st.pos.HoldingBars(barIdx) < sc.MinHoldingBars {
		return nil
	}

	if err := e.settleExit(st, bar.Close, bar, barIdx, snap, types.ExitReasonSignalReversal); err != nil {
		return err
	}

	e.tryEnter(st, sig, bar, barIdx, snap)

	return nil
}

// tryEnter attempts to open a position for an admitted signal. Fill errors
// are recovered: the signal is dropped and the run continues.
func (e *SimulationEngine) tryEnter(st *runState, sig types.Signal, bar types.Bar, barIdx int, snap indicator.Snapshot) {
	sc := e.risk.SymbolConfig(sig.Symbol)

	admitted, reason := e.risk.AdmitSignal(sig, snap)
	if !admitted {
		e.logger.Debug("signal rejected",
			zap.String("symbol", sig.Symbol),
			zap.Int("bar", barIdx),
			zap.String("reason", reason))

		return
	}

	qty, err := e.risk.PositionSize(sig.Confidence, snap.Volatility, st.cash, bar.Close, sc)
	if err != nil {
		e.logger.Warn("position sizing failed, signal skipped",
			zap.String("symbol", sig.Symbol),
			zap.Int("bar", barIdx),
			zap.Error(err))

		return
	}

	volMult := e.costs.VolatilityMultiplier(snap.Volatility)

	fill, err := e.costs.ExecutionPrice(bar.Close, sig.Side, true, sig.Symbol, qty, avgVolume(bar, snap), volMult)
	if err != nil {
		e.logger.Warn("entry fill pricing failed, signal skipped",
			zap.String("symbol", sig.Symbol),
			zap.Int("bar", barIdx),
			zap.Error(err))

		return
	}

	commission := e.costs.Commission(fill, qty)

	// Shorts post the full notional as collateral, so both sides are capped
	// by available cash.
	if fill*qty+commission > st.cash {
		e.logger.Warn("insufficient capital for entry, signal skipped",
			zap.String("symbol", sig.Symbol),
			zap.Int("bar", barIdx),
			zap.Float64("cost", fill*qty+commission),
			zap.Float64("cash", st.cash))

		return
	}

	stops := e.risk.CalculateStops(fill, sig.Side, snap.ATRPct, sc)
	if v, err := sig.StopLoss.Take(); err == nil {
		stops.StopLoss = v
	}
	if v, err := sig.TakeProfit.Take(); err == nil {
		stops.TakeProfit = v
	}

	if sig.Side == types.SideShort {
		st.cash += fill * qty
	} else {
		st.cash -= fill * qty
	}
	st.cash -= commission

	st.pos = &types.Position{
		Symbol:        sig.Symbol,
		Side:          sig.Side,
		EntryPrice:    fill,
		EntryBarIndex: barIdx,
		Quantity:      qty,
		StopLoss:      stops.StopLoss,
		TakeProfit:    stops.TakeProfit,
		HighWaterMark: fill,
		LowWaterMark:  fill,
		OpenedAt:      bar.Time,
		Confidence:    sig.Confidence,
		EntryFees:     commission,
	}

	e.logger.Debug("position opened",
		zap.String("symbol", sig.Symbol),
		zap.String("side", string(sig.Side)),
		zap.Int("bar", barIdx),
		zap.Float64("fill", fill),
		zap.Float64("quantity", qty))
}

// settleExit closes the open position at the given raw price through the cost
// model and appends the resulting trade to the ledger.
func (e *SimulationEngine) settleExit(st *runState, rawPrice float64, bar types.Bar, barIdx int, snap indicator.Snapshot, reason types.ExitReason) error {
	pos := st.pos

	volMult := e.costs.VolatilityMultiplier(snap.Volatility)

	fill, err := e.costs.ExecutionPrice(rawPrice, pos.Side, false, pos.Symbol, pos.Quantity, avgVolume(bar, snap), volMult)
	if err != nil {
		return err
	}

	commission := e.costs.Commission(fill, pos.Quantity)

	if pos.Side == types.SideShort {
		st.cash -= fill * pos.Quantity
	} else {
		st.cash += fill * pos.Quantity
	}
	st.cash -= commission

	trade := types.NewTrade(*pos, fill, bar.Time, barIdx, commission, reason)
	st.trades = append(st.trades, trade)
	st.pos = nil

	e.logger.Debug("position closed",
		zap.String("symbol", trade.Symbol),
		zap.String("reason", string(reason)),
		zap.Int("bar", barIdx),
		zap.Float64("fill", fill),
		zap.Float64("net_pnl", trade.NetPnL))

	return nil
}

// forceClose settles any position still open after the last bar so the
// ledger round-trips completely. The final equity sample is updated to the
// flat, post-cost value.
func (e *SimulationEngine) forceClose(st *runState) {
	if st.pos == nil {
		return
	}

	lastIdx := e.series.Len() - 1
	bar := e.series.At(lastIdx)

	snap, err := e.indicators.At(lastIdx)
	if err != nil {
		snap = indicator.Snapshot{}
	}

	if err := e.settleExit(st, bar.Close, bar, lastIdx, snap, types.ExitReasonEndOfData); err != nil {
		// Pricing the forced close failed; settle at the raw close so the
		// position never leaks past the end of data.
		pos := st.pos
		if pos.Side == types.SideShort {
			st.cash -= bar.Close * pos.Quantity
		} else {
			st.cash += bar.Close * pos.Quantity
		}

		st.trades = append(st.trades, types.NewTrade(*pos, bar.Close, bar.Time, lastIdx, 0, types.ExitReasonEndOfData))
		st.pos = nil
	}

	if len(st.equity) > 0 {
		st.equity[len(st.equity)-1].Equity = st.cash
	}
}

// markValue is the mark-to-market value of the open position, zero when flat.
func markValue(pos *types.Position, price float64) float64 {
	if pos == nil {
		return 0
	}

	if pos.Side == types.SideShort {
		return -price * pos.Quantity
	}

	return price * pos.Quantity
}

// avgVolume recovers the trailing average volume from the volume ratio
// indicator. During warm-up the current bar's volume stands in.
func avgVolume(bar types.Bar, snap indicator.Snapshot) float64 {
	if ratio, err := snap.VolumeRatio.Take(); err == nil && ratio > 0 {
		return bar.Volume / ratio
	}

	return bar.Volume
}
