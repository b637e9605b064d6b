package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitReasonStopLoss       ExitReason = "stop_loss"
	ExitReasonTakeProfit     ExitReason = "take_profit"
	ExitReasonTimeExit       ExitReason = "time_exit"
	ExitReasonSignalReversal ExitReason = "signal_reversal"
	ExitReasonEndOfData      ExitReason = "end_of_data"
)

// Trade is a closed round trip. Immutable once created; appended to the trade
// ledger, never mutated or deleted.
type Trade struct {
	ID         string     `yaml:"id"`
	Symbol     string     `yaml:"symbol"`
	Side       Side       `yaml:"side"`
	EntryPrice float64    `yaml:"entry_price"`
	EntryTime  time.Time  `yaml:"entry_time"`
	ExitPrice  float64    `yaml:"exit_price"`
	ExitTime   time.Time  `yaml:"exit_time"`
	Quantity   float64    `yaml:"quantity"`
	// GrossPnL is the raw price move times quantity, before any costs.
	GrossPnL float64 `yaml:"gross_pnl"`
	// NetPnL is GrossPnL minus commissions. Spread and slippage are already
	// embedded in the entry/exit fill prices.
	NetPnL float64 `yaml:"net_pnl"`
	// Fees is the total commission paid across the entry and exit fills.
	Fees float64 `yaml:"fees"`
	// Confidence is the signal confidence the position was entered with.
	Confidence  float64    `yaml:"confidence"`
	HoldingBars int        `yaml:"holding_bars"`
	ExitReason  ExitReason `yaml:"exit_reason"`
}

// NewTrade settles a position into an immutable trade record. PnL is computed
// with decimal arithmetic to keep settlement exact.
func NewTrade(pos Position, exitPrice float64, exitTime time.Time, exitBarIdx int, exitFees float64, reason ExitReason) Trade {
	qty := decimal.NewFromFloat(pos.Quantity)
	entry := decimal.NewFromFloat(pos.EntryPrice)
	exit := decimal.NewFromFloat(exitPrice)

	var grossDec decimal.Decimal
	if pos.Side == SideShort {
		grossDec = entry.Sub(exit).Mul(qty)
	} else {
		grossDec = exit.Sub(entry).Mul(qty)
	}

	feesDec := decimal.NewFromFloat(pos.EntryFees).Add(decimal.NewFromFloat(exitFees))
	netDec := grossDec.Sub(feesDec)

	gross, _ := grossDec.Float64()
	net, _ := netDec.Float64()
	fees, _ := feesDec.Float64()

	return Trade{
		ID:          tradeID(pos.Symbol, pos.EntryBarIndex, exitBarIdx),
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		EntryPrice:  pos.EntryPrice,
		EntryTime:   pos.OpenedAt,
		ExitPrice:   exitPrice,
		ExitTime:    exitTime,
		Quantity:    pos.Quantity,
		GrossPnL:    gross,
		NetPnL:      net,
		Fees:        fees,
		Confidence:  pos.Confidence,
		HoldingBars: exitBarIdx - pos.EntryBarIndex,
		ExitReason:  reason,
	}
}

// tradeID derives a stable ID from the round trip's coordinates. One position
// per symbol means the entry bar is unique within a run, and two runs over the
// same input produce identical ledgers.
func tradeID(symbol string, entryBarIdx, exitBarIdx int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s|%d|%d", symbol, entryBarIdx, exitBarIdx))).String()
}

// EquityPoint is one sample of the equity curve: cash plus the mark-to-market
// value of any open position, taken once per bar.
type EquityPoint struct {
	Time   time.Time `yaml:"time"`
	Equity float64   `yaml:"equity"`
}
