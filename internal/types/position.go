package types

import "time"

// Position represents the single open holding for a symbol. Exactly one
// position may be open per symbol at a time; there is no stacking. The risk
// controller mutates StopLoss (trailing) and the water marks on every bar
// while the position is open.
type Position struct {
	Symbol        string
	Side          Side
	EntryPrice    float64
	EntryBarIndex int
	Quantity      float64
	// StopLoss is the current stop price. Trailing updates keep it monotonic:
	// non-decreasing for longs, non-increasing for shorts.
	StopLoss   float64
	TakeProfit float64
	// HighWaterMark is the highest high seen since entry (longs trail off it).
	HighWaterMark float64
	// LowWaterMark is the lowest low seen since entry (shorts trail off it).
	LowWaterMark float64
	OpenedAt     time.Time
	// Confidence is the signal confidence at entry, carried into the trade.
	Confidence float64
	// EntryFees is the commission already paid on the entry fill.
	EntryFees float64
}

// UnrealizedPnL marks the position to the given price, gross of fees.
func (p *Position) UnrealizedPnL(price float64) float64 {
	if p.Side == SideShort {
		return (p.EntryPrice - price) * p.Quantity
	}

	return (price - p.EntryPrice) * p.Quantity
}

// ProgressPct returns the favorable move from entry as a fraction of the
// entry price. Used by the time-based exit to decide whether the position
// has made minimum progress.
func (p *Position) ProgressPct(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}

	if p.Side == SideShort {
		return (p.EntryPrice - price) / p.EntryPrice
	}

	return (price - p.EntryPrice) / p.EntryPrice
}

// HoldingBars returns how many bars the position has been open as of barIdx.
func (p *Position) HoldingBars(barIdx int) int {
	return barIdx - p.EntryBarIndex
}
