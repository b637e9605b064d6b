// Package biasguard is the correctness gate against look-ahead and
// survivorship bias. The simulation engine consults it before every signal
// consumption, in both the sequential and the batched-parallel paths. Its
// errors are always fatal and must never be swallowed.
package biasguard

import (
	"time"

	"github.com/quantfoundry/backtest/pkg/errors"
)

// Guard validates temporal access patterns for one run. The first-listed
// registry is configuration data supplied at construction; an empty registry
// disables only the existence check, never the lookahead check.
type Guard struct {
	symbol      string
	firstListed map[string]time.Time
}

// New creates a guard for the given symbol with a symbol -> first trading
// date registry.
func New(symbol string, firstListed map[string]time.Time) *Guard {
	return &Guard{symbol: symbol, firstListed: firstListed}
}

// AssertNoLookahead fails when a slice ending at sliceEnd would be used for a
// decision made at asOfIndex. sliceEnd is the highest bar index the slice
// contains.
func (g *Guard) AssertNoLookahead(sliceEnd, asOfIndex int) error {
	if sliceEnd > asOfIndex {
		return errors.NewLookaheadError(g.symbol, asOfIndex, sliceEnd)
	}

	return nil
}

// ValidateSymbolExists fails when the symbol's first known trading date is
// after asOf. Testing a strategy on an instrument before it existed inflates
// results through inclusion bias.
func (g *Guard) ValidateSymbolExists(symbol string, asOf time.Time) error {
	firstListed, ok := g.firstListed[symbol]
	if !ok {
		// No registry entry means existence cannot be checked; the run
		// proceeds on the declared series bounds.
		return nil
	}

	if firstListed.After(asOf) {
		return errors.NewSymbolExistenceError(symbol, asOf, firstListed)
	}

	return nil
}
