// Package signal defines how the simulation engine obtains trade signals.
// Providers return an explicit three-state result so "no signal at this bar"
// is a value, not an error, and provider failures never drive control flow
// through exceptions.
package signal

import (
	"context"
	"sync"

	"github.com/quantfoundry/backtest/internal/types"
	"github.com/quantfoundry/backtest/pkg/errors"
)

// Kind tags the state of a Result.
type Kind int

const (
	// KindEmpty means the provider has no opinion at this bar.
	KindEmpty Kind = iota
	// KindSignal means Signal carries a proposed trade.
	KindSignal
	// KindError means the provider failed; Err carries the cause.
	KindError
)

// Result is the tagged outcome of a signal lookup.
type Result struct {
	Kind   Kind
	Signal types.Signal
	Err    error
}

// Some wraps a signal.
func Some(sig types.Signal) Result {
	return Result{Kind: KindSignal, Signal: sig}
}

// Empty is the no-signal result.
func Empty() Result {
	return Result{Kind: KindEmpty}
}

// Fail wraps a provider failure.
func Fail(err error) Result {
	return Result{Kind: KindError, Err: err}
}

// Provider produces at most one signal per bar. SignalAt must only consult
// information available at barIdx; the engine enforces this with its bias
// guard before consuming the result.
type Provider interface {
	SignalAt(ctx context.Context, symbol string, barIdx int) Result
}

// FuncProvider adapts a function to the Provider interface.
type FuncProvider func(ctx context.Context, symbol string, barIdx int) Result

func (f FuncProvider) SignalAt(ctx context.Context, symbol string, barIdx int) Result {
	return f(ctx, symbol, barIdx)
}

// SliceProvider serves precomputed signals keyed by generation bar index.
// Each signal is consumable once. Safe for the engine's batched lookups from
// multiple goroutines.
type SliceProvider struct {
	mu       sync.Mutex
	byBar    map[int]types.Signal
	consumed map[int]bool
}

// NewSliceProvider indexes the given signals by bar. A signal whose BarIndex
// collides with an earlier one is rejected.
func NewSliceProvider(signals []types.Signal) (*SliceProvider, error) {
	byBar := make(map[int]types.Signal, len(signals))

	for _, sig := range signals {
		if err := sig.Validate(); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidSignal, err,
				"invalid signal for %s at bar %d", sig.Symbol, sig.BarIndex)
		}

		if _, exists := byBar[sig.BarIndex]; exists {
			return nil, errors.Newf(errors.ErrCodeSignalAlreadyUsed,
				"duplicate signal at bar %d", sig.BarIndex)
		}

		byBar[sig.BarIndex] = sig
	}

	return &SliceProvider{byBar: byBar, consumed: make(map[int]bool, len(byBar))}, nil
}

// SignalAt returns the signal generated at barIdx, once.
func (p *SliceProvider) SignalAt(_ context.Context, symbol string, barIdx int) Result {
	p.mu.Lock()
	defer p.mu.Unlock()

	sig, ok := p.byBar[barIdx]
	if !ok || sig.Symbol != symbol {
		return Empty()
	}

	if p.consumed[barIdx] {
		return Fail(errors.Newf(errors.ErrCodeSignalAlreadyUsed,
			"signal at bar %d already consumed", barIdx))
	}

	p.consumed[barIdx] = true

	return Some(sig)
}

// FallbackProvider tries an ordered list of providers and returns the first
// signal or empty result, skipping failed providers.
type FallbackProvider struct {
	providers []Provider
}

// NewFallbackProvider chains providers in priority order.
func NewFallbackProvider(providers ...Provider) *FallbackProvider {
	return &FallbackProvider{providers: providers}
}

// SignalAt returns the first non-error result. When every provider fails the
// last failure is returned.
func (p *FallbackProvider) SignalAt(ctx context.Context, symbol string, barIdx int) Result {
	var last Result

	for _, provider := range p.providers {
		last = provider.SignalAt(ctx, symbol, barIdx)
		if last.Kind != KindError {
			return last
		}
	}

	if len(p.providers) == 0 {
		return Empty()
	}

	return last
}
