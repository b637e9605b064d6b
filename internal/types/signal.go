package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
)

// Side is the direction of a signal or position.
type Side string

const (
	// SideLong profits when price rises.
	SideLong Side = "long"
	// SideShort profits when price falls.
	SideShort Side = "short"
)

// Signal is a proposed trade produced by an external signal source. It is
// immutable once issued and consumed exactly once, at the bar it was
// generated for.
type Signal struct {
	// Symbol is the instrument the signal applies to.
	Symbol string `validate:"required"`
	// Side is the proposed direction.
	Side Side `validate:"required,oneof=long short"`
	// Confidence is the signal strength on a 0-100 scale.
	Confidence float64 `validate:"gte=0,lte=100"`
	// EntryPrice is the proposed entry price.
	EntryPrice float64 `validate:"gt=0"`
	// StopLoss optionally overrides the risk controller's stop.
	StopLoss optional.Option[float64]
	// TakeProfit optionally overrides the risk controller's target.
	TakeProfit optional.Option[float64]
	// BarIndex is the index of the bar the signal was generated at.
	BarIndex int `validate:"gte=0"`
	// Time is the timestamp of the generation bar.
	Time time.Time
}

// Validate checks the signal fields using go-playground/validator.
func (s Signal) Validate() error {
	validate := validator.New()

	return validate.Struct(s)
}
