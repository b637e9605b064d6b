// Package indicator precomputes backward-looking technical indicators over a
// full bar series. Every value at index i is a pure function of bars [0..i];
// warm-up gaps are carried as explicit None options, never fabricated numbers.
package indicator

import (
	"github.com/moznion/go-optional"

	"github.com/quantfoundry/backtest/internal/series"
	"github.com/quantfoundry/backtest/pkg/errors"
)

// Config holds indicator windows. Zero values fall back to the defaults the
// risk controller was tuned against.
type Config struct {
	SMAFastWindow    int `yaml:"sma_fast_window"`
	SMASlowWindow    int `yaml:"sma_slow_window"`
	RSIPeriod        int `yaml:"rsi_period"`
	MACDFast         int `yaml:"macd_fast"`
	MACDSlow         int `yaml:"macd_slow"`
	MACDSignal       int `yaml:"macd_signal"`
	ATRPeriod        int `yaml:"atr_period"`
	VolatilityWindow int `yaml:"volatility_window"`
	VolumeWindow     int `yaml:"volume_window"`
	TrendPeriod      int `yaml:"trend_period"`
}

// DefaultConfig returns the standard windows: SMA 20/50, RSI 14, MACD 12/26/9,
// ATR 14, volatility 20, volume 20, trend strength 14.
func DefaultConfig() Config {
	return Config{
		SMAFastWindow:    20,
		SMASlowWindow:    50,
		RSIPeriod:        14,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		ATRPeriod:        14,
		VolatilityWindow: 20,
		VolumeWindow:     20,
		TrendPeriod:      14,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()

	if c.SMAFastWindow <= 0 {
		c.SMAFastWindow = d.SMAFastWindow
	}

	if c.SMASlowWindow <= 0 {
		c.SMASlowWindow = d.SMASlowWindow
	}

	if c.RSIPeriod <= 0 {
		c.RSIPeriod = d.RSIPeriod
	}

	if c.MACDFast <= 0 {
		c.MACDFast = d.MACDFast
	}

	if c.MACDSlow <= 0 {
		c.MACDSlow = d.MACDSlow
	}

	if c.MACDSignal <= 0 {
		c.MACDSignal = d.MACDSignal
	}

	if c.ATRPeriod <= 0 {
		c.ATRPeriod = d.ATRPeriod
	}

	if c.VolatilityWindow <= 0 {
		c.VolatilityWindow = d.VolatilityWindow
	}

	if c.VolumeWindow <= 0 {
		c.VolumeWindow = d.VolumeWindow
	}

	if c.TrendPeriod <= 0 {
		c.TrendPeriod = d.TrendPeriod
	}

	return c
}

// Snapshot is the set of indicator values at one bar index. None means the
// trailing window has not filled yet.
type Snapshot struct {
	SMAFast       optional.Option[float64]
	SMASlow       optional.Option[float64]
	RSI           optional.Option[float64]
	MACDLine      optional.Option[float64]
	MACDSignal    optional.Option[float64]
	MACDHistogram optional.Option[float64]
	ATR           optional.Option[float64]
	ATRPct        optional.Option[float64]
	Volatility    optional.Option[float64]
	VolumeRatio   optional.Option[float64]
	TrendStrength optional.Option[float64]
}

// Engine holds indicator snapshots parallel to a bar series, computed once
// and reused by index lookup.
type Engine struct {
	symbol    string
	snapshots []Snapshot
}

// Compute precomputes all indicators for the series with default windows.
func Compute(s *series.Series) *Engine {
	return ComputeWithConfig(s, DefaultConfig())
}

// ComputeWithConfig precomputes all indicators with the given windows.
func ComputeWithConfig(s *series.Series, cfg Config) *Engine {
	cfg = cfg.withDefaults()
	bars := s.Bars()

	smaFast := SMA(bars, cfg.SMAFastWindow)
	smaSlow := SMA(bars, cfg.SMASlowWindow)
	rsi := RSI(bars, cfg.RSIPeriod)
	macd := MACD(bars, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	atr := ATR(bars, cfg.ATRPeriod)
	atrPct := ATRPct(bars, cfg.ATRPeriod)
	vol := RollingVolatility(bars, cfg.VolatilityWindow)
	volumeRatio := VolumeRatio(bars, cfg.VolumeWindow)
	trend := TrendStrength(bars, cfg.TrendPeriod)

	snapshots := make([]Snapshot, len(bars))
	for i := range bars {
		snapshots[i] = Snapshot{
			SMAFast:       smaFast[i],
			SMASlow:       smaSlow[i],
			RSI:           rsi[i],
			MACDLine:      macd.Line[i],
			MACDSignal:    macd.Signal[i],
			MACDHistogram: macd.Histogram[i],
			ATR:           atr[i],
			ATRPct:        atrPct[i],
			Volatility:    vol[i],
			VolumeRatio:   volumeRatio[i],
			TrendStrength: trend[i],
		}
	}

	return &Engine{symbol: s.Symbol(), snapshots: snapshots}
}

// Symbol returns the symbol the snapshots were computed for.
func (e *Engine) Symbol() string {
	return e.symbol
}

// Len returns the number of snapshots (equal to the series length).
func (e *Engine) Len() int {
	return len(e.snapshots)
}

// At returns the snapshot for bar index i.
func (e *Engine) At(i int) (Snapshot, error) {
	if i < 0 || i >= len(e.snapshots) {
		return Snapshot{}, errors.Newf(errors.ErrCodeInvalidParameter,
			"indicator index %d out of range [0, %d)", i, len(e.snapshots))
	}

	return e.snapshots[i], nil
}
