package indicator

import (
	"math"

	"github.com/moznion/go-optional"

	"github.com/quantfoundry/backtest/internal/types"
)

// TrendStrength computes the average directional index (ADX), used by the
// risk controller's trend filter. Directional movement and true range are
// Wilder-smoothed over period bars; the ADX itself is a further smoothed
// average of DX values, so the first reading appears at index 2*period-1.
func TrendStrength(bars []types.Bar, period int) []optional.Option[float64] {
	n := len(bars)
	out := make([]optional.Option[float64], n)

	if period <= 0 || n < 2*period {
		for i := range out {
			out[i] = optional.None[float64]()
		}

		return out
	}

	var smTR, smPlusDM, smMinusDM float64

	var adx float64

	dxSum := 0.0
	dxCount := 0

	for i := range bars {
		out[i] = optional.None[float64]()
		if i == 0 {
			continue
		}

		upMove := bars[i].High - bars[i-1].High
		downMove := bars[i-1].Low - bars[i].Low

		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}

		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}

		tr := bars[i].TrueRange(bars[i-1].Close)

		switch {
		case i < period:
			smTR += tr
			smPlusDM += plusDM
			smMinusDM += minusDM

			continue
		case i == period:
			smTR += tr
			smPlusDM += plusDM
			smMinusDM += minusDM
		default:
			// Wilder smoothing.
			smTR = smTR - smTR/float64(period) + tr
			smPlusDM = smPlusDM - smPlusDM/float64(period) + plusDM
			smMinusDM = smMinusDM - smMinusDM/float64(period) + minusDM
		}

		if smTR == 0 {
			continue
		}

		plusDI := 100.0 * smPlusDM / smTR
		minusDI := 100.0 * smMinusDM / smTR

		diSum := plusDI + minusDI
		if diSum == 0 {
			continue
		}

		dx := 100.0 * math.Abs(plusDI-minusDI) / diSum

		switch {
		case i < 2*period-1:
			dxSum += dx
			dxCount++

			continue
		case i == 2*period-1:
			dxSum += dx
			dxCount++
			adx = dxSum / float64(dxCount)
		default:
			adx = (adx*float64(period-1) + dx) / float64(period)
		}

		out[i] = optional.Some(adx)
	}

	return out
}
