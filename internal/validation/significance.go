package validation

import (
	"math"

	"github.com/quantfoundry/backtest/pkg/errors"
)

// confidenceZ is the two-sided 95% normal quantile used for the interval.
const confidenceZ = 1.96

// TTestResult is the outcome of a one-sample or paired t-test.
type TTestResult struct {
	N      int     `yaml:"n"`
	Mean   float64 `yaml:"mean"`
	StdDev float64 `yaml:"std_dev"`
	TStat  float64 `yaml:"t_stat"`
	// PValue is two-sided against the zero-mean null.
	PValue float64 `yaml:"p_value"`
	CILow  float64 `yaml:"ci_low"`
	CIHigh float64 `yaml:"ci_high"`
	// SampleAdequate reports whether N met the configured minimum. A p-value
	// from an inadequate sample is reported but not trusted.
	SampleAdequate bool `yaml:"sample_adequate"`
	// Significant means p < 0.05 on an adequate sample.
	Significant bool `yaml:"significant"`
}

// TTestAgainstZero runs a one-sample t-test of the values against a zero
// mean. minSample is the observation count below which the result is flagged
// inadequate.
func TTestAgainstZero(values []float64, minSample int) (TTestResult, error) {
	n := len(values)
	if n < 2 {
		return TTestResult{}, errors.Newf(errors.ErrCodeSampleTooSmall,
			"t-test needs at least 2 observations, got %d", n)
	}

	m := mean(values)
	sd := sampleStdDev(values)

	res := TTestResult{
		N:              n,
		Mean:           m,
		StdDev:         sd,
		SampleAdequate: n >= minSample,
	}

	se := sd / math.Sqrt(float64(n))
	if se == 0 {
		// Degenerate constant sample: the mean is exact.
		if m != 0 {
			res.PValue = 0
			res.TStat = math.Inf(sign(m))
			res.Significant = res.SampleAdequate
		} else {
			res.PValue = 1
		}

		res.CILow = m
		res.CIHigh = m

		return res, nil
	}

	res.TStat = m / se
	res.PValue = twoSidedPValue(res.TStat, float64(n-1))
	res.CILow = m - confidenceZ*se
	res.CIHigh = m + confidenceZ*se
	res.Significant = res.SampleAdequate && res.PValue < 0.05

	return res, nil
}

// PairedTTest tests whether the mean difference between paired samples is
// zero (strategy returns vs a benchmark, pairwise by period).
func PairedTTest(a, b []float64, minSample int) (TTestResult, error) {
	if len(a) != len(b) {
		return TTestResult{}, errors.Newf(errors.ErrCodeInvalidParameter,
			"paired samples differ in length: %d vs %d", len(a), len(b))
	}

	diffs := make([]float64, len(a))
	for i := range a {
		diffs[i] = a[i] - b[i]
	}

	return TTestAgainstZero(diffs, minSample)
}

// twoSidedPValue computes P(|T| >= |t|) for a Student t variable with df
// degrees of freedom, via the regularized incomplete beta function.
func twoSidedPValue(t, df float64) float64 {
	if math.IsInf(t, 0) {
		return 0
	}

	return regularizedIncompleteBeta(df/2, 0.5, df/(df+t*t))
}

// regularizedIncompleteBeta evaluates I_x(a, b) with the continued-fraction
// expansion, using the symmetry relation to keep the fraction convergent.
func regularizedIncompleteBeta(a, b, x float64) float64 {
	if x <= 0 {
		return 0
	}

	if x >= 1 {
		return 1
	}

	lbeta, _ := math.Lgamma(a + b)
	la, _ := math.Lgamma(a)
	lb, _ := math.Lgamma(b)
	front := math.Exp(lbeta - la - lb + a*math.Log(x) + b*math.Log(1-x))

	if x < (a+1)/(a+b+2) {
		return front * betaContinuedFraction(a, b, x) / a
	}

	return 1 - front*betaContinuedFraction(b, a, 1-x)/b
}

// betaContinuedFraction is the modified Lentz evaluation of the continued
// fraction for the incomplete beta function.
func betaContinuedFraction(a, b, x float64) float64 {
	const (
		maxIterations = 200
		epsilon       = 3e-14
		tiny          = 1e-30
	)

	qab := a + b
	qap := a + 1
	qam := a - 1

	c := 1.0
	d := 1 - qab*x/qap
	if math.Abs(d) < tiny {
		d = tiny
	}
	d = 1 / d
	h := d

	for m := 1; m <= maxIterations; m++ {
		fm := float64(m)
		m2 := 2 * fm

		aa := fm * (b - fm) * x / ((qam + m2) * (a + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d
		h *= d * c

		aa = -(a + fm) * (qab + fm) * x / ((a + m2) * (qap + m2))
		d = 1 + aa*d
		if math.Abs(d) < tiny {
			d = tiny
		}
		c = 1 + aa/c
		if math.Abs(c) < tiny {
			c = tiny
		}
		d = 1 / d

		del := d * c
		h *= del

		if math.Abs(del-1) < epsilon {
			break
		}
	}

	return h
}

func sign(v float64) int {
	if v < 0 {
		return -1
	}

	return 1
}
