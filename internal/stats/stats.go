// Package stats provides the statistical primitives behind experiment
// planning and evaluation: power-based sample sizing, Wilson score
// confidence intervals, and two-proportion significance tests. All functions
// are pure and safe for concurrent use.
package stats

import (
	"math"
)

// MinimumSampleSize is the floor applied to every sample-size calculation.
// Experiments below this size are too noisy to act on regardless of the
// computed power requirement.
const MinimumSampleSize = 100

// ProportionTestResult holds the outcome of a two-proportion z-test.
type ProportionTestResult struct {
	ZScore      float64 `json:"z_score"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
	// ConfidenceInterval bounds the difference in proportions (b - a).
	ConfidenceInterval [2]float64 `json:"confidence_interval"`
}

// ChiSquareResult holds the outcome of a 2x2 contingency test.
type ChiSquareResult struct {
	Statistic   float64 `json:"statistic"`
	PValue      float64 `json:"p_value"`
	Significant bool    `json:"significant"`
	// EffectSize is the phi coefficient, the 2x2 case of Cramer's V.
	EffectSize float64 `json:"effect_size"`
}

// SampleSize returns the per-variant sample size required to detect an
// absolute effect of minEffect over baselineRate with the given power at
// significance level alpha, using Cohen's h for the effect magnitude. The
// result never falls below MinimumSampleSize.
func SampleSize(baselineRate, minEffect, power, alpha float64) int {
	if baselineRate <= 0 || baselineRate >= 1 || minEffect <= 0 {
		return MinimumSampleSize
	}
	treatmentRate := baselineRate + minEffect
	if treatmentRate >= 1 {
		treatmentRate = 1 - 1e-9
	}

	h := cohensH(baselineRate, treatmentRate)
	if h == 0 {
		return MinimumSampleSize
	}

	zAlpha := normalQuantile(1 - alpha/2)
	zBeta := normalQuantile(power)

	n := math.Ceil(math.Pow(zAlpha+zBeta, 2) / (h * h))
	if n < MinimumSampleSize {
		return MinimumSampleSize
	}
	return int(n)
}

// cohensH is the arcsine-transformed effect size for two proportions.
func cohensH(p1, p2 float64) float64 {
	return math.Abs(2*math.Asin(math.Sqrt(p2)) - 2*math.Asin(math.Sqrt(p1)))
}

// ConfidenceInterval returns the Wilson score interval for an observed
// proportion. Wilson remains well-behaved at small n and extreme rates where
// the normal approximation collapses. Bounds are clamped to [0,1].
func ConfidenceInterval(successes, trials int, confidence float64) (lo, hi float64) {
	if trials <= 0 {
		return 0, 0
	}
	if successes < 0 {
		successes = 0
	}
	if successes > trials {
		successes = trials
	}

	z := normalQuantile(1 - (1-confidence)/2)
	n := float64(trials)
	p := float64(successes) / n

	denom := 1 + z*z/n
	center := (p + z*z/(2*n)) / denom
	margin := z * math.Sqrt(p*(1-p)/n+z*z/(4*n*n)) / denom

	lo = clamp01(center - margin)
	hi = clamp01(center + margin)
	return lo, hi
}

// TwoProportionTest runs a two-sided two-sample z-test on proportions with
// pooled variance under the null hypothesis. Zero trials on either side
// yields a neutral, non-significant result.
func TwoProportionTest(trialsA, successesA, trialsB, successesB int, confidence float64) ProportionTestResult {
	if trialsA <= 0 || trialsB <= 0 {
		return ProportionTestResult{PValue: 1}
	}

	nA, nB := float64(trialsA), float64(trialsB)
	pA := float64(successesA) / nA
	pB := float64(successesB) / nB

	pooled := (float64(successesA) + float64(successesB)) / (nA + nB)
	se := math.Sqrt(pooled * (1 - pooled) * (1/nA + 1/nB))
	if se == 0 {
		return ProportionTestResult{PValue: 1}
	}

	z := (pB - pA) / se
	pValue := 2 * (1 - normalCDF(math.Abs(z)))

	// CI of the difference uses the unpooled standard error.
	zCrit := normalQuantile(1 - (1-confidence)/2)
	seDiff := math.Sqrt(pA*(1-pA)/nA + pB*(1-pB)/nB)
	diff := pB - pA

	alpha := 1 - confidence
	return ProportionTestResult{
		ZScore:      z,
		PValue:      pValue,
		Significant: pValue < alpha,
		ConfidenceInterval: [2]float64{
			diff - zCrit*seDiff,
			diff + zCrit*seDiff,
		},
	}
}

// ChiSquareTest runs a Pearson chi-square test on the 2x2 contingency table
// formed by two (successes, trials) pairs, as a cross-check path for the
// z-test. Significance is evaluated at the 0.05 level. Degenerate tables
// (zero trials, or an all-success/all-failure margin) return a neutral
// result.
func ChiSquareTest(successesA, trialsA, successesB, trialsB int) ChiSquareResult {
	if trialsA <= 0 || trialsB <= 0 {
		return ChiSquareResult{PValue: 1}
	}

	a := float64(successesA)
	b := float64(trialsA - successesA)
	c := float64(successesB)
	d := float64(trialsB - successesB)
	n := a + b + c + d

	// Margins; a zero margin makes the expected counts degenerate.
	row1, row2 := a+b, c+d
	col1, col2 := a+c, b+d
	if col1 == 0 || col2 == 0 {
		return ChiSquareResult{PValue: 1}
	}

	statistic := n * math.Pow(a*d-b*c, 2) / (row1 * row2 * col1 * col2)
	pValue := chiSquarePValue1DF(statistic)
	phi := math.Sqrt(statistic / n)

	return ChiSquareResult{
		Statistic:   statistic,
		PValue:      pValue,
		Significant: pValue < 0.05,
		EffectSize:  phi,
	}
}

// chiSquarePValue1DF is the survival function of chi-square with one degree
// of freedom: P(X >= x) = erfc(sqrt(x/2)).
func chiSquarePValue1DF(x float64) float64 {
	if x <= 0 {
		return 1
	}
	return math.Erfc(math.Sqrt(x / 2))
}

// normalCDF is the standard normal cumulative distribution function.
func normalCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// normalQuantile is the inverse standard normal CDF (probit), computed with
// Acklam's rational approximation. Accurate to ~1e-9 over (0,1), which is
// far tighter than any decision made from it.
func normalQuantile(p float64) float64 {
	if p <= 0 {
		return math.Inf(-1)
	}
	if p >= 1 {
		return math.Inf(1)
	}

	a := [6]float64{-3.969683028665376e+01, 2.209460984245205e+02, -2.759285104469687e+02,
		1.383577518672690e+02, -3.066479806614716e+01, 2.506628277459239e+00}
	b := [5]float64{-5.447609879822406e+01, 1.615858368580409e+02, -1.556989798598866e+02,
		6.680131188771972e+01, -1.328068155288572e+01}
	c := [6]float64{-7.784894002430293e-03, -3.223964580411365e-01, -2.400758277161838e+00,
		-2.549732539343734e+00, 4.374664141464968e+00, 2.938163982698783e+00}
	d := [4]float64{7.784695709041462e-03, 3.224671290700398e-01, 2.445134137142996e+00,
		3.754408661907416e+00}

	const plow = 0.02425
	const phigh = 1 - plow

	switch {
	case p < plow:
		q := math.Sqrt(-2 * math.Log(p))
		return (((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	case p > phigh:
		q := math.Sqrt(-2 * math.Log(1-p))
		return -(((((c[0]*q+c[1])*q+c[2])*q+c[3])*q+c[4])*q + c[5]) /
			((((d[0]*q+d[1])*q+d[2])*q+d[3])*q + 1)
	default:
		q := p - 0.5
		r := q * q
		return (((((a[0]*r+a[1])*r+a[2])*r+a[3])*r+a[4])*r + a[5]) * q /
			(((((b[0]*r+b[1])*r+b[2])*r+b[3])*r+b[4])*r + 1)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
