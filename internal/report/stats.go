package report

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// significanceLevel is the p-value threshold for calling a response-time
// difference significant.
const significanceLevel = 0.05

// TTestResult summarizes a Welch two-sample t-test.
type TTestResult struct {
	TStat       float64
	PValue      float64
	Significant bool
}

// welchTTest compares the means of two samples without assuming equal
// variances. Samples with fewer than two observations yield a neutral
// result (p = 1).
func welchTTest(a, b []float64) TTestResult {
	if len(a) < 2 || len(b) < 2 {
		return TTestResult{PValue: 1}
	}
	meanA, varA := stat.MeanVariance(a, nil)
	meanB, varB := stat.MeanVariance(b, nil)
	nA, nB := float64(len(a)), float64(len(b))

	se := varA/nA + varB/nB
	if se == 0 {
		return TTestResult{PValue: 1}
	}
	t := (meanA - meanB) / math.Sqrt(se)

	// Welch-Satterthwaite degrees of freedom.
	df := se * se / (varA*varA/(nA*nA*(nA-1)) + varB*varB/(nB*nB*(nB-1)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p := 2 * dist.CDF(-math.Abs(t))

	return TTestResult{
		TStat:       t,
		PValue:      p,
		Significant: p < significanceLevel,
	}
}

// mean returns the arithmetic mean, 0 for an empty sample.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}
