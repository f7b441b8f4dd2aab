package sweep

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MaxPeriod is the longest beat-to-beat period DetectPeriod looks for.
const MaxPeriod = 8

// Summary describes the retained APD series of one grid point.
type Summary struct {
	PCL    float64
	Var    float64
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	// Period is the smallest p for which the series repeats every p beats
	// within tolerance: 1 for a 1:1 steady state, 2 for alternans. Zero when
	// no period up to MaxPeriod fits.
	Period int
}

// Summarize computes the summary of an APD series.
func Summarize(pcl, v float64, apds []float64, tol float64) Summary {
	s := Summary{PCL: pcl, Var: v}
	if len(apds) == 0 {
		return s
	}
	s.Mean = stat.Mean(apds, nil)
	if len(apds) > 1 {
		s.StdDev = stat.StdDev(apds, nil)
	}
	s.Min = floats.Min(apds)
	s.Max = floats.Max(apds)
	s.Period = DetectPeriod(apds, tol)
	return s
}

// DetectPeriod returns the smallest period p <= MaxPeriod such that
// |x[k] - x[k-p]| <= tol for every k >= p, considering only periods that
// repeat at least twice in x. It returns 0 when none fits.
func DetectPeriod(x []float64, tol float64) int {
	for p := 1; p <= MaxPeriod && 2*p <= len(x); p++ {
		diffs := make([]float64, len(x)-p)
		floats.SubTo(diffs, x[p:], x[:len(x)-p])
		if floats.Norm(diffs, math.Inf(1)) <= tol {
			return p
		}
	}
	return 0
}

// Values returns the summary columns after PCL and variable.
func (s Summary) Values() []float64 {
	return []float64{s.Mean, s.StdDev, s.Min, s.Max, float64(s.Period)}
}

// SummaryHeader returns the column names of the summary table.
func SummaryHeader(variable string) []string {
	if variable == "" {
		variable = "var"
	}
	return []string{"pcl", variable, "mean", "stddev", "min", "max", "period"}
}
