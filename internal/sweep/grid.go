// Package sweep maps a two-dimensional parameter grid (pacing cycle length
// by one model parameter) onto a flat population of cells, runs the
// bifurcation driver over it and writes the per-beat results as tables.
package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxCells bounds the grid size to keep record allocation sane.
const maxCells = 1_000_000

// Axis is one dimension of the sweep grid.
type Axis struct {
	Name   string
	Values []float64
}

// LinearAxis returns n evenly spaced values from min to max. A single-point
// axis holds min.
func LinearAxis(name string, min, max float64, n int) Axis {
	by := 1.0
	if n > 1 {
		by = (max - min) / float64(n-1)
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = by*float64(i) + min
	}
	return Axis{Name: name, Values: values}
}

// ParseAxis parses an axis specification. Accepted forms are
// "min:max:count" for evenly spaced values, a comma-separated list, or a
// single value.
func ParseAxis(name, s string) (Axis, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Axis{}, fmt.Errorf("empty %s axis", name)
	}
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) != 3 {
			return Axis{}, fmt.Errorf("invalid %s range %q: expected min:max:count", name, s)
		}
		min, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return Axis{}, fmt.Errorf("invalid min value %q: %w", parts[0], err)
		}
		max, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return Axis{}, fmt.Errorf("invalid max value %q: %w", parts[1], err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return Axis{}, fmt.Errorf("invalid count %q: %w", parts[2], err)
		}
		if n < 1 {
			return Axis{}, fmt.Errorf("count must be positive, got %d", n)
		}
		if n > maxCells {
			return Axis{}, fmt.Errorf("count %d exceeds limit of %d", n, maxCells)
		}
		return LinearAxis(name, min, max, n), nil
	}

	values, err := ParseValues(s)
	if err != nil {
		return Axis{}, err
	}
	if len(values) == 0 {
		return Axis{}, fmt.Errorf("empty %s axis", name)
	}
	return Axis{Name: name, Values: values}, nil
}

// Min returns the first value of the axis, which names output files.
func (a Axis) Min() float64 {
	if len(a.Values) == 0 {
		return 0
	}
	return a.Values[0]
}

// Grid is the PCL x variable sweep. Cell index = len(Var.Values)*i + j for
// PCL index i and variable index j, so rows are PCL-major.
type Grid struct {
	PCL Axis
	Var Axis
}

// Len returns the number of grid points (cells).
func (g Grid) Len() int { return len(g.PCL.Values) * len(g.Var.Values) }

// Index returns the cell index of PCL index i and variable index j.
func (g Grid) Index(i, j int) int { return len(g.Var.Values)*i + j }

// Point returns the PCL and variable value of cell idx.
func (g Grid) Point(idx int) (pcl, v float64) {
	n := len(g.Var.Values)
	return g.PCL.Values[idx/n], g.Var.Values[idx%n]
}

// PCLs returns the pacing cycle length of every cell in index order.
func (g Grid) PCLs() []float64 {
	out := make([]float64, 0, g.Len())
	for _, p := range g.PCL.Values {
		for range g.Var.Values {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the grid can be run.
func (g Grid) Validate() error {
	if len(g.PCL.Values) == 0 || len(g.Var.Values) == 0 {
		return fmt.Errorf("grid needs at least one PCL and one variable value")
	}
	if int64(len(g.PCL.Values))*int64(len(g.Var.Values)) > maxCells {
		return fmt.Errorf("grid of %d x %d exceeds limit of %d cells", len(g.PCL.Values), len(g.Var.Values), maxCells)
	}
	for _, p := range g.PCL.Values {
		if !(p > 0) || math.IsInf(p, 0) {
			return fmt.Errorf("pacing cycle length must be positive and finite, got %g", p)
		}
	}
	for _, v := range g.Var.Values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s value must be finite, got %g", g.Var.Name, v)
		}
	}
	return nil
}
