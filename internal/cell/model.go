// Package cell defines the excitable cell capability stepped by the
// bifurcation driver, along with the concrete ionic models shipped with
// apdbif.
//
// A Model is a population of independent cells sharing one set of equations.
// Each cell is addressed by index and advanced with a fixed time step and an
// applied stimulus current. Voltages are in mV, time in ms, and currents
// follow the dV/dt = -(I_ion + I_stim) sign convention, so a depolarising
// stimulus is negative.
package cell

import (
	"errors"
	"fmt"
	"sort"
)

// Model is a population of excitable cells with per-cell membrane voltage.
// Step mutates only the state of cell id, so distinct ids may be stepped
// from different goroutines.
type Model interface {
	Len() int
	Voltage(id int) float64
	Step(id int, dt, stim float64)
}

// IonicModel is a Model that also exposes intracellular state scalars
// (concentrations, slow gates) for beat-by-beat snapshots.
type IonicModel interface {
	Model
	IonicNames() []string
	Ionic(id, k int) float64
}

// Tunable is a Model whose per-cell parameters can be set by name.
type Tunable interface {
	Params() []string
	Param(id int, name string) (float64, error)
	SetParam(id int, name string, v float64) error
}

// ErrNotTunable is returned by Apply for models without named parameters.
var ErrNotTunable = errors.New("model has no tunable parameters")

// Apply sets params on cell id in name order.
func Apply(m Model, id int, params map[string]float64) error {
	if len(params) == 0 {
		return nil
	}
	t, ok := m.(Tunable)
	if !ok {
		return ErrNotTunable
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := t.SetParam(id, name, params[name]); err != nil {
			return err
		}
	}
	return nil
}

// paramSet stores named per-cell parameters. Models embed it to satisfy
// Tunable.
type paramSet struct {
	names  []string
	values map[string][]float64
}

func newParamSet(n int, defaults map[string]float64) paramSet {
	ps := paramSet{values: make(map[string][]float64, len(defaults))}
	for name, def := range defaults {
		vals := make([]float64, n)
		for i := range vals {
			vals[i] = def
		}
		ps.values[name] = vals
		ps.names = append(ps.names, name)
	}
	sort.Strings(ps.names)
	return ps
}

// Params returns the parameter names in sorted order.
func (ps *paramSet) Params() []string {
	out := make([]string, len(ps.names))
	copy(out, ps.names)
	return out
}

// Param returns the value of the named parameter for cell id.
func (ps *paramSet) Param(id int, name string) (float64, error) {
	vals, ok := ps.values[name]
	if !ok {
		return 0, fmt.Errorf("unknown parameter %q", name)
	}
	if id < 0 || id >= len(vals) {
		return 0, fmt.Errorf("cell index %d out of range [0,%d)", id, len(vals))
	}
	return vals[id], nil
}

// SetParam sets the named parameter for cell id.
func (ps *paramSet) SetParam(id int, name string, v float64) error {
	vals, ok := ps.values[name]
	if !ok {
		return fmt.Errorf("unknown parameter %q", name)
	}
	if id < 0 || id >= len(vals) {
		return fmt.Errorf("cell index %d out of range [0,%d)", id, len(vals))
	}
	vals[id] = v
	return nil
}

// fill returns a slice of length n with every element set to v.
func fill(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
