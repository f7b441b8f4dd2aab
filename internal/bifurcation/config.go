// Package bifurcation drives a population of independent excitable cells
// through a pacing protocol and records the action-potential duration (APD)
// of every beat.
//
// A Tracker watches each cell's membrane voltage for threshold crossings:
// an up-crossing marks the start of an action potential and a down-crossing
// ends it, records its duration and schedules the next stimulus. A Driver
// advances every cell with a fixed time step until each one has produced the
// configured number of beats.
package bifurcation

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidConfig reports a configuration that cannot be run: mismatched
	// sizes, non-positive pacing cycle lengths or time steps.
	ErrInvalidConfig = errors.New("invalid bifurcation config")

	// ErrStepBudget reports a run aborted because it exceeded its step
	// budget before every cell completed, typically because a stimulus never
	// fires or the threshold is never crossed.
	ErrStepBudget = errors.New("step budget exhausted before all cells completed")
)

// Default protocol constants, matching the pacing protocol used for the
// published bifurcation diagrams.
const (
	DefaultThreshold    = -75.0 // mV
	DefaultStimulus     = -80.0 // uA/cm^2, depolarising under dV/dt = -(I_ion + I_stim)
	DefaultStimDuration = 0.5   // ms
)

// Config holds the protocol constants shared by every cell in a run.
type Config struct {
	// Threshold is the voltage whose crossing delimits an action potential.
	Threshold float64
	// Stimulus is the current applied while a stimulus window is open.
	Stimulus float64
	// StimDuration is the width of each stimulus window in ms.
	StimDuration float64
	// BeatsPerCell is the number of APDs recorded per cell.
	BeatsPerCell int
	// TrackIonic enables start/end snapshots of the model's ionic
	// variables. It has no effect when the model is not a cell.IonicModel.
	TrackIonic bool
}

// DefaultConfig returns the default protocol for the given beat count.
func DefaultConfig(beats int) Config {
	return Config{
		Threshold:    DefaultThreshold,
		Stimulus:     DefaultStimulus,
		StimDuration: DefaultStimDuration,
		BeatsPerCell: beats,
		TrackIonic:   true,
	}
}

// Validate checks the protocol constants.
func (c Config) Validate() error {
	if c.BeatsPerCell < 1 {
		return fmt.Errorf("%w: beats per cell must be at least 1, got %d", ErrInvalidConfig, c.BeatsPerCell)
	}
	if !(c.StimDuration > 0) || math.IsInf(c.StimDuration, 0) {
		return fmt.Errorf("%w: stimulus duration must be positive and finite, got %g", ErrInvalidConfig, c.StimDuration)
	}
	if math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be finite, got %g", ErrInvalidConfig, c.Threshold)
	}
	if math.IsNaN(c.Stimulus) || math.IsInf(c.Stimulus, 0) {
		return fmt.Errorf("%w: stimulus must be finite, got %g", ErrInvalidConfig, c.Stimulus)
	}
	return nil
}
