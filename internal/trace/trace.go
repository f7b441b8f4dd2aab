// Package trace records the membrane voltage of a single paced cell at a
// fixed sampling interval, for plotting individual action potentials.
package trace

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/banshee-data/apdbif/internal/bifurcation"
	"github.com/banshee-data/apdbif/internal/cell"
	"github.com/banshee-data/apdbif/internal/fsutil"
	"github.com/banshee-data/apdbif/internal/monitoring"
	"github.com/banshee-data/apdbif/internal/sweep"
)

const (
	// DefaultSaveInterval is the sampling interval in ms.
	DefaultSaveInterval = 1.0
	// lead is how long before the first retained beat sampling starts, in ms.
	lead = 100.0

	ctxCheckInterval = 4096
)

// Options configures a trace.
type Options struct {
	Model string
	// Variable names the parameter set to Value. Empty leaves the model's
	// defaults and only labels the output file.
	Variable string
	Value    float64
	Params   map[string]float64

	PCL          float64
	DT           float64
	Start        float64
	Beats        int
	Discard      int
	Stimulus     float64
	StimDuration float64
	// SaveInterval defaults to DefaultSaveInterval when zero.
	SaveInterval float64
}

// Sample is one row of the trace. T is relative to the first retained beat.
type Sample struct {
	T     float64
	V     float64
	Ionic []float64
}

// Trace is a recorded single-cell run.
type Trace struct {
	Model   string
	PCL     float64
	Value   float64
	Names   []string
	Samples []Sample
	// Onsets are the simulation times at which stimuli began.
	Onsets []float64
}

func (o Options) validate() error {
	switch {
	case !(o.PCL > 0) || math.IsInf(o.PCL, 0):
		return fmt.Errorf("%w: pacing cycle length must be positive, got %g", bifurcation.ErrInvalidConfig, o.PCL)
	case !(o.DT > 0) || math.IsInf(o.DT, 0):
		return fmt.Errorf("%w: time step must be positive, got %g", bifurcation.ErrInvalidConfig, o.DT)
	case math.IsNaN(o.Start) || math.IsInf(o.Start, 0):
		return fmt.Errorf("%w: start time must be finite, got %g", bifurcation.ErrInvalidConfig, o.Start)
	case o.Beats < 1:
		return fmt.Errorf("%w: beats must be at least 1, got %d", bifurcation.ErrInvalidConfig, o.Beats)
	case o.Discard < 0 || o.Discard >= o.Beats:
		return fmt.Errorf("%w: discard must be in [0,%d), got %d", bifurcation.ErrInvalidConfig, o.Beats, o.Discard)
	case !(o.StimDuration > 0):
		return fmt.Errorf("%w: stimulus duration must be positive, got %g", bifurcation.ErrInvalidConfig, o.StimDuration)
	case o.SaveInterval < 0:
		return fmt.Errorf("%w: save interval must be non-negative, got %g", bifurcation.ErrInvalidConfig, o.SaveInterval)
	}
	return nil
}

// Run paces one cell from opts.Start until Beats+1 cycles have elapsed and
// samples it every SaveInterval from lead ms before beat Discard onwards.
//
// Stimuli use the same window as the bifurcation tracker, but the schedule
// advances by one PCL whenever time passes half a cycle beyond the current
// stimulus, independent of the cell's response.
func Run(ctx context.Context, opts Options) (*Trace, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	save := opts.SaveInterval
	if save == 0 {
		save = DefaultSaveInterval
	}

	m, err := cell.New(opts.Model, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bifurcation.ErrInvalidConfig, err)
	}
	if err := cell.Apply(m, 0, opts.Params); err != nil {
		return nil, fmt.Errorf("%w: %w", bifurcation.ErrInvalidConfig, err)
	}
	if opts.Variable != "" {
		if err := cell.Apply(m, 0, map[string]float64{opts.Variable: opts.Value}); err != nil {
			return nil, fmt.Errorf("%w: %w", bifurcation.ErrInvalidConfig, err)
		}
	}

	tr := &Trace{Model: opts.Model, PCL: opts.PCL, Value: opts.Value}
	ionic, _ := m.(cell.IonicModel)
	if ionic != nil {
		tr.Names = ionic.IonicNames()
	}

	logf := monitoring.Prefixed("trace")
	dt, pcl := opts.DT, opts.PCL
	origin := pcl * float64(opts.Discard)
	end := pcl*float64(opts.Beats) + pcl - dt/2
	nextSave := origin - lead
	nextLog := 0.0
	stimTime := 0.0
	active := false

	t := opts.Start
	for steps := 0; t < end; steps++ {
		if steps%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		stim := 0.0
		on := t > -dt/4 && t > stimTime-dt/4 && t < stimTime+opts.StimDuration-dt/4
		if on {
			stim = opts.Stimulus
			if !active {
				tr.Onsets = append(tr.Onsets, t)
			}
		}
		active = on

		m.Step(0, dt, stim)
		t += dt
		if t > stimTime+pcl/2 {
			stimTime += pcl
		}
		if t > nextSave-dt/4 {
			tr.Samples = append(tr.Samples, sample(m, ionic, t-origin, len(tr.Names)))
			nextSave += save
		}
		if t > nextLog-dt/4 {
			logf("t=%g v=%g", t, m.Voltage(0))
			nextLog += pcl
		}
	}
	return tr, nil
}

func sample(m cell.Model, ionic cell.IonicModel, t float64, n int) Sample {
	s := Sample{T: t, V: m.Voltage(0)}
	if n > 0 {
		s.Ionic = make([]float64, n)
		for k := range s.Ionic {
			s.Ionic[k] = ionic.Ionic(0, k)
		}
	}
	return s
}

// FileName returns the trace file name, e.g. "MSap_PCL_400_VAR_150.txt".
func (tr *Trace) FileName() string {
	return sweep.FileName(tr.Model, sweep.KindAP, tr.PCL, tr.Value)
}

// Write writes the trace as tab-separated rows of t, v and the ionic
// variables into dir and returns the path written.
func (tr *Trace) Write(fsys fsutil.FileSystem, dir string) (path string, err error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir %s: %w", dir, err)
	}
	path = filepath.Join(dir, tr.FileName())
	f, err := fsys.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	tw := sweep.NewTableWriter(f)
	row := make([]float64, 0, 2+len(tr.Names))
	for _, s := range tr.Samples {
		row = append(row[:0], s.T, s.V)
		row = append(row, s.Ionic...)
		if err := tw.WriteValues(row); err != nil {
			return "", fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
