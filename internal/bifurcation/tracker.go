package bifurcation

import (
	"fmt"
	"math"

	"github.com/banshee-data/apdbif/internal/cell"
)

// Phase is the position of a cell in its pacing cycle.
type Phase int

const (
	// AwaitingFirstUpstroke: no action potential has started yet.
	AwaitingFirstUpstroke Phase = iota
	// InAP: voltage is above threshold after an up-crossing.
	InAP
	// AwaitingUpstroke: repolarised, waiting for the next stimulus.
	AwaitingUpstroke
	// Done: every beat has been recorded. Absorbing.
	Done
)

func (p Phase) String() string {
	switch p {
	case AwaitingFirstUpstroke:
		return "awaiting_first_upstroke"
	case InAP:
		return "in_ap"
	case AwaitingUpstroke:
		return "awaiting_upstroke"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Tracker detects action potentials in each cell of a model and records
// their durations. It is generic over the model so the per-step calls are
// statically dispatched for concrete model types.
//
// AdvanceOne may be called concurrently for distinct cell ids.
type Tracker[M cell.Model] struct {
	cfg   Config
	model M
	ionic cell.IonicModel

	pcl      []float64
	nextStim []float64
	apStart  []float64
	stim     []float64
	// beat is the index of the last completed beat; -1 until the first
	// down-crossing.
	beat  []int
	phase []Phase

	records   *Records
	snapshots *Snapshots
}

// NewTracker allocates tracking state and records for every cell of model.
// pcls holds the pacing cycle length of each cell and must match the
// model's cell count.
func NewTracker[M cell.Model](model M, pcls []float64, cfg Config) (*Tracker[M], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := model.Len()
	if n < 1 {
		return nil, fmt.Errorf("%w: model has no cells", ErrInvalidConfig)
	}
	if len(pcls) != n {
		return nil, fmt.Errorf("%w: %d pacing cycle lengths for %d cells", ErrInvalidConfig, len(pcls), n)
	}
	for id, p := range pcls {
		if !(p > 0) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("%w: cell %d pacing cycle length must be positive and finite, got %g", ErrInvalidConfig, id, p)
		}
	}
	if n > math.MaxInt/(2*cfg.BeatsPerCell) {
		return nil, fmt.Errorf("%w: %d cells x %d beats exceeds record capacity", ErrInvalidConfig, n, cfg.BeatsPerCell)
	}

	tr := &Tracker[M]{
		cfg:      cfg,
		model:    model,
		pcl:      append([]float64(nil), pcls...),
		nextStim: make([]float64, n),
		apStart:  make([]float64, n),
		stim:     make([]float64, n),
		beat:     make([]int, n),
		phase:    make([]Phase, n),
		records:  newRecords(n, cfg.BeatsPerCell),
	}
	for id := range tr.beat {
		tr.beat[id] = -1
	}
	if cfg.TrackIonic {
		if im, ok := any(model).(cell.IonicModel); ok && len(im.IonicNames()) > 0 {
			tr.ionic = im
			tr.snapshots = newSnapshots(im.IonicNames(), n, cfg.BeatsPerCell)
		}
	}
	return tr, nil
}

// AdvanceOne steps cell id by dt at simulation time t and updates its beat
// bookkeeping. It reports whether this call recorded the cell's final beat.
// Calls for completed cells are no-ops.
func (tr *Tracker[M]) AdvanceOne(id int, dt, t float64) bool {
	if id < 0 || id >= len(tr.beat) || tr.phase[id] == Done {
		return false
	}
	beats := tr.cfg.BeatsPerCell
	th := tr.cfg.Threshold

	vOld := tr.model.Voltage(id)
	tr.stim[id] = tr.stimulusAt(id, dt, t)
	tr.model.Step(id, dt, tr.stim[id])
	vNew := tr.model.Voltage(id)

	switch {
	case vOld < th && vNew >= th:
		tr.apStart[id] = t
		tr.phase[id] = InAP
		if tr.snapshots != nil && tr.beat[id] >= -1 && tr.beat[id] < beats-1 {
			tr.snapshots.capture(tr.ionic, id, tr.snapshots.StartIndex(id, tr.beat[id]+1))
		}

	case vOld >= th && vNew < th:
		tr.beat[id]++
		b := tr.beat[id]
		tr.nextStim[id] += tr.pcl[id]
		for tr.nextStim[id] < t-dt/4 {
			tr.nextStim[id] += tr.pcl[id]
		}
		if tr.snapshots != nil {
			tr.snapshots.capture(tr.ionic, id, tr.snapshots.EndIndex(id, b))
		}
		tr.records.APD[tr.records.Index(id, b)] = t - tr.apStart[id]
		if b == beats-1 {
			tr.phase[id] = Done
			return true
		}
		tr.phase[id] = AwaitingUpstroke
	}
	return false
}

// stimulusAt returns the current to apply to cell id over [t, t+dt). The
// quarter-step margins keep accumulated floating point error in t from
// opening or closing a window one step early. Nothing fires before t = 0.
func (tr *Tracker[M]) stimulusAt(id int, dt, t float64) float64 {
	next := tr.nextStim[id]
	if t > -dt/4 && t > next-dt/4 && t < next+tr.cfg.StimDuration-dt/4 {
		return tr.cfg.Stimulus
	}
	return 0
}

// Len returns the number of tracked cells.
func (tr *Tracker[M]) Len() int { return len(tr.beat) }

// Model returns the stepped model.
func (tr *Tracker[M]) Model() M { return tr.model }

// Config returns the protocol constants.
func (tr *Tracker[M]) Config() Config { return tr.cfg }

// Records returns the APD records.
func (tr *Tracker[M]) Records() *Records { return tr.records }

// Snapshots returns the ionic snapshots, or nil when they are not tracked.
func (tr *Tracker[M]) Snapshots() *Snapshots { return tr.snapshots }

// PCL returns the pacing cycle length of cell id.
func (tr *Tracker[M]) PCL(id int) float64 { return tr.pcl[id] }

// NextStimulusTime returns the scheduled start of cell id's next stimulus.
func (tr *Tracker[M]) NextStimulusTime(id int) float64 { return tr.nextStim[id] }

// APStart returns the time of cell id's most recent up-crossing.
func (tr *Tracker[M]) APStart(id int) float64 { return tr.apStart[id] }

// Stimulus returns the current applied to cell id in its last step.
func (tr *Tracker[M]) Stimulus(id int) float64 { return tr.stim[id] }

// CompletedBeats returns the number of APDs recorded for cell id.
func (tr *Tracker[M]) CompletedBeats(id int) int { return tr.beat[id] + 1 }

// Phase returns the pacing phase of cell id.
func (tr *Tracker[M]) Phase(id int) Phase { return tr.phase[id] }

// maxPCL returns the longest pacing cycle length in the population.
func (tr *Tracker[M]) maxPCL() float64 {
	m := 0.0
	for _, p := range tr.pcl {
		if p > m {
			m = p
		}
	}
	return m
}
