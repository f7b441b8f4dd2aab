package sweep

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/apdbif/internal/bifurcation"
	"github.com/banshee-data/apdbif/internal/cell"
	"github.com/banshee-data/apdbif/internal/fsutil"
	"github.com/banshee-data/apdbif/internal/monitoring"
	"github.com/banshee-data/apdbif/internal/timeutil"
)

// Options configures one sweep run.
type Options struct {
	// RunID labels log lines and metrics. A random UUID is used when empty.
	RunID string
	// Model is the registered cell model name.
	Model string
	// Grid is the PCL x variable grid. Grid.Var.Name is the model parameter
	// being swept; an unnamed variable axis only labels the output rows.
	Grid Grid
	// Params sets fixed model parameters on every cell before the swept
	// variable is applied.
	Params map[string]float64

	Protocol bifurcation.Config
	DT       float64
	Start    float64
	// Discard is the number of leading beats left out of the output tables.
	Discard  int
	MaxSteps int64
	Workers  int

	Metrics *monitoring.RunMetrics
	Clock   timeutil.Clock
}

// Result holds the records of a finished run.
type Result struct {
	RunID     string
	Model     string
	Grid      Grid
	Discard   int
	DT        float64
	Records   *bifurcation.Records
	Snapshots *bifurcation.Snapshots
	Steps     int64
	EndTime   float64
	Elapsed   time.Duration
}

// Run builds the cell population for opts.Grid, paces it until every cell
// has recorded Protocol.BeatsPerCell beats and returns the records.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if err := opts.Grid.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", bifurcation.ErrInvalidConfig, err)
	}
	beats := opts.Protocol.BeatsPerCell
	if opts.Discard < 0 || opts.Discard >= beats {
		return nil, fmt.Errorf("%w: discard must be in [0,%d), got %d", bifurcation.ErrInvalidConfig, beats, opts.Discard)
	}
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	logf := monitoring.Prefixed("sweep")

	model, err := cell.New(opts.Model, opts.Grid.Len())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", bifurcation.ErrInvalidConfig, err)
	}
	if err := configure(model, opts.Grid, opts.Params); err != nil {
		return nil, err
	}
	tr, err := bifurcation.NewTracker(model, opts.Grid.PCLs(), opts.Protocol)
	if err != nil {
		return nil, err
	}

	d := bifurcation.NewDriver(tr, opts.MaxSteps)
	total := tr.Len()
	every := max(1, total/10)
	d.OnCellDone = func(id, done, total int) {
		opts.Metrics.CellDone(done)
		if done%every == 0 || done == total {
			pcl, v := opts.Grid.Point(id)
			logf("run %s: %d/%d cells complete (last PCL=%g %s=%g)", runID, done, total, pcl, opts.Grid.Var.Name, v)
		}
	}

	logf("run %s: model=%s cells=%d (%d PCL x %d %s) beats=%d discard=%d dt=%g workers=%d",
		runID, opts.Model, total, len(opts.Grid.PCL.Values), len(opts.Grid.Var.Values), opts.Grid.Var.Name,
		beats, opts.Discard, opts.DT, opts.Workers)

	started := clock.Now()
	res, err := d.RunParallel(ctx, opts.DT, opts.Start, opts.Workers)
	elapsed := clock.Since(started)
	opts.Metrics.ObserveRun(total, res.Steps, recordedBeats(tr), elapsed)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	logf("run %s: finished %d steps to t=%g in %s", runID, res.Steps, res.EndTime, elapsed.Round(time.Millisecond))

	return &Result{
		RunID:     runID,
		Model:     opts.Model,
		Grid:      opts.Grid,
		Discard:   opts.Discard,
		DT:        opts.DT,
		Records:   tr.Records(),
		Snapshots: tr.Snapshots(),
		Steps:     res.Steps,
		EndTime:   res.EndTime,
		Elapsed:   elapsed,
	}, nil
}

// configure applies the fixed parameters and then the swept variable to
// every cell.
func configure(m cell.Model, g Grid, params map[string]float64) error {
	for id := 0; id < m.Len(); id++ {
		if err := cell.Apply(m, id, params); err != nil {
			return fmt.Errorf("%w: %w", bifurcation.ErrInvalidConfig, err)
		}
		if g.Var.Name == "" {
			continue
		}
		_, v := g.Point(id)
		if err := cell.Apply(m, id, map[string]float64{g.Var.Name: v}); err != nil {
			return fmt.Errorf("%w: sweep variable: %w", bifurcation.ErrInvalidConfig, err)
		}
	}
	return nil
}

func recordedBeats[M cell.Model](tr *bifurcation.Tracker[M]) int {
	n := 0
	for id := 0; id < tr.Len(); id++ {
		n += tr.CompletedBeats(id)
	}
	return n
}

// SummaryTolerance is the APD tolerance used for period detection: two time
// steps, the resolution of a threshold crossing.
func (r *Result) SummaryTolerance() float64 { return 2 * r.DT }

// Summaries returns the steady-state summary of every grid point in index
// order.
func (r *Result) Summaries() []Summary {
	out := make([]Summary, r.Grid.Len())
	for idx := range out {
		pcl, v := r.Grid.Point(idx)
		out[idx] = Summarize(pcl, v, r.Records.Retained(idx, r.Discard), r.SummaryTolerance())
	}
	return out
}

// WriteTables writes the APD table, one table per tracked ionic variable and
// the summary table into dir, and returns the paths written.
func (r *Result) WriteTables(fsys fsutil.FileSystem, dir string) ([]string, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir %s: %w", dir, err)
	}
	pclMin, varMin := r.Grid.PCL.Min(), r.Grid.Var.Min()
	var paths []string

	path := filepath.Join(dir, FileName(r.Model, KindAPD, pclMin, varMin))
	err := writeTable(fsys, path, func(tw *TableWriter) error {
		for idx := 0; idx < r.Grid.Len(); idx++ {
			pcl, v := r.Grid.Point(idx)
			if err := tw.WriteRow(pcl, v, r.Records.Retained(idx, r.Discard)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return paths, err
	}
	paths = append(paths, path)

	if r.Snapshots != nil {
		for k, name := range r.Snapshots.Names {
			path := filepath.Join(dir, FileName(r.Model, name, pclMin, varMin))
			err := writeTable(fsys, path, func(tw *TableWriter) error {
				for idx := 0; idx < r.Grid.Len(); idx++ {
					pcl, v := r.Grid.Point(idx)
					if err := tw.WriteRow(pcl, v, r.Snapshots.Retained(k, idx, r.Discard)); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return paths, err
			}
			paths = append(paths, path)
		}
	}

	path = filepath.Join(dir, FileName(r.Model, KindSummary, pclMin, varMin))
	err = writeTable(fsys, path, func(tw *TableWriter) error {
		if err := tw.WriteHeader(SummaryHeader(r.Grid.Var.Name)); err != nil {
			return err
		}
		for _, s := range r.Summaries() {
			if err := tw.WriteRow(s.PCL, s.Var, s.Values()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return paths, err
	}
	return append(paths, path), nil
}

func writeTable(fsys fsutil.FileSystem, path string, rows func(*TableWriter) error) (err error) {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, cerr)
		}
	}()

	tw := NewTableWriter(f)
	if err := rows(tw); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
