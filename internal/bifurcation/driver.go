package bifurcation

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/apdbif/internal/cell"
)

// ctxCheckInterval is how many steps run between context checks.
const ctxCheckInterval = 4096

// budgetFactor scales the nominal step count of a run to form the default
// step budget, leaving room for cells that skip stimuli (2:1, 3:1 block).
const budgetFactor = 4

// Result summarises a completed run.
type Result struct {
	// Steps is the number of fixed steps taken. For parallel runs it is the
	// largest step count of any shard.
	Steps int64
	// EndTime is the simulation time after the last step.
	EndTime float64
}

// Driver advances every cell of a Tracker until each has recorded all of
// its beats. It owns the completion counter, which only grows under mu so
// that OnCellDone observes the counts 1, 2, ..., total in order.
type Driver[M cell.Model] struct {
	tracker  *Tracker[M]
	maxSteps int64

	// OnCellDone, when set, is called each time a cell records its final
	// beat with the cell id and the completion count so far. Calls are
	// serialised, including during RunParallel.
	OnCellDone func(id, done, total int)

	mu    sync.Mutex
	done  atomic.Int64
	steps int64
}

// NewDriver returns a driver for tr. maxSteps caps the number of fixed
// steps; zero or negative derives a budget from the protocol.
func NewDriver[M cell.Model](tr *Tracker[M], maxSteps int64) *Driver[M] {
	return &Driver[M]{tracker: tr, maxSteps: maxSteps}
}

// Tracker returns the driven tracker.
func (d *Driver[M]) Tracker() *Tracker[M] { return d.tracker }

// Done returns the number of completed cells.
func (d *Driver[M]) Done() int { return int(d.done.Load()) }

// Steps returns the number of steps taken so far.
func (d *Driver[M]) Steps() int64 { return d.steps }

// AdvanceAll advances every cell by one step at time t, in index order.
func (d *Driver[M]) AdvanceAll(dt, t float64) {
	total := d.tracker.Len()
	for id := 0; id < total; id++ {
		if d.tracker.AdvanceOne(id, dt, t) {
			d.finish(id, total)
		}
	}
}

// Run advances all cells from start in steps of dt until every cell has
// completed. It fails with ErrStepBudget when the step budget runs out and
// returns ctx.Err() if ctx is cancelled.
func (d *Driver[M]) Run(ctx context.Context, dt, start float64) (Result, error) {
	budget, err := d.budget(dt, start)
	if err != nil {
		return Result{}, err
	}
	total := d.tracker.Len()
	t := start
	var steps int64
	for d.Done() != total {
		if done := d.Done(); done > total {
			return Result{Steps: steps, EndTime: t}, fmt.Errorf("completion counter %d exceeds cell count %d", done, total)
		}
		if steps >= budget {
			return Result{Steps: steps, EndTime: t}, fmt.Errorf("%w: %d of %d cells complete after %d steps (t=%g)", ErrStepBudget, d.Done(), total, steps, t)
		}
		if steps%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Result{Steps: steps, EndTime: t}, err
			}
		}
		d.AdvanceAll(dt, t)
		t += dt
		steps++
		d.steps++
	}
	return Result{Steps: steps, EndTime: t}, nil
}

// RunParallel is Run with the cells split into contiguous shards, each
// advanced by its own goroutine. Cells are independent and every shard
// accumulates time identically, so records match a sequential Run bit for
// bit. Completions from all shards share the driver's counter.
func (d *Driver[M]) RunParallel(ctx context.Context, dt, start float64, workers int) (Result, error) {
	total := d.tracker.Len()
	if workers > total {
		workers = total
	}
	if workers <= 1 {
		return d.Run(ctx, dt, start)
	}
	budget, err := d.budget(dt, start)
	if err != nil {
		return Result{}, err
	}

	results := make([]Result, workers)

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo := w * total / workers
		hi := (w + 1) * total / workers
		g.Go(func() error {
			remaining := 0
			for id := lo; id < hi; id++ {
				if d.tracker.Phase(id) != Done {
					remaining++
				}
			}
			t := start
			var steps int64
			defer func() { results[w] = Result{Steps: steps, EndTime: t} }()
			for remaining > 0 {
				if steps >= budget {
					return fmt.Errorf("%w: cells [%d,%d) have %d incomplete after %d steps (t=%g)", ErrStepBudget, lo, hi, remaining, steps, t)
				}
				if steps%ctxCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				for id := lo; id < hi; id++ {
					if d.tracker.AdvanceOne(id, dt, t) {
						remaining--
						d.finish(id, total)
					}
				}
				t += dt
				steps++
			}
			return nil
		})
	}
	err = g.Wait()

	var res Result
	for _, r := range results {
		if r.Steps > res.Steps {
			res = r
		}
	}
	d.steps += res.Steps
	return res, err
}

// finish counts cell id as complete and reports it. Counting and the
// callback happen under one lock, so no report overtakes a later count.
func (d *Driver[M]) finish(id, total int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	done := int(d.done.Add(1))
	if d.OnCellDone != nil {
		d.OnCellDone(id, done, total)
	}
}

// budget returns the step cap for a run with the given step and start time.
func (d *Driver[M]) budget(dt, start float64) (int64, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return 0, fmt.Errorf("%w: time step must be positive and finite, got %g", ErrInvalidConfig, dt)
	}
	if math.IsNaN(start) || math.IsInf(start, 0) {
		return 0, fmt.Errorf("%w: start time must be finite, got %g", ErrInvalidConfig, start)
	}
	if d.maxSteps > 0 {
		return d.maxSteps, nil
	}
	return DefaultStepBudget(d.tracker.maxPCL(), d.tracker.Config().BeatsPerCell, dt, start), nil
}

// DefaultStepBudget returns the step cap used when none is configured: the
// steps needed to pace beats+2 cycles of the longest PCL from start, times
// a margin for conduction block.
func DefaultStepBudget(maxPCL float64, beats int, dt, start float64) int64 {
	span := maxPCL*float64(beats+2) - math.Min(start, 0)
	return int64(math.Ceil(span/dt)) * budgetFactor
}
