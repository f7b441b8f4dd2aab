package bifurcation

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/apdbif/internal/cell"
)

type completion struct{ id, done, total int }

func TestRunCompletionCounter(t *testing.T) {
	tr := newToyTracker(t, newSquareCell(2, 1, 1), []float64{2, 4}, toyConfig(4))
	d := NewDriver(tr, 0)

	var got []completion
	d.OnCellDone = func(id, done, total int) {
		got = append(got, completion{id, done, total})
	}

	if _, err := d.Run(context.Background(), 1, 0); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []completion{{0, 1, 2}, {1, 2, 2}}
	if diff := cmp.Diff(want, got, cmp.AllowUnexported(completion{})); diff != "" {
		t.Errorf("completions (-want +got):\n%s", diff)
	}
	if d.Done() != 2 {
		t.Errorf("Done() = %d, want 2", d.Done())
	}
	if d.Steps() != 14 {
		t.Errorf("Steps() = %d, want 14", d.Steps())
	}

	// a finished driver returns immediately
	res, err := d.Run(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if res.Steps != 0 {
		t.Errorf("second Run took %d steps, want 0", res.Steps)
	}
	if len(got) != 2 {
		t.Errorf("second Run reported %d extra completions", len(got)-2)
	}
}

func TestRunStepBudget(t *testing.T) {
	cfg := toyConfig(3)
	cfg.Stimulus = 0 // the toy cell never fires
	tr := newToyTracker(t, newSquareCell(1, 300, 0.1), []float64{500}, cfg)

	d := NewDriver(tr, 100)
	res, err := d.Run(context.Background(), 0.1, 0)
	if !errors.Is(err, ErrStepBudget) {
		t.Fatalf("expected ErrStepBudget, got %v", err)
	}
	if res.Steps != 100 {
		t.Errorf("Steps = %d, want 100", res.Steps)
	}
	if d.Done() != 0 {
		t.Errorf("Done() = %d, want 0", d.Done())
	}
}

func TestRunDefaultBudget(t *testing.T) {
	testCases := []struct {
		name  string
		start float64
		want  int64
	}{
		{"rest_interval", -100, 20800},
		{"positive_start", 50, 20000},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DefaultStepBudget(500, 3, 0.5, tc.start); got != tc.want {
				t.Errorf("DefaultStepBudget() = %d, want %d", got, tc.want)
			}
		})
	}

	cfg := toyConfig(2)
	cfg.Stimulus = 0
	tr := newToyTracker(t, newSquareCell(1, 1, 1), []float64{10}, cfg)
	if _, err := NewDriver(tr, 0).Run(context.Background(), 1, 0); !errors.Is(err, ErrStepBudget) {
		t.Errorf("expected ErrStepBudget from the derived budget, got %v", err)
	}
}

func TestRunInvalidStep(t *testing.T) {
	tr := newToyTracker(t, newSquareCell(1, 1, 1), []float64{2}, toyConfig(1))
	d := NewDriver(tr, 0)

	for _, dt := range []float64{0, -0.1} {
		if _, err := d.Run(context.Background(), dt, 0); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("dt=%g: expected ErrInvalidConfig, got %v", dt, err)
		}
	}
	if _, err := d.RunParallel(context.Background(), 0, 0, 4); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("RunParallel: expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	tr := newToyTracker(t, newSquareCell(1, 300, 0.1), []float64{500}, toyConfig(3))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewDriver(tr, 0).Run(ctx, 0.1, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestRunParallelMatchesSequential(t *testing.T) {
	pcls := []float64{2, 4, 3, 5, 6}

	seq := newToyTracker(t, newSquareCell(len(pcls), 1, 1), pcls, toyConfig(4))
	seqRes, err := NewDriver(seq, 0).Run(context.Background(), 1, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	par := newToyTracker(t, newSquareCell(len(pcls), 1, 1), pcls, toyConfig(4))
	pd := NewDriver(par, 0)
	var calls int
	pd.OnCellDone = func(_, _, _ int) { calls++ }
	parRes, err := pd.RunParallel(context.Background(), 1, 0, 3)
	if err != nil {
		t.Fatalf("RunParallel: %v", err)
	}

	if diff := cmp.Diff(seqRes, parRes); diff != "" {
		t.Errorf("result mismatch (-seq +par):\n%s", diff)
	}
	if pd.Done() != len(pcls) {
		t.Errorf("Done() = %d, want %d", pd.Done(), len(pcls))
	}
	if calls != len(pcls) {
		t.Errorf("OnCellDone called %d times, want %d", calls, len(pcls))
	}
	if diff := cmp.Diff(seq.Records(), par.Records()); diff != "" {
		t.Errorf("records mismatch (-seq +par):\n%s", diff)
	}
	if diff := cmp.Diff(seq.Snapshots(), par.Snapshots()); diff != "" {
		t.Errorf("snapshots mismatch (-seq +par):\n%s", diff)
	}
}

// TestRunParallelCompletionOrder finishes cells on many shards at nearly the
// same step and checks every callback sees the next count in sequence.
func TestRunParallelCompletionOrder(t *testing.T) {
	const cells = 2000
	pcls := make([]float64, cells)
	for i := range pcls {
		pcls[i] = float64(3 + i%7)
	}

	for trial := 0; trial < 10; trial++ {
		tr := newToyTracker(t, newSquareCell(cells, 1, 1), pcls, toyConfig(12))
		d := NewDriver(tr, 0)

		var counts []int
		seen := make(map[int]bool, cells)
		d.OnCellDone = func(id, done, total int) {
			counts = append(counts, done)
			if seen[id] {
				t.Errorf("cell %d reported twice", id)
			}
			seen[id] = true
			if total != cells {
				t.Errorf("total = %d, want %d", total, cells)
			}
		}

		if _, err := d.RunParallel(context.Background(), 1, 0, 16); err != nil {
			t.Fatalf("trial %d: RunParallel: %v", trial, err)
		}
		if len(counts) != cells {
			t.Fatalf("trial %d: %d callbacks, want %d", trial, len(counts), cells)
		}
		for i, done := range counts {
			if done != i+1 {
				t.Fatalf("trial %d: callback %d saw done=%d, want %d", trial, i, done, i+1)
			}
		}
		if d.Done() != cells {
			t.Errorf("trial %d: Done() = %d, want %d", trial, d.Done(), cells)
		}
	}
}

func TestRunParallelStepBudget(t *testing.T) {
	cfg := toyConfig(2)
	cfg.Stimulus = 0
	tr := newToyTracker(t, newSquareCell(4, 1, 1), []float64{2, 2, 2, 2}, cfg)

	if _, err := NewDriver(tr, 50).RunParallel(context.Background(), 1, 0, 2); !errors.Is(err, ErrStepBudget) {
		t.Errorf("expected ErrStepBudget, got %v", err)
	}
}

// runBeelerReuter paces two Beeler-Reuter cells from a rest interval and
// returns the tracker.
func runBeelerReuter(t *testing.T, workers int) *Tracker[*cell.BeelerReuter] {
	t.Helper()
	model := cell.NewBeelerReuter(2)
	if err := model.SetParam(1, "gsfac", 1.2); err != nil {
		t.Fatalf("SetParam: %v", err)
	}
	tr := newToyTracker(t, model, []float64{500, 700}, DefaultConfig(3))
	if _, err := NewDriver(tr, 0).RunParallel(context.Background(), 0.05, -10, workers); err != nil {
		t.Fatalf("RunParallel(%d): %v", workers, err)
	}
	return tr
}

func TestBeelerReuterReproducible(t *testing.T) {
	first := runBeelerReuter(t, 1)
	second := runBeelerReuter(t, 1)
	parallel := runBeelerReuter(t, 2)

	if diff := cmp.Diff(first.Records().APD, second.Records().APD); diff != "" {
		t.Errorf("repeat run differs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Records().APD, parallel.Records().APD); diff != "" {
		t.Errorf("parallel run differs (-seq +par):\n%s", diff)
	}
	if diff := cmp.Diff(first.Snapshots().Values, parallel.Snapshots().Values); diff != "" {
		t.Errorf("parallel snapshots differ (-seq +par):\n%s", diff)
	}

	for i, apd := range first.Records().APD {
		if apd <= 0 {
			t.Errorf("slot %d: APD = %g, want > 0", i, apd)
		}
	}
	for id := 0; id < first.Len(); id++ {
		if got := first.Phase(id); got != Done {
			t.Errorf("cell %d: Phase() = %v, want done", id, got)
		}
		if got := first.CompletedBeats(id); got != 3 {
			t.Errorf("cell %d: CompletedBeats() = %d, want 3", id, got)
		}
	}
	for i, ca := range first.Snapshots().Values[0] {
		if ca <= 0 {
			t.Errorf("cai snapshot %d = %g, want > 0", i, ca)
		}
	}
}
