package bifurcation

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/apdbif/internal/cell"
)

func toyConfig(beats int) Config {
	cfg := DefaultConfig(beats)
	cfg.Threshold = toyThreshold
	return cfg
}

// newToyTracker fails the test if the tracker cannot be built.
func newToyTracker[M cell.Model](t *testing.T, model M, pcls []float64, cfg Config) *Tracker[M] {
	t.Helper()
	tr, err := NewTracker(model, pcls, cfg)
	if err != nil {
		t.Fatalf("NewTracker: %v", err)
	}
	return tr
}

func TestNewTrackerValidation(t *testing.T) {
	testCases := []struct {
		name string
		pcls []float64
		cfg  Config
	}{
		{"pcl_count_mismatch", []float64{500}, toyConfig(3)},
		{"zero_pcl", []float64{500, 0}, toyConfig(3)},
		{"negative_pcl", []float64{-1, 500}, toyConfig(3)},
		{"zero_beats", []float64{500, 500}, toyConfig(0)},
		{"zero_stim_duration", []float64{500, 500}, Config{Threshold: -75, Stimulus: -80, BeatsPerCell: 3}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewTracker(newSquareCell(2, 300, 0.1), tc.pcls, tc.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestNewTrackerInitialState(t *testing.T) {
	tr := newToyTracker(t, newSquareCell(2, 300, 0.1), []float64{500, 600}, toyConfig(3))

	if tr.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", tr.Len())
	}
	for id := 0; id < tr.Len(); id++ {
		if got := tr.CompletedBeats(id); got != 0 {
			t.Errorf("cell %d: CompletedBeats() = %d, want 0", id, got)
		}
		if got := tr.Phase(id); got != AwaitingFirstUpstroke {
			t.Errorf("cell %d: Phase() = %v, want %v", id, got, AwaitingFirstUpstroke)
		}
		if got := tr.NextStimulusTime(id); got != 0 {
			t.Errorf("cell %d: NextStimulusTime() = %g, want 0", id, got)
		}
	}
	if got := tr.PCL(1); got != 600 {
		t.Errorf("PCL(1) = %g, want 600", got)
	}
	if got := len(tr.Records().APD); got != 6 {
		t.Errorf("len(APD) = %d, want 6", got)
	}

	snap := tr.Snapshots()
	if snap == nil {
		t.Fatal("expected snapshots for an ionic model")
	}
	if diff := cmp.Diff([]string{"steps"}, snap.Names); diff != "" {
		t.Errorf("snapshot names (-want +got):\n%s", diff)
	}
	if got := len(snap.Values[0]); got != 12 {
		t.Errorf("len(snapshot values) = %d, want 12", got)
	}
}

func TestSnapshotsOptional(t *testing.T) {
	cfg := toyConfig(2)
	cfg.TrackIonic = false
	if tr := newToyTracker(t, newSquareCell(1, 1, 1), []float64{2}, cfg); tr.Snapshots() != nil {
		t.Error("snapshots recorded with TrackIonic off")
	}
	if tr := newToyTracker(t, plainCell{newSquareCell(1, 1, 1)}, []float64{2}, toyConfig(2)); tr.Snapshots() != nil {
		t.Error("snapshots recorded for a model without ionic state")
	}
}

// TestSingleCellSchedule paces one cell at PCL 500 with a 300 ms plateau.
func TestSingleCellSchedule(t *testing.T) {
	const dt = 0.1
	tr := newToyTracker(t, newSquareCell(1, 300, dt), []float64{500}, toyConfig(3))
	d := NewDriver(tr, 0)

	var schedule []float64
	beats := 0
	time := 0.0
	for d.Done() != 1 {
		d.AdvanceAll(dt, time)
		time += dt
		if tr.CompletedBeats(0) != beats {
			beats = tr.CompletedBeats(0)
			schedule = append(schedule, tr.NextStimulusTime(0))
		}
	}

	if diff := cmp.Diff([]float64{500, 1000, 1500}, schedule); diff != "" {
		t.Errorf("stimulus schedule (-want +got):\n%s", diff)
	}
	for b, apd := range tr.Records().Cell(0) {
		if math.Abs(apd-300) > dt {
			t.Errorf("beat %d: APD = %g, want 300 +/- %g", b, apd, dt)
		}
	}
	if got := tr.CompletedBeats(0); got != 3 {
		t.Errorf("CompletedBeats() = %d, want 3", got)
	}
	if got := tr.Phase(0); got != Done {
		t.Errorf("Phase() = %v, want done", got)
	}
}

func TestPhaseTransitions(t *testing.T) {
	tr := newToyTracker(t, newSquareCell(1, 2, 1), []float64{5}, toyConfig(2))

	// t=0 upstroke, t=2 repolarise, t=5 upstroke, t=7 repolarise
	want := []Phase{InAP, InAP, AwaitingUpstroke, AwaitingUpstroke, AwaitingUpstroke, InAP, InAP, Done}
	for step, p := range want {
		tr.AdvanceOne(0, 1, float64(step))
		if got := tr.Phase(0); got != p {
			t.Errorf("step %d: Phase() = %v, want %v", step, got, p)
		}
	}
	if got := tr.Phase(0).String(); got != "done" {
		t.Errorf("Done.String() = %q", got)
	}
	if got := Phase(9).String(); got != "phase(9)" {
		t.Errorf("Phase(9).String() = %q", got)
	}
}

func TestStimulusWindow(t *testing.T) {
	cfg := toyConfig(1)
	cfg.StimDuration = 2
	tr := newToyTracker(t, plainCell{newSquareCell(1, 100, 1)}, []float64{1000}, cfg)

	// window [0, 2) with quarter-step margins covers t=0 and t=1 only
	testCases := []struct {
		t    float64
		want float64
	}{
		{-1, 0},
		{0, DefaultStimulus},
		{1, DefaultStimulus},
		{2, 0},
	}
	for _, tc := range testCases {
		tr.AdvanceOne(0, 1, tc.t)
		if got := tr.Stimulus(0); got != tc.want {
			t.Errorf("t=%g: Stimulus() = %g, want %g", tc.t, got, tc.want)
		}
	}
}

// TestScheduleCatchUp uses an action potential longer than two cycles so the
// schedule must skip several missed stimuli in one update.
func TestScheduleCatchUp(t *testing.T) {
	tr := newToyTracker(t, newSquareCell(1, 25, 1), []float64{10}, toyConfig(2))
	d := NewDriver(tr, 0)

	step := 0
	for tr.CompletedBeats(0) == 0 {
		d.AdvanceAll(1, float64(step))
		step++
	}
	if step != 26 {
		t.Errorf("first beat completed after %d steps, want 26 (repolarised at t=25)", step)
	}
	if got := tr.NextStimulusTime(0); got != 30 {
		t.Errorf("NextStimulusTime() = %g, want 30 (three cycles at once)", got)
	}

	if _, err := d.Run(t.Context(), 1, float64(step)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff([]float64{25, 25}, tr.Records().Cell(0)); diff != "" {
		t.Errorf("APD (-want +got):\n%s", diff)
	}
	if got := tr.APStart(0); got != 30 {
		t.Errorf("APStart() = %g, want 30", got)
	}
	if got := tr.NextStimulusTime(0); got != 60 {
		t.Errorf("NextStimulusTime() = %g, want 60", got)
	}
}

// TestSnapshotAlignment paces two cells whose beats end and restart on
// consecutive steps (cell 0) or with a gap (cell 1). The snapshot variable is
// the model's step counter, so every slot identifies its capture step.
func TestSnapshotAlignment(t *testing.T) {
	tr := newToyTracker(t, newSquareCell(2, 1, 1), []float64{2, 4}, toyConfig(4))
	d := NewDriver(tr, 0)

	res, err := d.Run(t.Context(), 1, 0)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff(Result{Steps: 14, EndTime: 14}, res); diff != "" {
		t.Errorf("result (-want +got):\n%s", diff)
	}

	snap := tr.Snapshots()
	if diff := cmp.Diff([]float64{1, 2, 3, 4, 5, 6, 7, 8}, snap.Cell(0, 0)); diff != "" {
		t.Errorf("cell 0 snapshots (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{1, 2, 5, 6, 9, 10, 13, 14}, snap.Cell(0, 1)); diff != "" {
		t.Errorf("cell 1 snapshots (-want +got):\n%s", diff)
	}

	for b := 0; b < 3; b++ {
		if got := snap.EndIndex(0, b); got != 2*b+1 {
			t.Errorf("EndIndex(0, %d) = %d, want %d", b, got, 2*b+1)
		}
		if got := snap.StartIndex(0, b+1); got != 2*(b+1) {
			t.Errorf("StartIndex(0, %d) = %d, want %d", b+1, got, 2*(b+1))
		}
		end := snap.Values[0][snap.EndIndex(0, b)]
		nextStart := snap.Values[0][snap.StartIndex(0, b+1)]
		if nextStart != end+1 {
			t.Errorf("beat %d ends at step %g but beat %d starts at %g", b, end, b+1, nextStart)
		}
	}
	if got := snap.EndIndex(1, 2); got != 13 {
		t.Errorf("EndIndex(1, 2) = %d, want 13", got)
	}

	for id := 0; id < 2; id++ {
		if diff := cmp.Diff([]float64{1, 1, 1, 1}, tr.Records().Cell(id)); diff != "" {
			t.Errorf("cell %d APD (-want +got):\n%s", id, diff)
		}
	}
	if diff := cmp.Diff([]float64{5, 6, 9, 10, 13, 14}, snap.Retained(0, 1, 1)); diff != "" {
		t.Errorf("retained snapshots (-want +got):\n%s", diff)
	}

	if k, ok := snap.Variable("steps"); !ok || k != 0 {
		t.Errorf("Variable(steps) = %d, %v", k, ok)
	}
	if _, ok := snap.Variable("cai"); ok {
		t.Error("Variable(cai) found on the toy model")
	}
}

func TestDoneIsAbsorbing(t *testing.T) {
	model := newSquareCell(1, 1, 1)
	tr := newToyTracker(t, model, []float64{2}, toyConfig(1))

	if tr.AdvanceOne(0, 1, 0) {
		t.Fatal("completed on the upstroke")
	}
	if !tr.AdvanceOne(0, 1, 1) {
		t.Fatal("expected completion on the downstroke")
	}
	steps := model.steps[0]
	apd := tr.Records().APD[0]

	for i := 2; i < 10; i++ {
		if tr.AdvanceOne(0, 1, float64(i)) {
			t.Errorf("t=%d: completed twice", i)
		}
	}
	if model.steps[0] != steps {
		t.Errorf("completed cell stepped %g more times", model.steps[0]-steps)
	}
	if got := tr.Records().APD[0]; got != apd {
		t.Errorf("APD changed after completion: %g -> %g", apd, got)
	}
	if got := tr.CompletedBeats(0); got != 1 {
		t.Errorf("CompletedBeats() = %d, want 1", got)
	}

	for _, id := range []int{-1, 1} {
		if tr.AdvanceOne(id, 1, 0) {
			t.Errorf("AdvanceOne(%d) reported completion for an out-of-range id", id)
		}
	}
}

func TestRecordsLayout(t *testing.T) {
	r := newRecords(3, 4)
	for i := range r.APD {
		r.APD[i] = float64(i)
	}
	if got := r.Index(1, 2); got != 6 {
		t.Errorf("Index(1, 2) = %d, want 6", got)
	}
	if diff := cmp.Diff([]float64{4, 5, 6, 7}, r.Cell(1)); diff != "" {
		t.Errorf("Cell(1) (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{10, 11}, r.Retained(2, 2)); diff != "" {
		t.Errorf("Retained(2, 2) (-want +got):\n%s", diff)
	}
}
