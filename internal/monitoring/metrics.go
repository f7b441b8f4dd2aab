package monitoring

import (
	"bytes"
	"fmt"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/banshee-data/apdbif/internal/fsutil"
)

// RunMetrics collects counters for one sweep run. A nil *RunMetrics is valid
// and records nothing.
type RunMetrics struct {
	Registry *prometheus.Registry

	Cells          prometheus.Gauge
	CellsCompleted prometheus.Gauge
	Steps          prometheus.Counter
	BeatsRecorded  prometheus.Counter
	RunSeconds     prometheus.Gauge
}

// NewRunMetrics registers the run metrics on a fresh registry, labelled with
// the run id and model name.
func NewRunMetrics(runID, model string) *RunMetrics {
	labels := prometheus.Labels{"run_id": runID, "model": model}
	m := &RunMetrics{
		Registry: prometheus.NewRegistry(),
		Cells: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "apdbif_cells",
			Help:        "Number of cells (grid points) in the sweep.",
			ConstLabels: labels,
		}),
		CellsCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "apdbif_cells_completed",
			Help:        "Cells that have recorded every beat.",
			ConstLabels: labels,
		}),
		Steps: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "apdbif_steps_total",
			Help:        "Fixed time steps taken by the driver.",
			ConstLabels: labels,
		}),
		BeatsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "apdbif_beats_recorded_total",
			Help:        "Action potential durations recorded across all cells.",
			ConstLabels: labels,
		}),
		RunSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "apdbif_run_duration_seconds",
			Help:        "Wall-clock duration of the driver run.",
			ConstLabels: labels,
		}),
	}
	m.Registry.MustRegister(m.Cells, m.CellsCompleted, m.Steps, m.BeatsRecorded, m.RunSeconds)
	return m
}

// CellDone records one completed cell.
func (m *RunMetrics) CellDone(done int) {
	if m == nil {
		return
	}
	m.CellsCompleted.Set(float64(done))
}

// ObserveRun records the totals of a finished (or aborted) run.
func (m *RunMetrics) ObserveRun(cells int, steps int64, beats int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Cells.Set(float64(cells))
	m.Steps.Add(float64(steps))
	m.BeatsRecorded.Add(float64(beats))
	m.RunSeconds.Set(elapsed.Seconds())
}

// WriteTextfile renders the registry in the Prometheus text format and
// writes it to path on fsys, for collection by node_exporter's textfile
// collector.
func (m *RunMetrics) WriteTextfile(fsys fsutil.FileSystem, path string) error {
	if m == nil {
		return nil
	}
	families, err := m.Registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	return fsys.WriteFile(path, buf.Bytes(), 0o644)
}
