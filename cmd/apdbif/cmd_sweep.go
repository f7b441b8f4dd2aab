package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/banshee-data/apdbif/internal/config"
	"github.com/banshee-data/apdbif/internal/fsutil"
	"github.com/banshee-data/apdbif/internal/monitoring"
	"github.com/banshee-data/apdbif/internal/plot"
	"github.com/banshee-data/apdbif/internal/sweep"
)

type sweepFlags struct {
	configPath string
	pclSpec    string
	varSpec    string
	params     []string
	plots      []string

	model     string
	variable  string
	outputDir string
	metrics   string

	pclMin   float64
	pclMax   float64
	pclCount int
	varMin   float64
	varMax   float64
	varCount int

	dt           float64
	beats        int
	discard      int
	start        float64
	threshold    float64
	stimulus     float64
	stimDuration float64
	maxSteps     int64
	workers      int
	noIonic      bool
}

func newSweepCmd(fsys fsutil.FileSystem) *cobra.Command {
	var f sweepFlags
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run an APD bifurcation sweep over a PCL x parameter grid",
		Long: `Run an APD bifurcation sweep.

Settings come from --config (JSON or YAML) and are overridden by any flag
given on the command line. --pcl and --var accept "min:max:count", a comma
separated list or a single value and take precedence over the min/max/count
flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, fsys, &f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.configPath, "config", "c", "", "Sweep config file (.json, .yaml, .yml)")
	fl.StringVarP(&f.model, "model", "m", "", "Cell model (see 'apdbif models')")
	fl.StringVar(&f.variable, "variable", "", "Model parameter to sweep")
	fl.StringVar(&f.pclSpec, "pcl", "", "PCL axis: min:max:count, list or value (ms)")
	fl.StringVar(&f.varSpec, "var", "", "Variable axis: min:max:count, list or value")
	fl.Float64Var(&f.pclMin, "pcl-min", 1000, "Smallest pacing cycle length (ms)")
	fl.Float64Var(&f.pclMax, "pcl-max", 1000, "Largest pacing cycle length (ms)")
	fl.IntVar(&f.pclCount, "pcl-count", 1, "Number of PCL values")
	fl.Float64Var(&f.varMin, "var-min", 1, "Smallest variable value")
	fl.Float64Var(&f.varMax, "var-max", 1, "Largest variable value")
	fl.IntVar(&f.varCount, "var-count", 1, "Number of variable values")
	fl.Float64Var(&f.dt, "dt", 0.05, "Time step (ms)")
	fl.IntVar(&f.beats, "beats", 20, "Beats recorded per cell")
	fl.IntVar(&f.discard, "discard", 10, "Leading beats left out of the tables")
	fl.Float64Var(&f.start, "start", -100, "Simulation start time (ms)")
	fl.Float64Var(&f.threshold, "threshold", -75, "Voltage threshold (mV)")
	fl.Float64Var(&f.stimulus, "stimulus", -80, "Stimulus current")
	fl.Float64Var(&f.stimDuration, "stim-duration", 0.5, "Stimulus duration (ms)")
	fl.Int64Var(&f.maxSteps, "max-steps", 0, "Step budget (0 derives one from the protocol)")
	fl.IntVarP(&f.workers, "workers", "w", 1, "Parallel workers (0 = one per CPU)")
	fl.BoolVar(&f.noIonic, "no-ionic", false, "Do not record ionic variable tables")
	fl.StringArrayVarP(&f.params, "param", "p", nil, "Fixed parameter override name=value (repeatable)")
	fl.StringVarP(&f.outputDir, "out", "o", "", "Output directory")
	fl.StringSliceVar(&f.plots, "plot", nil, "Diagram formats to render: png, html")
	fl.StringVar(&f.metrics, "metrics-textfile", "", "Write Prometheus metrics to this file")
	return cmd
}

func runSweep(cmd *cobra.Command, fsys fsutil.FileSystem, f *sweepFlags) error {
	applyQuiet(cmd)

	cfg := &config.SweepConfig{}
	if f.configPath != "" {
		loaded, err := config.LoadSweepConfig(fsys, f.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if err := f.override(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	opts := cfg.Options()
	if f.pclSpec != "" {
		axis, err := sweep.ParseAxis("pcl", f.pclSpec)
		if err != nil {
			return fmt.Errorf("--pcl: %w", err)
		}
		opts.Grid.PCL = axis
	}
	if f.varSpec != "" {
		axis, err := sweep.ParseAxis(cfg.GetVariable(), f.varSpec)
		if err != nil {
			return fmt.Errorf("--var: %w", err)
		}
		opts.Grid.Var = axis
	}

	opts.RunID = uuid.NewString()
	opts.Metrics = monitoring.NewRunMetrics(opts.RunID, opts.Model)
	res, runErr := sweep.Run(cmd.Context(), opts)
	if path := cfg.GetMetricsTextfile(); path != "" {
		if err := opts.Metrics.WriteTextfile(fsys, path); err != nil {
			monitoring.Logf("[sweep] failed to write metrics %s: %v", path, err)
		}
	}
	if runErr != nil {
		return runErr
	}

	dir := cfg.GetOutputDir()
	paths, err := res.WriteTables(fsys, dir)
	if err != nil {
		return err
	}
	plots, err := plot.WriteFiles(fsys, dir, res, cfg.Plots)
	if err != nil {
		return err
	}
	paths = append(paths, plots...)

	out := cmd.OutOrStdout()
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return writeJSON(out, map[string]any{
			"run_id":   res.RunID,
			"model":    res.Model,
			"cells":    res.Grid.Len(),
			"steps":    res.Steps,
			"end_time": res.EndTime,
			"files":    paths,
		})
	}
	for _, p := range paths {
		fmt.Fprintln(out, p)
	}
	return nil
}

// override copies every flag set on the command line into cfg.
func (f *sweepFlags) override(cmd *cobra.Command, cfg *config.SweepConfig) error {
	fl := cmd.Flags()
	setString := func(name string, dst **string, v string) {
		if fl.Changed(name) {
			*dst = &v
		}
	}
	setFloat := func(name string, dst **float64, v float64) {
		if fl.Changed(name) {
			*dst = &v
		}
	}
	setInt := func(name string, dst **int, v int) {
		if fl.Changed(name) {
			*dst = &v
		}
	}

	setString("model", &cfg.Model, f.model)
	setString("variable", &cfg.Variable, f.variable)
	setString("out", &cfg.OutputDir, f.outputDir)
	setString("metrics-textfile", &cfg.MetricsTextfile, f.metrics)
	setFloat("pcl-min", &cfg.PCLMin, f.pclMin)
	setFloat("pcl-max", &cfg.PCLMax, f.pclMax)
	setInt("pcl-count", &cfg.PCLCount, f.pclCount)
	setFloat("var-min", &cfg.VarMin, f.varMin)
	setFloat("var-max", &cfg.VarMax, f.varMax)
	setInt("var-count", &cfg.VarCount, f.varCount)
	setFloat("dt", &cfg.DT, f.dt)
	setInt("beats", &cfg.Beats, f.beats)
	setInt("discard", &cfg.Discard, f.discard)
	setFloat("start", &cfg.StartTime, f.start)
	setFloat("threshold", &cfg.Threshold, f.threshold)
	setFloat("stimulus", &cfg.Stimulus, f.stimulus)
	setFloat("stim-duration", &cfg.StimDuration, f.stimDuration)
	setInt("workers", &cfg.Workers, f.workers)
	if fl.Changed("max-steps") {
		v := f.maxSteps
		cfg.MaxSteps = &v
	}
	if fl.Changed("no-ionic") {
		v := !f.noIonic
		cfg.TrackIonic = &v
	}
	if fl.Changed("plot") {
		cfg.Plots = f.plots
	}
	if len(f.params) > 0 {
		params, err := parseParams(f.params)
		if err != nil {
			return err
		}
		if cfg.Params == nil {
			cfg.Params = make(map[string]float64, len(params))
		}
		for k, v := range params {
			cfg.Params[k] = v
		}
	}
	return nil
}

// parseParams parses name=value pairs.
func parseParams(pairs []string) (map[string]float64, error) {
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected name=value", pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value for parameter %s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

func applyQuiet(cmd *cobra.Command) {
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		monitoring.SetLogger(nil)
	}
}
