// Package config loads sweep configuration files.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/apdbif/internal/bifurcation"
	"github.com/banshee-data/apdbif/internal/cell"
	"github.com/banshee-data/apdbif/internal/fsutil"
	"github.com/banshee-data/apdbif/internal/sweep"
)

// maxFileSize caps config files at 1 MiB.
const maxFileSize = 1 * 1024 * 1024

// Plot formats accepted in the plots list.
const (
	PlotPNG  = "png"
	PlotHTML = "html"
)

// SweepConfig is the on-disk description of a sweep. Every field is
// optional; the Get* methods supply defaults for fields left out, so partial
// configs are safe.
type SweepConfig struct {
	Model    *string `json:"model,omitempty" yaml:"model,omitempty"`
	Variable *string `json:"variable,omitempty" yaml:"variable,omitempty"`

	VarMin   *float64 `json:"var_min,omitempty" yaml:"var_min,omitempty"`
	VarMax   *float64 `json:"var_max,omitempty" yaml:"var_max,omitempty"`
	VarCount *int     `json:"var_count,omitempty" yaml:"var_count,omitempty"`
	PCLMin   *float64 `json:"pcl_min,omitempty" yaml:"pcl_min,omitempty"`
	PCLMax   *float64 `json:"pcl_max,omitempty" yaml:"pcl_max,omitempty"`
	PCLCount *int     `json:"pcl_count,omitempty" yaml:"pcl_count,omitempty"`

	DT        *float64 `json:"dt,omitempty" yaml:"dt,omitempty"`
	Beats     *int     `json:"beats,omitempty" yaml:"beats,omitempty"`
	Discard   *int     `json:"discard,omitempty" yaml:"discard,omitempty"`
	StartTime *float64 `json:"start_time,omitempty" yaml:"start_time,omitempty"`

	Threshold    *float64 `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Stimulus     *float64 `json:"stimulus,omitempty" yaml:"stimulus,omitempty"`
	StimDuration *float64 `json:"stim_duration,omitempty" yaml:"stim_duration,omitempty"`

	MaxSteps   *int64 `json:"max_steps,omitempty" yaml:"max_steps,omitempty"`
	Workers    *int   `json:"workers,omitempty" yaml:"workers,omitempty"`
	TrackIonic *bool  `json:"track_ionic,omitempty" yaml:"track_ionic,omitempty"`

	// Params are base parameter overrides applied to every cell.
	Params map[string]float64 `json:"params,omitempty" yaml:"params,omitempty"`

	OutputDir       *string  `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	Plots           []string `json:"plots,omitempty" yaml:"plots,omitempty"`
	MetricsTextfile *string  `json:"metrics_textfile,omitempty" yaml:"metrics_textfile,omitempty"`
}

// LoadSweepConfig loads a SweepConfig from a .json, .yaml or .yml file and
// validates it.
func LoadSweepConfig(fsys fsutil.FileSystem, path string) (*SweepConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	switch ext {
	case ".json", ".yaml", ".yml":
	default:
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	if !fsys.Exists(cleanPath) {
		return nil, fmt.Errorf("config file not found: %s", cleanPath)
	}
	info, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &SweepConfig{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", filepath.Base(cleanPath), err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the effective values, defaults included.
func (c *SweepConfig) Validate() error {
	if _, ok := modelInfo(c.GetModel()); !ok {
		return fmt.Errorf("model: unknown model %q (have %s)", c.GetModel(), strings.Join(cell.Names(), ", "))
	}
	if c.GetDT() <= 0 {
		return fmt.Errorf("dt must be positive, got %g", c.GetDT())
	}
	if c.GetBeats() < 1 {
		return fmt.Errorf("beats must be at least 1, got %d", c.GetBeats())
	}
	if c.GetDiscard() < 0 || c.GetDiscard() >= c.GetBeats() {
		return fmt.Errorf("discard must be in [0, beats=%d), got %d", c.GetBeats(), c.GetDiscard())
	}
	if c.GetPCLCount() < 1 {
		return fmt.Errorf("pcl_count must be at least 1, got %d", c.GetPCLCount())
	}
	if c.GetVarCount() < 1 {
		return fmt.Errorf("var_count must be at least 1, got %d", c.GetVarCount())
	}
	if c.GetPCLMin() <= 0 {
		return fmt.Errorf("pcl_min must be positive, got %g", c.GetPCLMin())
	}
	if c.GetPCLMax() < c.GetPCLMin() {
		return fmt.Errorf("pcl_max %g is below pcl_min %g", c.GetPCLMax(), c.GetPCLMin())
	}
	if c.GetStimDuration() <= 0 {
		return fmt.Errorf("stim_duration must be positive, got %g", c.GetStimDuration())
	}
	if c.GetWorkers() < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.GetWorkers())
	}
	if c.MaxSteps != nil && *c.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative, got %d", *c.MaxSteps)
	}
	for _, p := range c.Plots {
		if p != PlotPNG && p != PlotHTML {
			return fmt.Errorf("plots: unknown format %q (want %s or %s)", p, PlotPNG, PlotHTML)
		}
	}
	return nil
}

func modelInfo(name string) (cell.Info, bool) {
	for _, info := range cell.Models() {
		if info.Name == name {
			return info, true
		}
	}
	return cell.Info{}, false
}

// GetModel returns the model name or the default "br".
func (c *SweepConfig) GetModel() string {
	if c.Model == nil || *c.Model == "" {
		return cell.BeelerReuterName
	}
	return *c.Model
}

// GetVariable returns the swept parameter, defaulting to the model's first
// parameter. It is empty for a model without parameters.
func (c *SweepConfig) GetVariable() string {
	if c.Variable != nil && *c.Variable != "" {
		return *c.Variable
	}
	if info, ok := modelInfo(c.GetModel()); ok && len(info.Params) > 0 {
		return info.Params[0]
	}
	return ""
}

// GetVarMin returns the var_min value or the default.
func (c *SweepConfig) GetVarMin() float64 { return getFloat(c.VarMin, 1) }

// GetVarMax returns the var_max value or the default.
func (c *SweepConfig) GetVarMax() float64 { return getFloat(c.VarMax, 1) }

// GetVarCount returns the var_count value or the default.
func (c *SweepConfig) GetVarCount() int { return getInt(c.VarCount, 1) }

// GetPCLMin returns the pcl_min value or the default.
func (c *SweepConfig) GetPCLMin() float64 { return getFloat(c.PCLMin, 1000) }

// GetPCLMax returns the pcl_max value or the default.
func (c *SweepConfig) GetPCLMax() float64 { return getFloat(c.PCLMax, 1000) }

// GetPCLCount returns the pcl_count value or the default.
func (c *SweepConfig) GetPCLCount() int { return getInt(c.PCLCount, 1) }

// GetDT returns the time step in ms.
func (c *SweepConfig) GetDT() float64 { return getFloat(c.DT, 0.05) }

// GetBeats returns the beats recorded per cell.
func (c *SweepConfig) GetBeats() int { return getInt(c.Beats, 20) }

// GetDiscard returns the number of leading beats left out of the tables.
func (c *SweepConfig) GetDiscard() int { return getInt(c.Discard, 10) }

// GetStartTime returns the simulation start time in ms.
func (c *SweepConfig) GetStartTime() float64 { return getFloat(c.StartTime, -100) }

func (c *SweepConfig) GetThreshold() float64 {
	return getFloat(c.Threshold, bifurcation.DefaultThreshold)
}

func (c *SweepConfig) GetStimulus() float64 {
	return getFloat(c.Stimulus, bifurcation.DefaultStimulus)
}

func (c *SweepConfig) GetStimDuration() float64 {
	return getFloat(c.StimDuration, bifurcation.DefaultStimDuration)
}

// GetMaxSteps returns the step budget; 0 lets the driver derive one.
func (c *SweepConfig) GetMaxSteps() int64 {
	if c.MaxSteps == nil {
		return 0
	}
	return *c.MaxSteps
}

// GetWorkers returns the worker count. A value of 0 in the file selects
// one worker per CPU.
func (c *SweepConfig) GetWorkers() int {
	if c.Workers == nil {
		return 1
	}
	if *c.Workers == 0 {
		return runtime.GOMAXPROCS(0)
	}
	return *c.Workers
}

// GetTrackIonic reports whether ionic snapshots are recorded.
func (c *SweepConfig) GetTrackIonic() bool {
	if c.TrackIonic == nil {
		return true
	}
	return *c.TrackIonic
}

// GetOutputDir returns the output directory or ".".
func (c *SweepConfig) GetOutputDir() string {
	if c.OutputDir == nil || *c.OutputDir == "" {
		return "."
	}
	return *c.OutputDir
}

// GetMetricsTextfile returns the metrics output path; empty disables it.
func (c *SweepConfig) GetMetricsTextfile() string {
	if c.MetricsTextfile == nil {
		return ""
	}
	return *c.MetricsTextfile
}

// Grid returns the sweep grid described by the config.
func (c *SweepConfig) Grid() sweep.Grid {
	return sweep.Grid{
		PCL: sweep.LinearAxis("pcl", c.GetPCLMin(), c.GetPCLMax(), c.GetPCLCount()),
		Var: sweep.LinearAxis(c.GetVariable(), c.GetVarMin(), c.GetVarMax(), c.GetVarCount()),
	}
}

// Protocol returns the pacing protocol described by the config.
func (c *SweepConfig) Protocol() bifurcation.Config {
	return bifurcation.Config{
		Threshold:    c.GetThreshold(),
		Stimulus:     c.GetStimulus(),
		StimDuration: c.GetStimDuration(),
		BeatsPerCell: c.GetBeats(),
		TrackIonic:   c.GetTrackIonic(),
	}
}

// Options returns harness options for the config. Metrics, clock and run id
// are left for the caller.
func (c *SweepConfig) Options() sweep.Options {
	return sweep.Options{
		Model:    c.GetModel(),
		Grid:     c.Grid(),
		Params:   c.Params,
		Protocol: c.Protocol(),
		DT:       c.GetDT(),
		Start:    c.GetStartTime(),
		Discard:  c.GetDiscard(),
		MaxSteps: c.GetMaxSteps(),
		Workers:  c.GetWorkers(),
	}
}

func getFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func getInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
