package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/apdbif/internal/bifurcation"
	"github.com/banshee-data/apdbif/internal/cell"
	"github.com/banshee-data/apdbif/internal/fsutil"
	"github.com/banshee-data/apdbif/internal/trace"
)

func newTraceCmd(fsys fsutil.FileSystem) *cobra.Command {
	opts := trace.Options{}
	var params []string
	var outputDir string

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Record the voltage trace of a single paced cell",
		Long: `Pace one cell at a fixed PCL and write its membrane voltage and ionic
variables once per sample interval, starting 100 ms before the first
retained beat. Times in the output are relative to that beat.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyQuiet(cmd)
			if len(params) > 0 {
				p, err := parseParams(params)
				if err != nil {
					return err
				}
				opts.Params = p
			}
			if opts.Variable == "" && cmd.Flags().Changed("value") {
				return fmt.Errorf("--value needs --variable")
			}

			tr, err := trace.Run(cmd.Context(), opts)
			if err != nil {
				return err
			}
			path, err := tr.Write(fsys, outputDir)
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"file":    path,
					"samples": len(tr.Samples),
					"stimuli": len(tr.Onsets),
				})
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), path)
			return err
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&opts.Model, "model", "m", cell.BeelerReuterName, "Cell model (see 'apdbif models')")
	fl.StringVar(&opts.Variable, "variable", "", "Model parameter set to --value")
	fl.Float64Var(&opts.Value, "value", 0, "Value of --variable")
	fl.Float64Var(&opts.PCL, "pcl", 1000, "Pacing cycle length (ms)")
	fl.Float64Var(&opts.DT, "dt", 0.05, "Time step (ms)")
	fl.Float64Var(&opts.Start, "start", -100, "Simulation start time (ms)")
	fl.IntVar(&opts.Beats, "beats", 20, "Number of paced beats")
	fl.IntVar(&opts.Discard, "discard", 10, "Beats paced before sampling starts")
	fl.Float64Var(&opts.Stimulus, "stimulus", bifurcation.DefaultStimulus, "Stimulus current")
	fl.Float64Var(&opts.StimDuration, "stim-duration", bifurcation.DefaultStimDuration, "Stimulus duration (ms)")
	fl.Float64Var(&opts.SaveInterval, "interval", trace.DefaultSaveInterval, "Sampling interval (ms)")
	fl.StringArrayVarP(&params, "param", "p", nil, "Fixed parameter override name=value (repeatable)")
	fl.StringVarP(&outputDir, "out", "o", ".", "Output directory")
	return cmd
}
