// Command apdbif paces populations of excitable cell models over a grid of
// pacing cycle lengths and model parameters and writes the beat-to-beat
// action potential durations used to draw APD bifurcation diagrams.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/apdbif/internal/fsutil"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(fsutil.OSFileSystem{}).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(fsys fsutil.FileSystem) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "apdbif",
		Short: "APD bifurcation sweeps for excitable cell models",
		Long: `apdbif paces a population of independent model cells, one per
(pacing cycle length, parameter value) grid point, records the action
potential duration of every beat and writes the retained beats as
tab-separated tables ready for bifurcation diagrams.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress progress logging")

	rootCmd.AddCommand(
		newSweepCmd(fsys),
		newTraceCmd(fsys),
		newModelsCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
