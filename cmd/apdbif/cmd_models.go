package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/apdbif/internal/cell"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List cell models, their parameters and tracked ionic variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := cell.Models()
			out := cmd.OutOrStdout()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return writeJSON(out, infos)
			}
			for _, info := range infos {
				fmt.Fprintf(out, "%s\t%s\n", info.Name, info.Description)
				params := make([]string, 0, len(info.Params))
				for _, p := range info.Params {
					params = append(params, fmt.Sprintf("%s=%g", p, info.Defaults[p]))
				}
				fmt.Fprintf(out, "  params: %s\n", strings.Join(params, " "))
				fmt.Fprintf(out, "  ionic:  %s\n", strings.Join(info.Ionic, " "))
			}
			return nil
		},
	}
}
