package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/apdbif/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]string{
					"version":    version.Version,
					"git_sha":    version.GitSHA,
					"build_time": version.BuildTime,
				})
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}
