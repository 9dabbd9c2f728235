package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the harvestkit version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "harvestkit", version)
		},
	}
}
