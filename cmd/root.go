// Package cmd holds the harvestkit command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvestkit",
		Short: "A budgeted, polite documentation crawler.",
		Long: `harvestkit crawls a configured set of documentation sites, scores
each page for training-corpus quality, deduplicates near-identical
content, and appends accepted pages to a JSONL corpus. Interrupted
runs resume from the last checkpoint.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default harvestkit.yaml in the working directory)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
