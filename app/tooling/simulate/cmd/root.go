// Package cmd contains the simulate app commands.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	noColor bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Proof of work ledger simulator",
	Long: `Simulate plays rounds of network activity against an in-memory ledger:
funded accounts trade, mining pools win blocks in proportion to their hash
rate and forks are injected and resolved by cumulative work.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log the narration of the node.")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output.")
}
