package cmd

import (
	"fmt"

	"github.com/ardanlabs/powledger/business/simulation"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate <audit.json>",
	Short: "Validate the chain of an exported audit.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		color.NoColor = color.NoColor || noColor

		audit, err := simulation.LoadAudit(args[0])
		if err != nil {
			return err
		}

		if err := simulation.Verify(audit); err != nil {
			color.Red("Chain Valid:      false")
			return fmt.Errorf("validating %s: %w", args[0], err)
		}

		color.Green("Chain Valid:      true")
		fmt.Printf("Block Height:     %d\n", audit.Snapshot.Blocks[len(audit.Snapshot.Blocks)-1].Header.Number)
		fmt.Printf("Latest Hash:      %s\n", audit.Snapshot.Tip)
		fmt.Printf("Cumulative Work:  %s\n", audit.Snapshot.Work)
		fmt.Printf("Audit Events:     %d\n", len(audit.Events))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
