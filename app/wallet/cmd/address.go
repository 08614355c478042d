package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// addressCmd represents the address command
var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print address for the specific wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, account, err := loadAccount()
		if err != nil {
			return err
		}

		fmt.Println(account)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addressCmd)
}
