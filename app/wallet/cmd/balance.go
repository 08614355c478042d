package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ardanlabs/powledger/app/services/node/handlers/v1/public"
	"github.com/spf13/cobra"
)

// balanceCmd represents the balance command
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, account, err := loadAccount()
		if err != nil {
			return err
		}

		fmt.Println("For Account:", account)

		resp, err := http.Get(fmt.Sprintf("%s/v1/balances/%s", url, account))
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("node responded %s", resp.Status)
		}

		var balances public.Balances
		if err := json.NewDecoder(resp.Body).Decode(&balances); err != nil {
			return err
		}

		if len(balances.Balances) > 0 {
			fmt.Println("Confirmed:", balances.Balances[0].Balance)
			fmt.Println("Available:", balances.Balances[0].Available)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}
