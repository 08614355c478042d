// This program is a wallet for accounts held on a ledger node.
package main

import "github.com/ardanlabs/powledger/app/wallet/cmd"

func main() {
	cmd.Execute()
}
