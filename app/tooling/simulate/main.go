// This program runs ledger simulations from the command line.
package main

import "github.com/ardanlabs/powledger/app/tooling/simulate/cmd"

func main() {
	cmd.Execute()
}
