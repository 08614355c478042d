package cmd

import (
	"fmt"
	"strings"

	"github.com/ardanlabs/powledger/business/simulation"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
	"github.com/fatih/color"
)

// unit is the number of base units in a coin.
const unit = 100_000_000

func coins(v uint64) string {
	return fmt.Sprintf("%d.%08d", v/unit, v%unit)
}

func printConfirmed(bc state.BlockConfirmed) {
	line := fmt.Sprintf("   blk[%d] %s by %s | txs %d | fees %s", bc.Height, short(bc.Hash), bc.Miner, bc.TransactionCount, coins(bc.Fees))
	if bc.Attempts > 0 {
		line += fmt.Sprintf(" | attempts %d in %v", bc.Attempts, bc.Elapsed)
	}
	color.Green("%s", line)
}

func printOrphaned(oe state.OrphanEvent) {
	color.Red("   blk[%d] %s by %s ORPHANED: %s", oe.Height, short(oe.BlockHash), oe.Miner, oe.Reason)
}

func printFork(round int, f simulation.Fork) {
	color.Yellow("   FORK at blk[%d] round %d: %s vs %s, %s extended %s's branch (%s)", f.Height, round, f.First, f.Second, f.Breaker, f.Winner, f.Outcome)
}

func printStatus(sim *simulation.Simulation, round int, stats state.Stats) {
	rule := strings.Repeat("=", 70)
	st := sim.State()

	color.Cyan(rule)
	switch round {
	case 0:
		color.Cyan("NETWORK STATUS")
	default:
		color.Cyan("NETWORK STATUS after round %d", round)
	}
	color.Cyan(rule)

	valid := st.RetrieveRules().IsValid(st.Snapshot().Blocks)

	fmt.Printf("Block Height:     %d\n", stats.Height)
	fmt.Printf("Latest Hash:      %s\n", stats.Tip)
	fmt.Printf("Difficulty:       %d leading zeros\n", stats.Difficulty)
	fmt.Printf("Block Reward:     %s\n", coins(st.RetrieveGenesis().Issuer().Subsidy(stats.Height+1)))
	fmt.Printf("Mempool Size:     %d transactions\n", stats.Mempool)
	fmt.Printf("Confirmed Txs:    %d\n", stats.Transactions)
	fmt.Printf("Rejected Txs:     %d\n", sim.Rejected())
	if valid {
		color.Green("Chain Valid:      true")
	} else {
		color.Red("Chain Valid:      false")
	}
	fmt.Printf("Forks Injected:   %d\n", len(sim.Forks()))
	fmt.Printf("Forks Resolved:   %d\n", stats.ForksResolved)
	fmt.Printf("Orphaned Blocks:  %d\n", stats.Orphaned)
	fmt.Printf("Total Fees:       %s\n", coins(stats.TotalFees))
	fmt.Printf("Total Issued:     %s\n", coins(stats.TotalIssued))

	color.Cyan("\nMINING POOL STATISTICS:")
	balances := st.RetrieveBalances()
	for _, ms := range stats.Miners {
		fmt.Printf("   %-12s | Blocks: %3d | Rewards: %s | Balance: %s\n", ms.Miner, ms.Blocks, coins(ms.Rewards), coins(balances[ms.Account]))
	}
	color.Cyan(rule)
}

func short(hash string) string {
	if len(hash) <= 18 {
		return hash
	}
	return hash[:18] + "..."
}
