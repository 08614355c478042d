package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/powledger/business/simulation"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/pool"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
	"github.com/ardanlabs/powledger/foundation/logger"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	rounds          int
	accounts        int
	funding         uint64
	minTxs          int
	maxTxs          int
	maxAmount       uint64
	maxFee          uint64
	forkProbability float64
	statusEvery     int
	seed            uint64
	genesisPath     string
	poolsPath       string
	strategy        string
	difficulty      uint
	maxDifficulty   uint
	exportPath      string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation.",
	RunE: func(cmd *cobra.Command, args []string) error {
		color.NoColor = color.NoColor || noColor

		gen := genesis.Default()
		if genesisPath != "" {
			var err error
			if gen, err = genesis.Load(genesisPath); err != nil {
				return err
			}
		}

		if difficulty > 0 {
			gen.Difficulty = difficulty
		}
		if maxDifficulty > 0 {
			gen.MaxDifficulty = maxDifficulty
		}

		pools := pool.Default()
		if poolsPath != "" {
			var err error
			if pools, err = pool.LoadFile(poolsPath); err != nil {
				return err
			}
		}

		cfg := simulation.Config{
			Genesis:         gen,
			Pools:           pools,
			SelectStrategy:  strategy,
			Rounds:          rounds,
			Accounts:        accounts,
			Funding:         funding,
			MinTxs:          minTxs,
			MaxTxs:          maxTxs,
			MaxAmount:       maxAmount,
			MaxFee:          maxFee,
			ForkProbability: forkProbability,
			StatusEvery:     statusEvery,
		}

		if seed != 0 {
			cfg.Rand = rand.New(rand.NewPCG(seed, seed))
		}

		if verbose {
			log, err := logger.NewDevelopment("SIMULATE", true)
			if err != nil {
				return err
			}
			defer log.Sync()

			cfg.EvHandler = func(v string, args ...any) {
				log.Debugf(v, args...)
			}
		}

		var sim *simulation.Simulation
		cfg.Observer = state.ObserverFuncs{
			OnConfirmed: printConfirmed,
			OnOrphaned:  printOrphaned,
		}
		cfg.OnFork = printFork
		cfg.OnStatus = func(round int, stats state.Stats) {
			printStatus(sim, round, stats)
		}

		sim, err := simulation.New(cfg)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		color.Cyan("\nSTARTING SIMULATION (%d rounds, %d accounts, %d pools)\n", rounds, accounts, len(pools))

		runErr := sim.Run(ctx)
		switch {
		case runErr == nil:
			color.Cyan("\nSIMULATION COMPLETE")
		case errors.Is(runErr, context.Canceled):
			color.Yellow("\nSimulation stopped by user")
			printStatus(sim, 0, sim.State().Stats())
			runErr = nil
		}

		if exportPath != "" {
			if err := simulation.SaveAudit(exportPath, sim.Audit()); err != nil {
				return fmt.Errorf("exporting audit: %w", err)
			}
			color.Green("Audit exported to %s", exportPath)
		}

		return runErr
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().IntVarP(&rounds, "rounds", "r", 50, "Number of rounds to play.")
	runCmd.Flags().IntVarP(&accounts, "accounts", "a", 100, "Number of funded accounts trading.")
	runCmd.Flags().Uint64Var(&funding, "funding", 10_000_000_000, "Genesis balance of every account in base units.")
	runCmd.Flags().IntVar(&minTxs, "min-txs", 5, "Minimum transactions generated per round.")
	runCmd.Flags().IntVar(&maxTxs, "max-txs", 15, "Maximum transactions generated per round.")
	runCmd.Flags().Uint64Var(&maxAmount, "max-amount", 100_000_000, "Maximum transfer amount in base units.")
	runCmd.Flags().Uint64Var(&maxFee, "max-fee", 100_000, "Maximum transfer fee in base units.")
	runCmd.Flags().Float64VarP(&forkProbability, "fork-probability", "f", 0.15, "Chance a round produces two competing blocks.")
	runCmd.Flags().IntVarP(&statusEvery, "status-every", "s", 5, "Rounds between status reports.")
	runCmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed, 0 picks one.")
	runCmd.Flags().StringVarP(&genesisPath, "genesis", "g", "", "JSON genesis file, empty for the reference parameters.")
	runCmd.Flags().StringVarP(&poolsPath, "pools", "p", "", "TOML pool file, empty for the reference pools.")
	runCmd.Flags().StringVar(&strategy, "strategy", "fee", "Mempool selection strategy: fee or fifo.")
	runCmd.Flags().UintVar(&difficulty, "difficulty", 0, "Override the genesis difficulty.")
	runCmd.Flags().UintVar(&maxDifficulty, "max-difficulty", 0, "Override the highest difficulty a retarget can reach.")
	runCmd.Flags().StringVarP(&exportPath, "export", "e", "", "Write the JSON audit trail to this file.")
}
