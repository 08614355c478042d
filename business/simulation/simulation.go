// Package simulation drives a ledger node through rounds of synthetic
// network activity: funded accounts trade with each other, pools win blocks
// in proportion to their hash rate and forks are injected and left for the
// fork choice rule to resolve.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/rand/v2"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/pool"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
)

// Config represents the parameters of a simulation.
type Config struct {
	Genesis         genesis.Genesis
	Pools           []pool.Pool
	SelectStrategy  string
	Rounds          int
	Accounts        int
	Funding         uint64
	MinTxs          int
	MaxTxs          int
	MaxAmount       uint64
	MaxFee          uint64
	ForkProbability float64
	StatusEvery     int
	Rand            *rand.Rand

	// OnStatus is called every StatusEvery rounds and after the last round.
	OnStatus func(round int, stats state.Stats)

	// OnFork is called once an injected fork has been resolved.
	OnFork func(round int, fork Fork)

	Observer  state.Observer
	EvHandler state.EventHandler
}

// Fork describes an injected fork and how it was resolved.
type Fork struct {
	Height  uint64 `json:"height"`
	First   string `json:"first"`
	Second  string `json:"second"`
	Winner  string `json:"winner"`
	Breaker string `json:"breaker"`
	Outcome string `json:"outcome"`
}

// Simulation owns a node and the accounts trading on it.
type Simulation struct {
	cfg      Config
	state    *state.State
	selector *pool.WeightedSelector
	rng      *rand.Rand
	ev       state.EventHandler

	accounts []database.AccountID
	names    map[database.AccountID]string

	mu       sync.Mutex
	round    int
	events   []AuditEvent
	forks    []Fork
	rejected int
}

// New constructs a simulation. Every generated account is funded at
// genesis.
func New(cfg Config) (*Simulation, error) {
	if cfg.Accounts < 2 {
		return nil, errors.New("at least two accounts are required")
	}

	if cfg.MaxTxs < cfg.MinTxs {
		return nil, fmt.Errorf("max transactions %d is less than min %d", cfg.MaxTxs, cfg.MinTxs)
	}

	if cfg.MaxAmount == 0 {
		return nil, errors.New("max amount must be positive")
	}

	if cfg.ForkProbability < 0 || cfg.ForkProbability > 1 {
		return nil, fmt.Errorf("fork probability %v is not in [0, 1]", cfg.ForkProbability)
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	ev := cfg.EvHandler
	if ev == nil {
		ev = func(string, ...any) {}
	}

	registry, err := pool.NewRegistry(cfg.Pools)
	if err != nil {
		return nil, err
	}

	selector, err := pool.NewWeightedSelector(cfg.Pools, rng)
	if err != nil {
		return nil, err
	}

	sim := Simulation{
		cfg:      cfg,
		selector: selector,
		rng:      rng,
		ev:       ev,
		names:    make(map[database.AccountID]string),
	}

	gen := cfg.Genesis
	gen.Balances = make(map[database.AccountID]uint64, len(cfg.Genesis.Balances)+cfg.Accounts)
	maps.Copy(gen.Balances, cfg.Genesis.Balances)

	for i := range cfg.Accounts {
		account, err := database.NewAccountID()
		if err != nil {
			return nil, fmt.Errorf("generating account: %w", err)
		}

		sim.accounts = append(sim.accounts, account)
		sim.names[account] = fmt.Sprintf("user_%02d", i+1)
		gen.Balances[account] = cfg.Funding
	}

	st, err := state.New(state.Config{
		Genesis:        gen,
		Registry:       registry,
		SelectStrategy: cfg.SelectStrategy,
		Observer:       &recorder{sim: &sim, next: cfg.Observer},
		EvHandler:      cfg.EvHandler,
	})
	if err != nil {
		return nil, err
	}
	sim.state = st

	return &sim, nil
}

// State returns the node the simulation drives.
func (sim *Simulation) State() *state.State {
	return sim.state
}

// Name returns the display name of a generated account.
func (sim *Simulation) Name(account database.AccountID) string {
	return sim.names[account]
}

// Run plays every configured round. A cancelled context stops the run after
// the current search and reports the cancellation.
func (sim *Simulation) Run(ctx context.Context) error {
	for round := 1; round <= sim.cfg.Rounds; round++ {
		if err := sim.Round(ctx, round); err != nil {
			return fmt.Errorf("round %d: %w", round, err)
		}

		if sim.cfg.OnStatus != nil && sim.cfg.StatusEvery > 0 && round%sim.cfg.StatusEvery == 0 && round != sim.cfg.Rounds {
			sim.cfg.OnStatus(round, sim.state.Stats())
		}
	}

	if sim.cfg.OnStatus != nil {
		sim.cfg.OnStatus(sim.cfg.Rounds, sim.state.Stats())
	}

	return nil
}

// Round generates activity and mines one block. With the configured
// probability two pools find competing blocks at the same height instead.
func (sim *Simulation) Round(ctx context.Context, round int) error {
	sim.mu.Lock()
	sim.round = round
	sim.mu.Unlock()

	sim.ev("simulation: round[%d]: started", round)
	defer sim.ev("simulation: round[%d]: completed", round)

	sim.generateTransactions()

	if len(sim.cfg.Pools) > 1 && sim.rng.Float64() < sim.cfg.ForkProbability {
		return sim.fork(ctx, round)
	}

	p := sim.selector.Pick()
	mined, err := sim.state.MineNewBlock(ctx, p.Account)
	if err != nil {
		return err
	}

	sim.ev("simulation: round[%d]: miner[%s]: blk[%d]: %s", round, p.Name, mined.Block.Header.Number, mined.Outcome)

	return nil
}

// generateTransactions submits a random batch of transfers between the
// generated accounts. Transfers the sender can't fund are rejected by the
// mempool and counted.
func (sim *Simulation) generateTransactions() {
	count := sim.cfg.MinTxs
	if spread := sim.cfg.MaxTxs - sim.cfg.MinTxs; spread > 0 {
		count += sim.rng.IntN(spread + 1)
	}

	for range count {
		from := sim.accounts[sim.rng.IntN(len(sim.accounts))]
		to := sim.accounts[sim.rng.IntN(len(sim.accounts))]
		for to == from {
			to = sim.accounts[sim.rng.IntN(len(sim.accounts))]
		}

		amount := 1 + sim.rng.Uint64N(sim.cfg.MaxAmount)

		var fee uint64
		if sim.cfg.MaxFee > 0 {
			fee = 1 + sim.rng.Uint64N(sim.cfg.MaxFee)
		}

		tx, err := database.NewTx(from, to, amount, fee)
		if err == nil {
			err = sim.state.SubmitTransaction(tx)
		}

		if err != nil {
			sim.mu.Lock()
			sim.rejected++
			sim.mu.Unlock()

			sim.ev("simulation: tx: %s -> %s: amount[%d]: fee[%d]: REJECTED: %s", sim.names[from], sim.names[to], amount, fee, err)
		}
	}
}

// fork has two different pools solve blocks on the same parent. The first
// block seen stays canonical. A third search, won by a pool picked at
// random, extends one of the two branches and settles the fork by
// cumulative work. The breaker builds on the branch it heard of first,
// which is the first branch with a probability equal to the first miner's
// share of the two competing hash rates.
func (sim *Simulation) fork(ctx context.Context, round int) error {
	parent := sim.state.RetrieveLatestBlock()

	first := sim.selector.Pick()
	second := sim.selector.Pick()
	for second.Name == first.Name {
		second = sim.selector.Pick()
	}

	sim.ev("simulation: round[%d]: FORK: blk[%d]: miners[%s, %s]", round, parent.Header.Number+1, first.Name, second.Name)

	a, err := sim.state.MineOnBranch(ctx, first.Account, parent.Hash)
	if err != nil {
		return fmt.Errorf("fork first branch: %w", err)
	}

	b, err := sim.state.MineOnBranch(ctx, second.Account, parent.Hash)
	if err != nil {
		return fmt.Errorf("fork second branch: %w", err)
	}

	extend, winner := a, first
	if sim.rng.Float64() >= first.HashRate/(first.HashRate+second.HashRate) {
		extend, winner = b, second
	}

	breaker := sim.selector.Pick()
	resolved, err := sim.state.MineOnBranch(ctx, breaker.Account, extend.Block.Hash())
	switch {
	case errors.Is(err, chain.ErrInvalidBlock):

		// A transfer funded by the abandoned branch can't be replayed on
		// this one. The breaker builds on the canonical tip instead.
		sim.ev("simulation: round[%d]: FORK: branch[%s]: %s", round, winner.Name, err)
		winner = first
		if resolved, err = sim.state.MineNewBlock(ctx, breaker.Account); err != nil {
			return fmt.Errorf("fork resolution: %w", err)
		}

	case err != nil:
		return fmt.Errorf("fork resolution: %w", err)
	}

	f := Fork{
		Height:  parent.Header.Number + 1,
		First:   first.Name,
		Second:  second.Name,
		Winner:  winner.Name,
		Breaker: breaker.Name,
		Outcome: resolved.Outcome.String(),
	}

	sim.mu.Lock()
	sim.forks = append(sim.forks, f)
	sim.events = append(sim.events, AuditEvent{Round: round, Type: EventForkResolved, Data: f})
	sim.mu.Unlock()

	sim.ev("simulation: round[%d]: FORK: resolved: winner[%s]: breaker[%s]: %s", round, winner.Name, breaker.Name, resolved.Outcome)

	if sim.cfg.OnFork != nil {
		sim.cfg.OnFork(round, f)
	}

	return nil
}

// Forks returns the injected forks in the order they were resolved.
func (sim *Simulation) Forks() []Fork {
	sim.mu.Lock()
	defer sim.mu.Unlock()

	return append([]Fork(nil), sim.forks...)
}

// Rejected returns the number of generated transactions the node refused.
func (sim *Simulation) Rejected() int {
	sim.mu.Lock()
	defer sim.mu.Unlock()

	return sim.rejected
}

// =============================================================================

// recorder captures the chain events into the audit trail before passing
// them on.
type recorder struct {
	sim  *Simulation
	next state.Observer
}

func (r *recorder) BlockConfirmed(bc state.BlockConfirmed) {
	r.record(EventBlockConfirmed, bc)

	if r.next != nil {
		r.next.BlockConfirmed(bc)
	}
}

func (r *recorder) Orphaned(oe state.OrphanEvent) {
	r.record(EventBlockOrphaned, oe)

	if r.next != nil {
		r.next.Orphaned(oe)
	}
}

func (r *recorder) record(typ string, data any) {
	r.sim.mu.Lock()
	defer r.sim.mu.Unlock()

	r.sim.events = append(r.sim.events, AuditEvent{Round: r.sim.round, Type: typ, Data: data})
}
