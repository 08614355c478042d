// Package state is the core API for the ledger and implements all the
// business rules and processing.
package state

import (
	"fmt"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/ledger"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool/selector"
	"github.com/ardanlabs/powledger/foundation/blockchain/miner"
	"github.com/ardanlabs/powledger/foundation/blockchain/pool"
	"github.com/ardanlabs/powledger/foundation/blockchain/reward"
)

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining.
type Worker interface {
	Shutdown()
	SignalStartMining()
	SignalCancelMining() (done func())
}

// =============================================================================

// Config represents the configuration required to start
// the blockchain node.
type Config struct {
	Genesis        genesis.Genesis
	Registry       *pool.Registry
	SelectStrategy string
	Observer       Observer
	EvHandler      EventHandler
}

// State manages the blockchain database.
type State struct {
	mu sync.Mutex

	evHandler EventHandler
	observer  Observer

	genesis  genesis.Genesis
	issuer   reward.Issuer
	registry *pool.Registry
	ledger   *ledger.Ledger
	mempool  *mempool.Mempool
	resolver *chain.Resolver

	tipMu      sync.Mutex
	tipChanged chan struct{}

	Worker Worker
}

// New constructs a new blockchain for data management.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	genesisBlock, err := cfg.Genesis.Block()
	if err != nil {
		return nil, fmt.Errorf("genesis block: %w", err)
	}

	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	ldgr := ledger.New(cfg.Genesis.Balances)

	strategy := cfg.SelectStrategy
	if strategy == "" {
		strategy = selector.StrategyFee
	}

	mp, err := mempool.NewWithStrategy(ldgr, strategy)
	if err != nil {
		return nil, err
	}

	resolver, err := chain.New(chain.Config{
		Genesis: genesisBlock,
		Rules: chain.Rules{
			Issuer:     cfg.Genesis.Issuer(),
			Controller: cfg.Genesis.Controller(),
		},
		Ledger:    ldgr,
		Pool:      mp,
		EvHandler: ev,
	})
	if err != nil {
		return nil, err
	}

	state := State{
		evHandler:  ev,
		observer:   observer,
		genesis:    cfg.Genesis,
		issuer:     cfg.Genesis.Issuer(),
		registry:   cfg.Registry,
		ledger:     ldgr,
		mempool:    mp,
		resolver:   resolver,
		tipChanged: make(chan struct{}),
		Worker:     nopWorker{},
	}

	ev("state: New: genesis[%s]: balances[%d]: difficulty[%d]", genesisBlock.Hash(), len(cfg.Genesis.Balances), cfg.Genesis.Difficulty)

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Make sure the worker is stopped.
	s.Worker.Shutdown()

	return nil
}

// TipChanged returns a channel that is closed the next time the canonical
// tip changes. Every caller waiting on the same tip receives the signal.
func (s *State) TipChanged() <-chan struct{} {
	s.tipMu.Lock()
	defer s.tipMu.Unlock()

	return s.tipChanged
}

// =============================================================================

// signalTipChanged wakes everyone waiting on the current tip.
func (s *State) signalTipChanged() {
	s.tipMu.Lock()
	defer s.tipMu.Unlock()

	close(s.tipChanged)
	s.tipChanged = make(chan struct{})
}

// settle publishes the effects of an accepted block. The solution is only
// known for blocks mined by this node.
func (s *State) settle(res chain.Result, sol *miner.Solution) {
	for _, block := range res.Orphaned {
		hash := block.Hash()
		s.evHandler("state: settle: blk[%d][%s]: ORPHANED by reorg to[%s]", block.Header.Number, hash, res.Hash)
		s.observer.Orphaned(OrphanEvent{
			BlockHash: hash,
			Height:    block.Header.Number,
			Miner:     s.minerName(block.Header.MinerAccount),
			Reason:    fmt.Sprintf("reorg to heavier branch %s", res.Hash),
		})
	}

	for _, block := range res.Applied {
		hash := block.Hash()

		bc := BlockConfirmed{
			Height:           block.Header.Number,
			Hash:             hash,
			MinerAccount:     block.Header.MinerAccount,
			Miner:            s.minerName(block.Header.MinerAccount),
			Subsidy:          s.issuer.Subsidy(block.Header.Number),
			Fees:             block.Fees(),
			TransactionCount: len(block.Transactions()),
			Nonce:            block.Header.Nonce,
			Difficulty:       block.Header.Difficulty,
		}

		if sol != nil && sol.Hash == hash {
			bc.Attempts = sol.Attempts
			bc.Elapsed = sol.Elapsed
		}

		s.observer.BlockConfirmed(bc)
	}

	for _, tx := range res.Dropped {
		s.evHandler("state: settle: tx[%s]: DROPPED: no longer funded", tx)
	}

	if res.Outcome != chain.OutcomeSideBranch {
		s.signalTipChanged()
	}
}

// minerName returns the pool name owning the account when it is known.
func (s *State) minerName(account database.AccountID) string {
	if s.registry == nil {
		return string(account)
	}

	return s.registry.Name(account)
}

// =============================================================================

// nopWorker is used until a worker registers itself with the state.
type nopWorker struct{}

func (nopWorker) Shutdown()                         {}
func (nopWorker) SignalStartMining()                {}
func (nopWorker) SignalCancelMining() (done func()) { return func() {} }
