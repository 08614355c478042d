// Package chain tracks competing branches of blocks in a content addressed
// store and keeps the branch with the greatest cumulative work canonical.
package chain

import (
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/ledger"
)

// Outcome describes what accepting a block did to the canonical chain.
type Outcome int

// Set of acceptance outcomes.
const (
	OutcomeExtended    Outcome = iota // The block extended the canonical tip.
	OutcomeSideBranch                 // The block was stored on a lighter branch.
	OutcomeReorganized                // The block's branch replaced the canonical chain.
)

// String implements the fmt.Stringer interface.
func (o Outcome) String() string {
	switch o {
	case OutcomeExtended:
		return "extended"
	case OutcomeReorganized:
		return "reorganized"
	default:
		return "side-branch"
	}
}

// Pool is the part of the mempool the resolver settles transactions with.
type Pool interface {
	Confirm(txs []database.Tx) []database.Tx
	ReturnToPool(txs []database.Tx) []database.Tx
}

// Result reports the effects of accepting a block.
type Result struct {
	Outcome  Outcome
	Hash     string
	Applied  []database.Block // Blocks that became canonical, in order.
	Orphaned []database.Block // Blocks abandoned by a reorg, in order.
	Returned []database.Tx    // Transactions handed back to the mempool.
	Dropped  []database.Tx    // Transactions the mempool could no longer fund.
}

// Config represents the configuration required to construct a resolver.
type Config struct {
	Genesis   database.Block
	Rules     Rules
	Ledger    *ledger.Ledger
	Pool      Pool
	EvHandler func(v string, args ...any)
}

// Resolver manages the block store and the canonical tip.
type Resolver struct {
	mu sync.RWMutex

	rules     Rules
	ledger    *ledger.Ledger
	pool      Pool
	evHandler func(v string, args ...any)

	nodes     map[string]*node
	genesis   *node
	tip       *node
	confirmed map[string]string
	orphans   uint64
	reorgs    uint64
}

// New constructs a resolver rooted at the genesis block and applies the
// genesis block to the ledger.
func New(cfg Config) (*Resolver, error) {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	if err := cfg.Rules.ValidateGenesis(cfg.Genesis); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	if err := cfg.Ledger.Apply(cfg.Genesis); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	genesis := newNode(cfg.Genesis, nil)
	genesis.status = StatusCanonical

	r := Resolver{
		rules:     cfg.Rules,
		ledger:    cfg.Ledger,
		pool:      cfg.Pool,
		evHandler: ev,
		nodes:     map[string]*node{genesis.hash: genesis},
		genesis:   genesis,
		tip:       genesis,
		confirmed: make(map[string]string),
	}

	return &r, nil
}

// Accept validates the block against its parent and stores it. When the
// block's branch ends up with more cumulative work than the canonical
// chain, that branch becomes canonical.
func (r *Resolver) Accept(block database.Block) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash := block.Hash()
	if _, exists := r.nodes[hash]; exists {
		return Result{}, fmt.Errorf("%w: %s", ErrDuplicateBlock, hash)
	}

	parent, exists := r.nodes[block.Header.PrevBlockHash]
	if !exists {
		return Result{}, fmt.Errorf("%w: blk[%d] parent %s", ErrUnknownParent, block.Header.Number, block.Header.PrevBlockHash)
	}

	n, err := r.stage(block, parent)
	if err != nil {
		return Result{}, err
	}

	return r.settle([]*node{n})
}

// AcceptBranch validates a sequence of linked blocks as a whole and stores
// them. Blocks already known at the start of the sequence are skipped. The
// first new block's parent must be known, otherwise the branch shares no
// ancestor with this chain and an integrity error is returned. Any invalid
// block rejects the entire branch.
func (r *Resolver) AcceptBranch(blocks []database.Block) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(blocks) == 0 {
		return Result{}, fmt.Errorf("%w: empty branch", ErrInvalidBlock)
	}

	parent, exists := r.nodes[blocks[0].Header.PrevBlockHash]
	if !exists {
		return Result{}, &IntegrityError{Hash: blocks[0].Hash(), Reason: "branch shares no common ancestor with the chain"}
	}

	var fresh []*node
	for _, block := range blocks {
		if known, exists := r.nodes[block.Hash()]; exists && len(fresh) == 0 {
			if known.parent != parent {
				return Result{}, fmt.Errorf("%w: blk[%d] is stored on another branch", ErrInvalidBlock, block.Header.Number)
			}
			parent = known
			continue
		}

		n, err := r.stage(block, parent)
		if err != nil {
			return Result{}, err
		}

		fresh = append(fresh, n)
		parent = n
	}

	if len(fresh) == 0 {
		return Result{}, fmt.Errorf("%w: every block of the branch is known", ErrDuplicateBlock)
	}

	return r.settle(fresh)
}

// =============================================================================

// stage validates the block against its parent and builds its store node
// without inserting it.
func (r *Resolver) stage(block database.Block, parent *node) (*node, error) {
	r.evHandler("chain: Accept: blk[%d]: validating against parent[%s]", block.Header.Number, parent.hash)

	if err := r.rules.ValidateBlock(block, parent.hash, parent.block.Header, parent.ancestorHeaders, r.evHandler); err != nil {
		return nil, err
	}

	return newNode(block, parent), nil
}

// settle decides the fate of freshly validated nodes. The last node is the
// tip of their branch.
func (r *Resolver) settle(fresh []*node) (Result, error) {
	last := fresh[len(fresh)-1]

	if last.work.Cmp(r.tip.work) <= 0 {
		for _, n := range fresh {
			r.nodes[n.hash] = n
		}

		r.evHandler("chain: Accept: blk[%d]: side branch: work[%s] tip work[%s]", last.number(), last.work, r.tip.work)

		return Result{Outcome: OutcomeSideBranch, Hash: last.hash}, nil
	}

	return r.switchTo(last, fresh)
}

// =============================================================================

// Genesis returns the genesis block.
func (r *Resolver) Genesis() database.Block {
	return r.genesis.block
}

// Tip returns the hash and block of the canonical tip.
func (r *Resolver) Tip() (string, database.Block) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.tip.hash, r.tip.block
}

// Work returns the cumulative work of the canonical chain.
func (r *Resolver) Work() *big.Int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return new(big.Int).Set(r.tip.work)
}

// Block returns the stored block for the hash and its status.
func (r *Resolver) Block(hash string) (database.Block, Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, exists := r.nodes[hash]
	if !exists {
		return database.Block{}, 0, false
	}

	return n.block, n.status, true
}

// NextDifficulty returns the difficulty required of a block built on top of
// the specified block.
func (r *Resolver) NextDifficulty(hash string) (uint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, exists := r.nodes[hash]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrUnknownParent, hash)
	}

	return r.rules.Controller.Next(n.block.Header, n.ancestorHeaders), nil
}

// IsConfirmed reports whether the transaction is part of the canonical
// chain.
func (r *Resolver) IsConfirmed(txID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.confirmed[txID]
	return exists
}

// Canonical returns the canonical chain from genesis to the tip.
func (r *Resolver) Canonical() []database.BlockData {
	r.mu.RLock()
	defer r.mu.RUnlock()

	path, _ := pathFrom(nil, r.tip)

	blocks := make([]database.BlockData, len(path))
	for i, n := range path {
		blocks[i] = database.NewBlockData(n.block)
	}

	return blocks
}

// Orphaned returns every block abandoned by a reorg ordered by number.
func (r *Resolver) Orphaned() []database.BlockData {
	return r.withStatus(StatusOrphaned)
}

// SideBranches returns every block that was never canonical ordered by
// number.
func (r *Resolver) SideBranches() []database.BlockData {
	return r.withStatus(StatusSideBranch)
}

// Tips returns the hash of every branch tip in the store, the canonical
// tip first.
func (r *Resolver) Tips() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parents := make(map[*node]struct{}, len(r.nodes))
	for _, n := range r.nodes {
		if n.parent != nil {
			parents[n.parent] = struct{}{}
		}
	}

	tips := []string{r.tip.hash}
	var others []string
	for _, n := range r.nodes {
		if _, isParent := parents[n]; isParent || n == r.tip {
			continue
		}
		others = append(others, n.hash)
	}
	sort.Strings(others)

	return append(tips, others...)
}

// Orphans returns the number of blocks abandoned by reorgs.
func (r *Resolver) Orphans() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.orphans
}

// Reorgs returns the number of forks resolved by a reorg.
func (r *Resolver) Reorgs() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.reorgs
}

// Rules returns the consensus rules of the chain.
func (r *Resolver) Rules() Rules {
	return r.rules
}

// =============================================================================

func (r *Resolver) withStatus(status Status) []database.BlockData {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var blocks []database.BlockData
	for _, n := range r.nodes {
		if n.status == status {
			blocks = append(blocks, database.NewBlockData(n.block))
		}
	}
	database.SortByNumber(blocks)

	return blocks
}
