package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/miner"
)

// ErrStaleBlock is returned when a mined block no longer extends the
// canonical tip. It means another miner won the race.
var ErrStaleBlock = chain.ErrStaleBlock

// Mined describes a block this node mined and what accepting it did.
type Mined struct {
	Block    database.Block
	Solution miner.Solution
	Outcome  chain.Outcome
}

// MineNewBlock attempts to create a new block on top of the canonical tip
// with a proper hash that can become the next block in the chain. If the
// tip moves while the search is running, the block is rejected as stale.
func (s *State) MineNewBlock(ctx context.Context, minerAccount database.AccountID) (Mined, error) {
	tipHash, tip := s.resolver.Tip()
	return s.mine(ctx, minerAccount, tipHash, tip, true)
}

// MineOnBranch attempts to create a new block on top of any known block,
// canonical or not. It is how competing branches are grown. The outcome of
// the mined block is decided by cumulative work alone.
func (s *State) MineOnBranch(ctx context.Context, minerAccount database.AccountID, tipHash string) (Mined, error) {
	tip, _, exists := s.resolver.Block(tipHash)
	if !exists {
		return Mined{}, fmt.Errorf("%w: %s", chain.ErrUnknownParent, tipHash)
	}

	return s.mine(ctx, minerAccount, tipHash, tip, false)
}

// AcceptBlock takes a block received from outside this node and validates
// it before adding it to the block store.
func (s *State) AcceptBlock(block database.Block) (chain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: AcceptBlock: started: prevBlk[%s]: newBlk[%d]", block.Header.PrevBlockHash, block.Header.Number)
	defer s.evHandler("state: AcceptBlock: completed: newBlk[%d]", block.Header.Number)

	res, err := s.resolver.Accept(block)
	if err != nil {
		return chain.Result{}, err
	}

	s.settle(res, nil)

	return res, nil
}

// AcceptBranch takes a sequence of linked blocks received from outside this
// node. The branch is validated and stored as a whole or not at all.
func (s *State) AcceptBranch(blocks []database.Block) (chain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: AcceptBranch: started: blocks[%d]", len(blocks))
	defer s.evHandler("state: AcceptBranch: completed")

	res, err := s.resolver.AcceptBranch(blocks)
	if err != nil {
		if chain.IsIntegrityError(err) {
			s.evHandler("state: AcceptBranch: INTEGRITY: %s", err)
		}
		return chain.Result{}, err
	}

	s.settle(res, nil)

	return res, nil
}

// =============================================================================

// mine assembles, solves and submits a candidate on top of the specified
// block. Selected transactions go back to the pool whenever the candidate
// does not end up canonical.
func (s *State) mine(ctx context.Context, minerAccount database.AccountID, tipHash string, tip database.Block, requireTip bool) (Mined, error) {
	if !minerAccount.IsAccountID() {
		return Mined{}, fmt.Errorf("invalid miner account %q", minerAccount)
	}

	difficulty, err := s.resolver.NextDifficulty(tipHash)
	if err != nil {
		return Mined{}, err
	}

	trans := s.mempool.SelectForBlock(int(s.genesis.TransPerBlock))
	if !requireTip {
		trans = s.excludeBranch(tipHash, trans)
	}

	// A block can't be older than its parent.
	now := time.Now()
	if parent := time.UnixMilli(int64(tip.Header.TimeStamp)); now.Before(parent) {
		now = parent
	}

	block, err := miner.AssembleCandidate(s.issuer, miner.Tip{Hash: tipHash, Header: tip.Header}, difficulty, minerAccount, trans, now)
	if err != nil {
		s.mempool.Release(trans)
		return Mined{}, err
	}

	sol, solved := miner.Search(ctx, &block, miner.EventHandler(s.evHandler))
	if !solved {
		s.mempool.Release(trans)
		return Mined{}, fmt.Errorf("mining blk[%d]: %w", block.Header.Number, context.Cause(ctx))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if requireTip {
		if current, _ := s.resolver.Tip(); current != tipHash {
			s.mempool.Release(trans)
			s.evHandler("state: MineNewBlock: blk[%d][%s]: STALE: tip moved to[%s]", block.Header.Number, sol.Hash, current)
			return Mined{}, fmt.Errorf("%w: blk[%d] extends %s", ErrStaleBlock, block.Header.Number, tipHash)
		}
	}

	res, err := s.resolver.Accept(block)
	if err != nil {
		s.mempool.Release(trans)
		return Mined{}, err
	}

	if res.Outcome == chain.OutcomeSideBranch {
		s.mempool.Release(trans)
	}

	s.settle(res, &sol)

	m := Mined{
		Block:    block,
		Solution: sol,
		Outcome:  res.Outcome,
	}

	return m, nil
}

// excludeBranch releases the selected transactions already confirmed on the
// non-canonical part of the branch ending at tipHash and returns the rest.
func (s *State) excludeBranch(tipHash string, trans []database.Tx) []database.Tx {
	onBranch := make(map[string]struct{})

	for hash := tipHash; ; {
		block, status, exists := s.resolver.Block(hash)
		if !exists || status == chain.StatusCanonical {
			break
		}

		for id := range database.TxIDs(block.Transactions()) {
			onBranch[id] = struct{}{}
		}
		hash = block.Header.PrevBlockHash
	}

	if len(onBranch) == 0 {
		return trans
	}

	var keep, release []database.Tx
	for _, tx := range trans {
		if _, exists := onBranch[tx.ID]; exists {
			release = append(release, tx)
			continue
		}
		keep = append(keep, tx)
	}
	s.mempool.Release(release)

	return keep
}

// IsStale reports whether the error means a mined block lost the race.
func IsStale(err error) bool {
	return errors.Is(err, ErrStaleBlock)
}
