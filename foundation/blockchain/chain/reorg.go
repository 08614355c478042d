package chain

import (
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/ledger"
)

// switchTo makes the branch ending at target canonical. Extending the tip by
// one block is applied in place since a single ledger apply is already
// atomic. Otherwise the new balances are built on a clone of the ledger and
// swapped in at the end so readers see either the old state or the new
// state. Fresh nodes are only inserted into the store once the switch
// succeeds.
func (r *Resolver) switchTo(target *node, fresh []*node) (Result, error) {
	ancestor := commonAncestor(r.tip, target)
	if ancestor == nil {
		return Result{}, &IntegrityError{Hash: target.hash, Reason: "no common ancestor with the canonical tip"}
	}

	oldPath, ok := pathFrom(ancestor, r.tip)
	if !ok {
		return Result{}, &IntegrityError{Hash: r.tip.hash, Reason: "canonical tip does not descend from the common ancestor"}
	}

	newPath, ok := pathFrom(ancestor, target)
	if !ok {
		return Result{}, &IntegrityError{Hash: target.hash, Reason: "branch does not descend from the common ancestor"}
	}

	if len(oldPath) > 0 {
		r.evHandler("chain: Reorganize: ancestor[%d][%s]: abandon[%d] blocks: adopt[%d] blocks", ancestor.number(), ancestor.hash, len(oldPath), len(newPath))
	}

	work, confirmed := r.ledger, r.confirmed

	inPlace := len(oldPath) == 0 && len(newPath) == 1
	if !inPlace {
		work = r.ledger.Clone()
		confirmed = make(map[string]string, len(r.confirmed))
		for id, hash := range r.confirmed {
			confirmed[id] = hash
		}
	}

	// Roll back the abandoned blocks, newest first.

	for i := len(oldPath) - 1; i >= 0; i-- {
		n := oldPath[i]
		if err := work.Rollback(n.block); err != nil {
			return Result{}, &IntegrityError{Hash: n.hash, Reason: fmt.Sprintf("unable to roll back canonical block: %s", err)}
		}

		for _, tx := range n.block.Transactions() {
			delete(confirmed, tx.ID)
		}
	}

	// Apply the adopted blocks, oldest first.
	for _, n := range newPath {
		if err := r.applyNode(work, confirmed, n); err != nil {
			r.prune(n)
			r.evHandler("chain: Reorganize: blk[%d][%s]: REJECTED: %s", n.number(), n.hash, err)
			return Result{}, err
		}
	}

	// Collect the transactions of abandoned blocks that the new branch
	// doesn't carry.
	adopted := make(map[string]struct{})
	for _, n := range newPath {
		for _, tx := range n.block.Transactions() {
			adopted[tx.ID] = struct{}{}
		}
	}

	var returned []database.Tx
	for _, n := range oldPath {
		for _, tx := range n.block.Transactions() {
			if _, exists := adopted[tx.ID]; !exists {
				returned = append(returned, tx)
			}
		}
	}

	// Commit. Nothing below can fail.
	if !inPlace {
		r.ledger.Replace(work)
		r.confirmed = confirmed
	}

	for _, n := range fresh {
		r.nodes[n.hash] = n
	}

	res := Result{
		Outcome:  OutcomeExtended,
		Hash:     target.hash,
		Returned: returned,
	}

	for _, n := range oldPath {
		n.status = StatusOrphaned
		res.Orphaned = append(res.Orphaned, n.block)
	}

	var applied []database.Tx
	for _, n := range newPath {
		n.status = StatusCanonical
		res.Applied = append(res.Applied, n.block)
		applied = append(applied, n.block.Transactions()...)
	}

	r.tip = target

	if len(oldPath) > 0 {
		res.Outcome = OutcomeReorganized
		r.orphans += uint64(len(oldPath))
		r.reorgs++
	}

	if r.pool != nil {
		res.Dropped = append(res.Dropped, r.pool.Confirm(applied)...)
		res.Dropped = append(res.Dropped, r.pool.ReturnToPool(returned)...)
	}

	r.evHandler("chain: Accept: blk[%d][%s]: %s: work[%s]", target.number(), target.hash, res.Outcome, target.work)

	return res, nil
}

// applyNode applies a block to the working ledger and records its
// transactions as confirmed. A transaction can only be confirmed once on a
// branch.
func (r *Resolver) applyNode(work *ledger.Ledger, confirmed map[string]string, n *node) error {
	for _, tx := range n.block.Transactions() {
		if hash, exists := confirmed[tx.ID]; exists {
			return fmt.Errorf("%w: blk[%d]: transaction %s already confirmed in %s", ErrInvalidBlock, n.number(), tx.ID, hash)
		}
	}

	if err := work.Apply(n.block); err != nil {
		return fmt.Errorf("%w: blk[%d]: %s", ErrInvalidBlock, n.number(), err)
	}

	for _, tx := range n.block.Transactions() {
		confirmed[tx.ID] = n.hash
	}

	return nil
}

// prune removes a block the ledger can't apply and everything built on top
// of it from the store.
func (r *Resolver) prune(bad *node) {
	for hash, n := range r.nodes {
		if n.descendsFrom(bad) {
			delete(r.nodes, hash)
		}
	}
}
