// Package mempool maintains the mempool for the blockchain.
package mempool

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool/selector"
)

// Set of error variables for transaction admission.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDuplicateTx       = errors.New("duplicate transaction")
	ErrInvalidAmount     = database.ErrInvalidAmount
	ErrInvalidTx         = database.ErrInvalidTx
)

// Balances provides the confirmed balance of an account.
type Balances interface {
	Balance(account database.AccountID) uint64
}

// entry tracks a transaction with its admission sequence.
type entry struct {
	tx  database.Tx
	seq uint64
}

// Mempool represents a cache of admitted, unconfirmed transactions keyed by
// transaction id. Every admitted transaction holds a reservation against
// its sender's confirmed balance so the same funds can't be queued twice.
// Transactions handed to a block candidate move to the inflight set and
// keep their reservation until they are confirmed or released.
type Mempool struct {
	pool     map[string]entry
	inflight map[string]entry
	reserved map[database.AccountID]uint64
	seq      uint64
	balances Balances
	selectFn selector.Func
	mu       sync.RWMutex
}

// New constructs a new mempool using the default sort strategy.
func New(balances Balances) (*Mempool, error) {
	return NewWithStrategy(balances, selector.StrategyFee)
}

// NewWithStrategy constructs a new mempool with specified sort strategy.
func NewWithStrategy(balances Balances, strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]entry),
		inflight: make(map[string]entry),
		reserved: make(map[database.AccountID]uint64),
		balances: balances,
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transactions waiting in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// InFlight returns the number of transactions held by block candidates.
func (mp *Mempool) InFlight() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.inflight)
}

// Available returns the confirmed balance of the account minus what is
// reserved by its queued transactions.
func (mp *Mempool) Available(account database.AccountID) uint64 {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.available(account)
}

// Admit validates the transaction and reserves the sender's funds. Nothing
// changes when an error is returned.
func (mp *Mempool) Admit(tx database.Tx) (int, error) {
	if err := tx.Validate(); err != nil {
		return 0, err
	}

	if tx.IsCoinbase() {
		return 0, fmt.Errorf("%w: coinbase transactions are issued by miners", ErrInvalidTx)
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.contains(tx.ID) {
		return 0, fmt.Errorf("%w: %s", ErrDuplicateTx, tx.ID)
	}

	if err := mp.reserve(tx); err != nil {
		return 0, err
	}

	mp.insert(tx)

	return len(mp.pool), nil
}

// SelectForBlock uses the configured sort strategy to remove and return the
// next set of transactions for a block candidate. Selected transactions keep
// their reservation so two candidates never select the same transaction.
func (mp *Mempool) SelectForBlock(howMany int) []database.Tx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	txs := mp.selectFn(mp.ordered(mp.pool), howMany)
	for _, tx := range txs {
		mp.inflight[tx.ID] = mp.pool[tx.ID]
		delete(mp.pool, tx.ID)
	}

	return txs
}

// Release puts transactions selected for a candidate that was not accepted
// back in the pool. The reservation is already held so nothing is reserved
// again. Transactions that are no longer inflight were confirmed or dropped
// in the meantime and are ignored.
func (mp *Mempool) Release(txs []database.Tx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var released int
	for _, tx := range txs {
		e, exists := mp.inflight[tx.ID]
		if !exists {
			continue
		}

		delete(mp.inflight, tx.ID)
		mp.pool[tx.ID] = e
		released++
	}

	return released
}

// ReturnToPool reinserts transactions discarded by a reorg. Each one must be
// funded by the current confirmed balance, less what is already reserved, or
// it is dropped. The dropped transactions are returned.
func (mp *Mempool) ReturnToPool(txs []database.Tx) []database.Tx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var dropped []database.Tx
	for _, tx := range txs {
		if tx.IsCoinbase() || mp.contains(tx.ID) {
			continue
		}

		if err := mp.reserve(tx); err != nil {
			dropped = append(dropped, tx)
			continue
		}

		mp.insert(tx)
	}

	return dropped
}

// Confirm removes the transactions included in a canonical block and
// releases their reservations. The ledger now reflects those debits. Any
// queued transaction the new balances can no longer fund is dropped and
// returned.
func (mp *Mempool) Confirm(txs []database.Tx) []database.Tx {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, tx := range txs {
		if tx.IsCoinbase() {
			continue
		}

		if _, exists := mp.pool[tx.ID]; exists {
			delete(mp.pool, tx.ID)
			mp.release(tx)
			continue
		}

		if _, exists := mp.inflight[tx.ID]; exists {
			delete(mp.inflight, tx.ID)
			mp.release(tx)
		}
	}

	return mp.reconcile()
}

// Copy returns the transactions waiting in the pool in admission order.
func (mp *Mempool) Copy() []database.Tx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return mp.ordered(mp.pool)
}

// =============================================================================

func (mp *Mempool) contains(id string) bool {
	if _, exists := mp.pool[id]; exists {
		return true
	}

	_, exists := mp.inflight[id]
	return exists
}

func (mp *Mempool) available(account database.AccountID) uint64 {
	balance := mp.balances.Balance(account)
	reserved := mp.reserved[account]

	if reserved >= balance {
		return 0
	}

	return balance - reserved
}

func (mp *Mempool) reserve(tx database.Tx) error {
	available := mp.available(tx.From)
	if available < tx.Cost() {
		return fmt.Errorf("%w: account %s has %d available, needs %d", ErrInsufficientFunds, tx.From, available, tx.Cost())
	}

	mp.reserved[tx.From] += tx.Cost()

	return nil
}

func (mp *Mempool) release(tx database.Tx) {
	reserved := mp.reserved[tx.From]
	if reserved <= tx.Cost() {
		delete(mp.reserved, tx.From)
		return
	}

	mp.reserved[tx.From] = reserved - tx.Cost()
}

func (mp *Mempool) insert(tx database.Tx) {
	mp.seq++
	mp.pool[tx.ID] = entry{tx: tx, seq: mp.seq}
}

// reconcile rebuilds the reservation table from scratch.
func (mp *Mempool) reconcile() []database.Tx {
	all := make([]entry, 0, len(mp.pool)+len(mp.inflight))
	for _, e := range mp.pool {
		all = append(all, e)
	}
	for _, e := range mp.inflight {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	mp.reserved = make(map[database.AccountID]uint64)

	var dropped []database.Tx
	for _, e := range all {
		if err := mp.reserve(e.tx); err != nil {
			delete(mp.pool, e.tx.ID)
			delete(mp.inflight, e.tx.ID)
			dropped = append(dropped, e.tx)
		}
	}

	return dropped
}

// ordered returns the transactions of the set in admission order.
func (mp *Mempool) ordered(set map[string]entry) []database.Tx {
	entries := make([]entry, 0, len(set))
	for _, e := range set {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	txs := make([]database.Tx, len(entries))
	for i, e := range entries {
		txs[i] = e.tx
	}

	return txs
}
