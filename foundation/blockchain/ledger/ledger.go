// Package ledger maintains account balances in memory. Balances only change
// by applying or rolling back confirmed blocks.
package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// ErrInsufficientFunds is returned when a block spends more than an account
// holds.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger represents the data representation to maintain account balances.
type Ledger struct {
	sheet map[database.AccountID]uint64
	mu    sync.RWMutex
}

// New constructs a new ledger for use, expects a starting balance sheet
// usually from a genesis file.
func New(initial map[database.AccountID]uint64) *Ledger {
	l := Ledger{
		sheet: make(map[database.AccountID]uint64),
	}

	for account, value := range initial {
		if value == 0 {
			continue
		}
		l.sheet[account] = value
	}

	return &l
}

// Replace updates the ledger to the balances of the specified ledger. The
// swap happens under a single lock so readers see either all of the old
// balances or all of the new ones.
func (l *Ledger) Replace(other *Ledger) {
	sheet := other.Copy()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sheet = sheet
}

// Clone makes a copy of the current ledger.
func (l *Ledger) Clone() *Ledger {
	l.mu.RLock()
	defer l.mu.RUnlock()

	clone := Ledger{
		sheet: make(map[database.AccountID]uint64, len(l.sheet)),
	}
	for account, value := range l.sheet {
		clone.sheet[account] = value
	}

	return &clone
}

// Copy makes a copy of the current balances but returns the raw data.
func (l *Ledger) Copy() map[database.AccountID]uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	sheet := make(map[database.AccountID]uint64, len(l.sheet))
	for account, value := range l.sheet {
		sheet[account] = value
	}

	return sheet
}

// Balance returns the confirmed balance for the specified account.
func (l *Ledger) Balance(account database.AccountID) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.sheet[account]
}

// Total returns the sum of every balance in the ledger.
func (l *Ledger) Total() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var total uint64
	for _, value := range l.sheet {
		total += value
	}

	return total
}

// Apply performs the business logic for applying the transactions of a
// confirmed block. Senders pay amount plus fee, recipients receive the
// amount and the coinbase credits the miner with subsidy plus fees. Either
// the whole block is applied or nothing changes.
func (l *Ledger) Apply(block database.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delta := newDelta(l.sheet)

	for _, tx := range block.Trans {
		if !tx.IsCoinbase() {
			if err := delta.debit(tx.From, tx.Cost()); err != nil {
				return fmt.Errorf("block %d tx %s: %w", block.Header.Number, tx.ID, err)
			}
		}
		delta.credit(tx.To, tx.Amount)
	}

	delta.commit(l.sheet)

	return nil
}

// Rollback is the exact inverse of Apply for the same block.
func (l *Ledger) Rollback(block database.Block) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delta := newDelta(l.sheet)

	for i := len(block.Trans) - 1; i >= 0; i-- {
		tx := block.Trans[i]

		if err := delta.debit(tx.To, tx.Amount); err != nil {
			return fmt.Errorf("rollback block %d tx %s: %w", block.Header.Number, tx.ID, err)
		}
		if !tx.IsCoinbase() {
			delta.credit(tx.From, tx.Cost())
		}
	}

	delta.commit(l.sheet)

	return nil
}

// =============================================================================

// delta stages balance changes so a failure part way through a block leaves
// the sheet untouched.
type delta struct {
	sheet   map[database.AccountID]uint64
	changes map[database.AccountID]uint64
}

func newDelta(sheet map[database.AccountID]uint64) *delta {
	return &delta{
		sheet:   sheet,
		changes: make(map[database.AccountID]uint64),
	}
}

func (d *delta) balance(account database.AccountID) uint64 {
	if value, exists := d.changes[account]; exists {
		return value
	}

	return d.sheet[account]
}

func (d *delta) credit(account database.AccountID, value uint64) {
	d.changes[account] = d.balance(account) + value
}

func (d *delta) debit(account database.AccountID, value uint64) error {
	current := d.balance(account)
	if current < value {
		return fmt.Errorf("%w: account %s has %d, needs %d", ErrInsufficientFunds, account, current, value)
	}

	d.changes[account] = current - value

	return nil
}

// commit writes the staged balances, pruning accounts left at zero.
func (d *delta) commit(sheet map[database.AccountID]uint64) {
	for account, value := range d.changes {
		if value == 0 {
			delete(sheet, account)
			continue
		}
		sheet[account] = value
	}
}
