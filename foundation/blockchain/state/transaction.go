package state

import (
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
)

// SubmitTransaction accepts a transaction for inclusion. The sender must be
// able to fund it from the confirmed balance less what the sender already
// has queued.
func (s *State) SubmitTransaction(tx database.Tx) error {
	if s.resolver.IsConfirmed(tx.ID) {
		return fmt.Errorf("%w: %s is already confirmed", mempool.ErrDuplicateTx, tx.ID)
	}

	n, err := s.mempool.Admit(tx)
	if err != nil {
		s.evHandler("state: SubmitTransaction: tx[%s]: REJECTED: %s", tx, err)
		return err
	}

	s.evHandler("state: SubmitTransaction: tx[%s]: mempool[%d]", tx, n)

	s.Worker.SignalStartMining()

	return nil
}
