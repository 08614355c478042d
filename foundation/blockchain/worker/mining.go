package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/state"
)

// miningOperations handles mining for one miner.
func (w *Worker) miningOperations(m *minerG) {
	w.evHandler("worker: miningOperations: miner[%s]: G started", m.pool.Name)
	defer w.evHandler("worker: miningOperations: miner[%s]: G completed", m.pool.Name)

	for {
		select {
		case <-m.startMining:
			if !w.isShutdown() {
				w.runMiningOperation(m)
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: miner[%s]: received shut signal", m.pool.Name)
			return
		}
	}
}

// runMiningOperation takes the best transactions from the mempool and tries
// to extend the canonical tip with them.
func (w *Worker) runMiningOperation(m *minerG) {
	w.evHandler("worker: runMiningOperation: miner[%s]: MINING: started", m.pool.Name)
	defer w.evHandler("worker: runMiningOperation: miner[%s]: MINING: completed", m.pool.Name)

	// Make sure there are enough transactions in the mempool.
	length := w.state.QueryMempoolLength()
	if length < w.cfg.MinTransactions {
		w.evHandler("worker: runMiningOperation: miner[%s]: MINING: not enough transactions to mine: Txs[%d]", m.pool.Name, length)
		return
	}

	// After running a mining operation, check if a new operation should
	// be signaled again.
	defer func() {
		if w.isShutdown() {
			return
		}

		length := w.state.QueryMempoolLength()
		if w.cfg.Continuous || (length > 0 && length >= w.cfg.MinTransactions) {
			w.evHandler("worker: runMiningOperation: miner[%s]: MINING: signal new mining operation: Txs[%d]", m.pool.Name, length)
			w.signalStart(m)
		}
	}()

	// Create a context so mining can be cancelled. A pending cancel request
	// holds new searches back until its caller is done.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w.hold.RLock()
	untrack := w.track(cancel)
	w.hold.RUnlock()
	defer untrack()

	if w.isShutdown() {
		return
	}

	// Capture the tip signal before the search reads the tip.
	tipChanged := w.state.TipChanged()

	// Can't return from this function until these G's are complete.
	var wg sync.WaitGroup
	wg.Add(2)

	// This G exists to cancel the mining operation when another block wins.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		select {
		case <-tipChanged:
			w.evHandler("worker: runMiningOperation: miner[%s]: MINING: tip changed", m.pool.Name)
		case <-w.shut:
			return
		case <-ctx.Done():
			return
		}

		if w.cfg.PropagationDelay <= 0 {
			return
		}

		// The news of the new tip takes time to reach this miner.
		timer := time.NewTimer(w.cfg.PropagationDelay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-w.shut:
		case <-ctx.Done():
		}
	}()

	// This G is performing the mining.
	go func() {
		defer func() {
			cancel()
			wg.Done()
		}()

		mined, err := w.state.MineNewBlock(ctx, m.pool.Account)
		if err != nil {
			switch {
			case state.IsStale(err):
				w.evHandler("worker: runMiningOperation: miner[%s]: MINING: STALE: %s", m.pool.Name, err)
			case ctx.Err() != nil:
				w.evHandler("worker: runMiningOperation: miner[%s]: MINING: CANCEL: complete", m.pool.Name)
			default:
				w.evHandler("worker: runMiningOperation: miner[%s]: MINING: ERROR: %s", m.pool.Name, err)
			}
			return
		}

		w.evHandler("worker: runMiningOperation: miner[%s]: MINING: blk[%d][%s]: %s: attempts[%d]: duration[%v]", m.pool.Name, mined.Block.Header.Number, mined.Solution.Hash, mined.Outcome, mined.Solution.Attempts, mined.Solution.Elapsed)
	}()

	// Wait for both G's to terminate.
	wg.Wait()
}
