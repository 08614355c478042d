// Package worker implements concurrent mining for the blockchain. Every
// miner identity gets its own goroutine searching on top of the canonical
// tip.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/pool"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
)

// Config represents the configuration required to run the miners.
type Config struct {
	Miners []pool.Pool

	// PropagationDelay is how long a miner keeps searching on a tip after
	// another miner replaced it. Blocks found in that window are stale.
	PropagationDelay time.Duration

	// MinTransactions is the number of pending transactions required before
	// a miner starts a search. Zero mines empty blocks.
	MinTransactions int

	// Continuous keeps every miner searching after each block instead of
	// waiting for a start signal.
	Continuous bool

	EvHandler state.EventHandler
}

// Worker manages the POW workflows for the blockchain.
type Worker struct {
	state     *state.State
	cfg       Config
	wg        sync.WaitGroup
	shut      chan struct{}
	miners    []*minerG
	hold      sync.RWMutex
	mu        sync.Mutex
	cancels   map[int]context.CancelFunc
	nextID    int
	evHandler state.EventHandler
}

// minerG is the goroutine searching on behalf of one pool.
type minerG struct {
	pool        pool.Pool
	startMining chan bool
}

// Run creates a worker, registers the worker with the state package, and
// starts up all the background processes.
func Run(st *state.State, cfg Config) *Worker {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	w := Worker{
		state:     st,
		cfg:       cfg,
		shut:      make(chan struct{}),
		cancels:   make(map[int]context.CancelFunc),
		evHandler: ev,
	}

	for _, p := range cfg.Miners {
		w.miners = append(w.miners, &minerG{
			pool:        p,
			startMining: make(chan bool, 1),
		})
	}

	// Register this worker with the state package.
	st.Worker = &w

	// Set waitgroup to match the number of G's we need for the set
	// of miners we have.
	g := len(w.miners)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, m := range w.miners {
		go func(m *minerG) {
			defer w.wg.Done()
			hasStarted <- true
			w.miningOperations(m)
		}(m)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	if cfg.Continuous {
		w.SignalStartMining()
	}

	return &w
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: signal cancel mining")
	done := w.SignalCancelMining()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	done()

	w.wg.Wait()
}

// SignalStartMining starts a mining operation on every miner. If there is
// already a signal pending for a miner, that miner is skipped since a mining
// operation will start.
func (w *Worker) SignalStartMining() {
	for _, m := range w.miners {
		w.signalStart(m)
	}
	w.evHandler("worker: SignalStartMining: mining signaled")
}

// SignalCancelMining cancels every search in progress. No miner starts a
// new search until done is called, which allows the caller to complete any
// state changes first.
func (w *Worker) SignalCancelMining() (done func()) {
	w.hold.Lock()

	w.mu.Lock()
	for _, cancel := range w.cancels {
		cancel()
	}
	w.mu.Unlock()

	w.evHandler("worker: SignalCancelMining: MINING: CANCEL: signaled")

	var once sync.Once
	return func() { once.Do(w.hold.Unlock) }
}

// =============================================================================

// signalStart signals a single miner without blocking.
func (w *Worker) signalStart(m *minerG) {
	select {
	case m.startMining <- true:
	default:
	}
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}

// track registers the cancel function of a search in progress.
func (w *Worker) track(cancel context.CancelFunc) (untrack func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++
	w.cancels[id] = cancel

	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.cancels, id)
	}
}
