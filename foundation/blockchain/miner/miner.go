// Package miner assembles block candidates and performs the proof of work
// search for them.
package miner

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/reward"
)

// ReportEvery is how many attempts pass between progress events.
const ReportEvery = 1_000_000

// EventHandler defines a function that is called when events occur in the
// processing of the search.
type EventHandler func(v string, args ...any)

// Solution describes the outcome of a successful search.
type Solution struct {
	Nonce    uint64
	Hash     string
	Attempts uint64
	Elapsed  time.Duration
}

// Tip identifies the block a candidate extends.
type Tip struct {
	Hash   string
	Header database.BlockHeader
}

// AssembleCandidate builds the next block on top of the tip. The coinbase
// paying subsidy plus fees to the miner is prepended to the selected
// transactions.
func AssembleCandidate(issuer reward.Issuer, tip Tip, difficulty uint, miner database.AccountID, trans []database.Tx, now time.Time) (database.Block, error) {
	number := tip.Header.Number + 1

	coinbase := issuer.Coinbase(number, miner, trans, now)

	all := make([]database.Tx, 0, len(trans)+1)
	all = append(all, coinbase)
	all = append(all, trans...)

	header := database.BlockHeader{
		Number:        number,
		PrevBlockHash: tip.Hash,
		TimeStamp:     uint64(now.UTC().UnixMilli()),
		Nonce:         0, // Will be identified by the POW algorithm.
		Difficulty:    difficulty,
		MinerAccount:  miner,
	}

	return database.NewBlock(header, all)
}

// Search does the work of mining to find a valid hash for the specified
// block. Pointer semantics are being used since a nonce is being discovered.
// When the context is cancelled the search is abandoned and false is
// returned; losing a race is not an error.
func Search(ctx context.Context, b *database.Block, ev EventHandler) (Solution, bool) {
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	ev("miner: Search: MINING: started: blk[%d]: difficulty[%d]", b.Header.Number, b.Header.Difficulty)
	defer ev("miner: Search: MINING: completed: blk[%d]", b.Header.Number)

	// Log the transactions that are a part of this potential block.
	for _, tx := range b.Trans {
		ev("miner: Search: MINING: tx[%s]", tx)
	}

	// Choose a random starting point for the nonce. After this, the nonce
	// will be incremented by 1 until a solution is found by us or another
	// miner.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err == nil {
		b.Header.Nonce = nBig.Uint64()
	}

	start := time.Now()

	var attempts uint64
	for {
		attempts++
		if attempts%ReportEvery == 0 {
			ev("miner: Search: MINING: attempts[%d]", attempts)
		}

		// Did we get cancelled trying to solve the problem.
		if ctx.Err() != nil {
			ev("miner: Search: MINING: CANCELLED: attempts[%d]", attempts)
			return Solution{}, false
		}

		// Hash the block and check if we have solved the puzzle.
		hash := b.Hash()
		if !database.IsHashSolved(b.Header.Difficulty, hash) {
			b.Header.Nonce++
			continue
		}

		sol := Solution{
			Nonce:    b.Header.Nonce,
			Hash:     hash,
			Attempts: attempts,
			Elapsed:  time.Since(start),
		}

		ev("miner: Search: MINING: SOLVED: prevBlk[%s]: newBlk[%s]", b.Header.PrevBlockHash, hash)
		ev("miner: Search: MINING: attempts[%d]: elapsed[%v]", attempts, sol.Elapsed)

		return sol, true
	}
}
