package state_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/powledger/foundation/blockchain/miner"
	"github.com/ardanlabs/powledger/foundation/blockchain/pool"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var (
	alice  = database.NameToAccountID("alice")
	bob    = database.NameToAccountID("bob")
	minerA = database.NameToAccountID("FoundryUSA")
	minerB = database.NameToAccountID("AntPool")

	// Every state in a test shares the genesis block.
	genesisDate = time.Now().UTC().Truncate(time.Millisecond)
)

// recorder keeps every event the state emits.
type recorder struct {
	mu        sync.Mutex
	confirmed []state.BlockConfirmed
	orphaned  []state.OrphanEvent
}

func (r *recorder) BlockConfirmed(bc state.BlockConfirmed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = append(r.confirmed, bc)
}

func (r *recorder) Orphaned(oe state.OrphanEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphaned = append(r.orphaned, oe)
}

func newState(t *testing.T) (*state.State, *recorder) {
	return newStateWithEvents(t, nil)
}

func newStateWithEvents(t *testing.T, ev state.EventHandler) (*state.State, *recorder) {
	gen := genesis.Default()
	gen.Date = genesisDate
	gen.Difficulty = 1
	gen.MinDifficulty = 1
	gen.MaxDifficulty = 1
	gen.MiningReward = 1000
	gen.Balances = map[database.AccountID]uint64{alice: 500}

	reg, err := pool.NewRegistry([]pool.Pool{
		{Name: "FoundryUSA", Account: minerA, HashRate: 60},
		{Name: "AntPool", Account: minerB, HashRate: 40},
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a registry: %s", failed, err)
	}

	rec := recorder{}

	st, err := state.New(state.Config{
		Genesis:   gen,
		Registry:  reg,
		Observer:  &rec,
		EvHandler: ev,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct the state: %s", failed, err)
	}

	return st, &rec
}

func submit(t *testing.T, st *state.State, amount uint64, fee uint64) database.Tx {
	tx, err := database.NewTx(alice, bob, amount, fee)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to construct a transaction: %s", failed, err)
	}

	if err := st.SubmitTransaction(tx); err != nil {
		t.Fatalf("\t%s\tShould be able to submit a transaction: %s", failed, err)
	}

	return tx
}

// =============================================================================

func TestMineNewBlock(t *testing.T) {
	t.Log("Given the need to mine blocks through the state.")
	{
		st, rec := newState(t)

		tx := submit(t, st, 100, 7)
		t.Logf("\t%s\tShould be able to submit a funded transaction.", success)

		overdraw, err := database.NewTx(alice, bob, 400, 1)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a transaction: %s", failed, err)
		}
		if err := st.SubmitTransaction(overdraw); !errors.Is(err, mempool.ErrInsufficientFunds) {
			t.Fatalf("\t%s\tShould reject spending funds already queued: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject spending funds already queued.", success)

		tipChanged := st.TipChanged()

		mined, err := st.MineNewBlock(context.Background(), minerA)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %s", failed, err)
		}
		if mined.Outcome != chain.OutcomeExtended {
			t.Fatalf("\t%s\tShould extend the chain, got %s.", failed, mined.Outcome)
		}
		t.Logf("\t%s\tShould be able to mine a block.", success)

		select {
		case <-tipChanged:
			t.Logf("\t%s\tShould signal the tip changed.", success)
		default:
			t.Fatalf("\t%s\tShould signal the tip changed.", failed)
		}

		if len(rec.confirmed) != 1 {
			t.Fatalf("\t%s\tShould emit one confirmation, got %d.", failed, len(rec.confirmed))
		}
		bc := rec.confirmed[0]
		if bc.Height != 1 || bc.Miner != "FoundryUSA" || bc.Fees != 7 || bc.Subsidy != 1000 || bc.TransactionCount != 1 || bc.Attempts == 0 {
			t.Fatalf("\t%s\tShould describe the mined block: %+v", failed, bc)
		}
		t.Logf("\t%s\tShould describe the mined block in the confirmation.", success)

		if err := st.SubmitTransaction(tx); !errors.Is(err, mempool.ErrDuplicateTx) {
			t.Fatalf("\t%s\tShould reject a confirmed transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a confirmed transaction.", success)

		if c, _ := st.RetrieveBalance(bob); c != 100 {
			t.Fatalf("\t%s\tShould credit the recipient: got %d.", failed, c)
		}
		if c, _ := st.RetrieveBalance(minerA); c != 1007 {
			t.Fatalf("\t%s\tShould credit the miner subsidy plus fees: got %d.", failed, c)
		}
		t.Logf("\t%s\tShould update the balances.", success)

		stats := st.Stats()
		if stats.Height != 1 || stats.TotalFees != 7 || stats.Transactions != 1 || stats.TotalIssued != 2000 {
			t.Fatalf("\t%s\tShould summarize the chain: %+v", failed, stats)
		}
		if len(stats.Miners) != 1 || stats.Miners[0].Rewards != 1007 {
			t.Fatalf("\t%s\tShould credit the miner in the stats: %+v", failed, stats.Miners)
		}
		t.Logf("\t%s\tShould summarize the chain.", success)

		snap := st.Snapshot()
		if len(snap.Blocks) != 2 || snap.Tip != mined.Solution.Hash || len(snap.Mempool) != 0 {
			t.Fatalf("\t%s\tShould capture the chain in the snapshot: %+v", failed, snap)
		}
		if !st.RetrieveRules().IsValid(snap.Blocks) {
			t.Fatalf("\t%s\tShould export a valid chain.", failed)
		}
		t.Logf("\t%s\tShould export a valid chain.", success)
	}
}

func TestMineCancelled(t *testing.T) {
	t.Log("Given the need to abandon a search.")
	{
		st, _ := newState(t)
		submit(t, st, 100, 1)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := st.MineNewBlock(ctx, minerA); !errors.Is(err, context.Canceled) {
			t.Fatalf("\t%s\tShould report the cancellation: %v", failed, err)
		}
		t.Logf("\t%s\tShould report the cancellation.", success)

		if st.QueryMempoolLength() != 1 {
			t.Fatalf("\t%s\tShould put the transaction back in the pool.", failed)
		}
		t.Logf("\t%s\tShould put the transaction back in the pool.", success)

		if _, err := st.MineNewBlock(context.Background(), "miner"); err == nil {
			t.Fatalf("\t%s\tShould reject an invalid miner account.", failed)
		}
		t.Logf("\t%s\tShould reject an invalid miner account.", success)
	}
}

func TestFork(t *testing.T) {
	t.Log("Given the need to resolve competing branches by work.")
	{
		st, rec := newState(t)
		genesisHash := st.RetrieveLatestBlock().Hash

		tx := submit(t, st, 100, 2)

		a1, err := st.MineNewBlock(context.Background(), minerA)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine A1: %s", failed, err)
		}

		b1, err := st.MineOnBranch(context.Background(), minerB, genesisHash)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine B1: %s", failed, err)
		}
		if b1.Outcome != chain.OutcomeSideBranch {
			t.Fatalf("\t%s\tShould keep the first seen tip on equal work, got %s.", failed, b1.Outcome)
		}
		t.Logf("\t%s\tShould keep the first seen tip on equal work.", success)

		b2, err := st.MineOnBranch(context.Background(), minerB, b1.Solution.Hash)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine B2: %s", failed, err)
		}
		if b2.Outcome != chain.OutcomeReorganized {
			t.Fatalf("\t%s\tShould reorganize onto the heavier branch, got %s.", failed, b2.Outcome)
		}
		t.Logf("\t%s\tShould reorganize onto the heavier branch.", success)

		if len(rec.orphaned) != 1 || rec.orphaned[0].BlockHash != a1.Solution.Hash || rec.orphaned[0].Miner != "FoundryUSA" {
			t.Fatalf("\t%s\tShould emit an orphan event for A1: %+v", failed, rec.orphaned)
		}
		t.Logf("\t%s\tShould emit an orphan event for A1.", success)

		queued := st.RetrieveMempool()
		if len(queued) != 1 || queued[0].ID != tx.ID {
			t.Fatalf("\t%s\tShould return the orphaned transaction to the mempool: %v", failed, queued)
		}
		t.Logf("\t%s\tShould return the orphaned transaction to the mempool.", success)

		a2, err := st.MineOnBranch(context.Background(), minerA, a1.Solution.Hash)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine A2: %s", failed, err)
		}
		if a2.Outcome != chain.OutcomeSideBranch || len(a2.Block.Transactions()) != 0 {
			t.Fatalf("\t%s\tShould not repeat a transaction of its own branch: %s %d", failed, a2.Outcome, len(a2.Block.Transactions()))
		}
		if st.QueryMempoolLength() != 1 {
			t.Fatalf("\t%s\tShould leave the transaction in the pool.", failed)
		}
		t.Logf("\t%s\tShould not repeat a transaction of its own branch.", success)

		stats := st.Stats()
		if stats.Orphaned != 1 || stats.ForksResolved != 1 || stats.Height != 2 {
			t.Fatalf("\t%s\tShould count the orphan and the fork: %+v", failed, stats)
		}
		if len(stats.Miners) != 1 || stats.Miners[0].Miner != "AntPool" || stats.Miners[0].Blocks != 2 {
			t.Fatalf("\t%s\tShould only credit canonical blocks: %+v", failed, stats.Miners)
		}
		t.Logf("\t%s\tShould only credit canonical blocks.", success)

		snap := st.Snapshot()
		if len(snap.Orphaned) != 1 || len(snap.Side) != 1 || snap.Side[0].Hash != a2.Solution.Hash {
			t.Fatalf("\t%s\tShould keep the abandoned branch in the snapshot: orphaned %d, side %d.", failed, len(snap.Orphaned), len(snap.Side))
		}
		t.Logf("\t%s\tShould keep the abandoned branch in the snapshot.", success)

		if len(st.RetrieveTips()) != 2 {
			t.Fatalf("\t%s\tShould track both branch tips: %v", failed, st.RetrieveTips())
		}
		t.Logf("\t%s\tShould track both branch tips.", success)
	}
}

func TestAcceptBlock(t *testing.T) {
	t.Log("Given the need to accept blocks mined elsewhere.")
	{
		st, _ := newState(t)
		other, _ := newState(t)

		mined, err := other.MineNewBlock(context.Background(), minerB)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to mine a block: %s", failed, err)
		}

		res, err := st.AcceptBlock(mined.Block)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to accept the block: %s", failed, err)
		}
		if res.Outcome != chain.OutcomeExtended {
			t.Fatalf("\t%s\tShould extend the chain, got %s.", failed, res.Outcome)
		}
		t.Logf("\t%s\tShould be able to accept the block.", success)

		if _, err := st.AcceptBlock(mined.Block); !errors.Is(err, chain.ErrDuplicateBlock) {
			t.Fatalf("\t%s\tShould reject the block twice: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject the block twice.", success)

		blocks := st.RetrieveBlocks(0, state.QueryLatest)
		if len(blocks) != 2 || blocks[1].Hash != mined.Solution.Hash {
			t.Fatalf("\t%s\tShould return the canonical blocks: %d", failed, len(blocks))
		}
		t.Logf("\t%s\tShould return the canonical blocks.", success)

		if _, err := st.AcceptBranch([]database.Block{mined.Block}); !errors.Is(err, chain.ErrDuplicateBlock) {
			t.Fatalf("\t%s\tShould reject a fully known branch: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a fully known branch.", success)
	}
}

func TestStaleBlock(t *testing.T) {
	t.Log("Given the need to drop a block whose parent stopped being the tip.")
	{
		var st *state.State
		var rival database.Block
		var rivalErr error
		var fired bool

		// A block from another miner lands while this node is searching.
		ev := func(v string, args ...any) {
			if st == nil || fired || !strings.HasPrefix(v, "miner: Search: MINING: started") {
				return
			}
			fired = true

			tip := st.RetrieveLatestBlock()
			issuer := st.RetrieveGenesis().Issuer()

			rival, rivalErr = miner.AssembleCandidate(issuer, miner.Tip{Hash: tip.Hash, Header: tip.Header}, 1, minerB, nil, time.Now())
			if rivalErr != nil {
				return
			}
			miner.Search(context.Background(), &rival, nil)

			_, rivalErr = st.AcceptBlock(rival)
		}

		st, _ = newStateWithEvents(t, ev)
		submit(t, st, 100, 3)

		_, err := st.MineNewBlock(context.Background(), minerA)
		if rivalErr != nil {
			t.Fatalf("\t%s\tShould be able to accept the competing block: %s", failed, rivalErr)
		}
		if !fired {
			t.Fatalf("\t%s\tShould deliver the competing block during the search.", failed)
		}

		if !state.IsStale(err) {
			t.Fatalf("\t%s\tShould report the mined block as stale: %v", failed, err)
		}
		t.Logf("\t%s\tShould report the mined block as stale.", success)

		if latest := st.RetrieveLatestBlock(); latest.Hash != rival.Hash() {
			t.Fatalf("\t%s\tShould keep the competing block as the tip: %s", failed, latest.Hash)
		}
		t.Logf("\t%s\tShould keep the competing block as the tip.", success)

		if st.QueryMempoolLength() != 1 {
			t.Fatalf("\t%s\tShould put the selected transaction back in the pool: %d", failed, st.QueryMempoolLength())
		}
		t.Logf("\t%s\tShould put the selected transaction back in the pool.", success)
	}
}

func TestRetarget(t *testing.T) {
	t.Log("Given the need to raise the difficulty when blocks come too fast.")
	{
		gen := genesis.Default()
		gen.Difficulty = 2
		gen.MinDifficulty = 1
		gen.MaxDifficulty = 4

		reg, err := pool.NewRegistry([]pool.Pool{{Name: "FoundryUSA", Account: minerA, HashRate: 100}})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a registry: %s", failed, err)
		}

		st, err := state.New(state.Config{Genesis: gen, Registry: reg})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct the state: %s", failed, err)
		}

		for i := range gen.RetargetInterval {
			if d := st.RetrieveDifficulty(); d != 2 {
				t.Fatalf("\t%s\tShould hold the difficulty inside the interval: blk[%d] difficulty %d.", failed, i+1, d)
			}

			if _, err := st.MineNewBlock(context.Background(), minerA); err != nil {
				t.Fatalf("\t%s\tShould be able to mine blk[%d]: %s", failed, i+1, err)
			}
		}
		t.Logf("\t%s\tShould hold the difficulty inside the interval.", success)

		if d := st.RetrieveDifficulty(); d != 3 {
			t.Fatalf("\t%s\tShould raise the difficulty by one: got %d.", failed, d)
		}
		t.Logf("\t%s\tShould raise the difficulty by one.", success)
	}
}
