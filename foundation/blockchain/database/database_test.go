package database_test

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/reward"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

var (
	alice = database.NameToAccountID("alice")
	bob   = database.NameToAccountID("bob")
	miner = database.NameToAccountID("miner")
)

// =============================================================================

func TestTransaction(t *testing.T) {
	t.Log("Given the need to identify transactions by their contents.")
	{
		at := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

		tx1 := database.NewTxAt(alice, bob, 100, 5, at, "salt")
		tx2 := database.NewTxAt(alice, bob, 100, 5, at, "salt")
		if tx1.ID != tx2.ID {
			t.Fatalf("\t%s\tShould get the same id for the same contents.", failed)
		}
		t.Logf("\t%s\tShould get the same id for the same contents.", success)

		if err := tx1.Validate(); err != nil {
			t.Fatalf("\t%s\tShould validate a well formed transaction: %s", failed, err)
		}
		t.Logf("\t%s\tShould validate a well formed transaction.", success)

		tampered := tx1
		tampered.Amount = 1_000
		if err := tampered.Validate(); !errors.Is(err, database.ErrInvalidTx) {
			t.Fatalf("\t%s\tShould reject a transaction whose id doesn't match: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a transaction whose id doesn't match.", success)

		a, err := database.NewTx(alice, bob, 100, 5)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a transaction: %s", failed, err)
		}
		b, err := database.NewTx(alice, bob, 100, 5)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a transaction: %s", failed, err)
		}
		if a.ID == b.ID {
			t.Fatalf("\t%s\tShould salt repeated submissions into different ids.", failed)
		}
		t.Logf("\t%s\tShould salt repeated submissions into different ids.", success)

		if _, err := database.NewTx(alice, bob, 0, 5); !errors.Is(err, database.ErrInvalidAmount) {
			t.Fatalf("\t%s\tShould reject a zero amount: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a zero amount.", success)

		if rate := tx1.FeeRate(); rate != 5*1000/database.TxWeight {
			t.Fatalf("\t%s\tShould compute the fee rate by weight: got %d.", failed, rate)
		}
		t.Logf("\t%s\tShould compute the fee rate by weight.", success)

		large := database.NewTxAt(alice, bob, 1, math.MaxUint64/2, at, "large")
		if rate := large.FeeRate(); rate != math.MaxUint64 {
			t.Fatalf("\t%s\tShould saturate a rate too large to represent: got %d.", failed, rate)
		}

		wide := database.NewTxAt(alice, bob, 1, 1<<60, at, "wide")
		if rate := wide.FeeRate(); rate != 1<<62 {
			t.Fatalf("\t%s\tShould compute a large rate without overflow: got %d.", failed, rate)
		}
		t.Logf("\t%s\tShould compute large rates without overflow.", success)
	}
}

func TestBlockData(t *testing.T) {
	t.Log("Given the need to export blocks and detect tampering.")
	{
		iss := reward.Issuer{BaseReward: 1_000}
		at := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

		tx := database.NewTxAt(alice, bob, 100, 5, at, "salt")
		trans := []database.Tx{iss.Coinbase(1, miner, []database.Tx{tx}, at), tx}

		block, err := database.NewBlock(database.BlockHeader{Number: 1, MinerAccount: miner}, trans)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a block: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to construct a block.", success)

		if fees := block.Fees(); fees != 5 {
			t.Fatalf("\t%s\tShould sum the fees without the coinbase: got %d.", failed, fees)
		}
		t.Logf("\t%s\tShould sum the fees without the coinbase.", success)

		if n := len(block.Transactions()); n != 1 {
			t.Fatalf("\t%s\tShould leave the coinbase out of the transactions: got %d.", failed, n)
		}
		t.Logf("\t%s\tShould leave the coinbase out of the transactions.", success)

		bd := database.NewBlockData(block)
		if _, err := database.ToBlock(bd); err != nil {
			t.Fatalf("\t%s\tShould convert exported data back to a block: %s", failed, err)
		}
		t.Logf("\t%s\tShould convert exported data back to a block.", success)

		bd.Header.Nonce++
		if _, err := database.ToBlock(bd); !errors.Is(err, database.ErrInvalidBlock) {
			t.Fatalf("\t%s\tShould reject data whose header doesn't match the hash: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject data whose header doesn't match the hash.", success)
	}
}

func TestIsHashSolved(t *testing.T) {
	type table struct {
		name       string
		hash       string
		difficulty uint
		solved     bool
	}

	threeZeros := "0x000" + strings.Repeat("f", 61)

	tt := []table{
		{name: "exact", hash: threeZeros, difficulty: 3, solved: true},
		{name: "easier", hash: threeZeros, difficulty: 1, solved: true},
		{name: "harder", hash: threeZeros, difficulty: 4, solved: false},
		{name: "not a hash", hash: "0x000", difficulty: 1, solved: false},
	}

	t.Log("Given the need to check proof of work against a difficulty.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				if got := database.IsHashSolved(tst.difficulty, tst.hash); got != tst.solved {
					t.Fatalf("\t%s\tTest %d:\tShould get %v for difficulty %d: got %v.", failed, testID, tst.solved, tst.difficulty, got)
				}
				t.Logf("\t%s\tTest %d:\tShould get %v for difficulty %d.", success, testID, tst.solved, tst.difficulty)
			}

			t.Run(tst.name, f)
		}
	}
}

func TestWork(t *testing.T) {
	t.Log("Given the need to weigh blocks by expected attempts.")
	{
		if w := database.Work(3); w.Int64() != 4096 {
			t.Fatalf("\t%s\tShould grow by sixteen per digit: got %s.", failed, w)
		}
		t.Logf("\t%s\tShould grow by sixteen per digit.", success)
	}
}

func TestFeeOverflow(t *testing.T) {
	t.Log("Given the need to reject blocks whose fees can't be summed.")
	{
		at := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

		// Two fees of 2^63 wrap to a total of zero.
		trans := []database.Tx{
			database.NewTxAt(database.CoinbaseAccount, miner, 0, 0, at, "coinbase:1"),
			database.NewTxAt(alice, bob, 1, 1<<63, at, "1"),
			database.NewTxAt(alice, bob, 1, 1<<63, at, "2"),
		}

		// Difficulty zero accepts any hash.
		block, err := database.NewBlock(database.BlockHeader{Number: 1, MinerAccount: miner}, trans)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a block: %s", failed, err)
		}

		if fees := block.Fees(); fees != math.MaxUint64 {
			t.Fatalf("\t%s\tShould saturate the fee total: got %d.", failed, fees)
		}
		t.Logf("\t%s\tShould saturate the fee total.", success)

		if err := block.ValidateStructure(0); !errors.Is(err, database.ErrInvalidBlock) {
			t.Fatalf("\t%s\tShould reject the block: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject the block.", success)
	}
}
