package mempool_test

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// balances is a fixed balance sheet for the tests.
type balances map[database.AccountID]uint64

func (b balances) Balance(account database.AccountID) uint64 {
	return b[account]
}

var (
	bill  = database.NameToAccountID("bill")
	pavel = database.NameToAccountID("pavel")
	ed    = database.NameToAccountID("ed")
	now   = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

func tran(from database.AccountID, amount uint64, fee uint64, salt string) database.Tx {
	return database.NewTxAt(from, ed, amount, fee, now, salt)
}

func TestSelectForBlock(t *testing.T) {
	t.Log("Given the need to select the best paying transactions.")
	{
		t.Logf("\tTest 0:\tWhen admitting fees [5,1,3] in that order.")
		{
			mp, err := mempool.New(balances{bill: 1000})
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct a mempool: %s", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to construct a mempool.", success)

			for i, fee := range []uint64{5, 1, 3} {
				if _, err := mp.Admit(tran(bill, 10, fee, string(rune('a'+i)))); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to admit fee %d: %s", failed, fee, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould be able to admit the transactions.", success)

			best := mp.SelectForBlock(2)
			if len(best) != 2 || best[0].Fee != 5 || best[1].Fee != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould select fee 5 then fee 3: %v", failed, best)
			}
			t.Logf("\t%s\tTest 0:\tShould select fee 5 then fee 3.", success)

			if mp.Count() != 1 || mp.InFlight() != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould move selected transactions out of the pool: pool %d inflight %d", failed, mp.Count(), mp.InFlight())
			}
			t.Logf("\t%s\tTest 0:\tShould move selected transactions out of the pool.", success)

			again := mp.SelectForBlock(2)
			if len(again) != 1 || again[0].Fee != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould never select the same transaction twice: %v", failed, again)
			}
			t.Logf("\t%s\tTest 0:\tShould never select the same transaction twice.", success)

			if n := mp.Release(best); n != 2 || mp.Count() != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould release the candidate transactions: %d", failed, n)
			}
			t.Logf("\t%s\tTest 0:\tShould release the candidate transactions.", success)

			if got := mp.Available(bill); got != 1000-(15+11+13) {
				t.Fatalf("\t%s\tTest 0:\tShould not reserve released transactions twice: %d", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould not reserve released transactions twice.", success)
		}
	}
}

func TestAdmit(t *testing.T) {
	type table struct {
		name string
		txs  []database.Tx
		err  error
	}

	tt := []table{
		{
			name: "within balance",
			txs:  []database.Tx{tran(bill, 50, 10, "1"), tran(bill, 30, 10, "2")},
		},
		{
			name: "overspend across queued",
			txs:  []database.Tx{tran(bill, 50, 10, "1"), tran(bill, 40, 1, "2")},
			err:  mempool.ErrInsufficientFunds,
		},
		{
			name: "unknown sender",
			txs:  []database.Tx{tran(pavel, 1, 0, "1")},
			err:  mempool.ErrInsufficientFunds,
		},
		{
			name: "zero amount",
			txs:  []database.Tx{tran(bill, 0, 1, "1")},
			err:  mempool.ErrInvalidAmount,
		},
		{
			name: "duplicate",
			txs:  []database.Tx{tran(bill, 1, 1, "1"), tran(bill, 1, 1, "1")},
			err:  mempool.ErrDuplicateTx,
		},
		{
			name: "coinbase",
			txs:  []database.Tx{database.NewTxAt(database.CoinbaseAccount, bill, 10, 0, now, "cb")},
			err:  mempool.ErrInvalidTx,
		},
	}

	t.Log("Given the need to admit transactions against available funds.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen admitting %d transactions.", testID, len(tst.txs))
				{
					mp, err := mempool.New(balances{bill: 100})
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to construct a mempool: %s", failed, testID, err)
					}

					var last error
					for _, tx := range tst.txs {
						if _, err := mp.Admit(tx); err != nil {
							last = err
						}
					}

					switch tst.err {
					case nil:
						if last != nil {
							t.Fatalf("\t%s\tTest %d:\tShould admit every transaction: %s", failed, testID, last)
						}
						t.Logf("\t%s\tTest %d:\tShould admit every transaction.", success, testID)

					default:
						if !errors.Is(last, tst.err) {
							t.Logf("\t%s\tTest %d:\tgot: %v", failed, testID, last)
							t.Logf("\t%s\tTest %d:\texp: %v", failed, testID, tst.err)
							t.Fatalf("\t%s\tTest %d:\tShould reject with the right error.", failed, testID)
						}
						t.Logf("\t%s\tTest %d:\tShould reject with the right error.", success, testID)
					}
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func TestConfirm(t *testing.T) {
	t.Log("Given the need to settle confirmed transactions.")
	{
		t.Logf("\tTest 0:\tWhen a block confirms one of two queued transactions.")
		{
			sheet := balances{bill: 100}
			mp, err := mempool.New(sheet)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct a mempool: %s", failed, err)
			}

			tx1 := tran(bill, 40, 10, "1")
			tx2 := tran(bill, 20, 5, "2")
			mp.Admit(tx1)
			mp.Admit(tx2)

			picked := mp.SelectForBlock(1)

			// The ledger applied the block.
			sheet[bill] = 50
			mp.Confirm(picked)

			if mp.InFlight() != 0 || mp.Count() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould drop the confirmed transaction: pool %d inflight %d", failed, mp.Count(), mp.InFlight())
			}
			t.Logf("\t%s\tTest 0:\tShould drop the confirmed transaction.", success)

			if got := mp.Available(bill); got != 25 {
				t.Fatalf("\t%s\tTest 0:\tShould only reserve the remaining transaction: %d", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould only reserve the remaining transaction.", success)
		}

		t.Logf("\tTest 1:\tWhen a block from elsewhere spends the funds.")
		{
			sheet := balances{bill: 100}
			mp, _ := mempool.New(sheet)

			mp.Admit(tran(bill, 40, 10, "1"))
			mp.Admit(tran(bill, 20, 5, "2"))

			sheet[bill] = 50
			dropped := mp.Confirm([]database.Tx{tran(bill, 60, 10, "other")})

			if len(dropped) != 1 || dropped[0].Salt != "2" {
				t.Fatalf("\t%s\tTest 1:\tShould drop what can no longer be funded: %v", failed, dropped)
			}
			t.Logf("\t%s\tTest 1:\tShould drop what can no longer be funded.", success)

			if mp.Count() != 1 || mp.Available(bill) != 0 {
				t.Fatalf("\t%s\tTest 1:\tShould keep the oldest fundable transaction: %d %d", failed, mp.Count(), mp.Available(bill))
			}
			t.Logf("\t%s\tTest 1:\tShould keep the oldest fundable transaction.", success)
		}
	}
}

func TestReturnToPool(t *testing.T) {
	t.Log("Given the need to return transactions discarded by a reorg.")
	{
		t.Logf("\tTest 0:\tWhen the sender can still fund one of them.")
		{
			sheet := balances{bill: 60}
			mp, _ := mempool.New(sheet)

			txs := []database.Tx{tran(bill, 40, 10, "1"), tran(bill, 20, 5, "2")}
			dropped := mp.ReturnToPool(txs)

			if len(dropped) != 1 || dropped[0].Salt != "2" {
				t.Fatalf("\t%s\tTest 0:\tShould drop the unfunded transaction: %v", failed, dropped)
			}
			t.Logf("\t%s\tTest 0:\tShould drop the unfunded transaction.", success)

			if mp.Available(bill) != 10 {
				t.Fatalf("\t%s\tTest 0:\tShould reserve the returned transaction: %d", failed, mp.Available(bill))
			}
			t.Logf("\t%s\tTest 0:\tShould reserve the returned transaction.", success)

			mp.ReturnToPool(txs[:1])
			if mp.Count() != 1 || mp.Available(bill) != 10 {
				t.Fatalf("\t%s\tTest 0:\tShould not double reserve: %d %d", failed, mp.Count(), mp.Available(bill))
			}
			t.Logf("\t%s\tTest 0:\tShould not double reserve.", success)
		}
	}
}

func TestConcurrentSelect(t *testing.T) {
	t.Log("Given the need to hand each transaction to a single candidate.")
	{
		const total = 200
		const miners = 8

		mp, err := mempool.New(balances{bill: total * 10})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a mempool: %s", failed, err)
		}

		for i := range total {
			if _, err := mp.Admit(tran(bill, 9, 1, strconv.Itoa(i))); err != nil {
				t.Fatalf("\t%s\tShould be able to admit transaction %d: %s", failed, i, err)
			}
		}
		t.Logf("\t%s\tShould be able to admit %d transactions.", success, total)

		var mu sync.Mutex
		seen := make(map[string]int)

		var wg sync.WaitGroup
		wg.Add(miners)
		for range miners {
			go func() {
				defer wg.Done()

				for {
					txs := mp.SelectForBlock(7)
					if len(txs) == 0 {
						return
					}

					mu.Lock()
					for _, tx := range txs {
						seen[tx.ID]++
					}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		for id, n := range seen {
			if n != 1 {
				t.Fatalf("\t%s\tShould select every transaction once: %s selected %d times.", failed, id, n)
			}
		}
		if len(seen) != total {
			t.Fatalf("\t%s\tShould select every transaction once: got %d of %d.", failed, len(seen), total)
		}
		t.Logf("\t%s\tShould select every transaction once.", success)

		if mp.Count() != 0 || mp.InFlight() != total {
			t.Fatalf("\t%s\tShould hold every selection in flight: pool %d, inflight %d.", failed, mp.Count(), mp.InFlight())
		}
		t.Logf("\t%s\tShould hold every selection in flight.", success)
	}
}
