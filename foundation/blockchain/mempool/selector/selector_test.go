package selector_test

import (
	"testing"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool/selector"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func TestSelect(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	from := database.NameToAccountID("bill")
	to := database.NameToAccountID("pavel")

	tran := func(fee uint64, salt string) database.Tx {
		return database.NewTxAt(from, to, 10, fee, now, salt)
	}

	txs := []database.Tx{
		tran(5, "a"),
		tran(1, "b"),
		tran(3, "c"),
		tran(3, "d"),
		tran(5, "e"),
	}

	type table struct {
		name     string
		strategy string
		howMany  int
		best     []string
	}

	tt := []table{
		{name: "fee top two", strategy: selector.StrategyFee, howMany: 2, best: []string{"a", "e"}},
		{name: "fee ties keep admission order", strategy: selector.StrategyFee, howMany: 4, best: []string{"a", "e", "c", "d"}},
		{name: "fee all", strategy: selector.StrategyFee, howMany: -1, best: []string{"a", "e", "c", "d", "b"}},
		{name: "fifo", strategy: selector.StrategyFIFO, howMany: 3, best: []string{"a", "b", "c"}},
		{name: "more than available", strategy: selector.StrategyFIFO, howMany: 10, best: []string{"a", "b", "c", "d", "e"}},
	}

	t.Log("Given the need to select transactions for a block.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen using the %q strategy for %d.", testID, tst.strategy, tst.howMany)
				{
					fn, err := selector.Retrieve(tst.strategy)
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to retrieve the strategy: %s", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to retrieve the strategy.", success, testID)

					got := fn(txs, tst.howMany)
					if len(got) != len(tst.best) {
						t.Fatalf("\t%s\tTest %d:\tShould get %d transactions, got %d.", failed, testID, len(tst.best), len(got))
					}

					for i, tx := range got {
						if tx.Salt != tst.best[i] {
							t.Logf("\t%s\tTest %d:\tgot: %s", failed, testID, tx.Salt)
							t.Logf("\t%s\tTest %d:\texp: %s", failed, testID, tst.best[i])
							t.Fatalf("\t%s\tTest %d:\tShould get back the right order.", failed, testID)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould get back the right order.", success, testID)

					if txs[1].Salt != "b" {
						t.Fatalf("\t%s\tTest %d:\tShould not modify the input.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould not modify the input.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}

	t.Log("Given the need to reject unknown strategies.")
	{
		if _, err := selector.Retrieve("tip"); err == nil {
			t.Fatalf("\t%s\tShould fail for an unknown strategy.", failed)
		}
		t.Logf("\t%s\tShould fail for an unknown strategy.", success)
	}
}
