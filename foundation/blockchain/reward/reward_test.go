package reward_test

import (
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

func TestSubsidy(t *testing.T) {
	iss := reward.Issuer{BaseReward: 625_000_000, HalvingInterval: 100}

	type table struct {
		name   string
		height uint64
		exp    uint64
	}

	tt := []table{
		{name: "genesis", height: 0, exp: 625_000_000},
		{name: "last before halving", height: 99, exp: 625_000_000},
		{name: "first halving", height: 100, exp: 312_500_000},
		{name: "second halving", height: 200, exp: 156_250_000},
		{name: "exhausted", height: 100 * 64, exp: 0},
		{name: "far future", height: 1 << 62, exp: 0},
	}

	t.Log("Given the need to compute the subsidy for a height.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen handling height %d.", testID, tst.height)
				{
					got := iss.Subsidy(tst.height)
					if got != tst.exp {
						t.Logf("\t%s\tTest %d:\tgot: %d", failed, testID, got)
						t.Logf("\t%s\tTest %d:\texp: %d", failed, testID, tst.exp)
						t.Fatalf("\t%s\tTest %d:\tShould get the right subsidy.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould get the right subsidy.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func TestHalving(t *testing.T) {
	iss := reward.Issuer{BaseReward: 625_000_000, HalvingInterval: 210_000}

	t.Log("Given the need to halve the subsidy on schedule.")
	{
		t.Logf("\tTest 0:\tWhen comparing heights 0 and 2 x HalvingInterval.")
		{
			if iss.Subsidy(2*iss.HalvingInterval) != iss.Subsidy(0)/4 {
				t.Fatalf("\t%s\tTest 0:\tShould quarter the subsidy after two halvings.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould quarter the subsidy after two halvings.", success)

			prev := iss.Subsidy(0)
			for h := uint64(0); h < 70*iss.HalvingInterval; h += iss.HalvingInterval / 2 {
				got := iss.Subsidy(h)
				if got > prev {
					t.Fatalf("\t%s\tTest 0:\tShould never increase: height %d got %d prev %d.", failed, h, got, prev)
				}
				prev = got
			}
			t.Logf("\t%s\tTest 0:\tShould never increase.", success)

			if supply := iss.MaxSupply(); supply > iss.BaseReward*iss.HalvingInterval*2 {
				t.Fatalf("\t%s\tTest 0:\tShould bound supply by the halving series: %d.", failed, supply)
			}
			t.Logf("\t%s\tTest 0:\tShould bound supply by the halving series.", success)
		}
	}
}

func TestIssuedThrough(t *testing.T) {
	iss := reward.Issuer{BaseReward: 64, HalvingInterval: 3}

	t.Log("Given the need to sum issuance over a range of heights.")
	{
		t.Logf("\tTest 0:\tWhen summing heights one at a time.")
		{
			var sum uint64
			for n := uint64(0); n < 40; n++ {
				if got := iss.IssuedThrough(n); got != sum {
					t.Fatalf("\t%s\tTest 0:\tShould match the running sum at %d: got %d exp %d.", failed, n, got, sum)
				}
				sum += iss.Subsidy(n)
			}
			t.Logf("\t%s\tTest 0:\tShould match the running sum.", success)

			if got := iss.IssuedThrough(1000); got != iss.MaxSupply() {
				t.Fatalf("\t%s\tTest 0:\tShould reach max supply: got %d exp %d.", failed, got, iss.MaxSupply())
			}
			t.Logf("\t%s\tTest 0:\tShould reach max supply.", success)
		}
	}
}

func TestCoinbase(t *testing.T) {
	iss := reward.Issuer{BaseReward: 50, HalvingInterval: 10}
	miner := database.NameToAccountID("miner")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	trans := []database.Tx{
		database.NewTxAt(database.NameToAccountID("a"), database.NameToAccountID("b"), 10, 2, now, "1"),
		database.NewTxAt(database.NameToAccountID("b"), database.NameToAccountID("a"), 10, 3, now, "2"),
	}

	t.Log("Given the need to synthesize a coinbase transaction.")
	{
		t.Logf("\tTest 0:\tWhen paying a block with two transactions.")
		{
			cb := iss.Coinbase(12, miner, trans, now)

			if !cb.IsCoinbase() {
				t.Fatalf("\t%s\tTest 0:\tShould be marked as coinbase.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be marked as coinbase.", success)

			if cb.Amount != 25+5 {
				t.Fatalf("\t%s\tTest 0:\tShould pay subsidy plus fees: got %d.", failed, cb.Amount)
			}
			t.Logf("\t%s\tTest 0:\tShould pay subsidy plus fees.", success)

			if err := cb.Validate(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould validate: %s", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould validate.", success)
		}
	}
}
