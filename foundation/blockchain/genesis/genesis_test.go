package genesis_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/signature"
	"github.com/ardanlabs/powledger/foundation/validate"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func TestDefault(t *testing.T) {
	t.Log("Given the need to start from the reference parameters.")
	{
		t.Logf("\tTest 0:\tWhen using the default genesis.")
		{
			g := genesis.Default()

			if err := g.Validate(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be valid: %s", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be valid.", success)

			b, err := g.Block()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the genesis block: %s", failed, err)
			}

			if b.Header.Number != 0 || b.Header.PrevBlockHash != signature.ZeroHash {
				t.Fatalf("\t%s\tTest 0:\tShould root the chain at height 0: %+v", failed, b.Header)
			}
			t.Logf("\t%s\tTest 0:\tShould root the chain at height 0.", success)

			cb, ok := b.Coinbase()
			if !ok || len(b.Trans) != 1 || cb.Amount != g.Issuer().Subsidy(0) || cb.To != g.Account {
				t.Fatalf("\t%s\tTest 0:\tShould pay the height 0 subsidy to the genesis account.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould pay the height 0 subsidy to the genesis account.", success)

			if ctrl := g.Controller(); ctrl.Interval != 10 || ctrl.TargetTime != 10*time.Second || ctrl.Max != 6 {
				t.Fatalf("\t%s\tTest 0:\tShould retarget every 10 blocks against 10s: %+v", failed, ctrl)
			}
			t.Logf("\t%s\tTest 0:\tShould retarget every 10 blocks against 10s.", success)
		}
	}
}

func TestLoad(t *testing.T) {
	type table struct {
		name   string
		mutate func(m map[string]any)
		valid  bool
	}

	tt := []table{
		{name: "default", mutate: func(m map[string]any) {}, valid: true},
		{name: "numeric block time", mutate: func(m map[string]any) { m["target_block_time"] = 30 }, valid: true},
		{name: "difficulty above max", mutate: func(m map[string]any) { m["difficulty"] = 7 }},
		{name: "no transactions", mutate: func(m map[string]any) { m["trans_per_block"] = 0 }},
		{name: "no reward", mutate: func(m map[string]any) { m["mining_reward"] = 0 }},
		{name: "bad account", mutate: func(m map[string]any) { m["account"] = "bill" }},
	}

	t.Log("Given the need to load a genesis file.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen loading the %s file.", testID, tst.name)
				{
					data, err := json.Marshal(genesis.Default())
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to marshal the genesis: %s", failed, testID, err)
					}

					var m map[string]any
					json.Unmarshal(data, &m)
					tst.mutate(m)
					data, _ = json.Marshal(m)

					path := filepath.Join(t.TempDir(), "genesis.json")
					if err := os.WriteFile(path, data, 0600); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to write the file: %s", failed, testID, err)
					}

					g, err := genesis.Load(path)
					switch tst.valid {
					case true:
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould load the file: %s", failed, testID, err)
						}
						if g.TargetBlockTime.Duration <= 0 {
							t.Fatalf("\t%s\tTest %d:\tShould read the block time.", failed, testID)
						}
						t.Logf("\t%s\tTest %d:\tShould load the file.", success, testID)

					default:
						if err == nil {
							t.Fatalf("\t%s\tTest %d:\tShould reject the file.", failed, testID)
						}
						t.Logf("\t%s\tTest %d:\tShould reject the file: %s", success, testID, err)
					}
				}
			}

			t.Run(tst.name, f)
		}
	}

	t.Log("Given the need to report which fields are wrong.")
	{
		g := genesis.Default()
		g.TransPerBlock = 0

		fields := validate.GetFieldErrors(g.Validate())
		if _, exists := fields.Fields()["trans_per_block"]; !exists {
			t.Fatalf("\t%s\tShould name the failing field: %v", failed, fields)
		}
		t.Logf("\t%s\tShould name the failing field.", success)
	}
}
