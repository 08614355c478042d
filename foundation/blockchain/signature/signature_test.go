package signature_test

import (
	"testing"

	"github.com/ardanlabs/powledger/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func TestHash(t *testing.T) {
	type value struct {
		Name  string `json:"name"`
		Value uint64 `json:"value"`
	}

	t.Log("Given the need to produce deterministic digests.")
	{
		t.Logf("\tTest 0:\tWhen hashing the same value twice.")
		{
			v := value{Name: "bill", Value: 100}

			h1 := signature.Hash(v)
			h2 := signature.Hash(v)
			if h1 != h2 {
				t.Fatalf("\t%s\tTest 0:\tShould get the same hash: %s != %s", failed, h1, h2)
			}
			t.Logf("\t%s\tTest 0:\tShould get the same hash.", success)

			if !signature.IsHash(h1) {
				t.Fatalf("\t%s\tTest 0:\tShould be a 0x prefixed 64 digit hash: %s", failed, h1)
			}
			t.Logf("\t%s\tTest 0:\tShould be a 0x prefixed 64 digit hash.", success)

			h3 := signature.Hash(value{Name: "bill", Value: 101})
			if h1 == h3 {
				t.Fatalf("\t%s\tTest 0:\tShould get a different hash for different content.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get a different hash for different content.", success)
		}
	}
}

func TestLeadingZeros(t *testing.T) {
	tt := []struct {
		name string
		hash string
		exp  int
	}{
		{"none", "0x1000000000000000000000000000000000000000000000000000000000000000", 0},
		{"three", "0x000a000000000000000000000000000000000000000000000000000000000000", 3},
		{"zero", signature.ZeroHash, 64},
	}

	t.Log("Given the need to count leading zero hex digits.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				got := signature.LeadingZeros(tst.hash)
				if got != tst.exp {
					t.Fatalf("\t%s\tTest %d:\tShould count %d zeros, got %d.", failed, testID, tst.exp, got)
				}
				t.Logf("\t%s\tTest %d:\tShould count %d zeros.", success, testID, tst.exp)
			}

			t.Run(tst.name, f)
		}
	}
}
