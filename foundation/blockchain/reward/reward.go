// Package reward computes the block subsidy and synthesizes the coinbase
// transaction that pays it.
package reward

import (
	"fmt"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// Issuer knows the issuance schedule of the chain.
type Issuer struct {
	BaseReward      uint64 // Subsidy paid for blocks before the first halving.
	HalvingInterval uint64 // Number of blocks between halvings, 0 disables halving.
}

// Subsidy returns the newly issued value for a block at the specified
// height. The subsidy halves every HalvingInterval blocks and stops at zero
// once the value can no longer be represented.
func (iss Issuer) Subsidy(height uint64) uint64 {
	if iss.HalvingInterval == 0 {
		return iss.BaseReward
	}

	halvings := height / iss.HalvingInterval
	if halvings >= 64 {
		return 0
	}

	return iss.BaseReward >> halvings
}

// Fees returns the sum of the fees over the non-coinbase transactions.
func (iss Issuer) Fees(trans []database.Tx) uint64 {
	var fees uint64
	for _, tx := range trans {
		if tx.IsCoinbase() {
			continue
		}
		fees += tx.Fee
	}

	return fees
}

// Coinbase synthesizes the coinbase transaction for a block at the
// specified height that includes the specified transactions.
func (iss Issuer) Coinbase(height uint64, miner database.AccountID, trans []database.Tx, at time.Time) database.Tx {
	amount := iss.Subsidy(height) + iss.Fees(trans)
	salt := fmt.Sprintf("coinbase:%d", height)

	return database.NewTxAt(database.CoinbaseAccount, miner, amount, 0, at, salt)
}

// IssuedThrough returns the total subsidy issued by the blocks at heights
// [0, n).
func (iss Issuer) IssuedThrough(n uint64) uint64 {
	if iss.HalvingInterval == 0 {
		return iss.BaseReward * n
	}

	var total uint64
	for era := uint64(0); era < 64; era++ {
		start := era * iss.HalvingInterval
		if start >= n {
			break
		}

		blocks := min(n-start, iss.HalvingInterval)
		total += blocks * (iss.BaseReward >> era)
	}

	return total
}

// MaxSupply returns the total value that can ever be issued. It returns 0
// when halving is disabled since supply is then unbounded.
func (iss Issuer) MaxSupply() uint64 {
	if iss.HalvingInterval == 0 {
		return 0
	}

	var total uint64
	for era := uint64(0); era < 64; era++ {
		subsidy := iss.BaseReward >> era
		if subsidy == 0 {
			break
		}
		total += iss.HalvingInterval * subsidy
	}

	return total
}
