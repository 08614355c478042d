// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"
	"sort"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// List of different select strategies.
const (
	StrategyFee  = "fee"
	StrategyFIFO = "fifo"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyFee:  feeSelect,
	StrategyFIFO: fifoSelect,
}

// Func defines a function that takes the mempool transactions in admission
// order and selects howMany of them in an order based on the functions
// strategy. Receiving -1 for howMany must return all the transactions in the
// strategies ordering. The input slice must not be modified.
type Func func(transactions []database.Tx, howMany int) []database.Tx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// feeSelect returns the transactions paying the best fee rate. Transactions
// with the same rate keep their admission order.
var feeSelect = func(transactions []database.Tx, howMany int) []database.Tx {
	txs := append([]database.Tx(nil), transactions...)
	sort.Stable(byFeeRate(txs))

	return limit(txs, howMany)
}

// fifoSelect returns the transactions in the order they were admitted.
var fifoSelect = func(transactions []database.Tx, howMany int) []database.Tx {
	txs := append([]database.Tx(nil), transactions...)

	return limit(txs, howMany)
}

func limit(txs []database.Tx, howMany int) []database.Tx {
	if howMany < 0 || howMany > len(txs) {
		return txs
	}

	return txs[:howMany]
}

// =============================================================================

// byFeeRate provides sorting support by the transaction fee rate.
type byFeeRate []database.Tx

// Len returns the number of transactions in the list.
func (bf byFeeRate) Len() int {
	return len(bf)
}

// Less helps to sort the list by fee rate in descending order to pick the
// transactions that provide the best reward. Every transaction weighs
// TxWeight so the fee orders the rate without a saturated tie.
func (bf byFeeRate) Less(i, j int) bool {
	return bf[i].Fee > bf[j].Fee
}

// Swap moves transactions in the order of the fee rate.
func (bf byFeeRate) Swap(i, j int) {
	bf[i], bf[j] = bf[j], bf[i]
}
