// Package database defines the value types of the ledger: accounts,
// transactions and blocks, plus the rules for hashing and structurally
// validating them. Values are immutable once hashed; nothing in this
// package holds state.
package database

import "sort"

// SortByNumber orders exported blocks by block number, then hash.
func SortByNumber(blocks []BlockData) {
	sort.SliceStable(blocks, func(i, j int) bool {
		if blocks[i].Header.Number != blocks[j].Header.Number {
			return blocks[i].Header.Number < blocks[j].Header.Number
		}
		return blocks[i].Hash < blocks[j].Hash
	})
}

// TxIDs returns the set of ids of the specified transactions.
func TxIDs(trans []Tx) map[string]struct{} {
	ids := make(map[string]struct{}, len(trans))
	for _, tx := range trans {
		ids[tx.ID] = struct{}{}
	}

	return ids
}
