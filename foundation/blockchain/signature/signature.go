// Package signature provides the digest helpers shared by mining and
// validation. Every hash in the ledger is produced by this package so the
// miner and the validator can never disagree on the evaluation rule.
package signature

import (
	"crypto/sha256"
	"encoding/json"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ZeroHash represents a hash code of zeros. It is the previous hash of the
// genesis block.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// HashLength is the number of hex digits in a hash, not counting the 0x prefix.
const HashLength = 64

// =============================================================================

// Hash returns a unique string for the value. The value is marshaled to JSON,
// which encodes struct fields in declaration order and map keys sorted, so
// the digest is deterministic for any value of the same content.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// HashBytes returns the raw 32 byte digest for the value.
func HashBytes(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}

	hash := sha256.Sum256(data)
	return hash[:], nil
}

// LeadingZeros returns the number of leading zero hex digits in the hash.
func LeadingZeros(hash string) int {
	hash = strings.TrimPrefix(hash, "0x")

	var n int
	for n < len(hash) && hash[n] == '0' {
		n++
	}

	return n
}

// IsHash validates the string is a 0x prefixed, 64 digit hex value.
func IsHash(hash string) bool {
	if !strings.HasPrefix(hash, "0x") || len(hash) != HashLength+2 {
		return false
	}

	_, err := hexutil.Decode(hash)
	return err == nil
}
