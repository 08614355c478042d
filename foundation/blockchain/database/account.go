package database

import (
	"crypto/ecdsa"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// CoinbaseAccount is the sentinel sender of a coinbase transaction. It is not
// a valid account format so no submitted transaction can ever claim it.
const CoinbaseAccount AccountID = "coinbase"

// =============================================================================

// AccountID represents an opaque account token. Transactions move value
// between account ids and miners are credited against one.
type AccountID string

// ToAccountID converts a hex-encoded string to an account and validates the
// hex-encoded string is formatted correctly.
func ToAccountID(hex string) (AccountID, error) {
	a := AccountID(hex)
	if !a.IsAccountID() {
		return "", errors.New("invalid account format")
	}

	return a, nil
}

// PublicKeyToAccountID converts the public key to an account value.
func PublicKeyToAccountID(pk ecdsa.PublicKey) AccountID {
	return AccountID(crypto.PubkeyToAddress(pk).String())
}

// NameToAccountID derives a stable account id from a name. It is used for
// miner identities that are configured by name only.
func NameToAccountID(name string) AccountID {
	return AccountID(common.BytesToAddress(crypto.Keccak256([]byte(name))).Hex())
}

// NewAccountID generates a fresh random account id.
func NewAccountID() (AccountID, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return "", err
	}

	return PublicKeyToAccountID(pk.PublicKey), nil
}

// IsAccountID verifies whether the underlying data represents a valid
// hex-encoded account.
func (a AccountID) IsAccountID() bool {
	return common.IsHexAddress(string(a))
}

// IsCoinbase reports whether the account is the coinbase sentinel.
func (a AccountID) IsCoinbase() bool {
	return a == CoinbaseAccount
}
