package database

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
)

// TxWeight is the nominal serialized size in bytes of a transaction. Every
// transaction has the same single sender, single recipient shape so they all
// carry the same weight.
const TxWeight = 250

// Set of error variables for transaction validation.
var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidTx     = errors.New("invalid transaction")
)

// =============================================================================

// Tx is the transactional information between two parties.
type Tx struct {
	ID        string    `json:"id"`        // Digest of the remaining fields.
	From      AccountID `json:"from"`      // Account paying amount plus fee.
	To        AccountID `json:"to"`        // Account receiving the amount.
	Amount    uint64    `json:"amount"`    // Value moved to the recipient.
	Fee       uint64    `json:"fee"`       // Value paid to the miner of the block.
	TimeStamp uint64    `json:"timestamp"` // Unix milliseconds of the submission.
	Salt      string    `json:"salt"`      // Makes every submission unique.
}

// txContent is the part of the transaction covered by the id.
type txContent struct {
	From      AccountID `json:"from"`
	To        AccountID `json:"to"`
	Amount    uint64    `json:"amount"`
	Fee       uint64    `json:"fee"`
	TimeStamp uint64    `json:"timestamp"`
	Salt      string    `json:"salt"`
}

// NewTx constructs a new transaction stamped with the current time and a
// unique salt, so two submissions with the same values get different ids.
func NewTx(from AccountID, to AccountID, amount uint64, fee uint64) (Tx, error) {
	tx := NewTxAt(from, to, amount, fee, time.Now(), uuid.NewString())

	if err := tx.Validate(); err != nil {
		return Tx{}, err
	}

	return tx, nil
}

// NewTxAt constructs a transaction from explicit time and salt values. The
// result is fully deterministic.
func NewTxAt(from AccountID, to AccountID, amount uint64, fee uint64, at time.Time, salt string) Tx {
	tx := Tx{
		From:      from,
		To:        to,
		Amount:    amount,
		Fee:       fee,
		TimeStamp: uint64(at.UTC().UnixMilli()),
		Salt:      salt,
	}
	tx.ID = tx.ComputeID()

	return tx
}

// ComputeID recomputes the digest of the transaction contents.
func (tx Tx) ComputeID() string {
	return signature.Hash(txContent{
		From:      tx.From,
		To:        tx.To,
		Amount:    tx.Amount,
		Fee:       tx.Fee,
		TimeStamp: tx.TimeStamp,
		Salt:      tx.Salt,
	})
}

// Validate checks the transaction is well formed. Coinbase transactions are
// only checked for their id since they are synthesized by the reward issuer.
func (tx Tx) Validate() error {
	if tx.ID != tx.ComputeID() {
		return fmt.Errorf("%w: id does not match contents", ErrInvalidTx)
	}

	if tx.To == "" {
		return fmt.Errorf("%w: missing recipient", ErrInvalidTx)
	}

	if tx.IsCoinbase() {
		return nil
	}

	if tx.From == "" {
		return fmt.Errorf("%w: missing sender", ErrInvalidTx)
	}

	if tx.Amount == 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}

	if tx.Amount > math.MaxUint64-tx.Fee {
		return fmt.Errorf("%w: amount plus fee overflows", ErrInvalidAmount)
	}

	return nil
}

// IsCoinbase reports whether the transaction issues new currency.
func (tx Tx) IsCoinbase() bool {
	return tx.From.IsCoinbase()
}

// Cost returns the value the sender must hold for this transaction.
func (tx Tx) Cost() uint64 {
	return tx.Amount + tx.Fee
}

// FeeRate returns the fee paid per thousand bytes of transaction weight. A
// rate too large to represent saturates at math.MaxUint64.
func (tx Tx) FeeRate() uint64 {
	hi, lo := bits.Mul64(tx.Fee, 1000)
	if hi >= TxWeight {
		return math.MaxUint64
	}

	rate, _ := bits.Div64(hi, lo, TxWeight)
	return rate
}

// Hash implements the merkle Hashable interface. The leaf of a transaction
// is its id.
func (tx Tx) Hash() ([]byte, error) {
	return hexutil.Decode(tx.ID)
}

// Equals implements the merkle Hashable interface for providing an equality
// check between two transactions.
func (tx Tx) Equals(otherTx Tx) bool {
	return tx.ID == otherTx.ID
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	id := tx.ID
	if len(id) > 10 {
		id = id[:10]
	}

	return fmt.Sprintf("%s:%s->%s:%d:%d", id, tx.From, tx.To, tx.Amount, tx.Fee)
}
