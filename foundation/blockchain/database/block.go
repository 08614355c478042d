package database

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"math/bits"

	"github.com/ardanlabs/powledger/foundation/blockchain/merkle"
	"github.com/ardanlabs/powledger/foundation/blockchain/signature"
)

// WorkBase is the factor by which the expected number of hash attempts grows
// with every additional leading zero hex digit of difficulty.
const WorkBase = 16

// ErrInvalidBlock is the root of every block validation failure.
var ErrInvalidBlock = errors.New("invalid block")

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number        uint64    `json:"number"`          // Height of the block in its branch.
	PrevBlockHash string    `json:"prev_block_hash"` // Hash of the parent block.
	TimeStamp     uint64    `json:"timestamp"`       // Unix milliseconds the block was assembled.
	Nonce         uint64    `json:"nonce"`           // Value identified to solve the hash solution.
	Difficulty    uint      `json:"difficulty"`      // Number of leading 0 hex digits required.
	MinerAccount  AccountID `json:"miner_account"`   // Account credited with the coinbase.
	TransRoot     string    `json:"trans_root"`      // Merkle root over the transaction ids.
}

// Block represents a group of transactions batched together. Trans[0] is
// always the coinbase transaction.
type Block struct {
	Header BlockHeader
	Trans  []Tx
}

// NewBlock constructs a block and computes the transaction root for the
// specified transactions.
func NewBlock(header BlockHeader, trans []Tx) (Block, error) {
	root, err := TransRoot(trans)
	if err != nil {
		return Block{}, err
	}
	header.TransRoot = root

	b := Block{
		Header: header,
		Trans:  append([]Tx(nil), trans...),
	}

	return b, nil
}

// Hash returns the unique hash for the Block. Only the header is hashed, the
// transactions are committed to through the merkle root.
func (b Block) Hash() string {
	return signature.Hash(b.Header)
}

// IsSolved reports whether the hash of the block satisfies its own
// difficulty.
func (b Block) IsSolved() bool {
	return IsHashSolved(b.Header.Difficulty, b.Hash())
}

// Coinbase returns the coinbase transaction of the block.
func (b Block) Coinbase() (Tx, bool) {
	if len(b.Trans) == 0 || !b.Trans[0].IsCoinbase() {
		return Tx{}, false
	}

	return b.Trans[0], true
}

// Transactions returns the transactions of the block minus the coinbase.
func (b Block) Transactions() []Tx {
	if _, ok := b.Coinbase(); ok {
		return b.Trans[1:]
	}

	return b.Trans
}

// Fees returns the sum of the fees over the non-coinbase transactions. A
// sum that doesn't fit saturates at math.MaxUint64.
func (b Block) Fees() uint64 {
	fees, ok := b.feeTotal()
	if !ok {
		return math.MaxUint64
	}

	return fees
}

// feeTotal sums the fees and reports false when the sum overflows.
func (b Block) feeTotal() (uint64, bool) {
	var fees, carry uint64
	for _, tx := range b.Transactions() {
		fees, carry = bits.Add64(fees, tx.Fee, 0)
		if carry != 0 {
			return 0, false
		}
	}

	return fees, true
}

// Work returns the expected number of hash attempts needed to produce this
// block.
func (b Block) Work() *big.Int {
	return Work(b.Header.Difficulty)
}

// ValidateStructure checks the parts of a block that do not depend on its
// position in the chain: the hash solves the difficulty, the transaction
// root matches, coinbase placement and the coinbase amount.
func (b Block) ValidateStructure(subsidy uint64) error {
	if !b.IsSolved() {
		return fmt.Errorf("%w: %s does not satisfy difficulty %d", ErrInvalidBlock, b.Hash(), b.Header.Difficulty)
	}

	root, err := TransRoot(b.Trans)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidBlock, err)
	}

	if root != b.Header.TransRoot {
		return fmt.Errorf("%w: merkle root does not match transactions, got %s, exp %s", ErrInvalidBlock, root, b.Header.TransRoot)
	}

	coinbase, ok := b.Coinbase()
	if !ok {
		return fmt.Errorf("%w: first transaction is not a coinbase", ErrInvalidBlock)
	}

	if coinbase.To != b.Header.MinerAccount {
		return fmt.Errorf("%w: coinbase pays %s, miner is %s", ErrInvalidBlock, coinbase.To, b.Header.MinerAccount)
	}

	for _, tx := range b.Trans {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("%w: tx[%s]: %s", ErrInvalidBlock, tx.ID, err)
		}
	}

	for _, tx := range b.Transactions() {
		if tx.IsCoinbase() {
			return fmt.Errorf("%w: more than one coinbase transaction", ErrInvalidBlock)
		}
	}

	fees, ok := b.feeTotal()
	if !ok {
		return fmt.Errorf("%w: transaction fees overflow", ErrInvalidBlock)
	}

	exp, carry := bits.Add64(subsidy, fees, 0)
	if carry != 0 {
		return fmt.Errorf("%w: subsidy plus fees overflow", ErrInvalidBlock)
	}

	if coinbase.Amount != exp {
		return fmt.Errorf("%w: coinbase amount %d, exp %d", ErrInvalidBlock, coinbase.Amount, exp)
	}

	return nil
}

// ValidateLink checks the block is the next block after the parent.
func (b Block) ValidateLink(parentHash string, parent BlockHeader) error {
	if b.Header.PrevBlockHash != parentHash {
		return fmt.Errorf("%w: parent block hash doesn't match our known parent, got %s, exp %s", ErrInvalidBlock, b.Header.PrevBlockHash, parentHash)
	}

	if b.Header.Number != parent.Number+1 {
		return fmt.Errorf("%w: this block is not the next number, got %d, exp %d", ErrInvalidBlock, b.Header.Number, parent.Number+1)
	}

	return nil
}

// =============================================================================

// BlockData represents a hashed block as it is exported and transmitted.
type BlockData struct {
	Hash   string      `json:"hash"`
	Header BlockHeader `json:"block"`
	Trans  []Tx        `json:"trans"`
}

// NewBlockData constructs the value to export.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  block.Trans,
	}
}

// ToBlock converts a BlockData into a Block, checking the recorded hash is
// the digest of the header.
func ToBlock(data BlockData) (Block, error) {
	b := Block{
		Header: data.Header,
		Trans:  data.Trans,
	}

	if hash := b.Hash(); hash != data.Hash {
		return Block{}, fmt.Errorf("%w: recorded hash %s, computed %s", ErrInvalidBlock, data.Hash, hash)
	}

	return b, nil
}

// =============================================================================

// TransRoot computes the merkle root over the ids of the transactions.
func TransRoot(trans []Tx) (string, error) {
	tree, err := merkle.NewTree(trans)
	if err != nil {
		return "", err
	}

	return tree.RootHex(), nil
}

// IsHashSolved checks the hash to make sure it complies with the POW rules.
// We need to match a difficulty number of leading 0 hex digits.
func IsHashSolved(difficulty uint, hash string) bool {
	if !signature.IsHash(hash) {
		return false
	}

	return uint(signature.LeadingZeros(hash)) >= difficulty
}

// Work returns WorkBase raised to the difficulty.
func Work(difficulty uint) *big.Int {
	return new(big.Int).Exp(big.NewInt(WorkBase), big.NewInt(int64(difficulty)), nil)
}
