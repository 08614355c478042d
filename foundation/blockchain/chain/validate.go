package chain

import (
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/difficulty"
	"github.com/ardanlabs/powledger/foundation/blockchain/reward"
	"github.com/ardanlabs/powledger/foundation/blockchain/signature"
)

// Rules are the consensus parameters blocks are validated against.
type Rules struct {
	Issuer     reward.Issuer
	Controller difficulty.Controller
}

// ValidateGenesis checks the fixed first block of a chain. The genesis
// block is not mined so its hash is not held to a difficulty.
func (rl Rules) ValidateGenesis(b database.Block) error {
	if b.Header.Number != 0 {
		return fmt.Errorf("%w: genesis number is %d", ErrInvalidBlock, b.Header.Number)
	}

	if b.Header.PrevBlockHash != signature.ZeroHash {
		return fmt.Errorf("%w: genesis parent is %s", ErrInvalidBlock, b.Header.PrevBlockHash)
	}

	root, err := database.TransRoot(b.Trans)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidBlock, err)
	}

	if root != b.Header.TransRoot {
		return fmt.Errorf("%w: genesis merkle root does not match transactions", ErrInvalidBlock)
	}

	coinbase, ok := b.Coinbase()
	if !ok || len(b.Trans) != 1 {
		return fmt.Errorf("%w: genesis must only hold a coinbase", ErrInvalidBlock)
	}

	if coinbase.Amount != rl.Issuer.Subsidy(0) {
		return fmt.Errorf("%w: genesis coinbase amount %d, exp %d", ErrInvalidBlock, coinbase.Amount, rl.Issuer.Subsidy(0))
	}

	return coinbase.Validate()
}

// ValidateBlock takes a block and validates it against its parent. The
// ancestor function provides the headers of the branch the parent is on.
func (rl Rules) ValidateBlock(b database.Block, parentHash string, parent database.BlockHeader, ancestor difficulty.AncestorFunc, ev func(v string, args ...any)) error {
	ev("chain: ValidateBlock: validate: blk[%d]: check: parent hash does match parent block", b.Header.Number)

	if err := b.ValidateLink(parentHash, parent); err != nil {
		return err
	}

	ev("chain: ValidateBlock: validate: blk[%d]: check: block's timestamp is not before parent block's timestamp", b.Header.Number)

	if b.Header.TimeStamp < parent.TimeStamp {
		return fmt.Errorf("%w: block timestamp is before parent block, parent %d, block %d", ErrInvalidBlock, parent.TimeStamp, b.Header.TimeStamp)
	}

	ev("chain: ValidateBlock: validate: blk[%d]: check: block difficulty matches the retarget schedule", b.Header.Number)

	if exp := rl.Controller.Next(parent, ancestor); b.Header.Difficulty != exp {
		return fmt.Errorf("%w: block difficulty %d, exp %d", ErrInvalidBlock, b.Header.Difficulty, exp)
	}

	ev("chain: ValidateBlock: validate: blk[%d]: check: block hash has been solved and coinbase pays subsidy plus fees", b.Header.Number)

	if err := b.ValidateStructure(rl.Issuer.Subsidy(b.Header.Number)); err != nil {
		return err
	}

	ev("chain: ValidateBlock: validate: blk[%d]: check: transactions are unique", b.Header.Number)

	ids := make(map[string]struct{}, len(b.Trans))
	for _, tx := range b.Trans {
		if _, exists := ids[tx.ID]; exists {
			return fmt.Errorf("%w: transaction %s is included twice", ErrInvalidBlock, tx.ID)
		}
		ids[tx.ID] = struct{}{}
	}

	return nil
}

// ValidateChain checks a complete chain in order from genesis. For every
// block the recorded hash must be the digest of its header, the parent hash
// must link, the hash must satisfy the difficulty and the coinbase must pay
// subsidy plus fees. Any violation rejects the whole chain.
func (rl Rules) ValidateChain(blocks []database.BlockData) error {
	if len(blocks) == 0 {
		return fmt.Errorf("%w: empty chain", ErrInvalidBlock)
	}

	noop := func(string, ...any) {}
	headers := make([]database.BlockHeader, 0, len(blocks))
	ancestor := func(number uint64) (database.BlockHeader, bool) {
		if number >= uint64(len(headers)) {
			return database.BlockHeader{}, false
		}
		return headers[number], true
	}

	confirmed := make(map[string]struct{})

	var prevHash string
	for i, data := range blocks {
		b, err := database.ToBlock(data)
		if err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}

		switch i {
		case 0:
			if err := rl.ValidateGenesis(b); err != nil {
				return err
			}

		default:
			if err := rl.ValidateBlock(b, prevHash, headers[i-1], ancestor, noop); err != nil {
				return err
			}
		}

		for _, tx := range b.Transactions() {
			if _, exists := confirmed[tx.ID]; exists {
				return fmt.Errorf("%w: blk[%d]: transaction %s already confirmed", ErrInvalidBlock, b.Header.Number, tx.ID)
			}
			confirmed[tx.ID] = struct{}{}
		}

		headers = append(headers, b.Header)
		prevHash = data.Hash
	}

	return nil
}

// IsValid reports whether the chain passes ValidateChain.
func (rl Rules) IsValid(blocks []database.BlockData) bool {
	return rl.ValidateChain(blocks) == nil
}
