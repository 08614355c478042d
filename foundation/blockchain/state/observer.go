package state

import (
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
)

// BlockConfirmed is emitted for every block that becomes canonical.
// Attempts and Elapsed are only known for blocks this node mined.
type BlockConfirmed struct {
	Height           uint64             `json:"height"`
	Hash             string             `json:"hash"`
	MinerAccount     database.AccountID `json:"miner_account"`
	Miner            string             `json:"miner"`
	Subsidy          uint64             `json:"subsidy"`
	Fees             uint64             `json:"fees"`
	TransactionCount int                `json:"transaction_count"`
	Nonce            uint64             `json:"nonce"`
	Difficulty       uint               `json:"difficulty"`
	Attempts         uint64             `json:"attempts"`
	Elapsed          time.Duration      `json:"elapsed"`
}

// OrphanEvent is emitted for every canonical block abandoned by a reorg.
type OrphanEvent struct {
	BlockHash string `json:"block_hash"`
	Height    uint64 `json:"height"`
	Miner     string `json:"miner"`
	Reason    string `json:"reason"`
}

// Observer receives the typed events of the chain. Implementations must not
// block, they are called while the state is settling a block.
type Observer interface {
	BlockConfirmed(BlockConfirmed)
	Orphaned(OrphanEvent)
}

// ObserverFuncs adapts a pair of functions to the Observer interface. Either
// function may be nil.
type ObserverFuncs struct {
	OnConfirmed func(BlockConfirmed)
	OnOrphaned  func(OrphanEvent)
}

// BlockConfirmed implements the Observer interface.
func (of ObserverFuncs) BlockConfirmed(bc BlockConfirmed) {
	if of.OnConfirmed != nil {
		of.OnConfirmed(bc)
	}
}

// Orphaned implements the Observer interface.
func (of ObserverFuncs) Orphaned(oe OrphanEvent) {
	if of.OnOrphaned != nil {
		of.OnOrphaned(oe)
	}
}

type nopObserver struct{}

func (nopObserver) BlockConfirmed(BlockConfirmed) {}
func (nopObserver) Orphaned(OrphanEvent)          {}
