package simulation

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/ledger"
	"github.com/ardanlabs/powledger/foundation/blockchain/pool"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
)

// Set of audit event types.
const (
	EventBlockConfirmed = "block_confirmed"
	EventBlockOrphaned  = "block_orphaned"
	EventForkResolved   = "fork_resolved"
)

// AuditEvent is one entry of the audit trail.
type AuditEvent struct {
	Round int    `json:"round"`
	Type  string `json:"type"`
	Data  any    `json:"data"`
}

// Audit is the exported record of a simulation. It carries everything
// needed to validate the chain again without the node.
type Audit struct {
	Genesis  genesis.Genesis               `json:"genesis"`
	Pools    []pool.Pool                   `json:"pools"`
	Accounts map[database.AccountID]string `json:"accounts"`
	Rejected int                           `json:"rejected"`
	Forks    []Fork                        `json:"forks"`
	Events   []AuditEvent                  `json:"events"`
	Stats    state.Stats                   `json:"stats"`
	Snapshot state.Snapshot                `json:"snapshot"`
}

// Audit captures the audit trail and the current state of the node.
func (sim *Simulation) Audit() Audit {
	stats := sim.state.Stats()
	snap := sim.state.Snapshot()

	sim.mu.Lock()
	defer sim.mu.Unlock()

	accounts := make(map[database.AccountID]string, len(sim.names))
	maps.Copy(accounts, sim.names)

	return Audit{
		Genesis:  sim.state.RetrieveGenesis(),
		Pools:    append([]pool.Pool(nil), sim.cfg.Pools...),
		Accounts: accounts,
		Rejected: sim.rejected,
		Forks:    append([]Fork(nil), sim.forks...),
		Events:   append([]AuditEvent(nil), sim.events...),
		Stats:    stats,
		Snapshot: snap,
	}
}

// WriteAudit encodes the audit as indented JSON.
func WriteAudit(w io.Writer, audit Audit) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(audit); err != nil {
		return fmt.Errorf("encoding audit: %w", err)
	}

	return nil
}

// SaveAudit writes the audit to the named file.
func SaveAudit(path string, audit Audit) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := WriteAudit(f, audit); err != nil {
		return err
	}

	return f.Close()
}

// ReadAudit decodes an audit.
func ReadAudit(r io.Reader) (Audit, error) {
	var audit Audit
	if err := json.NewDecoder(r).Decode(&audit); err != nil {
		return Audit{}, fmt.Errorf("decoding audit: %w", err)
	}

	return audit, nil
}

// LoadAudit reads the audit from the named file.
func LoadAudit(path string) (Audit, error) {
	f, err := os.Open(path)
	if err != nil {
		return Audit{}, err
	}
	defer f.Close()

	return ReadAudit(f)
}

// Verify validates an exported chain from scratch. The genesis block must
// be the one the recorded parameters produce, every block must pass the
// consensus rules and replaying the blocks over the initial balances must
// reproduce the recorded balances.
func Verify(audit Audit) error {
	gen := audit.Genesis
	if err := gen.Validate(); err != nil {
		return fmt.Errorf("genesis: %w", err)
	}

	blocks := audit.Snapshot.Blocks
	if len(blocks) == 0 {
		return fmt.Errorf("%w: empty chain", chain.ErrInvalidBlock)
	}

	genesisBlock, err := gen.Block()
	if err != nil {
		return fmt.Errorf("genesis block: %w", err)
	}

	if blocks[0].Hash != genesisBlock.Hash() {
		return fmt.Errorf("%w: genesis hash %s, exp %s", chain.ErrInvalidBlock, blocks[0].Hash, genesisBlock.Hash())
	}

	rules := chain.Rules{
		Issuer:     gen.Issuer(),
		Controller: gen.Controller(),
	}
	if err := rules.ValidateChain(blocks); err != nil {
		return err
	}

	if tip := blocks[len(blocks)-1].Hash; tip != audit.Snapshot.Tip {
		return fmt.Errorf("%w: last block %s is not the recorded tip %s", chain.ErrInvalidBlock, tip, audit.Snapshot.Tip)
	}

	ldgr := ledger.New(gen.Balances)
	for _, bd := range blocks {
		block, err := database.ToBlock(bd)
		if err != nil {
			return err
		}

		if err := ldgr.Apply(block); err != nil {
			return fmt.Errorf("%w: blk[%d]: %s", chain.ErrInvalidBlock, block.Header.Number, err)
		}
	}

	// Accounts emptied along the way may or may not keep a zero entry.
	replayed := ldgr.Copy()
	for account, recorded := range audit.Snapshot.Balances {
		if balance := replayed[account]; balance != recorded {
			return fmt.Errorf("account %s: replayed balance %d, recorded %d", account, balance, recorded)
		}
	}

	for account, balance := range replayed {
		if _, exists := audit.Snapshot.Balances[account]; !exists && balance != 0 {
			return fmt.Errorf("account %s: replayed balance %d is not recorded", account, balance)
		}
	}

	return nil
}
