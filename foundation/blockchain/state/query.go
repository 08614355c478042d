package state

import (
	"fmt"
	"sort"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// =============================================================================

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveLatestBlock returns a copy of the canonical tip.
func (s *State) RetrieveLatestBlock() database.BlockData {
	_, block := s.resolver.Tip()
	return database.NewBlockData(block)
}

// RetrieveBlock returns any stored block by hash along with its status.
func (s *State) RetrieveBlock(hash string) (database.BlockData, chain.Status, error) {
	block, status, exists := s.resolver.Block(hash)
	if !exists {
		return database.BlockData{}, 0, fmt.Errorf("block %s: not found", hash)
	}

	return database.NewBlockData(block), status, nil
}

// RetrieveBlocks returns the canonical blocks with numbers in the range.
// QueryLatest can be used for either end.
func (s *State) RetrieveBlocks(from uint64, to uint64) []database.BlockData {
	blocks := s.resolver.Canonical()
	latest := uint64(len(blocks) - 1)

	if from == QueryLatest {
		from = latest
	}
	if to == QueryLatest || to > latest {
		to = latest
	}

	if from > to {
		return nil
	}

	return blocks[from : to+1]
}

// RetrieveOrphaned returns the blocks abandoned by reorgs.
func (s *State) RetrieveOrphaned() []database.BlockData {
	return s.resolver.Orphaned()
}

// RetrieveTips returns the hash of every branch tip, canonical first.
func (s *State) RetrieveTips() []string {
	return s.resolver.Tips()
}

// RetrieveBalances returns a copy of the confirmed balances.
func (s *State) RetrieveBalances() map[database.AccountID]uint64 {
	return s.ledger.Copy()
}

// RetrieveBalance returns the confirmed balance of the account and what is
// left of it after the queued transactions.
func (s *State) RetrieveBalance(account database.AccountID) (confirmed uint64, available uint64) {
	return s.ledger.Balance(account), s.mempool.Available(account)
}

// RetrieveMempool returns a copy of the mempool.
func (s *State) RetrieveMempool() []database.Tx {
	return s.mempool.Copy()
}

// QueryMempoolLength returns the current length of the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// RetrieveDifficulty returns the difficulty the next canonical block must
// meet.
func (s *State) RetrieveDifficulty() uint {
	tipHash, _ := s.resolver.Tip()

	difficulty, err := s.resolver.NextDifficulty(tipHash)
	if err != nil {
		s.evHandler("state: RetrieveDifficulty: ERROR: %s", err)
	}

	return difficulty
}

// RetrieveRules returns the consensus rules of the chain.
func (s *State) RetrieveRules() chain.Rules {
	return s.resolver.Rules()
}

// =============================================================================

// MinerStats summarizes the canonical blocks of one miner.
type MinerStats struct {
	Miner   string             `json:"miner"`
	Account database.AccountID `json:"account"`
	Blocks  uint64             `json:"blocks"`
	Rewards uint64             `json:"rewards"`
}

// Stats summarizes the canonical chain.
type Stats struct {
	Height        uint64       `json:"height"`
	Tip           string       `json:"tip"`
	Work          string       `json:"work"`
	Difficulty    uint         `json:"difficulty"`
	Transactions  uint64       `json:"transactions"`
	TotalFees     uint64       `json:"total_fees"`
	TotalIssued   uint64       `json:"total_issued"`
	Orphaned      uint64       `json:"orphaned"`
	ForksResolved uint64       `json:"forks_resolved"`
	Mempool       int          `json:"mempool"`
	InFlight      int          `json:"in_flight"`
	Miners        []MinerStats `json:"miners"`
}

// Stats computes the summary of the canonical chain. The genesis block is
// not credited to any miner.
func (s *State) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	blocks := s.resolver.Canonical()
	tip := blocks[len(blocks)-1]

	st := Stats{
		Height:        tip.Header.Number,
		Tip:           tip.Hash,
		Work:          s.resolver.Work().String(),
		Difficulty:    s.RetrieveDifficulty(),
		TotalIssued:   s.issuer.IssuedThrough(tip.Header.Number + 1),
		Orphaned:      s.resolver.Orphans(),
		ForksResolved: s.resolver.Reorgs(),
		Mempool:       s.mempool.Count(),
		InFlight:      s.mempool.InFlight(),
	}

	miners := make(map[database.AccountID]*MinerStats)
	for _, bd := range blocks[1:] {
		block := database.Block{Header: bd.Header, Trans: bd.Trans}
		fees := block.Fees()

		st.Transactions += uint64(len(block.Transactions()))
		st.TotalFees += fees

		ms, exists := miners[bd.Header.MinerAccount]
		if !exists {
			ms = &MinerStats{
				Miner:   s.minerName(bd.Header.MinerAccount),
				Account: bd.Header.MinerAccount,
			}
			miners[bd.Header.MinerAccount] = ms
		}
		ms.Blocks++
		ms.Rewards += s.issuer.Subsidy(bd.Header.Number) + fees
	}

	for _, ms := range miners {
		st.Miners = append(st.Miners, *ms)
	}
	sort.Slice(st.Miners, func(i, j int) bool {
		if st.Miners[i].Blocks != st.Miners[j].Blocks {
			return st.Miners[i].Blocks > st.Miners[j].Blocks
		}
		return st.Miners[i].Miner < st.Miners[j].Miner
	})

	return st
}

// Snapshot is the complete observable state of the node.
type Snapshot struct {
	Tip        string                        `json:"tip"`
	Work       string                        `json:"work"`
	Difficulty uint                          `json:"difficulty"`
	Blocks     []database.BlockData          `json:"blocks"`
	Orphaned   []database.BlockData          `json:"orphaned"`
	Side       []database.BlockData          `json:"side_branches"`
	Balances   map[database.AccountID]uint64 `json:"balances"`
	Mempool    []database.Tx                 `json:"mempool"`
}

// Snapshot captures the canonical chain with the matching balances and
// mempool. No block is accepted while the snapshot is taken.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	tipHash, _ := s.resolver.Tip()

	return Snapshot{
		Tip:        tipHash,
		Work:       s.resolver.Work().String(),
		Difficulty: s.RetrieveDifficulty(),
		Blocks:     s.resolver.Canonical(),
		Orphaned:   s.resolver.Orphaned(),
		Side:       s.resolver.SideBranches(),
		Balances:   s.ledger.Copy(),
		Mempool:    s.mempool.Copy(),
	}
}
