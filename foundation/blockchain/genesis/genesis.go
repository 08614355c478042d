// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/difficulty"
	"github.com/ardanlabs/powledger/foundation/blockchain/reward"
	"github.com/ardanlabs/powledger/foundation/blockchain/signature"
	"github.com/ardanlabs/powledger/foundation/validate"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date             time.Time                     `json:"date" validate:"required"`
	ChainID          uint16                        `json:"chain_id"`                                                            // The chain id represents an unique id for this running instance.
	Account          database.AccountID            `json:"account" validate:"required"`                                         // Account credited with the genesis coinbase.
	TransPerBlock    uint16                        `json:"trans_per_block" validate:"required,min=1"`                           // The maximum number of transactions that can be in a block.
	Difficulty       uint                          `json:"difficulty" validate:"gtefield=MinDifficulty,ltefield=MaxDifficulty"` // How difficult it needs to be to solve the work problem.
	MinDifficulty    uint                          `json:"min_difficulty" validate:"min=1"`                                     // Lowest difficulty a retarget can reach.
	MaxDifficulty    uint                          `json:"max_difficulty" validate:"max=64"`                                    // Highest difficulty a retarget can reach.
	RetargetInterval uint64                        `json:"retarget_interval" validate:"required"`                               // Number of blocks between retargets.
	TargetBlockTime  Duration                      `json:"target_block_time"`                                                   // Desired time between blocks.
	MiningReward     uint64                        `json:"mining_reward" validate:"required"`                                   // Subsidy for mining a block before any halving.
	HalvingInterval  uint64                        `json:"halving_interval"`                                                    // Number of blocks between halvings, 0 disables halving.
	Balances         map[database.AccountID]uint64 `json:"balances"`                                                            // Starting balances outside of the issuance schedule.
}

// Default returns the parameters of the reference simulation: three leading
// zeros to start, retargets every ten blocks against a ten second target and
// a 6.25 coin subsidy that halves every 210,000 blocks. A coin is 10^8 base
// units. The chain is dated now so the first retarget measures the time
// the first blocks actually took.
func Default() Genesis {
	return Genesis{
		Date:             time.Now().UTC().Truncate(time.Millisecond),
		ChainID:          1,
		Account:          database.NameToAccountID("genesis"),
		TransPerBlock:    10,
		Difficulty:       3,
		MinDifficulty:    1,
		MaxDifficulty:    6,
		RetargetInterval: 10,
		TargetBlockTime:  Duration{10 * time.Second},
		MiningReward:     625_000_000,
		HalvingInterval:  210_000,
		Balances:         map[database.AccountID]uint64{},
	}
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis: %w", err)
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the parameters are usable.
func (g Genesis) Validate() error {
	if err := validate.Check(g); err != nil {
		return err
	}

	if g.TargetBlockTime.Duration <= 0 {
		return errors.New("target_block_time must be positive")
	}

	if !g.Account.IsAccountID() {
		return fmt.Errorf("account %q is not a valid account", g.Account)
	}

	for account := range g.Balances {
		if !account.IsAccountID() {
			return fmt.Errorf("balance account %q is not a valid account", account)
		}
	}

	return nil
}

// Issuer returns the issuance schedule of the chain.
func (g Genesis) Issuer() reward.Issuer {
	return reward.Issuer{
		BaseReward:      g.MiningReward,
		HalvingInterval: g.HalvingInterval,
	}
}

// Controller returns the difficulty retarget parameters of the chain.
func (g Genesis) Controller() difficulty.Controller {
	return difficulty.Controller{
		Interval:   g.RetargetInterval,
		TargetTime: g.TargetBlockTime.Duration,
		Min:        g.MinDifficulty,
		Max:        g.MaxDifficulty,
	}
}

// Block builds the fixed first block of the chain. Its coinbase pays the
// height zero subsidy to the genesis account.
func (g Genesis) Block() (database.Block, error) {
	coinbase := g.Issuer().Coinbase(0, g.Account, nil, g.Date)

	header := database.BlockHeader{
		Number:        0,
		PrevBlockHash: signature.ZeroHash,
		TimeStamp:     uint64(g.Date.UTC().UnixMilli()),
		Difficulty:    g.Difficulty,
		MinerAccount:  g.Account,
	}

	return database.NewBlock(header, []database.Tx{coinbase})
}

// =============================================================================

// Duration is a time.Duration that reads and writes as a string such
// as "10s".
type Duration struct {
	time.Duration
}

// MarshalJSON implements the json.Marshaler interface.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface. Numbers are
// taken as seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value * float64(time.Second))
	case string:
		dur, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = dur
	default:
		return fmt.Errorf("invalid duration %s", data)
	}

	return nil
}
