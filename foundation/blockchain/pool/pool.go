// Package pool describes the mining identities that compete to extend the
// chain. Only the account of a pool takes part in consensus, the rest is
// descriptive and only reaches reports and events.
package pool

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/validate"
)

// Descriptor is presentation metadata about a pool.
type Descriptor struct {
	Location string `toml:"location" json:"location"`
	Hardware string `toml:"hardware" json:"hardware"`
	Devices  int    `toml:"devices" json:"devices"`
}

// Pool represents a miner identity and its share of the network hash rate.
type Pool struct {
	Name       string             `toml:"name" json:"name" validate:"required"`
	Account    database.AccountID `toml:"account" json:"account"`
	HashRate   float64            `toml:"hashrate" json:"hashrate" validate:"gt=0"`
	Descriptor Descriptor         `toml:"descriptor" json:"descriptor"`
}

// File is the layout of a pool definition file.
type File struct {
	Pools []Pool `toml:"pool" json:"pool" validate:"required,min=1,dive"`
}

// Default returns the reference pool set, weighted by their share of the
// network hash rate.
func Default() []Pool {
	pools := []Pool{
		{Name: "FoundryUSA", HashRate: 28, Descriptor: Descriptor{Location: "USA, New York", Hardware: "Antminer S19 Pro", Devices: 8}},
		{Name: "AntPool", HashRate: 18, Descriptor: Descriptor{Location: "China, Beijing", Hardware: "Antminer S21", Devices: 6}},
		{Name: "F2Pool", HashRate: 15, Descriptor: Descriptor{Location: "China, Shanghai", Hardware: "Whatsminer M50S", Devices: 5}},
		{Name: "ViaBTC", HashRate: 12, Descriptor: Descriptor{Location: "China, Shenzhen", Hardware: "Whatsminer M30S++", Devices: 4}},
		{Name: "Binance", HashRate: 10, Descriptor: Descriptor{Location: "Singapore", Hardware: "AvalonMiner 1246", Devices: 3}},
		{Name: "Others", HashRate: 17, Descriptor: Descriptor{Location: "Global, Distributed", Hardware: "Antminer S19j Pro", Devices: 6}},
	}

	for i := range pools {
		pools[i].Account = database.NameToAccountID(pools[i].Name)
	}

	return pools
}

// LoadFile reads a TOML pool definition file. Pools without an account get
// one derived from their name.
func LoadFile(path string) ([]Pool, error) {
	var file File
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("decoding pool file: %w", err)
	}

	if err := validate.Check(file); err != nil {
		return nil, err
	}

	for i := range file.Pools {
		if file.Pools[i].Account == "" {
			file.Pools[i].Account = database.NameToAccountID(file.Pools[i].Name)
		}
	}

	return file.Pools, nil
}

// =============================================================================

// Registry maps accounts to the pools that own them.
type Registry struct {
	pools    []Pool
	accounts map[database.AccountID]Pool
}

// NewRegistry constructs a registry. Names and accounts must be unique.
func NewRegistry(pools []Pool) (*Registry, error) {
	if len(pools) == 0 {
		return nil, errors.New("at least one pool is required")
	}

	reg := Registry{
		accounts: make(map[database.AccountID]Pool, len(pools)),
	}

	names := make(map[string]struct{}, len(pools))
	for _, p := range pools {
		if !p.Account.IsAccountID() {
			return nil, fmt.Errorf("pool %q: invalid account %q", p.Name, p.Account)
		}

		if _, exists := names[p.Name]; exists {
			return nil, fmt.Errorf("pool %q is defined twice", p.Name)
		}

		if _, exists := reg.accounts[p.Account]; exists {
			return nil, fmt.Errorf("pool %q: account %s is already used", p.Name, p.Account)
		}

		names[p.Name] = struct{}{}
		reg.accounts[p.Account] = p
		reg.pools = append(reg.pools, p)
	}

	return &reg, nil
}

// Pools returns the registered pools in their configured order.
func (reg *Registry) Pools() []Pool {
	return append([]Pool(nil), reg.pools...)
}

// Lookup returns the pool owning the account.
func (reg *Registry) Lookup(account database.AccountID) (Pool, bool) {
	p, exists := reg.accounts[account]
	return p, exists
}

// Name returns the pool name for the account or the account itself.
func (reg *Registry) Name(account database.AccountID) string {
	if p, exists := reg.accounts[account]; exists {
		return p.Name
	}

	return string(account)
}

// Copy returns the account to name mapping.
func (reg *Registry) Copy() map[database.AccountID]string {
	m := make(map[database.AccountID]string, len(reg.accounts))
	for account, p := range reg.accounts {
		m[account] = p.Name
	}

	return m
}

// =============================================================================

// WeightedSelector picks pools at random in proportion to their hash rate.
type WeightedSelector struct {
	pools      []Pool
	cumulative []float64
	rng        *rand.Rand
	mu         sync.Mutex
}

// NewWeightedSelector constructs a selector over the pools. Passing a nil
// source seeds one at random.
func NewWeightedSelector(pools []Pool, rng *rand.Rand) (*WeightedSelector, error) {
	if len(pools) == 0 {
		return nil, errors.New("at least one pool is required")
	}

	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	ws := WeightedSelector{
		pools: append([]Pool(nil), pools...),
		rng:   rng,
	}

	var total float64
	for _, p := range ws.pools {
		if p.HashRate <= 0 {
			return nil, fmt.Errorf("pool %q: hash rate must be positive", p.Name)
		}
		total += p.HashRate
		ws.cumulative = append(ws.cumulative, total)
	}

	return &ws, nil
}

// Pick returns the next pool.
func (ws *WeightedSelector) Pick() Pool {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	target := ws.rng.Float64() * ws.cumulative[len(ws.cumulative)-1]
	idx := sort.SearchFloat64s(ws.cumulative, target)
	if idx >= len(ws.pools) {
		idx = len(ws.pools) - 1
	}

	// SearchFloat64s returns the first bound >= target; a target landing
	// exactly on a bound belongs to the next pool.
	if ws.cumulative[idx] == target && idx+1 < len(ws.pools) {
		idx++
	}

	return ws.pools[idx]
}

// Share returns the fraction of the total hash rate held by the pool.
func (ws *WeightedSelector) Share(name string) float64 {
	total := ws.cumulative[len(ws.cumulative)-1]
	for _, p := range ws.pools {
		if p.Name == name {
			return p.HashRate / total
		}
	}

	return 0
}
