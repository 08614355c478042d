package public

import "github.com/ardanlabs/powledger/foundation/blockchain/database"

// NewTx is what a client submits to move value between accounts.
type NewTx struct {
	From   database.AccountID `json:"from" validate:"required"`
	To     database.AccountID `json:"to" validate:"required"`
	Amount uint64             `json:"amount" validate:"required,gt=0"`
	Fee    uint64             `json:"fee"`
}

type tx struct {
	ID        string             `json:"id"`
	From      database.AccountID `json:"from"`
	FromName  string             `json:"from_name,omitempty"`
	To        database.AccountID `json:"to"`
	ToName    string             `json:"to_name,omitempty"`
	Amount    uint64             `json:"amount"`
	Fee       uint64             `json:"fee"`
	FeeRate   uint64             `json:"fee_rate"`
	TimeStamp uint64             `json:"timestamp"`
}

// Balance is the confirmed and spendable balance of an account.
type Balance struct {
	Account   database.AccountID `json:"account"`
	Name      string             `json:"name,omitempty"`
	Balance   uint64             `json:"balance"`
	Available uint64             `json:"available"`
}

// Balances is the response of the balances endpoint.
type Balances struct {
	LatestBlock string    `json:"latest_block"`
	Uncommitted int       `json:"uncommitted"`
	Balances    []Balance `json:"balances"`
}

type block struct {
	Hash   string               `json:"hash"`
	Status string               `json:"status"`
	Miner  string               `json:"miner"`
	Header database.BlockHeader `json:"block"`
	Trans  []tx                 `json:"trans"`
}
