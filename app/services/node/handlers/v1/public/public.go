// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/ardanlabs/powledger/business/web/errs"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/pool"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
	"github.com/ardanlabs/powledger/foundation/events"
	"github.com/ardanlabs/powledger/foundation/validate"
	"github.com/ardanlabs/powledger/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log      *zap.SugaredLogger
	State    *state.State
	Registry *pool.Registry
	WS       websocket.Upgrader
	Evts     *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ch := h.Evts.Acquire(v.TraceID)
	defer h.Evts.Release(v.TraceID)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitTransaction adds a new transaction to the mempool.
func (h Handlers) SubmitTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var ntx NewTx
	if err := web.Decode(r, &ntx); err != nil {
		if validate.IsFieldErrors(err) {
			return err
		}
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if !ntx.From.IsAccountID() || !ntx.To.IsAccountID() {
		return errs.NewTrusted(errors.New("invalid account format"), http.StatusBadRequest)
	}

	tran, err := database.NewTx(ntx.From, ntx.To, ntx.Amount, ntx.Fee)
	if err != nil {
		return errs.FromLedger(err)
	}

	h.Log.Infow("add tran", "traceid", v.TraceID, "tx", tran.ID, "from", tran.From, "to", tran.To, "amount", tran.Amount, "fee", tran.Fee)
	if err := h.State.SubmitTransaction(tran); err != nil {
		return errs.FromLedger(err)
	}

	resp := struct {
		Status string `json:"status"`
		ID     string `json:"id"`
	}{
		Status: "transaction added to mempool",
		ID:     tran.ID,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// SignalMining signals the miners to start a search.
func (h Handlers) SignalMining(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	h.State.Worker.SignalStartMining()

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "mining signalled",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	acct := database.AccountID(web.Param(r, "account"))

	var trans []tx
	for _, tran := range h.State.RetrieveMempool() {
		if acct != "" && acct != tran.From && acct != tran.To {
			continue
		}
		trans = append(trans, h.toTx(tran))
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Balances returns the current balances for all accounts or the specified
// account.
func (h Handlers) Balances(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var accounts []database.AccountID

	switch account := web.Param(r, "account"); account {
	case "":
		for account := range h.State.RetrieveBalances() {
			accounts = append(accounts, account)
		}
		sort.Slice(accounts, func(i, j int) bool { return accounts[i] < accounts[j] })

	default:
		id, err := database.ToAccountID(account)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		accounts = append(accounts, id)
	}

	bals := make([]Balance, 0, len(accounts))
	for _, account := range accounts {
		confirmed, available := h.State.RetrieveBalance(account)
		bals = append(bals, Balance{
			Account:   account,
			Name:      h.name(account),
			Balance:   confirmed,
			Available: available,
		})
	}

	resp := Balances{
		LatestBlock: h.State.RetrieveLatestBlock().Hash,
		Uncommitted: h.State.QueryMempoolLength(),
		Balances:    bals,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Blocks returns the canonical blocks. The from and to query parameters
// limit the range, both default to the whole chain.
func (h Handlers) Blocks(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	from, err := queryNumber(r, "from", 0)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	to, err := queryNumber(r, "to", state.QueryLatest)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	dbBlocks := h.State.RetrieveBlocks(from, to)
	if len(dbBlocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blocks := make([]block, len(dbBlocks))
	for i, bd := range dbBlocks {
		blocks[i] = h.toBlock(bd, "canonical")
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// Block returns any known block by hash, canonical or not.
func (h Handlers) Block(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	bd, status, err := h.State.RetrieveBlock(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	return web.Respond(ctx, w, h.toBlock(bd, status.String()), http.StatusOK)
}

// Stats returns the summary of the canonical chain.
func (h Handlers) Stats(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Stats(), http.StatusOK)
}

// Snapshot returns the full observable state of the node.
func (h Handlers) Snapshot(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	return web.Respond(ctx, w, h.State.Snapshot(), http.StatusOK)
}

// =============================================================================

func (h Handlers) name(account database.AccountID) string {
	if h.Registry == nil {
		return ""
	}

	if p, exists := h.Registry.Lookup(account); exists {
		return p.Name
	}

	return ""
}

func (h Handlers) toTx(tran database.Tx) tx {
	return tx{
		ID:        tran.ID,
		From:      tran.From,
		FromName:  h.name(tran.From),
		To:        tran.To,
		ToName:    h.name(tran.To),
		Amount:    tran.Amount,
		Fee:       tran.Fee,
		FeeRate:   tran.FeeRate(),
		TimeStamp: tran.TimeStamp,
	}
}

func (h Handlers) toBlock(bd database.BlockData, status string) block {
	trans := make([]tx, len(bd.Trans))
	for i, tran := range bd.Trans {
		trans[i] = h.toTx(tran)
	}

	return block{
		Hash:   bd.Hash,
		Status: status,
		Miner:  h.name(bd.Header.MinerAccount),
		Header: bd.Header,
		Trans:  trans,
	}
}

func queryNumber(r *http.Request, key string, def uint64) (uint64, error) {
	s := r.URL.Query().Get(key)
	switch s {
	case "":
		return def, nil
	case "latest":
		return state.QueryLatest, nil
	}

	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}

	return n, nil
}
