// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ardanlabs/powledger/business/web/errs"
	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/database"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
	"github.com/ardanlabs/powledger/foundation/validate"
	"github.com/ardanlabs/powledger/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// ProposeBlock takes a block mined elsewhere, validates it and if that
// passes, adds the block to the block store.
func (h Handlers) ProposeBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	// Decode the JSON in the post call into a block.
	var blockData database.BlockData
	if err := web.Decode(r, &blockData); err != nil {
		return decodeError(err)
	}

	// Convert the block data into a block. The recorded hash must match the
	// header.
	block, err := database.ToBlock(blockData)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	// Ask the state package to validate the proposed block. If the block
	// passes validation, it will be added to the block store.
	res, err := h.State.AcceptBlock(block)
	if err != nil {
		h.Log.Infow("propose block", "traceid", v.TraceID, "blk", block.Header.Number, "hash", blockData.Hash, "ERROR", err)
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, toResult(res), http.StatusOK)
}

// ProposeBranch takes a sequence of linked blocks and accepts them as a
// whole or not at all.
func (h Handlers) ProposeBranch(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var branch struct {
		Blocks []database.BlockData `json:"blocks" validate:"required,min=1"`
	}
	if err := web.Decode(r, &branch); err != nil {
		return decodeError(err)
	}

	blocks := make([]database.Block, len(branch.Blocks))
	for i, bd := range branch.Blocks {
		block, err := database.ToBlock(bd)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		blocks[i] = block
	}

	res, err := h.State.AcceptBranch(blocks)
	if err != nil {
		h.Log.Infow("propose branch", "traceid", v.TraceID, "blocks", len(blocks), "ERROR", err)
		return errs.FromLedger(err)
	}

	return web.Respond(ctx, w, toResult(res), http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latestBlock := h.State.RetrieveLatestBlock()

	status := struct {
		LatestBlockHash   string   `json:"latest_block_hash"`
		LatestBlockNumber uint64   `json:"latest_block_number"`
		Difficulty        uint     `json:"difficulty"`
		Tips              []string `json:"tips"`
		Mempool           int      `json:"mempool"`
	}{
		LatestBlockHash:   latestBlock.Hash,
		LatestBlockNumber: latestBlock.Header.Number,
		Difficulty:        h.State.RetrieveDifficulty(),
		Tips:              h.State.RetrieveTips(),
		Mempool:           h.State.QueryMempoolLength(),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// BlocksByNumber returns all the blocks based on the specified to/from values.
func (h Handlers) BlocksByNumber(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	fromStr := web.Param(r, "from")
	if fromStr == "latest" || fromStr == "" {
		fromStr = fmt.Sprintf("%d", state.QueryLatest)
	}

	toStr := web.Param(r, "to")
	if toStr == "latest" || toStr == "" {
		toStr = fmt.Sprintf("%d", state.QueryLatest)
	}

	from, err := strconv.ParseUint(fromStr, 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	to, err := strconv.ParseUint(toStr, 10, 64)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if from > to {
		return errs.NewTrusted(fmt.Errorf("from %d is greater than to %d", from, to), http.StatusBadRequest)
	}

	blocks := h.State.RetrieveBlocks(from, to)
	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// =============================================================================

type result struct {
	Outcome  string   `json:"outcome"`
	Hash     string   `json:"hash"`
	Applied  int      `json:"applied"`
	Orphaned []string `json:"orphaned,omitempty"`
	Returned int      `json:"returned"`
	Dropped  int      `json:"dropped"`
}

func toResult(res chain.Result) result {
	out := result{
		Outcome:  res.Outcome.String(),
		Hash:     res.Hash,
		Applied:  len(res.Applied),
		Returned: len(res.Returned),
		Dropped:  len(res.Dropped),
	}

	for _, b := range res.Orphaned {
		out.Orphaned = append(out.Orphaned, b.Hash())
	}

	return out
}

func decodeError(err error) error {
	if validate.IsFieldErrors(err) {
		return err
	}

	return errs.NewTrusted(err, http.StatusBadRequest)
}
