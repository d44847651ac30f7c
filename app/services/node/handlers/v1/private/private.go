// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/agorachain/agora/business/web/errs"
	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/propagate"
	"github.com/agorachain/agora/foundation/blockchain/state"
	"github.com/agorachain/agora/foundation/nameservice"
	"github.com/agorachain/agora/foundation/web"
	"go.uber.org/zap"
)

// Handlers manages the set of node to node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	Hub   *propagate.Hub
}

// Propagate upgrades the connection to a web socket and subscribes the
// calling replica to the block propagation channel.
func (h Handlers) Propagate(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.Log.Infow("replica subscribing", "traceid", v.TraceID, "remoteaddr", r.RemoteAddr)

	return h.Hub.Subscribe(w, r)
}

// SubmitNodeTransaction adds transactions forwarded by a peer node to the
// mempool.
func (h Handlers) SubmitNodeTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var tx database.BlockTx
	if err := web.Decode(r, &tx); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("add node tran", "traceid", v.TraceID, "tx", tx.SignedTx, "to", tx.ToID, "value", tx.Value)
	if err := h.State.SubmitNodeTransaction(tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := struct {
		Status string `json:"status"`
	}{
		Status: "transaction added to mempool",
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latestBlock := h.State.LatestBlock()

	status := struct {
		Role              string             `json:"role"`
		Beneficiary       database.AccountID `json:"beneficiary"`
		LatestBlockHash   string             `json:"latest_block_hash"`
		LatestBlockHeight uint64             `json:"latest_block_height"`
		Uncommitted       int                `json:"uncommitted"`
	}{
		Role:              h.State.Role(),
		Beneficiary:       h.State.BeneficiaryID(),
		LatestBlockHash:   latestBlock.Hash(),
		LatestBlockHeight: latestBlock.Header.Height,
		Uncommitted:       h.State.MempoolCount(),
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// BlocksByHeight returns raw block data for the specified to/from values.
// Replicas that fell behind use this to catch back up to the proposer.
func (h Handlers) BlocksByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latest := h.State.LatestBlock().Header.Height

	fromStr := web.Param(r, "from")
	if fromStr == "latest" || fromStr == "" {
		fromStr = strconv.FormatUint(latest, 10)
	}

	toStr := web.Param(r, "to")
	if toStr == "latest" || toStr == "" {
		toStr = strconv.FormatUint(latest, 10)
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
		return errs.NewTrusted(errors.New("from greater than to"), http.StatusBadRequest)
	}
	if from == 0 || to > latest {
		return errs.NewTrusted(errors.New("height out of range"), http.StatusBadRequest)
	}

	blocks, err := h.State.QueryBlocksByHeight(from, to)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}
	if len(blocks) == 0 {
		return web.Respond(ctx, w, nil, http.StatusNoContent)
	}

	blockData := make([]database.BlockData, len(blocks))
	for i, block := range blocks {
		blockData[i] = database.NewBlockData(block)
	}

	return web.Respond(ctx, w, blockData, http.StatusOK)
}

// Mempool returns the raw set of uncommitted transactions.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.State.Mempool()
	return web.Respond(ctx, w, txs, http.StatusOK)
}