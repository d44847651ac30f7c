// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/agorachain/agora/business/web/errs"
	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/state"
	"github.com/agorachain/agora/foundation/events"
	"github.com/agorachain/agora/foundation/nameservice"
	"github.com/agorachain/agora/foundation/web"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of public node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	NS    *nameservice.NameService
	WS    websocket.Upgrader
	Evts  *events.Events
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

// SubmitWalletTransaction adds new user transactions to the mempool.
func (h Handlers) SubmitWalletTransaction(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var signedTx database.SignedTx
	if err := web.Decode(r, &signedTx); err != nil {
		return fmt.Errorf("unable to decode payload: %w", err)
	}

	h.Log.Infow("add user tran", "traceid", v.TraceID, "tx", signedTx, "to", signedTx.ToID, "value", signedTx.Value)
	txHash, err := h.State.SubmitWalletTransaction(signedTx)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	h.Evts.Publish(events.TypeTransaction, struct {
		TxHash string             `json:"tx_hash"`
		From   database.AccountID `json:"from"`
	}{txHash, signedTx.FromID})

	resp := struct {
		Status string `json:"status"`
		TxHash string `json:"tx_hash"`
	}{
		Status: "transaction added to mempool",
		TxHash: txHash,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.Genesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Supply returns the current total supply across all accounts.
func (h Handlers) Supply(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	resp := supply{
		TotalSupply: h.State.TotalSupply().String(),
		Height:      h.State.LatestBlock().Header.Height,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted transactions, optionally filtered
// by the account in the route.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	acct := web.Param(r, "account")

	mempool := h.State.Mempool()

	trans := []tx{}
	for _, tran := range mempool {
		if acct != "" && (acct != string(tran.FromID)) && (acct != string(tran.ToID)) {
			continue
		}

		trans = append(trans, toTxModel(tran, h.NS))
	}

	return web.Respond(ctx, w, trans, http.StatusOK)
}

// Accounts returns the committed state for all accounts or for the one
// specified in the route.
func (h Handlers) Accounts(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	account := web.Param(r, "account")

	var chainAccounts map[database.AccountID]database.Account
	switch account {
	case "":
		chainAccounts = h.State.QueryAccounts()

	default:
		accountID, err := database.ToAccountID(account)
		if err != nil {
			return errs.NewTrusted(err, http.StatusBadRequest)
		}
		acct, exists := h.State.QueryAccount(accountID)
		if !exists {
			return errs.NewTrusted(errors.New("account not found"), http.StatusNotFound)
		}
		chainAccounts = map[database.AccountID]database.Account{accountID: acct}
	}

	acts := make([]info, 0, len(chainAccounts))
	for accountID, acct := range chainAccounts {
		act := info{
			Account:    accountID,
			Name:       h.NS.Lookup(accountID),
			Balance:    acct.Balance.String(),
			Nonce:      acct.Nonce,
			Reputation: acct.Reputation,
			IsContract: acct.IsContract(),
		}
		acts = append(acts, act)
	}

	ai := actInfo{
		LatestBlock: h.State.LatestBlock().Hash(),
		Uncommitted: h.State.MempoolCount(),
		Accounts:    acts,
	}

	return web.Respond(ctx, w, ai, http.StatusOK)
}

// Receipt returns the execution receipt for the specified transaction hash.
func (h Handlers) Receipt(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txHash := web.Param(r, "hash")

	receipt, exists := h.State.QueryReceipt(txHash)
	if !exists {
		return errs.NewTrusted(errors.New("receipt not found"), http.StatusNotFound)
	}

	return web.Respond(ctx, w, receipt, http.StatusOK)
}

// ContractCode returns the runtime bytecode for the specified contract.
func (h Handlers) ContractCode(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountID, err := database.ToAccountID(web.Param(r, "account"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	code, exists := h.State.QueryContractCode(accountID)
	if !exists {
		return errs.NewTrusted(errors.New("contract not found"), http.StatusNotFound)
	}

	resp := struct {
		Account database.AccountID `json:"account"`
		Code    string             `json:"code"`
	}{
		Account: accountID,
		Code:    fmt.Sprintf("0x%x", code),
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// ContractStorage returns the full storage of the specified contract.
func (h Handlers) ContractStorage(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	accountID, err := database.ToAccountID(web.Param(r, "account"))
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	storage := h.State.QueryContractStorage(accountID)

	resp := struct {
		Account database.AccountID `json:"account"`
		Storage map[string]uint64  `json:"storage"`
	}{
		Account: accountID,
		Storage: storage,
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// BlocksByHeight returns the blocks in the specified closed range. Either
// bound accepts the value "latest".
func (h Handlers) BlocksByHeight(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	latest := h.State.LatestBlock().Header.Height

	from, err := parseHeight(web.Param(r, "from"), latest)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}
	to, err := parseHeight(web.Param(r, "to"), latest)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if from > to {
		return errs.NewTrusted(errors.New("from greater than to"), http.StatusBadRequest)
	}
	if from == 0 || to > latest {
		return errs.NewTrusted(errors.New("height out of range"), http.StatusBadRequest)
	}

	dbBlocks, err := h.State.QueryBlocksByHeight(from, to)
	if err != nil {
		return errs.NewTrusted(err, http.StatusNotFound)
	}

	blocks := make([]block, len(dbBlocks))
	for i, blk := range dbBlocks {
		blocks[i] = toBlockModel(blk, h.NS)
	}

	return web.Respond(ctx, w, blocks, http.StatusOK)
}

// BlockByHash returns the block with the specified hash.
func (h Handlers) BlockByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	blk, err := h.State.QueryBlockByHash(web.Param(r, "hash"))
	if err != nil {
		return errs.NewTrusted(errors.New("block not found"), http.StatusNotFound)
	}

	return web.Respond(ctx, w, toBlockModel(blk, h.NS), http.StatusOK)
}

// =============================================================================

func parseHeight(str string, latest uint64) (uint64, error) {
	if str == "latest" || str == "" {
		return latest, nil
	}
	return strconv.ParseUint(str, 10, 64)
}

func toTxModel(tran database.BlockTx, ns *nameservice.NameService) tx {
	return tx{
		Type:      tran.Type,
		From:      tran.FromID,
		FromName:  ns.Lookup(tran.FromID),
		To:        tran.ToID,
		ToName:    ns.Lookup(tran.ToID),
		Nonce:     tran.Nonce,
		Value:     bigString(tran.Value),
		GasPrice:  bigString(tran.GasPrice),
		GasLimit:  tran.GasLimit,
		GasUnits:  tran.GasUnits,
		Data:      tran.Data,
		TimeStamp: tran.TimeStamp,
		Sig:       tran.SignatureString(),
	}
}

func toBlockModel(blk database.Block, ns *nameservice.NameService) block {
	txs := blk.Transactions()
	trans := make([]tx, len(txs))
	for i, tran := range txs {
		trans[i] = toTxModel(tran, ns)
	}

	return block{
		Hash:          blk.Hash(),
		PrevBlockHash: blk.Header.PrevBlockHash,
		Height:        blk.Header.Height,
		Proposer:      blk.Header.ProposerID,
		ProposerName:  ns.Lookup(blk.Header.ProposerID),
		GasUsed:       blk.Header.GasUsed,
		GasLimit:      blk.Header.GasLimit,
		BaseFee:       blk.Header.BaseFee,
		TimeStamp:     blk.Header.TimeStamp,
		TransRoot:     blk.Header.TransRoot,
		Transactions:  trans,
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}