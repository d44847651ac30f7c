package state

import (
	"fmt"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/genesis"
	"github.com/agorachain/agora/foundation/blockchain/mempool"
	"github.com/agorachain/agora/foundation/blockchain/validate"
)

// SubmitWalletTransaction accepts a transaction from a wallet for inclusion
// and returns the canonical transaction hash. The transaction is rate
// limited, validated against the last committed state, admitted to the
// mempool, and shared with the peer node.
func (s *State) SubmitWalletTransaction(signedTx database.SignedTx) (string, error) {
	s.evHandler("state: SubmitWalletTransaction: tx[%s]", signedTx)

	if err := s.limiter.Check(signedTx.FromID); err != nil {
		return "", err
	}

	result, err := validateTx(signedTx, s.genesis, s.admissionView())
	if err != nil {
		return "", err
	}

	tx := database.NewBlockTx(signedTx, result.RequiredGas)
	if err := s.mempool.Upsert(tx); err != nil {
		return "", err
	}

	if s.Worker != nil {
		s.Worker.SignalShareTx(tx)
	}

	return signedTx.Hash(), nil
}

// SubmitNodeTransaction accepts a transaction shared by a peer node for
// inclusion. It is re-validated locally and never shared again, so a
// transaction travels the propagation channel at most once.
func (s *State) SubmitNodeTransaction(tx database.BlockTx) error {
	s.evHandler("state: SubmitNodeTransaction: tx[%s]", tx.SignedTx)

	if _, err := validateTx(tx.SignedTx, s.genesis, s.admissionView()); err != nil {
		return err
	}

	return s.mempool.Upsert(tx)
}

// =============================================================================

// validateTx runs the full admission pipeline against the specified state
// view.
func validateTx(signedTx database.SignedTx, gen genesis.Genesis, view database.StateReader) (validate.Result, error) {
	result, err := validate.Transaction(signedTx, gen, view)
	if err != nil {
		return validate.Result{}, fmt.Errorf("validating tx: %w", err)
	}

	return result, nil
}

// admissionView layers the pooled nonces over the committed state so a
// sender can queue several transactions in sequence. Selection still holds
// the later nonces back until the earlier ones confirm.
func (s *State) admissionView() database.StateReader {
	return &pendingView{db: s.db, pool: s.mempool}
}

type pendingView struct {
	db   *database.Database
	pool *mempool.Mempool
}

func (pv *pendingView) Account(id database.AccountID) (database.Account, bool) {
	account, exists := pv.db.Account(id)
	if pending, found := pv.pool.PendingNonce(id); found && pending > account.Nonce {
		account.Nonce = pending
		exists = true
	}
	return account, exists
}

func (pv *pendingView) ContractCode(id database.AccountID) ([]byte, bool) {
	return pv.db.ContractCode(id)
}

func (pv *pendingView) ContractStorage(id database.AccountID, slot string) (uint64, bool) {
	return pv.db.ContractStorage(id, slot)
}
