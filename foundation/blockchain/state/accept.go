package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/agorachain/agora/foundation/blockchain/database"
)

// ConsensusError is returned when a received block fails re-verification.
// The block is rejected as a whole and the node stays at its prior head.
type ConsensusError struct {
	Height uint64
	Reason string
}

// Error implements the error interface.
func (ce *ConsensusError) Error() string {
	return fmt.Sprintf("consensus failure at height %d: %s", ce.Height, ce.Reason)
}

func newConsensusError(height uint64, format string, args ...any) error {
	return &ConsensusError{Height: height, Reason: fmt.Sprintf(format, args...)}
}

// IsConsensusError tells whether the error chain holds a consensus failure.
func IsConsensusError(err error) bool {
	var ce *ConsensusError
	return errors.As(err, &ce)
}

// =============================================================================

// AcceptProposedBlock takes a block received from the proposer, verifies it
// against local state by full re-execution, and commits it as the new head
// when everything matches. Any mismatch rejects the whole block; no partial
// application is ever retained. A second block at an already accepted height
// comes back as ErrStaleBlock: the first valid block received wins.
func (s *State) AcceptProposedBlock(ctx context.Context, blockData database.BlockData) error {
	block, err := database.ToBlock(blockData)
	if err != nil {
		return newConsensusError(blockData.Header.Height, "malformed block: %s", err)
	}

	s.evHandler("state: AcceptProposedBlock: blk[%d] received", block.Header.Height)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := block.ValidateBlock(s.db.LatestBlock(), s.proposerScheme, s.proposerPubKey, s.evHandler); err != nil {
		if errors.Is(err, database.ErrStaleBlock) || errors.Is(err, database.ErrOutOfSync) {
			return err
		}
		return newConsensusError(block.Header.Height, "structural check: %s", err)
	}

	delta := database.NewDelta(s.db)
	var receipts []database.Receipt
	var gasUsed uint64

	for _, tx := range block.Transactions() {
		// Verification of a block is abandoned cleanly on cancellation; the
		// delta is dropped and nothing was mutated.
		if ctx.Err() != nil {
			return ctx.Err()
		}

		receipt, err := s.engine.Apply(delta, tx, block.Header.Height, block.Header.ProposerID)
		if err != nil {
			return newConsensusError(block.Header.Height, "tx %s rejected: %s", tx.SignedTx, err)
		}
		receipts = append(receipts, receipt)
		gasUsed += receipt.GasUsed
	}

	if gasUsed != block.Header.GasUsed {
		return newConsensusError(block.Header.Height, "gas used mismatch: computed %d, header %d", gasUsed, block.Header.GasUsed)
	}

	s.engine.ApplyReward(delta, block.Header.ProposerID)

	if err := s.db.Commit(block, delta, receipts, true); err != nil {
		return err
	}

	for _, tx := range block.Transactions() {
		s.mempool.RemoveStale(tx.FromID, tx.Nonce)
	}
	s.mempool.EvictExpired()
	s.limiter.Purge()

	s.evHandler("state: AcceptProposedBlock: blk[%d] committed: txs[%d]", block.Header.Height, len(block.Transactions()))

	return nil
}
