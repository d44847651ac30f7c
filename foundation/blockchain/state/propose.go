package state

import (
	"context"
	"errors"

	"github.com/agorachain/agora/foundation/blockchain/database"
)

// ErrNoTransactions is returned when a block is requested to be created and
// there are no transactions in the mempool. The proposer produces an empty
// block anyway when the chain is configured for it.
var ErrNoTransactions = errors.New("no transactions in mempool")

// =============================================================================

// ProposeBlock pulls the best eligible transactions from the mempool,
// executes them in selection order against a block delta, assembles and
// signs the block, and commits it as the new head. The caller publishes the
// returned block to the peers.
func (s *State) ProposeBlock(ctx context.Context) (database.Block, error) {
	if s.role != RoleProposer {
		return database.Block{}, ErrNotProposer
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := s.mempool.PickBest(-1)
	if len(candidates) == 0 && !s.genesis.EmptyBlocks {
		return database.Block{}, ErrNoTransactions
	}

	s.evHandler("state: ProposeBlock: candidates[%d]", len(candidates))

	delta := database.NewDelta(s.db)
	nextHeight := s.db.LatestBlock().Header.Height + 1

	var accepted []database.BlockTx
	var receipts []database.Receipt
	var gasUsed uint64

	// Once a sender's transaction is skipped or dropped, their later nonces
	// must wait for the next block to keep the sequence unbroken.
	held := make(map[database.AccountID]bool)

	for _, tx := range candidates {
		if ctx.Err() != nil {
			return database.Block{}, ctx.Err()
		}
		if held[tx.FromID] {
			continue
		}

		// Execute tentatively in a child delta. A transaction that would
		// push the block past its gas limit is skipped for this block, and
		// selection continues with the next one.
		txView := database.NewDelta(delta)
		receipt, err := s.engine.Apply(txView, tx, nextHeight, s.beneficiaryID)
		if err != nil {
			s.evHandler("state: ProposeBlock: drop tx[%s]: %s", tx.SignedTx, err)
			s.mempool.Delete(tx)
			held[tx.FromID] = true
			continue
		}

		if gasUsed+receipt.GasUsed > s.genesis.BlockGasLimit {
			s.evHandler("state: ProposeBlock: skip tx[%s]: block gas budget", tx.SignedTx)
			held[tx.FromID] = true
			continue
		}

		delta.Fold(txView)
		gasUsed += receipt.GasUsed
		accepted = append(accepted, tx)
		receipts = append(receipts, receipt)
	}

	if len(accepted) == 0 && !s.genesis.EmptyBlocks {
		return database.Block{}, ErrNoTransactions
	}

	s.engine.ApplyReward(delta, s.beneficiaryID)

	block, err := database.NewBlock(s.db.LatestBlock(), s.beneficiaryID, gasUsed, s.genesis.BlockGasLimit, s.genesis.BaseFee, accepted)
	if err != nil {
		return database.Block{}, err
	}
	if err := block.Sign(s.proposerKey); err != nil {
		return database.Block{}, err
	}

	if err := s.db.Commit(block, delta, receipts, true); err != nil {
		return database.Block{}, err
	}

	for _, tx := range accepted {
		s.mempool.RemoveStale(tx.FromID, tx.Nonce)
	}
	s.mempool.EvictExpired()
	s.limiter.Purge()

	s.evHandler("state: ProposeBlock: blk[%d] committed: txs[%d] gas[%d]", block.Header.Height, len(accepted), gasUsed)

	return block, nil
}
