package worker

import (
	"context"
	"errors"
	"time"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/state"
)

// proposeOperations drives the block production timer. Every interval the
// proposer drains the mempool into a block and publishes it to the replicas.
func (w *Worker) proposeOperations() {
	w.evHandler("worker: proposeOperations: G started")
	defer w.evHandler("worker: proposeOperations: G completed")

	interval := w.state.Genesis().BlockInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !w.isShutdown() {
				w.runProposeOperation()
			}
		case <-w.shut:
			w.evHandler("worker: proposeOperations: received shut signal")
			return
		}
	}
}

// runProposeOperation produces one block and publishes it.
func (w *Worker) runProposeOperation() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Unblock an in-flight proposal on shutdown.
	go func() {
		select {
		case <-w.shut:
			cancel()
		case <-ctx.Done():
		}
	}()

	t := time.Now()
	block, err := w.state.ProposeBlock(ctx)
	duration := time.Since(t)

	if err != nil {
		switch {
		case errors.Is(err, state.ErrNoTransactions):
			w.evHandler("worker: runProposeOperation: no transactions in mempool")
		case ctx.Err() != nil:
			w.evHandler("worker: runProposeOperation: cancelled")
		default:
			w.evHandler("worker: runProposeOperation: ERROR: %s", err)
		}
		return
	}

	w.evHandler("worker: runProposeOperation: blk[%d] produced in %v", block.Header.Height, duration)

	blockData := database.NewBlockData(block)
	w.publishBlock(blockData)

	if w.hub != nil {
		w.hub.PublishBlock(blockData)
	}
}
