package worker

import (
	"context"

	"github.com/agorachain/agora/foundation/blockchain/state"
)

// replicaOperations drains the propagation channel, verifying and applying
// every block in arrival order. The first valid block at a height wins;
// verification of an in-flight block is abandoned cleanly on shutdown.
func (w *Worker) replicaOperations() {
	w.evHandler("worker: replicaOperations: G started")
	defer w.evHandler("worker: replicaOperations: G completed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-w.shut
		cancel()
	}()

	for {
		select {
		case blockData, open := <-w.client.Blocks():
			if !open {
				return
			}

			if err := w.state.AcceptProposedBlock(ctx, blockData); err != nil {
				switch {
				case state.IsConsensusError(err):
					w.evHandler("worker: replicaOperations: CONSENSUS: blk[%d] rejected: %s", blockData.Header.Height, err)
				case ctx.Err() != nil:
					return
				default:
					w.evHandler("worker: replicaOperations: blk[%d]: %s", blockData.Header.Height, err)
				}
				continue
			}

			w.publishBlock(blockData)

		case <-w.shut:
			w.evHandler("worker: replicaOperations: received shut signal")
			return
		}
	}
}
