package worker

// shareTxOperations forwards locally admitted transactions to the peer
// node: the proposer broadcasts them down to replicas, a replica carries
// them up to the proposer for inclusion.
func (w *Worker) shareTxOperations() {
	w.evHandler("worker: shareTxOperations: G started")
	defer w.evHandler("worker: shareTxOperations: G completed")

	for {
		select {
		case tx := <-w.txSharing:
			if w.isShutdown() {
				return
			}

			switch {
			case w.hub != nil:
				w.hub.ShareTx(tx)

			case w.client != nil:
				if err := w.client.SendTransaction(tx); err != nil {
					w.evHandler("worker: shareTxOperations: WARNING: %s", err)
				}
			}

		case <-w.shut:
			w.evHandler("worker: shareTxOperations: received shut signal")
			return
		}
	}
}
