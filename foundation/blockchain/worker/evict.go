package worker

import "time"

// evictInterval is how often the mempool is swept for aged transactions.
// Block commits also sweep, so this only matters on an idle node.
const evictInterval = time.Minute

// evictOperations drops expired transactions from the mempool on a timer
// so they age out even when no blocks are being produced.
func (w *Worker) evictOperations() {
	w.evHandler("worker: evictOperations: G started")
	defer w.evHandler("worker: evictOperations: G completed")

	ticker := time.NewTicker(evictInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if evicted := w.state.EvictExpired(); evicted > 0 {
				w.evHandler("worker: evictOperations: evicted %d expired txs", evicted)
			}

		case <-w.shut:
			w.evHandler("worker: evictOperations: received shut signal")
			return
		}
	}
}
