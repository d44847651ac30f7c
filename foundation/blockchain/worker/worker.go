// Package worker implements the background processing for the node: block
// production on the proposer, block verification on the replica, and
// transaction sharing between them. The role decides which variant runs;
// both sit behind the same state.Worker interface.
package worker

import (
	"sync"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/propagate"
	"github.com/agorachain/agora/foundation/blockchain/state"
	"github.com/agorachain/agora/foundation/events"
)

// maxTxShareRequests represents the max number of share transaction signals
// that can be pending before new ones are dropped.
const maxTxShareRequests = 100

// Worker manages the background goroutines for one node.
type Worker struct {
	state     *state.State
	hub       *propagate.Hub
	client    *propagate.Client
	wg        sync.WaitGroup
	shut      chan struct{}
	txSharing chan database.BlockTx
	evts      *events.Events
	evHandler state.EventHandler
}

// Run creates a worker, registers it with the state package, and starts the
// background processes for the node's role. The hub is set on a proposer,
// the client on a replica.
func Run(st *state.State, hub *propagate.Hub, client *propagate.Client, evts *events.Events, evHandler state.EventHandler) {
	w := Worker{
		state:     st,
		hub:       hub,
		client:    client,
		shut:      make(chan struct{}),
		txSharing: make(chan database.BlockTx, maxTxShareRequests),
		evts:      evts,
		evHandler: evHandler,
	}

	// Register this worker with the state package.
	st.Worker = &w

	operations := []func(){
		w.shareTxOperations,
		w.evictOperations,
	}
	switch st.Role() {
	case state.RoleProposer:
		operations = append(operations, w.proposeOperations)
	case state.RoleReplica:
		operations = append(operations, w.replicaOperations)
	}

	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	for i := 0; i < g; i++ {
		<-hasStarted
	}
}

// =============================================================================
// These methods implement the state.Worker interface.

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	close(w.shut)
	w.wg.Wait()
}

// SignalShareTx queues a transaction for sharing with the peer node. If the
// queue is full the signal is dropped; the transaction is already safe in
// the local mempool.
func (w *Worker) SignalShareTx(blockTx database.BlockTx) {
	select {
	case w.txSharing <- blockTx:
		w.evHandler("worker: SignalShareTx: share tx signaled")
	default:
		w.evHandler("worker: SignalShareTx: queue full, tx not shared")
	}
}

// =============================================================================

// publishBlock pushes a typed block frame to any connected websocket client.
func (w *Worker) publishBlock(blockData database.BlockData) {
	if w.evts != nil {
		w.evts.Publish(events.TypeBlock, blockData)
	}
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
