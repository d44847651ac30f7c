// Package mempool maintains the holding area for validated transactions
// that have not yet been included in a block.
package mempool

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/mempool/selector"
)

// Defaults for the eviction policy.
const (
	DefaultMaxSize = 4096
	DefaultTTL     = 15 * time.Minute
)

// Mempool represents a cache of transactions organized by sender:nonce.
type Mempool struct {
	mu       sync.RWMutex
	pool     map[string]database.BlockTx
	selectFn selector.Func
	maxSize  int
	ttl      time.Duration
}

// New constructs a mempool using the default price strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyPrice)
}

// NewWithStrategy constructs a mempool with the specified sort strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]database.BlockTx),
		selectFn: selectFn,
		maxSize:  DefaultMaxSize,
		ttl:      DefaultTTL,
	}

	return &mp, nil
}

// Count returns the current number of transactions in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds or replaces a transaction in the mempool. A transaction with
// the same sender and nonce supersedes the existing entry. A full pool
// rejects new senders' transactions until eviction frees space.
func (mp *Mempool) Upsert(tx database.BlockTx) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	key := mapKey(tx)

	if _, exists := mp.pool[key]; !exists && len(mp.pool) >= mp.maxSize {
		return fmt.Errorf("mempool at capacity %d", mp.maxSize)
	}

	mp.pool[key] = tx

	return nil
}

// Delete removes a transaction from the mempool.
func (mp *Mempool) Delete(tx database.BlockTx) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, mapKey(tx))
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]database.BlockTx)
}

// Copy returns a snapshot of every transaction in the pool. Used for API
// listings and for persisting the pool on shutdown.
func (mp *Mempool) Copy() []database.BlockTx {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	txs := make([]database.BlockTx, 0, len(mp.pool))
	for _, tx := range mp.pool {
		txs = append(txs, tx)
	}
	return txs
}

// PickBest uses the configured strategy to return the next howMany
// transactions for a block. Passing -1 returns them all.
func (mp *Mempool) PickBest(howMany int) []database.BlockTx {
	m := make(map[database.AccountID][]database.BlockTx)
	mp.mu.RLock()
	{
		for key, tx := range mp.pool {
			sender := database.AccountID(strings.Split(key, ":")[0])
			m[sender] = append(m[sender], tx)
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(m, howMany)
}

// PendingNonce returns the highest nonce the sender has sitting in the
// pool. The second return is false when the sender has nothing pending.
func (mp *Mempool) PendingNonce(sender database.AccountID) (uint64, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	var highest uint64
	var found bool
	for _, tx := range mp.pool {
		if tx.FromID == sender && tx.Nonce > highest {
			highest = tx.Nonce
			found = true
		}
	}
	return highest, found
}

// RemoveStale drops every transaction from the sender at or below the
// confirmed nonce. Called after a block commits so superseded and included
// entries disappear together.
func (mp *Mempool) RemoveStale(sender database.AccountID, confirmedNonce uint64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for key, tx := range mp.pool {
		if tx.FromID == sender && tx.Nonce <= confirmedNonce {
			delete(mp.pool, key)
		}
	}
}

// EvictExpired drops entries older than the TTL and returns how many were
// removed.
func (mp *Mempool) EvictExpired() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	cutoff := uint64(time.Now().UTC().Add(-mp.ttl).UnixNano())

	var evicted int
	for key, tx := range mp.pool {
		if tx.TimeStamp < cutoff {
			delete(mp.pool, key)
			evicted++
		}
	}
	return evicted
}

// =============================================================================

// mapKey generates the sender:nonce pool key.
func mapKey(tx database.BlockTx) string {
	return fmt.Sprintf("%s:%d", tx.FromID, tx.Nonce)
}
