// Package memory implements the database.Store interface using in-memory
// maps. It backs tests and throwaway nodes; nothing survives a restart.
package memory

import (
	"errors"
	"sync"

	"github.com/agorachain/agora/foundation/blockchain/database"
)

// Memory represents the in-memory storage implementation.
type Memory struct {
	mu        sync.RWMutex
	blocks    []database.BlockData
	byHash    map[string]uint64
	accounts  map[database.AccountID]database.Account
	code      map[database.AccountID][]byte
	storage   map[database.AccountID]map[string]uint64
	receipts  map[string]database.Receipt
	mempool   []database.BlockTx
	snapshots map[uint64]map[database.AccountID]database.Account
}

// New constructs a Memory value for use.
func New() (*Memory, error) {
	m := Memory{
		byHash:    make(map[string]uint64),
		accounts:  make(map[database.AccountID]database.Account),
		code:      make(map[database.AccountID][]byte),
		storage:   make(map[database.AccountID]map[string]uint64),
		receipts:  make(map[string]database.Receipt),
		snapshots: make(map[uint64]map[database.AccountID]database.Account),
	}
	return &m, nil
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Reset clears out all stored chain data.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.blocks = nil
	m.byHash = make(map[string]uint64)
	m.accounts = make(map[database.AccountID]database.Account)
	m.code = make(map[database.AccountID][]byte)
	m.storage = make(map[database.AccountID]map[string]uint64)
	m.receipts = make(map[string]database.Receipt)
	m.mempool = nil
	m.snapshots = make(map[uint64]map[database.AccountID]database.Account)

	return nil
}

// WriteBlock takes the specified block and appends it to the chain.
func (m *Memory) WriteBlock(blockData database.BlockData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if uint64(len(m.blocks))+1 != blockData.Header.Height {
		return errors.New("block is out of order")
	}

	m.blocks = append(m.blocks, blockData)
	m.byHash[blockData.Hash] = blockData.Header.Height

	return nil
}

// GetBlock returns the contents of the block at the specified height.
func (m *Memory) GetBlock(height uint64) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if height == 0 || height > uint64(len(m.blocks)) {
		return database.BlockData{}, errors.New("block does not exist")
	}

	return m.blocks[height-1], nil
}

// GetBlockByHash returns the block with the specified hash.
func (m *Memory) GetBlockByHash(hash string) (database.BlockData, error) {
	m.mu.RLock()
	height, exists := m.byHash[hash]
	m.mu.RUnlock()

	if !exists {
		return database.BlockData{}, errors.New("block does not exist")
	}

	return m.GetBlock(height)
}

// ForEach returns an iterator to walk through all the blocks
// starting with block height 1.
func (m *Memory) ForEach() database.Iterator {
	return &memoryIterator{storage: m, current: 1}
}

// WriteAccounts stores the specified account states.
func (m *Memory) WriteAccounts(accounts map[database.AccountID]database.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, account := range accounts {
		m.accounts[id] = account.Clone()
	}

	return nil
}

// WriteContract stores a contract's code and full storage.
func (m *Memory) WriteContract(id database.AccountID, code []byte, storage map[string]uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.code[id] = append([]byte(nil), code...)

	slots := make(map[string]uint64, len(storage))
	for slot, value := range storage {
		slots[slot] = value
	}
	m.storage[id] = slots

	return nil
}

// WriteReceipts stores the receipts produced by one block.
func (m *Memory) WriteReceipts(receipts []database.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, receipt := range receipts {
		m.receipts[receipt.TxHash] = receipt
	}

	return nil
}

// WriteMempool stores the pending transactions for reload after restart.
func (m *Memory) WriteMempool(txs []database.BlockTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.mempool = append([]database.BlockTx(nil), txs...)

	return nil
}

// ReadMempool returns the pending transactions saved on the last shutdown.
func (m *Memory) ReadMempool() ([]database.BlockTx, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]database.BlockTx(nil), m.mempool...), nil
}

// WriteSnapshot stores a full account set keyed by block height.
func (m *Memory) WriteSnapshot(height uint64, accounts map[database.AccountID]database.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cpy := make(map[database.AccountID]database.Account, len(accounts))
	for id, account := range accounts {
		cpy[id] = account.Clone()
	}
	m.snapshots[height] = cpy

	return nil
}

// =============================================================================

// memoryIterator represents the iteration implementation for walking
// through the stored blocks. This implements the database Iterator
// interface.
type memoryIterator struct {
	storage *Memory // Access to the storage API.
	current uint64  // Current block height being iterated over.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block in chain order.
func (mi *memoryIterator) Next() (database.BlockData, error) {
	if mi.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	blockData, err := mi.storage.GetBlock(mi.current)
	if err != nil {
		mi.eoc = true
		return database.BlockData{}, nil
	}

	mi.current++

	return blockData, nil
}

// Done returns the end of chain value.
func (mi *memoryIterator) Done() bool {
	return mi.eoc
}