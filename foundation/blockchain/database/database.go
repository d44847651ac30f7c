// Package database manages the versioned account, contract, and receipt
// state for the chain and the persistence of blocks through an ordered
// key-value store.
package database

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/agorachain/agora/foundation/blockchain/genesis"
)

// snapshotInterval controls how often a full account snapshot is written to
// the store for pruning support.
const snapshotInterval = 64

// Store represents the behavior required of the ordered key-value store that
// persists blocks, accounts, contracts, receipts, and the mempool.
type Store interface {
	WriteBlock(blockData BlockData) error
	GetBlock(height uint64) (BlockData, error)
	GetBlockByHash(hash string) (BlockData, error)
	ForEach() Iterator
	WriteAccounts(accounts map[AccountID]Account) error
	WriteContract(id AccountID, code []byte, storage map[string]uint64) error
	WriteReceipts(receipts []Receipt) error
	WriteMempool(txs []BlockTx) error
	ReadMempool() ([]BlockTx, error)
	WriteSnapshot(height uint64, accounts map[AccountID]Account) error
	Close() error
	Reset() error
}

// Iterator represents the behavior required to iterate over stored blocks
// starting at height 1.
type Iterator interface {
	Next() (BlockData, error)
	Done() bool
}

// =============================================================================

// Database manages the in-memory chain state with write-through persistence.
// It is the single mutable source of truth for the node; all mutation goes
// through Commit under the block application protocol.
type Database struct {
	mu sync.RWMutex

	genesis     genesis.Genesis
	latestBlock Block
	accounts    map[AccountID]Account
	code        map[AccountID][]byte
	storage     map[AccountID]map[string]uint64
	receipts    map[string]Receipt

	strg Store
}

// New constructs the database seeded with the genesis balances. Blocks
// already on disk are not replayed here; the state package owns replay since
// it requires the execution engine.
func New(gen genesis.Genesis, strg Store) (*Database, error) {
	db := Database{
		genesis:  gen,
		accounts: make(map[AccountID]Account),
		code:     make(map[AccountID][]byte),
		storage:  make(map[AccountID]map[string]uint64),
		receipts: make(map[string]Receipt),
		strg:     strg,
	}

	if err := db.seedGenesis(); err != nil {
		return nil, err
	}

	return &db, nil
}

// seedGenesis applies the genesis balances to a fresh account set.
func (db *Database) seedGenesis() error {
	for addr := range db.genesis.Balances {
		accountID, err := ToAccountID(addr)
		if err != nil {
			return fmt.Errorf("genesis account %s: %w", addr, err)
		}

		balance, err := db.genesis.BalanceFor(addr)
		if err != nil {
			return err
		}

		db.accounts[accountID] = Account{Balance: balance}
	}

	return nil
}

// Close closes the underlying store.
func (db *Database) Close() {
	db.strg.Close()
}

// Reset re-initializes the database back to the genesis state.
func (db *Database) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.strg.Reset(); err != nil {
		return err
	}

	db.latestBlock = Block{}
	db.accounts = make(map[AccountID]Account)
	db.code = make(map[AccountID][]byte)
	db.storage = make(map[AccountID]map[string]uint64)
	db.receipts = make(map[string]Receipt)

	return db.seedGenesis()
}

// =============================================================================
// StateReader implementation.

// Account returns a copy of the account if it exists.
func (db *Database) Account(id AccountID) (Account, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	account, exists := db.accounts[id]
	if !exists {
		return Account{}, false
	}
	return account.Clone(), true
}

// ContractCode returns the code installed on the account if any.
func (db *Database) ContractCode(id AccountID) ([]byte, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	code, exists := db.code[id]
	return code, exists
}

// ContractStorage returns one storage slot of a contract.
func (db *Database) ContractStorage(id AccountID, slot string) (uint64, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	slots, exists := db.storage[id]
	if !exists {
		return 0, false
	}
	value, exists := slots[slot]
	return value, exists
}

// =============================================================================

// CopyAccounts makes a copy of the current accounts.
func (db *Database) CopyAccounts() map[AccountID]Account {
	db.mu.RLock()
	defer db.mu.RUnlock()

	accounts := make(map[AccountID]Account, len(db.accounts))
	for accountID, account := range db.accounts {
		accounts[accountID] = account.Clone()
	}
	return accounts
}

// CopyContractStorage makes a copy of the full storage of one contract.
func (db *Database) CopyContractStorage(id AccountID) map[string]uint64 {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.copyContractStorage(id)
}

// copyContractStorage requires the caller to hold at least a read lock,
// except from inside commit paths that hold the write lock.
func (db *Database) copyContractStorage(id AccountID) map[string]uint64 {
	slots := make(map[string]uint64, len(db.storage[id]))
	for slot, value := range db.storage[id] {
		slots[slot] = value
	}
	return slots
}

// Receipt returns the receipt for the specified transaction hash.
func (db *Database) Receipt(txHash string) (Receipt, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	receipt, exists := db.receipts[txHash]
	return receipt, exists
}

// TotalSupply sums every account balance. Used to audit that supply only
// changes by the block reward.
func (db *Database) TotalSupply() *big.Int {
	db.mu.RLock()
	defer db.mu.RUnlock()

	total := big.NewInt(0)
	for _, account := range db.accounts {
		total.Add(total, account.Balance)
	}
	return total
}

// LatestBlock returns the current head of the chain.
func (db *Database) LatestBlock() Block {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.latestBlock
}

// HeadHash returns the hash of the current head.
func (db *Database) HeadHash() string {
	return db.LatestBlock().Hash()
}

// =============================================================================

// Commit atomically applies a fully executed block: the state delta, the
// receipts, the new head, and the write-through persistence. The persist
// flag is off during startup replay when the blocks are already on disk.
func (db *Database) Commit(block Block, delta *Delta, receipts []Receipt, persist bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if persist {
		if err := db.strg.WriteBlock(NewBlockData(block)); err != nil {
			return fmt.Errorf("writing block: %w", err)
		}
	}

	for id, account := range delta.accounts {
		db.accounts[id] = account
	}
	for id, code := range delta.code {
		db.code[id] = code
	}
	for id, slots := range delta.storage {
		dst, exists := db.storage[id]
		if !exists {
			dst = make(map[string]uint64)
			db.storage[id] = dst
		}
		for slot, value := range slots {
			dst[slot] = value
		}
	}

	for _, receipt := range receipts {
		db.receipts[receipt.TxHash] = receipt
	}

	db.latestBlock = block

	if persist {
		if err := db.strg.WriteAccounts(db.accounts); err != nil {
			return fmt.Errorf("writing accounts: %w", err)
		}
		for id := range delta.code {
			if err := db.strg.WriteContract(id, db.code[id], db.storage[id]); err != nil {
				return fmt.Errorf("writing contract %s: %w", id, err)
			}
		}
		for id := range delta.storage {
			if _, rewritten := delta.code[id]; rewritten {
				continue
			}
			if err := db.strg.WriteContract(id, db.code[id], db.storage[id]); err != nil {
				return fmt.Errorf("writing contract %s: %w", id, err)
			}
		}
		if err := db.strg.WriteReceipts(receipts); err != nil {
			return fmt.Errorf("writing receipts: %w", err)
		}
		if block.Header.Height%snapshotInterval == 0 {
			if err := db.strg.WriteSnapshot(block.Header.Height, db.accounts); err != nil {
				return fmt.Errorf("writing snapshot: %w", err)
			}
		}
	}

	return nil
}

// =============================================================================

// GetBlock reads the specified block from the store.
func (db *Database) GetBlock(height uint64) (Block, error) {
	blockData, err := db.strg.GetBlock(height)
	if err != nil {
		return Block{}, err
	}
	return ToBlock(blockData)
}

// GetBlockByHash reads the block with the specified hash from the store.
func (db *Database) GetBlockByHash(hash string) (Block, error) {
	blockData, err := db.strg.GetBlockByHash(hash)
	if err != nil {
		return Block{}, err
	}
	return ToBlock(blockData)
}

// ForEach returns an iterator to walk the stored blocks from height 1.
func (db *Database) ForEach() DatabaseIterator {
	return DatabaseIterator{iterator: db.strg.ForEach()}
}

// WriteMempool persists the mempool contents for reload after restart.
func (db *Database) WriteMempool(txs []BlockTx) error {
	return db.strg.WriteMempool(txs)
}

// ReadMempool loads the persisted mempool contents.
func (db *Database) ReadMempool() ([]BlockTx, error) {
	return db.strg.ReadMempool()
}

// =============================================================================

// DatabaseIterator converts stored block data into blocks while iterating.
type DatabaseIterator struct {
	iterator Iterator
}

// Next retrieves the next block from the store.
func (di *DatabaseIterator) Next() (Block, error) {
	blockData, err := di.iterator.Next()
	if err != nil {
		return Block{}, err
	}

	return ToBlock(blockData)
}

// Done returns the end of chain value.
func (di *DatabaseIterator) Done() bool {
	return di.iterator.Done()
}
