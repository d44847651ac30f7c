// Package disk implements the database.Store interface on top of badger,
// an embedded ordered key-value store.
package disk

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/dgraph-io/badger"
)

// Key prefixes. Block keys use a big endian fixed width height so a prefix
// scan yields blocks in chain order.
const (
	prefixBlock    = "b/"
	prefixHash     = "h/"
	prefixAccount  = "a/"
	prefixCode     = "c/"
	prefixStorage  = "s/"
	prefixReceipt  = "r/"
	prefixSnapshot = "n/"
	keyMempool     = "mempool"
)

// Disk represents the badger backed storage implementation.
type Disk struct {
	db *badger.DB
}

// New opens or creates the badger database under the specified directory.
func New(dbPath string) (*Disk, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	return &Disk{db: db}, nil
}

// Close releases the underlying badger resources.
func (d *Disk) Close() error {
	return d.db.Close()
}

// Reset drops all chain data from the store.
func (d *Disk) Reset() error {
	return d.db.DropAll()
}

// WriteBlock persists the block under its height and indexes its hash.
func (d *Disk) WriteBlock(blockData database.BlockData) error {
	data, err := json.Marshal(blockData)
	if err != nil {
		return err
	}

	return d.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(blockKey(blockData.Header.Height), data); err != nil {
			return err
		}
		height := make([]byte, 8)
		binary.BigEndian.PutUint64(height, blockData.Header.Height)
		return txn.Set([]byte(prefixHash+blockData.Hash), height)
	})
}

// GetBlock reads the block stored at the specified height.
func (d *Disk) GetBlock(height uint64) (database.BlockData, error) {
	var blockData database.BlockData
	err := d.db.View(func(txn *badger.Txn) error {
		return readJSON(txn, blockKey(height), &blockData)
	})
	if err != nil {
		return database.BlockData{}, err
	}
	return blockData, nil
}

// GetBlockByHash reads the block with the specified hash.
func (d *Disk) GetBlockByHash(hash string) (database.BlockData, error) {
	var blockData database.BlockData
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixHash + hash))
		if err != nil {
			return err
		}
		heightData, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return readJSON(txn, blockKey(binary.BigEndian.Uint64(heightData)), &blockData)
	})
	if err != nil {
		return database.BlockData{}, err
	}
	return blockData, nil
}

// ForEach returns an iterator that walks the stored blocks from height 1.
func (d *Disk) ForEach() database.Iterator {
	return &diskIterator{disk: d, height: 1}
}

// WriteAccounts persists the specified account states.
func (d *Disk) WriteAccounts(accounts map[database.AccountID]database.Account) error {
	return d.db.Update(func(txn *badger.Txn) error {
		for id, account := range accounts {
			data, err := json.Marshal(account)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(prefixAccount+id), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteContract persists a contract's code and full storage.
func (d *Disk) WriteContract(id database.AccountID, code []byte, storage map[string]uint64) error {
	data, err := json.Marshal(storage)
	if err != nil {
		return err
	}

	return d.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(prefixCode+id), code); err != nil {
			return err
		}
		return txn.Set([]byte(prefixStorage+id), data)
	})
}

// WriteReceipts persists the receipts produced by one block.
func (d *Disk) WriteReceipts(receipts []database.Receipt) error {
	return d.db.Update(func(txn *badger.Txn) error {
		for _, receipt := range receipts {
			data, err := json.Marshal(receipt)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(prefixReceipt+receipt.TxHash), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteMempool persists the pending transactions for reload after restart.
func (d *Disk) WriteMempool(txs []database.BlockTx) error {
	data, err := json.Marshal(txs)
	if err != nil {
		return err
	}

	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyMempool), data)
	})
}

// ReadMempool returns the pending transactions saved on the last shutdown.
func (d *Disk) ReadMempool() ([]database.BlockTx, error) {
	var txs []database.BlockTx
	err := d.db.View(func(txn *badger.Txn) error {
		return readJSON(txn, []byte(keyMempool), &txs)
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return txs, nil
}

// WriteSnapshot persists a full account set keyed by block height.
func (d *Disk) WriteSnapshot(height uint64, accounts map[database.AccountID]database.Account) error {
	data, err := json.Marshal(accounts)
	if err != nil {
		return err
	}

	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(append([]byte(prefixSnapshot), heightBytes(height)...), data)
	})
}

// =============================================================================

// diskIterator walks the blocks by increasing height.
type diskIterator struct {
	disk   *Disk
	height uint64
	eoc    bool
}

// Next retrieves the next block in chain order.
func (di *diskIterator) Next() (database.BlockData, error) {
	if di.eoc {
		return database.BlockData{}, errors.New("end of chain")
	}

	blockData, err := di.disk.GetBlock(di.height)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			di.eoc = true
			return database.BlockData{}, nil
		}
		return database.BlockData{}, err
	}

	di.height++
	return blockData, nil
}

// Done returns true when the chain has been fully read.
func (di *diskIterator) Done() bool {
	return di.eoc
}

// =============================================================================

func blockKey(height uint64) []byte {
	return append([]byte(prefixBlock), heightBytes(height)...)
}

func heightBytes(height uint64) []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, height)
	return data
}

func readJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}