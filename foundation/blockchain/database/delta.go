package database

import (
	"fmt"
	"math/big"
	"sort"
	"strconv"

	"github.com/agorachain/agora/foundation/blockchain/signature"
)

// StateReader represents read access to a consistent view of accounts and
// contracts. Both the Database and a Delta satisfy it, so execution can be
// layered: a per-transaction delta reads through the per-block delta, which
// reads through the committed database.
type StateReader interface {
	Account(id AccountID) (Account, bool)
	ContractCode(id AccountID) ([]byte, bool)
	ContractStorage(id AccountID, slot string) (uint64, bool)
}

// =============================================================================

// Delta is a copy-on-write overlay over a StateReader. All execution effects
// land in the delta first; dropping the delta discards them without a trace,
// which is how failed transactions avoid partial state mutation.
type Delta struct {
	parent   StateReader
	accounts map[AccountID]Account
	code     map[AccountID][]byte
	storage  map[AccountID]map[string]uint64
}

// NewDelta constructs an empty overlay over the parent view.
func NewDelta(parent StateReader) *Delta {
	return &Delta{
		parent:   parent,
		accounts: make(map[AccountID]Account),
		code:     make(map[AccountID][]byte),
		storage:  make(map[AccountID]map[string]uint64),
	}
}

// Account returns the account from the overlay, falling back to the parent.
func (d *Delta) Account(id AccountID) (Account, bool) {
	if account, exists := d.accounts[id]; exists {
		return account.Clone(), true
	}
	return d.parent.Account(id)
}

// ContractCode returns contract code from the overlay or the parent.
func (d *Delta) ContractCode(id AccountID) ([]byte, bool) {
	if code, exists := d.code[id]; exists {
		return code, true
	}
	return d.parent.ContractCode(id)
}

// ContractStorage returns one storage slot from the overlay or the parent.
func (d *Delta) ContractStorage(id AccountID, slot string) (uint64, bool) {
	if slots, exists := d.storage[id]; exists {
		if value, exists := slots[slot]; exists {
			return value, true
		}
	}
	return d.parent.ContractStorage(id, slot)
}

// =============================================================================

// account loads the account for mutation, creating a zero balance account
// when the sender or recipient doesn't exist yet.
func (d *Delta) account(id AccountID) Account {
	if account, exists := d.Account(id); exists {
		return account
	}
	return newAccount()
}

// SetAccount records the account in the overlay.
func (d *Delta) SetAccount(id AccountID, account Account) {
	d.accounts[id] = account
}

// Credit adds the amount to the account's balance.
func (d *Delta) Credit(id AccountID, amount *big.Int) {
	account := d.account(id)
	account.Balance.Add(account.Balance, amount)
	d.accounts[id] = account
}

// Debit subtracts the amount from the account's balance. The non-negative
// balance invariant is enforced here as the last line of defense.
func (d *Delta) Debit(id AccountID, amount *big.Int) error {
	account := d.account(id)
	if account.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("insufficient funds, bal %s, needed %s", account.Balance, amount)
	}

	account.Balance.Sub(account.Balance, amount)
	d.accounts[id] = account
	return nil
}

// SetNonce records the nonce of the latest accepted transaction.
func (d *Delta) SetNonce(id AccountID, nonce uint64) {
	account := d.account(id)
	account.Nonce = nonce
	d.accounts[id] = account
}

// AddReputation applies a signed reputation change.
func (d *Delta) AddReputation(id AccountID, delta int64) {
	account := d.account(id)
	account.Reputation += delta
	d.accounts[id] = account
}

// SetCode installs contract code on the account and stamps the code hash.
func (d *Delta) SetCode(id AccountID, code []byte) {
	account := d.account(id)
	account.CodeHash = signature.KeccakHash(code)
	d.accounts[id] = account
	d.code[id] = code
}

// StorageGet reads one contract storage slot.
func (d *Delta) StorageGet(id AccountID, slot uint64) uint64 {
	value, _ := d.ContractStorage(id, strconv.FormatUint(slot, 10))
	return value
}

// StorageSet writes one contract storage slot and refreshes the account's
// storage root.
func (d *Delta) StorageSet(id AccountID, slot uint64, value uint64) {
	slots, exists := d.storage[id]
	if !exists {
		slots = make(map[string]uint64)
		d.storage[id] = slots
	}
	slots[strconv.FormatUint(slot, 10)] = value

	account := d.account(id)
	account.StorageRoot = storageRoot(d, id)
	d.accounts[id] = account
}

// HasContract tells whether the account holds contract code.
func (d *Delta) HasContract(id AccountID) bool {
	_, exists := d.ContractCode(id)
	return exists
}

// Fold absorbs the writes of a child delta layered over this one.
func (d *Delta) Fold(child *Delta) {
	for id, account := range child.accounts {
		d.accounts[id] = account
	}
	for id, code := range child.code {
		d.code[id] = code
	}
	for id, slots := range child.storage {
		dst, exists := d.storage[id]
		if !exists {
			dst = make(map[string]uint64)
			d.storage[id] = dst
		}
		for slot, value := range slots {
			dst[slot] = value
		}
	}
}

// =============================================================================

// storageRoot computes a deterministic digest over the visible storage of a
// contract. Only the slots touched through this delta chain are folded in,
// sorted so the digest doesn't depend on map order.
func storageRoot(d *Delta, id AccountID) string {
	slots := make(map[string]uint64)
	collectStorage(d, id, slots)

	keys := make([]string, 0, len(slots))
	for key := range slots {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var data []byte
	for _, key := range keys {
		data = append(data, key...)
		data = strconv.AppendUint(append(data, ':'), slots[key], 10)
		data = append(data, ';')
	}

	return signature.KeccakHash(data)
}

// collectStorage walks the delta chain gathering slot values, nearest
// overlay winning.
func collectStorage(reader StateReader, id AccountID, out map[string]uint64) {
	switch v := reader.(type) {
	case *Delta:
		collectStorage(v.parent, id, out)
		for slot, value := range v.storage[id] {
			out[slot] = value
		}
	case *Database:
		for slot, value := range v.copyContractStorage(id) {
			out[slot] = value
		}
	}
}
