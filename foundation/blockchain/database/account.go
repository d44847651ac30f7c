package database

import (
	"crypto/ecdsa"
	"encoding/binary"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// AccountID represents an account id that is used to sign transactions and
// is associated with transactions on the blockchain. This is the last 20
// bytes of the public key hash, hex encoded with a 0x prefix.
type AccountID string

// ToAccountID converts a hex encoded string to an account and validates the
// hex encoded string is formatted correctly.
func ToAccountID(hex string) (AccountID, error) {
	a := AccountID(hex)
	if !a.IsAccountID() {
		return "", errors.New("invalid account format")
	}

	return a, nil
}

// PublicKeyToAccountID converts a secp256k1 public key to an account id.
func PublicKeyToAccountID(pk ecdsa.PublicKey) AccountID {
	return AccountID(crypto.PubkeyToAddress(pk).String())
}

// IsAccountID verifies whether the underlying data represents a valid hex
// encoded account.
func (a AccountID) IsAccountID() bool {
	const addressLength = 20
	return common.IsHexAddress(string(a)) && len(a) == addressLength*2+2
}

// NewContractID derives the address of a contract created by the sender at
// the specified nonce. Sender and nonce together are unique per chain, so
// the derived address is deterministic across every node.
func NewContractID(sender AccountID, nonce uint64) AccountID {
	data := make([]byte, 0, len(sender)+8)
	data = append(data, sender...)
	data = binary.BigEndian.AppendUint64(data, nonce)

	hash := crypto.Keccak256(data)
	return AccountID(common.BytesToAddress(hash[12:]).String())
}

// =============================================================================

// Account represents the state for an individual account on the chain.
type Account struct {
	Balance     *big.Int `json:"balance"`                // Native token balance, never negative.
	Nonce       uint64   `json:"nonce"`                  // Nonce of the last accepted transaction from this account.
	Reputation  int64    `json:"reputation"`             // Social graph reputation score.
	CodeHash    string   `json:"code_hash,omitempty"`    // Keccak digest of the contract code, empty for plain accounts.
	StorageRoot string   `json:"storage_root,omitempty"` // Digest over the contract storage, empty for plain accounts.
}

// newAccount constructs an account with a zero balance.
func newAccount() Account {
	return Account{Balance: big.NewInt(0)}
}

// Clone makes a deep copy so callers can't mutate the shared balance value.
func (a Account) Clone() Account {
	clone := a
	clone.Balance = new(big.Int)
	if a.Balance != nil {
		clone.Balance.Set(a.Balance)
	}

	return clone
}

// IsContract tells whether the account holds contract code.
func (a Account) IsContract() bool {
	return a.CodeHash != ""
}
