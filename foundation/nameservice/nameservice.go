// Package nameservice reads the zblock/accounts folder and creates a name
// service lookup for well known accounts.
package nameservice

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// NameService maintains a map of accounts for name lookup.
type NameService struct {
	accounts map[database.AccountID]string
}

// New constructs a name service from the key files under the specified
// folder. The file name minus its extension becomes the account name.
func New(root string) (*NameService, error) {
	ns := NameService{
		accounts: make(map[database.AccountID]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		var accountID database.AccountID

		switch path.Ext(fileName) {
		case ".ecdsa":
			privateKey, err := crypto.LoadECDSA(fileName)
			if err != nil {
				return err
			}
			accountID = database.PublicKeyToAccountID(privateKey.PublicKey)

		case ".ed25519":
			seed, err := loadSeed(fileName)
			if err != nil {
				return err
			}
			privateKey := ed25519.NewKeyFromSeed(seed)
			addr, err := signature.DeriveAddress(signature.SchemeEd25519, privateKey.Public().(ed25519.PublicKey))
			if err != nil {
				return err
			}
			accountID = database.AccountID(addr)

		default:
			return nil
		}

		name := strings.TrimSuffix(path.Base(fileName), path.Ext(fileName))
		ns.accounts[accountID] = name

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified account.
func (ns *NameService) Lookup(accountID database.AccountID) string {
	name, exists := ns.accounts[accountID]
	if !exists {
		return string(accountID)
	}
	return name
}

// Copy returns a copy of the map of names and accounts.
func (ns *NameService) Copy() map[database.AccountID]string {
	cpy := make(map[database.AccountID]string, len(ns.accounts))
	for accountID, name := range ns.accounts {
		cpy[accountID] = name
	}
	return cpy
}

// loadSeed reads a hex encoded ed25519 seed from disk.
func loadSeed(fileName string) ([]byte, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, err
	}

	seed, err := hex.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("decoding seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}

	return seed, nil
}