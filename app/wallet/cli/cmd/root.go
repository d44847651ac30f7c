// Package cmd contains the wallet app.
package cmd

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agorachain/agora/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	accountName string
	accountPath string
)

const (
	extECDSA   = ".ecdsa"
	extEd25519 = ".ed25519"
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&accountName, "account", "a", "private", "Name of the private key file.")
	rootCmd.PersistentFlags().StringVarP(&accountPath, "account-path", "p", "zblock/accounts/", "Path to the directory with private keys.")
}

var rootCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Simple wallet for the agora chain",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadKey loads the configured private key, trying both schemes unless the
// account name carries an explicit extension.
func loadKey() (signature.Key, error) {
	switch {
	case strings.HasSuffix(accountName, extECDSA):
		return loadECDSAKey(filepath.Join(accountPath, accountName))

	case strings.HasSuffix(accountName, extEd25519):
		return loadEd25519Key(filepath.Join(accountPath, accountName))
	}

	ecdsaPath := filepath.Join(accountPath, accountName+extECDSA)
	if _, err := os.Stat(ecdsaPath); err == nil {
		return loadECDSAKey(ecdsaPath)
	}

	return loadEd25519Key(filepath.Join(accountPath, accountName + extEd25519))
}

func loadECDSAKey(path string) (signature.Key, error) {
	privateKey, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, err
	}
	return signature.NewSecp256k1Key(privateKey), nil
}

func loadEd25519Key(path string) (signature.Key, error) {
	data, err := os.ReadFile(path)
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

	return signature.NewEd25519Key(ed25519.NewKeyFromSeed(seed)), nil
}