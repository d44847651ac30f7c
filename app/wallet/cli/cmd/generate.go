package cmd

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var scheme string

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new key pair",
	Run:   generateRun,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVarP(&scheme, "scheme", "s", "secp256k1", "Signature scheme: secp256k1 or ed25519.")
}

func generateRun(cmd *cobra.Command, args []string) {
	switch scheme {
	case "secp256k1":
		privateKey, err := crypto.GenerateKey()
		if err != nil {
			log.Fatal(err)
		}
		if err := crypto.SaveECDSA(filepath.Join(accountPath, accountName+extECDSA), privateKey); err != nil {
			log.Fatal(err)
		}

	case "ed25519":
		seed := make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			log.Fatal(err)
		}
		path := filepath.Join(accountPath, accountName+extEd25519)
		if err := os.WriteFile(path, []byte(hex.EncodeToString(seed)), 0600); err != nil {
			log.Fatal(err)
		}

	default:
		log.Fatalf("unknown scheme %q", scheme)
	}
}