package cmd

import (
	"fmt"
	"log"

	"github.com/agorachain/agora/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Print the account address for this wallet",
	Run:   accountRun,
}

func init() {
	rootCmd.AddCommand(accountCmd)
}

func accountRun(cmd *cobra.Command, args []string) {
	key, err := loadKey()
	if err != nil {
		log.Fatal(err)
	}

	addr, err := signature.DeriveAddress(key.Scheme(), key.PublicKey())
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(addr)
}