package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/agorachain/agora/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

type account struct {
	Account    string `json:"account"`
	Name       string `json:"name"`
	Balance    string `json:"balance"`
	Nonce      uint64 `json:"nonce"`
	Reputation int64  `json:"reputation"`
}

type accounts struct {
	LatestBlock string    `json:"latest_block"`
	Uncommitted int       `json:"uncommitted"`
	Accounts    []account `json:"accounts"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the balance for this wallet",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
	balanceCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
}

func balanceRun(cmd *cobra.Command, args []string) {
	key, err := loadKey()
	if err != nil {
		log.Fatal(err)
	}

	addr, err := signature.DeriveAddress(key.Scheme(), key.PublicKey())
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("For Account:", addr)

	resp, err := http.Get(fmt.Sprintf("%s/v1/accounts/list/%s", url, addr))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var accts accounts
	if err := json.NewDecoder(resp.Body).Decode(&accts); err != nil {
		log.Fatal(err)
	}

	if len(accts.Accounts) > 0 {
		fmt.Println(accts.Accounts[0].Balance)
	}
}