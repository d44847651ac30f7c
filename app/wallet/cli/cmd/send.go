package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/signature"
	"github.com/spf13/cobra"
)

var (
	url      string
	txType   string
	chainID  uint16
	nonce    uint64
	to       string
	value    uint64
	gasPrice uint64
	gasLimit uint64
	data     []byte

	contentID   string
	contentHash string
	contentRef  string
	repDelta    int64
	repReason   string
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a signed transaction to the node",
	Run:   sendRun,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	sendCmd.Flags().StringVarP(&txType, "type", "y", string(database.TxTransfer), "Transaction type.")
	sendCmd.Flags().Uint16VarP(&chainID, "chain", "c", 1, "Chain id the transaction is bound to.")
	sendCmd.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Nonce for the transaction.")
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Recipient account.")
	sendCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send.")
	sendCmd.Flags().Uint64VarP(&gasPrice, "gas-price", "g", 1, "Gas price to offer.")
	sendCmd.Flags().Uint64VarP(&gasLimit, "gas-limit", "l", 100_000, "Gas limit for the transaction.")
	sendCmd.Flags().BytesHexVarP(&data, "data", "d", nil, "Payload data as hex.")
	sendCmd.Flags().StringVar(&contentID, "content-id", "", "Content id for a post.")
	sendCmd.Flags().StringVar(&contentHash, "content-hash", "", "Content hash for a post.")
	sendCmd.Flags().StringVar(&contentRef, "content-ref", "", "Off-chain pointer for a post.")
	sendCmd.Flags().Int64Var(&repDelta, "delta", 0, "Reputation delta.")
	sendCmd.Flags().StringVar(&repReason, "reason", "", "Reputation reason.")
}

func sendRun(cmd *cobra.Command, args []string) {
	key, err := loadKey()
	if err != nil {
		log.Fatal(err)
	}

	addr, err := signature.DeriveAddress(key.Scheme(), key.PublicKey())
	if err != nil {
		log.Fatal(err)
	}

	tx := database.Tx{
		Type:     database.TxType(txType),
		ChainID:  chainID,
		FromID:   database.AccountID(addr),
		Nonce:    nonce,
		GasLimit: gasLimit,
		GasPrice: new(big.Int).SetUint64(gasPrice),
		ToID:     database.AccountID(to),
		Value:    new(big.Int).SetUint64(value),
		Data:     data,

		ContentID:   contentID,
		ContentHash: contentHash,
		ContentRef:  contentRef,
		Delta:       repDelta,
		Reason:      repReason,
	}

	signedTx, err := tx.Sign(key)
	if err != nil {
		log.Fatal(err)
	}

	payload, err := json.Marshal(signedTx)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(payload))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	result := struct {
		Status string `json:"status"`
		TxHash string `json:"tx_hash"`
		Error  string `json:"error"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		log.Fatal(err)
	}

	if result.Error != "" {
		log.Fatal(result.Error)
	}
	fmt.Println(result.Status, result.TxHash)
}