// Package genesis maintains access to the genesis file, which carries the
// chain wide configuration every node must agree on.
package genesis

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"
)

// Genesis represents the genesis file.
type Genesis struct {
	Date          time.Time         `json:"date"`
	ChainID       uint16            `json:"chain_id"`        // Unique id for this running chain instance.
	BlockInterval time.Duration     `json:"block_interval"`  // Target time between blocks produced by the proposer.
	BlockGasLimit uint64            `json:"block_gas_limit"` // Maximum gas the transactions in one block may consume.
	MinGasPrice   uint64            `json:"min_gas_price"`   // Lowest gas price a transaction is admitted with.
	BaseFee       uint64            `json:"base_fee"`        // Current base fee recorded in each block header.
	BlockReward   uint64            `json:"block_reward"`    // Reward credited to the proposer per accepted block.
	EmptyBlocks   bool              `json:"empty_blocks"`    // Produce a block on every interval even without transactions.
	Balances      map[string]string `json:"balances"`        // Initial balances as decimal strings.
}

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// BalanceFor parses the configured starting balance for the specified
// address. A missing address yields a zero balance.
func (g Genesis) BalanceFor(address string) (*big.Int, error) {
	str, exists := g.Balances[address]
	if !exists {
		return big.NewInt(0), nil
	}

	balance, ok := new(big.Int).SetString(str, 10)
	if !ok {
		return nil, fmt.Errorf("genesis balance for %s is not a decimal string: %q", address, str)
	}

	return balance, nil
}
