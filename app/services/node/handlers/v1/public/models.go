package public

import (
	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Balances are represented as decimal strings so clients never lose
// precision parsing them as floats.

type actInfo struct {
	LatestBlock string `json:"latest_block"`
	Uncommitted int    `json:"uncommitted"`
	Accounts    []info `json:"accounts"`
}

type info struct {
	Account    database.AccountID `json:"account"`
	Name       string             `json:"name"`
	Balance    string             `json:"balance"`
	Nonce      uint64             `json:"nonce"`
	Reputation int64              `json:"reputation"`
	IsContract bool               `json:"is_contract,omitempty"`
}

type tx struct {
	Type      database.TxType    `json:"type"`
	From      database.AccountID `json:"from"`
	FromName  string             `json:"from_name"`
	To        database.AccountID `json:"to,omitempty"`
	ToName    string             `json:"to_name,omitempty"`
	Nonce     uint64             `json:"nonce"`
	Value     string             `json:"value"`
	GasPrice  string             `json:"gas_price"`
	GasLimit  uint64             `json:"gas_limit"`
	GasUnits  uint64             `json:"gas_units"`
	Data      hexutil.Bytes      `json:"data,omitempty"`
	TimeStamp uint64             `json:"timestamp"`
	Sig       string             `json:"sig"`
}

type block struct {
	Hash          string             `json:"hash"`
	PrevBlockHash string             `json:"prev_block_hash"`
	Height        uint64             `json:"height"`
	Proposer      database.AccountID `json:"proposer"`
	ProposerName  string             `json:"proposer_name"`
	GasUsed       uint64             `json:"gas_used"`
	GasLimit      uint64             `json:"gas_limit"`
	BaseFee       uint64             `json:"base_fee"`
	TimeStamp     uint64             `json:"timestamp"`
	TransRoot     string             `json:"trans_root"`
	Transactions  []tx               `json:"transactions"`
}

type supply struct {
	TotalSupply string `json:"total_supply"`
	Height      uint64 `json:"height"`
}