package database

import "github.com/ethereum/go-ethereum/common/hexutil"

// Event represents a log entry emitted by contract execution.
type Event struct {
	Contract AccountID     `json:"contract"`
	Data     hexutil.Bytes `json:"data"`
}

// Receipt records the outcome of executing one transaction. It is produced
// exactly once, keyed by the transaction hash, and never mutated after.
type Receipt struct {
	TxHash      string        `json:"tx_hash"`
	BlockHeight uint64        `json:"block_height"`
	Success     bool          `json:"success"`
	GasUsed     uint64        `json:"gas_used"`
	Err         string        `json:"error,omitempty"`
	ReturnData  hexutil.Bytes `json:"return_data,omitempty"`
	Events      []Event       `json:"events,omitempty"`
	ContractID  AccountID     `json:"contract_id,omitempty"` // Set when a deploy created a new contract.
}
