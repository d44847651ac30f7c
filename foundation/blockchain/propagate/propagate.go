// Package propagate implements the block propagation channel between the
// proposer and its replicas: a websocket hub on the proposer side and a
// reconnecting client on the replica side.
package propagate

import (
	"encoding/json"
	"fmt"

	"github.com/agorachain/agora/foundation/blockchain/database"
)

// Set of frame types carried over the propagation channel.
const (
	TypeBlock       = "block"
	TypeTransaction = "transaction"
	TypeAck         = "ack"
)

// Message is the frame every payload travels in.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// newBlockMessage wraps block data into a frame.
func newBlockMessage(blockData database.BlockData) (Message, error) {
	data, err := json.Marshal(blockData)
	if err != nil {
		return Message{}, fmt.Errorf("marshal block: %w", err)
	}
	return Message{Type: TypeBlock, Data: data}, nil
}

// newTxMessage wraps a shared transaction into a frame.
func newTxMessage(tx database.BlockTx) (Message, error) {
	data, err := json.Marshal(tx)
	if err != nil {
		return Message{}, fmt.Errorf("marshal tx: %w", err)
	}
	return Message{Type: TypeTransaction, Data: data}, nil
}
