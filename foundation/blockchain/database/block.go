package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/agorachain/agora/foundation/blockchain/merkle"
	"github.com/agorachain/agora/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrStaleBlock is returned when a received block is at or below the local
// head height. Re-applying it would double credit balances, so it is a no-op.
var ErrStaleBlock = errors.New("block height at or below local head")

// ErrOutOfSync is returned when a received block is more than one height
// ahead of the local head.
var ErrOutOfSync = errors.New("block height ahead of local head, resync required")

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Height        uint64    `json:"height"`
	PrevBlockHash string    `json:"prev_block_hash"`
	TimeStamp     uint64    `json:"timestamp"`
	TransRoot     string    `json:"trans_root"` // Merkle root over the ordered transactions.
	ProposerID    AccountID `json:"proposer"`
	GasUsed       uint64    `json:"gas_used"`
	GasLimit      uint64    `json:"gas_limit"`
	BaseFee       uint64    `json:"base_fee"`
}

// Block represents a group of transactions ordered and signed by the
// proposer.
type Block struct {
	Header BlockHeader
	Trans  *merkle.Tree[BlockTx]
	Sig    []byte
}

// NewBlock assembles an unsigned block from the executed transactions.
func NewBlock(prev Block, proposerID AccountID, gasUsed uint64, gasLimit uint64, baseFee uint64, txs []BlockTx) (Block, error) {
	prevBlockHash := signature.ZeroHash
	if prev.Header.Height > 0 {
		prevBlockHash = prev.Hash()
	}

	var transRoot string
	var tree *merkle.Tree[BlockTx]
	if len(txs) > 0 {
		var err error
		tree, err = merkle.NewTree(txs)
		if err != nil {
			return Block{}, err
		}
		transRoot = tree.RootHex()
	}

	block := Block{
		Header: BlockHeader{
			Height:        prev.Header.Height + 1,
			PrevBlockHash: prevBlockHash,
			TimeStamp:     uint64(time.Now().UTC().Unix()),
			TransRoot:     transRoot,
			ProposerID:    proposerID,
			GasUsed:       gasUsed,
			GasLimit:      gasLimit,
			BaseFee:       baseFee,
		},
		Trans: tree,
	}

	return block, nil
}

// Sign signs the block header with the proposer's key.
func (b *Block) Sign(key signature.Key) error {
	sig, err := key.Sign(b.Header)
	if err != nil {
		return err
	}

	b.Sig = sig
	return nil
}

// Hash returns the unique hash for the block. Only the header is hashed so
// the chain can be audited from headers alone.
func (b Block) Hash() string {
	if b.Header.Height == 0 {
		return signature.ZeroHash
	}

	return signature.Hash(b.Header)
}

// Transactions returns the ordered transactions, which may be empty.
func (b Block) Transactions() []BlockTx {
	if b.Trans == nil {
		return nil
	}
	return b.Trans.Values()
}

// ValidateBlock performs the structural checks a replica runs before
// re-executing the transactions: height, parent hash, timestamp, proposer
// signature, and transaction root consistency.
func (b Block) ValidateBlock(prev Block, proposerScheme signature.Scheme, proposerPub []byte, ev func(v string, args ...any)) error {
	ev("database: ValidateBlock: blk[%d]: check: height is next height", b.Header.Height)

	nextHeight := prev.Header.Height + 1
	if b.Header.Height < nextHeight {
		return ErrStaleBlock
	}
	if b.Header.Height > nextHeight {
		return ErrOutOfSync
	}

	ev("database: ValidateBlock: blk[%d]: check: parent hash matches local head", b.Header.Height)

	if b.Header.PrevBlockHash != prev.Hash() {
		return fmt.Errorf("parent block hash doesn't match local head, got %s, exp %s", b.Header.PrevBlockHash, prev.Hash())
	}

	if prev.Header.TimeStamp > 0 {
		ev("database: ValidateBlock: blk[%d]: check: timestamp advances", b.Header.Height)

		if b.Header.TimeStamp < prev.Header.TimeStamp {
			return fmt.Errorf("block timestamp is before parent, parent %d, block %d", prev.Header.TimeStamp, b.Header.TimeStamp)
		}
	}

	ev("database: ValidateBlock: blk[%d]: check: proposer signature", b.Header.Height)

	if b.Header.ProposerID == "" {
		return errors.New("block has no proposer")
	}
	if err := signature.Verify(proposerScheme, b.Header, b.Sig, proposerPub); err != nil {
		return fmt.Errorf("proposer signature: %w", err)
	}

	ev("database: ValidateBlock: blk[%d]: check: transaction root matches transactions", b.Header.Height)

	switch {
	case b.Trans == nil:
		if b.Header.TransRoot != "" {
			return fmt.Errorf("transaction root claims transactions but block has none")
		}
	default:
		if b.Header.TransRoot != b.Trans.RootHex() {
			return fmt.Errorf("transaction root does not match transactions, got %s, exp %s", b.Trans.RootHex(), b.Header.TransRoot)
		}
	}

	return nil
}

// =============================================================================

// BlockData represents what is serialized over the propagation channel and
// into the block store.
type BlockData struct {
	Hash   string        `json:"hash"`
	Header BlockHeader   `json:"header"`
	Trans  []BlockTx     `json:"trans"`
	Sig    hexutil.Bytes `json:"sig"`
}

// NewBlockData constructs the value to serialize.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:   block.Hash(),
		Header: block.Header,
		Trans:  block.Transactions(),
		Sig:    block.Sig,
	}
}

// ToBlock converts serialized block data back into a block, rebuilding the
// merkle tree for the set of transactions.
func ToBlock(blockData BlockData) (Block, error) {
	var tree *merkle.Tree[BlockTx]
	if len(blockData.Trans) > 0 {
		var err error
		tree, err = merkle.NewTree(blockData.Trans)
		if err != nil {
			return Block{}, err
		}
	}

	block := Block{
		Header: blockData.Header,
		Trans:  tree,
		Sig:    blockData.Sig,
	}

	return block, nil
}
