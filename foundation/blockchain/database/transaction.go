package database

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/agorachain/agora/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TxType tags the variant of a transaction.
type TxType string

// Set of transaction types accepted by the chain.
const (
	TxTransfer   TxType = "transfer"
	TxPost       TxType = "post"
	TxReputation TxType = "reputation"
	TxDeploy     TxType = "deploy"
	TxCall       TxType = "call"
)

// IsValid tells whether the type tag is a member of the supported set.
func (t TxType) IsValid() bool {
	switch t {
	case TxTransfer, TxPost, TxReputation, TxDeploy, TxCall:
		return true
	}
	return false
}

// =============================================================================

// Tx is the transactional information submitted by a client. The common
// fields are always present; the remaining fields depend on the type tag.
type Tx struct {
	Type     TxType        `json:"type"`
	ChainID  uint16        `json:"chain_id"`
	FromID   AccountID     `json:"from"`
	Nonce    uint64        `json:"nonce"`
	GasLimit uint64        `json:"gas_limit"`
	GasPrice *big.Int      `json:"gas_price"`
	ToID     AccountID     `json:"to,omitempty"`    // Transfer recipient, call target, or reputation target.
	Value    *big.Int      `json:"value,omitempty"` // Token amount moved by transfer, deploy, call.
	Data     hexutil.Bytes `json:"data,omitempty"`  // Init bytecode for deploy, call data for call.

	// Post fields.
	ContentID   string `json:"content_id,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
	ContentRef  string `json:"content_ref,omitempty"` // Optional off-chain pointer.

	// Reputation fields.
	Delta  int64  `json:"delta,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Sign produces a signed transaction envelope using the specified key. The
// sender field must match the address the key derives to.
func (tx Tx) Sign(key signature.Key) (SignedTx, error) {
	addr, err := signature.DeriveAddress(key.Scheme(), key.PublicKey())
	if err != nil {
		return SignedTx{}, err
	}
	if string(tx.FromID) != addr {
		return SignedTx{}, fmt.Errorf("from %s does not match signing key address %s", tx.FromID, addr)
	}

	sig, err := key.Sign(tx)
	if err != nil {
		return SignedTx{}, err
	}

	signedTx := SignedTx{
		Tx:        tx,
		Scheme:    key.Scheme(),
		PublicKey: key.PublicKey(),
		Sig:       sig,
	}

	return signedTx, nil
}

// =============================================================================

// SignedTx wraps a transaction with its signature, the signer's public key,
// and the scheme that produced the signature. This is how clients like a
// wallet provide transactions for inclusion into the blockchain.
type SignedTx struct {
	Tx
	Scheme    signature.Scheme `json:"scheme"`
	PublicKey hexutil.Bytes    `json:"public_key"`
	Sig       hexutil.Bytes    `json:"sig"`
}

// Validate verifies the envelope carries a proper signature for the claimed
// scheme and that the sender address matches the public key.
func (tx SignedTx) Validate(chainID uint16) error {
	if !tx.Scheme.IsValid() {
		return signature.NewCryptoError("unknown signature scheme %q", tx.Scheme)
	}

	if tx.ChainID != chainID {
		return fmt.Errorf("wrong chain id, got %d, exp %d", tx.ChainID, chainID)
	}

	if !tx.FromID.IsAccountID() {
		return errors.New("invalid account for from account")
	}

	addr, err := signature.DeriveAddress(tx.Scheme, tx.PublicKey)
	if err != nil {
		return err
	}
	if string(tx.FromID) != addr {
		return fmt.Errorf("from %s does not match public key address %s", tx.FromID, addr)
	}

	return signature.Verify(tx.Scheme, tx.Tx, tx.Sig, tx.PublicKey)
}

// Hash returns the content addressed hash of the whole envelope. This is the
// canonical transaction identity used for receipts and deduplication.
func (tx SignedTx) Hash() string {
	return signature.Hash(tx)
}

// SignatureString returns the signature as a hex string.
func (tx SignedTx) SignatureString() string {
	return signature.SignatureString(tx.Sig)
}

// String implements the fmt.Stringer interface for logging.
func (tx SignedTx) String() string {
	return fmt.Sprintf("%s:%d", tx.FromID, tx.Nonce)
}

// =============================================================================

// BlockTx represents the transaction as it is recorded inside a block. It
// adds the arrival timestamp and the intrinsic gas computed at validation.
type BlockTx struct {
	SignedTx
	TimeStamp uint64 `json:"timestamp"` // When the transaction was received, unix nanoseconds.
	GasUnits  uint64 `json:"gas_units"` // Intrinsic gas required before any contract execution.
}

// NewBlockTx constructs a block transaction.
func NewBlockTx(signedTx SignedTx, gasUnits uint64) BlockTx {
	return BlockTx{
		SignedTx:  signedTx,
		TimeStamp: uint64(time.Now().UTC().UnixNano()),
		GasUnits:  gasUnits,
	}
}

// Hash implements the merkle Hashable interface. Only the signed envelope is
// hashed so the proposer and every replica agree on the digest regardless of
// local arrival times.
func (tx BlockTx) Hash() ([]byte, error) {
	str := tx.SignedTx.Hash()
	return hex.DecodeString(str[2:])
}

// Equals implements the merkle Hashable interface. Two transactions with the
// same envelope hash are the same transaction.
func (tx BlockTx) Equals(otherTx BlockTx) bool {
	return tx.SignedTx.Hash() == otherTx.SignedTx.Hash()
}

// =============================================================================
// Wire encoding. The big integer amounts travel as decimal strings so
// clients outside Go never round them through a float. The same encoding
// feeds the signing digest, so it must stay deterministic.

// txJSON mirrors Tx on the wire.
type txJSON struct {
	Type        TxType        `json:"type"`
	ChainID     uint16        `json:"chain_id"`
	FromID      AccountID     `json:"from"`
	Nonce       uint64        `json:"nonce"`
	GasLimit    uint64        `json:"gas_limit"`
	GasPrice    string        `json:"gas_price"`
	ToID        AccountID     `json:"to,omitempty"`
	Value       string        `json:"value,omitempty"`
	Data        hexutil.Bytes `json:"data,omitempty"`
	ContentID   string        `json:"content_id,omitempty"`
	ContentHash string        `json:"content_hash,omitempty"`
	ContentRef  string        `json:"content_ref,omitempty"`
	Delta       int64         `json:"delta,omitempty"`
	Reason      string        `json:"reason,omitempty"`
}

type signedTxJSON struct {
	txJSON
	Scheme    signature.Scheme `json:"scheme"`
	PublicKey hexutil.Bytes    `json:"public_key"`
	Sig       hexutil.Bytes    `json:"sig"`
}

type blockTxJSON struct {
	signedTxJSON
	TimeStamp uint64 `json:"timestamp"`
	GasUnits  uint64 `json:"gas_units"`
}

func (tx Tx) wire() txJSON {
	return txJSON{
		Type:        tx.Type,
		ChainID:     tx.ChainID,
		FromID:      tx.FromID,
		Nonce:       tx.Nonce,
		GasLimit:    tx.GasLimit,
		GasPrice:    bigToWire(tx.GasPrice),
		ToID:        tx.ToID,
		Value:       bigToWire(tx.Value),
		Data:        tx.Data,
		ContentID:   tx.ContentID,
		ContentHash: tx.ContentHash,
		ContentRef:  tx.ContentRef,
		Delta:       tx.Delta,
		Reason:      tx.Reason,
	}
}

func (w txJSON) tx() (Tx, error) {
	gasPrice, err := wireToBig(w.GasPrice)
	if err != nil {
		return Tx{}, fmt.Errorf("gas price: %w", err)
	}
	value, err := wireToBig(w.Value)
	if err != nil {
		return Tx{}, fmt.Errorf("value: %w", err)
	}

	return Tx{
		Type:        w.Type,
		ChainID:     w.ChainID,
		FromID:      w.FromID,
		Nonce:       w.Nonce,
		GasLimit:    w.GasLimit,
		GasPrice:    gasPrice,
		ToID:        w.ToID,
		Value:       value,
		Data:        w.Data,
		ContentID:   w.ContentID,
		ContentHash: w.ContentHash,
		ContentRef:  w.ContentRef,
		Delta:       w.Delta,
		Reason:      w.Reason,
	}, nil
}

// MarshalJSON implements the json.Marshaler interface.
func (tx Tx) MarshalJSON() ([]byte, error) {
	return json.Marshal(tx.wire())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (tx *Tx) UnmarshalJSON(data []byte) error {
	var w txJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	t, err := w.tx()
	if err != nil {
		return err
	}

	*tx = t
	return nil
}

// MarshalJSON implements the json.Marshaler interface.
func (tx SignedTx) MarshalJSON() ([]byte, error) {
	return json.Marshal(signedTxJSON{
		txJSON:    tx.Tx.wire(),
		Scheme:    tx.Scheme,
		PublicKey: tx.PublicKey,
		Sig:       tx.Sig,
	})
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (tx *SignedTx) UnmarshalJSON(data []byte) error {
	var w signedTxJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	t, err := w.txJSON.tx()
	if err != nil {
		return err
	}

	*tx = SignedTx{
		Tx:        t,
		Scheme:    w.Scheme,
		PublicKey: w.PublicKey,
		Sig:       w.Sig,
	}
	return nil
}

// MarshalJSON implements the json.Marshaler interface.
func (tx BlockTx) MarshalJSON() ([]byte, error) {
	return json.Marshal(blockTxJSON{
		signedTxJSON: signedTxJSON{
			txJSON:    tx.Tx.wire(),
			Scheme:    tx.Scheme,
			PublicKey: tx.PublicKey,
			Sig:       tx.Sig,
		},
		TimeStamp: tx.TimeStamp,
		GasUnits:  tx.GasUnits,
	})
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (tx *BlockTx) UnmarshalJSON(data []byte) error {
	var w blockTxJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	t, err := w.txJSON.tx()
	if err != nil {
		return err
	}

	*tx = BlockTx{
		SignedTx: SignedTx{
			Tx:        t,
			Scheme:    w.Scheme,
			PublicKey: w.PublicKey,
			Sig:       w.Sig,
		},
		TimeStamp: w.TimeStamp,
		GasUnits:  w.GasUnits,
	}
	return nil
}

func bigToWire(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func wireToBig(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}

	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", s)
	}
	return v, nil
}
