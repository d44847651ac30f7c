// Package validate implements the admission pipeline every transaction runs
// through before it can enter the mempool: structural checks, gas pricing,
// gas cost, account state, and type specific rules. Validation reads a
// consistent state snapshot and never mutates anything.
package validate

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/genesis"
)

// Gas cost schedule for intrinsic transaction gas.
const (
	TxBase         = 21000 // Charged for every transaction.
	ZeroByteGas    = 4     // Per zero payload byte.
	NonZeroByteGas = 16    // Per non-zero payload byte.
	PostGas        = 20000 // Fixed cost of a post transaction.
	ReputationGas  = 15000 // Fixed cost of a reputation-delta transaction.
)

// Set of validation failures. Each maps to one stage of the pipeline so a
// client can tell a malformed transaction from a mistimed one.
var (
	ErrGasPriceTooLow    = errors.New("gas price below chain minimum")
	ErrOutOfGas          = errors.New("gas limit below required gas")
	ErrNonceTooLow       = errors.New("nonce already used")
	ErrNonceTooHigh      = errors.New("nonce gap, transaction out of order")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotContract       = errors.New("call target is not a contract")
)

// Result carries what the pipeline computed on success.
type Result struct {
	RequiredGas uint64   // Intrinsic gas the transaction needs.
	Fee         *big.Int // Maximum fee at the transaction's gas limit.
}

// =============================================================================

// Transaction runs the full validation pipeline against the state view,
// short-circuiting on the first failure.
func Transaction(tx database.SignedTx, gen genesis.Genesis, view database.StateReader) (Result, error) {
	if err := structural(tx, gen); err != nil {
		return Result{}, err
	}

	if tx.GasPrice.Cmp(new(big.Int).SetUint64(gen.MinGasPrice)) < 0 {
		return Result{}, fmt.Errorf("%w: got %s, min %d", ErrGasPriceTooLow, tx.GasPrice, gen.MinGasPrice)
	}

	requiredGas := RequiredGas(tx.Tx)
	if requiredGas > tx.GasLimit {
		return Result{}, fmt.Errorf("%w: required %d, limit %d", ErrOutOfGas, requiredGas, tx.GasLimit)
	}
	if tx.GasLimit > gen.BlockGasLimit {
		return Result{}, fmt.Errorf("%w: limit %d exceeds block gas limit %d", ErrOutOfGas, tx.GasLimit, gen.BlockGasLimit)
	}

	if err := account(tx, view); err != nil {
		return Result{}, err
	}

	if err := typeSpecific(tx, view); err != nil {
		return Result{}, err
	}

	fee := new(big.Int).Mul(new(big.Int).SetUint64(tx.GasLimit), tx.GasPrice)

	return Result{RequiredGas: requiredGas, Fee: fee}, nil
}

// RequiredGas computes the intrinsic gas: the base cost, the payload byte
// cost, and the fixed type cost. Deploy and call pay for execution
// incrementally inside the interpreter, so their type cost here is zero.
func RequiredGas(tx database.Tx) uint64 {
	gas := uint64(TxBase)

	for _, b := range tx.Data {
		if b == 0 {
			gas += ZeroByteGas
		} else {
			gas += NonZeroByteGas
		}
	}

	switch tx.Type {
	case database.TxPost:
		gas += PostGas
	case database.TxReputation:
		gas += ReputationGas
	}

	return gas
}

// =============================================================================

// structural verifies required fields are present and well formed before any
// state is read.
func structural(tx database.SignedTx, gen genesis.Genesis) error {
	if !tx.Type.IsValid() {
		return fmt.Errorf("unknown transaction type %q", tx.Type)
	}

	if tx.GasPrice == nil {
		return errors.New("gas price is required")
	}
	if tx.GasPrice.Sign() < 0 {
		return errors.New("gas price must not be negative")
	}
	if tx.Value != nil && tx.Value.Sign() < 0 {
		return errors.New("amount must not be negative")
	}

	if err := tx.Validate(gen.ChainID); err != nil {
		return err
	}

	switch tx.Type {
	case database.TxTransfer, database.TxCall, database.TxReputation:
		if !tx.ToID.IsAccountID() {
			return fmt.Errorf("invalid to account %q", tx.ToID)
		}
	}

	if tx.Type == database.TxTransfer && tx.FromID == tx.ToID {
		return errors.New("transaction sends money to yourself")
	}

	return nil
}

// account verifies the nonce sequencing and that the balance covers the
// amount plus the worst case fee.
func account(tx database.SignedTx, view database.StateReader) error {
	sender, _ := view.Account(tx.FromID)
	if sender.Balance == nil {
		sender.Balance = big.NewInt(0)
	}

	next := sender.Nonce + 1
	switch {
	case tx.Nonce < next:
		return fmt.Errorf("%w: got %d, next %d", ErrNonceTooLow, tx.Nonce, next)
	case tx.Nonce > next:
		return fmt.Errorf("%w: got %d, next %d", ErrNonceTooHigh, tx.Nonce, next)
	}

	need := new(big.Int).Mul(new(big.Int).SetUint64(RequiredGas(tx.Tx)), tx.GasPrice)
	if tx.Value != nil {
		need.Add(need, tx.Value)
	}

	if sender.Balance.Cmp(need) < 0 {
		return fmt.Errorf("%w: bal %s, needed %s", ErrInsufficientFunds, sender.Balance, need)
	}

	return nil
}

// typeSpecific applies the per-variant rules that need state.
func typeSpecific(tx database.SignedTx, view database.StateReader) error {
	switch tx.Type {
	case database.TxDeploy:
		if len(tx.Data) == 0 {
			return errors.New("deploy requires init bytecode")
		}

	case database.TxCall:
		if _, exists := view.ContractCode(tx.ToID); !exists {
			return fmt.Errorf("%w: %s", ErrNotContract, tx.ToID)
		}

	case database.TxPost:
		if tx.ContentID == "" {
			return errors.New("post requires a content id")
		}
		if tx.ContentHash == "" {
			return errors.New("post requires a content hash")
		}

	case database.TxReputation:
		if tx.Delta == 0 {
			return errors.New("reputation delta must not be zero")
		}
	}

	return nil
}
