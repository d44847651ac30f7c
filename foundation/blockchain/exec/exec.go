// Package exec implements the state transition for every transaction type.
// The engine applies one transaction at a time against a copy-on-write
// delta, runs contract bytecode through the vm package when needed, and
// produces exactly one immutable receipt per execution.
package exec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/genesis"
	"github.com/agorachain/agora/foundation/blockchain/vm"
)

// Engine executes transactions against a state delta. It holds no mutable
// state of its own, so one engine can serve every block.
type Engine struct {
	genesis genesis.Genesis
}

// New constructs an execution engine for the chain configuration.
func New(gen genesis.Genesis) *Engine {
	return &Engine{
		genesis: gen,
	}
}

// Apply executes the transaction against the block delta. Side effects land
// in the delta only as a whole: a transaction that fails mid-way leaves no
// partial mutation behind. The returned error is reserved for transactions
// that cannot even pay their way; those must never have been admitted, and
// the caller drops them from the block instead of recording a receipt.
func (e *Engine) Apply(block *database.Delta, tx database.BlockTx, height uint64, proposer database.AccountID) (database.Receipt, error) {
	sender, _ := block.Account(tx.FromID)
	if tx.Nonce != sender.Nonce+1 {
		return database.Receipt{}, fmt.Errorf("tx %s nonce %d out of sequence, next %d", tx.FromID, tx.Nonce, sender.Nonce+1)
	}

	receipt := database.Receipt{
		TxHash:      tx.SignedTx.Hash(),
		BlockHeight: height,
	}

	switch tx.Type {
	case database.TxTransfer:
		return e.applyTransfer(block, tx, receipt, proposer)

	case database.TxPost, database.TxReputation:
		return e.applySocial(block, tx, receipt, proposer)

	case database.TxDeploy:
		return e.applyDeploy(block, tx, receipt, proposer)

	case database.TxCall:
		return e.applyCall(block, tx, receipt, proposer)
	}

	return database.Receipt{}, fmt.Errorf("unknown transaction type %q", tx.Type)
}

// ApplyReward credits the configured block reward to the proposer. It runs
// once per block after every transaction has been applied.
func (e *Engine) ApplyReward(block *database.Delta, proposer database.AccountID) {
	block.Credit(proposer, new(big.Int).SetUint64(e.genesis.BlockReward))
}

// =============================================================================

// applyTransfer moves value from the sender to the recipient and pays the
// fee to the proposer. The debit is taken as one sum so the balance check
// covers amount and fee together.
func (e *Engine) applyTransfer(block *database.Delta, tx database.BlockTx, receipt database.Receipt, proposer database.AccountID) (database.Receipt, error) {
	delta := database.NewDelta(block)
	fee := feeFor(tx.GasUnits, tx.GasPrice)

	total := new(big.Int).Add(value(tx), fee)
	if err := delta.Debit(tx.FromID, total); err != nil {
		return database.Receipt{}, fmt.Errorf("transfer from %s: %w", tx.FromID, err)
	}

	delta.Credit(tx.ToID, value(tx))
	delta.Credit(proposer, fee)
	delta.SetNonce(tx.FromID, tx.Nonce)
	block.Fold(delta)

	receipt.Success = true
	receipt.GasUsed = tx.GasUnits
	return receipt, nil
}

// applySocial handles post and reputation transactions. Neither moves value
// beyond the fee; the social effect is the content anchored in the chain and
// the reputation counter on the target account.
func (e *Engine) applySocial(block *database.Delta, tx database.BlockTx, receipt database.Receipt, proposer database.AccountID) (database.Receipt, error) {
	delta := database.NewDelta(block)
	fee := feeFor(tx.GasUnits, tx.GasPrice)

	if err := delta.Debit(tx.FromID, fee); err != nil {
		return database.Receipt{}, fmt.Errorf("%s from %s: %w", tx.Type, tx.FromID, err)
	}
	delta.Credit(proposer, fee)
	delta.SetNonce(tx.FromID, tx.Nonce)

	if tx.Type == database.TxReputation {
		delta.AddReputation(tx.ToID, tx.Delta)
	}
	block.Fold(delta)

	receipt.Success = true
	receipt.GasUsed = tx.GasUnits
	return receipt, nil
}

// applyDeploy derives the contract address from sender and nonce, runs the
// init bytecode, and installs the returned runtime code. A failed init still
// charges the gas it consumed but installs nothing.
func (e *Engine) applyDeploy(block *database.Delta, tx database.BlockTx, receipt database.Receipt, proposer database.AccountID) (database.Receipt, error) {
	contractID := database.NewContractID(tx.FromID, tx.Nonce)

	run := database.NewDelta(block)
	result := vm.Run(tx.Data, vm.Context{
		Caller:   addressWord(tx.FromID),
		Value:    valueWord(tx),
		GasLimit: tx.GasLimit - tx.GasUnits,
	}, contractStore{delta: run, id: contractID})

	gasUsed := tx.GasUnits + result.GasUsed
	fee := feeFor(gasUsed, tx.GasPrice)

	delta := database.NewDelta(block)
	if result.Err != nil {
		if err := chargeFailed(delta, tx, fee, proposer); err != nil {
			return database.Receipt{}, err
		}
		block.Fold(delta)

		receipt.GasUsed = gasUsed
		receipt.Err = result.Err.Error()
		return receipt, nil
	}

	// Fold the contract effects first so the credits below are not lost to
	// account entries the run recorded.
	delta.Fold(run)

	total := new(big.Int).Add(value(tx), fee)
	if err := delta.Debit(tx.FromID, total); err != nil {
		return database.Receipt{}, fmt.Errorf("deploy from %s: %w", tx.FromID, err)
	}
	delta.Credit(contractID, value(tx))
	delta.Credit(proposer, fee)
	delta.SetNonce(tx.FromID, tx.Nonce)
	delta.SetCode(contractID, result.Ret)
	block.Fold(delta)

	receipt.Success = true
	receipt.GasUsed = gasUsed
	receipt.ContractID = contractID
	receipt.Events = contractEvents(contractID, result.Events)
	return receipt, nil
}

// applyCall loads the target's code, executes it with the call data, and
// applies storage writes and events only when execution completes. A revert
// discards every contract effect but still charges the gas consumed.
func (e *Engine) applyCall(block *database.Delta, tx database.BlockTx, receipt database.Receipt, proposer database.AccountID) (database.Receipt, error) {
	code, exists := block.ContractCode(tx.ToID)
	if !exists {
		return database.Receipt{}, fmt.Errorf("call target %s holds no code", tx.ToID)
	}

	run := database.NewDelta(block)
	result := vm.Run(code, vm.Context{
		Caller:   addressWord(tx.FromID),
		Value:    valueWord(tx),
		Input:    tx.Data,
		GasLimit: tx.GasLimit - tx.GasUnits,
	}, contractStore{delta: run, id: tx.ToID})

	gasUsed := tx.GasUnits + result.GasUsed
	fee := feeFor(gasUsed, tx.GasPrice)

	delta := database.NewDelta(block)
	if result.Err != nil {
		if err := chargeFailed(delta, tx, fee, proposer); err != nil {
			return database.Receipt{}, err
		}
		block.Fold(delta)

		receipt.GasUsed = gasUsed
		receipt.Err = result.Err.Error()
		return receipt, nil
	}

	delta.Fold(run)

	total := new(big.Int).Add(value(tx), fee)
	if err := delta.Debit(tx.FromID, total); err != nil {
		return database.Receipt{}, fmt.Errorf("call from %s: %w", tx.FromID, err)
	}
	delta.Credit(tx.ToID, value(tx))
	delta.Credit(proposer, fee)
	delta.SetNonce(tx.FromID, tx.Nonce)
	block.Fold(delta)

	receipt.Success = true
	receipt.GasUsed = gasUsed
	receipt.ReturnData = result.Ret
	receipt.Events = contractEvents(tx.ToID, result.Events)
	return receipt, nil
}

// =============================================================================

// chargeFailed collects the fee and bumps the nonce for a transaction whose
// contract execution failed. The nonce still advances so the sender's later
// transactions remain valid.
func chargeFailed(delta *database.Delta, tx database.BlockTx, fee *big.Int, proposer database.AccountID) error {
	if err := delta.Debit(tx.FromID, fee); err != nil {
		return fmt.Errorf("fee from %s: %w", tx.FromID, err)
	}
	delta.Credit(proposer, fee)
	delta.SetNonce(tx.FromID, tx.Nonce)
	return nil
}

// contractStore adapts a state delta to the vm storage interface, pinning
// every slot access to one contract account.
type contractStore struct {
	delta *database.Delta
	id    database.AccountID
}

func (cs contractStore) Get(slot uint64) uint64 {
	return cs.delta.StorageGet(cs.id, slot)
}

func (cs contractStore) Set(slot uint64, v uint64) {
	cs.delta.StorageSet(cs.id, slot, v)
}

// =============================================================================

func feeFor(gasUsed uint64, gasPrice *big.Int) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), gasPrice)
}

func value(tx database.BlockTx) *big.Int {
	if tx.Value == nil {
		return big.NewInt(0)
	}
	return tx.Value
}

// valueWord condenses the token amount into the machine word the CALLVALUE
// instruction exposes. Amounts past the word range saturate.
func valueWord(tx database.BlockTx) uint64 {
	v := value(tx)
	if !v.IsUint64() {
		return ^uint64(0)
	}
	return v.Uint64()
}

// addressWord condenses an account address into a machine word for the
// CALLER instruction.
func addressWord(id database.AccountID) uint64 {
	raw, err := hex.DecodeString(string(id)[2:])
	if err != nil || len(raw) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw[:8])
}

func contractEvents(id database.AccountID, events []vm.Event) []database.Event {
	if len(events) == 0 {
		return nil
	}

	out := make([]database.Event, len(events))
	for i, ev := range events {
		out[i] = database.Event{Contract: id, Data: ev.Data}
	}
	return out
}
