package exec_test

import (
	"encoding/binary"
	"math/big"
	"testing"
	"time"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/exec"
	"github.com/agorachain/agora/foundation/blockchain/genesis"
	"github.com/agorachain/agora/foundation/blockchain/signature"
	"github.com/agorachain/agora/foundation/blockchain/storage/memory"
	"github.com/agorachain/agora/foundation/blockchain/validate"
	"github.com/agorachain/agora/foundation/blockchain/vm"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

type harness struct {
	db       *database.Database
	engine   *exec.Engine
	gen      genesis.Genesis
	key      signature.Key
	sender   database.AccountID
	receiver database.AccountID
	proposer database.AccountID
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	senderECDSA, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould generate a sender key: %v", failed, err)
	}
	receiverECDSA, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould generate a receiver key: %v", failed, err)
	}

	sender := database.PublicKeyToAccountID(senderECDSA.PublicKey)
	receiver := database.PublicKeyToAccountID(receiverECDSA.PublicKey)
	proposer := database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")

	gen := genesis.Genesis{
		Date:          time.Now(),
		ChainID:       1,
		BlockGasLimit: 10_000_000,
		MinGasPrice:   1,
		BlockReward:   700,
		Balances: map[string]string{
			string(sender): "1000000000",
		},
	}

	strg, err := memory.New()
	if err != nil {
		t.Fatalf("\t%s\tShould construct storage: %v", failed, err)
	}

	db, err := database.New(gen, strg)
	if err != nil {
		t.Fatalf("\t%s\tShould open the database: %v", failed, err)
	}

	return &harness{
		db:       db,
		engine:   exec.New(gen),
		gen:      gen,
		key:      signature.NewSecp256k1Key(senderECDSA),
		sender:   sender,
		receiver: receiver,
		proposer: proposer,
	}
}

// sign builds a signed block transaction with the intrinsic gas stamped the
// way the mempool admission path does it.
func (h *harness) sign(t *testing.T, tx database.Tx) database.BlockTx {
	t.Helper()

	signedTx, err := tx.Sign(h.key)
	if err != nil {
		t.Fatalf("\t%s\tShould sign the transaction: %v", failed, err)
	}

	return database.NewBlockTx(signedTx, validate.RequiredGas(tx))
}

func (h *harness) balance(id database.AccountID) *big.Int {
	account, _ := h.db.Account(id)
	if account.Balance == nil {
		return big.NewInt(0)
	}
	return account.Balance
}

// =============================================================================

func Test_Transfer(t *testing.T) {
	t.Log("Given the need to apply a transfer atomically with its fee.")
	{
		h := newHarness(t)
		before := h.balance(h.sender)

		tx := h.sign(t, database.Tx{
			Type:     database.TxTransfer,
			ChainID:  1,
			FromID:   h.sender,
			Nonce:    1,
			GasLimit: 100_000,
			GasPrice: big.NewInt(2),
			ToID:     h.receiver,
			Value:    big.NewInt(5000),
		})

		delta := database.NewDelta(h.db)
		receipt, err := h.engine.Apply(delta, tx, 1, h.proposer)
		if err != nil {
			t.Fatalf("\t%s\tShould apply the transfer: %v", failed, err)
		}
		t.Logf("\t%s\tShould apply the transfer.", success)

		if !receipt.Success {
			t.Fatalf("\t%s\tShould produce a success receipt: %s", failed, receipt.Err)
		}
		if receipt.GasUsed != tx.GasUnits {
			t.Fatalf("\t%s\tShould charge only intrinsic gas: got %d, exp %d.", failed, receipt.GasUsed, tx.GasUnits)
		}
		t.Logf("\t%s\tShould charge only intrinsic gas.", success)

		fee := new(big.Int).Mul(big.NewInt(int64(tx.GasUnits)), tx.GasPrice)

		got, _ := delta.Account(h.sender)
		want := new(big.Int).Sub(before, new(big.Int).Add(big.NewInt(5000), fee))
		if got.Balance.Cmp(want) != 0 {
			t.Fatalf("\t%s\tShould debit amount plus fee: got %s, exp %s.", failed, got.Balance, want)
		}
		if got.Nonce != 1 {
			t.Fatalf("\t%s\tShould record the nonce: got %d.", failed, got.Nonce)
		}
		t.Logf("\t%s\tShould debit amount plus fee and record the nonce.", success)

		recv, _ := delta.Account(h.receiver)
		if recv.Balance.Cmp(big.NewInt(5000)) != 0 {
			t.Fatalf("\t%s\tShould credit the recipient: got %s.", failed, recv.Balance)
		}
		prop, _ := delta.Account(h.proposer)
		if prop.Balance.Cmp(fee) != 0 {
			t.Fatalf("\t%s\tShould credit the fee to the proposer: got %s.", failed, prop.Balance)
		}
		t.Logf("\t%s\tShould credit recipient and proposer.", success)
	}
}

func Test_TransferInsufficient(t *testing.T) {
	t.Log("Given the need to reject a transfer the sender cannot cover.")
	{
		h := newHarness(t)

		tx := h.sign(t, database.Tx{
			Type:     database.TxTransfer,
			ChainID:  1,
			FromID:   h.sender,
			Nonce:    1,
			GasLimit: 100_000,
			GasPrice: big.NewInt(1),
			ToID:     h.receiver,
			Value:    big.NewInt(2_000_000_000),
		})

		delta := database.NewDelta(h.db)
		if _, err := h.engine.Apply(delta, tx, 1, h.proposer); err == nil {
			t.Fatalf("\t%s\tShould refuse to apply the transfer.", failed)
		}
		t.Logf("\t%s\tShould refuse to apply the transfer.", success)

		if recv, exists := delta.Account(h.receiver); exists && recv.Balance.Sign() != 0 {
			t.Fatalf("\t%s\tShould leave no partial credit: got %s.", failed, recv.Balance)
		}
		sender, _ := delta.Account(h.sender)
		if sender.Nonce != 0 {
			t.Fatalf("\t%s\tShould leave the nonce untouched: got %d.", failed, sender.Nonce)
		}
		t.Logf("\t%s\tShould leave the state untouched.", success)
	}
}

func Test_Reputation(t *testing.T) {
	t.Log("Given the need to apply a reputation delta to the target account.")
	{
		h := newHarness(t)

		tx := h.sign(t, database.Tx{
			Type:     database.TxReputation,
			ChainID:  1,
			FromID:   h.sender,
			Nonce:    1,
			GasLimit: 100_000,
			GasPrice: big.NewInt(1),
			ToID:     h.receiver,
			Delta:    -3,
			Reason:   "spam",
		})

		delta := database.NewDelta(h.db)
		receipt, err := h.engine.Apply(delta, tx, 1, h.proposer)
		if err != nil || !receipt.Success {
			t.Fatalf("\t%s\tShould apply the reputation change: %v %s", failed, err, receipt.Err)
		}

		target, _ := delta.Account(h.receiver)
		if target.Reputation != -3 {
			t.Fatalf("\t%s\tShould adjust the target reputation: got %d.", failed, target.Reputation)
		}
		if target.Balance.Sign() != 0 {
			t.Fatalf("\t%s\tShould move no tokens to the target: got %s.", failed, target.Balance)
		}
		t.Logf("\t%s\tShould adjust reputation without moving tokens.", success)
	}
}

func Test_DeployAndCall(t *testing.T) {
	t.Log("Given the need to deploy a contract and call it.")
	{
		h := newHarness(t)

		// Runtime: store[1] = CALLVALUE, return CALLVALUE.
		runtime := program(
			op(vm.OpCallValue), push(1), op(vm.OpSStore),
			op(vm.OpCallValue), op(vm.OpRetVal),
		)
		init := program(push(uint64(len(runtime))), push(19), op(vm.OpRetCode), runtime)

		deploy := h.sign(t, database.Tx{
			Type:     database.TxDeploy,
			ChainID:  1,
			FromID:   h.sender,
			Nonce:    1,
			GasLimit: 1_000_000,
			GasPrice: big.NewInt(1),
			Data:     init,
		})

		delta := database.NewDelta(h.db)
		receipt, err := h.engine.Apply(delta, deploy, 1, h.proposer)
		if err != nil {
			t.Fatalf("\t%s\tShould apply the deploy: %v", failed, err)
		}
		if !receipt.Success {
			t.Fatalf("\t%s\tShould produce a success receipt: %s", failed, receipt.Err)
		}
		if receipt.ContractID != database.NewContractID(h.sender, 1) {
			t.Fatalf("\t%s\tShould derive the contract address from sender and nonce.", failed)
		}
		t.Logf("\t%s\tShould derive the contract address from sender and nonce.", success)

		code, exists := delta.ContractCode(receipt.ContractID)
		if !exists || len(code) != len(runtime) {
			t.Fatalf("\t%s\tShould persist the runtime bytecode.", failed)
		}
		t.Logf("\t%s\tShould persist the runtime bytecode.", success)

		if receipt.GasUsed <= deploy.GasUnits || receipt.GasUsed >= deploy.GasLimit {
			t.Fatalf("\t%s\tShould charge intrinsic plus executed gas: got %d.", failed, receipt.GasUsed)
		}
		t.Logf("\t%s\tShould refund the unused gas limit.", success)

		call := h.sign(t, database.Tx{
			Type:     database.TxCall,
			ChainID:  1,
			FromID:   h.sender,
			Nonce:    2,
			GasLimit: 1_000_000,
			GasPrice: big.NewInt(1),
			ToID:     receipt.ContractID,
			Value:    big.NewInt(42),
		})

		callReceipt, err := h.engine.Apply(delta, call, 1, h.proposer)
		if err != nil {
			t.Fatalf("\t%s\tShould apply the call: %v", failed, err)
		}
		if !callReceipt.Success {
			t.Fatalf("\t%s\tShould produce a success receipt: %s", failed, callReceipt.Err)
		}
		if got := binary.BigEndian.Uint64(callReceipt.ReturnData); got != 42 {
			t.Fatalf("\t%s\tShould return the call value: got %d.", failed, got)
		}
		t.Logf("\t%s\tShould return the call value.", success)

		if v := delta.StorageGet(receipt.ContractID, 1); v != 42 {
			t.Fatalf("\t%s\tShould persist the storage write: got %d.", failed, v)
		}
		contract, _ := delta.Account(receipt.ContractID)
		if contract.Balance.Cmp(big.NewInt(42)) != 0 {
			t.Fatalf("\t%s\tShould credit the call value to the contract: got %s.", failed, contract.Balance)
		}
		t.Logf("\t%s\tShould persist storage writes and the value credit.", success)
	}
}

func Test_CallRevert(t *testing.T) {
	t.Log("Given the need to discard state on revert while charging gas.")
	{
		h := newHarness(t)

		// Runtime: store[1] = 9 then revert.
		runtime := program(push(9), push(1), op(vm.OpSStore), op(vm.OpRevert))
		init := program(push(uint64(len(runtime))), push(19), op(vm.OpRetCode), runtime)

		deploy := h.sign(t, database.Tx{
			Type:     database.TxDeploy,
			ChainID:  1,
			FromID:   h.sender,
			Nonce:    1,
			GasLimit: 1_000_000,
			GasPrice: big.NewInt(1),
			Data:     init,
		})

		delta := database.NewDelta(h.db)
		receipt, err := h.engine.Apply(delta, deploy, 1, h.proposer)
		if err != nil || !receipt.Success {
			t.Fatalf("\t%s\tShould deploy the contract: %v %s", failed, err, receipt.Err)
		}

		senderBefore, _ := delta.Account(h.sender)

		call := h.sign(t, database.Tx{
			Type:     database.TxCall,
			ChainID:  1,
			FromID:   h.sender,
			Nonce:    2,
			GasLimit: 1_000_000,
			GasPrice: big.NewInt(1),
			ToID:     receipt.ContractID,
		})

		callReceipt, err := h.engine.Apply(delta, call, 1, h.proposer)
		if err != nil {
			t.Fatalf("\t%s\tShould still apply the reverted call: %v", failed, err)
		}
		if callReceipt.Success {
			t.Fatalf("\t%s\tShould produce a failure receipt.", failed)
		}
		t.Logf("\t%s\tShould produce a failure receipt.", success)

		if v := delta.StorageGet(receipt.ContractID, 1); v != 0 {
			t.Fatalf("\t%s\tShould discard the storage write: got %d.", failed, v)
		}
		t.Logf("\t%s\tShould discard the storage write.", success)

		fee := big.NewInt(int64(callReceipt.GasUsed))
		senderAfter, _ := delta.Account(h.sender)
		want := new(big.Int).Sub(senderBefore.Balance, fee)
		if senderAfter.Balance.Cmp(want) != 0 {
			t.Fatalf("\t%s\tShould charge only the gas consumed: got %s, exp %s.", failed, senderAfter.Balance, want)
		}
		if senderAfter.Nonce != 2 {
			t.Fatalf("\t%s\tShould still advance the nonce: got %d.", failed, senderAfter.Nonce)
		}
		t.Logf("\t%s\tShould charge consumed gas and advance the nonce.", success)
	}
}

func Test_SupplyConservation(t *testing.T) {
	t.Log("Given the need for transfers to conserve total token supply.")
	{
		h := newHarness(t)
		supplyBefore := h.db.TotalSupply()

		delta := database.NewDelta(h.db)
		for nonce := uint64(1); nonce <= 3; nonce++ {
			tx := h.sign(t, database.Tx{
				Type:     database.TxTransfer,
				ChainID:  1,
				FromID:   h.sender,
				Nonce:    nonce,
				GasLimit: 100_000,
				GasPrice: big.NewInt(1),
				ToID:     h.receiver,
				Value:    big.NewInt(100),
			})
			if _, err := h.engine.Apply(delta, tx, 1, h.proposer); err != nil {
				t.Fatalf("\t%s\tShould apply transfer %d: %v", failed, nonce, err)
			}
		}

		block, err := database.NewBlock(h.db.LatestBlock(), h.proposer, 0, h.gen.BlockGasLimit, h.gen.BaseFee, nil)
		if err != nil {
			t.Fatalf("\t%s\tShould assemble the block: %v", failed, err)
		}
		if err := h.db.Commit(block, delta, nil, false); err != nil {
			t.Fatalf("\t%s\tShould commit the delta: %v", failed, err)
		}

		if supplyAfter := h.db.TotalSupply(); supplyAfter.Cmp(supplyBefore) != 0 {
			t.Fatalf("\t%s\tShould conserve supply: before %s, after %s.", failed, supplyBefore, supplyAfter)
		}
		t.Logf("\t%s\tShould conserve supply across transfers.", success)
	}
}

// =============================================================================

func push(v uint64) []byte {
	code := make([]byte, 9)
	code[0] = byte(vm.OpPush)
	binary.BigEndian.PutUint64(code[1:], v)
	return code
}

func op(o vm.Opcode) []byte { return []byte{byte(o)} }

func program(parts ...[]byte) []byte {
	var code []byte
	for _, p := range parts {
		code = append(code, p...)
	}
	return code
}
