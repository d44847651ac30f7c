package state_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/genesis"
	"github.com/agorachain/agora/foundation/blockchain/signature"
	"github.com/agorachain/agora/foundation/blockchain/state"
	"github.com/agorachain/agora/foundation/blockchain/storage/memory"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

// =============================================================================

type network struct {
	gen         genesis.Genesis
	proposerKey signature.Key
	proposerPub []byte
	senderKey   signature.Key
	sender      database.AccountID
	receiver    database.AccountID
}

func newNetwork(t *testing.T) *network {
	t.Helper()

	proposerECDSA, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould generate a proposer key: %v", failed, err)
	}
	senderECDSA, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould generate a sender key: %v", failed, err)
	}
	receiverECDSA, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("\t%s\tShould generate a receiver key: %v", failed, err)
	}

	sender := database.PublicKeyToAccountID(senderECDSA.PublicKey)

	return &network{
		gen: genesis.Genesis{
			Date:          time.Now(),
			ChainID:       1,
			BlockGasLimit: 10_000_000,
			MinGasPrice:   1,
			BlockReward:   700,
			Balances: map[string]string{
				string(sender): "1000000000",
			},
		},
		proposerKey: signature.NewSecp256k1Key(proposerECDSA),
		proposerPub: signature.PublicKeyBytes(proposerECDSA),
		senderKey:   signature.NewSecp256k1Key(senderECDSA),
		sender:      sender,
		receiver:    database.PublicKeyToAccountID(receiverECDSA.PublicKey),
	}
}

func (n *network) proposer(t *testing.T, strg database.Store) *state.State {
	t.Helper()

	st, err := state.New(state.Config{
		Role:           state.RoleProposer,
		BeneficiaryID:  database.PublicKeyToAccountID(mustECDSAPub(t, n.proposerKey)),
		ProposerKey:    n.proposerKey,
		ProposerScheme: signature.SchemeSecp256k1,
		ProposerPubKey: n.proposerPub,
		Genesis:        n.gen,
		Storage:        strg,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould construct the proposer state: %v", failed, err)
	}
	return st
}

func (n *network) replica(t *testing.T, strg database.Store) *state.State {
	t.Helper()

	st, err := state.New(state.Config{
		Role:           state.RoleReplica,
		BeneficiaryID:  n.receiver,
		ProposerScheme: signature.SchemeSecp256k1,
		ProposerPubKey: n.proposerPub,
		Genesis:        n.gen,
		Storage:        strg,
	})
	if err != nil {
		t.Fatalf("\t%s\tShould construct the replica state: %v", failed, err)
	}
	return st
}

func (n *network) transfer(t *testing.T, nonce uint64, amount int64) database.SignedTx {
	t.Helper()

	signedTx, err := database.Tx{
		Type:     database.TxTransfer,
		ChainID:  1,
		FromID:   n.sender,
		Nonce:    nonce,
		GasLimit: 100_000,
		GasPrice: big.NewInt(1),
		ToID:     n.receiver,
		Value:    big.NewInt(amount),
	}.Sign(n.senderKey)
	if err != nil {
		t.Fatalf("\t%s\tShould sign the transfer: %v", failed, err)
	}
	return signedTx
}

func newStore(t *testing.T) database.Store {
	t.Helper()

	strg, err := memory.New()
	if err != nil {
		t.Fatalf("\t%s\tShould construct storage: %v", failed, err)
	}
	return strg
}

func mustECDSAPub(t *testing.T, key signature.Key) ecdsa.PublicKey {
	t.Helper()

	p, err := crypto.UnmarshalPubkey(key.PublicKey())
	if err != nil {
		t.Fatalf("\t%s\tShould unmarshal the public key: %v", failed, err)
	}
	return *p
}

// =============================================================================

func Test_ProposeAndQuery(t *testing.T) {
	t.Log("Given the need to admit transactions and propose a block.")
	{
		n := newNetwork(t)
		st := n.proposer(t, newStore(t))

		hash, err := st.SubmitWalletTransaction(n.transfer(t, 1, 5000))
		if err != nil {
			t.Fatalf("\t%s\tShould admit the first transaction: %v", failed, err)
		}
		if _, err := st.SubmitWalletTransaction(n.transfer(t, 2, 1000)); err != nil {
			t.Fatalf("\t%s\tShould admit the queued second nonce: %v", failed, err)
		}
		t.Logf("\t%s\tShould admit sequential nonces.", success)

		if _, err := st.SubmitWalletTransaction(n.transfer(t, 5, 1000)); err == nil {
			t.Fatalf("\t%s\tShould reject a nonce gap.", failed)
		}
		t.Logf("\t%s\tShould reject a nonce gap.", success)

		block, err := st.ProposeBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould propose a block: %v", failed, err)
		}
		if block.Header.Height != 1 {
			t.Fatalf("\t%s\tShould commit height 1: got %d.", failed, block.Header.Height)
		}
		if len(block.Transactions()) != 2 {
			t.Fatalf("\t%s\tShould include both transactions: got %d.", failed, len(block.Transactions()))
		}
		t.Logf("\t%s\tShould commit a block with both transactions.", success)

		account, _ := st.QueryAccount(n.receiver)
		if account.Balance.Cmp(big.NewInt(6000)) != 0 {
			t.Fatalf("\t%s\tShould credit the receiver: got %s.", failed, account.Balance)
		}
		receipt, exists := st.QueryReceipt(hash)
		if !exists || !receipt.Success {
			t.Fatalf("\t%s\tShould record a success receipt for the submitted hash.", failed)
		}
		if st.MempoolCount() != 0 {
			t.Fatalf("\t%s\tShould drain the mempool: %d left.", failed, st.MempoolCount())
		}
		t.Logf("\t%s\tShould apply balances, record receipts, and drain the mempool.", success)
	}
}

func Test_ReplicaAcceptsValidBlock(t *testing.T) {
	t.Log("Given the need for a replica to verify and accept a proposed block.")
	{
		n := newNetwork(t)
		proposer := n.proposer(t, newStore(t))
		replica := n.replica(t, newStore(t))

		if _, err := proposer.SubmitWalletTransaction(n.transfer(t, 1, 5000)); err != nil {
			t.Fatalf("\t%s\tShould admit the transaction: %v", failed, err)
		}

		block, err := proposer.ProposeBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould propose a block: %v", failed, err)
		}

		if err := replica.AcceptProposedBlock(context.Background(), database.NewBlockData(block)); err != nil {
			t.Fatalf("\t%s\tShould accept the block: %v", failed, err)
		}
		t.Logf("\t%s\tShould accept the block.", success)

		if replica.LatestBlock().Hash() != proposer.LatestBlock().Hash() {
			t.Fatalf("\t%s\tShould agree on the head hash.", failed)
		}
		account, _ := replica.QueryAccount(n.receiver)
		if account.Balance.Cmp(big.NewInt(5000)) != 0 {
			t.Fatalf("\t%s\tShould apply the same balances: got %s.", failed, account.Balance)
		}
		t.Logf("\t%s\tShould converge on the proposer's state.", success)

		if err := replica.AcceptProposedBlock(context.Background(), database.NewBlockData(block)); !errors.Is(err, database.ErrStaleBlock) {
			t.Fatalf("\t%s\tShould reject the same height twice, first received wins: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a second block at an accepted height.", success)
	}
}

func Test_ReplicaRejectsTamperedBlock(t *testing.T) {
	t.Log("Given the need for a replica to reject a block that lies about gas.")
	{
		n := newNetwork(t)
		proposer := n.proposer(t, newStore(t))
		replica := n.replica(t, newStore(t))

		if _, err := proposer.SubmitWalletTransaction(n.transfer(t, 1, 5000)); err != nil {
			t.Fatalf("\t%s\tShould admit the transaction: %v", failed, err)
		}
		block, err := proposer.ProposeBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould propose a block: %v", failed, err)
		}

		blockData := database.NewBlockData(block)
		blockData.Header.GasUsed += 1

		err = replica.AcceptProposedBlock(context.Background(), blockData)
		if err == nil {
			t.Fatalf("\t%s\tShould reject the tampered block.", failed)
		}
		t.Logf("\t%s\tShould reject the tampered block: %v.", success, err)

		if replica.LatestBlock().Header.Height != 0 {
			t.Fatalf("\t%s\tShould stay at the prior head: got %d.", failed, replica.LatestBlock().Header.Height)
		}
		account, _ := replica.QueryAccount(n.receiver)
		if account.Balance != nil && account.Balance.Sign() != 0 {
			t.Fatalf("\t%s\tShould retain no partial application: got %s.", failed, account.Balance)
		}
		t.Logf("\t%s\tShould retain no partial application.", success)
	}
}

func Test_ReplayDeterminism(t *testing.T) {
	t.Log("Given the need to rebuild identical state from the stored chain.")
	{
		n := newNetwork(t)
		strg := newStore(t)
		st := n.proposer(t, strg)

		for nonce := uint64(1); nonce <= 3; nonce++ {
			if _, err := st.SubmitWalletTransaction(n.transfer(t, nonce, 100)); err != nil {
				t.Fatalf("\t%s\tShould admit transaction %d: %v", failed, nonce, err)
			}
		}
		if _, err := st.ProposeBlock(context.Background()); err != nil {
			t.Fatalf("\t%s\tShould propose a block: %v", failed, err)
		}

		// A fresh state over the same store replays the chain from disk.
		rebuilt := n.proposer(t, strg)

		if rebuilt.LatestBlock().Hash() != st.LatestBlock().Hash() {
			t.Fatalf("\t%s\tShould rebuild the same head.", failed)
		}
		want, _ := st.QueryAccount(n.sender)
		got, _ := rebuilt.QueryAccount(n.sender)
		if got.Balance.Cmp(want.Balance) != 0 || got.Nonce != want.Nonce {
			t.Fatalf("\t%s\tShould rebuild the same sender account: got %s/%d, exp %s/%d.",
				failed, got.Balance, got.Nonce, want.Balance, want.Nonce)
		}
		if rebuilt.TotalSupply().Cmp(st.TotalSupply()) != 0 {
			t.Fatalf("\t%s\tShould rebuild the same total supply.", failed)
		}
		t.Logf("\t%s\tShould rebuild identical state by replay.", success)
	}
}

func Test_EmptyBlocks(t *testing.T) {
	t.Log("Given the need to keep height advancing without transactions.")
	{
		n := newNetwork(t)

		if _, err := n.proposer(t, newStore(t)).ProposeBlock(context.Background()); !errors.Is(err, state.ErrNoTransactions) {
			t.Fatalf("\t%s\tShould refuse an empty block by default: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse an empty block by default.", success)

		n.gen.EmptyBlocks = true
		st := n.proposer(t, newStore(t))

		block, err := st.ProposeBlock(context.Background())
		if err != nil {
			t.Fatalf("\t%s\tShould propose an empty block when configured: %v", failed, err)
		}
		if block.Header.Height != 1 || block.Header.TransRoot != "" {
			t.Fatalf("\t%s\tShould commit an empty block at height 1.", failed)
		}
		t.Logf("\t%s\tShould commit an empty block when configured.", success)
	}
}

func Test_EvictExpired(t *testing.T) {
	t.Log("Given the need to age pending transactions out of the pool.")
	{
		n := newNetwork(t)
		st := n.proposer(t, newStore(t))

		tx := database.NewBlockTx(n.transfer(t, 1, 100), 21_000)
		tx.TimeStamp = uint64(time.Now().UTC().Add(-16 * time.Minute).UnixNano())

		if err := st.SubmitNodeTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould admit the transaction: %v", failed, err)
		}
		if st.MempoolCount() != 1 {
			t.Fatalf("\t%s\tShould hold the transaction: %d.", failed, st.MempoolCount())
		}

		if evicted := st.EvictExpired(); evicted != 1 {
			t.Fatalf("\t%s\tShould evict the aged transaction: got %d.", failed, evicted)
		}
		if st.MempoolCount() != 0 {
			t.Fatalf("\t%s\tShould leave an empty pool: %d left.", failed, st.MempoolCount())
		}
		t.Logf("\t%s\tShould evict transactions past the TTL.", success)
	}
}

func Test_SelectStrategy(t *testing.T) {
	t.Log("Given the need to construct state with and without a strategy.")
	{
		n := newNetwork(t)

		st, err := state.New(state.Config{
			Role:           state.RoleProposer,
			BeneficiaryID:  database.PublicKeyToAccountID(mustECDSAPub(t, n.proposerKey)),
			ProposerKey:    n.proposerKey,
			ProposerScheme: signature.SchemeSecp256k1,
			ProposerPubKey: n.proposerPub,
			Genesis:        n.gen,
			Storage:        newStore(t),
		})
		if err != nil {
			t.Fatalf("\t%s\tShould default to price selection when unset: %v", failed, err)
		}
		if _, err := st.SubmitWalletTransaction(n.transfer(t, 1, 100)); err != nil {
			t.Fatalf("\t%s\tShould admit a transaction with the default strategy: %v", failed, err)
		}
		t.Logf("\t%s\tShould default to price selection when unset.", success)

		_, err = state.New(state.Config{
			Role:           state.RoleProposer,
			BeneficiaryID:  database.PublicKeyToAccountID(mustECDSAPub(t, n.proposerKey)),
			ProposerKey:    n.proposerKey,
			ProposerScheme: signature.SchemeSecp256k1,
			ProposerPubKey: n.proposerPub,
			Genesis:        n.gen,
			Storage:        newStore(t),
			SelectStrategy: "bogus",
		})
		if err == nil {
			t.Fatalf("\t%s\tShould reject an unknown strategy.", failed)
		}
		t.Logf("\t%s\tShould reject an unknown strategy.", success)
	}
}
