package propagate_test

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/propagate"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

const waitFor = 5 * time.Second

// =============================================================================

// newChannel stands up a hub behind a test server, connects a client to it,
// and waits for the subscription to be active.
func newChannel(t *testing.T, hubCfg propagate.HubConfig, clientCfg propagate.ClientConfig) (*propagate.Hub, *propagate.Client) {
	t.Helper()

	hub := propagate.NewHub(hubCfg)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Subscribe(w, r)
	}))

	clientCfg.PeerURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	client := propagate.NewClient(clientCfg)

	ctx, cancel := context.WithCancel(context.Background())
	go client.Run(ctx)

	t.Cleanup(func() {
		cancel()
		hub.Shutdown()
		srv.Close()
	})

	deadline := time.Now().Add(waitFor)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("\t%s\tShould subscribe to the hub.", failed)
		}
		time.Sleep(10 * time.Millisecond)
	}

	return hub, client
}

func testTx(nonce uint64) database.BlockTx {
	return database.NewBlockTx(database.SignedTx{
		Tx: database.Tx{
			Type:     database.TxTransfer,
			ChainID:  1,
			FromID:   "0xF01813E4B85e178A83e29B8E7bF26BD830a25f32",
			Nonce:    nonce,
			GasLimit: 21_000,
			GasPrice: big.NewInt(1),
			ToID:     "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4",
			Value:    big.NewInt(100),
		},
	}, 21_000)
}

// =============================================================================

func Test_BlockDelivery(t *testing.T) {
	t.Log("Given the need to deliver published blocks to a replica.")
	{
		blockData := database.BlockData{
			Hash:   "0xdeadbeef",
			Header: database.BlockHeader{Height: 1, GasUsed: 21_000},
			Trans:  []database.BlockTx{testTx(1)},
		}

		hub, client := newChannel(t, propagate.HubConfig{}, propagate.ClientConfig{})

		hub.PublishBlock(blockData)

		select {
		case got := <-client.Blocks():
			if got.Hash != blockData.Hash || got.Header.Height != 1 {
				t.Fatalf("\t%s\tShould deliver the published block: got %s.", failed, got.Hash)
			}
			if len(got.Trans) != 1 || got.Trans[0].SignedTx.Hash() != blockData.Trans[0].SignedTx.Hash() {
				t.Fatalf("\t%s\tShould carry the block transactions.", failed)
			}
			t.Logf("\t%s\tShould deliver the published block.", success)

		case <-time.After(waitFor):
			t.Fatalf("\t%s\tShould deliver the published block: timed out.", failed)
		}

		if hub.Subscribers() != 1 {
			t.Fatalf("\t%s\tShould keep the acked subscription alive.", failed)
		}
		t.Logf("\t%s\tShould keep the acked subscription alive.", success)
	}
}

func Test_ShareTxDownward(t *testing.T) {
	t.Log("Given the need for shared transactions to reach the replica.")
	{
		received := make(chan database.BlockTx, 1)

		hub, _ := newChannel(t, propagate.HubConfig{}, propagate.ClientConfig{
			OnTransaction: func(tx database.BlockTx) {
				received <- tx
			},
		})

		tx := testTx(1)
		hub.ShareTx(tx)

		select {
		case got := <-received:
			if got.SignedTx.Hash() != tx.SignedTx.Hash() {
				t.Fatalf("\t%s\tShould hand the shared transaction to the callback.", failed)
			}
			t.Logf("\t%s\tShould hand the shared transaction to the callback.", success)

		case <-time.After(waitFor):
			t.Fatalf("\t%s\tShould hand the shared transaction to the callback: timed out.", failed)
		}
	}
}

func Test_ShareTxUpward(t *testing.T) {
	t.Log("Given the need for replica transactions to reach the proposer.")
	{
		received := make(chan database.BlockTx, 1)

		_, client := newChannel(t, propagate.HubConfig{
			OnTransaction: func(tx database.BlockTx) {
				received <- tx
			},
		}, propagate.ClientConfig{})

		tx := testTx(1)
		if err := client.SendTransaction(tx); err != nil {
			t.Fatalf("\t%s\tShould send the transaction: %v", failed, err)
		}

		select {
		case got := <-received:
			if got.SignedTx.Hash() != tx.SignedTx.Hash() {
				t.Fatalf("\t%s\tShould hand the transaction to the hub callback.", failed)
			}
			t.Logf("\t%s\tShould hand the transaction to the hub callback.", success)

		case <-time.After(waitFor):
			t.Fatalf("\t%s\tShould hand the transaction to the hub callback: timed out.", failed)
		}
	}
}
