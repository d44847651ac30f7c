package selector_test

import (
	"math/big"
	"testing"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/mempool/selector"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func tx(from database.AccountID, nonce uint64, gasPrice uint64, arrival uint64) database.BlockTx {
	return database.BlockTx{
		SignedTx: database.SignedTx{
			Tx: database.Tx{
				Type:     database.TxTransfer,
				FromID:   from,
				Nonce:    nonce,
				GasPrice: new(big.Int).SetUint64(gasPrice),
			},
		},
		TimeStamp: arrival,
	}
}

func TestRetrieve(t *testing.T) {
	t.Log("Given the need to retrieve select strategies.")
	{
		t.Log("\tTest 0:\tWhen asking for known and unknown strategies.")
		{
			if _, err := selector.Retrieve(selector.StrategyPrice); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to retrieve the price strategy: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to retrieve the price strategy.", success)

			if _, err := selector.Retrieve("bogus"); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould get an error for an unknown strategy.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get an error for an unknown strategy.", success)
		}
	}
}

func TestPriceStrategy(t *testing.T) {
	const (
		alice = database.AccountID("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
		bob   = database.AccountID("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
	)

	fn, err := selector.Retrieve(selector.StrategyPrice)
	if err != nil {
		t.Fatalf("Should be able to retrieve the price strategy: %v", err)
	}

	t.Log("Given the need to select transactions by gas price.")
	{
		t.Log("\tTest 0:\tWhen senders offer different prices.")
		{
			m := map[database.AccountID][]database.BlockTx{
				alice: {tx(alice, 2, 10, 2), tx(alice, 1, 10, 1)},
				bob:   {tx(bob, 1, 50, 3)},
			}

			got := fn(m, -1)
			if len(got) != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould select all 3 transactions, got %d.", failed, len(got))
			}
			t.Logf("\t%s\tTest 0:\tShould select all the transactions with -1.", success)

			if got[0].FromID != bob {
				t.Fatalf("\t%s\tTest 0:\tShould select the best priced sender first, got %s.", failed, got[0].FromID)
			}
			t.Logf("\t%s\tTest 0:\tShould select the best priced sender first.", success)

			if got[1].FromID != alice || got[1].Nonce != 1 || got[2].Nonce != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould keep nonce order within a sender.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould keep nonce order within a sender.", success)
		}

		t.Log("\tTest 1:\tWhen prices tie.")
		{
			m := map[database.AccountID][]database.BlockTx{
				alice: {tx(alice, 1, 10, 9)},
				bob:   {tx(bob, 1, 10, 4)},
			}

			got := fn(m, 1)
			if len(got) != 1 {
				t.Fatalf("\t%s\tTest 1:\tShould select 1 transaction, got %d.", failed, len(got))
			}
			if got[0].FromID != bob {
				t.Fatalf("\t%s\tTest 1:\tShould break price ties by arrival order, got %s.", failed, got[0].FromID)
			}
			t.Logf("\t%s\tTest 1:\tShould break price ties by arrival order.", success)
		}
	}
}