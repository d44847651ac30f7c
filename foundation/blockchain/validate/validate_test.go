package validate_test

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/agorachain/agora/foundation/blockchain/database"
	"github.com/agorachain/agora/foundation/blockchain/genesis"
	"github.com/agorachain/agora/foundation/blockchain/signature"
	"github.com/agorachain/agora/foundation/blockchain/validate"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const receiver = "0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76"

// view is a fixed state snapshot for the pipeline to read.
type view struct {
	accounts  map[database.AccountID]database.Account
	contracts map[database.AccountID][]byte
}

func (v view) Account(id database.AccountID) (database.Account, bool) {
	account, exists := v.accounts[id]
	return account, exists
}

func (v view) ContractCode(id database.AccountID) ([]byte, bool) {
	code, exists := v.contracts[id]
	return code, exists
}

func (v view) ContractStorage(id database.AccountID, slot string) (uint64, bool) {
	return 0, false
}

func testGenesis() genesis.Genesis {
	return genesis.Genesis{
		Date:          time.Now(),
		ChainID:       1,
		BlockGasLimit: 10_000_000,
		MinGasPrice:   5,
		BaseFee:       1,
	}
}

func TestRequiredGas(t *testing.T) {
	type table struct {
		name string
		tx   database.Tx
		exp  uint64
	}

	tt := []table{
		{
			name: "transfer",
			tx:   database.Tx{Type: database.TxTransfer},
			exp:  21_000,
		},
		{
			name: "payload bytes",
			tx:   database.Tx{Type: database.TxDeploy, Data: []byte{0x00, 0x01, 0x02}},
			exp:  21_000 + 4 + 16 + 16,
		},
		{
			name: "post",
			tx:   database.Tx{Type: database.TxPost},
			exp:  21_000 + 20_000,
		},
		{
			name: "reputation",
			tx:   database.Tx{Type: database.TxReputation},
			exp:  21_000 + 15_000,
		},
	}

	t.Log("Given the need to compute intrinsic gas.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen pricing a %s transaction.", testID, tst.name)
			{
				got := validate.RequiredGas(tst.tx)
				if got != tst.exp {
					t.Fatalf("\t%s\tTest %d:\tShould require %d gas, got %d.", failed, testID, tst.exp, got)
				}
				t.Logf("\t%s\tTest %d:\tShould require %d gas.", success, testID, tst.exp)
			}
		}
	}
}

func TestPipeline(t *testing.T) {
	pk, err := crypto.HexToECDSA("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	if err != nil {
		t.Fatalf("Should be able to parse the private key: %v", err)
	}
	key := signature.NewSecp256k1Key(pk)
	sender := database.PublicKeyToAccountID(pk.PublicKey)

	gen := testGenesis()

	stateView := view{
		accounts: map[database.AccountID]database.Account{
			sender: {Balance: big.NewInt(10_000_000), Nonce: 0},
		},
		contracts: map[database.AccountID][]byte{},
	}

	sign := func(t *testing.T, tx database.Tx) database.SignedTx {
		t.Helper()
		signedTx, err := tx.Sign(key)
		if err != nil {
			t.Fatalf("Should be able to sign the transaction: %v", err)
		}
		return signedTx
	}

	base := func() database.Tx {
		return database.Tx{
			Type:     database.TxTransfer,
			ChainID:  1,
			FromID:   sender,
			Nonce:    1,
			GasLimit: 100_000,
			GasPrice: big.NewInt(10),
			ToID:     receiver,
			Value:    big.NewInt(500),
		}
	}

	type table struct {
		name   string
		mutate func(tx *database.Tx)
		expErr error
	}

	tt := []table{
		{
			name:   "admissible transfer",
			mutate: func(tx *database.Tx) {},
		},
		{
			name:   "gas price below minimum",
			mutate: func(tx *database.Tx) { tx.GasPrice = big.NewInt(1) },
			expErr: validate.ErrGasPriceTooLow,
		},
		{
			name:   "gas limit below intrinsic gas",
			mutate: func(tx *database.Tx) { tx.GasLimit = 100 },
			expErr: validate.ErrOutOfGas,
		},
		{
			name:   "gas limit above block limit",
			mutate: func(tx *database.Tx) { tx.GasLimit = gen.BlockGasLimit + 1 },
			expErr: validate.ErrOutOfGas,
		},
		{
			name:   "nonce already used",
			mutate: func(tx *database.Tx) { tx.Nonce = 0 },
			expErr: validate.ErrNonceTooLow,
		},
		{
			name:   "nonce gap",
			mutate: func(tx *database.Tx) { tx.Nonce = 5 },
			expErr: validate.ErrNonceTooHigh,
		},
		{
			name:   "value plus fee above balance",
			mutate: func(tx *database.Tx) { tx.Value = big.NewInt(100_000_000) },
			expErr: validate.ErrInsufficientFunds,
		},
		{
			name: "call on a plain account",
			mutate: func(tx *database.Tx) {
				tx.Type = database.TxCall
				tx.Data = []byte{0x01}
			},
			expErr: validate.ErrNotContract,
		},
	}

	t.Log("Given the need to validate the admission pipeline.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a %s.", testID, tst.name)
			{
				tx := base()
				tst.mutate(&tx)
				signedTx := sign(t, tx)

				result, err := validate.Transaction(signedTx, gen, stateView)

				if tst.expErr != nil {
					if !errors.Is(err, tst.expErr) {
						t.Fatalf("\t%s\tTest %d:\tShould get error %v, got %v.", failed, testID, tst.expErr, err)
					}
					t.Logf("\t%s\tTest %d:\tShould get error %v.", success, testID, tst.expErr)
					continue
				}

				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould pass validation: %v", failed, testID, err)
				}
				if result.RequiredGas != 21_000 {
					t.Fatalf("\t%s\tTest %d:\tShould compute 21000 intrinsic gas, got %d.", failed, testID, result.RequiredGas)
				}
				expFee := new(big.Int).Mul(big.NewInt(100_000), big.NewInt(10))
				if result.Fee.Cmp(expFee) != 0 {
					t.Fatalf("\t%s\tTest %d:\tShould compute the worst case fee %s, got %s.", failed, testID, expFee, result.Fee)
				}
				t.Logf("\t%s\tTest %d:\tShould pass validation with the right gas and fee.", success, testID)
			}
		}
	}
}

func TestStructural(t *testing.T) {
	pk, err := crypto.HexToECDSA("9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93")
	if err != nil {
		t.Fatalf("Should be able to parse the private key: %v", err)
	}
	key := signature.NewSecp256k1Key(pk)
	sender := database.PublicKeyToAccountID(pk.PublicKey)

	gen := testGenesis()
	stateView := view{
		accounts: map[database.AccountID]database.Account{
			sender: {Balance: big.NewInt(10_000_000), Nonce: 0},
		},
	}

	t.Log("Given the need to reject malformed transactions.")
	{
		t.Log("\tTest 0:\tWhen the chain id does not match.")
		{
			tx := database.Tx{
				Type:     database.TxTransfer,
				ChainID:  99,
				FromID:   sender,
				Nonce:    1,
				GasLimit: 100_000,
				GasPrice: big.NewInt(10),
				ToID:     receiver,
				Value:    big.NewInt(1),
			}
			signedTx, err := tx.Sign(key)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign: %v", failed, err)
			}

			if _, err := validate.Transaction(signedTx, gen, stateView); err == nil {
				t.Fatalf("\t%s\tTest 0:\tShould reject the wrong chain id.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the wrong chain id.", success)
		}

		t.Log("\tTest 1:\tWhen sending money to yourself.")
		{
			tx := database.Tx{
				Type:     database.TxTransfer,
				ChainID:  1,
				FromID:   sender,
				Nonce:    1,
				GasLimit: 100_000,
				GasPrice: big.NewInt(10),
				ToID:     sender,
				Value:    big.NewInt(1),
			}
			signedTx, err := tx.Sign(key)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to sign: %v", failed, err)
			}

			if _, err := validate.Transaction(signedTx, gen, stateView); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould reject a self transfer.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould reject a self transfer.", success)
		}

		t.Log("\tTest 2:\tWhen the signature does not match the sender.")
		{
			tx := database.Tx{
				Type:     database.TxTransfer,
				ChainID:  1,
				FromID:   sender,
				Nonce:    1,
				GasLimit: 100_000,
				GasPrice: big.NewInt(10),
				ToID:     receiver,
				Value:    big.NewInt(1),
			}
			signedTx, err := tx.Sign(key)
			if err != nil {
				t.Fatalf("\t%s\tTest 2:\tShould be able to sign: %v", failed, err)
			}
			signedTx.FromID = receiver

			if _, err := validate.Transaction(signedTx, gen, stateView); err == nil {
				t.Fatalf("\t%s\tTest 2:\tShould reject a forged sender.", failed)
			}
			t.Logf("\t%s\tTest 2:\tShould reject a forged sender.", success)
		}
	}
}