package signature_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/agorachain/agora/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

type payload struct {
	Msg   string `json:"msg"`
	Value uint64 `json:"value"`
}

func Test_Secp256k1(t *testing.T) {
	t.Log("Given the need to sign and verify with the secp256k1 scheme.")
	{
		pk, err := crypto.HexToECDSA("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
		if err != nil {
			t.Fatalf("\t%s\tShould be able to load a private key: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to load a private key.", success)

		value := payload{Msg: "hello", Value: 10}

		sig, err := signature.Sign(value, pk)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign the value: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to sign the value.", success)

		pub := signature.PublicKeyBytes(pk)
		if err := signature.Verify(signature.SchemeSecp256k1, value, sig, pub); err != nil {
			t.Fatalf("\t%s\tShould be able to verify the signature: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to verify the signature.", success)

		other := payload{Msg: "hello", Value: 11}
		if err := signature.Verify(signature.SchemeSecp256k1, other, sig, pub); err == nil {
			t.Fatalf("\t%s\tShould not verify a signature over different data.", failed)
		}
		t.Logf("\t%s\tShould not verify a signature over different data.", success)

		addr, err := signature.DeriveAddress(signature.SchemeSecp256k1, pub)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to derive an address: %v", failed, err)
		}
		if exp := crypto.PubkeyToAddress(pk.PublicKey).String(); addr != exp {
			t.Fatalf("\t%s\tShould derive the ethereum address: got %s, exp %s", failed, addr, exp)
		}
		t.Logf("\t%s\tShould derive the ethereum address.", success)
	}
}

func Test_Ed25519(t *testing.T) {
	t.Log("Given the need to sign and verify with the ed25519 scheme.")
	{
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to generate a key pair: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to generate a key pair.", success)

		value := payload{Msg: "post", Value: 42}

		sig, err := signature.SignEd25519(value, priv)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to sign the value: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to sign the value.", success)

		if err := signature.Verify(signature.SchemeEd25519, value, sig, pub); err != nil {
			t.Fatalf("\t%s\tShould be able to verify the signature: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to verify the signature.", success)

		sig[0] ^= 0xff
		if err := signature.Verify(signature.SchemeEd25519, value, sig, pub); err == nil {
			t.Fatalf("\t%s\tShould not verify a corrupted signature.", failed)
		}
		t.Logf("\t%s\tShould not verify a corrupted signature.", success)

		addr, err := signature.DeriveAddress(signature.SchemeEd25519, pub)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to derive an address: %v", failed, err)
		}
		if len(addr) != 42 || addr[:2] != "0x" {
			t.Fatalf("\t%s\tShould derive a 20 byte hex address: got %s", failed, addr)
		}
		t.Logf("\t%s\tShould derive a 20 byte hex address.", success)
	}
}

func Test_MalformedInput(t *testing.T) {
	t.Log("Given the need to reject malformed keys and signatures without panicking.")
	{
		value := payload{Msg: "x", Value: 1}

		if err := signature.Verify(signature.SchemeSecp256k1, value, []byte{0x01}, nil); !signature.IsCryptoError(err) {
			t.Fatalf("\t%s\tShould get a CryptoError for a short secp256k1 signature.", failed)
		}
		t.Logf("\t%s\tShould get a CryptoError for a short secp256k1 signature.", success)

		if err := signature.Verify(signature.SchemeEd25519, value, make([]byte, 64), []byte{0x02}); !signature.IsCryptoError(err) {
			t.Fatalf("\t%s\tShould get a CryptoError for a short ed25519 key.", failed)
		}
		t.Logf("\t%s\tShould get a CryptoError for a short ed25519 key.", success)

		if _, err := signature.DeriveAddress(signature.Scheme("rsa"), nil); !signature.IsCryptoError(err) {
			t.Fatalf("\t%s\tShould get a CryptoError for an unknown scheme.", failed)
		}
		t.Logf("\t%s\tShould get a CryptoError for an unknown scheme.", success)
	}
}
