// Package signature provides signing, verification, address derivation, and
// hashing for the two signature schemes accepted by the chain.
package signature

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// agoraID is an arbitrary number added to the recovery id when signing with
// the secp256k1 scheme. It makes signatures produced for this chain
// distinguishable from Ethereum mainnet signatures, which use 27.
const agoraID = 31

// Scheme identifies which signature algorithm produced a signature. The set
// is closed; dispatch happens once at verification time.
type Scheme string

// Set of supported signature schemes.
const (
	SchemeEd25519   Scheme = "ed25519"
	SchemeSecp256k1 Scheme = "secp256k1"
)

// IsValid tells whether the scheme is a member of the supported set.
func (s Scheme) IsValid() bool {
	return s == SchemeEd25519 || s == SchemeSecp256k1
}

// =============================================================================

// CryptoError indicates a malformed key, signature, or scheme. It is always
// returned instead of panicking on bad input.
type CryptoError struct {
	Msg string
}

// Error implements the error interface.
func (ce *CryptoError) Error() string {
	return ce.Msg
}

// NewCryptoError constructs a CryptoError with formatting support.
func NewCryptoError(format string, args ...any) error {
	return &CryptoError{Msg: fmt.Sprintf(format, args...)}
}

// IsCryptoError tests if the specified error or any error it wraps is a
// CryptoError.
func IsCryptoError(err error) bool {
	var ce *CryptoError
	return errors.As(err, &ce)
}

// =============================================================================

// Hash returns the legacy digest for the value: a SHA-256 over the canonical
// JSON encoding, hex encoded with a 0x prefix. This is the content address
// used for transaction and block identity.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// KeccakHash returns the Ethereum compatible digest used for contract
// oriented data such as bytecode and storage keys.
func KeccakHash(data []byte) string {
	return hexutil.Encode(crypto.Keccak256(data))
}

// =============================================================================

// Sign signs the value with the secp256k1 private key and returns the
// signature in the 65 byte [R|S|V] format with the agora id applied to V.
func Sign(value any, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	data, err := stamp(value)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return nil, NewCryptoError("signing: %s", err)
	}

	sig[crypto.RecoveryIDOffset] += agoraID

	return sig, nil
}

// SignEd25519 signs the value with the ed25519 private key and returns the
// 64 byte signature.
func SignEd25519(value any, privateKey ed25519.PrivateKey) ([]byte, error) {
	data, err := stamp(value)
	if err != nil {
		return nil, err
	}

	return ed25519.Sign(privateKey, data), nil
}

// Verify checks the signature over the value against the specified public
// key for the given scheme. A non-nil return is always a CryptoError.
func Verify(scheme Scheme, value any, sig []byte, publicKey []byte) error {
	data, err := stamp(value)
	if err != nil {
		return err
	}

	switch scheme {
	case SchemeEd25519:
		if len(publicKey) != ed25519.PublicKeySize {
			return NewCryptoError("invalid ed25519 public key length %d", len(publicKey))
		}
		if len(sig) != ed25519.SignatureSize {
			return NewCryptoError("invalid ed25519 signature length %d", len(sig))
		}
		if !ed25519.Verify(ed25519.PublicKey(publicKey), data, sig) {
			return NewCryptoError("invalid ed25519 signature")
		}
		return nil

	case SchemeSecp256k1:
		if len(sig) != crypto.SignatureLength {
			return NewCryptoError("invalid secp256k1 signature length %d", len(sig))
		}

		v := sig[crypto.RecoveryIDOffset]
		if v != agoraID && v != agoraID+1 {
			return NewCryptoError("invalid recovery id %d", v)
		}

		r := new(big.Int).SetBytes(sig[:32])
		s := new(big.Int).SetBytes(sig[32:64])
		if !crypto.ValidateSignatureValues(v-agoraID, r, s, false) {
			return NewCryptoError("invalid signature values")
		}

		if !crypto.VerifySignature(publicKey, data, sig[:crypto.RecoveryIDOffset]) {
			return NewCryptoError("invalid secp256k1 signature")
		}
		return nil

	default:
		return NewCryptoError("unknown signature scheme %q", scheme)
	}
}

// DeriveAddress converts the public key into a 20 byte chain address for the
// given scheme. Both schemes produce the same address format so accounts
// created either way live in the same address space.
func DeriveAddress(scheme Scheme, publicKey []byte) (string, error) {
	switch scheme {
	case SchemeEd25519:
		if len(publicKey) != ed25519.PublicKeySize {
			return "", NewCryptoError("invalid ed25519 public key length %d", len(publicKey))
		}
		hash := crypto.Keccak256(publicKey)
		return common.BytesToAddress(hash[12:]).String(), nil

	case SchemeSecp256k1:
		pub, err := crypto.UnmarshalPubkey(publicKey)
		if err != nil {
			return "", NewCryptoError("invalid secp256k1 public key: %s", err)
		}
		return crypto.PubkeyToAddress(*pub).String(), nil

	default:
		return "", NewCryptoError("unknown signature scheme %q", scheme)
	}
}

// PublicKeyBytes returns the uncompressed public key bytes for the
// secp256k1 private key.
func PublicKeyBytes(privateKey *ecdsa.PrivateKey) []byte {
	return crypto.FromECDSAPub(&privateKey.PublicKey)
}

// SignatureString returns the signature as a hex string.
func SignatureString(sig []byte) string {
	return hexutil.Encode(sig)
}

// =============================================================================

// stamp returns a 32 byte hash that represents the value with the agora
// stamp embedded so signatures are always unique to this chain.
func stamp(value any) ([]byte, error) {
	v, err := json.Marshal(value)
	if err != nil {
		return nil, NewCryptoError("marshal for signing: %s", err)
	}

	txHash := crypto.Keccak256(v)
	stamp := []byte("\x19Agora Signed Message:\n32")

	return crypto.Keccak256(stamp, txHash), nil
}
