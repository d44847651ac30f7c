package signature

import (
	"crypto/ecdsa"
	"crypto/ed25519"
)

// Key represents a private key bound to one of the supported schemes. The
// two implementations form the closed set of signing identities.
type Key interface {
	Scheme() Scheme
	Sign(value any) ([]byte, error)
	PublicKey() []byte
}

// =============================================================================

type secpKey struct {
	priv *ecdsa.PrivateKey
}

// NewSecp256k1Key wraps a secp256k1 private key as a signing Key.
func NewSecp256k1Key(priv *ecdsa.PrivateKey) Key {
	return secpKey{priv: priv}
}

func (k secpKey) Scheme() Scheme {
	return SchemeSecp256k1
}

func (k secpKey) Sign(value any) ([]byte, error) {
	return Sign(value, k.priv)
}

func (k secpKey) PublicKey() []byte {
	return PublicKeyBytes(k.priv)
}

// =============================================================================

type edKey struct {
	priv ed25519.PrivateKey
}

// NewEd25519Key wraps an ed25519 private key as a signing Key.
func NewEd25519Key(priv ed25519.PrivateKey) Key {
	return edKey{priv: priv}
}

func (k edKey) Scheme() Scheme {
	return SchemeEd25519
}

func (k edKey) Sign(value any) ([]byte, error) {
	return SignEd25519(value, k.priv)
}

func (k edKey) PublicKey() []byte {
	return []byte(k.priv.Public().(ed25519.PublicKey))
}
