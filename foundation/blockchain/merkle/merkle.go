// Package merkle computes the transaction root digest recorded in each block
// header. The tree is rebuilt from the ordered transaction list so a replica
// can recompute and compare the root without any extra data.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"hash"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Hashable represents the behavior concrete data must exhibit to be used in
// the merkle tree.
type Hashable[T any] interface {
	Hash() ([]byte, error)
	Equals(other T) bool
}

// =============================================================================

// Tree represents a merkle tree over an ordered list of values of some type T
// that exhibits the behavior defined by the Hashable constraint.
type Tree[T Hashable[T]] struct {
	root         []byte
	leafHashes   [][]byte
	values       []T
	hashStrategy func() hash.Hash
}

// WithHashStrategy changes the default hash strategy of sha256 when
// constructing a new tree.
func WithHashStrategy[T Hashable[T]](hashStrategy func() hash.Hash) func(t *Tree[T]) {
	return func(t *Tree[T]) {
		t.hashStrategy = hashStrategy
	}
}

// NewTree constructs a merkle tree over the ordered values.
func NewTree[T Hashable[T]](values []T, options ...func(t *Tree[T])) (*Tree[T], error) {
	t := Tree[T]{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.Generate(values); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate rebuilds the tree from scratch for the specified values. The
// order of the values is part of the root: the same transactions in a
// different order produce a different digest.
func (t *Tree[T]) Generate(values []T) error {
	if len(values) == 0 {
		return errors.New("cannot construct tree with no content")
	}

	leafHashes := make([][]byte, len(values))
	for i, value := range values {
		hash, err := value.Hash()
		if err != nil {
			return err
		}
		leafHashes[i] = hash
	}

	t.values = values
	t.leafHashes = leafHashes
	t.root = t.rollUp(leafHashes)

	return nil
}

// rollUp hashes pairs of nodes level by level until a single root remains.
// An odd node at any level is paired with itself.
func (t *Tree[T]) rollUp(level [][]byte) []byte {
	for len(level) > 1 {
		var next [][]byte
		for i := 0; i < len(level); i += 2 {
			right := i
			if i+1 < len(level) {
				right = i + 1
			}

			h := t.hashStrategy()
			h.Write(level[i])
			h.Write(level[right])
			next = append(next, h.Sum(nil))
		}
		level = next
	}

	return level[0]
}

// MerkleRoot returns the root hash bytes.
func (t *Tree[T]) MerkleRoot() []byte {
	return t.root
}

// RootHex returns the root hash as a hex encoded string.
func (t *Tree[T]) RootHex() string {
	return hexutil.Encode(t.root)
}

// Values returns the ordered values stored in the tree.
func (t *Tree[T]) Values() []T {
	return t.values
}

// Contains reports whether the specified value is a leaf of the tree.
func (t *Tree[T]) Contains(value T) bool {
	for _, v := range t.values {
		if v.Equals(value) {
			return true
		}
	}
	return false
}

// Verify recomputes the root from the leaf values and checks it matches
// the stored root.
func (t *Tree[T]) Verify() error {
	leafHashes := make([][]byte, len(t.values))
	for i, value := range t.values {
		hash, err := value.Hash()
		if err != nil {
			return err
		}
		leafHashes[i] = hash
	}

	if !bytes.Equal(t.rollUp(leafHashes), t.root) {
		return errors.New("recomputed root does not match stored root")
	}

	return nil
}

// MarshalText panics to catch accidental attempts to serialize the tree.
// Serialize the Values instead and rebuild the tree on the other side.
func (t *Tree[T]) MarshalText() (text []byte, err error) {
	panic("do not marshal the merkle tree, use Values")
}
