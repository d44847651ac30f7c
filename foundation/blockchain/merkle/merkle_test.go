package merkle_test

import (
	"crypto/sha256"
	"testing"

	"github.com/agorachain/agora/foundation/blockchain/merkle"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

type data struct {
	Value string
}

func (d data) Hash() ([]byte, error) {
	h := sha256.Sum256([]byte(d.Value))
	return h[:], nil
}

func (d data) Equals(other data) bool {
	return d.Value == other.Value
}

func Test_Tree(t *testing.T) {
	t.Log("Given the need to compute a deterministic root over ordered values.")
	{
		values := []data{{"a"}, {"b"}, {"c"}}

		tree, err := merkle.NewTree(values)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to construct a tree: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to construct a tree.", success)

		if err := tree.Verify(); err != nil {
			t.Fatalf("\t%s\tShould be able to verify the tree: %v", failed, err)
		}
		t.Logf("\t%s\tShould be able to verify the tree.", success)

		again, _ := merkle.NewTree(values)
		if tree.RootHex() != again.RootHex() {
			t.Fatalf("\t%s\tShould compute the same root for the same values.", failed)
		}
		t.Logf("\t%s\tShould compute the same root for the same values.", success)

		reordered, _ := merkle.NewTree([]data{{"b"}, {"a"}, {"c"}})
		if tree.RootHex() == reordered.RootHex() {
			t.Fatalf("\t%s\tShould compute a different root for a different order.", failed)
		}
		t.Logf("\t%s\tShould compute a different root for a different order.", success)

		if !tree.Contains(data{"b"}) {
			t.Fatalf("\t%s\tShould find a value that is in the tree.", failed)
		}
		if tree.Contains(data{"z"}) {
			t.Fatalf("\t%s\tShould not find a value that is not in the tree.", failed)
		}
		t.Logf("\t%s\tShould support membership checks.", success)

		if len(tree.Values()) != 3 {
			t.Fatalf("\t%s\tShould return the ordered values: got %d, exp 3.", failed, len(tree.Values()))
		}
		t.Logf("\t%s\tShould return the ordered values.", success)
	}
}

func Test_EmptyTree(t *testing.T) {
	t.Log("Given the need to reject a tree with no content.")
	{
		if _, err := merkle.NewTree([]data{}); err == nil {
			t.Fatalf("\t%s\tShould not construct a tree from zero values.", failed)
		}
		t.Logf("\t%s\tShould not construct a tree from zero values.", success)
	}
}
