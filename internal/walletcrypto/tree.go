package walletcrypto

import "crypto/sha256"

// Tree is an append-only commitment log. Real implementations maintain
// a sparse Merkle tree with proof-generation support; this reference
// tree keeps only what account.Sync and the planner need: the next
// append position and a running root hash, enough to exercise the
// rest of the system deterministically.
type Tree struct {
	next uint64
	root [32]byte
}

// NewTree returns an empty tree.
func NewTree() *Tree { return &Tree{} }

// NextIndex is the tree's current append position. Always a multiple
// of the per-record leaf span, since every pool record advances the
// tree by its full slot.
func (t *Tree) NextIndex() uint64 { return t.next }

// Append adds hashes (already ordered) to the tree, starting at
// NextIndex, and returns the new NextIndex.
func (t *Tree) Append(hashes [][32]byte) uint64 {
	for _, h := range hashes {
		combined := append(append([]byte(nil), t.root[:]...), h[:]...)
		t.root = sha256.Sum256(combined)
		t.next++
	}
	return t.next
}

// Root returns the current root hash.
func (t *Tree) Root() [32]byte { return t.root }

// ZeroAccountHash is the fixed placeholder leaf hash occupying the
// account slot of a delegated-deposit record, which mints notes
// without an account state.
var ZeroAccountHash = sha256.Sum256([]byte("zero-account"))

// HashNote returns the leaf hash committed for a note.
func HashNote(n Note) [32]byte {
	return sha256.Sum256(n.Encode())
}

// HashLeaves converts raw leaf bytes (as read from the wire) to tree
// leaf hashes. Regular records already carry 32-byte hashes; this is a
// thin, explicit conversion boundary.
func HashLeaves(raw [][32]byte) [][32]byte { return raw }
