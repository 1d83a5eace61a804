package snapshot

import (
	"fmt"

	"github.com/shadowatlas/core/model"
)

// sentinelZeroLeaf is the fixed padding leaf used to fill a tree out to
// the next power of two (spec §4.5).
var sentinelZeroLeaf = make([]byte, 32)

// Tree is a balanced binary Merkle tree over a snapshot's admitted leaves,
// padded to 2^depth with sentinelZeroLeaf.
type Tree struct {
	Algorithm model.LeafHashAlgorithm
	Depth     int
	// Levels[0] is the padded leaf layer; Levels[Depth] is the root layer
	// (a single element).
	Levels [][][]byte
}

// BuildTree constructs the Merkle tree over a set of precomputed leaf
// hashes, in canonical order. Empty input is rejected at build time per
// spec §4.5.
func BuildTree(algo model.LeafHashAlgorithm, leaves [][]byte) (*Tree, error) {
	if len(leaves) == 0 {
		return nil, model.ErrEmptyAdmittedSet
	}

	depth := 0
	for (1 << depth) < len(leaves) {
		depth++
	}
	size := 1 << depth

	padded := make([][]byte, size)
	seen := make(map[string]int, len(leaves))
	for i, l := range leaves {
		if prior, ok := seen[string(l)]; ok {
			return nil, fmt.Errorf("%w: leaves %d and %d", model.ErrLeafHashCollision, prior, i)
		}
		seen[string(l)] = i
		padded[i] = l
	}
	for i := len(leaves); i < size; i++ {
		padded[i] = sentinelZeroLeaf
	}

	levels := make([][][]byte, depth+1)
	levels[0] = padded

	for level := 0; level < depth; level++ {
		cur := levels[level]
		next := make([][]byte, len(cur)/2)
		for i := 0; i < len(next); i++ {
			h, err := CombineHash(algo, cur[2*i], cur[2*i+1])
			if err != nil {
				return nil, err
			}
			next[i] = h
		}
		levels[level+1] = next
	}

	return &Tree{Algorithm: algo, Depth: depth, Levels: levels}, nil
}

// Root returns the tree's Merkle root.
func (t *Tree) Root() []byte {
	return t.Levels[t.Depth][0]
}

// ProofFor returns the precomputed inclusion proof for a leaf index (spec
// §4.5: "{index, siblings[depth], path_indices[depth]}").
func (t *Tree) ProofFor(leafIndex int) (model.MerkleProof, error) {
	size := len(t.Levels[0])
	if leafIndex < 0 || leafIndex >= size {
		return model.MerkleProof{}, fmt.Errorf("leaf index %d out of range [0,%d)", leafIndex, size)
	}

	proof := model.MerkleProof{
		LeafHash:   t.Levels[0][leafIndex],
		LeafIndex:  leafIndex,
		Depth:      t.Depth,
		MerkleRoot: t.Root(),
	}

	idx := leafIndex
	for level := 0; level < t.Depth; level++ {
		siblingIdx := idx ^ 1
		proof.Siblings = append(proof.Siblings, t.Levels[level][siblingIdx])
		if idx%2 == 0 {
			proof.PathIndices = append(proof.PathIndices, 1) // sibling is on the right
		} else {
			proof.PathIndices = append(proof.PathIndices, 0) // sibling is on the left
		}
		idx /= 2
	}

	return proof, nil
}

// AllProofs precomputes every leaf's inclusion proof, the builder's
// spec §4.5 proof pre-computation step.
func (t *Tree) AllProofs() ([]model.MerkleProof, error) {
	size := len(t.Levels[0])
	proofs := make([]model.MerkleProof, size)
	for i := 0; i < size; i++ {
		p, err := t.ProofFor(i)
		if err != nil {
			return nil, err
		}
		proofs[i] = p
	}
	return proofs, nil
}

// VerifyProof recomputes a root from a leaf and its sibling path and
// reports whether it matches the proof's recorded root. Package lookup
// returns proofs without running this check.
func VerifyProof(algo model.LeafHashAlgorithm, proof model.MerkleProof) (bool, error) {
	current := proof.LeafHash
	for i := 0; i < proof.Depth; i++ {
		sibling := proof.Siblings[i]
		var err error
		if proof.PathIndices[i] == 1 {
			current, err = CombineHash(algo, current, sibling)
		} else {
			current, err = CombineHash(algo, sibling, current)
		}
		if err != nil {
			return false, err
		}
	}
	return bytesEqual(current, proof.MerkleRoot), nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
