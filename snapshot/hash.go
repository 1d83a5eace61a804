package snapshot

import (
	"crypto/sha256"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"

	"github.com/shadowatlas/core/model"
)

// LeafHash computes a district's leaf hash under the configured algorithm
// (spec §4.5/§6: "the choice is a single configuration flag, not per-call").
func LeafHash(algo model.LeafHashAlgorithm, canonicalBytes []byte) ([]byte, error) {
	switch algo {
	case model.HashSHA256Truncated31:
		return sha256Truncated31(canonicalBytes), nil
	case model.HashPoseidon2BN254:
		return poseidon2Hash(canonicalBytes), nil
	default:
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownHashAlgorithm, algo)
	}
}

// sha256Truncated31 hashes with SHA-256 and keeps the high 248 bits (the
// first 31 bytes, big-endian) of the digest, the documented, deterministic
// truncation rule that keeps the digest within a range small enough to fit
// a scalar field element without a modular reduction.
func sha256Truncated31(data []byte) []byte {
	sum := sha256.Sum256(data)
	out := make([]byte, 32)
	copy(out, sum[0:31])
	return out
}

// poseidon2Hash hashes data with Poseidon2 over the BN254 scalar field,
// the proving-field-native leaf hash spec §4.5 names as the default for
// proof systems built over this curve. The digest is returned as the
// field element's canonical big-endian byte representation.
func poseidon2Hash(data []byte) []byte {
	h := poseidon2.NewMerkleDamgardHasher()
	h.Write(data)
	sum := h.Sum(nil)

	var element fr.Element
	element.SetBytes(sum)
	bytes32 := element.Bytes()
	return bytes32[:]
}

// CombineHash computes an internal Merkle node's hash from its two
// children, H(left, right) with a fixed left/right order, under the same
// configured algorithm used for leaves.
func CombineHash(algo model.LeafHashAlgorithm, left, right []byte) ([]byte, error) {
	combined := make([]byte, 0, len(left)+len(right))
	combined = append(combined, left...)
	combined = append(combined, right...)
	return LeafHash(algo, combined)
}
