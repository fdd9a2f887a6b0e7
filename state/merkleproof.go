package state

import (
	"github.com/vocdoni/arbo"
	"github.com/vocdoni/nullifier-registry/types"
)

// ArboProof stores a digest tree proof in arbo native types.
type ArboProof struct {
	// Key+Value hashed through Siblings path, should produce Root hash
	Root      types.HexBytes `json:"root"`
	Siblings  types.HexBytes `json:"siblings"`
	Key       types.HexBytes `json:"key"`
	Value     types.HexBytes `json:"value"`
	Existence bool           `json:"existence"`
}

// GenNullifierProof generates an inclusion (or exclusion) proof for a
// nullifier against the current digest. The proof lets a third party check
// that a specific nullifier is part of the published digest without access
// to the ledger database.
func (o *State) GenNullifierProof(nullifier []byte) (*ArboProof, error) {
	root, err := o.tree.Root()
	if err != nil {
		return nil, err
	}
	leafK, leafV, siblings, existence, err := o.tree.GenProof(nullifierKey(nullifier))
	if err != nil {
		return nil, err
	}
	return &ArboProof{
		Root:      root,
		Siblings:  siblings,
		Key:       leafK,
		Value:     leafV,
		Existence: existence,
	}, nil
}

// VerifyNullifierProof checks an inclusion proof against an explicitly
// supplied digest.
func VerifyNullifierProof(proof *ArboProof, digest types.HexBytes) bool {
	if proof == nil || !proof.Existence || len(digest) == 0 {
		return false
	}
	valid, err := arbo.CheckProof(hashFunc, proof.Key, proof.Value, digest, proof.Siblings)
	if err != nil {
		return false
	}
	return valid
}
