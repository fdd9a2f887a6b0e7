package census

import (
	"github.com/vocdoni/arbo"
	"github.com/vocdoni/nullifier-registry/types"
)

// VerifyProof checks a membership proof against an explicitly supplied root.
// The root embedded in the proof is ignored: eligibility is always judged
// against the root the caller trusts, so a proof generated for a different
// census (or a stale snapshot the caller rejects) fails here.
func VerifyProof(proof *types.CensusProof, root types.HexBytes) bool {
	if proof == nil || len(root) == 0 {
		return false
	}
	valid, err := arbo.CheckProof(defaultHashFunction, proof.Key, proof.Value, root, proof.Siblings)
	if err != nil {
		return false
	}
	return valid
}
