package types

// CensusProof is the struct to represent a proof of inclusion in the census
// tree. It is provided by the voter alongside a proof bundle to demonstrate
// eligibility for the process. The proof is scoped to the Root it was
// generated against; verifiers must always check it against an explicitly
// supplied root, never an implicit latest one.
type CensusProof struct {
	Root     HexBytes `json:"root"`
	Key      HexBytes `json:"key"`
	Value    HexBytes `json:"value"`
	Siblings HexBytes `json:"siblings"`
	Weight   *BigInt  `json:"weight"`
}
