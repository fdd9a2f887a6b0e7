package types

import "time"

// VoteStatus is the status of a voter for a given process, as reported by the
// status query. Only the boolean outcome is exposed, never the nullifier of
// another voter.
type VoteStatus string

const (
	// VoteStatusCanVote means no accepted entry exists for the nullifier.
	VoteStatusCanVote VoteStatus = "can-vote"
	// VoteStatusAlreadyVoted means the nullifier is already in the ledger.
	VoteStatusAlreadyVoted VoteStatus = "already-voted"
)

// ProofBundle is the envelope a voter submits to cast a vote on a process.
// Every digest field is DigestLen bytes wide. None of the fields contains the
// voter secret or private key in cleartext or derivable form.
//
// The nullifier is a pure function of the voter secret and the process
// identifier, so the same voter always produces the same nullifier for the
// same process and a different one for any other process. The nonce and
// timestamp are freshness inputs for the attestation digests only; they are
// not nullifier inputs.
type ProofBundle struct {
	ProcessID      HexBytes    `json:"processId"`
	Nullifier      HexBytes    `json:"nullifier"`
	NullifierProof HexBytes    `json:"nullifierProof"`
	Commitment     HexBytes    `json:"commitment"`
	VoteCommitment HexBytes    `json:"voteCommitment"`
	RangeProof     HexBytes    `json:"rangeProof"`
	CensusProof    CensusProof `json:"censusProof"`
	MembershipHash HexBytes    `json:"membershipHash"`
	Nonce          HexBytes    `json:"nonce"`
	Timestamp      time.Time   `json:"timestamp"`
}

// LedgerEntry is an accepted vote record stored in the nullifier ledger.
// Entries are append-only; the set of stored nullifiers per process is the
// sole source of truth for double-vote prevention.
type LedgerEntry struct {
	Nullifier  HexBytes  `json:"nullifier"`
	ProcessID  HexBytes  `json:"processId"`
	AcceptedAt time.Time `json:"acceptedAt"`
}
