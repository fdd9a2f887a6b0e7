package types

import "time"

const (
	// CensusTreeMaxLevels is the maximum number of levels in the census merkle tree.
	CensusTreeMaxLevels = 160
	// LedgerTreeMaxLevels is the maximum number of levels in the ledger digest tree.
	LedgerTreeMaxLevels = 160
	// CensusKeyMaxLen is the maximum length of a census key in bytes.
	CensusKeyMaxLen = CensusTreeMaxLevels / 8
	// DigestLen is the length in bytes of every digest field carried by a
	// proof bundle (nullifier, proofs, commitments and nonce).
	DigestLen = 32
	// MaxProcessIDLen is the maximum length of a process identifier in bytes.
	MaxProcessIDLen = 32
	// MaxTimestampSkew is the maximum accepted distance between the bundle
	// timestamp and the verifier clock, in either direction.
	MaxTimestampSkew = time.Hour
)

const (
	// VoteChoiceNo is the binary choice for a negative vote.
	VoteChoiceNo = 0
	// VoteChoiceYes is the binary choice for a positive vote.
	VoteChoiceYes = 1
)

// ValidProcessID reports whether the given process identifier is non-empty
// and within the accepted length bounds.
func ValidProcessID(pid HexBytes) bool {
	return len(pid) > 0 && len(pid) <= MaxProcessIDLen
}

// ValidVoteChoice reports whether the given vote choice is binary.
func ValidVoteChoice(choice int) bool {
	return choice == VoteChoiceNo || choice == VoteChoiceYes
}
