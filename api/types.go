package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/nullifier-registry/types"
)

// NewCensus is the response to a new census creation request.
type NewCensus struct {
	Census uuid.UUID `json:"census"`
}

// CensusRoot is the response to a census root request.
type CensusRoot struct {
	Root types.HexBytes `json:"root"`
}

// CensusParticipant is a participant in a census.
type CensusParticipant struct {
	Key    types.HexBytes `json:"key"`
	Weight *types.BigInt  `json:"weight,omitempty"`
}

// CensusParticipants is a list of participants in a census.
type CensusParticipants struct {
	Participants []*CensusParticipant `json:"participants"`
}

// RegisterRequest enrolls a single voter commitment in a census.
type RegisterRequest struct {
	Commitment types.HexBytes `json:"commitment"`
	Weight     *types.BigInt  `json:"weight,omitempty"`
}

// NewProcess is the request to create a voting process.
type NewProcess struct {
	Title      string         `json:"title"`
	CensusRoot types.HexBytes `json:"censusRoot"`
	StartTime  time.Time      `json:"startTime,omitempty"`
	Duration   time.Duration  `json:"duration,omitempty"`
}

// ProcessResponse is the response to a process creation or info request.
type ProcessResponse struct {
	Process *types.Process `json:"process"`
	Digest  types.HexBytes `json:"digest,omitempty"`
}

// ProcessList is the response to a process listing request.
type ProcessList struct {
	Processes []types.HexBytes `json:"processes"`
}

// VoteResponse is the response to a vote submission.
type VoteResponse struct {
	Nullifier  types.HexBytes `json:"nullifier"`
	AcceptedAt time.Time      `json:"acceptedAt,omitempty"`
	Queued     bool           `json:"queued,omitempty"`
}

// VoteStatusResponse reports whether a nullifier can still vote.
type VoteStatusResponse struct {
	Status     types.VoteStatus `json:"status"`
	AcceptedAt *time.Time       `json:"acceptedAt,omitempty"`
}

// DigestResponse is the published ledger digest of a process.
type DigestResponse struct {
	ProcessID types.HexBytes `json:"processId"`
	Digest    types.HexBytes `json:"digest"`
	Entries   int            `json:"entries"`
}

// IntegrityResponse is the outcome of a ledger integrity check.
type IntegrityResponse struct {
	ProcessID types.HexBytes `json:"processId"`
	Valid     bool           `json:"valid"`
	Entries   int            `json:"entries"`
}
