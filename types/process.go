package types

import (
	"encoding/json"
	"time"
)

// Process represents a voting process (a proposal) known to the registry.
// The census root binds the process to the eligibility set that was published
// when the process was created.
type Process struct {
	ID         HexBytes      `json:"id"`
	Title      string        `json:"title,omitempty"`
	CensusRoot HexBytes      `json:"censusRoot"`
	StartTime  time.Time     `json:"startTime"`
	Duration   time.Duration `json:"duration,omitempty"`
	VoteCount  uint64        `json:"voteCount"`
}

func (p *Process) String() string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(data)
}
