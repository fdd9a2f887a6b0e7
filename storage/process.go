package storage

import (
	"fmt"

	"github.com/vocdoni/nullifier-registry/types"
)

// Process retrieves the process data from the storage.
// It returns nil data and ErrNotFound if the process is not found.
func (s *Storage) Process(pid types.HexBytes) (*types.Process, error) {
	p := &types.Process{}
	if err := s.getArtifact(processPrefix, pid, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SetProcess stores a process into the storage.
func (s *Storage) SetProcess(data *types.Process) error {
	if data == nil {
		return fmt.Errorf("nil process data")
	}
	if !types.ValidProcessID(data.ID) {
		return fmt.Errorf("invalid process id")
	}
	return s.setArtifact(processPrefix, data.ID, data)
}

// ListProcesses returns the list of process IDs stored in the storage.
func (s *Storage) ListProcesses() ([][]byte, error) {
	return s.listArtifacts(processPrefix, nil)
}

// IncProcessVoteCount increments the accepted vote counter of a process.
func (s *Storage) IncProcessVoteCount(pid types.HexBytes) error {
	p, err := s.Process(pid)
	if err != nil {
		return err
	}
	p.VoteCount++
	return s.setArtifact(processPrefix, pid, p)
}

// ResetProcessVoteCount sets the accepted vote counter of a process to zero.
func (s *Storage) ResetProcessVoteCount(pid types.HexBytes) error {
	p, err := s.Process(pid)
	if err != nil {
		return err
	}
	p.VoteCount = 0
	return s.setArtifact(processPrefix, pid, p)
}
