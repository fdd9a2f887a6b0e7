// Package registry implements the nullifier ledger: the authoritative record
// of which pseudonyms have already voted in each process. Submissions are
// verified, then checked and inserted atomically under a per-process lock, so
// concurrent duplicates collapse to exactly one accepted entry.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/nullifier-registry/census"
	"github.com/vocdoni/nullifier-registry/log"
	"github.com/vocdoni/nullifier-registry/state"
	"github.com/vocdoni/nullifier-registry/storage"
	"github.com/vocdoni/nullifier-registry/types"
	"github.com/vocdoni/nullifier-registry/verifier"
)

var (
	// ErrProcessNotFound is returned when the process does not exist.
	ErrProcessNotFound = fmt.Errorf("process not found")
	// ErrProcessNotActive is returned when the process voting window is
	// closed or has not opened yet.
	ErrProcessNotActive = fmt.Errorf("process is not accepting votes")
	// ErrDoubleVote is returned when the nullifier is already recorded for
	// the process. It is deliberately distinct from a verification failure.
	ErrDoubleVote = fmt.Errorf("nullifier already used for this process")
	// ErrIntegrityViolation is returned when the stored ledger and its
	// published digest disagree. It is fatal for the affected process.
	ErrIntegrityViolation = fmt.Errorf("ledger integrity violation")
)

// Registry is the nullifier ledger over a shared key-value store.
type Registry struct {
	stor     *storage.Storage
	censuses *census.CensusDB

	mu        sync.Mutex
	states    map[string]*state.State
	processMu map[string]*sync.Mutex
}

// New creates a Registry over the given storage and census database.
func New(stor *storage.Storage, censuses *census.CensusDB) *Registry {
	return &Registry{
		stor:      stor,
		censuses:  censuses,
		states:    make(map[string]*state.State),
		processMu: make(map[string]*sync.Mutex),
	}
}

// CreateProcess registers a new voting process bound to a census root and
// opens its empty ledger. The initial digest is published immediately.
func (r *Registry) CreateProcess(proc *types.Process) error {
	if proc == nil || !types.ValidProcessID(proc.ID) {
		return fmt.Errorf("invalid process")
	}
	if len(proc.CensusRoot) == 0 {
		return fmt.Errorf("process requires a census root")
	}
	if _, err := r.stor.Process(proc.ID); err == nil {
		return fmt.Errorf("process %s already exists", proc.ID.String())
	}

	st, err := r.openState(proc.ID)
	if err != nil {
		return err
	}
	if err := st.Initialize(proc.CensusRoot); err != nil {
		return err
	}
	if err := r.stor.SetProcess(proc); err != nil {
		return err
	}
	root, err := st.Root()
	if err != nil {
		return err
	}
	if err := r.stor.SetDigest(proc.ID, root); err != nil {
		return err
	}
	log.Infow("process created",
		"process", proc.ID.String(),
		"censusRoot", proc.CensusRoot.String(),
		"digest", root.String())
	return nil
}

// Process returns the stored process data.
func (r *Registry) Process(pid types.HexBytes) (*types.Process, error) {
	proc, err := r.stor.Process(pid)
	if err != nil {
		return nil, ErrProcessNotFound
	}
	return proc, nil
}

// ListProcesses returns the IDs of every known process.
func (r *Registry) ListProcesses() ([][]byte, error) {
	return r.stor.ListProcesses()
}

// Submit verifies a proof bundle and, if valid, atomically records its
// nullifier. The check-and-insert is serialized per process: of N concurrent
// submissions with the same nullifier exactly one succeeds and the rest get
// ErrDoubleVote.
func (r *Registry) Submit(bundle *types.ProofBundle) (*types.LedgerEntry, error) {
	if bundle == nil {
		return nil, verifier.ErrMalformedBundle
	}
	proc, err := r.stor.Process(bundle.ProcessID)
	if err != nil {
		return nil, ErrProcessNotFound
	}
	if !processActive(proc, time.Now()) {
		return nil, ErrProcessNotActive
	}

	// Full verification happens before taking the process lock: it is the
	// expensive part and needs no ledger access.
	if err := verifier.Verify(bundle, proc.ID, proc.CensusRoot); err != nil {
		return nil, err
	}

	lock := r.processLock(bundle.ProcessID)
	lock.Lock()
	defer lock.Unlock()

	if r.stor.HasNullifier(bundle.ProcessID, bundle.Nullifier) {
		return nil, ErrDoubleVote
	}

	st, err := r.openState(bundle.ProcessID)
	if err != nil {
		return nil, err
	}

	entry := &types.LedgerEntry{
		Nullifier:  bundle.Nullifier,
		ProcessID:  bundle.ProcessID,
		AcceptedAt: time.Now().Truncate(time.Second),
	}
	if err := st.AddNullifier(entry.Nullifier, entry.AcceptedAt.Unix()); err != nil {
		// The digest tree is the second double-vote barrier; disagreement
		// with the entry store means the ledger is corrupt.
		if err == state.ErrNullifierExists {
			return nil, ErrIntegrityViolation
		}
		return nil, err
	}
	root, err := st.Root()
	if err != nil {
		return nil, err
	}
	// Entry, counter and digest are committed in one transaction. The only
	// remaining window is between the tree insert above and this commit;
	// VerifyIntegrity detects it as a tree/store divergence.
	if err := r.stor.CommitLedgerEntry(entry, root); err != nil {
		return nil, err
	}

	log.Debugw("vote accepted",
		"process", bundle.ProcessID.String(),
		"nullifier", bundle.Nullifier.String(),
		"digest", root.String())
	return entry, nil
}

// Status reports whether the nullifier can still vote in the process. When
// the vote was already cast, the recorded ledger entry is returned as well.
func (r *Registry) Status(pid, nullifier types.HexBytes) (types.VoteStatus, *types.LedgerEntry, error) {
	if _, err := r.stor.Process(pid); err != nil {
		return "", nil, ErrProcessNotFound
	}
	entry, err := r.stor.LedgerEntry(pid, nullifier)
	if err != nil {
		if err == storage.ErrNotFound {
			return types.VoteStatusCanVote, nil, nil
		}
		return "", nil, err
	}
	return types.VoteStatusAlreadyVoted, entry, nil
}

// Digest returns the published tamper-evident digest of a process ledger.
func (r *Registry) Digest(pid types.HexBytes) (types.HexBytes, error) {
	if _, err := r.stor.Process(pid); err != nil {
		return nil, ErrProcessNotFound
	}
	return r.stor.Digest(pid)
}

// NullifierProof generates an inclusion proof of an accepted nullifier
// against the current digest.
func (r *Registry) NullifierProof(pid, nullifier types.HexBytes) (*state.ArboProof, error) {
	if _, err := r.stor.Process(pid); err != nil {
		return nil, ErrProcessNotFound
	}
	lock := r.processLock(pid)
	lock.Lock()
	defer lock.Unlock()
	st, err := r.openState(pid)
	if err != nil {
		return nil, err
	}
	return st.GenNullifierProof(nullifier)
}

// Reset wipes the ledger of a process: every accepted entry, the digest tree
// and the vote counter. A fresh empty digest is published afterwards. This
// destroys the double-vote guarantee for everything recorded so far; it is
// meant for tests and demo environments, never for live processes.
func (r *Registry) Reset(pid types.HexBytes) error {
	proc, err := r.stor.Process(pid)
	if err != nil {
		return ErrProcessNotFound
	}

	lock := r.processLock(pid)
	lock.Lock()
	defer lock.Unlock()

	removed, err := r.stor.DeleteLedgerEntries(pid)
	if err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.states, pid.String())
	r.mu.Unlock()
	if _, err := state.Purge(r.stor.Database(), pid); err != nil {
		return err
	}

	st, err := r.openState(pid)
	if err != nil {
		return err
	}
	if err := st.Initialize(proc.CensusRoot); err != nil {
		return err
	}
	if err := r.stor.ResetProcessVoteCount(pid); err != nil {
		return err
	}
	root, err := st.Root()
	if err != nil {
		return err
	}
	if err := r.stor.SetDigest(pid, root); err != nil {
		return err
	}
	log.Warnw("process ledger reset",
		"process", pid.String(),
		"removedEntries", removed,
		"digest", root.String())
	return nil
}

// processLock returns the mutex serializing ledger writes for a process.
func (r *Registry) processLock(pid types.HexBytes) *sync.Mutex {
	key := pid.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.processMu[key]
	if !ok {
		lock = &sync.Mutex{}
		r.processMu[key] = lock
	}
	return lock
}

// openState returns the digest state of a process, opening it on first use.
func (r *Registry) openState(pid types.HexBytes) (*state.State, error) {
	key := pid.String()
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[key]; ok {
		return st, nil
	}
	st, err := state.New(r.stor.Database(), pid)
	if err != nil {
		return nil, err
	}
	r.states[key] = st
	return st, nil
}

// processActive reports whether the process accepts votes at the given time.
// A process with a zero start time is always open; a zero duration means no
// deadline.
func processActive(proc *types.Process, now time.Time) bool {
	if !proc.StartTime.IsZero() && now.Before(proc.StartTime) {
		return false
	}
	if proc.Duration > 0 && !proc.StartTime.IsZero() && now.After(proc.StartTime.Add(proc.Duration)) {
		return false
	}
	return true
}
