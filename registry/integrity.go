package registry

import (
	"fmt"
	"os"

	"github.com/vocdoni/nullifier-registry/log"
	"github.com/vocdoni/nullifier-registry/state"
	"github.com/vocdoni/nullifier-registry/types"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
)

// VerifyIntegrity replays every stored ledger entry of a process into a
// fresh digest tree and compares the result with both the live tree and the
// published digest. Any disagreement means an entry was added, removed or
// mutated out of band and returns ErrIntegrityViolation.
func (r *Registry) VerifyIntegrity(pid types.HexBytes) error {
	proc, err := r.stor.Process(pid)
	if err != nil {
		return ErrProcessNotFound
	}

	lock := r.processLock(pid)
	lock.Lock()
	defer lock.Unlock()

	entries, err := r.stor.ListLedgerEntries(pid)
	if err != nil {
		return err
	}

	st, err := r.openState(pid)
	if err != nil {
		return err
	}
	liveRoot, err := st.Root()
	if err != nil {
		return err
	}
	published, err := r.stor.Digest(pid)
	if err != nil {
		return fmt.Errorf("%w: missing published digest", ErrIntegrityViolation)
	}

	// Every stored entry must be a leaf of the live tree, and the counts
	// must agree, so extra leaves cannot hide behind a matching root.
	liveCount, err := st.EntryCount()
	if err != nil {
		return err
	}
	if liveCount != len(entries) {
		return fmt.Errorf("%w: %d stored entries but %d digest leaves",
			ErrIntegrityViolation, len(entries), liveCount)
	}

	replayRoot, err := r.replayDigest(proc, entries)
	if err != nil {
		return err
	}
	if !replayRoot.Equal(liveRoot) {
		return fmt.Errorf("%w: replayed digest does not match ledger digest", ErrIntegrityViolation)
	}
	if !replayRoot.Equal(published) {
		return fmt.Errorf("%w: replayed digest does not match published digest", ErrIntegrityViolation)
	}

	log.Debugw("ledger integrity verified",
		"process", pid.String(),
		"entries", len(entries),
		"digest", replayRoot.String())
	return nil
}

// replayDigest rebuilds the digest tree of a process from scratch in an
// ephemeral database.
func (r *Registry) replayDigest(proc *types.Process, entries []*types.LedgerEntry) (types.HexBytes, error) {
	tmpdir, err := os.MkdirTemp("", "ledger-replay-*")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(tmpdir); err != nil {
			log.Warnw("failed to remove replay directory", "dir", tmpdir, "err", err)
		}
	}()

	tmpdb, err := metadb.New(db.TypePebble, tmpdir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := tmpdb.Close(); err != nil {
			log.Warnw("failed to close replay database", "err", err)
		}
	}()

	replay, err := state.New(tmpdb, proc.ID)
	if err != nil {
		return nil, err
	}
	if err := replay.Initialize(proc.CensusRoot); err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if err := replay.AddNullifier(entry.Nullifier, entry.AcceptedAt.Unix()); err != nil {
			return nil, fmt.Errorf("%w: duplicate entry in stored ledger", ErrIntegrityViolation)
		}
	}
	return replay.Root()
}
