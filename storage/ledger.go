package storage

import (
	"fmt"

	"github.com/vocdoni/nullifier-registry/types"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// ledgerKey composes the storage key of a ledger entry: the fixed-width
// process scope followed by the nullifier, so entries of a process form a
// contiguous key range that no other process can reach.
func ledgerKey(pid, nullifier types.HexBytes) []byte {
	scope := processScope(pid)
	key := make([]byte, 0, len(scope)+len(nullifier))
	key = append(key, scope...)
	return append(key, nullifier...)
}

// SetLedgerEntry stores an accepted ledger entry. The caller is responsible
// for the at-most-once guarantee; this method blindly overwrites.
func (s *Storage) SetLedgerEntry(entry *types.LedgerEntry) error {
	if entry == nil {
		return fmt.Errorf("nil ledger entry")
	}
	return s.setArtifact(ledgerPrefix, ledgerKey(entry.ProcessID, entry.Nullifier), entry)
}

// CommitLedgerEntry records an accepted vote in a single write transaction:
// the ledger entry, the incremented vote counter of the process and the new
// published digest land together or not at all, so an interruption cannot
// leave the store internally divergent.
func (s *Storage) CommitLedgerEntry(entry *types.LedgerEntry, digest types.HexBytes) error {
	if entry == nil {
		return fmt.Errorf("nil ledger entry")
	}
	proc, err := s.Process(entry.ProcessID)
	if err != nil {
		return err
	}
	proc.VoteCount++
	entryVal, err := encodeArtifact(entry)
	if err != nil {
		return err
	}
	procVal, err := encodeArtifact(proc)
	if err != nil {
		return err
	}
	digestVal, err := encodeArtifact(digest)
	if err != nil {
		return err
	}
	tx := s.db.WriteTx()
	if err := prefixeddb.NewPrefixedWriteTx(tx, ledgerPrefix).Set(
		ledgerKey(entry.ProcessID, entry.Nullifier), entryVal); err != nil {
		tx.Discard()
		return err
	}
	if err := prefixeddb.NewPrefixedWriteTx(tx, processPrefix).Set(entry.ProcessID, procVal); err != nil {
		tx.Discard()
		return err
	}
	if err := prefixeddb.NewPrefixedWriteTx(tx, digestPrefix).Set(entry.ProcessID, digestVal); err != nil {
		tx.Discard()
		return err
	}
	return tx.Commit()
}

// LedgerEntry retrieves the ledger entry of a nullifier within a process.
// Returns ErrNotFound if the nullifier was never accepted for that process.
func (s *Storage) LedgerEntry(pid, nullifier types.HexBytes) (*types.LedgerEntry, error) {
	entry := &types.LedgerEntry{}
	if err := s.getArtifact(ledgerPrefix, ledgerKey(pid, nullifier), entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// HasNullifier reports whether a nullifier is already recorded for a process.
func (s *Storage) HasNullifier(pid, nullifier types.HexBytes) bool {
	return s.hasArtifact(ledgerPrefix, ledgerKey(pid, nullifier))
}

// ListLedgerEntries returns every accepted entry of a process in key order.
func (s *Storage) ListLedgerEntries(pid types.HexBytes) ([]*types.LedgerEntry, error) {
	keys, err := s.listArtifacts(ledgerPrefix, processScope(pid))
	if err != nil {
		return nil, err
	}
	entries := make([]*types.LedgerEntry, 0, len(keys))
	for _, k := range keys {
		entry := &types.LedgerEntry{}
		if err := s.getArtifact(ledgerPrefix, k, entry); err != nil {
			return nil, fmt.Errorf("read ledger entry %x: %w", k, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DeleteLedgerEntries removes every accepted entry of a process and returns
// the number of entries removed.
func (s *Storage) DeleteLedgerEntries(pid types.HexBytes) (int, error) {
	keys, err := s.listArtifacts(ledgerPrefix, processScope(pid))
	if err != nil {
		return 0, err
	}
	for i, k := range keys {
		if err := s.deleteArtifact(ledgerPrefix, k); err != nil {
			return i, fmt.Errorf("delete ledger entry %x: %w", k, err)
		}
	}
	return len(keys), nil
}

// CountLedgerEntries returns the number of accepted entries of a process.
func (s *Storage) CountLedgerEntries(pid types.HexBytes) (int, error) {
	keys, err := s.listArtifacts(ledgerPrefix, processScope(pid))
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

// SetDigest publishes the current ledger digest of a process.
func (s *Storage) SetDigest(pid, digest types.HexBytes) error {
	return s.setArtifact(digestPrefix, pid, digest)
}

// Digest retrieves the published ledger digest of a process.
// Returns ErrNotFound if no digest was ever published.
func (s *Storage) Digest(pid types.HexBytes) (types.HexBytes, error) {
	var digest types.HexBytes
	if err := s.getArtifact(digestPrefix, pid, &digest); err != nil {
		return nil, err
	}
	return digest, nil
}
