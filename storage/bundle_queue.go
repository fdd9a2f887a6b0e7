package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/nullifier-registry/types"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// PushBundle stores a new proof bundle into the pending queue.
func (s *Storage) PushBundle(b *types.ProofBundle) error {
	if b == nil {
		return fmt.Errorf("nil bundle")
	}
	val, err := encodeArtifact(b)
	if err != nil {
		return fmt.Errorf("encode bundle: %w", err)
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), bundlePrefix)
	// key with the fixed-width process scope as prefix so workers can drain
	// per process
	key := append(append([]byte{}, processScope(b.ProcessID)...), hashKey(val)...)
	if err := wTx.Set(key, val); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// NextBundle returns the next non-reserved pending bundle, creates a
// reservation, and returns it along with its queue key. The key is used to
// mark the bundle as done after processing. If processID is not nil, only
// bundles of that process are considered. Returns ErrNoMoreElements when
// nothing is available.
func (s *Storage) NextBundle(processID types.HexBytes) (*types.ProofBundle, []byte, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	var scope []byte
	if processID != nil {
		scope = processScope(processID)
	}
	pr := prefixeddb.NewPrefixedReader(s.db, bundlePrefix)
	var chosenKey, chosenVal []byte
	if err := pr.Iterate(scope, func(k, v []byte) bool {
		key := append(append([]byte{}, scope...), k...)
		// check if reserved
		if s.isReserved(bundleReservPrefix, key) {
			return true
		}
		chosenKey = key
		chosenVal = v
		return false
	}); err != nil {
		return nil, nil, fmt.Errorf("iterate bundles: %w", err)
	}
	if chosenVal == nil {
		return nil, nil, ErrNoMoreElements
	}

	var b types.ProofBundle
	if err := decodeArtifact(chosenVal, &b); err != nil {
		return nil, nil, fmt.Errorf("decode bundle: %w", err)
	}

	// set reservation
	if err := s.setReservation(bundleReservPrefix, chosenKey); err != nil {
		return nil, nil, ErrNoMoreElements
	}

	return &b, chosenKey, nil
}

// MarkBundleDone removes a processed bundle and its reservation from the
// queue, whatever the outcome of the processing was.
func (s *Storage) MarkBundleDone(k []byte) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	// remove reservation
	if err := s.deleteArtifact(bundleReservPrefix, k); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete reservation: %w", err)
	}
	// remove from pending queue
	if err := s.deleteArtifact(bundlePrefix, k); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete pending bundle: %w", err)
	}
	return nil
}

// CountPendingBundles returns the number of queued bundles for a process, or
// for all processes when processID is nil. Reserved bundles are included.
func (s *Storage) CountPendingBundles(processID types.HexBytes) int {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	var scope []byte
	if processID != nil {
		scope = processScope(processID)
	}
	rd := prefixeddb.NewPrefixedReader(s.db, bundlePrefix)
	count := 0
	if err := rd.Iterate(scope, func(_, _ []byte) bool {
		count++
		return true
	}); err != nil {
		return 0
	}
	return count
}

// RecoverStaleReservations releases bundle reservations older than maxAge so
// that a crashed worker does not leave bundles stuck forever.
func (s *Storage) RecoverStaleReservations(maxAge time.Duration) (int, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return s.releaseStaleReservations(bundleReservPrefix, maxAge)
}
