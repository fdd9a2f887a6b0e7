package storage

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

// Artifact encoding/decoding
func encodeArtifact(a any) ([]byte, error) {
	encOpts := cbor.CoreDetEncOptions()
	em, err := encOpts.EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return em.Marshal(a)
}

func decodeArtifact(data []byte, out any) error {
	return cbor.Unmarshal(data, out)
}

func hashKey(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:maxKeySize]
}

// processScope returns the fixed-width key scope of a process. Process IDs
// are variable length, so the raw ID cannot serve as a key prefix: a process
// whose ID is a byte prefix of another's would see the other's entries.
func processScope(pid []byte) []byte {
	return hashKey(pid)
}

// setArtifact encodes and stores an artifact under the given prefix and key.
func (s *Storage) setArtifact(prefix, key []byte, a any) error {
	val, err := encodeArtifact(a)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, val); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// getArtifact retrieves and decodes an artifact. Returns ErrNotFound if the
// key does not exist.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	rd := prefixeddb.NewPrefixedReader(s.db, prefix)
	data, err := rd.Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return err
	}
	return decodeArtifact(data, out)
}

// hasArtifact reports whether a key exists under the given prefix.
func (s *Storage) hasArtifact(prefix, key []byte) bool {
	rd := prefixeddb.NewPrefixedReader(s.db, prefix)
	_, err := rd.Get(key)
	return err == nil
}

// deleteArtifact removes an artifact. Returns ErrNotFound if the key does
// not exist.
func (s *Storage) deleteArtifact(prefix, key []byte) error {
	if !s.hasArtifact(prefix, key) {
		return ErrNotFound
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Delete(key); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// listArtifacts returns the keys stored under the given prefix, optionally
// filtered by a key prefix.
func (s *Storage) listArtifacts(prefix, keyPrefix []byte) ([][]byte, error) {
	rd := prefixeddb.NewPrefixedReader(s.db, prefix)
	var keys [][]byte
	if err := rd.Iterate(keyPrefix, func(k, _ []byte) bool {
		key := make([]byte, 0, len(keyPrefix)+len(k))
		key = append(key, keyPrefix...)
		key = append(key, k...)
		keys = append(keys, key)
		return true
	}); err != nil {
		return nil, err
	}
	return keys, nil
}

// setReservation marks a queue element as being processed. The value is the
// reservation timestamp, so stale reservations can be recovered.
func (s *Storage) setReservation(prefix, key []byte) error {
	if s.isReserved(prefix, key) {
		return fmt.Errorf("reservation already exists")
	}
	ts := make([]byte, 8)
	binary.BigEndian.PutUint64(ts, uint64(time.Now().Unix()))
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, ts); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// isReserved reports whether a queue element has an active reservation.
func (s *Storage) isReserved(prefix, key []byte) bool {
	return s.hasArtifact(prefix, key)
}

// releaseStaleReservations deletes reservations older than maxAge, making
// their elements available again. Returns the number of released keys.
func (s *Storage) releaseStaleReservations(prefix []byte, maxAge time.Duration) (int, error) {
	rd := prefixeddb.NewPrefixedReader(s.db, prefix)
	deadline := time.Now().Add(-maxAge).Unix()
	var stale [][]byte
	if err := rd.Iterate(nil, func(k, v []byte) bool {
		if len(v) == 8 && int64(binary.BigEndian.Uint64(v)) < deadline {
			key := make([]byte, len(k))
			copy(key, k)
			stale = append(stale, key)
		}
		return true
	}); err != nil {
		return 0, err
	}
	for _, k := range stale {
		if err := s.deleteArtifact(prefix, k); err != nil && !errors.Is(err, ErrNotFound) {
			return 0, err
		}
	}
	return len(stale), nil
}
