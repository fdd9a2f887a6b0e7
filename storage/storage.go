// storage package contains all the artifacts that are stored in the database,
// but also is an abstraction of a queue for the processing of them by
// different services. The storage package includes a prefixed key-value store
// that allows to store the different types of artifacts in the database. The
// following prefixes are used:
//   - 'p/' for processes
//   - 'n/' for accepted ledger entries (keyed by processID + nullifier)
//   - 'd/' for published ledger digests
//   - 'b/' for pending proof bundles (queued)
//   - 'br/' for pending proof bundle reservations
//
// Note: Not all the prefixes support queue operations, only the ones that are
// used in the processing of the artifacts.
package storage

import (
	"fmt"
	"sync"

	"go.vocdoni.io/dvote/db"
)

var (
	// Prefixes for the keys in the database.
	processPrefix      = []byte("p/")
	ledgerPrefix       = []byte("n/")
	digestPrefix       = []byte("d/")
	bundlePrefix       = []byte("b/")
	bundleReservPrefix = []byte("br/")
)

const (
	// maxKeySize is the maximum size of the key in bytes. It is used to
	// generate the key of the artifacts stored in the database by truncating
	// the hash of the artifact itself.
	maxKeySize = 12
)

var (
	// ErrNotFound is returned when the artifact is not found in the storage.
	ErrNotFound = fmt.Errorf("not found")
	// ErrNoMoreElements is returned by queue operations when every pending
	// element is reserved or the queue is empty.
	ErrNoMoreElements = fmt.Errorf("no more elements")
)

// Storage wraps the basic methods to interact with the underlying key-value
// store. Queue operations are serialized by a global lock.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
}

// New creates a new Storage instance.
func New(db db.Database) *Storage {
	return &Storage{db: db}
}

// Close closes the storage.
func (s *Storage) Close() {
	s.db.Close()
}

// Database returns the underlying key-value store, so other components (the
// census, the ledger digest trees) can share the same physical database.
func (s *Storage) Database() db.Database {
	return s.db
}
