// Package state maintains the tamper-evident digest of a process nullifier
// ledger. Every accepted nullifier becomes a leaf of a per-process arbo
// Merkle tree; the tree root is the published digest, so adding, removing or
// mutating any recorded entry changes the digest.
package state

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"

	"github.com/vocdoni/arbo"
	"github.com/vocdoni/nullifier-registry/types"
	"github.com/vocdoni/nullifier-registry/util"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

const (
	// MaxLevels is the depth of the ledger digest tree.
	MaxLevels = types.LedgerTreeMaxLevels
	// MaxKeyLen is ceil(MaxLevels/8).
	MaxKeyLen = (MaxLevels + 7) / 8
)

// hashFunc is the hash function used in the ledger digest tree.
var hashFunc = arbo.HashFunctionPoseidon

// Reserved metadata leaves. Nullifier leaves are keyed by the (trunked)
// nullifier itself, which is a hash output and cannot collide with these
// single-byte keys.
var (
	KeyProcessID  = []byte{0x00}
	KeyCensusRoot = []byte{0x01}
)

// ErrNullifierExists is returned by AddNullifier when the nullifier is
// already part of the digest tree.
var ErrNullifierExists = fmt.Errorf("nullifier already exists in the ledger digest")

var statePrefix = []byte("st_")

// stateScope returns the fixed-width database prefix of a process digest
// tree. The process ID is hashed so that no process ID can be a byte prefix
// of another's scope.
func stateScope(processID []byte) []byte {
	h := sha256.Sum256(processID)
	return append(append([]byte{}, statePrefix...), h[:12]...)
}

// State is the digest accumulator for a single process ledger.
type State struct {
	tree      *arbo.Tree
	processID []byte
}

// New creates or opens the digest state for a process. The processID scopes
// all keys in the underlying database.
func New(database db.Database, processID []byte) (*State, error) {
	if !types.ValidProcessID(processID) {
		return nil, fmt.Errorf("invalid process id")
	}
	pdb := prefixeddb.NewPrefixedDatabase(database, stateScope(processID))
	tree, err := arbo.NewTree(arbo.Config{
		Database:     pdb,
		MaxLevels:    MaxLevels,
		HashFunction: hashFunc,
	})
	if err != nil {
		return nil, err
	}
	return &State{
		tree:      tree,
		processID: processID,
	}, nil
}

// Purge removes every key of a process digest tree from the database. The
// caller must drop any open State over the same process before reusing it.
func Purge(database db.Database, processID []byte) (int, error) {
	pdb := prefixeddb.NewPrefixedDatabase(database, stateScope(processID))
	wtx := pdb.WriteTx()
	count := 0
	err := pdb.Iterate(nil, func(k, _ []byte) bool {
		if err := wtx.Delete(k); err != nil {
			return false
		}
		count++
		return true
	})
	if err != nil {
		wtx.Discard()
		return 0, err
	}
	return count, wtx.Commit()
}

// Initialize binds the digest to its process and census root. It must be
// called exactly once, on a fresh state.
func (o *State) Initialize(censusRoot []byte) error {
	if o.Initialized() {
		return fmt.Errorf("state already initialized")
	}
	if err := o.tree.Add(KeyProcessID, encodeLeafValue(new(big.Int).SetBytes(o.processID))); err != nil {
		return err
	}
	if err := o.tree.Add(KeyCensusRoot, encodeLeafValue(new(big.Int).SetBytes(censusRoot))); err != nil {
		return err
	}
	return nil
}

// Initialized reports whether the state carries its metadata leaves.
func (o *State) Initialized() bool {
	_, _, err := o.tree.Get(KeyProcessID)
	return err == nil
}

// nullifierKey trunks a nullifier to the tree key length.
func nullifierKey(nullifier []byte) []byte {
	if len(nullifier) <= MaxKeyLen {
		return nullifier
	}
	return nullifier[:MaxKeyLen]
}

// encodeLeafValue reduces a big integer into the tree hash field and encodes
// it the way arbo expects leaf values.
func encodeLeafValue(v *big.Int) []byte {
	return arbo.BigIntToBytes(hashFunc.Len(), util.BigToFF(v))
}

// EntryValue computes the leaf value bound to a ledger entry: a field
// element derived from the nullifier and its acceptance time. Rewriting a
// stored entry without updating the tree makes the digest check fail.
func EntryValue(nullifier []byte, acceptedAtUnix int64) []byte {
	h := sha256.New()
	h.Write(nullifier)
	h.Write(new(big.Int).SetInt64(acceptedAtUnix).Bytes())
	return encodeLeafValue(new(big.Int).SetBytes(h.Sum(nil)))
}

// AddNullifier folds an accepted nullifier into the digest. It returns
// ErrNullifierExists if the nullifier is already present.
func (o *State) AddNullifier(nullifier []byte, acceptedAtUnix int64) error {
	if len(nullifier) == 0 {
		return fmt.Errorf("empty nullifier")
	}
	key := nullifierKey(nullifier)
	if _, _, err := o.tree.Get(key); err == nil {
		return ErrNullifierExists
	} else if !errors.Is(err, arbo.ErrKeyNotFound) {
		return err
	}
	return o.tree.Add(key, EntryValue(nullifier, acceptedAtUnix))
}

// ContainsNullifier reports whether the nullifier is part of the digest.
func (o *State) ContainsNullifier(nullifier []byte) bool {
	_, _, err := o.tree.Get(nullifierKey(nullifier))
	return err == nil
}

// Root returns the current digest.
func (o *State) Root() (types.HexBytes, error) {
	return o.tree.Root()
}

// RootAsBigInt returns the current digest as a big integer.
func (o *State) RootAsBigInt() (*big.Int, error) {
	root, err := o.tree.Root()
	if err != nil {
		return nil, err
	}
	return arbo.BytesToBigInt(root), nil
}

// EntryCount returns the number of nullifier leaves in the digest tree,
// excluding the metadata leaves.
func (o *State) EntryCount() (int, error) {
	n, err := o.tree.GetNLeafs()
	if err != nil {
		return 0, err
	}
	if o.Initialized() {
		n -= 2
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}
