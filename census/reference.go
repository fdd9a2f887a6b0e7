package census

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/arbo"
	"github.com/vocdoni/nullifier-registry/types"
)

// CensusRef is a reference to a census (Merkle tree).
// It holds the Merkle tree and the current root, protected by a mutex.
type CensusRef struct {
	ID        uuid.UUID
	MaxLevels int
	HashType  string
	LastUsed  time.Time

	tree        *arbo.Tree
	treeMu      sync.Mutex
	currentRoot []byte

	updateRootRequest chan *updateRootRequest
}

// Tree returns the underlying arbo.Tree. Callers must not mutate the tree
// directly; use Insert or InsertBatch instead.
func (cr *CensusRef) Tree() *arbo.Tree {
	return cr.tree
}

// SetTree sets the arbo.Tree to the CensusRef.
func (cr *CensusRef) SetTree(tree *arbo.Tree) {
	cr.tree = tree
}

// Insert adds a new leaf to the census Merkle tree and requests a root
// update. It blocks until the root index reflects the new root, so a proof
// generated right after Insert returns is always resolvable.
func (cr *CensusRef) Insert(key, value []byte) error {
	cr.treeMu.Lock()
	err := cr.tree.Add(key, value)
	if err != nil {
		cr.treeMu.Unlock()
		return err
	}
	newRoot, err := cr.tree.Root()
	cr.treeMu.Unlock()
	if err != nil {
		return err
	}
	return cr.requestRootUpdate(newRoot)
}

// InsertBatch adds multiple leaves to the census Merkle tree in a single
// tree transaction. Returns the keys that failed to be added.
func (cr *CensusRef) InsertBatch(keys, values [][]byte) ([]arbo.Invalid, error) {
	if len(keys) != len(values) {
		return nil, fmt.Errorf("keys and values must have the same length")
	}
	cr.treeMu.Lock()
	invalid, err := cr.tree.AddBatch(keys, values)
	if err != nil {
		cr.treeMu.Unlock()
		return invalid, err
	}
	newRoot, err := cr.tree.Root()
	cr.treeMu.Unlock()
	if err != nil {
		return invalid, err
	}
	return invalid, cr.requestRootUpdate(newRoot)
}

// requestRootUpdate notifies the CensusDB worker of a new root and waits for
// the index update to complete.
func (cr *CensusRef) requestRootUpdate(newRoot []byte) error {
	if cr.updateRootRequest == nil {
		return fmt.Errorf("census reference is not attached to a database")
	}
	done := make(chan struct{})
	cr.updateRootRequest <- &updateRootRequest{
		censusID: cr.ID,
		newRoot:  newRoot,
		done:     done,
	}
	<-done
	return nil
}

// Root returns the current Merkle tree root.
func (cr *CensusRef) Root() types.HexBytes {
	cr.treeMu.Lock()
	defer cr.treeMu.Unlock()
	return append([]byte(nil), cr.currentRoot...)
}

// Size returns the number of leaves in the census Merkle tree.
func (cr *CensusRef) Size() int {
	cr.treeMu.Lock()
	defer cr.treeMu.Unlock()
	size, err := cr.tree.GetNLeafs()
	if err != nil {
		return 0
	}
	return size
}

// GenProof generates a Merkle proof of inclusion for the given leaf key.
func (cr *CensusRef) GenProof(leafKey []byte) (key, value, siblings []byte, inclusion bool, err error) {
	cr.treeMu.Lock()
	defer cr.treeMu.Unlock()
	return cr.tree.GenProof(leafKey)
}
