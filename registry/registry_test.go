package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/nullifier-registry/census"
	"github.com/vocdoni/nullifier-registry/crypto/credentials"
	"github.com/vocdoni/nullifier-registry/crypto/nullifier"
	"github.com/vocdoni/nullifier-registry/storage"
	"github.com/vocdoni/nullifier-registry/types"
	"github.com/vocdoni/nullifier-registry/util"
	"github.com/vocdoni/nullifier-registry/verifier"
	"go.vocdoni.io/dvote/db/metadb"
)

type testEnv struct {
	stor     *storage.Storage
	censuses *census.CensusDB
	registry *Registry
	censusID uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	kv := metadb.NewTest(t)
	stor := storage.New(kv)
	censuses := census.NewCensusDB(kv)
	censusID := uuid.New()
	if _, err := censuses.New(censusID); err != nil {
		t.Fatal(err)
	}
	return &testEnv{
		stor:     stor,
		censuses: censuses,
		registry: New(stor, censuses),
		censusID: censusID,
	}
}

// enroll issues a credential and registers it in the test census.
func (env *testEnv) enroll(t *testing.T) (*credentials.Credential, *types.CensusProof) {
	cred, err := credentials.Issue()
	if err != nil {
		t.Fatal(err)
	}
	proof, err := env.censuses.Register(env.censusID, cred.Commitment, nil)
	if err != nil {
		t.Fatal(err)
	}
	return cred, proof
}

// createProcess opens a process bound to the current census root.
func (env *testEnv) createProcess(t *testing.T) *types.Process {
	ref, err := env.censuses.Load(env.censusID)
	if err != nil {
		t.Fatal(err)
	}
	proc := &types.Process{
		ID:         util.RandomBytes(32),
		Title:      "test proposal",
		CensusRoot: ref.Root(),
	}
	if err := env.registry.CreateProcess(proc); err != nil {
		t.Fatal(err)
	}
	return proc
}

func TestSubmitAndDoubleVote(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)

	cred, _ := env.enroll(t)
	proc := env.createProcess(t)

	// The census proof must be generated against the process census root.
	proof, err := env.censuses.ProofByRoot(proc.CensusRoot, cred.Commitment)
	c.Assert(err, qt.IsNil)

	bundle, err := nullifier.Derive(cred, proc.ID, types.VoteChoiceYes, proof)
	c.Assert(err, qt.IsNil)

	entry, err := env.registry.Submit(bundle)
	c.Assert(err, qt.IsNil)
	c.Assert(entry.Nullifier.Equal(bundle.Nullifier), qt.IsTrue)

	// Same bundle again: double vote.
	_, err = env.registry.Submit(bundle)
	c.Assert(err, qt.ErrorIs, ErrDoubleVote)

	// A fresh bundle from the same credential carries the same nullifier
	// and is rejected too, regardless of the new nonce and choice.
	again, err := nullifier.Derive(cred, proc.ID, types.VoteChoiceNo, proof)
	c.Assert(err, qt.IsNil)
	_, err = env.registry.Submit(again)
	c.Assert(err, qt.ErrorIs, ErrDoubleVote)

	got, err := env.registry.Process(proc.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.VoteCount, qt.Equals, uint64(1))
}

func TestCrossProcessIndependence(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)

	cred, _ := env.enroll(t)
	procA := env.createProcess(t)
	procB := env.createProcess(t)

	proofA, err := env.censuses.ProofByRoot(procA.CensusRoot, cred.Commitment)
	c.Assert(err, qt.IsNil)
	proofB, err := env.censuses.ProofByRoot(procB.CensusRoot, cred.Commitment)
	c.Assert(err, qt.IsNil)

	bundleA, err := nullifier.Derive(cred, procA.ID, types.VoteChoiceYes, proofA)
	c.Assert(err, qt.IsNil)
	bundleB, err := nullifier.Derive(cred, procB.ID, types.VoteChoiceNo, proofB)
	c.Assert(err, qt.IsNil)

	// Voting in one process never blocks the other.
	_, err = env.registry.Submit(bundleA)
	c.Assert(err, qt.IsNil)
	_, err = env.registry.Submit(bundleB)
	c.Assert(err, qt.IsNil)
	c.Assert(bundleA.Nullifier.Equal(bundleB.Nullifier), qt.IsFalse)
}

func TestSubmitRejectsInvalidBundles(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)

	cred, _ := env.enroll(t)
	proc := env.createProcess(t)
	proof, err := env.censuses.ProofByRoot(proc.CensusRoot, cred.Commitment)
	c.Assert(err, qt.IsNil)

	// Unknown process.
	bundle, err := nullifier.Derive(cred, util.RandomBytes(32), types.VoteChoiceYes, proof)
	c.Assert(err, qt.IsNil)
	_, err = env.registry.Submit(bundle)
	c.Assert(err, qt.ErrorIs, ErrProcessNotFound)

	// Tampered nullifier.
	bundle, err = nullifier.Derive(cred, proc.ID, types.VoteChoiceYes, proof)
	c.Assert(err, qt.IsNil)
	bundle.Nullifier = util.RandomBytes(32)
	_, err = env.registry.Submit(bundle)
	c.Assert(err, qt.ErrorIs, verifier.ErrInvalidProof)

	// Credential outside the census.
	outsider, err := credentials.Issue()
	c.Assert(err, qt.IsNil)
	bundle, err = nullifier.Derive(outsider, proc.ID, types.VoteChoiceYes, proof)
	c.Assert(err, qt.IsNil)
	_, err = env.registry.Submit(bundle)
	c.Assert(err, qt.ErrorIs, verifier.ErrInvalidProof)

	// Nothing was recorded.
	got, err := env.registry.Process(proc.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.VoteCount, qt.Equals, uint64(0))
}

func TestConcurrentDuplicateSubmissions(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)

	cred, _ := env.enroll(t)
	proc := env.createProcess(t)
	proof, err := env.censuses.ProofByRoot(proc.CensusRoot, cred.Commitment)
	c.Assert(err, qt.IsNil)

	const workers = 16
	bundles := make([]*types.ProofBundle, workers)
	for i := range bundles {
		b, err := nullifier.Derive(cred, proc.ID, types.VoteChoiceYes, proof)
		c.Assert(err, qt.IsNil)
		bundles[i] = b
	}

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := range workers {
		wg.Add(1)
		go func(b *types.ProofBundle) {
			defer wg.Done()
			_, err := env.registry.Submit(b)
			results <- err
		}(bundles[i])
	}
	wg.Wait()
	close(results)

	// Exactly one submission wins; every other one is a double vote.
	accepted, doubles := 0, 0
	for err := range results {
		switch {
		case err == nil:
			accepted++
		case errors.Is(err, ErrDoubleVote):
			doubles++
		default:
			c.Fatalf("unexpected error: %v", err)
		}
	}
	c.Assert(accepted, qt.Equals, 1)
	c.Assert(doubles, qt.Equals, workers-1)

	got, err := env.registry.Process(proc.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.VoteCount, qt.Equals, uint64(1))
}

func TestStatus(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)

	cred, _ := env.enroll(t)
	proc := env.createProcess(t)
	proof, err := env.censuses.ProofByRoot(proc.CensusRoot, cred.Commitment)
	c.Assert(err, qt.IsNil)
	bundle, err := nullifier.Derive(cred, proc.ID, types.VoteChoiceYes, proof)
	c.Assert(err, qt.IsNil)

	status, entry, err := env.registry.Status(proc.ID, bundle.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.VoteStatusCanVote)
	c.Assert(entry, qt.IsNil)

	_, err = env.registry.Submit(bundle)
	c.Assert(err, qt.IsNil)

	status, entry, err = env.registry.Status(proc.ID, bundle.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.VoteStatusAlreadyVoted)
	c.Assert(entry, qt.IsNotNil)
	c.Assert(entry.Nullifier.Equal(bundle.Nullifier), qt.IsTrue)

	_, _, err = env.registry.Status(util.RandomBytes(32), bundle.Nullifier)
	c.Assert(err, qt.ErrorIs, ErrProcessNotFound)
}

func TestDigestEvolvesAndProves(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)
	proc := env.createProcess(t)

	initial, err := env.registry.Digest(proc.ID)
	c.Assert(err, qt.IsNil)

	cred, _ := env.enroll(t)
	// Enrollment moved the census root, but the first process stays pinned
	// to the empty census: no proof can target its root anymore.
	_, err = env.censuses.ProofByRoot(proc.CensusRoot, cred.Commitment)
	c.Assert(err, qt.IsNotNil)

	// A process created after enrollment picks up the new root.
	proc2 := env.createProcess(t)
	proof2, err := env.censuses.ProofByRoot(proc2.CensusRoot, cred.Commitment)
	c.Assert(err, qt.IsNil)
	bundle, err := nullifier.Derive(cred, proc2.ID, types.VoteChoiceYes, proof2)
	c.Assert(err, qt.IsNil)
	_, err = env.registry.Submit(bundle)
	c.Assert(err, qt.IsNil)

	digest, err := env.registry.Digest(proc2.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(digest.Equal(initial), qt.IsFalse)

	// The accepted nullifier is provable against the published digest.
	nproof, err := env.registry.NullifierProof(proc2.ID, bundle.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(nproof.Existence, qt.IsTrue)
}

func TestProcessLifecycle(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)

	cred, proof := env.enroll(t)
	ref, err := env.censuses.Load(env.censusID)
	c.Assert(err, qt.IsNil)

	// A process that has not started yet.
	notStarted := &types.Process{
		ID:         util.RandomBytes(32),
		CensusRoot: ref.Root(),
		StartTime:  time.Now().Add(time.Hour),
		Duration:   time.Hour,
	}
	c.Assert(env.registry.CreateProcess(notStarted), qt.IsNil)
	bundle, err := nullifier.Derive(cred, notStarted.ID, types.VoteChoiceYes, proof)
	c.Assert(err, qt.IsNil)
	_, err = env.registry.Submit(bundle)
	c.Assert(err, qt.ErrorIs, ErrProcessNotActive)

	// A process that already ended.
	ended := &types.Process{
		ID:         util.RandomBytes(32),
		CensusRoot: ref.Root(),
		StartTime:  time.Now().Add(-2 * time.Hour),
		Duration:   time.Hour,
	}
	c.Assert(env.registry.CreateProcess(ended), qt.IsNil)
	bundle, err = nullifier.Derive(cred, ended.ID, types.VoteChoiceYes, proof)
	c.Assert(err, qt.IsNil)
	_, err = env.registry.Submit(bundle)
	c.Assert(err, qt.ErrorIs, ErrProcessNotActive)

	// Creating twice fails.
	c.Assert(env.registry.CreateProcess(ended), qt.IsNotNil)
}

func TestReset(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)

	cred, _ := env.enroll(t)
	proc := env.createProcess(t)
	proof, err := env.censuses.ProofByRoot(proc.CensusRoot, cred.Commitment)
	c.Assert(err, qt.IsNil)

	bundle, err := nullifier.Derive(cred, proc.ID, types.VoteChoiceYes, proof)
	c.Assert(err, qt.IsNil)
	_, err = env.registry.Submit(bundle)
	c.Assert(err, qt.IsNil)

	votedDigest, err := env.registry.Digest(proc.ID)
	c.Assert(err, qt.IsNil)

	c.Assert(env.registry.Reset(proc.ID), qt.IsNil)

	// The ledger is empty again: status flips back, the counter is zero and
	// the republished digest no longer matches the one recorded after the
	// vote.
	status, _, err := env.registry.Status(proc.ID, bundle.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.VoteStatusCanVote)
	got, err := env.registry.Process(proc.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(got.VoteCount, qt.Equals, uint64(0))
	resetDigest, err := env.registry.Digest(proc.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(resetDigest.Equal(votedDigest), qt.IsFalse)

	// The same credential can vote again after the wipe.
	again, err := nullifier.Derive(cred, proc.ID, types.VoteChoiceNo, proof)
	c.Assert(err, qt.IsNil)
	_, err = env.registry.Submit(again)
	c.Assert(err, qt.IsNil)
	c.Assert(env.registry.VerifyIntegrity(proc.ID), qt.IsNil)

	// Unknown process cannot be reset.
	c.Assert(env.registry.Reset(util.RandomBytes(32)), qt.ErrorIs, ErrProcessNotFound)
}

// TestVoterJourney walks one credential through two proposals end to end,
// auditing the ledgers after every step.
func TestVoterJourney(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)

	cred, _ := env.enroll(t)
	p1 := env.createProcess(t)
	p2 := env.createProcess(t)

	audit := func() {
		c.Assert(env.registry.VerifyIntegrity(p1.ID), qt.IsNil)
		c.Assert(env.registry.VerifyIntegrity(p2.ID), qt.IsNil)
	}
	audit()

	proof1, err := env.censuses.ProofByRoot(p1.CensusRoot, cred.Commitment)
	c.Assert(err, qt.IsNil)
	bundle, err := nullifier.Derive(cred, p1.ID, types.VoteChoiceYes, proof1)
	c.Assert(err, qt.IsNil)
	_, err = env.registry.Submit(bundle)
	c.Assert(err, qt.IsNil)
	audit()

	retry, err := nullifier.Derive(cred, p1.ID, types.VoteChoiceNo, proof1)
	c.Assert(err, qt.IsNil)
	_, err = env.registry.Submit(retry)
	c.Assert(err, qt.ErrorIs, ErrDoubleVote)
	audit()

	proof2, err := env.censuses.ProofByRoot(p2.CensusRoot, cred.Commitment)
	c.Assert(err, qt.IsNil)
	other, err := nullifier.Derive(cred, p2.ID, types.VoteChoiceYes, proof2)
	c.Assert(err, qt.IsNil)
	_, err = env.registry.Submit(other)
	c.Assert(err, qt.IsNil)
	audit()
}

// TestPrefixRelatedProcessIsolation pins down full isolation between two
// processes whose IDs are byte-prefix related: the ledger, the digest tree
// and a reset of one must never touch the other.
func TestPrefixRelatedProcessIsolation(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)

	cred, _ := env.enroll(t)
	ref, err := env.censuses.Load(env.censusID)
	c.Assert(err, qt.IsNil)
	root := ref.Root()

	short := &types.Process{ID: types.HexBytes{0x01}, Title: "short id", CensusRoot: root}
	long := &types.Process{ID: types.HexBytes{0x01, 0x02}, Title: "long id", CensusRoot: root}
	c.Assert(env.registry.CreateProcess(short), qt.IsNil)
	c.Assert(env.registry.CreateProcess(long), qt.IsNil)

	proof, err := env.censuses.ProofByRoot(root, cred.Commitment)
	c.Assert(err, qt.IsNil)
	bundle, err := nullifier.Derive(cred, long.ID, types.VoteChoiceYes, proof)
	c.Assert(err, qt.IsNil)
	_, err = env.registry.Submit(bundle)
	c.Assert(err, qt.IsNil)

	// The vote lands only in the long process; the short one stays clean
	// and consistent.
	n, err := env.stor.CountLedgerEntries(short.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 0)
	c.Assert(env.registry.VerifyIntegrity(short.ID), qt.IsNil)
	c.Assert(env.registry.VerifyIntegrity(long.ID), qt.IsNil)

	// Resetting the short process must not destroy the long one's ledger.
	c.Assert(env.registry.Reset(short.ID), qt.IsNil)
	c.Assert(env.stor.HasNullifier(long.ID, bundle.Nullifier), qt.IsTrue)
	status, _, err := env.registry.Status(long.ID, bundle.Nullifier)
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, types.VoteStatusAlreadyVoted)
	c.Assert(env.registry.VerifyIntegrity(long.ID), qt.IsNil)
}
