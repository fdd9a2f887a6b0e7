package registry

import (
	"context"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/nullifier-registry/crypto/nullifier"
	"github.com/vocdoni/nullifier-registry/types"
)

func TestWorkerDrainsQueue(t *testing.T) {
	c := qt.New(t)
	env := newTestEnv(t)

	cred, _ := env.enroll(t)
	proc := env.createProcess(t)
	proof, err := env.censuses.ProofByRoot(proc.CensusRoot, cred.Commitment)
	c.Assert(err, qt.IsNil)
	bundle, err := nullifier.Derive(cred, proc.ID, types.VoteChoiceYes, proof)
	c.Assert(err, qt.IsNil)

	// Queue the bundle and a duplicate of it.
	c.Assert(env.stor.PushBundle(bundle), qt.IsNil)
	dup, err := nullifier.Derive(cred, proc.ID, types.VoteChoiceNo, proof)
	c.Assert(err, qt.IsNil)
	c.Assert(env.stor.PushBundle(dup), qt.IsNil)

	worker := NewWorker(env.registry)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Assert(worker.Start(ctx), qt.IsNil)
	defer func() { c.Assert(worker.Stop(), qt.IsNil) }()

	// Wait until the queue is drained and the vote recorded.
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		status, _, err := env.registry.Status(proc.ID, bundle.Nullifier)
		c.Assert(err, qt.IsNil)
		if status == types.VoteStatusAlreadyVoted && env.stor.CountPendingBundles(nil) == 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	c.Assert(env.stor.CountPendingBundles(nil), qt.Equals, 0)
	got, err := env.registry.Process(proc.ID)
	c.Assert(err, qt.IsNil)
	// The duplicate was rejected on processing: only one vote counted.
	c.Assert(got.VoteCount, qt.Equals, uint64(1))
}
