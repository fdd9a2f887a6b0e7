package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/nullifier-registry/census"
	"github.com/vocdoni/nullifier-registry/crypto/credentials"
	"github.com/vocdoni/nullifier-registry/crypto/nullifier"
	"github.com/vocdoni/nullifier-registry/registry"
	"github.com/vocdoni/nullifier-registry/storage"
	"github.com/vocdoni/nullifier-registry/types"
	"go.vocdoni.io/dvote/db/metadb"
)

type testServer struct {
	api    *API
	server *httptest.Server
}

// newTestServer wires a full API over an in-test database, without binding a
// real listener.
func newTestServer(t *testing.T) *testServer {
	kv := metadb.NewTest(t)
	stor := storage.New(kv)
	censuses := census.NewCensusDB(kv)
	a := &API{
		storage:  stor,
		registry: registry.New(stor, censuses),
		censuses: censuses,
	}
	a.initRouter()
	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)
	return &testServer{api: a, server: srv}
}

func (ts *testServer) request(t *testing.T, method, path string, body, out any) int {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reqBody = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.server.URL+path, reqBody)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

// setupVote prepares a census with one credential and an open process, all
// through the HTTP surface, and returns a valid bundle for it.
func setupVote(t *testing.T, ts *testServer) (*types.ProofBundle, types.HexBytes) {
	c := qt.New(t)

	var nc NewCensus
	code := ts.request(t, http.MethodPost, CensusesEndpoint, nil, &nc)
	c.Assert(code, qt.Equals, http.StatusOK)

	cred, err := credentials.Issue()
	c.Assert(err, qt.IsNil)

	var proof types.CensusProof
	code = ts.request(t, http.MethodPost,
		fmt.Sprintf("%s?id=%s", CensusRegisterEndpoint, nc.Census),
		&RegisterRequest{Commitment: cred.Commitment}, &proof)
	c.Assert(code, qt.Equals, http.StatusOK)

	var pr ProcessResponse
	code = ts.request(t, http.MethodPost, ProcessesEndpoint,
		&NewProcess{Title: "api test", CensusRoot: proof.Root}, &pr)
	c.Assert(code, qt.Equals, http.StatusOK)

	bundle, err := nullifier.Derive(cred, pr.Process.ID, types.VoteChoiceYes, &proof)
	c.Assert(err, qt.IsNil)
	return bundle, pr.Process.ID
}

func TestPing(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(t)
	c.Assert(ts.request(t, http.MethodGet, PingEndpoint, nil, nil), qt.Equals, http.StatusOK)
}

func TestVoteFlow(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(t)
	bundle, pid := setupVote(t, ts)

	// Status before voting.
	statusPath := fmt.Sprintf("/votes/%s/%s", pid.String(), bundle.Nullifier.String())
	var status VoteStatusResponse
	c.Assert(ts.request(t, http.MethodGet, statusPath, nil, &status), qt.Equals, http.StatusOK)
	c.Assert(status.Status, qt.Equals, types.VoteStatusCanVote)

	// Submit the vote.
	var vr VoteResponse
	c.Assert(ts.request(t, http.MethodPost, VotesEndpoint, bundle, &vr), qt.Equals, http.StatusOK)
	c.Assert(vr.Nullifier.Equal(bundle.Nullifier), qt.IsTrue)

	// Submitting the same bundle again is a conflict.
	c.Assert(ts.request(t, http.MethodPost, VotesEndpoint, bundle, nil), qt.Equals, http.StatusConflict)

	// Status flips to already-voted.
	c.Assert(ts.request(t, http.MethodGet, statusPath, nil, &status), qt.Equals, http.StatusOK)
	c.Assert(status.Status, qt.Equals, types.VoteStatusAlreadyVoted)
	c.Assert(status.AcceptedAt, qt.IsNotNil)

	// The digest reflects one entry and the ledger passes the integrity check.
	var digest DigestResponse
	digestPath := fmt.Sprintf("/processes/%s/digest", pid.String())
	c.Assert(ts.request(t, http.MethodGet, digestPath, nil, &digest), qt.Equals, http.StatusOK)
	c.Assert(digest.Entries, qt.Equals, 1)

	var integrity IntegrityResponse
	integrityPath := fmt.Sprintf("/processes/%s/integrity", pid.String())
	c.Assert(ts.request(t, http.MethodGet, integrityPath, nil, &integrity), qt.Equals, http.StatusOK)
	c.Assert(integrity.Valid, qt.IsTrue)

	// The accepted nullifier has an inclusion proof.
	c.Assert(ts.request(t, http.MethodGet, statusPath+"/proof", nil, nil), qt.Equals, http.StatusOK)
}

func TestVoteRejections(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(t)
	bundle, _ := setupVote(t, ts)

	// Tampered proof: undifferentiated rejection.
	tampered := *bundle
	tampered.RangeProof = append(types.HexBytes{}, bundle.RangeProof...)
	tampered.RangeProof[0] ^= 0xff
	c.Assert(ts.request(t, http.MethodPost, VotesEndpoint, &tampered, nil), qt.Equals, http.StatusBadRequest)

	// Unknown process.
	unknown := *bundle
	unknown.ProcessID = types.HexBytes(bytes.Repeat([]byte{0x42}, 32))
	c.Assert(ts.request(t, http.MethodPost, VotesEndpoint, &unknown, nil), qt.Equals, http.StatusNotFound)

	// Garbage body.
	resp, err := http.Post(ts.server.URL+VotesEndpoint, "application/json", bytes.NewReader([]byte("{")))
	c.Assert(err, qt.IsNil)
	_ = resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusBadRequest)

	// The original bundle still goes through.
	c.Assert(ts.request(t, http.MethodPost, VotesEndpoint, bundle, nil), qt.Equals, http.StatusOK)
}

func TestCensusEndpoints(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(t)

	var nc NewCensus
	c.Assert(ts.request(t, http.MethodPost, CensusesEndpoint, nil, &nc), qt.Equals, http.StatusOK)
	c.Assert(nc.Census, qt.Not(qt.Equals), uuid.Nil)

	// Batch insertion.
	participants := &CensusParticipants{}
	for range 3 {
		cred, err := credentials.Issue()
		c.Assert(err, qt.IsNil)
		participants.Participants = append(participants.Participants,
			&CensusParticipant{Key: cred.Commitment})
	}
	path := fmt.Sprintf("%s?id=%s", CensusParticipantsEndpoint, nc.Census)
	c.Assert(ts.request(t, http.MethodPost, path, participants, nil), qt.Equals, http.StatusOK)

	// Root and size.
	var root CensusRoot
	c.Assert(ts.request(t, http.MethodGet,
		fmt.Sprintf("%s?id=%s", CensusRootEndpoint, nc.Census), nil, &root), qt.Equals, http.StatusOK)
	c.Assert(root.Root, qt.Not(qt.HasLen), 0)

	var size struct {
		Size int `json:"size"`
	}
	c.Assert(ts.request(t, http.MethodGet,
		fmt.Sprintf("%s?id=%s", CensusSizeEndpoint, nc.Census), nil, &size), qt.Equals, http.StatusOK)
	c.Assert(size.Size, qt.Equals, 3)

	// Membership proof for one of the participants.
	key := participants.Participants[0].Key
	var proof types.CensusProof
	c.Assert(ts.request(t, http.MethodGet,
		fmt.Sprintf("%s?root=%s&key=%s", CensusProofEndpoint, root.Root.String(), key.String()),
		nil, &proof), qt.Equals, http.StatusOK)
	c.Assert(census.VerifyProof(&proof, root.Root), qt.IsTrue)

	// Unknown census.
	c.Assert(ts.request(t, http.MethodGet,
		fmt.Sprintf("%s?id=%s", CensusRootEndpoint, uuid.New()), nil, nil), qt.Equals, http.StatusNotFound)

	// Delete.
	c.Assert(ts.request(t, http.MethodDelete,
		fmt.Sprintf("%s?id=%s", CensusesEndpoint, nc.Census), nil, nil), qt.Equals, http.StatusOK)
}

func TestProcessEndpoints(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(t)
	_, pid := setupVote(t, ts)

	var pr ProcessResponse
	c.Assert(ts.request(t, http.MethodGet, "/processes/"+pid.String(), nil, &pr), qt.Equals, http.StatusOK)
	c.Assert(pr.Process.ID.Equal(pid), qt.IsTrue)
	c.Assert(pr.Digest, qt.Not(qt.HasLen), 0)

	var list ProcessList
	c.Assert(ts.request(t, http.MethodGet, ProcessesEndpoint, nil, &list), qt.Equals, http.StatusOK)
	c.Assert(list.Processes, qt.HasLen, 1)

	// Missing process and malformed ID.
	missing := types.HexBytes(bytes.Repeat([]byte{0x01}, 32))
	c.Assert(ts.request(t, http.MethodGet, "/processes/"+missing.String(), nil, nil),
		qt.Equals, http.StatusNotFound)
	c.Assert(ts.request(t, http.MethodGet, "/processes/zzzz", nil, nil),
		qt.Equals, http.StatusBadRequest)

	// A process cannot be created without a census root.
	c.Assert(ts.request(t, http.MethodPost, ProcessesEndpoint, &NewProcess{Title: "no root"}, nil),
		qt.Equals, http.StatusBadRequest)
}

func TestAsyncVote(t *testing.T) {
	c := qt.New(t)
	ts := newTestServer(t)
	bundle, pid := setupVote(t, ts)

	var vr VoteResponse
	c.Assert(ts.request(t, http.MethodPost, VotesAsyncEndpoint, bundle, &vr), qt.Equals, http.StatusOK)
	c.Assert(vr.Queued, qt.IsTrue)
	c.Assert(ts.api.storage.CountPendingBundles(pid), qt.Equals, 1)

	// Unknown process is rejected at enqueue time.
	unknown := *bundle
	unknown.ProcessID = types.HexBytes(bytes.Repeat([]byte{0x07}, 32))
	c.Assert(ts.request(t, http.MethodPost, VotesAsyncEndpoint, &unknown, nil), qt.Equals, http.StatusNotFound)
}
