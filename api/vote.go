package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vocdoni/nullifier-registry/registry"
	"github.com/vocdoni/nullifier-registry/types"
	"github.com/vocdoni/nullifier-registry/verifier"
)

// newVote submits a proof bundle and waits for the verdict
// POST /votes
func (a *API) newVote(w http.ResponseWriter, r *http.Request) {
	bundle := &types.ProofBundle{}
	if err := json.NewDecoder(r.Body).Decode(bundle); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}

	entry, err := a.registry.Submit(bundle)
	if err != nil {
		writeSubmitError(w, err)
		return
	}
	httpWriteJSON(w, &VoteResponse{
		Nullifier:  entry.Nullifier,
		AcceptedAt: entry.AcceptedAt,
	})
}

// queueVote pushes a proof bundle into the pending queue; the verdict is
// later observable through the vote status endpoint
// POST /votes/async
func (a *API) queueVote(w http.ResponseWriter, r *http.Request) {
	bundle := &types.ProofBundle{}
	if err := json.NewDecoder(r.Body).Decode(bundle); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	// Only the process existence is checked upfront; everything else is the
	// worker's job.
	if _, err := a.registry.Process(bundle.ProcessID); err != nil {
		ErrProcessNotFound.WithErr(err).Write(w)
		return
	}
	if err := a.storage.PushBundle(bundle); err != nil {
		ErrGenericInternalServerError.Withf("could not queue bundle: %v", err).Write(w)
		return
	}
	httpWriteJSON(w, &VoteResponse{
		Nullifier: bundle.Nullifier,
		Queued:    true,
	})
}

// voteStatus reports whether a nullifier can still vote in a process
// GET /votes/{processId}/{nullifier}
func (a *API) voteStatus(w http.ResponseWriter, r *http.Request) {
	pid, err := urlParamBytes(r, ProcessURLParam)
	if err != nil {
		ErrMalformedProcessID.WithErr(err).Write(w)
		return
	}
	nullifier, err := urlParamBytes(r, NullifierURLParam)
	if err != nil {
		ErrMalformedNullifier.WithErr(err).Write(w)
		return
	}

	status, entry, err := a.registry.Status(pid, nullifier)
	if err != nil {
		if errors.Is(err, registry.ErrProcessNotFound) {
			ErrProcessNotFound.WithErr(err).Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	resp := &VoteStatusResponse{Status: status}
	if entry != nil {
		resp.AcceptedAt = &entry.AcceptedAt
	}
	httpWriteJSON(w, resp)
}

// processDigest returns the published ledger digest
// GET /processes/{processId}/digest
func (a *API) processDigest(w http.ResponseWriter, r *http.Request) {
	pid, err := urlParamBytes(r, ProcessURLParam)
	if err != nil {
		ErrMalformedProcessID.WithErr(err).Write(w)
		return
	}
	digest, err := a.registry.Digest(pid)
	if err != nil {
		if errors.Is(err, registry.ErrProcessNotFound) {
			ErrProcessNotFound.WithErr(err).Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	proc, err := a.registry.Process(pid)
	if err != nil {
		ErrProcessNotFound.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &DigestResponse{
		ProcessID: pid,
		Digest:    digest,
		Entries:   int(proc.VoteCount),
	})
}

// processIntegrity replays the stored ledger and checks it against the digest
// GET /processes/{processId}/integrity
func (a *API) processIntegrity(w http.ResponseWriter, r *http.Request) {
	pid, err := urlParamBytes(r, ProcessURLParam)
	if err != nil {
		ErrMalformedProcessID.WithErr(err).Write(w)
		return
	}
	if err := a.registry.VerifyIntegrity(pid); err != nil {
		switch {
		case errors.Is(err, registry.ErrProcessNotFound):
			ErrProcessNotFound.WithErr(err).Write(w)
		case errors.Is(err, registry.ErrIntegrityViolation):
			ErrLedgerIntegrity.WithErr(err).Write(w)
		default:
			ErrGenericInternalServerError.WithErr(err).Write(w)
		}
		return
	}
	proc, err := a.registry.Process(pid)
	if err != nil {
		ErrProcessNotFound.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &IntegrityResponse{
		ProcessID: pid,
		Valid:     true,
		Entries:   int(proc.VoteCount),
	})
}

// nullifierProof returns an inclusion proof of an accepted nullifier against
// the published digest
// GET /votes/{processId}/{nullifier}/proof
func (a *API) nullifierProof(w http.ResponseWriter, r *http.Request) {
	pid, err := urlParamBytes(r, ProcessURLParam)
	if err != nil {
		ErrMalformedProcessID.WithErr(err).Write(w)
		return
	}
	nullifier, err := urlParamBytes(r, NullifierURLParam)
	if err != nil {
		ErrMalformedNullifier.WithErr(err).Write(w)
		return
	}
	proof, err := a.registry.NullifierProof(pid, nullifier)
	if err != nil {
		if errors.Is(err, registry.ErrProcessNotFound) {
			ErrProcessNotFound.WithErr(err).Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, proof)
}

// writeSubmitError maps registry submission errors to API errors.
func writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrProcessNotFound):
		ErrProcessNotFound.WithErr(err).Write(w)
	case errors.Is(err, registry.ErrProcessNotActive):
		ErrProcessNotActive.WithErr(err).Write(w)
	case errors.Is(err, registry.ErrDoubleVote):
		ErrDoubleVote.Write(w)
	case errors.Is(err, verifier.ErrMalformedBundle):
		ErrMalformedBody.WithErr(err).Write(w)
	case errors.Is(err, verifier.ErrInvalidProof):
		// Deliberately undifferentiated: the client only learns that the
		// proof did not verify.
		ErrInvalidProof.Write(w)
	case errors.Is(err, registry.ErrIntegrityViolation):
		ErrLedgerIntegrity.WithErr(err).Write(w)
	default:
		ErrGenericInternalServerError.WithErr(err).Write(w)
	}
}
