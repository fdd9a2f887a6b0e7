package api

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/vocdoni/arbo"
	"github.com/vocdoni/nullifier-registry/census"
	"github.com/vocdoni/nullifier-registry/types"
)

func (a *API) newCensus(w http.ResponseWriter, _ *http.Request) {
	censusID := uuid.New()
	if _, err := a.censuses.New(censusID); err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &NewCensus{Census: censusID})
}

func (a *API) addCensusParticipants(w http.ResponseWriter, r *http.Request) {
	censusID, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		ErrInvalidCensusID.WithErr(err).Write(w)
		return
	}

	var participants CensusParticipants
	if err := json.NewDecoder(r.Body).Decode(&participants); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if len(participants.Participants) == 0 {
		ErrMalformedBody.WithErr(fmt.Errorf("no participants provided")).Write(w)
		return
	}

	ref, err := a.censuses.Load(censusID)
	if err != nil {
		ErrCensusNotFound.WithErr(err).Write(w)
		return
	}

	// build the list of keys and values that will be added to the tree
	keys := [][]byte{}
	values := [][]byte{}
	for _, p := range participants.Participants {
		if p.Weight == nil {
			p.Weight = new(types.BigInt).SetUint64(1)
		}
		leafKey := a.censuses.TrunkKey(p.Key)
		if leafKey == nil {
			ErrGenericInternalServerError.WithErr(fmt.Errorf("failed to hash participant key")).Write(w)
			return
		}
		keys = append(keys, leafKey)
		values = append(values, arbo.BigIntToBytes(a.censuses.HashLen(), p.Weight.MathBigInt()))
	}

	// insert the keys and values into the tree
	invalid, err := ref.InsertBatch(keys, values)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	if len(invalid) > 0 {
		ErrMalformedBody.WithErr(fmt.Errorf("failed to insert %d participants", len(invalid))).Write(w)
		return
	}
	httpWriteOK(w)
}

// registerCensusParticipant enrolls a single commitment and returns its
// membership proof against the resulting root.
func (a *API) registerCensusParticipant(w http.ResponseWriter, r *http.Request) {
	censusID, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		ErrInvalidCensusID.WithErr(err).Write(w)
		return
	}

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}
	if len(req.Commitment) == 0 {
		ErrMalformedBody.WithErr(fmt.Errorf("missing commitment")).Write(w)
		return
	}

	proof, err := a.censuses.Register(censusID, req.Commitment, req.Weight)
	if err != nil {
		if err == census.ErrCensusNotFound {
			ErrCensusNotFound.WithErr(err).Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, proof)
}

func (a *API) getCensusRoot(w http.ResponseWriter, r *http.Request) {
	censusID, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		ErrInvalidCensusID.WithErr(err).Write(w)
		return
	}

	ref, err := a.censuses.Load(censusID)
	if err != nil {
		ErrCensusNotFound.WithErr(err).Write(w)
		return
	}

	httpWriteJSON(w, &CensusRoot{Root: ref.Root()})
}

func (a *API) getCensusSize(w http.ResponseWriter, r *http.Request) {
	rootStr := r.URL.Query().Get("root")
	idStr := r.URL.Query().Get("id")
	size := 0
	if idStr != "" {
		censusID, err := uuid.Parse(idStr)
		if err != nil {
			ErrInvalidCensusID.WithErr(err).Write(w)
			return
		}
		ref, err := a.censuses.Load(censusID)
		if err != nil {
			ErrCensusNotFound.WithErr(err).Write(w)
			return
		}
		size = ref.Size()
	} else if rootStr != "" {
		root, err := hex.DecodeString(rootStr)
		if err != nil {
			ErrInvalidCensusID.WithErr(err).Write(w)
			return
		}
		size, err = a.censuses.SizeByRoot(root)
		if err != nil {
			ErrCensusNotFound.WithErr(err).Write(w)
			return
		}
	} else {
		ErrInvalidCensusID.Write(w)
		return
	}

	httpWriteJSON(w, map[string]any{
		"size": size,
	})
}

func (a *API) deleteCensus(w http.ResponseWriter, r *http.Request) {
	censusID, err := uuid.Parse(r.URL.Query().Get("id"))
	if err != nil {
		ErrInvalidCensusID.WithErr(err).Write(w)
		return
	}
	if err := a.censuses.Del(censusID); err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteOK(w)
}

func (a *API) getCensusProof(w http.ResponseWriter, r *http.Request) {
	root, err := hex.DecodeString(r.URL.Query().Get("root"))
	if err != nil {
		ErrInvalidCensusID.WithErr(err).Write(w)
		return
	}
	key, err := hex.DecodeString(r.URL.Query().Get("key"))
	if err != nil {
		ErrMalformedBody.WithErr(err).Write(w)
		return
	}

	proof, err := a.censuses.ProofByRoot(root, key)
	if err != nil {
		ErrResourceNotFound.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, proof)
}
