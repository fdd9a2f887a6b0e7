package api

import (
	"encoding/json"
	"net/http"

	"github.com/vocdoni/nullifier-registry/log"
	"github.com/vocdoni/nullifier-registry/types"
	"github.com/vocdoni/nullifier-registry/util"
)

// newProcess creates a new voting process
// POST /processes
func (a *API) newProcess(w http.ResponseWriter, r *http.Request) {
	p := &NewProcess{}
	if err := json.NewDecoder(r.Body).Decode(p); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if len(p.CensusRoot) == 0 {
		ErrMalformedBody.With("missing census root").Write(w)
		return
	}

	proc := &types.Process{
		ID:         util.RandomBytes(types.MaxProcessIDLen),
		Title:      p.Title,
		CensusRoot: p.CensusRoot,
		StartTime:  p.StartTime,
		Duration:   p.Duration,
	}
	if err := a.registry.CreateProcess(proc); err != nil {
		ErrGenericInternalServerError.Withf("could not create process: %v", err).Write(w)
		return
	}
	digest, err := a.registry.Digest(proc.ID)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}

	log.Infow("new process", "processId", proc.ID.String(), "censusRoot", proc.CensusRoot.String())
	httpWriteJSON(w, &ProcessResponse{Process: proc, Digest: digest})
}

// process returns the process info
// GET /processes/{processId}
func (a *API) process(w http.ResponseWriter, r *http.Request) {
	pid, err := urlParamBytes(r, ProcessURLParam)
	if err != nil {
		ErrMalformedProcessID.WithErr(err).Write(w)
		return
	}
	proc, err := a.registry.Process(pid)
	if err != nil {
		ErrProcessNotFound.WithErr(err).Write(w)
		return
	}
	digest, err := a.registry.Digest(pid)
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &ProcessResponse{Process: proc, Digest: digest})
}

// listProcesses returns the known process IDs
// GET /processes
func (a *API) listProcesses(w http.ResponseWriter, _ *http.Request) {
	pids, err := a.registry.ListProcesses()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	list := &ProcessList{Processes: make([]types.HexBytes, len(pids))}
	for i, pid := range pids {
		list.Processes[i] = pid
	}
	httpWriteJSON(w, list)
}
