// Package api exposes the HTTP surface of the nullifier registry: census
// management, process management, vote submission and ledger inspection.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/nullifier-registry/census"
	"github.com/vocdoni/nullifier-registry/log"
	"github.com/vocdoni/nullifier-registry/registry"
	"github.com/vocdoni/nullifier-registry/storage"
)

// APIConfig type represents the configuration for the API HTTP server.
// It includes the host, port and the instances the handlers work against.
type APIConfig struct {
	Host     string
	Port     int
	Storage  *storage.Storage
	Registry *registry.Registry
	CensusDB *census.CensusDB
}

// API type represents the API HTTP server.
type API struct {
	router   *chi.Mux
	storage  *storage.Storage
	registry *registry.Registry
	censuses *census.CensusDB
}

// New creates a new API instance with the given configuration and starts the
// HTTP server.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Storage == nil || conf.Registry == nil || conf.CensusDB == nil {
		return nil, fmt.Errorf("missing storage, registry or census instances")
	}
	a := &API{
		storage:  conf.Storage,
		registry: conf.Registry,
		censuses: conf.CensusDB,
	}

	// Initialize router
	a.initRouter()
	go func() {
		log.Infow("starting API server", "host", conf.Host, "port", conf.Port)
		if err := http.ListenAndServe(fmt.Sprintf("%s:%d", conf.Host, conf.Port), a.router); err != nil {
			log.Fatalf("failed to start the API server: %v", err)
		}
	}()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the API handlers.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", CensusesEndpoint, "method", "POST")
	a.router.Post(CensusesEndpoint, a.newCensus)
	log.Infow("register handler", "endpoint", CensusesEndpoint, "method", "DELETE")
	a.router.Delete(CensusesEndpoint, a.deleteCensus)
	log.Infow("register handler", "endpoint", CensusParticipantsEndpoint, "method", "POST")
	a.router.Post(CensusParticipantsEndpoint, a.addCensusParticipants)
	log.Infow("register handler", "endpoint", CensusRegisterEndpoint, "method", "POST")
	a.router.Post(CensusRegisterEndpoint, a.registerCensusParticipant)
	log.Infow("register handler", "endpoint", CensusRootEndpoint, "method", "GET")
	a.router.Get(CensusRootEndpoint, a.getCensusRoot)
	log.Infow("register handler", "endpoint", CensusSizeEndpoint, "method", "GET")
	a.router.Get(CensusSizeEndpoint, a.getCensusSize)
	log.Infow("register handler", "endpoint", CensusProofEndpoint, "method", "GET")
	a.router.Get(CensusProofEndpoint, a.getCensusProof)
	log.Infow("register handler", "endpoint", ProcessesEndpoint, "method", "POST")
	a.router.Post(ProcessesEndpoint, a.newProcess)
	log.Infow("register handler", "endpoint", ProcessesEndpoint, "method", "GET")
	a.router.Get(ProcessesEndpoint, a.listProcesses)
	log.Infow("register handler", "endpoint", ProcessEndpoint, "method", "GET")
	a.router.Get(ProcessEndpoint, a.process)
	log.Infow("register handler", "endpoint", ProcessDigestEndpoint, "method", "GET")
	a.router.Get(ProcessDigestEndpoint, a.processDigest)
	log.Infow("register handler", "endpoint", ProcessIntegrityEndpoint, "method", "GET")
	a.router.Get(ProcessIntegrityEndpoint, a.processIntegrity)
	log.Infow("register handler", "endpoint", VotesEndpoint, "method", "POST")
	a.router.Post(VotesEndpoint, a.newVote)
	log.Infow("register handler", "endpoint", VotesAsyncEndpoint, "method", "POST")
	a.router.Post(VotesAsyncEndpoint, a.queueVote)
	log.Infow("register handler", "endpoint", VoteStatusEndpoint, "method", "GET")
	a.router.Get(VoteStatusEndpoint, a.voteStatus)
	log.Infow("register handler", "endpoint", NullifierProofEndpoint, "method", "GET")
	a.router.Get(NullifierProofEndpoint, a.nullifierProof)
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	// Create the router with a basic middleware stack
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}).Handler)
	a.router.Use(middleware.Logger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))

	// Register the API handlers
	a.registerHandlers()
}
