// Package service wires the registry components together and manages their
// lifecycles.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/vocdoni/nullifier-registry/api"
	"github.com/vocdoni/nullifier-registry/census"
	"github.com/vocdoni/nullifier-registry/registry"
	"github.com/vocdoni/nullifier-registry/storage"
)

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	storage  *storage.Storage
	registry *registry.Registry
	censuses *census.CensusDB
	api      *api.API
	mu       sync.Mutex
	cancel   context.CancelFunc
	host     string
	port     int
}

// NewAPI creates a new APIService instance over an existing storage. The
// census database and registry are built on the same underlying store.
func NewAPI(stor *storage.Storage, host string, port int) *APIService {
	censuses := census.NewCensusDB(stor.Database())
	return &APIService{
		storage:  stor,
		censuses: censuses,
		registry: registry.New(stor, censuses),
		host:     host,
		port:     port,
	}
}

// Registry returns the registry instance the API serves.
func (as *APIService) Registry() *registry.Registry {
	return as.registry
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		return fmt.Errorf("service already running")
	}

	_, as.cancel = context.WithCancel(ctx)

	var err error
	as.api, err = api.New(&api.APIConfig{
		Host:     as.host,
		Port:     as.port,
		Storage:  as.storage,
		Registry: as.registry,
		CensusDB: as.censuses,
	})
	if err != nil {
		as.cancel = nil
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		as.cancel()
		as.cancel = nil
	}
	as.storage.Close()
}

// HostPort returns the host and port of the API server.
func (as *APIService) HostPort() (string, int) {
	return as.host, as.port
}
