package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vocdoni/nullifier-registry/log"
	"github.com/vocdoni/nullifier-registry/service"
	"github.com/vocdoni/nullifier-registry/storage"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/metadb"
)

const auditInterval = 10 * time.Minute

// Services holds all the running services
type Services struct {
	Storage   *storage.Storage
	API       *service.APIService
	Worker    *service.WorkerService
	Integrity *service.IntegrityService
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting nullifier-registry", "version", Version)

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to setup services: %v", err)
	}
	defer shutdownServices(services)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// setupServices initializes and starts all required services
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	services := &Services{}

	log.Infow("initializing storage", "datadir", cfg.Datadir, "type", db.TypePebble)
	database, err := metadb.New(db.TypePebble, cfg.Datadir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	services.Storage = storage.New(database)

	services.API = service.NewAPI(services.Storage, cfg.API.Host, cfg.API.Port)
	if err := services.API.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start API service: %w", err)
	}
	host, port := services.API.HostPort()
	log.Infow("API service started", "host", host, "port", port)

	if cfg.Worker {
		services.Worker = service.NewWorker(services.API.Registry())
		if err := services.Worker.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start worker service: %w", err)
		}
		log.Infow("worker service started")
	}

	services.Integrity = service.NewIntegrity(services.API.Registry(), auditInterval)
	if err := services.Integrity.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start integrity service: %w", err)
	}

	return services, nil
}

// shutdownServices gracefully stops all services
func shutdownServices(services *Services) {
	if services.Integrity != nil {
		services.Integrity.Stop()
	}
	if services.Worker != nil {
		services.Worker.Stop()
	}
	if services.API != nil {
		services.API.Stop()
	}
	log.Infow("services stopped")
}
