package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/vocdoni/nullifier-registry/registry"
)

// WorkerService manages the background worker that drains the pending proof
// bundle queue.
type WorkerService struct {
	worker *registry.Worker
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewWorker creates a WorkerService bound to a registry.
func NewWorker(r *registry.Registry) *WorkerService {
	return &WorkerService{worker: registry.NewWorker(r)}
}

// Start begins processing queued bundles. It returns an error if the service
// is already running.
func (ws *WorkerService) Start(ctx context.Context) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.cancel != nil {
		return fmt.Errorf("service already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	ws.cancel = cancel
	return ws.worker.Start(ctx)
}

// Stop halts the worker.
func (ws *WorkerService) Stop() {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.cancel == nil {
		return
	}
	ws.cancel()
	ws.cancel = nil
	_ = ws.worker.Stop()
}
