package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/nullifier-registry/log"
	"github.com/vocdoni/nullifier-registry/registry"
	"golang.org/x/sync/errgroup"
)

// auditConcurrency bounds the number of ledger replays running at once, since
// each replay opens a throwaway database.
const auditConcurrency = 4

// IntegrityService periodically audits every process ledger against its
// published digest.
type IntegrityService struct {
	registry *registry.Registry
	interval time.Duration
	mu       sync.Mutex
	cancel   context.CancelFunc
}

// NewIntegrity creates an IntegrityService that audits all ledgers every
// interval.
func NewIntegrity(r *registry.Registry, interval time.Duration) *IntegrityService {
	return &IntegrityService{registry: r, interval: interval}
}

// Start begins the periodic audit loop. It returns an error if the service is
// already running.
func (is *IntegrityService) Start(ctx context.Context) error {
	is.mu.Lock()
	defer is.mu.Unlock()

	if is.cancel != nil {
		return fmt.Errorf("service already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	is.cancel = cancel

	go func() {
		ticker := time.NewTicker(is.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := is.AuditAll(ctx); err != nil {
					log.Errorw(err, "ledger integrity audit failed")
				}
			}
		}
	}()
	return nil
}

// Stop halts the audit loop.
func (is *IntegrityService) Stop() {
	is.mu.Lock()
	defer is.mu.Unlock()

	if is.cancel == nil {
		return
	}
	is.cancel()
	is.cancel = nil
}

// AuditAll replays every process ledger concurrently and returns an error if
// any digest does not match its stored entries.
func (is *IntegrityService) AuditAll(ctx context.Context) error {
	pids, err := is.registry.ListProcesses()
	if err != nil {
		return fmt.Errorf("failed to list processes: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(auditConcurrency)
	for _, pid := range pids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := is.registry.VerifyIntegrity(pid); err != nil {
				if errors.Is(err, registry.ErrIntegrityViolation) {
					log.Errorw(err, fmt.Sprintf("ledger integrity violation on process %x", pid))
				}
				return fmt.Errorf("process %x: %w", pid, err)
			}
			return nil
		})
	}
	return g.Wait()
}
