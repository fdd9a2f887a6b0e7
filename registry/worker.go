package registry

import (
	"context"
	"errors"
	"time"

	"github.com/vocdoni/nullifier-registry/log"
	"github.com/vocdoni/nullifier-registry/storage"
)

const (
	// workerTickInterval is how often an idle worker polls the queue.
	workerTickInterval = time.Second
	// reservationMaxAge is how long a bundle may stay reserved before it is
	// handed back to the queue.
	reservationMaxAge = 5 * time.Minute
)

// Worker drains the pending bundle queue in the background and submits each
// bundle to the registry. Rejected bundles are dropped from the queue; their
// outcome is only observable through the vote status endpoints.
type Worker struct {
	registry *Registry
	stg      *storage.Storage
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewWorker creates a queue worker bound to a registry.
func NewWorker(r *Registry) *Worker {
	return &Worker{registry: r, stg: r.stor}
}

// Start begins processing pending bundles until the context is cancelled.
func (w *Worker) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	go w.run()
	go w.recoverLoop()
	return nil
}

// Stop cancels the worker context.
func (w *Worker) Stop() error {
	w.cancel()
	return nil
}

func (w *Worker) run() {
	ticker := time.NewTicker(workerTickInterval)
	defer ticker.Stop()
	for {
		// Try to fetch the next pending bundle.
		bundle, key, err := w.stg.NextBundle(nil)
		if err != nil {
			// Log errors other than "no work".
			if !errors.Is(err, storage.ErrNoMoreElements) {
				log.Errorw(err, "failed to get next bundle")
			}
			// Wait for the next tick or context cancellation.
			select {
			case <-ticker.C:
			case <-w.ctx.Done():
				return
			}
			continue
		}

		startTime := time.Now()
		if _, err := w.registry.Submit(bundle); err != nil {
			log.Warnw("pending bundle rejected",
				"process", bundle.ProcessID.String(),
				"nullifier", bundle.Nullifier.String(),
				"error", err.Error())
		} else {
			log.Debugw("pending bundle accepted",
				"process", bundle.ProcessID.String(),
				"nullifier", bundle.Nullifier.String(),
				"took", time.Since(startTime).String())
		}
		if err := w.stg.MarkBundleDone(key); err != nil {
			log.Errorw(err, "failed to mark bundle done")
		}
	}
}

// recoverLoop periodically releases reservations left behind by interrupted
// processing.
func (w *Worker) recoverLoop() {
	ticker := time.NewTicker(reservationMaxAge)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			released, err := w.stg.RecoverStaleReservations(reservationMaxAge)
			if err != nil {
				log.Errorw(err, "failed to recover stale reservations")
				continue
			}
			if released > 0 {
				log.Warnw("recovered stale bundle reservations", "count", released)
			}
		case <-w.ctx.Done():
			return
		}
	}
}
