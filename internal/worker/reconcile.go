// Package worker runs the periodic reconcile that repairs drifted global
// totals and rebuilds the rank index from storage.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tierboard/internal/config"
)

// Reconciler is the engine operation the worker drives
type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

// ReconcileWorker handles periodic reconciliation of totals and the rank index
type ReconcileWorker struct {
	engine  Reconciler
	config  *config.SyncConfig
	logger  *slog.Logger
	stopCh  chan struct{}
	doneCh  chan struct{}
	mu      sync.Mutex
	running bool
	cycle   sync.Mutex
}

// NewReconcileWorker creates a new reconcile worker
func NewReconcileWorker(engine Reconciler, cfg *config.SyncConfig, logger *slog.Logger) *ReconcileWorker {
	return &ReconcileWorker{
		engine: engine,
		config: cfg,
		logger: logger,
	}
}

// Start begins the background reconcile process
func (w *ReconcileWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	w.logger.Info("reconcile worker started", "interval", w.config.Interval)

	go w.run(ctx, w.stopCh, w.doneCh)
	return nil
}

// Stop stops the background reconcile process and waits for it to exit
func (w *ReconcileWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.logger.Info("reconcile worker stopped")
	return nil
}

// run is the main worker loop
func (w *ReconcileWorker) run(ctx context.Context, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single reconcile cycle and returns how many totals were
// corrected. Overlapping calls are serialized.
func (w *ReconcileWorker) RunOnce(ctx context.Context) (int, error) {
	w.cycle.Lock()
	defer w.cycle.Unlock()

	w.logger.Info("starting reconcile cycle")
	startTime := time.Now()

	corrected, err := w.engine.ReconcileAll(ctx)
	if err != nil {
		w.logger.Error("reconcile cycle failed",
			"corrected", corrected,
			"error", err,
		)
		return corrected, err
	}

	w.logger.Info("reconcile cycle completed",
		"duration", time.Since(startTime),
		"corrected", corrected,
	)
	return corrected, nil
}

// IsRunning returns whether the worker is currently running
func (w *ReconcileWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
