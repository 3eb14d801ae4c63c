package worker

import (
	"context"
	"sync"
	"time"

	"github.com/chasepay/settlement/internal/observability"
	"github.com/chasepay/settlement/internal/service"
	"go.uber.org/zap"
)

// ExpiryWorker sweeps deals past their lifetime so no frozen balance is
// left orphaned behind an abandoned payment.
type ExpiryWorker struct {
	svc       *service.PaymentService
	interval  time.Duration
	batchSize int32
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewExpiryWorker constructs a worker with a default one-minute sweep.
func NewExpiryWorker(svc *service.PaymentService) *ExpiryWorker {
	return &ExpiryWorker{
		svc:       svc,
		interval:  time.Minute,
		batchSize: 100,
		stopCh:    make(chan struct{}),
	}
}

// WithInterval updates the sweep interval.
func (w *ExpiryWorker) WithInterval(interval time.Duration) *ExpiryWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// WithBatchSize updates how many stale deals one sweep handles.
func (w *ExpiryWorker) WithBatchSize(size int32) *ExpiryWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *ExpiryWorker) Start(ctx context.Context) {
	zap.L().Info("expiry worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("expiry worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("expiry worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *ExpiryWorker) runOnce(ctx context.Context) {
	count, err := w.svc.ExpireStale(ctx, w.batchSize)
	if err != nil {
		observability.IncrementWorkerRun("expiry", "error")
		zap.L().Error("expiry sweep failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("expiry", "ok")
	if count > 0 {
		zap.L().Info("expiry sweep", zap.Int("expired", count))
	}
}

// SweepOnce runs a single sweep immediately. Useful in tests.
func (w *ExpiryWorker) SweepOnce(ctx context.Context) (int, error) {
	return w.svc.ExpireStale(ctx, w.batchSize)
}

// Stop signals the worker to stop. Safe to call more than once.
func (w *ExpiryWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Run starts the worker in a goroutine and returns its stop function.
func (w *ExpiryWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}
