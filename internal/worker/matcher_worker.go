package worker

import (
	"context"
	"sync"
	"time"

	"github.com/chasepay/settlement/internal/observability"
	"github.com/chasepay/settlement/internal/service"
	"go.uber.org/zap"
)

// MatcherWorker drives the notification reconciliation tick. The
// scheduler owns the tick: graceful shutdown finishes the in-flight
// pass and refuses new ones.
type MatcherWorker struct {
	svc      *service.MatcherService
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMatcherWorker constructs a worker with a default five-second tick.
func NewMatcherWorker(svc *service.MatcherService) *MatcherWorker {
	return &MatcherWorker{
		svc:      svc,
		interval: 5 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the tick interval.
func (w *MatcherWorker) WithInterval(interval time.Duration) *MatcherWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and ticks at the configured interval.
func (w *MatcherWorker) Start(ctx context.Context) {
	zap.L().Info("matcher worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("matcher worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("matcher worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *MatcherWorker) runOnce(ctx context.Context) {
	stats, err := w.svc.Tick(ctx)
	if err != nil {
		observability.IncrementWorkerRun("matcher", "error")
		zap.L().Error("matcher tick failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("matcher", "ok")
	if stats.Scanned > 0 {
		zap.L().Info("matcher tick",
			zap.Int("scanned", stats.Scanned),
			zap.Int("matched", stats.Matched),
			zap.Int("ambiguous", stats.Ambiguous),
			zap.Int("no_match", stats.NoMatch),
			zap.Int("discarded", stats.Discarded))
	}
}

// TickOnce runs a single pass immediately. Useful in tests.
func (w *MatcherWorker) TickOnce(ctx context.Context) (service.TickStats, error) {
	return w.svc.Tick(ctx)
}

// Stop signals the worker to stop. Safe to call more than once.
func (w *MatcherWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

// Run starts the worker in a goroutine and returns its stop function.
func (w *MatcherWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}
