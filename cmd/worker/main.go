// Package main is the entry point for the hvacstock background worker.
// It drains the outbox into the audit log and Kafka and runs periodic cleanup.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"hvacstock/internal/app"
	"hvacstock/internal/config"
	appctx "hvacstock/internal/core/context"
	"hvacstock/internal/infrastructure/storage/postgres"
	"hvacstock/pkg/logger"
)

// publishedRetention is how long delivered outbox rows are kept.
const publishedRetention = 7 * 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
		Service:     "worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Info("starting hvacstock worker")

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer a.Close()

	worker := NewWorker(a, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()

	wg.Wait()
	log.Info("worker stopped")
}

// Worker runs the outbox relay and maintenance jobs.
type Worker struct {
	app         *app.App
	relay       *postgres.OutboxRelay
	idempotency *postgres.IdempotencyStore
	log         *logger.Logger
}

func NewWorker(a *app.App, log *logger.Logger) *Worker {
	return &Worker{
		app:         a,
		relay:       a.OutboxRelay(),
		idempotency: postgres.NewIdempotencyStore(a.TxManager, a.Config.Server.IdempotencyTTL),
		log:         log.WithComponent("worker"),
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	interval := w.app.Config.Outbox.Interval

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(time.Minute)
	defer statsTicker.Stop()

	cleanupTicker := time.NewTicker(1 * time.Hour)
	defer cleanupTicker.Stop()

	w.log.Infow("worker running", "outbox_interval", interval, "batch_size", w.app.Config.Outbox.BatchSize)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.processOutbox(appctx.StartTrace(ctx, appctx.SourceWorker))
		case <-statsTicker.C:
			w.app.Metrics.SetPoolStats(w.app.Pool.Stats())
			w.app.Pool.LogStats(ctx)
		case <-cleanupTicker.C:
			tick := appctx.StartTrace(ctx, appctx.SourceWorker)
			w.moveToDLQ(tick)
			w.cleanupOutbox(tick)
			w.cleanupIdempotency(tick)
		}
	}
}

// processOutbox drains full batches until the queue is empty.
func (w *Worker) processOutbox(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := w.relay.ProcessBatch(ctx)
		if err != nil {
			w.log.Errorw("outbox batch failed", "error", err)
			return
		}
		if n > 0 {
			w.log.Debugw("processed outbox batch", "count", n)
		}
		if n < w.app.Config.Outbox.BatchSize {
			return
		}
	}
}

func (w *Worker) moveToDLQ(ctx context.Context) {
	n, err := w.relay.MoveToDLQ(ctx)
	if err != nil {
		w.log.Errorw("failed to move outbox messages to DLQ", "error", err)
		return
	}
	if n > 0 {
		w.log.Warnw("moved outbox messages to DLQ", "count", n)
	}
}

func (w *Worker) cleanupOutbox(ctx context.Context) {
	n, err := w.relay.CleanupPublished(ctx, publishedRetention)
	if err != nil {
		w.log.Errorw("failed to clean up outbox", "error", err)
		return
	}
	if n > 0 {
		w.log.Infow("cleaned up published outbox messages", "count", n)
	}
}

func (w *Worker) cleanupIdempotency(ctx context.Context) {
	n, err := w.idempotency.CleanupExpired(ctx)
	if err != nil {
		w.log.Errorw("failed to clean up idempotency keys", "error", err)
		return
	}
	if n > 0 {
		w.log.Infow("cleaned up idempotency keys", "count", n)
	}
}
