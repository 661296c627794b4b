// Package app wires repositories and services for the binaries.
package app

import (
	"context"
	"fmt"

	"hvacstock/internal/config"
	"hvacstock/internal/domain/alerts"
	"hvacstock/internal/domain/audit"
	"hvacstock/internal/domain/auth"
	"hvacstock/internal/domain/inventory"
	"hvacstock/internal/domain/reconciliation"
	"hvacstock/internal/domain/registers/stock"
	"hvacstock/internal/domain/reservation"
	"hvacstock/internal/domain/threshold"
	"hvacstock/internal/domain/undo"
	"hvacstock/internal/infrastructure/messaging"
	"hvacstock/internal/infrastructure/messaging/kafka"
	"hvacstock/internal/infrastructure/metrics"
	"hvacstock/internal/infrastructure/storage/postgres"
	"hvacstock/internal/infrastructure/storage/postgres/catalog_repo"
	"hvacstock/internal/infrastructure/storage/postgres/order_repo"
	"hvacstock/internal/infrastructure/storage/postgres/register_repo"
	"hvacstock/internal/infrastructure/storage/postgres/settings_repo"
)

// App holds the process-wide dependencies.
type App struct {
	Config    *config.Config
	Pool      *postgres.Pool
	TxManager *postgres.TxManager
	Metrics   *metrics.Metrics

	Ledger    *register_repo.StockRepo
	AuditSink *postgres.AuditSink
	Publisher kafka.Publisher

	Stock       *stock.Service
	Undo        *undo.Guard
	Aggregator  *inventory.Aggregator
	Reservation *reservation.Tracker
	Threshold   *threshold.Service
	Importer    *reconciliation.Importer
	Alerts      *alerts.Detector
	JWT         *auth.JWTService
}

// New connects to the database and builds every service.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.MaxConns = cfg.Database.MaxConns
	poolCfg.MinConns = cfg.Database.MinConns

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.VerifySchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	txManager := postgres.NewTxManager(pool, postgres.WithStatementTimeout(cfg.Database.StatementTimeout))

	sink, err := postgres.NewAuditSink(txManager, cfg.Inventory.AuditCompressThreshold)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("audit sink: %w", err)
	}

	m := metrics.New()

	products := catalog_repo.NewProductRepo(txManager)
	ledger := register_repo.NewStockRepo(txManager)
	settings := settings_repo.NewSettingsRepo(txManager)
	orders := order_repo.NewOrderRepo(txManager)

	auditor := audit.NewOutboxRecorder(
		postgres.NewIsolatedOutboxPublisher(txManager),
		audit.WithFailureObserver(m),
	)

	stockService := stock.NewService(
		ledger, products, txManager,
		postgres.NewOutboxPublisher(txManager),
		auditor,
		stock.WithObserver(m),
	)
	tracker := reservation.NewTracker(orders)
	aggregator := inventory.NewAggregator(products, stockService, tracker, settings)

	kafkaCfg := kafka.DefaultConfig(cfg.Kafka.Brokers)
	kafkaCfg.MovementsTopic = cfg.Kafka.MovementsTopic
	kafkaCfg.AlertsTopic = cfg.Kafka.AlertsTopic
	publisher := kafka.NewPublisher(kafkaCfg)

	jwtCfg := auth.DefaultJWTConfig(cfg.JWT.Secret)
	jwtCfg.Issuer = cfg.JWT.Issuer

	return &App{
		Config:    cfg,
		Pool:      pool,
		TxManager: txManager,
		Metrics:   m,
		Ledger:    ledger,
		AuditSink: sink,
		Publisher: publisher,

		Stock:       stockService,
		Undo:        undo.NewGuard(stockService, undo.WithWindow(cfg.Inventory.UndoWindow), undo.WithObserver(m)),
		Aggregator:  aggregator,
		Reservation: tracker,
		Threshold:   threshold.NewService(products, settings, txManager, auditor),
		Importer: reconciliation.NewImporter(products, stockService, stockService, auditor,
			reconciliation.WithMaxRows(cfg.Inventory.ImportMaxRows),
			reconciliation.WithObserver(m),
		),
		Alerts: alerts.NewDetector(aggregator, publisher),
		JWT:    auth.NewJWTService(jwtCfg),
	}, nil
}

// OutboxRelay builds the relay that drains sys_outbox into the audit log and Kafka.
func (a *App) OutboxRelay() *postgres.OutboxRelay {
	dispatcher := messaging.NewDispatcher(a.AuditSink, a.Publisher, a.Alerts)
	return postgres.NewOutboxRelay(a.Pool.Pool, a.Config.Outbox.BatchSize, dispatcher,
		postgres.WithOutboxObserver(a.Metrics),
		postgres.WithLease(a.Config.Outbox.Lease),
	)
}

// IdempotencyStore returns the HTTP idempotency store, or nil when disabled.
func (a *App) IdempotencyStore() *postgres.IdempotencyStore {
	if !a.Config.Server.IdempotencyEnabled {
		return nil
	}
	return postgres.NewIdempotencyStore(a.TxManager, a.Config.Server.IdempotencyTTL)
}

// Close releases the publisher and the pool.
func (a *App) Close() {
	_ = a.Publisher.Close()
	a.Pool.Close()
}
