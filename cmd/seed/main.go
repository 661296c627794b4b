// Package main seeds the database with a demo HVAC catalog.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/reservation"
	"hvacstock/internal/infrastructure/storage/postgres"
	"hvacstock/internal/infrastructure/storage/postgres/register_repo"
	"hvacstock/pkg/logger"
)

type demoProduct struct {
	name     string
	sku      string
	category string
	opening  int
	// threshold is an override; nil keeps the default.
	threshold *int
}

func intPtr(v int) *int { return &v }

var demoProducts = []demoProduct{
	{name: "Split Klima 9000 BTU", sku: "AC-SPL-09K", category: "split", opening: 14},
	{name: "Split Klima 12000 BTU", sku: "AC-SPL-12K", category: "split", opening: 22, threshold: intPtr(8)},
	{name: "Split Klima 18000 BTU", sku: "AC-SPL-18K", category: "split", opening: 6},
	{name: "Split Klima 24000 BTU", sku: "AC-SPL-24K", category: "split", opening: 2},
	{name: "Salon Tipi Klima 48000 BTU", sku: "AC-FLR-48K", category: "floor", opening: 3, threshold: intPtr(1)},
	{name: "Kaset Tipi Klima 36000 BTU", sku: "AC-CST-36K", category: "cassette", opening: 0},
	{name: "Bakır Boru 1/4 - 3/8 (m)", sku: "PIPE-CU-1438", category: "parts", opening: 500, threshold: intPtr(100)},
	{name: "Duvar Konsolu", sku: "BRKT-WALL", category: "parts", opening: 40},
	{name: "R32 Soğutucu Gaz 3kg", sku: "GAS-R32-3", category: "parts", opening: 9},
	{name: "Kumanda (Universal)", sku: "RMT-UNI", category: "parts", opening: 1, threshold: intPtr(0)},
}

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
		Service:     "seed",
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	var existing int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&existing); err != nil {
		log.Fatalw("failed to count products", "error", err)
	}
	if existing > 0 {
		log.Infow("catalog already seeded, skipping", "products", existing)
		return
	}

	txManager := postgres.NewTxManager(pool)
	if err := txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return seedDemoData(ctx, txManager, log)
	}); err != nil {
		log.Fatalw("failed to seed demo data", "error", err)
	}

	log.Info("seeding completed successfully")
}

func seedDemoData(ctx context.Context, txManager *postgres.TxManager, log *logger.Logger) error {
	inserter := postgres.NewBatchInserter(txManager)
	now := time.Now().UTC()

	categories := map[string]id.ID{}
	categoryOf := func(name string) id.ID {
		if c, ok := categories[name]; ok {
			return c
		}
		c := id.New()
		categories[name] = c
		return c
	}

	products := make([]entity.Product, 0, len(demoProducts))
	movements := make([]entity.StockMovement, 0, len(demoProducts))
	productIDs := make(map[string]id.ID, len(demoProducts))
	for _, p := range demoProducts {
		pid := id.New()
		productIDs[p.sku] = pid
		category := categoryOf(p.category)
		products = append(products, entity.Product{
			ID:                pid,
			Name:              p.name,
			SKU:               p.sku,
			CategoryID:        &category,
			LowStockThreshold: p.threshold,
			LowStockOverride:  p.threshold != nil,
		})
		if p.opening > 0 {
			movements = append(movements, entity.StockMovement{
				ID:        id.New(),
				ProductID: pid,
				Delta:     p.opening,
				Reason:    entity.ReasonPOReceipt,
				CreatedAt: now.Add(-24 * time.Hour),
			})
		}
	}

	n, err := inserter.CopyProducts(ctx, products)
	if err != nil {
		return err
	}
	log.Infow("products seeded", "count", n)

	n, err = inserter.CopyMovements(ctx, movements)
	if err != nil {
		return err
	}
	log.Infow("opening movements seeded", "count", n)

	orders := []struct {
		status reservation.OrderStatus
		lines  map[string]int
	}{
		{status: reservation.StatusConfirmed, lines: map[string]int{"AC-SPL-12K": 3, "BRKT-WALL": 3}},
		{status: reservation.StatusProcessing, lines: map[string]int{"AC-SPL-18K": 5, "PIPE-CU-1438": 20}},
		{status: reservation.StatusConfirmed, lines: map[string]int{"AC-SPL-24K": 1}},
		{status: reservation.StatusDelivered, lines: map[string]int{"AC-SPL-09K": 2}},
	}
	var queries []postgres.BatchQuery
	for i, o := range orders {
		orderID := id.New()
		queries = append(queries, postgres.BatchQuery{
			SQL:  `INSERT INTO orders (id, status, payment_status, created_at) VALUES ($1, $2, 'paid', $3)`,
			Args: []any{orderID, string(o.status), now.Add(-time.Duration(len(orders)-i) * time.Hour)},
		})
		for sku, qty := range o.lines {
			queries = append(queries, postgres.BatchQuery{
				SQL:  `INSERT INTO order_items (order_id, product_id, quantity) VALUES ($1, $2, $3)`,
				Args: []any{orderID, productIDs[sku], qty},
			})
		}
	}
	if err := inserter.ExecuteBatch(ctx, queries); err != nil {
		return err
	}
	log.Infow("orders seeded", "count", len(orders))

	fixed, err := register_repo.NewStockRepo(txManager).RecalculateBalances(ctx)
	if err != nil {
		return err
	}
	log.Infow("stock aggregates rebuilt", "rows", fixed)
	return nil
}
