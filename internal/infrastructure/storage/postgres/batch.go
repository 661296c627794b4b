package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hvacstock/internal/core/entity"
)

// BatchInserter loads rows over the COPY protocol and pgx batches.
//
// COPY bypasses the per-movement aggregate update, so callers that copy
// movements must rebuild inventory_stock in the same transaction.
type BatchInserter struct {
	txManager *TxManager
}

// NewBatchInserter creates a new batch inserter.
func NewBatchInserter(txManager *TxManager) *BatchInserter {
	return &BatchInserter{txManager: txManager}
}

// CopyProducts copies catalog rows. Requires a transaction in ctx.
func (b *BatchInserter) CopyProducts(ctx context.Context, products []entity.Product) (int64, error) {
	cols := ExtractDBColumns[entity.Product]()
	rows := make([][]any, len(products))
	for i, p := range products {
		rows[i] = []any{p.ID, p.Name, p.SKU, p.CategoryID, p.LowStockThreshold, p.LowStockOverride}
	}
	return b.copyRows(ctx, "products", cols, rows)
}

// CopyMovements copies ledger rows without touching inventory_stock.
// Zero deltas are rejected before anything is sent.
func (b *BatchInserter) CopyMovements(ctx context.Context, movements []entity.StockMovement) (int64, error) {
	cols := ExtractDBColumns[entity.StockMovement]()
	rows := make([][]any, len(movements))
	for i, m := range movements {
		if m.Delta == 0 {
			return 0, fmt.Errorf("movement %d for product %s has zero delta", i, m.ProductID)
		}
		rows[i] = []any{m.ID, m.ProductID, m.Delta, string(m.Reason), m.OrderID, m.BatchID, m.ActorID, m.CreatedAt}
	}
	return b.copyRows(ctx, "inventory_movements", cols, rows)
}

func (b *BatchInserter) copyRows(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	tx := b.txManager.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("copy into %s requires transaction context", table)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	return n, nil
}

// BatchQuery is one statement of a batch.
type BatchQuery struct {
	SQL  string
	Args []any
}

// ExecuteBatch sends queries in one round trip. Requires a transaction in ctx.
// The error names the first failing query by position.
func (b *BatchInserter) ExecuteBatch(ctx context.Context, queries []BatchQuery) error {
	tx := b.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("ExecuteBatch requires transaction context")
	}

	batch := &pgx.Batch{}
	for _, q := range queries {
		batch.Queue(q.SQL, q.Args...)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for i := range queries {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch query %d: %w", i, err)
		}
	}
	return nil
}
