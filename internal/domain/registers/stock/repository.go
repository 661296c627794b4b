// Package stock provides the movement ledger and the stock adjustment service,
// the single writer of ledger entries.
package stock

import (
	"context"
	"time"

	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
)

// Repository defines operations for the movement ledger.
type Repository interface {
	// LockBalance returns the product's aggregate row, creating it when absent,
	// and holds a row lock until the surrounding transaction ends.
	// Requires a transaction in ctx.
	LockBalance(ctx context.Context, productID id.ID) (entity.StockBalance, error)

	// AppendMovement inserts the movement and moves the aggregate by its delta
	// in the same transaction. Requires a transaction in ctx.
	AppendMovement(ctx context.Context, movement entity.StockMovement) (entity.StockBalance, error)

	// ListMovements returns a product's movements, newest first.
	ListMovements(ctx context.Context, productID id.ID, limit, offset int) ([]entity.StockMovement, error)

	// SearchMovements returns movements across products joined with catalog fields, newest first.
	SearchMovements(ctx context.Context, filter MovementFilter) ([]entity.MovementView, error)

	// LatestMovement returns the product's most recent movement, or nil when it has none.
	LatestMovement(ctx context.Context, productID id.ID) (*entity.StockMovement, error)

	// PhysicalStock returns on-hand stock per product. Products without movements read 0.
	PhysicalStock(ctx context.Context, productIDs []id.ID) (map[id.ID]int, error)

	// RecalculateBalances rewrites aggregates that drifted from the sum of their
	// deltas and returns how many rows were corrected.
	RecalculateBalances(ctx context.Context) (int64, error)
}

// MovementFilter narrows movement searches.
type MovementFilter struct {
	ProductID  *id.ID
	CategoryID *id.ID
	BatchID    *id.ID
	Reasons    []entity.Reason
	// Search matches product name or SKU.
	Search   string
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Normalize clamps paging to sane bounds.
func (f MovementFilter) Normalize() MovementFilter {
	f.Limit = clampLimit(f.Limit)
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultPageSize
	case limit > MaxPageSize:
		return MaxPageSize
	default:
		return limit
	}
}
