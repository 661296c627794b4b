// Package register_repo provides the PostgreSQL movement ledger.
package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/registers/stock"
	"hvacstock/internal/infrastructure/storage/postgres"
)

const (
	movementsTable = "inventory_movements"
	balancesTable  = "inventory_stock"
	productsTable  = "products"
)

var (
	movementColumns = postgres.ExtractDBColumns[entity.StockMovement]()
	balanceColumns  = postgres.ExtractDBColumns[entity.StockBalance]()
)

// StockRepo implements stock.Repository.
type StockRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ stock.Repository = (*StockRepo)(nil)

// NewStockRepo creates a new stock register repository.
func NewStockRepo(txManager *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// LockBalance upserts the aggregate row and locks it for the transaction.
func (r *StockRepo) LockBalance(ctx context.Context, productID id.ID) (entity.StockBalance, error) {
	tx := r.txManager.GetTx(ctx)
	if tx == nil {
		return entity.StockBalance{}, fmt.Errorf("LockBalance requires transaction context")
	}

	// The insert is a no-op for existing rows; the follow-up SELECT takes the lock.
	if _, err := tx.Exec(ctx, `
		INSERT INTO inventory_stock (product_id, physical, updated_at)
		VALUES ($1, 0, NOW())
		ON CONFLICT (product_id) DO NOTHING
	`, productID); err != nil {
		return entity.StockBalance{}, fmt.Errorf("ensure balance row: %w", err)
	}

	var balance entity.StockBalance
	if err := pgxscan.Get(ctx, tx, &balance, `
		SELECT product_id, physical, last_movement_id, updated_at
		FROM inventory_stock
		WHERE product_id = $1
		FOR UPDATE
	`, productID); err != nil {
		return entity.StockBalance{}, fmt.Errorf("lock balance: %w", err)
	}
	return balance, nil
}

// AppendMovement inserts the movement and moves the aggregate.
func (r *StockRepo) AppendMovement(ctx context.Context, m entity.StockMovement) (entity.StockBalance, error) {
	tx := r.txManager.GetTx(ctx)
	if tx == nil {
		return entity.StockBalance{}, fmt.Errorf("AppendMovement requires transaction context")
	}
	if m.Delta == 0 {
		return entity.StockBalance{}, apperror.NewValidation("delta must be non-zero")
	}

	sql, args, err := r.builder.Insert(movementsTable).
		Columns(movementColumns...).
		Values(m.ID, m.ProductID, m.Delta, m.Reason, m.OrderID, m.BatchID, m.ActorID, m.CreatedAt).
		ToSql()
	if err != nil {
		return entity.StockBalance{}, fmt.Errorf("build insert: %w", err)
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return entity.StockBalance{}, fmt.Errorf("insert movement: %w", err)
	}

	var balance entity.StockBalance
	if err := pgxscan.Get(ctx, tx, &balance, `
		UPDATE inventory_stock
		SET physical = physical + $2,
		    last_movement_id = $3,
		    updated_at = $4
		WHERE product_id = $1
		RETURNING product_id, physical, last_movement_id, updated_at
	`, m.ProductID, m.Delta, m.ID, m.CreatedAt); err != nil {
		return entity.StockBalance{}, fmt.Errorf("update balance: %w", err)
	}
	return balance, nil
}

// ListMovements returns a product's movements, newest first.
func (r *StockRepo) ListMovements(ctx context.Context, productID id.ID, limit, offset int) ([]entity.StockMovement, error) {
	q := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		Offset(uint64(offset))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	movements := []entity.StockMovement{}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

// SearchMovements returns movements joined with product name and SKU.
func (r *StockRepo) SearchMovements(ctx context.Context, f stock.MovementFilter) ([]entity.MovementView, error) {
	cols := append(postgres.QualifiedColumns("m", movementColumns), "p.name AS product_name", "p.sku")
	q := r.builder.Select(cols...).
		From(movementsTable + " m").
		Join(productsTable + " p ON p.id = m.product_id")

	if f.ProductID != nil {
		q = q.Where(squirrel.Eq{"m.product_id": *f.ProductID})
	}
	if f.CategoryID != nil {
		q = q.Where(squirrel.Eq{"p.category_id": *f.CategoryID})
	}
	if f.BatchID != nil {
		q = q.Where(squirrel.Eq{"m.batch_id": *f.BatchID})
	}
	if len(f.Reasons) > 0 {
		reasons := make([]string, len(f.Reasons))
		for i, reason := range f.Reasons {
			reasons[i] = string(reason)
		}
		q = q.Where(squirrel.Eq{"m.reason": reasons})
	}
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"p.name": pattern},
			squirrel.ILike{"p.sku": pattern},
		})
	}
	if f.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"m.created_at": *f.FromDate})
	}
	if f.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"m.created_at": *f.ToDate})
	}

	q = q.OrderBy("m.created_at DESC", "m.id DESC").
		Limit(uint64(f.Limit)).
		Offset(uint64(f.Offset))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	views := []entity.MovementView{}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &views, sql, args...); err != nil {
		return nil, fmt.Errorf("search movements: %w", err)
	}
	return views, nil
}

// LatestMovement returns the product's most recent movement or nil.
func (r *StockRepo) LatestMovement(ctx context.Context, productID id.ID) (*entity.StockMovement, error) {
	sql, args, err := r.builder.Select(movementColumns...).
		From(movementsTable).
		Where(squirrel.Eq{"product_id": productID}).
		OrderBy("created_at DESC", "id DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var m entity.StockMovement
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &m, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest movement: %w", err)
	}
	return &m, nil
}

// PhysicalStock reads the aggregates of the given products.
func (r *StockRepo) PhysicalStock(ctx context.Context, productIDs []id.ID) (map[id.ID]int, error) {
	result := make(map[id.ID]int, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	sql, args, err := r.builder.Select(balanceColumns...).
		From(balancesTable).
		Where(squirrel.Eq{"product_id": productIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var balances []entity.StockBalance
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &balances, sql, args...); err != nil {
		return nil, fmt.Errorf("select balances: %w", err)
	}

	for _, pid := range productIDs {
		result[pid] = 0
	}
	for _, b := range balances {
		result[b.ProductID] = b.Physical
	}
	return result, nil
}

// RecalculateBalances rewrites aggregates from the ledger, including products
// whose aggregate row is missing.
func (r *StockRepo) RecalculateBalances(ctx context.Context) (int64, error) {
	tx := r.txManager.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("RecalculateBalances requires transaction context")
	}

	// Lock every aggregate so concurrent writers wait for the rebuild.
	if _, err := tx.Exec(ctx, `SELECT 1 FROM inventory_stock FOR UPDATE`); err != nil {
		return 0, fmt.Errorf("lock balances: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		WITH ledger AS (
			SELECT DISTINCT ON (product_id)
			       product_id,
			       SUM(delta) OVER (PARTITION BY product_id) AS physical,
			       id AS last_movement_id
			FROM inventory_movements
			ORDER BY product_id, created_at DESC, id DESC
		)
		INSERT INTO inventory_stock (product_id, physical, last_movement_id, updated_at)
		SELECT product_id, physical, last_movement_id, $1 FROM ledger
		ON CONFLICT (product_id) DO UPDATE
		SET physical = EXCLUDED.physical,
		    last_movement_id = EXCLUDED.last_movement_id,
		    updated_at = EXCLUDED.updated_at
		WHERE inventory_stock.physical IS DISTINCT FROM EXCLUDED.physical
		   OR inventory_stock.last_movement_id IS DISTINCT FROM EXCLUDED.last_movement_id
	`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("recalculate balances: %w", err)
	}

	orphans, err := tx.Exec(ctx, `
		UPDATE inventory_stock s
		SET physical = 0, last_movement_id = NULL, updated_at = $1
		WHERE (s.physical <> 0 OR s.last_movement_id IS NOT NULL)
		  AND NOT EXISTS (SELECT 1 FROM inventory_movements m WHERE m.product_id = s.product_id)
	`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reset empty balances: %w", err)
	}
	return tag.RowsAffected() + orphans.RowsAffected(), nil
}
