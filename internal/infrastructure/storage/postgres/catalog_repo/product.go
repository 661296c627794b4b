// Package catalog_repo provides the PostgreSQL product catalog reader.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/catalog"
	"hvacstock/internal/infrastructure/storage/postgres"
)

const productsTable = "products"

var productColumns = postgres.ExtractDBColumns[entity.Product]()

// ProductRepo implements catalog.Repository.
type ProductRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ catalog.Repository = (*ProductRepo)(nil)

// NewProductRepo creates a new product repository.
func NewProductRepo(txManager *postgres.TxManager) *ProductRepo {
	return &ProductRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *ProductRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder.Select(productColumns...).From(productsTable)
}

// Get retrieves a product by ID.
func (r *ProductRepo) Get(ctx context.Context, productID id.ID) (entity.Product, error) {
	return r.get(ctx, productID, false)
}

// GetForUpdate retrieves a product and locks its row.
func (r *ProductRepo) GetForUpdate(ctx context.Context, productID id.ID) (entity.Product, error) {
	if !r.txManager.InTransaction(ctx) {
		return entity.Product{}, fmt.Errorf("GetForUpdate requires transaction context")
	}
	return r.get(ctx, productID, true)
}

func (r *ProductRepo) get(ctx context.Context, productID id.ID, lock bool) (entity.Product, error) {
	q := r.baseSelect().Where(squirrel.Eq{"id": productID}).Limit(1)
	if lock {
		q = q.Suffix("FOR UPDATE")
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return entity.Product{}, fmt.Errorf("build query: %w", err)
	}

	var p entity.Product
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &p, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.Product{}, apperror.NewProductNotFound(productID)
		}
		return entity.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// GetBySKUs resolves SKUs in one query.
func (r *ProductRepo) GetBySKUs(ctx context.Context, skus []string) (map[string]entity.Product, error) {
	result := make(map[string]entity.Product, len(skus))
	if len(skus) == 0 {
		return result, nil
	}

	sql, args, err := r.baseSelect().Where(squirrel.Eq{"sku": skus}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var products []entity.Product
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &products, sql, args...); err != nil {
		return nil, fmt.Errorf("select by sku: %w", err)
	}
	for _, p := range products {
		result[p.SKU] = p
	}
	return result, nil
}

// List retrieves products matching the filter, ordered by name.
func (r *ProductRepo) List(ctx context.Context, filter catalog.ListFilter) ([]entity.Product, error) {
	q := r.baseSelect()

	if filter.CategoryID != nil {
		q = q.Where(squirrel.Eq{"category_id": *filter.CategoryID})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"name": pattern},
			squirrel.ILike{"sku": pattern},
		})
	}
	if len(filter.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": filter.IDs})
	}

	sql, args, err := q.OrderBy("name", "sku").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	products := []entity.Product{}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &products, sql, args...); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// SetThreshold stores the product's threshold columns.
func (r *ProductRepo) SetThreshold(ctx context.Context, productID id.ID, threshold entity.Threshold) error {
	tx := r.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("SetThreshold requires transaction context")
	}

	override, value := threshold.Columns()
	sql, args, err := r.builder.Update(productsTable).
		Set("low_stock_override", override).
		Set("low_stock_threshold", value).
		Set("updated_at", squirrel.Expr("NOW()")).
		Where(squirrel.Eq{"id": productID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	result, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update threshold: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewProductNotFound(productID)
	}
	return nil
}

// ClearOverrides resets every overridden product to the default.
func (r *ProductRepo) ClearOverrides(ctx context.Context) (int64, error) {
	tx := r.txManager.GetTx(ctx)
	if tx == nil {
		return 0, fmt.Errorf("ClearOverrides requires transaction context")
	}

	result, err := tx.Exec(ctx, `
		UPDATE products
		SET low_stock_override = FALSE, low_stock_threshold = NULL, updated_at = NOW()
		WHERE low_stock_override
	`)
	if err != nil {
		return 0, fmt.Errorf("clear overrides: %w", err)
	}
	return result.RowsAffected(), nil
}
