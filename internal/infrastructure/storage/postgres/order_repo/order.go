// Package order_repo reads order lines for reservation accounting.
// Orders are written by the storefront checkout; this package never writes them.
package order_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/reservation"
	"hvacstock/internal/infrastructure/storage/postgres"
)

// OrderRepo implements reservation.OrderReader.
type OrderRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

var _ reservation.OrderReader = (*OrderRepo)(nil)

func NewOrderRepo(txManager *postgres.TxManager) *OrderRepo {
	return &OrderRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

type reservedRow struct {
	ProductID id.ID `db:"product_id"`
	Quantity  int   `db:"quantity"`
}

// ReservedQuantities sums order line quantities per product over orders in statuses.
func (r *OrderRepo) ReservedQuantities(ctx context.Context, statuses []reservation.OrderStatus, productIDs []id.ID) (map[id.ID]int, error) {
	result := make(map[id.ID]int, len(productIDs))
	if len(productIDs) == 0 || len(statuses) == 0 {
		return result, nil
	}

	sql, args, err := r.builder.
		Select("oi.product_id", "COALESCE(SUM(oi.quantity), 0) AS quantity").
		From("order_items oi").
		Join("orders o ON o.id = oi.order_id").
		Where(squirrel.Eq{"o.status": statusStrings(statuses)}).
		Where(squirrel.Eq{"oi.product_id": productIDs}).
		GroupBy("oi.product_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []reservedRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("sum reserved: %w", err)
	}
	for _, row := range rows {
		result[row.ProductID] = row.Quantity
	}
	return result, nil
}

// ReservingOrders lists the orders holding a product, newest first.
func (r *OrderRepo) ReservingOrders(ctx context.Context, statuses []reservation.OrderStatus, productID id.ID) ([]reservation.ReservedOrder, error) {
	if len(statuses) == 0 {
		return []reservation.ReservedOrder{}, nil
	}

	sql, args, err := r.builder.
		Select("o.id AS order_id", "o.status", "o.payment_status", "SUM(oi.quantity) AS quantity", "o.created_at").
		From("order_items oi").
		Join("orders o ON o.id = oi.order_id").
		Where(squirrel.Eq{"o.status": statusStrings(statuses)}).
		Where(squirrel.Eq{"oi.product_id": productID}).
		GroupBy("o.id", "o.status", "o.payment_status", "o.created_at").
		OrderBy("o.created_at DESC", "o.id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	orders := []reservation.ReservedOrder{}
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &orders, sql, args...); err != nil {
		return nil, fmt.Errorf("select reserving orders: %w", err)
	}
	return orders, nil
}

func statusStrings(statuses []reservation.OrderStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
