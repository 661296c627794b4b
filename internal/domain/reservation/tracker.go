// Package reservation computes stock committed to orders that have not shipped.
//
// Reserved quantities are derived from order lines on every read and never
// cached.
package reservation

import (
	"context"
	"fmt"
	"time"

	"hvacstock/internal/core/id"
)

// OrderStatus is the order management system's order status.
type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// ReservingStatuses are the order statuses whose lines hold stock.
var ReservingStatuses = []OrderStatus{StatusConfirmed, StatusProcessing}

// ReservedOrder is one order line holding stock of a product.
type ReservedOrder struct {
	OrderID       id.ID       `db:"order_id" json:"orderId"`
	Status        OrderStatus `db:"status" json:"status"`
	PaymentStatus string      `db:"payment_status" json:"paymentStatus"`
	Quantity      int         `db:"quantity" json:"quantity"`
	CreatedAt     time.Time   `db:"created_at" json:"createdAt"`
}

// OrderReader reads order lines owned by order management.
type OrderReader interface {
	// ReservedQuantities sums line quantities per product over orders in the
	// given statuses. Products without such lines are absent from the map.
	ReservedQuantities(ctx context.Context, statuses []OrderStatus, productIDs []id.ID) (map[id.ID]int, error)

	// ReservingOrders lists lines of a product in the given statuses, newest order first.
	ReservingOrders(ctx context.Context, statuses []OrderStatus, productID id.ID) ([]ReservedOrder, error)
}

// Tracker answers reserved-stock queries.
type Tracker struct {
	orders OrderReader
}

// NewTracker creates a new reservation tracker.
func NewTracker(orders OrderReader) *Tracker {
	return &Tracker{orders: orders}
}

// ReservedStock returns the product's reserved quantity.
func (t *Tracker) ReservedStock(ctx context.Context, productID id.ID) (int, error) {
	reserved, err := t.ReservedByProducts(ctx, []id.ID{productID})
	if err != nil {
		return 0, err
	}
	return reserved[productID], nil
}

// ReservedByProducts returns reserved quantities for every requested product,
// including zeroes.
func (t *Tracker) ReservedByProducts(ctx context.Context, productIDs []id.ID) (map[id.ID]int, error) {
	result := make(map[id.ID]int, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	sums, err := t.orders.ReservedQuantities(ctx, ReservingStatuses, productIDs)
	if err != nil {
		return nil, fmt.Errorf("reserved quantities: %w", err)
	}
	for _, pid := range productIDs {
		result[pid] = sums[pid]
	}
	return result, nil
}

// ReservedOrders lists the orders holding stock of the product.
func (t *Tracker) ReservedOrders(ctx context.Context, productID id.ID) ([]ReservedOrder, error) {
	orders, err := t.orders.ReservingOrders(ctx, ReservingStatuses, productID)
	if err != nil {
		return nil, fmt.Errorf("reserving orders: %w", err)
	}
	return orders, nil
}

// IsReserving reports whether orders in status hold stock.
func IsReserving(status OrderStatus) bool {
	for _, s := range ReservingStatuses {
		if s == status {
			return true
		}
	}
	return false
}
