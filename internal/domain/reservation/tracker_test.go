package reservation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/inventorytest"
	"hvacstock/internal/domain/reservation"
)

func TestTracker_ReservedStock(t *testing.T) {
	store := inventorytest.NewStore()
	tracker := reservation.NewTracker(store.Orders())
	product := store.AddProduct("Klima", "AC-1")
	other := store.AddProduct("Filtre", "FL-1")
	at := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	store.AddOrder(reservation.StatusConfirmed, at, map[id.ID]int{product.ID: 2, other.ID: 1})
	store.AddOrder(reservation.StatusProcessing, at, map[id.ID]int{product.ID: 3})
	store.AddOrder(reservation.StatusPending, at, map[id.ID]int{product.ID: 10})
	store.AddOrder(reservation.StatusShipped, at, map[id.ID]int{product.ID: 20})
	cancelled := store.AddOrder(reservation.StatusConfirmed, at, map[id.ID]int{product.ID: 4})
	store.SetOrderStatus(cancelled, reservation.StatusCancelled)

	ctx := context.Background()
	reserved, err := tracker.ReservedStock(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, reserved)

	byProduct, err := tracker.ReservedByProducts(ctx, []id.ID{product.ID, other.ID, id.New()})
	require.NoError(t, err)
	assert.Len(t, byProduct, 3)
	assert.Equal(t, 1, byProduct[other.ID])
}

func TestTracker_ReservedOrders(t *testing.T) {
	store := inventorytest.NewStore()
	tracker := reservation.NewTracker(store.Orders())
	product := store.AddProduct("Klima", "AC-1")
	at := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	older := store.AddOrder(reservation.StatusConfirmed, at, map[id.ID]int{product.ID: 1})
	newer := store.AddOrder(reservation.StatusProcessing, at.Add(time.Hour), map[id.ID]int{product.ID: 2})
	store.AddOrder(reservation.StatusDelivered, at.Add(2*time.Hour), map[id.ID]int{product.ID: 2})

	orders, err := tracker.ReservedOrders(context.Background(), product.ID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, newer, orders[0].OrderID)
	assert.Equal(t, older, orders[1].OrderID)
}

func TestIsReserving(t *testing.T) {
	tests := []struct {
		status reservation.OrderStatus
		want   bool
	}{
		{reservation.StatusPending, false},
		{reservation.StatusConfirmed, true},
		{reservation.StatusProcessing, true},
		{reservation.StatusShipped, false},
		{reservation.StatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, reservation.IsReserving(tt.status))
		})
	}
}
