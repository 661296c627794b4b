package stock_test

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/audit"
	"hvacstock/internal/domain/events"
	"hvacstock/internal/domain/inventorytest"
	"hvacstock/internal/domain/registers/stock"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
}

func (o *recordingObserver) ObserveAdjustment(reason entity.Reason, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, string(reason)+"/"+outcome)
}

func newService(t *testing.T) (*stock.Service, *inventorytest.Store, *inventorytest.Auditor, entity.Product) {
	t.Helper()
	store := inventorytest.NewStore()
	auditor := &inventorytest.Auditor{}
	product := store.AddProduct("Split klima 12000 BTU", "AC-12")
	return store.StockService(auditor), store, auditor, product
}

func TestAdjust_RecordsMovement(t *testing.T) {
	svc, store, auditor, product := newService(t)
	ctx := context.Background()
	actor := id.New()

	m, err := svc.Adjust(ctx, stock.AdjustCommand{
		ProductID: product.ID,
		Delta:     5,
		Reason:    entity.ReasonPOReceipt,
		ActorID:   actor,
	})
	require.NoError(t, err)

	assert.Equal(t, 5, m.Delta)
	assert.Equal(t, entity.ReasonPOReceipt, m.Reason)
	require.NotNil(t, m.ActorID)
	assert.Equal(t, actor, *m.ActorID)

	assert.Equal(t, 5, store.Balance(product.ID).Physical)
	assert.Equal(t, m.ID, *store.Balance(product.ID).LastMovementID)

	evs := store.EventsOfType(events.TypeMovementRecorded)
	require.Len(t, evs, 1)
	payload := evs[0].Payload.(events.MovementRecorded)
	assert.Equal(t, m.ID, payload.MovementID)
	assert.Equal(t, 5, payload.PhysicalAfter)

	entries := auditor.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "inventory_movements", entries[0].TableName)
	assert.Equal(t, audit.ActionInsert, entries[0].Action)
	assert.Equal(t, m.ID.String(), entries[0].RowPK)
}

func TestAdjust_Validation(t *testing.T) {
	svc, store, _, product := newService(t)

	tests := []struct {
		name string
		cmd  stock.AdjustCommand
		code string
	}{
		{"zero delta", stock.AdjustCommand{ProductID: product.ID, Delta: 0, Reason: entity.ReasonManualIn}, apperror.CodeValidation},
		{"unknown reason", stock.AdjustCommand{ProductID: product.ID, Delta: 1, Reason: "gift"}, apperror.CodeValidation},
		{"unknown product", stock.AdjustCommand{ProductID: id.New(), Delta: 1, Reason: entity.ReasonManualIn}, apperror.CodeProductNotFound},
		{"below zero", stock.AdjustCommand{ProductID: product.ID, Delta: -1, Reason: entity.ReasonSale}, apperror.CodeInsufficientStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Adjust(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)
		})
	}

	assert.Empty(t, store.Movements(product.ID))
	assert.Empty(t, store.Events())
}

func TestAdjust_StockFloor(t *testing.T) {
	svc, store, _, product := newService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: 2, Reason: entity.ReasonManualIn})
	require.NoError(t, err)

	_, err = svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: -3, Reason: entity.ReasonSale})
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperror.CodeInsufficientStock, appErr.Code)
	assert.Equal(t, 2, store.Balance(product.ID).Physical)

	// adjust is the corrective path and may go negative.
	_, err = svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: -3, Reason: entity.ReasonAdjust})
	require.NoError(t, err)
	assert.Equal(t, -1, store.Balance(product.ID).Physical)
}

func TestAdjust_QuantityBounds(t *testing.T) {
	svc, store, _, product := newService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: 5, Reason: entity.ReasonManualIn})
	require.NoError(t, err)

	rejected := []struct {
		name string
		cmd  stock.AdjustCommand
	}{
		{"max int", stock.AdjustCommand{ProductID: product.ID, Delta: math.MaxInt, Reason: entity.ReasonManualIn}},
		{"above int32", stock.AdjustCommand{ProductID: product.ID, Delta: 3_000_000_000, Reason: entity.ReasonManualIn}},
		{"one above the bound", stock.AdjustCommand{ProductID: product.ID, Delta: stock.MaxQuantity + 1, Reason: entity.ReasonManualIn}},
		{"min int", stock.AdjustCommand{ProductID: product.ID, Delta: math.MinInt, Reason: entity.ReasonAdjust}},
		{"result above the bound", stock.AdjustCommand{ProductID: product.ID, Delta: stock.MaxQuantity, Reason: entity.ReasonManualIn}},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Adjust(ctx, tt.cmd)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "got %v", err)
			assert.Equal(t, 5, store.Balance(product.ID).Physical)
		})
	}

	_, err = svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: stock.MaxQuantity - 5, Reason: entity.ReasonManualIn})
	require.NoError(t, err)
	assert.Equal(t, stock.MaxQuantity, store.Balance(product.ID).Physical)

	// adjust may go negative, but not past the bound.
	_, err = svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: -stock.MaxQuantity, Reason: entity.ReasonAdjust})
	require.NoError(t, err)
	_, err = svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: -stock.MaxQuantity, Reason: entity.ReasonAdjust})
	require.NoError(t, err)
	assert.Equal(t, -stock.MaxQuantity, store.Balance(product.ID).Physical)
	_, err = svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: -1, Reason: entity.ReasonAdjust})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "got %v", err)
	assert.Equal(t, -stock.MaxQuantity, store.Balance(product.ID).Physical)
}

func TestSetAbsolute_TargetBounds(t *testing.T) {
	svc, store, _, product := newService(t)
	ctx := context.Background()

	_, err := svc.SetAbsolute(ctx, stock.SetCommand{ProductID: product.ID, Target: stock.MaxQuantity + 1, Reason: entity.ReasonAdjust})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation), "got %v", err)
	assert.Empty(t, store.Movements(product.ID))

	_, err = svc.SetAbsolute(ctx, stock.SetCommand{ProductID: product.ID, Target: stock.MaxQuantity, Reason: entity.ReasonAdjust})
	require.NoError(t, err)
	assert.Equal(t, stock.MaxQuantity, store.Balance(product.ID).Physical)
}

func TestAdjust_PublishFailureRollsBack(t *testing.T) {
	svc, store, auditor, product := newService(t)
	store.PublishErr = errors.New("outbox unavailable")

	_, err := svc.Adjust(context.Background(), stock.AdjustCommand{ProductID: product.ID, Delta: 4, Reason: entity.ReasonManualIn})
	require.Error(t, err)

	assert.Empty(t, store.Movements(product.ID))
	assert.Zero(t, store.Balance(product.ID).Physical)
	assert.Empty(t, auditor.Entries())
}

func TestAdjust_ExpectLatest(t *testing.T) {
	svc, store, _, product := newService(t)
	ctx := context.Background()

	first, err := svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: 5, Reason: entity.ReasonManualIn})
	require.NoError(t, err)
	_, err = svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: 1, Reason: entity.ReasonManualIn})
	require.NoError(t, err)

	stale := first.ID
	_, err = svc.Adjust(ctx, stock.AdjustCommand{
		ProductID:    product.ID,
		Delta:        -5,
		Reason:       entity.UndoReason(first.ID),
		ExpectLatest: &stale,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeConflictingMovement))
	assert.Len(t, store.Movements(product.ID), 2)
}

func TestAdjust_LedgerSumMatchesPhysical(t *testing.T) {
	svc, store, _, product := newService(t)
	ctx := context.Background()

	deltas := []int{10, -3, 4, -11, 7, -2}
	for _, d := range deltas {
		_, err := svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: d, Reason: entity.ReasonAdjust})
		require.NoError(t, err)
		assert.Equal(t, store.SumDeltas(product.ID), store.Balance(product.ID).Physical)
	}
	assert.Equal(t, 5, store.Balance(product.ID).Physical)
}

func TestAdjust_ConcurrentWritersSerialize(t *testing.T) {
	svc, store, _, product := newService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: 10, Reason: entity.ReasonPOReceipt})
	require.NoError(t, err)

	const pairs = 50
	var wg sync.WaitGroup
	errs := make(chan error, pairs*2)
	for i := 0; i < pairs; i++ {
		for _, d := range []int{3, -3} {
			wg.Add(1)
			go func(delta int) {
				defer wg.Done()
				_, err := svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: delta, Reason: entity.ReasonAdjust})
				errs <- err
			}(d)
		}
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, store.Movements(product.ID), 1+pairs*2)
	assert.Equal(t, 10, store.Balance(product.ID).Physical)
	assert.Equal(t, 10, store.SumDeltas(product.ID))
}

func TestSetAbsolute(t *testing.T) {
	svc, store, _, product := newService(t)
	ctx := context.Background()

	m, err := svc.SetAbsolute(ctx, stock.SetCommand{ProductID: product.ID, Target: 12, Reason: entity.ReasonAdjust})
	require.NoError(t, err)
	assert.Equal(t, 12, m.Delta)

	m, err = svc.SetAbsolute(ctx, stock.SetCommand{ProductID: product.ID, Target: 4, Reason: entity.ReasonAdjust})
	require.NoError(t, err)
	assert.Equal(t, -8, m.Delta)
	assert.Equal(t, 4, store.Balance(product.ID).Physical)

	_, err = svc.SetAbsolute(ctx, stock.SetCommand{ProductID: product.ID, Target: 4, Reason: entity.ReasonAdjust})
	assert.True(t, apperror.HasCode(err, apperror.CodeNoChange))

	_, err = svc.SetAbsolute(ctx, stock.SetCommand{ProductID: product.ID, Target: -1, Reason: entity.ReasonAdjust})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	assert.Len(t, store.Movements(product.ID), 2)
}

func TestAdjust_ObserverOutcomes(t *testing.T) {
	store := inventorytest.NewStore()
	product := store.AddProduct("Termostat", "TH-1")
	obs := &recordingObserver{}
	svc := store.StockService(&inventorytest.Auditor{}, stock.WithObserver(obs))
	ctx := context.Background()

	m, err := svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: 1, Reason: entity.ReasonManualIn})
	require.NoError(t, err)
	_, _ = svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: -5, Reason: entity.ReasonSale})
	_, err = svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: -1, Reason: entity.UndoReason(m.ID)})
	require.NoError(t, err)

	assert.Equal(t, []string{"manual_in/ok", "sale/rejected", "undo/ok"}, obs.calls)
}

func TestListMovements_NewestFirst(t *testing.T) {
	store := inventorytest.NewStore()
	product := store.AddProduct("Bakır boru", "CU-14")
	clock := inventorytest.NewClock(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC))
	svc := store.StockService(&inventorytest.Auditor{}, stock.WithClock(clock.Now))
	ctx := context.Background()

	for _, d := range []int{1, 2, 3} {
		_, err := svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: d, Reason: entity.ReasonManualIn})
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	list, err := svc.ListMovements(ctx, product.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 3, list[0].Delta)
	assert.Equal(t, 2, list[1].Delta)

	_, err = svc.ListMovements(ctx, id.New(), 10, 0)
	assert.True(t, apperror.HasCode(err, apperror.CodeProductNotFound))
}

func TestRecalculate(t *testing.T) {
	svc, store, _, product := newService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, stock.AdjustCommand{ProductID: product.ID, Delta: 6, Reason: entity.ReasonManualIn})
	require.NoError(t, err)
	store.CorruptBalance(product.ID, 99)

	fixed, err := svc.Recalculate(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, fixed)
	assert.Equal(t, 6, store.Balance(product.ID).Physical)
}
