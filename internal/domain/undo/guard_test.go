package undo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/inventorytest"
	"hvacstock/internal/domain/registers/stock"
	"hvacstock/internal/domain/undo"
)

type outcomes []string

func (o *outcomes) ObserveUndo(outcome string) { *o = append(*o, outcome) }

type fixture struct {
	store *inventorytest.Store
	clock *inventorytest.Clock
	stock *stock.Service
	guard *undo.Guard
	obs   *outcomes
}

func newFixture() fixture {
	store := inventorytest.NewStore()
	clock := inventorytest.NewClock(time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC))
	svc := store.StockService(&inventorytest.Auditor{}, stock.WithClock(clock.Now))
	obs := &outcomes{}
	guard := undo.NewGuard(svc, undo.WithClock(clock.Now), undo.WithObserver(obs))
	return fixture{store: store, clock: clock, stock: svc, guard: guard, obs: obs}
}

func TestUndoLast_AppendsInverse(t *testing.T) {
	f := newFixture()
	p := f.store.AddProduct("Klima", "AC-1")
	ctx := context.Background()
	actor := id.New()

	added, err := f.stock.Adjust(ctx, stock.AdjustCommand{ProductID: p.ID, Delta: 5, Reason: entity.ReasonManualIn})
	require.NoError(t, err)

	f.clock.Advance(3 * time.Minute)
	inverse, err := f.guard.UndoLast(ctx, p.ID, actor)
	require.NoError(t, err)

	assert.Equal(t, -5, inverse.Delta)
	assert.Equal(t, entity.UndoReason(added.ID), inverse.Reason)
	assert.Equal(t, "undo:"+id.Short(added.ID), string(inverse.Reason))
	require.NotNil(t, inverse.ActorID)
	assert.Equal(t, actor, *inverse.ActorID)

	movements := f.store.Movements(p.ID)
	require.Len(t, movements, 2)
	assert.Zero(t, f.store.Balance(p.ID).Physical)
	assert.Equal(t, outcomes{undo.OutcomeOK}, *f.obs)
}

func TestUndoLast_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f fixture, productID id.ID)
		code    string
		outcome string
	}{
		{
			name:    "no movements",
			setup:   func(fixture, id.ID) {},
			code:    apperror.CodeNoMovementToUndo,
			outcome: undo.OutcomeNone,
		},
		{
			name: "window elapsed",
			setup: func(f fixture, productID id.ID) {
				_, err := f.stock.Adjust(context.Background(), stock.AdjustCommand{ProductID: productID, Delta: 5, Reason: entity.ReasonManualIn})
				if err != nil {
					panic(err)
				}
				f.clock.Advance(11 * time.Minute)
			},
			code:    apperror.CodeExpiredUndoWindow,
			outcome: undo.OutcomeExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			p := f.store.AddProduct("Klima", "AC-1")
			tt.setup(f, p.ID)
			before := len(f.store.Movements(p.ID))

			_, err := f.guard.UndoLast(context.Background(), p.ID, id.New())
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)
			assert.Len(t, f.store.Movements(p.ID), before)
			assert.Equal(t, outcomes{tt.outcome}, *f.obs)
		})
	}
}

func TestUndoLast_ExactlyAtWindowBoundary(t *testing.T) {
	f := newFixture()
	p := f.store.AddProduct("Klima", "AC-1")
	ctx := context.Background()

	_, err := f.stock.Adjust(ctx, stock.AdjustCommand{ProductID: p.ID, Delta: 2, Reason: entity.ReasonManualIn})
	require.NoError(t, err)
	f.clock.Advance(undo.DefaultWindow)

	_, err = f.guard.UndoLast(ctx, p.ID, id.New())
	assert.NoError(t, err)
}

// racingAdjuster appends another movement between the guard's read and write.
type racingAdjuster struct {
	*stock.Service
	productID id.ID
	raced     bool
}

func (r *racingAdjuster) Adjust(ctx context.Context, cmd stock.AdjustCommand) (entity.StockMovement, error) {
	if cmd.ExpectLatest != nil && !r.raced {
		r.raced = true
		if _, err := r.Service.Adjust(ctx, stock.AdjustCommand{ProductID: r.productID, Delta: 1, Reason: entity.ReasonManualIn}); err != nil {
			return entity.StockMovement{}, err
		}
	}
	return r.Service.Adjust(ctx, cmd)
}

func TestUndoLast_ConflictingMovement(t *testing.T) {
	f := newFixture()
	p := f.store.AddProduct("Klima", "AC-1")
	ctx := context.Background()

	_, err := f.stock.Adjust(ctx, stock.AdjustCommand{ProductID: p.ID, Delta: 5, Reason: entity.ReasonManualIn})
	require.NoError(t, err)

	racer := &racingAdjuster{Service: f.stock, productID: p.ID}
	guard := undo.NewGuard(racer, undo.WithClock(f.clock.Now))

	_, err = guard.UndoLast(ctx, p.ID, id.New())
	assert.True(t, apperror.HasCode(err, apperror.CodeConflictingMovement), "got %v", err)

	movements := f.store.Movements(p.ID)
	require.Len(t, movements, 2)
	assert.Equal(t, 6, f.store.Balance(p.ID).Physical)
}

func TestEligibility(t *testing.T) {
	f := newFixture()
	p := f.store.AddProduct("Klima", "AC-1")
	ctx := context.Background()

	e, err := f.guard.Eligibility(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, e.Undoable)
	assert.Equal(t, apperror.CodeNoMovementToUndo, e.Reason)

	m, err := f.stock.Adjust(ctx, stock.AdjustCommand{ProductID: p.ID, Delta: 1, Reason: entity.ReasonManualIn})
	require.NoError(t, err)

	e, err = f.guard.Eligibility(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, e.Undoable)
	require.NotNil(t, e.ExpiresAt)
	assert.Equal(t, m.CreatedAt.Add(undo.DefaultWindow), *e.ExpiresAt)

	f.clock.Advance(undo.DefaultWindow + time.Second)
	e, err = f.guard.Eligibility(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, e.Undoable)
	assert.Equal(t, apperror.CodeExpiredUndoWindow, e.Reason)

	_, err = f.guard.Eligibility(ctx, id.New())
	assert.True(t, apperror.HasCode(err, apperror.CodeProductNotFound))
}

func TestEligibility_HistoricMovementExpired(t *testing.T) {
	f := newFixture()
	p := f.store.AddProduct("Klima", "AC-1")
	old := f.store.SeedMovement(entity.StockMovement{
		ProductID: p.ID,
		Delta:     12,
		Reason:    entity.ReasonPOReceipt,
		CreatedAt: f.clock.Now().Add(-time.Hour),
	})

	e, err := f.guard.Eligibility(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, e.Movement)
	assert.Equal(t, old.ID, e.Movement.ID)
	assert.False(t, e.Undoable)
	assert.Equal(t, apperror.CodeExpiredUndoWindow, e.Reason)
}
