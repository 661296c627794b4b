// Package undo reverses a product's latest movement within a short window.
package undo

import (
	"context"
	"time"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/registers/stock"
	"hvacstock/pkg/logger"
)

// DefaultWindow is how long a movement stays undoable.
const DefaultWindow = 10 * time.Minute

// Outcome labels reported to the Observer.
const (
	OutcomeOK       = "ok"
	OutcomeExpired  = "expired"
	OutcomeNone     = "none"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Adjuster is the part of the stock service the guard writes through.
type Adjuster interface {
	Adjust(ctx context.Context, cmd stock.AdjustCommand) (entity.StockMovement, error)
	LatestMovement(ctx context.Context, productID id.ID) (*entity.StockMovement, error)
}

// Observer receives one notification per undo attempt.
type Observer interface {
	ObserveUndo(outcome string)
}

// Eligibility tells a client whether the undo control should be enabled.
type Eligibility struct {
	Movement  *entity.StockMovement `json:"movement,omitempty"`
	Undoable  bool                  `json:"undoable"`
	ExpiresAt *time.Time            `json:"expiresAt,omitempty"`
	// Reason is the error code that would be returned, empty when undoable.
	Reason string `json:"reason,omitempty"`
}

// Guard performs undo requests.
type Guard struct {
	stock    Adjuster
	window   time.Duration
	now      func() time.Time
	observer Observer
}

// Option configures a Guard.
type Option func(*Guard)

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.window = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithObserver reports undo outcomes.
func WithObserver(o Observer) Option {
	return func(g *Guard) { g.observer = o }
}

// NewGuard creates a new undo guard.
func NewGuard(adjuster Adjuster, opts ...Option) *Guard {
	g := &Guard{
		stock:  adjuster,
		window: DefaultWindow,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// UndoLast appends the inverse of the product's latest movement.
//
// The inverse is written with ExpectLatest set, so if another movement lands
// between the read and the write the call fails with CONFLICTING_MOVEMENT.
func (g *Guard) UndoLast(ctx context.Context, productID, actorID id.ID) (entity.StockMovement, error) {
	latest, err := g.latestUndoable(ctx, productID)
	if err != nil {
		g.observe(err)
		return entity.StockMovement{}, err
	}

	expect := latest.ID
	movement, err := g.stock.Adjust(ctx, stock.AdjustCommand{
		ProductID:    productID,
		Delta:        -latest.Delta,
		Reason:       entity.UndoReason(latest.ID),
		OrderID:      latest.OrderID,
		ActorID:      actorID,
		Comment:      "undo " + latest.ID.String(),
		ExpectLatest: &expect,
	})
	g.observe(err)
	if err != nil {
		return entity.StockMovement{}, err
	}

	logger.Info(ctx, "movement undone",
		"product_id", productID,
		"undone_movement_id", latest.ID,
		"movement_id", movement.ID,
	)
	return movement, nil
}

// Eligibility reports whether UndoLast would currently be accepted.
func (g *Guard) Eligibility(ctx context.Context, productID id.ID) (Eligibility, error) {
	latest, err := g.stock.LatestMovement(ctx, productID)
	if err != nil {
		return Eligibility{}, err
	}
	if latest == nil {
		return Eligibility{Reason: apperror.CodeNoMovementToUndo}, nil
	}

	expires := latest.CreatedAt.Add(g.window)
	e := Eligibility{Movement: latest, ExpiresAt: &expires}
	if g.expired(latest) {
		e.Reason = apperror.CodeExpiredUndoWindow
		return e, nil
	}
	e.Undoable = true
	return e, nil
}

func (g *Guard) latestUndoable(ctx context.Context, productID id.ID) (*entity.StockMovement, error) {
	latest, err := g.stock.LatestMovement(ctx, productID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, apperror.NewNoMovementToUndo(productID)
	}
	if g.expired(latest) {
		return nil, apperror.NewExpiredUndoWindow(latest.ID, latest.CreatedAt, g.window)
	}
	return latest, nil
}

func (g *Guard) expired(m *entity.StockMovement) bool {
	return g.now().Sub(m.CreatedAt) > g.window
}

func (g *Guard) observe(err error) {
	if g.observer == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case err == nil:
	case apperror.HasCode(err, apperror.CodeExpiredUndoWindow):
		outcome = OutcomeExpired
	case apperror.HasCode(err, apperror.CodeNoMovementToUndo):
		outcome = OutcomeNone
	case apperror.HasCode(err, apperror.CodeConflictingMovement):
		outcome = OutcomeConflict
	default:
		outcome = OutcomeError
	}
	g.observer.ObserveUndo(outcome)
}
