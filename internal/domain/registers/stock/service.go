package stock

import (
	"context"
	"fmt"
	"time"

	"hvacstock/internal/core/apperror"
	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/core/tx"
	"hvacstock/internal/domain/audit"
	"hvacstock/internal/domain/catalog"
	"hvacstock/internal/domain/events"
	"hvacstock/pkg/logger"
)

const movementsTable = "inventory_movements"

// Outcome labels reported to the Observer.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Observer receives one notification per adjustment attempt.
type Observer interface {
	ObserveAdjustment(reason entity.Reason, outcome string)
}

// AdjustCommand requests a signed change of a product's physical stock.
type AdjustCommand struct {
	ProductID id.ID
	Delta     int
	Reason    entity.Reason
	OrderID   *id.ID
	BatchID   *id.ID
	ActorID   id.ID
	Comment   string

	// ExpectLatest, when set, makes the adjustment fail with CONFLICTING_MOVEMENT
	// unless it is still the product's latest movement once the lock is held.
	ExpectLatest *id.ID
}

// SetCommand requests that a product's physical stock becomes Target.
type SetCommand struct {
	ProductID id.ID
	Target    int
	Reason    entity.Reason
	BatchID   *id.ID
	ActorID   id.ID
	Comment   string
}

// Service is the only writer of ledger entries.
//
// Every call is one transaction scoped to the product: lock the aggregate row,
// validate against the stock-floor policy, append the movement, enqueue the
// movement event and record the audit entry. Concurrent writers to the same
// product queue on the row lock.
type Service struct {
	repo      Repository
	products  catalog.Repository
	txManager tx.Manager
	publisher events.Publisher
	auditor   audit.Recorder
	observer  Observer
	now       func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithObserver reports adjustment outcomes, typically to metrics.
func WithObserver(o Observer) ServiceOption {
	return func(s *Service) { s.observer = o }
}

// WithClock overrides the timestamp source for new movements.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a new stock adjustment service.
func NewService(
	repo Repository,
	products catalog.Repository,
	txManager tx.Manager,
	publisher events.Publisher,
	auditor audit.Recorder,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		repo:      repo,
		products:  products,
		txManager: txManager,
		publisher: publisher,
		auditor:   auditor,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxQuantity bounds a single delta, a target and the resulting stock.
// Ledger columns are INT, and two values inside the bound always sum inside int32.
const MaxQuantity = 1_000_000_000

func outOfRange(v int) bool {
	return v > MaxQuantity || v < -MaxQuantity
}

// AllowsNegativeStock reports whether a movement with this reason may take
// physical stock below zero. Only corrective "adjust" entries may.
func AllowsNegativeStock(reason entity.Reason) bool {
	return reason == entity.ReasonAdjust
}

// Adjust appends a movement of cmd.Delta.
func (s *Service) Adjust(ctx context.Context, cmd AdjustCommand) (entity.StockMovement, error) {
	if cmd.Delta == 0 {
		return entity.StockMovement{}, apperror.NewValidation("delta must be non-zero")
	}
	if outOfRange(cmd.Delta) {
		return entity.StockMovement{}, apperror.NewValidation("delta out of range").
			WithDetail("delta", cmd.Delta).
			WithDetail("max", MaxQuantity)
	}
	if !cmd.Reason.Valid() {
		return entity.StockMovement{}, apperror.NewValidation("unknown movement reason").
			WithDetail("reason", cmd.Reason)
	}

	return s.write(ctx, cmd.ProductID, cmd.Reason, func(entity.StockBalance) (AdjustCommand, error) {
		return cmd, nil
	})
}

// SetAbsolute appends the movement that brings physical stock to cmd.Target.
// The delta is computed under the product lock; NO_CHANGE when already at target.
func (s *Service) SetAbsolute(ctx context.Context, cmd SetCommand) (entity.StockMovement, error) {
	if cmd.Target < 0 {
		return entity.StockMovement{}, apperror.NewValidation("target quantity must not be negative").
			WithDetail("target", cmd.Target)
	}
	if cmd.Target > MaxQuantity {
		return entity.StockMovement{}, apperror.NewValidation("target quantity out of range").
			WithDetail("target", cmd.Target).
			WithDetail("max", MaxQuantity)
	}
	if !cmd.Reason.Valid() {
		return entity.StockMovement{}, apperror.NewValidation("unknown movement reason").
			WithDetail("reason", cmd.Reason)
	}

	return s.write(ctx, cmd.ProductID, cmd.Reason, func(balance entity.StockBalance) (AdjustCommand, error) {
		delta := cmd.Target - balance.Physical
		if delta == 0 {
			return AdjustCommand{}, apperror.NewNoChange(cmd.ProductID, cmd.Target)
		}
		comment := cmd.Comment
		if comment == "" {
			comment = fmt.Sprintf("set %d -> %d", balance.Physical, cmd.Target)
		}
		return AdjustCommand{
			ProductID: cmd.ProductID,
			Delta:     delta,
			Reason:    cmd.Reason,
			BatchID:   cmd.BatchID,
			ActorID:   cmd.ActorID,
			Comment:   comment,
		}, nil
	})
}

// write runs one locked read-validate-append unit. plan turns the locked balance into the command to apply.
func (s *Service) write(
	ctx context.Context,
	productID id.ID,
	reason entity.Reason,
	plan func(entity.StockBalance) (AdjustCommand, error),
) (entity.StockMovement, error) {
	var recorded entity.StockMovement

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.products.Get(ctx, productID); err != nil {
			return err
		}

		balance, err := s.repo.LockBalance(ctx, productID)
		if err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}

		cmd, err := plan(balance)
		if err != nil {
			return err
		}

		if cmd.ExpectLatest != nil {
			if balance.LastMovementID == nil || *balance.LastMovementID != *cmd.ExpectLatest {
				return apperror.NewConflictingMovement(*cmd.ExpectLatest, balance.LastMovementID)
			}
		}

		resulting := balance.Physical + cmd.Delta
		if outOfRange(resulting) {
			return apperror.NewValidation("resulting stock out of range").
				WithDetail("physical", balance.Physical).
				WithDetail("delta", cmd.Delta).
				WithDetail("max", MaxQuantity)
		}
		if cmd.Delta < 0 && resulting < 0 && !AllowsNegativeStock(cmd.Reason) {
			return apperror.NewInsufficientStock(productID.String(), cmd.Delta, balance.Physical)
		}

		movement := entity.StockMovement{
			ID:        id.New(),
			ProductID: productID,
			Delta:     cmd.Delta,
			Reason:    cmd.Reason,
			OrderID:   cmd.OrderID,
			BatchID:   cmd.BatchID,
			CreatedAt: s.now(),
		}
		if !id.IsNil(cmd.ActorID) {
			actor := cmd.ActorID
			movement.ActorID = &actor
		}

		after, err := s.repo.AppendMovement(ctx, movement)
		if err != nil {
			return fmt.Errorf("append movement: %w", err)
		}

		if err := s.publisher.Publish(ctx, events.Event{
			AggregateType: events.AggregateProduct,
			AggregateID:   productID,
			EventType:     events.TypeMovementRecorded,
			Payload: events.MovementRecorded{
				MovementID:    movement.ID,
				ProductID:     productID,
				Delta:         movement.Delta,
				Reason:        string(movement.Reason),
				PhysicalAfter: after.Physical,
				OrderID:       movement.OrderID,
				BatchID:       movement.BatchID,
				ActorID:       movement.ActorID,
				CreatedAt:     movement.CreatedAt,
			},
		}); err != nil {
			return fmt.Errorf("publish movement event: %w", err)
		}

		s.auditor.Record(ctx, audit.Entry{
			TableName: movementsTable,
			RowPK:     movement.ID.String(),
			Action:    audit.ActionInsert,
			Before:    map[string]any{"physical": balance.Physical},
			After:     movementSnapshot(movement, after.Physical),
			Comment:   auditComment(cmd),
			ActorID:   movement.ActorID,
		})

		recorded = movement
		return nil
	})

	if err != nil {
		s.observe(reason, err)
		return entity.StockMovement{}, err
	}
	s.observe(reason, nil)

	logger.Info(ctx, "stock movement recorded",
		"product_id", recorded.ProductID,
		"movement_id", recorded.ID,
		"delta", recorded.Delta,
		"reason", recorded.Reason,
		"batch_id", recorded.BatchID,
	)

	return recorded, nil
}

func (s *Service) observe(reason entity.Reason, err error) {
	if s.observer == nil {
		return
	}
	label := reason
	if reason.IsUndo() {
		label = "undo"
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
		if appErr, ok := apperror.AsAppError(err); ok && appErr.HTTPStatus < 500 {
			outcome = OutcomeRejected
		}
	}
	s.observer.ObserveAdjustment(label, outcome)
}

// ListMovements returns a product's movement history, newest first.
func (s *Service) ListMovements(ctx context.Context, productID id.ID, limit, offset int) ([]entity.StockMovement, error) {
	if _, err := s.products.Get(ctx, productID); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	movements, err := s.repo.ListMovements(ctx, productID, clampLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	return movements, nil
}

// SearchMovements returns one page of the cross-product movement journal.
func (s *Service) SearchMovements(ctx context.Context, filter MovementFilter) ([]entity.MovementView, error) {
	movements, err := s.repo.SearchMovements(ctx, filter.Normalize())
	if err != nil {
		return nil, fmt.Errorf("search movements: %w", err)
	}
	return movements, nil
}

// LatestMovement returns the product's most recent movement or nil.
func (s *Service) LatestMovement(ctx context.Context, productID id.ID) (*entity.StockMovement, error) {
	if _, err := s.products.Get(ctx, productID); err != nil {
		return nil, err
	}
	m, err := s.repo.LatestMovement(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("latest movement: %w", err)
	}
	return m, nil
}

// PhysicalStock returns on-hand stock for the given products.
func (s *Service) PhysicalStock(ctx context.Context, productIDs []id.ID) (map[id.ID]int, error) {
	stock, err := s.repo.PhysicalStock(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("physical stock: %w", err)
	}
	return stock, nil
}

// Recalculate repairs aggregates from the ledger.
func (s *Service) Recalculate(ctx context.Context) (int64, error) {
	var fixed int64
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		fixed, err = s.repo.RecalculateBalances(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("recalculate balances: %w", err)
	}
	if fixed > 0 {
		logger.Warn(ctx, "stock aggregates corrected from ledger", "rows", fixed)
	}
	return fixed, nil
}

func movementSnapshot(m entity.StockMovement, physicalAfter int) map[string]any {
	snap := map[string]any{
		"id":         m.ID.String(),
		"product_id": m.ProductID.String(),
		"delta":      m.Delta,
		"reason":     string(m.Reason),
		"created_at": m.CreatedAt,
		"physical":   physicalAfter,
	}
	if m.OrderID != nil {
		snap["order_id"] = m.OrderID.String()
	}
	if m.BatchID != nil {
		snap["batch_id"] = m.BatchID.String()
	}
	return snap
}

func auditComment(cmd AdjustCommand) string {
	if cmd.Comment != "" {
		return cmd.Comment
	}
	return fmt.Sprintf("%s %+d", cmd.Reason, cmd.Delta)
}
