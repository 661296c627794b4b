// Package alerts raises low-stock and out-of-stock alerts after stock moves.
package alerts

import (
	"context"
	"fmt"
	"time"

	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/events"
	"hvacstock/internal/domain/inventory"
	"hvacstock/pkg/logger"
)

// Alert priorities.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
)

// RowReader reads one product's inventory row.
type RowReader interface {
	ProductRow(ctx context.Context, productID id.ID) (inventory.Row, error)
}

// Sink delivers alerts. Implementations publish directly; alerts are not stored.
type Sink interface {
	SendAlert(ctx context.Context, alert events.StockAlert) error
}

// Detector classifies a product and emits an alert when it is short.
type Detector struct {
	rows RowReader
	sink Sink
	now  func() time.Time
}

// NewDetector creates a new alert detector.
func NewDetector(rows RowReader, sink Sink) *Detector {
	return &Detector{
		rows: rows,
		sink: sink,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Check emits an alert for OUT and CRITICAL products and returns it; nil when
// the product is not short.
func (d *Detector) Check(ctx context.Context, productID id.ID) (*events.StockAlert, error) {
	row, err := d.rows.ProductRow(ctx, productID)
	if err != nil {
		return nil, err
	}

	alert := Evaluate(row, d.now())
	if alert == nil {
		return nil, nil
	}

	if err := d.sink.SendAlert(ctx, *alert); err != nil {
		return nil, fmt.Errorf("send alert: %w", err)
	}

	logger.Info(ctx, "stock alert raised",
		"product_id", productID,
		"kind", alert.Kind,
		"available", alert.Available,
		"threshold", alert.Threshold,
	)
	return alert, nil
}

// Evaluate builds the alert for a row, or nil.
func Evaluate(row inventory.Row, at time.Time) *events.StockAlert {
	var kind events.AlertKind
	var priority string
	switch row.Status {
	case inventory.StatusOut:
		kind, priority = events.AlertOutOfStock, PriorityCritical
	case inventory.StatusCritical:
		kind, priority = events.AlertLowStock, PriorityHigh
	default:
		return nil
	}
	return &events.StockAlert{
		ProductID: row.ProductID,
		SKU:       row.SKU,
		Name:      row.Name,
		Kind:      kind,
		Priority:  priority,
		Available: row.Available,
		Threshold: row.Threshold,
		RaisedAt:  at,
	}
}
