// Package events defines the domain events the inventory engine emits and the
// publisher contract they are written through (the transactional outbox).
package events

import (
	"context"
	"time"

	"hvacstock/internal/core/id"
)

// Event types.
const (
	TypeMovementRecorded = "stock.movement_recorded"
	TypeAuditRecorded    = "audit.recorded"
	TypeStockAlert       = "stock.alert"
)

// Aggregate types.
const (
	AggregateProduct  = "product"
	AggregateSettings = "inventory_settings"
	AggregateBatch    = "import_batch"
)

// Event is a domain event to be delivered asynchronously.
type Event struct {
	AggregateType string
	AggregateID   id.ID
	EventType     string
	Payload       any
}

// Publisher durably enqueues events.
//
// Publish joins the transaction carried by ctx, so the event commits or rolls
// back with the business change.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// MovementRecorded is the payload of TypeMovementRecorded.
type MovementRecorded struct {
	MovementID    id.ID     `json:"movementId"`
	ProductID     id.ID     `json:"productId"`
	Delta         int       `json:"delta"`
	Reason        string    `json:"reason"`
	PhysicalAfter int       `json:"physicalAfter"`
	OrderID       *id.ID    `json:"orderId,omitempty"`
	BatchID       *id.ID    `json:"batchId,omitempty"`
	ActorID       *id.ID    `json:"actorId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AlertKind classifies low-stock alerts.
type AlertKind string

const (
	AlertLowStock   AlertKind = "low_stock"
	AlertOutOfStock AlertKind = "out_of_stock"
)

// StockAlert is the payload of TypeStockAlert.
type StockAlert struct {
	ProductID id.ID     `json:"productId"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Kind      AlertKind `json:"kind"`
	Priority  string    `json:"priority"`
	Available int       `json:"available"`
	Threshold int       `json:"threshold"`
	RaisedAt  time.Time `json:"raisedAt"`
}
