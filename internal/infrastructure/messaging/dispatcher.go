// Package messaging routes outbox messages to their destinations.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/audit"
	"hvacstock/internal/domain/events"
	"hvacstock/internal/infrastructure/messaging/kafka"
	"hvacstock/internal/infrastructure/storage/postgres"
	"hvacstock/pkg/logger"
)

// AuditWriter persists audit entries, keyed by the outbox message id.
type AuditWriter interface {
	Write(ctx context.Context, recordID id.ID, entry audit.Entry) error
}

// AlertChecker evaluates a product after its stock moved.
type AlertChecker interface {
	Check(ctx context.Context, productID id.ID) (*events.StockAlert, error)
}

// Dispatcher implements postgres.OutboxHandler.
type Dispatcher struct {
	audit     AuditWriter
	publisher kafka.Publisher
	alerts    AlertChecker
}

var _ postgres.OutboxHandler = (*Dispatcher)(nil)

// NewDispatcher creates a dispatcher. alerts may be nil.
func NewDispatcher(auditWriter AuditWriter, publisher kafka.Publisher, alerts AlertChecker) *Dispatcher {
	return &Dispatcher{audit: auditWriter, publisher: publisher, alerts: alerts}
}

// Handle delivers one message. A returned error leaves the message for retry.
func (d *Dispatcher) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	switch msg.EventType {
	case events.TypeAuditRecorded:
		var entry audit.Entry
		if err := json.Unmarshal(msg.Payload, &entry); err != nil {
			return fmt.Errorf("decode audit entry: %w", err)
		}
		return d.audit.Write(ctx, msg.ID, entry)

	case events.TypeMovementRecorded:
		var m events.MovementRecorded
		if err := json.Unmarshal(msg.Payload, &m); err != nil {
			return fmt.Errorf("decode movement: %w", err)
		}
		if err := d.publisher.PublishMovement(ctx, msg.ID.String(), m); err != nil {
			return err
		}
		d.checkAlert(ctx, m.ProductID)
		return nil

	default:
		return fmt.Errorf("no handler for event type %q", msg.EventType)
	}
}

// checkAlert never fails the message: the movement is already published and
// a retry would publish it again.
func (d *Dispatcher) checkAlert(ctx context.Context, productID id.ID) {
	if d.alerts == nil {
		return
	}
	if _, err := d.alerts.Check(ctx, productID); err != nil {
		logger.Warn(ctx, "stock alert check failed", "product_id", productID, "error", err)
	}
}
