package kafka

import (
	"context"

	"hvacstock/internal/domain/events"
	"hvacstock/pkg/logger"
)

// NopPublisher logs events instead of publishing them. Used when no brokers are configured.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) PublishMovement(ctx context.Context, eventID string, m events.MovementRecorded) error {
	logger.Debug(ctx, "movement event not published: no brokers",
		"event_id", eventID, "product_id", m.ProductID, "delta", m.Delta)
	return nil
}

func (NopPublisher) SendAlert(ctx context.Context, alert events.StockAlert) error {
	logger.Info(ctx, "stock alert",
		"product_id", alert.ProductID, "sku", alert.SKU, "kind", alert.Kind, "priority", alert.Priority)
	return nil
}

func (NopPublisher) Close() error { return nil }

// NewPublisher returns a breaker-protected producer, or NopPublisher when cfg has no brokers.
func NewPublisher(cfg Config) Publisher {
	if len(cfg.Brokers) == 0 {
		return NopPublisher{}
	}
	return NewCircuitBreakerProducer(NewProducer(cfg), DefaultBreakerConfig())
}
