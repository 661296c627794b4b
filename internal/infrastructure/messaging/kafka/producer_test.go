package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/events"
)

type memWriter struct {
	topic    string
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *memWriter) Close() error {
	w.closed = true
	return nil
}

func newTestProducer() (*Producer, map[string]*memWriter) {
	p := NewProducer(DefaultConfig([]string{"localhost:9092"}))
	writers := map[string]*memWriter{}
	p.newWriter = func(topic string) MessageWriter {
		w := &memWriter{topic: topic}
		writers[topic] = w
		return w
	}
	return p, writers
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestProducer_PublishMovement(t *testing.T) {
	p, writers := newTestProducer()

	productID := id.New()
	at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	err := p.PublishMovement(context.Background(), "evt-1", events.MovementRecorded{
		MovementID: id.New(),
		ProductID:  productID,
		Delta:      5,
		Reason:     "po_receipt",
		CreatedAt:  at,
	})
	require.NoError(t, err)

	w := writers["inventory.movements"]
	require.NotNil(t, w)
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, productID.String(), string(msg.Key))
	assert.Equal(t, "1.0", header(msg, "ce-specversion"))
	assert.Equal(t, events.TypeMovementRecorded, header(msg, "ce-type"))
	assert.Equal(t, "evt-1", header(msg, "ce-id"))
	assert.Equal(t, "2024-03-01T10:00:00Z", header(msg, "ce-time"))
	assert.Equal(t, "application/json", header(msg, "content-type"))

	var envelope CloudEvent
	require.NoError(t, json.Unmarshal(msg.Value, &envelope))
	var payload events.MovementRecorded
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, 5, payload.Delta)
}

func TestProducer_SendAlertUsesAlertsTopic(t *testing.T) {
	p, writers := newTestProducer()

	err := p.SendAlert(context.Background(), events.StockAlert{
		ProductID: id.New(),
		Kind:      events.AlertOutOfStock,
		RaisedAt:  time.Now(),
	})
	require.NoError(t, err)

	require.Contains(t, writers, "inventory.alerts")
	assert.Equal(t, events.TypeStockAlert, header(writers["inventory.alerts"].messages[0], "ce-type"))
}

func TestProducer_ReusesWritersAndClosesThem(t *testing.T) {
	p, writers := newTestProducer()
	ctx := context.Background()

	require.NoError(t, p.PublishMovement(ctx, "a", events.MovementRecorded{ProductID: id.New()}))
	require.NoError(t, p.PublishMovement(ctx, "b", events.MovementRecorded{ProductID: id.New()}))
	assert.Len(t, writers["inventory.movements"].messages, 2)

	require.NoError(t, p.Close())
	assert.True(t, writers["inventory.movements"].closed)
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) PublishMovement(context.Context, string, events.MovementRecorded) error {
	f.calls++
	return errors.New("broker down")
}
func (f *failingPublisher) SendAlert(context.Context, events.StockAlert) error { return nil }
func (f *failingPublisher) Close() error                                       { return nil }

func TestCircuitBreakerProducer_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &failingPublisher{}
	cfg := DefaultBreakerConfig()
	cfg.FailureThreshold = 2
	p := NewCircuitBreakerProducer(inner, cfg)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		err := p.PublishMovement(ctx, "x", events.MovementRecorded{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrCircuitOpen)
	}

	err := p.PublishMovement(ctx, "x", events.MovementRecorded{})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls, "open breaker must not reach the broker")
}

func TestNewPublisher_NoBrokers(t *testing.T) {
	assert.IsType(t, NopPublisher{}, NewPublisher(DefaultConfig(nil)))
	assert.IsType(t, &CircuitBreakerProducer{}, NewPublisher(DefaultConfig([]string{"k:9092"})))
}
