package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"hvacstock/internal/domain/events"
)

const specVersion = "1.0"

// CloudEvent is the envelope of every published message.
type CloudEvent struct {
	SpecVersion     string          `json:"specversion"`
	Type            string          `json:"type"`
	Source          string          `json:"source"`
	ID              string          `json:"id"`
	Time            time.Time       `json:"time"`
	Subject         string          `json:"subject,omitempty"`
	DataContentType string          `json:"datacontenttype"`
	CorrelationID   string          `json:"correlationid,omitempty"`
	Data            json.RawMessage `json:"data"`
}

// MessageWriter is the part of kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes CloudEvents, one writer per topic.
type Producer struct {
	config    Config
	mu        sync.Mutex
	writers   map[string]MessageWriter
	newWriter func(topic string) MessageWriter
}

// NewProducer creates a producer for cfg.Brokers.
func NewProducer(cfg Config) *Producer {
	p := &Producer{
		config:  cfg,
		writers: make(map[string]MessageWriter),
	}
	p.newWriter = func(topic string) MessageWriter {
		return &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
		}
	}
	return p
}

func (p *Producer) writer(topic string) MessageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := p.newWriter(topic)
	p.writers[topic] = w
	return w
}

// PublishEvent writes event to topic keyed by its subject.
func (p *Producer) PublishEvent(ctx context.Context, topic string, event CloudEvent) error {
	msg, err := buildMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish to topic %s: %w", topic, err)
	}
	return nil
}

// PublishMovement publishes a recorded movement to the movements topic.
// The outbox message id doubles as the event id so consumers can deduplicate redeliveries.
func (p *Producer) PublishMovement(ctx context.Context, eventID string, m events.MovementRecorded) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal movement: %w", err)
	}
	return p.PublishEvent(ctx, p.config.MovementsTopic, CloudEvent{
		SpecVersion:     specVersion,
		Type:            events.TypeMovementRecorded,
		Source:          p.config.Source,
		ID:              eventID,
		Time:            m.CreatedAt,
		Subject:         m.ProductID.String(),
		DataContentType: "application/json",
		Data:            data,
	})
}

// SendAlert publishes a stock alert to the alerts topic.
func (p *Producer) SendAlert(ctx context.Context, alert events.StockAlert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return p.PublishEvent(ctx, p.config.AlertsTopic, CloudEvent{
		SpecVersion:     specVersion,
		Type:            events.TypeStockAlert,
		Source:          p.config.Source,
		ID:              fmt.Sprintf("%s-%s-%d", alert.ProductID, alert.Kind, alert.RaisedAt.UnixNano()),
		Time:            alert.RaisedAt,
		Subject:         alert.ProductID.String(),
		DataContentType: "application/json",
		Data:            data,
	})
}

// Close closes all writers.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var lastErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			lastErr = fmt.Errorf("close writer for topic %s: %w", topic, err)
		}
	}
	return lastErr
}

func buildMessage(event CloudEvent) (kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Subject),
		Value: value,
		Headers: []kafka.Header{
			{Key: "ce-specversion", Value: []byte(event.SpecVersion)},
			{Key: "ce-type", Value: []byte(event.Type)},
			{Key: "ce-source", Value: []byte(event.Source)},
			{Key: "ce-id", Value: []byte(event.ID)},
			{Key: "ce-time", Value: []byte(event.Time.Format(time.RFC3339))},
			{Key: "content-type", Value: []byte(event.DataContentType)},
		},
		Time: event.Time,
	}
	if event.CorrelationID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "ce-correlationid", Value: []byte(event.CorrelationID)})
	}
	return msg, nil
}
