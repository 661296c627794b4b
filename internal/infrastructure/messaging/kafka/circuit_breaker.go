package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"hvacstock/internal/domain/events"
	"hvacstock/pkg/logger"
)

// ErrCircuitOpen is returned while the broker is considered unavailable.
var ErrCircuitOpen = errors.New("kafka circuit breaker is open")

// BreakerConfig configures the circuit breaker around the producer.
type BreakerConfig struct {
	MaxRequests           uint32        // requests allowed in half-open state
	Interval              time.Duration // window after which closed-state counts reset
	Timeout               time.Duration // open -> half-open delay
	FailureThreshold      uint32
	FailureRatioThreshold float64
	MinRequestsToTrip     uint32
}

// DefaultBreakerConfig returns the producer breaker settings.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:           5,
		Interval:              time.Minute,
		Timeout:               30 * time.Second,
		FailureThreshold:      5,
		FailureRatioThreshold: 0.5,
		MinRequestsToTrip:     10,
	}
}

// Publisher is what the outbox dispatcher needs from a broker.
type Publisher interface {
	PublishMovement(ctx context.Context, eventID string, m events.MovementRecorded) error
	SendAlert(ctx context.Context, alert events.StockAlert) error
	Close() error
}

var (
	_ Publisher = (*Producer)(nil)
	_ Publisher = (*CircuitBreakerProducer)(nil)
)

// CircuitBreakerProducer fails fast while the broker keeps failing, leaving
// outbox rows pending for the relay's next attempt.
type CircuitBreakerProducer struct {
	producer Publisher
	cb       *gobreaker.CircuitBreaker
}

// NewCircuitBreakerProducer wraps producer.
func NewCircuitBreakerProducer(producer Publisher, cfg BreakerConfig) *CircuitBreakerProducer {
	log := logger.Default().WithComponent("kafka")
	settings := gobreaker.Settings{
		Name:        "kafka-producer",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			if counts.Requests >= cfg.MinRequestsToTrip {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= cfg.FailureRatioThreshold
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	}
	return &CircuitBreakerProducer{
		producer: producer,
		cb:       gobreaker.NewCircuitBreaker(settings),
	}
}

func (p *CircuitBreakerProducer) execute(fn func() error) error {
	_, err := p.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	return err
}

func (p *CircuitBreakerProducer) PublishMovement(ctx context.Context, eventID string, m events.MovementRecorded) error {
	return p.execute(func() error { return p.producer.PublishMovement(ctx, eventID, m) })
}

func (p *CircuitBreakerProducer) SendAlert(ctx context.Context, alert events.StockAlert) error {
	return p.execute(func() error { return p.producer.SendAlert(ctx, alert) })
}

// State returns the breaker state.
func (p *CircuitBreakerProducer) State() gobreaker.State {
	return p.cb.State()
}

func (p *CircuitBreakerProducer) Close() error {
	return p.producer.Close()
}
