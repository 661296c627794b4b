package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/events"
	"hvacstock/pkg/logger"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// MaxOutboxAttempts is the number of failed deliveries after which a message
// is marked failed and becomes eligible for the DLQ.
const MaxOutboxAttempts = 5

// Relay results reported to the OutboxObserver.
const (
	OutboxResultPublished = "published"
	OutboxResultRetry     = "retry"
	OutboxResultFailed    = "failed"
)

// OutboxMessage represents a message in the transactional outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"`
	AggregateID   id.ID        `db:"aggregate_id"`
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"`
	Status        OutboxStatus `db:"status"`
	RetryCount    int          `db:"retry_count"`
	LastError     *string      `db:"last_error"`
	NextRetryAt   *time.Time   `db:"next_retry_at"`
	CreatedAt     time.Time    `db:"created_at"`
	PublishedAt   *time.Time   `db:"published_at"`
}

const insertOutboxSQL = `
	INSERT INTO sys_outbox (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

func outboxArgs(event events.Event) ([]any, error) {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}
	return []any{
		id.New(), event.AggregateType, event.AggregateID, event.EventType,
		payload, OutboxStatusPending, time.Now().UTC(),
	}, nil
}

// OutboxPublisher writes events to the outbox within the current transaction.
type OutboxPublisher struct {
	txManager *TxManager
}

var _ events.Publisher = (*OutboxPublisher)(nil)

// NewOutboxPublisher creates a new outbox publisher.
func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager}
}

// Publish writes an event to the outbox. MUST be called inside a transaction.
func (p *OutboxPublisher) Publish(ctx context.Context, event events.Event) error {
	tx := p.txManager.GetTx(ctx)
	if tx == nil {
		return fmt.Errorf("outbox publish requires transaction context")
	}

	args, err := outboxArgs(event)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, insertOutboxSQL, args...); err != nil {
		return fmt.Errorf("insert outbox message: %w", err)
	}
	return nil
}

// IsolatedOutboxPublisher writes events whose failure must not affect the
// caller's transaction. Inside a transaction the insert runs in a savepoint
// and still commits or rolls back with it; outside one it autocommits.
type IsolatedOutboxPublisher struct {
	txManager *TxManager
}

var _ events.Publisher = (*IsolatedOutboxPublisher)(nil)

// NewIsolatedOutboxPublisher creates a new isolated publisher.
func NewIsolatedOutboxPublisher(txManager *TxManager) *IsolatedOutboxPublisher {
	return &IsolatedOutboxPublisher{txManager: txManager}
}

// Publish writes an event to the outbox.
func (p *IsolatedOutboxPublisher) Publish(ctx context.Context, event events.Event) error {
	args, err := outboxArgs(event)
	if err != nil {
		return err
	}

	if !p.txManager.InTransaction(ctx) {
		if _, err := p.txManager.GetQuerier(ctx).Exec(ctx, insertOutboxSQL, args...); err != nil {
			return fmt.Errorf("insert outbox message: %w", err)
		}
		return nil
	}

	return p.txManager.RunInSavepoint(ctx, func(ctx context.Context) error {
		if _, err := p.txManager.GetQuerier(ctx).Exec(ctx, insertOutboxSQL, args...); err != nil {
			return fmt.Errorf("insert outbox message: %w", err)
		}
		return nil
	})
}

// OutboxHandler processes outbox messages.
type OutboxHandler interface {
	// Handle processes a message and returns error if failed
	Handle(ctx context.Context, msg *OutboxMessage) error
}

// OutboxObserver receives one notification per delivered or failed message.
type OutboxObserver interface {
	ObserveOutbox(eventType, result string)
}

// OutboxRelay claims and dispatches pending messages.
// Used by the background worker.
type OutboxRelay struct {
	pool      *pgxpool.Pool
	batchSize int
	lease     time.Duration
	handler   OutboxHandler
	observer  OutboxObserver
}

// OutboxRelayOption configures an OutboxRelay.
type OutboxRelayOption func(*OutboxRelay)

// WithLease sets how long a claimed message stays invisible to other relays.
func WithLease(d time.Duration) OutboxRelayOption {
	return func(r *OutboxRelay) { r.lease = d }
}

// WithOutboxObserver reports delivery results.
func WithOutboxObserver(o OutboxObserver) OutboxRelayOption {
	return func(r *OutboxRelay) { r.observer = o }
}

// NewOutboxRelay creates a new outbox relay.
func NewOutboxRelay(pool *pgxpool.Pool, batchSize int, handler OutboxHandler, opts ...OutboxRelayOption) *OutboxRelay {
	r := &OutboxRelay{
		pool:      pool,
		batchSize: batchSize,
		lease:     time.Minute,
		handler:   handler,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// claimSQL pushes next_retry_at past the lease in the same statement that
// selects the rows, so concurrent relays never receive the same message.
const claimSQL = `
	UPDATE sys_outbox o
	SET next_retry_at = NOW() + $3::interval
	WHERE o.id IN (
		SELECT id FROM sys_outbox
		WHERE status = $1
		  AND (next_retry_at IS NULL OR next_retry_at <= NOW())
		ORDER BY created_at
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	RETURNING o.id, o.aggregate_type, o.aggregate_id, o.event_type, o.payload, o.status,
	          o.retry_count, o.last_error, o.next_retry_at, o.created_at, o.published_at`

// ProcessBatch claims and processes pending messages.
// Returns number of successfully processed messages.
func (r *OutboxRelay) ProcessBatch(ctx context.Context) (int, error) {
	var messages []*OutboxMessage
	lease := fmt.Sprintf("%d milliseconds", r.lease.Milliseconds())
	if err := pgxscan.Select(ctx, r.pool, &messages, claimSQL, OutboxStatusPending, r.batchSize, lease); err != nil {
		return 0, fmt.Errorf("claim outbox messages: %w", err)
	}

	// Creation order is not guaranteed by RETURNING.
	sortByCreated(messages)

	processed := 0
	for _, msg := range messages {
		if err := r.processMessage(ctx, msg); err != nil {
			logger.Warn(ctx, "outbox message failed",
				"message_id", msg.ID,
				"event_type", msg.EventType,
				"attempt", msg.RetryCount+1,
				"error", err,
			)
			continue
		}
		processed++
	}

	return processed, nil
}

// processMessage handles a single outbox message.
func (r *OutboxRelay) processMessage(ctx context.Context, msg *OutboxMessage) error {
	if err := r.handler.Handle(ctx, msg); err != nil {
		// Linear backoff: one more minute per attempt.
		nextRetry := time.Now().UTC().Add(time.Duration(msg.RetryCount+1) * time.Minute)

		_, updateErr := r.pool.Exec(ctx, `
			UPDATE sys_outbox
			SET retry_count = retry_count + 1,
			    last_error = $1,
			    next_retry_at = $2,
			    status = CASE WHEN retry_count + 1 >= $3 THEN $4 ELSE status END
			WHERE id = $5
		`, err.Error(), nextRetry, MaxOutboxAttempts, OutboxStatusFailed, msg.ID)
		if updateErr != nil {
			return fmt.Errorf("update failed message: %w", updateErr)
		}

		result := OutboxResultRetry
		if msg.RetryCount+1 >= MaxOutboxAttempts {
			result = OutboxResultFailed
		}
		r.observe(msg.EventType, result)
		return err
	}

	if _, err := r.pool.Exec(ctx, `
		UPDATE sys_outbox
		SET status = $1, published_at = NOW()
		WHERE id = $2
	`, OutboxStatusPublished, msg.ID); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	r.observe(msg.EventType, OutboxResultPublished)
	return nil
}

func (r *OutboxRelay) observe(eventType, result string) {
	if r.observer != nil {
		r.observer.ObserveOutbox(eventType, result)
	}
}

// MoveToDLQ moves failed messages to the dead letter queue.
func (r *OutboxRelay) MoveToDLQ(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		WITH moved AS (
			DELETE FROM sys_outbox
			WHERE status = $1 AND retry_count >= $2
			RETURNING id, aggregate_type, aggregate_id, event_type, payload, retry_count, last_error, created_at
		)
		INSERT INTO sys_outbox_dlq
			(id, aggregate_type, aggregate_id, event_type, payload, retry_count, last_error, created_at, failed_at)
		SELECT id, aggregate_type, aggregate_id, event_type, payload, retry_count, last_error, created_at, NOW()
		FROM moved
	`, OutboxStatusFailed, MaxOutboxAttempts)
	if err != nil {
		return 0, fmt.Errorf("move to DLQ: %w", err)
	}

	return result.RowsAffected(), nil
}

// CleanupPublished deletes published messages older than olderThan.
func (r *OutboxRelay) CleanupPublished(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM sys_outbox
		WHERE status = $1 AND published_at < NOW() - $2::interval
	`, OutboxStatusPublished, fmt.Sprintf("%d seconds", int64(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("cleanup published outbox: %w", err)
	}
	return result.RowsAffected(), nil
}

func sortByCreated(messages []*OutboxMessage) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}
