// Package audit records every mutating inventory action for traceability.
//
// Recording is best-effort: a failed write is logged and counted but never
// returned to the caller, so an audit outage cannot block a stock change.
package audit

import (
	"context"
	"fmt"
	"time"

	"hvacstock/internal/core/apperror"
	appctx "hvacstock/internal/core/context"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/events"
	"hvacstock/pkg/logger"
)

// Action is the kind of change an entry describes.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	ActionCustom Action = "CUSTOM"
)

// Entry is one audit log record. Entries are never updated or deleted.
type Entry struct {
	TableName  string         `json:"tableName"`
	RowPK      string         `json:"rowPk"`
	Action     Action         `json:"action"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	Comment    string         `json:"comment,omitempty"`
	ActorID    *id.ID         `json:"actorId,omitempty"`
	RequestID  string         `json:"requestId,omitempty"`
	RecordedAt time.Time      `json:"recordedAt"`
}

// Recorder records audit entries. Record never fails from the caller's view.
type Recorder interface {
	Record(ctx context.Context, entry Entry)
}

// FailureObserver is notified about every lost audit write.
type FailureObserver interface {
	AuditWriteFailed()
}

// OutboxRecorder writes audit intents to the outbox; the worker moves them
// into the audit log with retry.
//
// The publisher must isolate its write from the surrounding transaction (for
// Postgres: a savepoint), otherwise a failed audit insert would abort the
// business transaction it is attached to.
type OutboxRecorder struct {
	publisher events.Publisher
	observer  FailureObserver
	now       func() time.Time
}

// Option configures an OutboxRecorder.
type Option func(*OutboxRecorder)

// WithFailureObserver reports lost writes, typically to a metrics counter.
func WithFailureObserver(o FailureObserver) Option {
	return func(r *OutboxRecorder) { r.observer = o }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *OutboxRecorder) { r.now = now }
}

// NewOutboxRecorder creates a recorder on top of an isolated outbox publisher.
func NewOutboxRecorder(publisher events.Publisher, opts ...Option) *OutboxRecorder {
	r := &OutboxRecorder{
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record enqueues entry. Failures are logged with AUDIT_WRITE_FAILURE and swallowed.
func (r *OutboxRecorder) Record(ctx context.Context, entry Entry) {
	if entry.ActorID == nil {
		if actor := appctx.ActorID(ctx); !id.IsNil(actor) {
			entry.ActorID = &actor
		}
	}
	if entry.RequestID == "" {
		entry.RequestID = appctx.GetRequestID(ctx)
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = r.now()
	}

	aggregateID, err := id.Parse(entry.RowPK)
	if err != nil {
		aggregateID = id.Nil()
	}

	err = r.safePublish(ctx, events.Event{
		AggregateType: entry.TableName,
		AggregateID:   aggregateID,
		EventType:     events.TypeAuditRecorded,
		Payload:       entry,
	})
	if err != nil {
		logger.Error(ctx, "audit write failed",
			"code", apperror.CodeAuditWriteFailure,
			"table_name", entry.TableName,
			"row_pk", entry.RowPK,
			"action", entry.Action,
			"error", err,
		)
		if r.observer != nil {
			r.observer.AuditWriteFailed()
		}
	}
}

// safePublish converts a publisher panic into an error so it cannot escape Record.
func (r *OutboxRecorder) safePublish(ctx context.Context, event events.Event) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("audit publisher panic: %v", p)
		}
	}()
	return r.publisher.Publish(ctx, event)
}

// Diff returns the fields that differ between two snapshots as {"old","new"} pairs.
func Diff(before, after map[string]any) map[string]any {
	changes := make(map[string]any)

	for key, newVal := range after {
		oldVal, exists := before[key]
		if !exists || fmt.Sprint(oldVal) != fmt.Sprint(newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}
	for key, oldVal := range before {
		if _, exists := after[key]; !exists {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}

	return changes
}
