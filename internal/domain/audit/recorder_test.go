package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "hvacstock/internal/core/context"
	"hvacstock/internal/core/id"
	"hvacstock/internal/domain/events"
)

type capturePublisher struct {
	events []events.Event
	err    error
	panic  bool
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	if p.panic {
		panic("boom")
	}
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

type countingObserver struct{ n int }

func (o *countingObserver) AuditWriteFailed() { o.n++ }

func TestOutboxRecorder_EnrichesEntry(t *testing.T) {
	pub := &capturePublisher{}
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := NewOutboxRecorder(pub, WithClock(func() time.Time { return fixed }))

	actor := id.New()
	ctx := appctx.WithUser(context.Background(), &appctx.UserContext{UserID: actor.String()})
	ctx = appctx.WithTrace(ctx, &appctx.TraceContext{RequestID: "req-7"})
	productID := id.New()

	rec.Record(ctx, Entry{
		TableName: "products",
		RowPK:     productID.String(),
		Action:    ActionUpdate,
		Before:    map[string]any{"threshold": nil},
		After:     map[string]any{"threshold": 4},
	})

	require.Len(t, pub.events, 1)
	ev := pub.events[0]
	assert.Equal(t, events.TypeAuditRecorded, ev.EventType)
	assert.Equal(t, "products", ev.AggregateType)
	assert.Equal(t, productID, ev.AggregateID)

	entry := ev.Payload.(Entry)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, actor, *entry.ActorID)
	assert.Equal(t, "req-7", entry.RequestID)
	assert.Equal(t, fixed, entry.RecordedAt)
}

func TestOutboxRecorder_SwallowsFailures(t *testing.T) {
	tests := []struct {
		name string
		pub  *capturePublisher
	}{
		{"publisher error", &capturePublisher{err: errors.New("connection reset")}},
		{"publisher panic", &capturePublisher{panic: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &countingObserver{}
			rec := NewOutboxRecorder(tt.pub, WithFailureObserver(obs))

			assert.NotPanics(t, func() {
				rec.Record(context.Background(), Entry{TableName: "inventory_movements", RowPK: "x", Action: ActionInsert})
			})
			assert.Equal(t, 1, obs.n)
		})
	}
}

func TestOutboxRecorder_NonUUIDRowPK(t *testing.T) {
	pub := &capturePublisher{}
	rec := NewOutboxRecorder(pub)

	rec.Record(context.Background(), Entry{TableName: "inventory_settings", RowPK: "1", Action: ActionUpdate})

	require.Len(t, pub.events, 1)
	assert.True(t, id.IsNil(pub.events[0].AggregateID))
	assert.Nil(t, pub.events[0].Payload.(Entry).ActorID)
}

func TestDiff(t *testing.T) {
	before := map[string]any{"default": 5, "note": "x", "gone": true}
	after := map[string]any{"default": 7, "note": "x", "added": 1}

	changes := Diff(before, after)

	assert.Equal(t, map[string]any{
		"default": map[string]any{"old": 5, "new": 7},
		"added":   map[string]any{"old": nil, "new": 1},
		"gone":    map[string]any{"old": true, "new": nil},
	}, changes)
}
