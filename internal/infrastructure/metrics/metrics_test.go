package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hvacstock/internal/core/entity"
	"hvacstock/internal/core/id"
	"hvacstock/internal/infrastructure/storage/postgres"
)

func TestObserveAdjustment_CollapsesUndoReasons(t *testing.T) {
	m := New()

	m.ObserveAdjustment(entity.ReasonSale, "ok")
	m.ObserveAdjustment(entity.UndoReason(id.New()), "ok")
	m.ObserveAdjustment(entity.UndoReason(id.New()), "ok")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StockAdjustments.WithLabelValues("sale", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.StockAdjustments.WithLabelValues("undo", "ok")))
}

func TestCounters(t *testing.T) {
	m := New()

	m.ObserveImportRow("applied")
	m.ObserveImportRow("applied")
	m.ObserveUndo("expired")
	m.AuditWriteFailed()
	m.ObserveOutbox("audit.recorded", postgres.OutboxResultRetry)
	m.RecordHTTPRequest("POST", "/api/v1/inventory/products/:id/adjust", 422, 30*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ImportRows.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Undo.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboxMessages.WithLabelValues("audit.recorded", "retry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/inventory/products/:id/adjust", "422")))
}

func TestSetPoolStats(t *testing.T) {
	m := New()
	m.SetPoolStats(postgres.PoolStats{TotalConns: 4, AcquiredConns: 1, IdleConns: 3, MaxConns: 20})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.DBConnections.WithLabelValues("idle")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.DBConnections.WithLabelValues("max")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveUndo("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `hvacstock_undo_total{outcome="ok"} 1`)
}
