// Package metrics exposes Prometheus counters for the inventory engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hvacstock/internal/core/entity"
	"hvacstock/internal/domain/audit"
	"hvacstock/internal/domain/reconciliation"
	"hvacstock/internal/domain/registers/stock"
	"hvacstock/internal/domain/undo"
	"hvacstock/internal/infrastructure/storage/postgres"
)

const namespace = "hvacstock"

// Metrics holds the process metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	StockAdjustments *prometheus.CounterVec
	ImportRows       *prometheus.CounterVec
	Undo             *prometheus.CounterVec
	AuditFailures    prometheus.Counter
	OutboxMessages   *prometheus.CounterVec

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	DBConnections *prometheus.GaugeVec
}

var (
	_ stock.Observer          = (*Metrics)(nil)
	_ undo.Observer           = (*Metrics)(nil)
	_ reconciliation.Observer = (*Metrics)(nil)
	_ audit.FailureObserver   = (*Metrics)(nil)
	_ postgres.OutboxObserver = (*Metrics)(nil)
)

// New creates and registers all collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.StockAdjustments = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_adjustments_total",
		Help:      "Stock adjustments by reason and outcome",
	}, []string{"reason", "outcome"})

	m.ImportRows = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_rows_total",
		Help:      "Reconciliation import rows by result",
	}, []string{"result"})

	m.Undo = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "undo_total",
		Help:      "Undo attempts by outcome",
	}, []string{"outcome"})

	m.AuditFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_failures_total",
		Help:      "Audit entries that could not be recorded",
	})

	m.OutboxMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_messages_total",
		Help:      "Outbox deliveries by event type and result",
	}, []string{"event_type", "result"})

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method", "route"})

	m.DBConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_connections",
		Help:      "Connection pool state",
	}, []string{"state"})

	registry.MustRegister(
		m.StockAdjustments,
		m.ImportRows,
		m.Undo,
		m.AuditFailures,
		m.OutboxMessages,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DBConnections,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveAdjustment counts one stock write. Undo reasons share one label value.
func (m *Metrics) ObserveAdjustment(reason entity.Reason, outcome string) {
	label := string(reason)
	if reason.IsUndo() {
		label = "undo"
	}
	m.StockAdjustments.WithLabelValues(label, outcome).Inc()
}

func (m *Metrics) ObserveImportRow(result string) {
	m.ImportRows.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveUndo(outcome string) {
	m.Undo.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AuditWriteFailed() {
	m.AuditFailures.Inc()
}

func (m *Metrics) ObserveOutbox(eventType, result string) {
	m.OutboxMessages.WithLabelValues(eventType, result).Inc()
}

// RecordHTTPRequest records one served request under its route pattern.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetPoolStats publishes a pool snapshot.
func (m *Metrics) SetPoolStats(s postgres.PoolStats) {
	m.DBConnections.WithLabelValues("total").Set(float64(s.TotalConns))
	m.DBConnections.WithLabelValues("acquired").Set(float64(s.AcquiredConns))
	m.DBConnections.WithLabelValues("idle").Set(float64(s.IdleConns))
	m.DBConnections.WithLabelValues("max").Set(float64(s.MaxConns))
}
