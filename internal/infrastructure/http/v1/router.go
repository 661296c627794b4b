// Package v1 provides HTTP API version 1.
package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"hvacstock/internal/domain/auth"
	"hvacstock/internal/domain/inventory"
	"hvacstock/internal/domain/reconciliation"
	"hvacstock/internal/domain/registers/stock"
	"hvacstock/internal/domain/reservation"
	"hvacstock/internal/domain/threshold"
	"hvacstock/internal/domain/undo"
	"hvacstock/internal/infrastructure/http/v1/handlers"
	"hvacstock/internal/infrastructure/http/v1/middleware"
	"hvacstock/pkg/logger"
)

// DefaultMaxImportBytes bounds uploaded reconciliation files.
const DefaultMaxImportBytes = 5 << 20

// Services bundles the domain services exposed over HTTP.
type Services struct {
	Stock       *stock.Service
	Undo        *undo.Guard
	Aggregator  *inventory.Aggregator
	Reservation *reservation.Tracker
	Threshold   *threshold.Service
	Importer    *reconciliation.Importer
}

// RouterConfig holds router configuration.
type RouterConfig struct {
	Services Services

	// DB backs the readiness probe.
	DB handlers.Pinger

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// Idempotency enables X-Idempotency-Key handling when set.
	Idempotency middleware.IdempotencyStore

	// Metrics records request metrics; MetricsHandler serves /metrics.
	Metrics        middleware.RequestRecorder
	MetricsHandler http.Handler

	MaxImportBytes int64
	Version        string
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	if cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics))
	}
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Version)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
	}
	if cfg.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	v1 := router.Group("/api/v1")
	protected := v1.Group("")
	protected.Use(middleware.Auth(cfg.JWTValidator))
	if cfg.Idempotency != nil {
		protected.Use(middleware.Idempotency(cfg.Idempotency))
	}

	registerInventoryRoutes(protected.Group("/inventory"), cfg)

	return router
}

func registerInventoryRoutes(rg *gin.RouterGroup, cfg RouterConfig) {
	base := handlers.NewBaseHandler()
	svc := cfg.Services

	inv := handlers.NewInventoryHandler(base, svc.Stock, svc.Undo, svc.Aggregator, svc.Reservation, svc.Threshold)
	settings := handlers.NewSettingsHandler(base, svc.Threshold)

	maxBytes := cfg.MaxImportBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxImportBytes
	}
	importer := handlers.NewImportHandler(base, svc.Importer, maxBytes)

	read := middleware.RequirePermission(auth.PermissionRead)
	write := middleware.RequirePermission(auth.PermissionWrite)

	rg.GET("/summary", read, inv.Summary)
	rg.GET("/movements", read, inv.SearchMovements)
	rg.GET("/movements/export", read, inv.ExportMovements)
	rg.POST("/import", middleware.RequirePermission(auth.PermissionImport), importer.Import)

	rg.GET("/settings", read, settings.Get)
	rg.PUT("/settings", middleware.RequirePermission(auth.PermissionSettings), settings.Update)

	products := rg.Group("/products/:id")
	{
		products.GET("", read, inv.Product)
		products.POST("/adjust", write, inv.Adjust)
		products.POST("/set", write, inv.SetStock)
		products.POST("/undo", write, inv.Undo)
		products.GET("/undo", read, inv.UndoEligibility)
		products.GET("/movements", read, inv.Movements)
		products.GET("/reservations", read, inv.Reservations)
		products.GET("/threshold", read, inv.Threshold)
		products.PUT("/threshold", middleware.RequirePermission(auth.PermissionSettings), inv.SetThreshold)
	}
}
