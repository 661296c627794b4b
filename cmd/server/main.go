// Package main is the entry point for the hvacstock API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"hvacstock/internal/app"
	"hvacstock/internal/config"
	v1 "hvacstock/internal/infrastructure/http/v1"
	"hvacstock/internal/infrastructure/http/v1/middleware"
	"hvacstock/pkg/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
		Service:     "server",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	ctx := context.Background()
	log.Infow("starting hvacstock server", "version", version, "env", cfg.AppEnv)

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer a.Close()
	log.Info("database connection established")

	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}

	routerCfg := v1.RouterConfig{
		Services: v1.Services{
			Stock:       a.Stock,
			Undo:        a.Undo,
			Aggregator:  a.Aggregator,
			Reservation: a.Reservation,
			Threshold:   a.Threshold,
			Importer:    a.Importer,
		},
		DB:             a.Pool,
		Logger:         log,
		JWTValidator:   a.JWT,
		Metrics:        a.Metrics,
		MetricsHandler: a.Metrics.Handler(),
		MaxImportBytes: cfg.Inventory.ImportMaxBytes,
		Version:        version,
	}
	// A nil *IdempotencyStore must not reach the interface field.
	if store := a.IdempotencyStore(); store != nil {
		routerCfg.Idempotency = middleware.IdempotencyStore(store)
	}
	router := v1.NewRouter(routerCfg)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
