// Package main is the entry point for the hybrid quantum-classical portfolio
// optimization engine. It serves the optimize, ESG optimize and risk assessment
// operations over HTTP.
//
// Startup sequence:
// 1. Load configuration from environment variables (.env supported)
// 2. Initialize the structured logger
// 3. Wire dependencies (metrics, optimization service, scheduler, HTTP server)
// 4. Start the HTTP server and the engine status job
// 5. Wait for a shutdown signal, then stop the server and drain the worker pool
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/qportfolio/internal/config"
	"github.com/aristath/qportfolio/internal/di"
	"github.com/aristath/qportfolio/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Use fallback logger if config fails
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting qportfolio")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}

	// Start server in goroutine
	go func() {
		if err := container.Server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.Scheduler.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting requests before draining the pool
	if err := container.Server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	if err := container.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Worker pool did not drain cleanly")
	}

	log.Info().Msg("Server stopped")
}
