// Package di provides dependency injection wiring and initialization.
package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/qportfolio/internal/config"
	"github.com/aristath/qportfolio/internal/metrics"
	"github.com/aristath/qportfolio/internal/modules/optimization"
	"github.com/aristath/qportfolio/internal/scheduler"
	"github.com/aristath/qportfolio/internal/server"
)

// Container holds all dependencies for the application.
// It is built once by Wire and owns the lifetime of the engine.
type Container struct {
	Service   *optimization.Service
	Metrics   *metrics.Metrics
	Scheduler *scheduler.Scheduler
	Server    *server.Server
	StatusJob *scheduler.EngineStatusJob
}

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Metrics registry
// 2. Optimization service (starts the worker pool)
// 3. Scheduler and status job
// 4. HTTP server
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	m := metrics.New()

	svc := optimization.NewService(cfg.ServiceConfig(), optimization.Dependencies{Metrics: m}, log)

	sched := scheduler.New(log)
	statusJob := scheduler.NewEngineStatusJob(svc, m, metrics.SampleHost, log)
	if err := sched.AddJob(cfg.StatusSchedule, statusJob); err != nil {
		// Cleanup on error
		_ = svc.Close(context.Background())
		return nil, fmt.Errorf("failed to register engine status job: %w", err)
	}

	srv := server.New(server.Config{
		Log:         log,
		Service:     svc,
		Metrics:     m,
		HostSampler: metrics.SampleHost,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
	})

	log.Info().Msg("Dependency injection wiring completed successfully")

	return &Container{
		Service:   svc,
		Metrics:   m,
		Scheduler: sched,
		Server:    srv,
		StatusJob: statusJob,
	}, nil
}

// Close stops the scheduler and drains the worker pool
func (c *Container) Close(ctx context.Context) error {
	c.Scheduler.Stop()
	return c.Service.Close(ctx)
}
