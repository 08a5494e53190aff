package scheduler

import (
	"github.com/rs/zerolog"

	"github.com/aristath/qportfolio/internal/metrics"
	"github.com/aristath/qportfolio/internal/modules/quantum"
	"github.com/aristath/qportfolio/internal/workers"
)

// EngineReporter exposes the live state of the optimization engine
type EngineReporter interface {
	PoolStats() workers.Stats
	Capabilities() quantum.Capabilities
}

// EngineStatusJob logs worker pool and host utilisation and publishes them as gauges
type EngineStatusJob struct {
	engine  EngineReporter
	metrics *metrics.Metrics
	sample  metrics.HostSampler
	log     zerolog.Logger
}

// NewEngineStatusJob creates the status job. A nil sampler skips host readings.
func NewEngineStatusJob(engine EngineReporter, m *metrics.Metrics, sample metrics.HostSampler, log zerolog.Logger) *EngineStatusJob {
	return &EngineStatusJob{
		engine:  engine,
		metrics: m,
		sample:  sample,
		log:     log.With().Str("job", "engine_status").Logger(),
	}
}

// Name returns the job name
func (j *EngineStatusJob) Name() string {
	return "engine_status"
}

// Run takes one snapshot
func (j *EngineStatusJob) Run() error {
	stats := j.engine.PoolStats()
	caps := j.engine.Capabilities()
	j.metrics.SetPoolStats(stats)

	event := j.log.Info().
		Int("workers", stats.Workers).
		Int("queued", stats.Queued).
		Int64("running", stats.Running).
		Int64("completed", stats.Completed).
		Int64("failed", stats.Failed).
		Str("backend", caps.Backend).
		Bool("quantum_available", caps.QuantumBackend)

	if j.sample != nil {
		usage, err := j.sample()
		if err != nil {
			// host stats are best effort
			j.log.Warn().Err(err).Msg("Failed to sample host usage")
		} else {
			j.metrics.SetHostUsage(usage.CPUPercent, usage.MemoryPercent)
			event = event.Float64("cpu_percent", usage.CPUPercent).Float64("memory_percent", usage.MemoryPercent)
		}
	}

	event.Msg("Engine status")
	return nil
}
