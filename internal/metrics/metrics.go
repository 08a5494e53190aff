// Package metrics exposes engine counters and gauges for Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aristath/qportfolio/internal/domain"
	"github.com/aristath/qportfolio/internal/workers"
)

const namespace = "qportfolio"

// Outcome labels
const (
	OutcomeSuccess      = "success"
	OutcomeDegraded     = "degraded"
	OutcomeNotConverged = "not_converged"
	OutcomeRejected     = "rejected"
	OutcomeFailed       = "failed"
)

// Metrics holds every collector on a private registry. A nil *Metrics is a no-op.
type Metrics struct {
	registry *prometheus.Registry

	Optimizations   *prometheus.CounterVec
	Fallbacks       prometheus.Counter
	Chunks          *prometheus.CounterVec
	RiskAssessments *prometheus.CounterVec
	Duration        *prometheus.HistogramVec

	PoolWorkers   prometheus.Gauge
	PoolQueued    prometheus.Gauge
	PoolRunning   prometheus.Gauge
	PoolCompleted prometheus.Gauge
	HostCPU       prometheus.Gauge
	HostMemory    prometheus.Gauge
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Optimizations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "optimizations_total",
				Help:      "Optimization calls by solver used and outcome",
			},
			[]string{"solver", "outcome"},
		),
		Fallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quantum_fallbacks_total",
				Help:      "Quantum requests answered by the classical solver",
			},
		),
		Chunks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decomposition_chunks_total",
				Help:      "Decomposition chunks by status",
			},
			[]string{"status"},
		),
		RiskAssessments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "risk_assessments_total",
				Help:      "Risk assessments by method and level",
			},
			[]string{"method", "level"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Latency of public engine operations",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		PoolWorkers:   gauge("worker_pool_workers", "Configured worker pool size"),
		PoolQueued:    gauge("worker_pool_queued", "Tasks waiting in the worker pool queue"),
		PoolRunning:   gauge("worker_pool_running", "Tasks currently executing"),
		PoolCompleted: gauge("worker_pool_completed", "Tasks completed since start"),
		HostCPU:       gauge("host_cpu_percent", "Host CPU utilisation"),
		HostMemory:    gauge("host_memory_percent", "Host memory utilisation"),
	}

	m.registry.MustRegister(m.Optimizations, m.Fallbacks, m.Chunks, m.RiskAssessments, m.Duration)
	m.registry.MustRegister(m.PoolWorkers, m.PoolQueued, m.PoolRunning, m.PoolCompleted, m.HostCPU, m.HostMemory)
	return m
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
}

// Registry returns the private registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveOptimization records one optimize call
func (m *Metrics) ObserveOptimization(operation string, result *domain.OptimizationResult, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(operation).Observe(elapsed.Seconds())

	solver := "none"
	if result != nil && result.SolverUsed != "" {
		solver = string(result.SolverUsed)
	}

	outcome := OutcomeSuccess
	switch {
	case err != nil && (errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrInsufficientAssets)):
		outcome = OutcomeRejected
	case err != nil || result == nil:
		outcome = OutcomeFailed
	case result.Degraded:
		outcome = OutcomeDegraded
	case !result.Success:
		outcome = OutcomeNotConverged
	}
	m.Optimizations.WithLabelValues(solver, outcome).Inc()

	if result == nil {
		return
	}
	if result.SolverUsed == domain.SolverClassicalFallback {
		m.Fallbacks.Inc()
	}
	for _, c := range result.Diagnostics.Chunks {
		m.Chunks.WithLabelValues(string(c.Status)).Inc()
	}
}

// ObserveRisk records one risk assessment
func (m *Metrics) ObserveRisk(assessment *domain.RiskAssessment, elapsed time.Duration) {
	if m == nil || assessment == nil {
		return
	}
	m.Duration.WithLabelValues("assess_risk").Observe(elapsed.Seconds())
	m.RiskAssessments.WithLabelValues(string(assessment.Method), string(assessment.RiskLevel)).Inc()
}

// SetPoolStats publishes a worker pool snapshot
func (m *Metrics) SetPoolStats(s workers.Stats) {
	if m == nil {
		return
	}
	m.PoolWorkers.Set(float64(s.Workers))
	m.PoolQueued.Set(float64(s.Queued))
	m.PoolRunning.Set(float64(s.Running))
	m.PoolCompleted.Set(float64(s.Completed))
}

// SetHostUsage publishes host utilisation percentages
func (m *Metrics) SetHostUsage(cpuPercent, memPercent float64) {
	if m == nil {
		return
	}
	m.HostCPU.Set(cpuPercent)
	m.HostMemory.Set(memPercent)
}
