package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/aristath/qportfolio/internal/metrics"
	"github.com/aristath/qportfolio/internal/modules/quantum"
	"github.com/aristath/qportfolio/internal/workers"
	"github.com/aristath/qportfolio/pkg/render"
)

// SystemStatus is the body of GET /api/system/status
type SystemStatus struct {
	Host          *metrics.HostUsage   `json:"host,omitempty" msgpack:"host,omitempty"`
	Quantum       quantum.Capabilities `json:"quantum" msgpack:"quantum"`
	Uptime        string               `json:"uptime" msgpack:"uptime"`
	GoVersion     string               `json:"go_version" msgpack:"go_version"`
	Pool          workers.Stats        `json:"worker_pool" msgpack:"worker_pool"`
	UptimeSeconds float64              `json:"uptime_seconds" msgpack:"uptime_seconds"`
	Goroutines    int                  `json:"goroutines" msgpack:"goroutines"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"version": Version,
		"service": "qportfolio",
	}

	render.Respond(w, r, http.StatusOK, response, s.log)
}

// handleSystemStatus reports worker pool, quantum capabilities and host usage
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(s.started)
	status := SystemStatus{
		Pool:          s.service.PoolStats(),
		Quantum:       s.service.Capabilities(),
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		GoVersion:     runtime.Version(),
		Goroutines:    runtime.NumGoroutine(),
	}

	if s.sample != nil {
		usage, err := s.sample()
		if err != nil {
			s.log.Warn().Err(err).Msg("Failed to sample host usage")
		} else {
			status.Host = &usage
			s.metrics.SetHostUsage(usage.CPUPercent, usage.MemoryPercent)
		}
	}
	s.metrics.SetPoolStats(status.Pool)

	render.Respond(w, r, http.StatusOK, render.Wrap(status, middleware.GetReqID(r.Context())), s.log)
}
