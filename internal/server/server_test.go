package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/qportfolio/internal/metrics"
	"github.com/aristath/qportfolio/internal/modules/correlation"
	"github.com/aristath/qportfolio/internal/modules/optimization"
)

func newTestServer(t *testing.T, sampler metrics.HostSampler) (*Server, *metrics.Metrics) {
	t.Helper()
	log := zerolog.New(nil).Level(zerolog.Disabled)
	m := metrics.New()
	svc := optimization.NewService(
		optimization.DefaultServiceConfig(),
		optimization.Dependencies{Provider: correlation.IdentityProvider{}, Metrics: m},
		log,
	)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	return New(Config{Log: log, Service: svc, Metrics: m, HostSampler: sampler, Port: 0, DevMode: true}), m
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, Version, body["version"])
}

func TestSystemStatus(t *testing.T) {
	sampler := func() (metrics.HostUsage, error) {
		return metrics.HostUsage{CPUPercent: 3, MemoryPercent: 55}, nil
	}
	s, _ := newTestServer(t, sampler)

	w := do(t, s, http.MethodGet, "/api/system/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Data SystemStatus `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, optimization.DefaultServiceConfig().PoolSize, body.Data.Pool.Workers)
	assert.True(t, body.Data.Quantum.QuantumBackend)
	require.NotNil(t, body.Data.Host)
	assert.Equal(t, 55.0, body.Data.Host.MemoryPercent)
	assert.NotEmpty(t, body.Data.GoVersion)
}

func TestRoutesAreMounted(t *testing.T) {
	s, _ := newTestServer(t, nil)

	tests := []struct {
		method string
		path   string
		body   string
		status int
	}{
		{http.MethodPost, "/api/optimize", `{"assets":[{"symbol":"A","expected_return":0.08,"volatility":0.1},{"symbol":"B","expected_return":0.12,"volatility":0.2}],"constraints":{"solver_preference":"CLASSICAL"}}`, http.StatusOK},
		{http.MethodPost, "/api/optimize", `{"assets":[]}`, http.StatusBadRequest},
		{http.MethodPost, "/api/optimize/esg", `{"assets":[{"symbol":"A","esg_score":40}],"target_esg":90}`, http.StatusUnprocessableEntity},
		{http.MethodPost, "/api/risk/assess", `{"assets":[{"symbol":"A","volatility":0.05}]}`, http.StatusOK},
		{http.MethodGet, "/api/quantum/capabilities?assets=3", "", http.StatusOK},
		{http.MethodGet, "/api/unknown", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)

	do(t, s, http.MethodPost, "/api/optimize", `{"assets":[{"symbol":"A","expected_return":0.05,"volatility":0.1}]}`)

	w := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	out := w.Body.String()
	assert.True(t, strings.Contains(out, "qportfolio_optimizations_total"))
	assert.True(t, strings.Contains(out, `solver="classical"`))
}

func TestSystemStatus_CarriesRequestID(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := do(t, s, http.MethodGet, "/api/system/status", "")
	var body struct {
		Metadata struct {
			RequestID string `json:"request_id"`
		} `json:"metadata"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.NotEmpty(t, body.Metadata.RequestID)
}
