package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/qportfolio/internal/domain"
	"github.com/aristath/qportfolio/internal/modules/correlation"
	"github.com/aristath/qportfolio/internal/modules/optimization"
	"github.com/aristath/qportfolio/pkg/render"
)

type stubOptimizer struct {
	result *domain.OptimizationResult
	err    error

	gotObjective   domain.Objective
	gotConstraints domain.Constraints
	gotTargetESG   float64
	gotAssets      []domain.Asset
}

func (s *stubOptimizer) Optimize(_ context.Context, assets []domain.Asset, objective domain.Objective, constraints domain.Constraints) (*domain.OptimizationResult, error) {
	s.gotAssets = assets
	s.gotObjective = objective
	s.gotConstraints = constraints
	return s.result, s.err
}

func (s *stubOptimizer) OptimizeESG(_ context.Context, assets []domain.Asset, targetESG, _ float64) (*domain.OptimizationResult, error) {
	s.gotAssets = assets
	s.gotTargetESG = targetESG
	return s.result, s.err
}

func newRouter(svc Optimizer) chi.Router {
	r := chi.NewRouter()
	NewHandler(svc, zerolog.New(nil).Level(zerolog.Disabled)).RegisterRoutes(r)
	return r
}

func post(t *testing.T, r http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

var twoAssets = []domain.Asset{
	{Symbol: "A", ExpectedReturn: 0.08, Volatility: 0.10, ESGScore: 70},
	{Symbol: "B", ExpectedReturn: 0.12, Volatility: 0.20, ESGScore: 85},
}

func TestHandleOptimize_Success(t *testing.T) {
	stub := &stubOptimizer{result: &domain.OptimizationResult{
		SolverUsed:  domain.SolverClassical,
		Symbols:     []string{"A", "B"},
		Weights:     []float64{0.8, 0.2},
		Success:     true,
		Diagnostics: domain.Diagnostics{RequestID: "req-42"},
	}}

	w := post(t, newRouter(stub), "/optimize", OptimizeRequest{
		Assets:      twoAssets,
		Objective:   domain.ObjectiveMinRisk,
		Constraints: domain.Constraints{RiskTolerance: 0.3, SolverPreference: domain.SolverPreferenceClassical},
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.ObjectiveMinRisk, stub.gotObjective)
	assert.Equal(t, 0.3, stub.gotConstraints.RiskTolerance)
	assert.Equal(t, domain.SolverPreferenceClassical, stub.gotConstraints.SolverPreference)

	var body struct {
		Data struct {
			SolverUsed string         `json:"solver_used"`
			Weights    []float64      `json:"weights"`
			Allocation []domain.Asset `json:"allocation"`
			Success    bool           `json:"success"`
		} `json:"data"`
		Metadata render.Metadata `json:"metadata"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "classical", body.Data.SolverUsed)
	assert.Equal(t, []float64{0.8, 0.2}, body.Data.Weights)
	require.Len(t, body.Data.Allocation, 2)
	assert.Equal(t, 0.8, body.Data.Allocation[0].Weight)
	assert.Equal(t, "req-42", body.Metadata.RequestID)
	assert.NotEmpty(t, body.Metadata.Timestamp)
}

func TestHandleOptimize_InvalidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/optimize", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	newRouter(&stubOptimizer{}).ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleOptimize_ErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", domain.NewValidationError("assets", "asset list is empty"), http.StatusBadRequest},
		{"insufficient", &domain.InsufficientAssetsError{TargetESG: 90, Floor: 80, MaxESG: 75}, http.StatusUnprocessableEntity},
		{"all chunks failed", &domain.PartialChunkFailureError{Failed: []int{0, 1}, Total: 2}, http.StatusBadGateway},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubOptimizer{err: tt.err}
			w := post(t, newRouter(stub), "/optimize", OptimizeRequest{Assets: twoAssets})

			assert.Equal(t, tt.status, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.err.Error(), body["error"])
			_, hasData := body["data"]
			assert.False(t, hasData)
		})
	}
}

func TestHandleOptimize_FailureCarriesPartialResult(t *testing.T) {
	partial := &domain.OptimizationResult{
		SolverUsed:  domain.SolverConcurrent,
		Diagnostics: domain.Diagnostics{Stages: []domain.Stage{domain.StageValidating, domain.StageFailed}},
	}
	stub := &stubOptimizer{result: partial, err: &domain.PartialChunkFailureError{Failed: []int{0}, Total: 1}}

	w := post(t, newRouter(stub), "/optimize", OptimizeRequest{Assets: twoAssets})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	var body struct {
		Data  domain.OptimizationResult `json:"data"`
		Error string                    `json:"error"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, domain.StageFailed, body.Data.Diagnostics.LastStage())
	assert.NotEmpty(t, body.Error)
}

func TestHandleOptimizeESG_PassesTarget(t *testing.T) {
	stub := &stubOptimizer{result: &domain.OptimizationResult{
		SolverUsed: domain.SolverESGClassical,
		Symbols:    []string{"B"},
		Weights:    []float64{1},
		Success:    true,
	}}

	w := post(t, newRouter(stub), "/optimize/esg", OptimizeESGRequest{Assets: twoAssets, TargetESG: 80, RiskTolerance: 0.5})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 80.0, stub.gotTargetESG)
	assert.Len(t, stub.gotAssets, 2)
}

func TestHandleOptimize_MsgpackRoundTrip(t *testing.T) {
	stub := &stubOptimizer{result: &domain.OptimizationResult{
		SolverUsed: domain.SolverQAOA,
		Symbols:    []string{"A", "B"},
		Weights:    []float64{0.5, 0.5},
		Success:    true,
	}}

	payload, err := msgpack.Marshal(OptimizeRequest{Assets: twoAssets, Objective: domain.ObjectiveMinRisk})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/optimize", bytes.NewReader(payload))
	req.Header.Set("Content-Type", render.MsgpackContentType)
	req.Header.Set("Accept", render.MsgpackContentType)
	w := httptest.NewRecorder()
	newRouter(stub).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, render.MsgpackContentType, w.Header().Get("Content-Type"))
	assert.Equal(t, "B", stub.gotAssets[1].Symbol)

	var body struct {
		Data struct {
			SolverUsed string    `msgpack:"solver_used"`
			Weights    []float64 `msgpack:"weights"`
		} `msgpack:"data"`
	}
	require.NoError(t, msgpack.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "qaoa", body.Data.SolverUsed)
	assert.Equal(t, []float64{0.5, 0.5}, body.Data.Weights)
}

func TestRegisterRoutes_WithService(t *testing.T) {
	svc := optimization.NewService(
		optimization.DefaultServiceConfig(),
		optimization.Dependencies{Provider: correlation.IdentityProvider{}},
		zerolog.New(nil).Level(zerolog.Disabled),
	)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	r := newRouter(svc)

	w := post(t, r, "/optimize", OptimizeRequest{
		Assets:      twoAssets,
		Objective:   domain.ObjectiveMinRisk,
		Constraints: domain.Constraints{SolverPreference: domain.SolverPreferenceClassical},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = post(t, r, "/optimize", OptimizeRequest{Objective: domain.ObjectiveMinRisk})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = post(t, r, "/optimize/esg", OptimizeESGRequest{Assets: twoAssets, TargetESG: 99})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/optimize", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
