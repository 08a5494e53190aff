package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/qportfolio/internal/modules/quantum"
)

type staticReporter struct {
	caps quantum.Capabilities
}

func (s staticReporter) Capabilities() quantum.Capabilities { return s.caps }

func get(t *testing.T, caps quantum.Capabilities, path string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(staticReporter{caps}, zerolog.Nop()).RegisterRoutes(r)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

type capsBody struct {
	Data CapabilitiesResponse `json:"data"`
}

func TestHandleGetCapabilities(t *testing.T) {
	caps := quantum.DetectCapabilities(quantum.NewSimulator(8), 8)

	w := get(t, caps, "/quantum/capabilities")
	require.Equal(t, http.StatusOK, w.Code)

	var body capsBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.Data.QuantumBackend)
	assert.Equal(t, 8, body.Data.MaxQubits)
	assert.Equal(t, quantum.QAOAMaxAssets, body.Data.QAOAMaxAssets)
	assert.Nil(t, body.Data.Selection)
}

func TestHandleGetCapabilities_Selection(t *testing.T) {
	caps := quantum.DetectCapabilities(quantum.NewSimulator(8), 8)

	tests := []struct {
		query string
		mode  quantum.Mode
	}{
		{"?assets=3", quantum.ModeQAOA},
		{"?assets=6", quantum.ModeVQE},
		{"?assets=12", quantum.ModeClassical},
		{"?assets=3&preference=CLASSICAL", quantum.ModeClassical},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := get(t, caps, "/quantum/capabilities"+tt.query)
			require.Equal(t, http.StatusOK, w.Code)

			var body capsBody
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			require.NotNil(t, body.Data.Selection)
			assert.Equal(t, tt.mode, body.Data.Selection.Mode)
		})
	}
}

func TestHandleGetCapabilities_Unavailable(t *testing.T) {
	caps := quantum.DetectCapabilities(quantum.UnavailableBackend{Reason: "off"}, 8)

	w := get(t, caps, "/quantum/capabilities?assets=2")
	var body capsBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.False(t, body.Data.QuantumBackend)
	assert.Equal(t, quantum.ModeClassical, body.Data.Selection.Mode)
	assert.NotEmpty(t, body.Data.Selection.Reason)
}

func TestHandleGetCapabilities_BadQuery(t *testing.T) {
	caps := quantum.DetectCapabilities(quantum.NewSimulator(8), 8)
	assert.Equal(t, http.StatusBadRequest, get(t, caps, "/quantum/capabilities?assets=zero").Code)
}
