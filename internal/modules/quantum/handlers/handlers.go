// Package handlers provides HTTP handlers for quantum backend introspection.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aristath/qportfolio/internal/domain"
	"github.com/aristath/qportfolio/internal/modules/quantum"
	"github.com/aristath/qportfolio/pkg/render"
)

// CapabilityReporter exposes the capabilities resolved at startup
type CapabilityReporter interface {
	Capabilities() quantum.Capabilities
}

// Handler handles quantum HTTP requests
type Handler struct {
	reporter CapabilityReporter
	log      zerolog.Logger
}

// NewHandler creates a new quantum handler
func NewHandler(reporter CapabilityReporter, log zerolog.Logger) *Handler {
	return &Handler{
		reporter: reporter,
		log:      log.With().Str("handler", "quantum").Logger(),
	}
}

// SelectionResponse describes which variant a universe size would get
type SelectionResponse struct {
	Mode       quantum.Mode            `json:"mode" msgpack:"mode"`
	Reason     string                  `json:"reason,omitempty" msgpack:"reason,omitempty"`
	Preference domain.SolverPreference `json:"preference" msgpack:"preference"`
	Assets     int                     `json:"assets" msgpack:"assets"`
}

// CapabilitiesResponse is the body of GET /api/quantum/capabilities
type CapabilitiesResponse struct {
	quantum.Capabilities
	Selection *SelectionResponse `json:"selection,omitempty" msgpack:"selection,omitempty"`
}

// HandleGetCapabilities handles GET /api/quantum/capabilities.
// With ?assets=N (and optionally &preference=) it also reports the variant
// the adapter would select.
func (h *Handler) HandleGetCapabilities(w http.ResponseWriter, r *http.Request) {
	caps := h.reporter.Capabilities()
	resp := CapabilitiesResponse{Capabilities: caps}

	if raw := r.URL.Query().Get("assets"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "assets must be a positive integer", http.StatusBadRequest)
			return
		}
		pref := domain.SolverPreference(r.URL.Query().Get("preference"))
		if pref == "" {
			pref = domain.SolverPreferenceAuto
		}
		mode, reason := caps.SelectMode(pref, n)
		resp.Selection = &SelectionResponse{Mode: mode, Reason: reason, Preference: pref, Assets: n}
	}

	render.Respond(w, r, http.StatusOK, render.Wrap(resp, ""), h.log)
}
