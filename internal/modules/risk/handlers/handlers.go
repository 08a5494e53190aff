// Package handlers provides HTTP handlers for risk assessment.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/qportfolio/internal/domain"
	"github.com/aristath/qportfolio/pkg/render"
)

// Assessor classifies the risk of a set of assets
type Assessor interface {
	AssessRisk(ctx context.Context, assets []domain.Asset) (*domain.RiskAssessment, error)
}

// Handler handles risk HTTP requests
type Handler struct {
	assessor Assessor
	log      zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(assessor Assessor, log zerolog.Logger) *Handler {
	return &Handler{
		assessor: assessor,
		log:      log.With().Str("handler", "risk").Logger(),
	}
}

// AssessRequest is the body of POST /api/risk/assess
type AssessRequest struct {
	Assets []domain.Asset `json:"assets" msgpack:"assets"`
}

// HandleAssess handles POST /api/risk/assess
func (h *Handler) HandleAssess(w http.ResponseWriter, r *http.Request) {
	var req AssessRequest
	if err := render.Decode(r, &req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	assessment, err := h.assessor.AssessRisk(r.Context(), req.Assets)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrValidation) {
			status = http.StatusBadRequest
		} else {
			h.log.Error().Err(err).Msg("Risk assessment failed")
		}
		render.Fail(w, r, status, err, nil, h.log)
		return
	}

	render.Respond(w, r, http.StatusOK, render.Wrap(assessment, ""), h.log)
}
