// Package handlers provides HTTP handlers for portfolio optimization.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/aristath/qportfolio/internal/domain"
	"github.com/aristath/qportfolio/pkg/render"
)

// Optimizer is the slice of the optimization service the handlers need
type Optimizer interface {
	Optimize(ctx context.Context, assets []domain.Asset, objective domain.Objective, constraints domain.Constraints) (*domain.OptimizationResult, error)
	OptimizeESG(ctx context.Context, assets []domain.Asset, targetESG, riskTolerance float64) (*domain.OptimizationResult, error)
}

// Handler handles optimization HTTP requests
type Handler struct {
	service Optimizer
	log     zerolog.Logger
}

// NewHandler creates a new optimization handler
func NewHandler(service Optimizer, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "optimization").Logger(),
	}
}

// OptimizeRequest is the body of POST /api/optimize
type OptimizeRequest struct {
	Objective   domain.Objective   `json:"objective" msgpack:"objective"`
	Assets      []domain.Asset     `json:"assets" msgpack:"assets"`
	Constraints domain.Constraints `json:"constraints" msgpack:"constraints"`
}

// OptimizeESGRequest is the body of POST /api/optimize/esg
type OptimizeESGRequest struct {
	Assets        []domain.Asset `json:"assets" msgpack:"assets"`
	TargetESG     float64        `json:"target_esg" msgpack:"target_esg"`
	RiskTolerance float64        `json:"risk_tolerance" msgpack:"risk_tolerance"`
}

// OptimizeResponse pairs a result with the weighted allocation
type OptimizeResponse struct {
	domain.OptimizationResult
	Allocation []domain.Asset `json:"allocation" msgpack:"allocation"`
}

// HandleOptimize handles POST /api/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRequest
	if err := render.Decode(r, &req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Optimize(r.Context(), req.Assets, req.Objective, req.Constraints)
	h.respond(w, r, req.Assets, result, err)
}

// HandleOptimizeESG handles POST /api/optimize/esg
func (h *Handler) HandleOptimizeESG(w http.ResponseWriter, r *http.Request) {
	var req OptimizeESGRequest
	if err := render.Decode(r, &req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.OptimizeESG(r.Context(), req.Assets, req.TargetESG, req.RiskTolerance)
	h.respond(w, r, req.Assets, result, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, assets []domain.Asset, result *domain.OptimizationResult, err error) {
	if err != nil {
		status := StatusFor(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Msg("Optimization failed")
		}
		var partial interface{}
		if result != nil {
			partial = result
		}
		render.Fail(w, r, status, err, partial, h.log)
		return
	}

	render.Respond(w, r, http.StatusOK, render.Wrap(OptimizeResponse{
		OptimizationResult: *result,
		Allocation:         result.Allocation(assets),
	}, result.Diagnostics.RequestID), h.log)
}

// StatusFor maps an engine error to an HTTP status
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientAssets):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrPartialChunkFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
