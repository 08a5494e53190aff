package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for errors.Is matching. The typed errors below unwrap to these.
var (
	ErrValidation          = errors.New("validation error")
	ErrBackendUnavailable  = errors.New("quantum backend unavailable")
	ErrSolverDivergence    = errors.New("solver did not converge")
	ErrPartialChunkFailure = errors.New("decomposition chunk failure")
	ErrInsufficientAssets  = errors.New("insufficient assets")
)

// ValidationError reports an empty or malformed input. Always fatal.
type ValidationError struct {
	Field  string
	Reason string
}

// NewValidationError creates a validation error for field
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// BackendUnavailableError reports a missing quantum capability.
// It never crosses the service boundary.
type BackendUnavailableError struct {
	Reason string
}

func (e *BackendUnavailableError) Error() string {
	return "quantum backend unavailable: " + e.Reason
}

func (e *BackendUnavailableError) Unwrap() error { return ErrBackendUnavailable }

// SolverDivergenceError describes a minimizer that stopped without converging.
// Surfaced to callers as Success=false, not as an error.
type SolverDivergenceError struct {
	Status     string
	Iterations int
}

func (e *SolverDivergenceError) Error() string {
	return fmt.Sprintf("solver did not converge after %d iterations: status=%s", e.Iterations, e.Status)
}

func (e *SolverDivergenceError) Unwrap() error { return ErrSolverDivergence }

// PartialChunkFailureError lists the decomposition chunks that failed.
// Fatal only when every chunk failed.
type PartialChunkFailureError struct {
	Failed []int
	Total  int
	Causes []string
}

func (e *PartialChunkFailureError) Error() string {
	msg := fmt.Sprintf("%d of %d decomposition chunks failed", len(e.Failed), e.Total)
	if len(e.Causes) > 0 {
		msg += ": " + strings.Join(e.Causes, "; ")
	}
	return msg
}

func (e *PartialChunkFailureError) Unwrap() error { return ErrPartialChunkFailure }

// AllFailed reports whether no chunk survived
func (e *PartialChunkFailureError) AllFailed() bool {
	return len(e.Failed) == e.Total
}

// InsufficientAssetsError reports that the ESG floor excluded the whole universe
type InsufficientAssetsError struct {
	TargetESG float64
	Floor     float64
	MaxESG    float64
}

func (e *InsufficientAssetsError) Error() string {
	return fmt.Sprintf("no asset meets ESG floor %.1f (target %.1f, best available %.1f)", e.Floor, e.TargetESG, e.MaxESG)
}

func (e *InsufficientAssetsError) Unwrap() error { return ErrInsufficientAssets }
