package optimization

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/aristath/qportfolio/internal/domain"
	"github.com/aristath/qportfolio/pkg/formulas"
)

const (
	// DefaultMaxIterations bounds each minimizer run
	DefaultMaxIterations = 500
	// constraintPenalty weights the squared budget and bound violations
	constraintPenalty = 1000.0
)

// ObjectiveFunc scores a weight vector that already lies on the simplex.
// Lower is better.
type ObjectiveFunc func(weights []float64) float64

// SolveResult is the outcome of one classical minimization.
// Success=false is a quality flag: Weights still holds the best iterate found.
type SolveResult struct {
	Weights    []float64
	Message    string
	Objective  float64
	Iterations int
	Success    bool
}

// ClassicalSolver minimizes an objective over the probability simplex
// {Σw = 1, 0 ≤ wᵢ ≤ 1} starting from equal weights.
type ClassicalSolver struct {
	maxIterations int
	log           zerolog.Logger
}

// NewClassicalSolver creates a classical solver. Non-positive maxIterations uses the default.
func NewClassicalSolver(maxIterations int, log zerolog.Logger) *ClassicalSolver {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	return &ClassicalSolver{
		maxIterations: maxIterations,
		log:           log.With().Str("component", "classical_solver").Logger(),
	}
}

// Solve minimizes objective (portfolio volatility when nil) for assets.
//
// Constraints are handled the way a penalty method does: iterates are projected
// onto [0, 1] and renormalized before the objective is evaluated, and squared
// budget/bound violations are added to keep the raw iterate near the simplex.
// BFGS with finite-difference gradients runs first; NelderMead is the fallback.
//
// The only errors returned are for cancelled contexts and inconsistent inputs.
func (cs *ClassicalSolver) Solve(
	ctx context.Context,
	assets []domain.Asset,
	corr mat.Symmetric,
	objective ObjectiveFunc,
) (SolveResult, error) {
	return cs.SolveFrom(ctx, assets, corr, objective, nil)
}

// SolveFrom is Solve warm-started from start, which is projected onto the
// simplex first. A nil start means equal weights.
func (cs *ClassicalSolver) SolveFrom(
	ctx context.Context,
	assets []domain.Asset,
	corr mat.Symmetric,
	objective ObjectiveFunc,
	start []float64,
) (SolveResult, error) {
	n := len(assets)
	if n == 0 {
		return SolveResult{}, fmt.Errorf("no assets provided")
	}
	if corr != nil && corr.SymmetricDim() != n {
		return SolveResult{}, fmt.Errorf("correlation matrix size %d doesn't match assets count %d", corr.SymmetricDim(), n)
	}
	if err := ctx.Err(); err != nil {
		return SolveResult{}, err
	}
	if objective == nil {
		objective = MinVolatilityObjective(assets, corr)
	}

	if start != nil && len(start) != n {
		return SolveResult{}, fmt.Errorf("start has %d weights for %d assets", len(start), n)
	}
	initial := formulas.EqualWeights(n)
	if start != nil {
		initial = formulas.NormalizeWeights(start)
	}
	if n == 1 {
		return SolveResult{
			Weights:   initial,
			Objective: objective(initial),
			Success:   true,
			Message:   "single asset",
		}, nil
	}

	penalized := func(x []float64) float64 {
		var sum, boundViolation float64
		for _, v := range x {
			clipped := formulas.Clamp(v, 0, 1)
			boundViolation += (v - clipped) * (v - clipped)
			sum += clipped
		}
		obj := objective(formulas.NormalizeWeights(x))
		obj += constraintPenalty * (sum - 1.0) * (sum - 1.0)
		obj += constraintPenalty * boundViolation
		return obj
	}

	problem := optimize.Problem{
		Func: penalized,
		Grad: func(grad, x []float64) {
			fd.Gradient(grad, penalized, x, &fd.Settings{Formula: fd.Central})
		},
	}
	settings := &optimize.Settings{MajorIterations: cs.maxIterations}

	result, err := optimize.Minimize(problem, initial, settings, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		cs.log.Debug().
			Err(err).
			Int("num_assets", n).
			Msg("BFGS did not converge, retrying with NelderMead")
		nmSettings := &optimize.Settings{
			MajorIterations: cs.maxIterations * 4,
			FuncEvaluations: cs.maxIterations * 40,
		}
		nmResult, nmErr := optimize.Minimize(optimize.Problem{Func: penalized}, initial, nmSettings, &optimize.NelderMead{})
		if nmResult != nil && (result == nil || nmResult.F < result.F || converged(nmResult.Status)) {
			result, err = nmResult, nmErr
		}
	}

	seedObjective := objective(initial)
	if result == nil || len(result.X) != n {
		return SolveResult{
			Weights:   initial,
			Objective: seedObjective,
			Message:   fmt.Sprintf("optimization failed: %v", err),
		}, nil
	}

	weights := formulas.NormalizeWeights(result.X)
	value := objective(weights)
	success := converged(result.Status) && formulas.IsSimplex(weights, 1e-6)

	// Never return something worse than the starting point
	if math.IsNaN(value) || value > seedObjective {
		weights, value = initial, seedObjective
	}

	out := SolveResult{
		Weights:    weights,
		Objective:  value,
		Iterations: result.Stats.MajorIterations,
		Success:    success,
		Message:    result.Status.String(),
	}
	if !success {
		divErr := &domain.SolverDivergenceError{Status: result.Status.String(), Iterations: result.Stats.MajorIterations}
		out.Message = divErr.Error()
		cs.log.Warn().
			Int("num_assets", n).
			Str("status", result.Status.String()).
			Msg("Classical solver returned best iterate without convergence")
	}
	return out, nil
}

// Minimize is Solve in the shape consumed by the ESG solver
func (cs *ClassicalSolver) Minimize(
	ctx context.Context,
	assets []domain.Asset,
	corr mat.Symmetric,
	objective func([]float64) float64,
) ([]float64, bool, string, error) {
	res, err := cs.Solve(ctx, assets, corr, objective)
	if err != nil {
		return nil, false, "", err
	}
	return res.Weights, res.Success, res.Message, nil
}

// converged accepts the gonum statuses that indicate a usable optimum
func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence,
		optimize.FunctionThreshold, optimize.StepConvergence, optimize.MethodConverge:
		return true
	default:
		return false
	}
}
