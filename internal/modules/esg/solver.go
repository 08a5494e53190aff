// Package esg provides the ESG-focused multi-objective solver.
package esg

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/qportfolio/internal/domain"
	"github.com/aristath/qportfolio/internal/modules/correlation"
	"github.com/aristath/qportfolio/pkg/formulas"
)

// FloorMargin is how far below the target an asset's ESG score may sit
const FloorMargin = 10.0

// Bucket thresholds for the ESG distribution
const (
	HighESG   = 80.0
	MediumESG = 60.0
)

// Minimizer minimizes an objective over the weight simplex
type Minimizer interface {
	Minimize(ctx context.Context, assets []domain.Asset, corr mat.Symmetric, objective func([]float64) float64) (weights []float64, success bool, message string, err error)
}

// ObjectiveWeights are the scalarization coefficients
type ObjectiveWeights struct {
	ESG    float64 `json:"esg"`
	Risk   float64 `json:"risk"`
	Return float64 `json:"return"`
}

// DefaultObjectiveWeights returns 0.4 ESG, 0.3 risk, 0.3 return
func DefaultObjectiveWeights() ObjectiveWeights {
	return ObjectiveWeights{ESG: 0.4, Risk: 0.3, Return: 0.3}
}

// ForRiskTolerance shifts emphasis from risk to return as tolerance grows.
// A tolerance of 0 leaves the weights unchanged.
func (w ObjectiveWeights) ForRiskTolerance(rt float64) ObjectiveWeights {
	return ObjectiveWeights{
		ESG:    w.ESG,
		Risk:   w.Risk * (1 - rt/2),
		Return: w.Return * (1 + rt/2),
	}
}

// Solver runs ESG-constrained optimizations
type Solver struct {
	minimizer Minimizer
	provider  correlation.Provider
	log       zerolog.Logger
	weights   ObjectiveWeights
	riskFree  float64
}

// NewSolver creates an ESG solver
func NewSolver(minimizer Minimizer, provider correlation.Provider, weights ObjectiveWeights, riskFree float64, log zerolog.Logger) *Solver {
	if weights == (ObjectiveWeights{}) {
		weights = DefaultObjectiveWeights()
	}
	return &Solver{
		minimizer: minimizer,
		provider:  provider,
		weights:   weights,
		riskFree:  riskFree,
		log:       log.With().Str("component", "esg_solver").Logger(),
	}
}

// Filter keeps the assets whose ESG score is at least target − FloorMargin
func Filter(assets []domain.Asset, targetESG float64) ([]domain.Asset, error) {
	floor := targetESG - FloorMargin
	kept := make([]domain.Asset, 0, len(assets))
	maxESG := math.Inf(-1)
	for _, a := range assets {
		maxESG = math.Max(maxESG, a.ESGScore)
		if a.ESGScore >= floor {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		return nil, &domain.InsufficientAssetsError{TargetESG: targetESG, Floor: floor, MaxESG: maxESG}
	}
	return kept, nil
}

// Objective returns −(wₑ·ESG/100 + wᵣ·1/(1+σ) + wᵣₑₜ·r/max|r|) for a portfolio
func Objective(assets []domain.Asset, corr mat.Symmetric, w ObjectiveWeights) func([]float64) float64 {
	n := len(assets)
	returns := make([]float64, n)
	vols := make([]float64, n)
	esg := make([]float64, n)
	maxAbsReturn := 0.0
	for i, a := range assets {
		returns[i] = a.ExpectedReturn
		vols[i] = a.Volatility
		esg[i] = a.ESGScore
		maxAbsReturn = math.Max(maxAbsReturn, math.Abs(a.ExpectedReturn))
	}

	return func(weights []float64) float64 {
		esgNorm := formulas.PortfolioESG(weights, esg) / 100
		riskTerm := 1 / (1 + formulas.PortfolioVolatility(weights, vols, corr))
		returnNorm := 0.0
		if maxAbsReturn > 0 {
			returnNorm = formulas.PortfolioReturn(weights, returns) / maxAbsReturn
		}
		return -(w.ESG*esgNorm + w.Risk*riskTerm + w.Return*returnNorm)
	}
}

// Distribution summarizes ESG scores of assets held at weights
func Distribution(assets []domain.Asset, weights []float64) domain.ESGDistribution {
	scores := make([]float64, len(assets))
	var dist domain.ESGDistribution
	for i, a := range assets {
		scores[i] = a.ESGScore
		switch {
		case a.ESGScore >= HighESG:
			dist.High++
		case a.ESGScore >= MediumESG:
			dist.Medium++
		default:
			dist.Low++
		}
	}
	dist.Mean = formulas.Mean(scores)
	dist.WeightedMean = formulas.WeightedMean(scores, weights)
	dist.StdDev = formulas.StdDev(scores)
	return dist
}

// Solve filters assets by targetESG and optimizes the scalarized objective
// over the survivors. Only InsufficientAssetsError and input errors are returned.
func (s *Solver) Solve(ctx context.Context, assets []domain.Asset, targetESG, riskTolerance float64) (*domain.OptimizationResult, error) {
	filtered, err := Filter(assets, targetESG)
	if err != nil {
		s.log.Warn().
			Float64("target_esg", targetESG).
			Int("num_assets", len(assets)).
			Msg("ESG floor excludes every asset")
		return nil, err
	}

	corr, err := s.provider.Build(domain.Symbols(filtered))
	if err != nil {
		return nil, fmt.Errorf("failed to build correlation matrix: %w", err)
	}

	objWeights := s.weights.ForRiskTolerance(riskTolerance)
	weights, success, message, err := s.minimizer.Minimize(ctx, filtered, corr, Objective(filtered, corr, objWeights))
	if err != nil {
		return nil, fmt.Errorf("esg optimization failed: %w", err)
	}

	returns := make([]float64, len(filtered))
	vols := make([]float64, len(filtered))
	esg := make([]float64, len(filtered))
	for i, a := range filtered {
		returns[i] = a.ExpectedReturn
		vols[i] = a.Volatility
		esg[i] = a.ESGScore
	}
	m := formulas.Calculate(weights, returns, vols, esg, corr, s.riskFree)
	dist := Distribution(filtered, weights)

	result := &domain.OptimizationResult{
		SolverUsed:           domain.SolverESGClassical,
		Symbols:              domain.Symbols(filtered),
		Weights:              weights,
		ExpectedReturn:       m.ExpectedReturn,
		Volatility:           m.Volatility,
		SharpeRatio:          m.SharpeRatio,
		ESGScore:             m.ESGScore,
		DiversificationRatio: m.DiversificationRatio,
		Success:              success && formulas.IsSimplex(weights, 1e-6),
	}
	result.Diagnostics.ESGDistribution = &dist
	result.Diagnostics.SolverMessage = message
	if excluded := len(assets) - len(filtered); excluded > 0 {
		result.Diagnostics.Addf("%d assets below ESG floor %.1f excluded", excluded, targetESG-FloorMargin)
	}

	s.log.Debug().
		Int("kept", len(filtered)).
		Float64("esg_score", m.ESGScore).
		Float64("weight_sum", floats.Sum(weights)).
		Msg("ESG optimization complete")

	return result, nil
}
