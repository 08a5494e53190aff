package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/qportfolio/internal/domain"
	"github.com/aristath/qportfolio/pkg/formulas"
)

// targetShortfallPenalty weights the squared shortfall below a target return
const targetShortfallPenalty = 10000.0

// assetVectors splits assets into return, volatility and ESG vectors
func assetVectors(assets []domain.Asset) (returns, vols, esg []float64) {
	returns = make([]float64, len(assets))
	vols = make([]float64, len(assets))
	esg = make([]float64, len(assets))
	for i, a := range assets {
		returns[i] = a.ExpectedReturn
		vols[i] = a.Volatility
		esg[i] = a.ESGScore
	}
	return returns, vols, esg
}

// MinVolatilityObjective minimizes sqrt(w'Σw)
func MinVolatilityObjective(assets []domain.Asset, corr mat.Symmetric) ObjectiveFunc {
	_, vols, _ := assetVectors(assets)
	return func(w []float64) float64 {
		return formulas.PortfolioVolatility(w, vols, corr)
	}
}

// TargetReturnObjective minimizes volatility while penalizing any shortfall of
// the portfolio return below target. Returns above target are not penalized.
func TargetReturnObjective(assets []domain.Asset, corr mat.Symmetric, target float64) ObjectiveFunc {
	returns, vols, _ := assetVectors(assets)
	return func(w []float64) float64 {
		vol := formulas.PortfolioVolatility(w, vols, corr)
		shortfall := math.Max(0, target-formulas.PortfolioReturn(w, returns))
		return vol + targetShortfallPenalty*shortfall*shortfall
	}
}

// BuildMetrics fills the standard metrics for weights over assets
func BuildMetrics(assets []domain.Asset, weights []float64, corr mat.Symmetric, riskFree float64) formulas.Metrics {
	returns, vols, esg := assetVectors(assets)
	return formulas.Calculate(weights, returns, vols, esg, corr, riskFree)
}

// ApplyMetrics copies metrics into result
func ApplyMetrics(result *domain.OptimizationResult, m formulas.Metrics) {
	result.ExpectedReturn = m.ExpectedReturn
	result.Volatility = m.Volatility
	result.SharpeRatio = m.SharpeRatio
	result.ESGScore = m.ESGScore
	result.DiversificationRatio = m.DiversificationRatio
}
