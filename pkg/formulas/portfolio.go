// Package formulas provides pure portfolio math shared by every solver path.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultRiskFreeRate is the annual risk-free rate used for Sharpe ratios
const DefaultRiskFreeRate = 0.02

// Metrics bundles the standard portfolio statistics
type Metrics struct {
	ExpectedReturn       float64
	Volatility           float64
	SharpeRatio          float64
	ESGScore             float64
	DiversificationRatio float64
}

// PortfolioReturn calculates Σ wᵢrᵢ
func PortfolioReturn(weights, returns []float64) float64 {
	return floats.Dot(weights, returns)
}

// PortfolioVariance calculates Σᵢ Σⱼ wᵢwⱼσᵢσⱼρᵢⱼ.
// corr may be nil, in which case assets are treated as uncorrelated.
func PortfolioVariance(weights, vols []float64, corr mat.Symmetric) float64 {
	n := len(weights)
	var variance float64
	for i := 0; i < n; i++ {
		wi := weights[i] * vols[i]
		if wi == 0 {
			continue
		}
		for j := 0; j < n; j++ {
			rho := 0.0
			if i == j {
				rho = 1.0
			} else if corr != nil {
				rho = corr.At(i, j)
			}
			variance += wi * weights[j] * vols[j] * rho
		}
	}
	// Rounding on a near-singular matrix can push this slightly negative
	return math.Max(0, variance)
}

// PortfolioVolatility calculates sqrt(w'Σw)
func PortfolioVolatility(weights, vols []float64, corr mat.Symmetric) float64 {
	return math.Sqrt(PortfolioVariance(weights, vols, corr))
}

// SharpeRatio returns (ret - riskFree) / vol, or 0 when vol is not positive
func SharpeRatio(ret, vol, riskFree float64) float64 {
	if vol <= 0 || math.IsNaN(vol) {
		return 0
	}
	s := (ret - riskFree) / vol
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return s
}

// PortfolioESG calculates Σ wᵢ·esgᵢ
func PortfolioESG(weights, esg []float64) float64 {
	return floats.Dot(weights, esg)
}

// DiversificationRatio returns (Σ wᵢσᵢ) / vol, or 1.0 when vol is not positive
func DiversificationRatio(weights, vols []float64, vol float64) float64 {
	if vol <= 0 {
		return 1.0
	}
	return floats.Dot(weights, vols) / vol
}

// Calculate computes every metric for one weight vector
func Calculate(weights, returns, vols, esg []float64, corr mat.Symmetric, riskFree float64) Metrics {
	ret := PortfolioReturn(weights, returns)
	vol := PortfolioVolatility(weights, vols, corr)
	return Metrics{
		ExpectedReturn:       ret,
		Volatility:           vol,
		SharpeRatio:          SharpeRatio(ret, vol, riskFree),
		ESGScore:             PortfolioESG(weights, esg),
		DiversificationRatio: DiversificationRatio(weights, vols, vol),
	}
}

// EqualWeights returns n weights of 1/n
func EqualWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

// NormalizeWeights clips every weight to [0, 1] and rescales the vector to sum to 1.
// A vector with no positive mass becomes equal weights.
func NormalizeWeights(x []float64) []float64 {
	out := make([]float64, len(x))
	var sum float64
	for i, v := range x {
		if math.IsNaN(v) {
			v = 0
		}
		out[i] = Clamp(v, 0, 1)
		sum += out[i]
	}
	if sum <= 1e-12 {
		return EqualWeights(len(x))
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// IsSimplex reports whether w sums to 1 within tol and every entry lies in [0, 1]
func IsSimplex(w []float64, tol float64) bool {
	if len(w) == 0 {
		return false
	}
	for _, v := range w {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return false
		}
	}
	return math.Abs(floats.Sum(w)-1) < tol
}
