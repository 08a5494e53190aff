package quantum

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/qportfolio/internal/domain"
)

// CostParams shapes the binary mean-variance objective
//
//	f(x) = λ·xᵀΣx − μᵀx + P·(Σx − K)²,  x ∈ {0,1}ⁿ
type CostParams struct {
	RiskAversion float64 // λ
	Penalty      float64 // P; zero derives one that dominates every objective term
	Select       int     // K; zero means ⌈n/2⌉
}

// RiskAversionFor maps a risk tolerance in [0, 1] to λ
func RiskAversionFor(riskTolerance float64) float64 {
	return 1 / math.Max(riskTolerance, 0.05)
}

// CostOperator is the Ising form of the objective under x = (1 − z)/2:
//
//	E(z) = Offset + Σ hᵢzᵢ + Σ_{i<j} Jᵢⱼzᵢzⱼ
//
// A qubit measured as 1 (z = −1) selects its asset.
type CostOperator struct {
	H      []float64
	J      *mat.SymDense // zero diagonal
	diag   []float64
	Offset float64
	N      int
	K      int
}

// NewCostOperator builds the cost operator for assets. corr may be nil for
// uncorrelated assets.
func NewCostOperator(assets []domain.Asset, corr mat.Symmetric, params CostParams) (*CostOperator, error) {
	n := len(assets)
	if n == 0 || n > MaxSimulatedQubits {
		return nil, fmt.Errorf("cannot encode %d assets", n)
	}
	if corr != nil && corr.SymmetricDim() != n {
		return nil, fmt.Errorf("correlation matrix size %d doesn't match assets count %d", corr.SymmetricDim(), n)
	}
	lambda := params.RiskAversion
	if lambda <= 0 {
		lambda = 1
	}
	k := params.Select
	if k <= 0 || k > n {
		k = (n + 1) / 2
	}

	cov := func(i, j int) float64 {
		rho := 0.0
		if i == j {
			rho = 1
		} else if corr != nil {
			rho = corr.At(i, j)
		}
		return assets[i].Volatility * assets[j].Volatility * rho
	}

	penalty := params.Penalty
	if penalty <= 0 {
		for i := 0; i < n; i++ {
			penalty += lambda*cov(i, i) + math.Abs(assets[i].ExpectedReturn)
			for j := i + 1; j < n; j++ {
				penalty += 2 * lambda * math.Abs(cov(i, j))
			}
		}
		penalty = math.Max(penalty, 1)
	}

	// QUBO coefficients: a (linear), b (pairwise, i<j), c (constant)
	a := make([]float64, n)
	for i := 0; i < n; i++ {
		a[i] = lambda*cov(i, i) - assets[i].ExpectedReturn + penalty*float64(1-2*k)
	}
	c := penalty * float64(k*k)

	op := &CostOperator{
		H: make([]float64, n),
		J: mat.NewSymDense(n, nil),
		N: n,
		K: k,
	}
	op.Offset = c
	for i := 0; i < n; i++ {
		op.H[i] -= a[i] / 2
		op.Offset += a[i] / 2
		for j := i + 1; j < n; j++ {
			b := 2*lambda*cov(i, j) + 2*penalty
			op.J.SetSym(i, j, b/4)
			op.H[i] -= b / 4
			op.H[j] -= b / 4
			op.Offset += b / 4
		}
	}

	for i := 0; i < n; i++ {
		if math.IsNaN(op.H[i]) || math.IsInf(op.H[i], 0) {
			return nil, fmt.Errorf("non-finite field on qubit %d", i)
		}
	}
	return op, nil
}

// Energy evaluates E for a basis state
func (c *CostOperator) Energy(basis int) float64 {
	e := c.Offset
	for i := 0; i < c.N; i++ {
		zi := spin(basis, i)
		e += c.H[i] * zi
		for j := i + 1; j < c.N; j++ {
			e += c.J.At(i, j) * zi * spin(basis, j)
		}
	}
	return e
}

// Diagonal returns E for every basis state
func (c *CostOperator) Diagonal() []float64 {
	if c.diag == nil {
		c.diag = make([]float64, 1<<c.N)
		for k := range c.diag {
			c.diag[k] = c.Energy(k)
		}
	}
	return c.diag
}

// GroundState returns the basis state of minimum energy
func (c *CostOperator) GroundState() (int, float64) {
	best, bestE := 0, math.Inf(1)
	for k, e := range c.Diagonal() {
		if e < bestE {
			best, bestE = k, e
		}
	}
	return best, bestE
}

// NormalizedDiagonal rescales the energies to [0, 1]
func (c *CostOperator) NormalizedDiagonal() []float64 {
	diag := c.Diagonal()
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, e := range diag {
		lo = math.Min(lo, e)
		hi = math.Max(hi, e)
	}
	out := make([]float64, len(diag))
	if hi-lo <= 0 {
		return out
	}
	for k, e := range diag {
		out[k] = (e - lo) / (hi - lo)
	}
	return out
}

// spin returns z = +1 for a 0 bit and −1 for a 1 bit
func spin(basis, q int) float64 {
	if basis&(1<<q) != 0 {
		return -1
	}
	return 1
}
