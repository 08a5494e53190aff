// Package correlation supplies the correlation matrices consumed by every solver.
package correlation

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Off-diagonal correlations are clamped to ±StabilityBound for numerical stability
const StabilityBound = 0.8

// DefaultSeed makes the synthetic matrix reproducible across runs
const DefaultSeed int64 = 42

// Provider builds a valid correlation matrix for the given assets, in order.
// Implementations must be safe for concurrent use.
type Provider interface {
	Build(symbols []string) (*mat.SymDense, error)
}

// SyntheticProvider generates a random positive-semidefinite correlation matrix.
//
// This is a stand-in for tests and demos only. Production deployments inject a
// provider backed by historical return covariance.
type SyntheticProvider struct {
	seed int64
}

// NewSyntheticProvider creates a synthetic provider with a fixed seed
func NewSyntheticProvider(seed int64) *SyntheticProvider {
	return &SyntheticProvider{seed: seed}
}

// Build generates M·Mᵀ from a seeded random M, rescales it to correlation form,
// forces the diagonal to 1 and clamps off-diagonals to ±StabilityBound.
// The same seed and size always yield the same matrix.
func (p *SyntheticProvider) Build(symbols []string) (*mat.SymDense, error) {
	n := len(symbols)
	if n == 0 {
		return nil, fmt.Errorf("cannot build correlation matrix for zero assets")
	}

	// Fresh generator per call keeps the provider stateless and goroutine safe
	rng := rand.New(rand.NewSource(p.seed + int64(n)))
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			m.Set(i, j, rng.NormFloat64())
		}
	}

	var cov mat.SymDense
	cov.SymOuterK(1, m)

	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if i == j {
				corr.SetSym(i, i, 1.0)
				continue
			}
			denom := math.Sqrt(cov.At(i, i) * cov.At(j, j))
			rho := 0.0
			if denom > 0 {
				rho = cov.At(i, j) / denom
			}
			corr.SetSym(i, j, clampCorrelation(rho, StabilityBound))
		}
	}
	return corr, nil
}

// IdentityProvider treats every asset as uncorrelated
type IdentityProvider struct{}

// Build returns the n×n identity matrix
func (IdentityProvider) Build(symbols []string) (*mat.SymDense, error) {
	n := len(symbols)
	if n == 0 {
		return nil, fmt.Errorf("cannot build correlation matrix for zero assets")
	}
	corr := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		corr.SetSym(i, i, 1.0)
	}
	return corr, nil
}

// StaticProvider serves a caller-supplied correlation matrix, typically from a
// market-data collaborator, and subsets it to the requested symbols.
type StaticProvider struct {
	index  map[string]int
	matrix *mat.SymDense
}

// NewStaticProvider validates matrix (ordered like symbols) and clamps its
// off-diagonals to ±StabilityBound.
func NewStaticProvider(symbols []string, matrix [][]float64) (*StaticProvider, error) {
	n := len(symbols)
	if n == 0 {
		return nil, fmt.Errorf("static correlation provider needs at least one symbol")
	}
	if len(matrix) != n {
		return nil, fmt.Errorf("correlation matrix has %d rows, expected %d", len(matrix), n)
	}

	dense := mat.NewDense(n, n, nil)
	for i, row := range matrix {
		if len(row) != n {
			return nil, fmt.Errorf("correlation matrix row %d has size %d, expected %d", i, len(row), n)
		}
		dense.SetRow(i, row)
	}
	if err := Validate(dense); err != nil {
		return nil, err
	}

	index := make(map[string]int, n)
	corr := mat.NewSymDense(n, nil)
	for i, s := range symbols {
		if _, dup := index[s]; dup {
			return nil, fmt.Errorf("duplicate symbol %s in correlation matrix", s)
		}
		index[s] = i
		for j := i; j < n; j++ {
			if i == j {
				corr.SetSym(i, i, 1.0)
				continue
			}
			corr.SetSym(i, j, clampCorrelation(dense.At(i, j), StabilityBound))
		}
	}
	return &StaticProvider{index: index, matrix: corr}, nil
}

// Build returns the sub-matrix for symbols, in the requested order
func (p *StaticProvider) Build(symbols []string) (*mat.SymDense, error) {
	n := len(symbols)
	if n == 0 {
		return nil, fmt.Errorf("cannot build correlation matrix for zero assets")
	}
	idx := make([]int, n)
	for k, s := range symbols {
		i, ok := p.index[s]
		if !ok {
			return nil, fmt.Errorf("no correlation data for symbol %s", s)
		}
		idx[k] = i
	}
	out := mat.NewSymDense(n, nil)
	for a := 0; a < n; a++ {
		for b := a; b < n; b++ {
			out.SetSym(a, b, p.matrix.At(idx[a], idx[b]))
		}
	}
	return out, nil
}

// Validate checks that m is square, symmetric, has a unit diagonal and entries in [-1, 1]
func Validate(m mat.Matrix) error {
	r, c := m.Dims()
	if r != c {
		return fmt.Errorf("correlation matrix must be square, got %dx%d", r, c)
	}
	for i := 0; i < r; i++ {
		if math.Abs(m.At(i, i)-1.0) > 1e-9 {
			return fmt.Errorf("correlation matrix diagonal [%d] is %.6f, expected 1", i, m.At(i, i))
		}
		for j := i + 1; j < r; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || v < -1 || v > 1 {
				return fmt.Errorf("correlation [%d,%d] = %.6f outside [-1, 1]", i, j, v)
			}
			if math.Abs(v-m.At(j, i)) > 1e-9 {
				return fmt.Errorf("correlation matrix not symmetric at [%d,%d]", i, j)
			}
		}
	}
	return nil
}

// Subset extracts the rows/columns listed in idx, preserving their order
func Subset(m mat.Symmetric, idx []int) *mat.SymDense {
	out := mat.NewSymDense(len(idx), nil)
	for a := range idx {
		for b := a; b < len(idx); b++ {
			out.SetSym(a, b, m.At(idx[a], idx[b]))
		}
	}
	return out
}

func clampCorrelation(v, bound float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-bound, math.Min(bound, v))
}
