package quantum

import (
	"math"
	"math/rand"
)

// SPSA is simultaneous perturbation stochastic approximation: two function
// evaluations per iteration regardless of dimension.
type SPSA struct {
	Iterations int
	A          float64 // step numerator
	C          float64 // perturbation size
	Alpha      float64
	Gamma      float64
}

// DefaultSPSA returns the standard gain schedule (α=0.602, γ=0.101)
func DefaultSPSA(iterations int) SPSA {
	return SPSA{Iterations: iterations, A: 0.2, C: 0.1, Alpha: 0.602, Gamma: 0.101}
}

// Minimize runs SPSA from x0 and returns the best point evaluated
func (s SPSA) Minimize(f func([]float64) float64, x0 []float64, rng *rand.Rand) ([]float64, float64, int) {
	n := len(x0)
	x := append([]float64(nil), x0...)
	best := append([]float64(nil), x0...)
	bestF := f(x)

	stability := 0.1 * float64(s.Iterations)
	plus := make([]float64, n)
	minus := make([]float64, n)
	delta := make([]float64, n)

	k := 0
	for ; k < s.Iterations; k++ {
		ak := s.A / math.Pow(float64(k+1)+stability, s.Alpha)
		ck := s.C / math.Pow(float64(k+1), s.Gamma)

		for i := range delta {
			delta[i] = 1
			if rng.Intn(2) == 0 {
				delta[i] = -1
			}
			plus[i] = x[i] + ck*delta[i]
			minus[i] = x[i] - ck*delta[i]
		}
		fPlus, fMinus := f(plus), f(minus)
		diff := (fPlus - fMinus) / (2 * ck)
		for i := range x {
			x[i] -= ak * diff / delta[i]
		}

		if fPlus < bestF {
			bestF = fPlus
			copy(best, plus)
		}
		if fMinus < bestF {
			bestF = fMinus
			copy(best, minus)
		}
	}

	if fx := f(x); fx < bestF {
		bestF = fx
		copy(best, x)
	}
	return best, bestF, k
}
