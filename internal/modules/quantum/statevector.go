package quantum

import (
	"fmt"
	"math"
	"math/bits"
	"math/cmplx"
	"math/rand"
	"sort"
)

// MaxSimulatedQubits bounds the state-vector size (2^n amplitudes)
const MaxSimulatedQubits = 16

// StateVector is an n-qubit pure state. Qubit i is bit i of the basis index.
type StateVector struct {
	amps   []complex128
	qubits int
}

// NewStateVector returns |0…0⟩ on n qubits
func NewStateVector(n int) (*StateVector, error) {
	if n <= 0 || n > MaxSimulatedQubits {
		return nil, fmt.Errorf("qubit count %d outside [1, %d]", n, MaxSimulatedQubits)
	}
	amps := make([]complex128, 1<<n)
	amps[0] = 1
	return &StateVector{amps: amps, qubits: n}, nil
}

// Qubits returns the number of qubits
func (s *StateVector) Qubits() int {
	return s.qubits
}

// Amplitude returns the amplitude of a basis state
func (s *StateVector) Amplitude(basis int) complex128 {
	return s.amps[basis]
}

// apply1 applies a 2x2 unitary to one qubit
func (s *StateVector) apply1(target int, m [2][2]complex128) {
	mask := 1 << target
	for i := range s.amps {
		if i&mask != 0 {
			continue
		}
		j := i | mask
		a0, a1 := s.amps[i], s.amps[j]
		s.amps[i] = m[0][0]*a0 + m[0][1]*a1
		s.amps[j] = m[1][0]*a0 + m[1][1]*a1
	}
}

// H applies a Hadamard gate
func (s *StateVector) H(q int) {
	r := complex(1/math.Sqrt2, 0)
	s.apply1(q, [2][2]complex128{{r, r}, {r, -r}})
}

// RX rotates qubit q about the X axis
func (s *StateVector) RX(q int, theta float64) {
	c := complex(math.Cos(theta/2), 0)
	ns := complex(0, -math.Sin(theta/2))
	s.apply1(q, [2][2]complex128{{c, ns}, {ns, c}})
}

// RY rotates qubit q about the Y axis
func (s *StateVector) RY(q int, theta float64) {
	c := complex(math.Cos(theta/2), 0)
	sn := complex(math.Sin(theta/2), 0)
	s.apply1(q, [2][2]complex128{{c, -sn}, {sn, c}})
}

// RZ rotates qubit q about the Z axis
func (s *StateVector) RZ(q int, theta float64) {
	s.apply1(q, [2][2]complex128{
		{cmplx.Exp(complex(0, -theta/2)), 0},
		{0, cmplx.Exp(complex(0, theta/2))},
	})
}

// CNOT flips target where control is set
func (s *StateVector) CNOT(control, target int) {
	cm, tm := 1<<control, 1<<target
	for i := range s.amps {
		if i&cm != 0 && i&tm == 0 {
			j := i | tm
			s.amps[i], s.amps[j] = s.amps[j], s.amps[i]
		}
	}
}

// Phase applies exp(-i·gamma·diag[k]) to every basis state k
func (s *StateVector) Phase(diag []float64, gamma float64) {
	for k := range s.amps {
		s.amps[k] *= cmplx.Exp(complex(0, -gamma*diag[k]))
	}
}

// Probabilities returns |amplitude|² per basis state (Born rule)
func (s *StateVector) Probabilities() []float64 {
	probs := make([]float64, len(s.amps))
	for k, a := range s.amps {
		probs[k] = real(a)*real(a) + imag(a)*imag(a)
	}
	return probs
}

// Expectation returns ⟨ψ|D|ψ⟩ for a diagonal operator D
func (s *StateVector) Expectation(diag []float64) float64 {
	var e float64
	for k, p := range s.Probabilities() {
		e += p * diag[k]
	}
	return e
}

// Marginals returns P(qubit i measures 1) for every qubit
func (s *StateVector) Marginals() []float64 {
	out := make([]float64, s.qubits)
	for k, p := range s.Probabilities() {
		for q := 0; q < s.qubits; q++ {
			if k&(1<<q) != 0 {
				out[q] += p
			}
		}
	}
	return out
}

// Sample measures the state shots times and returns a histogram keyed by basis index
func (s *StateVector) Sample(shots int, rng *rand.Rand) (map[int]int, error) {
	if shots <= 0 {
		return nil, fmt.Errorf("shots must be positive, got %d", shots)
	}
	cdf := make([]float64, len(s.amps))
	var total float64
	for k, p := range s.Probabilities() {
		total += p
		cdf[k] = total
	}
	if total <= 0 || math.IsNaN(total) {
		return nil, fmt.Errorf("empty measurement distribution")
	}

	counts := make(map[int]int)
	for i := 0; i < shots; i++ {
		r := rng.Float64() * total
		k := sort.Search(len(cdf), func(j int) bool { return cdf[j] > r })
		if k >= len(cdf) {
			k = len(cdf) - 1
		}
		counts[k]++
	}
	return counts, nil
}

// Bitstring renders a basis index with qubit 0 first
func Bitstring(basis, n int) string {
	b := make([]byte, n)
	for q := 0; q < n; q++ {
		if basis&(1<<q) != 0 {
			b[q] = '1'
		} else {
			b[q] = '0'
		}
	}
	return string(b)
}

// HammingWeight counts the set qubits of a basis index
func HammingWeight(basis int) int {
	return bits.OnesCount(uint(basis))
}
