package quantum

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestNewStateVector(t *testing.T) {
	_, err := NewStateVector(0)
	assert.Error(t, err)
	_, err = NewStateVector(MaxSimulatedQubits + 1)
	assert.Error(t, err)

	s, err := NewStateVector(3)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Qubits())
	assert.Equal(t, complex(1, 0), s.Amplitude(0))
}

func TestHadamard_UniformSuperposition(t *testing.T) {
	s, err := NewStateVector(2)
	require.NoError(t, err)
	s.H(0)
	s.H(1)

	for _, p := range s.Probabilities() {
		assert.InDelta(t, 0.25, p, 1e-12)
	}
	assert.InDelta(t, 0.5, s.Marginals()[0], 1e-12)
}

func TestCNOT_BellState(t *testing.T) {
	s, err := NewStateVector(2)
	require.NoError(t, err)
	s.H(0)
	s.CNOT(0, 1)

	probs := s.Probabilities()
	assert.InDelta(t, 0.5, probs[0b00], 1e-12)
	assert.InDelta(t, 0.5, probs[0b11], 1e-12)
	assert.InDelta(t, 0, probs[0b01], 1e-12)
	assert.InDelta(t, 0, probs[0b10], 1e-12)
}

func TestRotations(t *testing.T) {
	s, err := NewStateVector(1)
	require.NoError(t, err)

	s.RY(0, math.Pi)
	assert.InDelta(t, 1, s.Probabilities()[1], 1e-12)

	s.RX(0, math.Pi)
	assert.InDelta(t, 1, s.Probabilities()[0], 1e-12)

	// RZ only changes phase
	s.H(0)
	s.RZ(0, 1.234)
	assert.InDelta(t, 0.5, s.Probabilities()[1], 1e-12)
	assert.InDelta(t, 1, floats.Sum(s.Probabilities()), 1e-12)
}

func TestPhase_PreservesProbabilities(t *testing.T) {
	s, err := NewStateVector(2)
	require.NoError(t, err)
	s.H(0)
	s.H(1)
	s.Phase([]float64{0, 1, 2, 3}, 0.7)

	for _, p := range s.Probabilities() {
		assert.InDelta(t, 0.25, p, 1e-12)
	}
	assert.InDelta(t, 1.5, s.Expectation([]float64{0, 1, 2, 3}), 1e-12)
}

func TestSample(t *testing.T) {
	s, err := NewStateVector(2)
	require.NoError(t, err)
	s.RY(1, math.Pi) // |10⟩ in qubit order, basis index 2

	counts, err := s.Sample(100, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, map[int]int{2: 100}, counts)

	_, err = s.Sample(0, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

func TestSample_Deterministic(t *testing.T) {
	s, err := NewStateVector(3)
	require.NoError(t, err)
	for q := 0; q < 3; q++ {
		s.H(q)
	}

	a, err := s.Sample(500, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	b, err := s.Sample(500, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBitstringAndHamming(t *testing.T) {
	assert.Equal(t, "100", Bitstring(1, 3))
	assert.Equal(t, "011", Bitstring(6, 3))
	assert.Equal(t, 2, HammingWeight(6))
	assert.Equal(t, 0, HammingWeight(0))
}

func TestSimulator_Execute(t *testing.T) {
	sim := NewSimulator(4)
	assert.True(t, sim.Available())

	state, err := sim.Execute(context.Background(), NewCircuit(2).H(0).CNOT(0, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, state.Probabilities()[3], 1e-12)

	_, err = sim.Execute(context.Background(), NewCircuit(5))
	assert.Error(t, err, "circuit wider than the simulator")

	_, err = sim.Execute(context.Background(), NewCircuit(2).CNOT(1, 1))
	assert.Error(t, err)

	_, err = sim.Execute(context.Background(), NewCircuit(2).CostLayer(0.1))
	assert.Error(t, err, "cost layer without a cost operator")

	_, err = sim.Execute(context.Background(), NewCircuit(2).H(2))
	assert.Error(t, err)
}

func TestUnavailableBackend(t *testing.T) {
	b := UnavailableBackend{Reason: "disabled"}
	assert.False(t, b.Available())
	_, err := b.Execute(context.Background(), NewCircuit(1))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disabled")
}
