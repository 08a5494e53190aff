package quantum

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/optimize"
)

// Default variational settings
const (
	DefaultQAOALayers     = 2
	DefaultQAOAIterations = 100
	DefaultShots          = 1024
	DefaultVQELayers      = 2
	DefaultVQEEvaluations = 1500
)

// Run is the outcome of one variational optimization
type Run struct {
	Weights    []float64
	Params     []float64
	Bitstring  string // modal measurement, QAOA only
	Energy     float64
	Iterations int
}

// QAOA alternates cost and transverse-field mixer layers over |+…+⟩
type QAOA struct {
	Optimizer SPSA
	Layers    int
	Shots     int
}

// NewQAOA creates a QAOA runner with defaults for non-positive arguments
func NewQAOA(layers, iterations, shots int) QAOA {
	if layers <= 0 {
		layers = DefaultQAOALayers
	}
	if iterations <= 0 {
		iterations = DefaultQAOAIterations
	}
	if shots <= 0 {
		shots = DefaultShots
	}
	return QAOA{Layers: layers, Shots: shots, Optimizer: DefaultSPSA(iterations)}
}

// Circuit builds the ansatz. params holds γ₁…γₚ followed by β₁…βₚ.
func (q QAOA) Circuit(op *CostOperator, params []float64) *Circuit {
	c := NewCircuit(op.N).WithCost(op.NormalizedDiagonal())
	for i := 0; i < op.N; i++ {
		c.H(i)
	}
	for l := 0; l < q.Layers; l++ {
		c.CostLayer(params[l])
		for i := 0; i < op.N; i++ {
			c.RX(i, 2*params[q.Layers+l])
		}
	}
	return c
}

// Run optimizes the QAOA angles with SPSA, then samples the optimized circuit
func (q QAOA) Run(ctx context.Context, backend Backend, op *CostOperator, rng *rand.Rand) (Run, error) {
	// Linear ramp: γ grows and β shrinks layer by layer
	x0 := make([]float64, 2*q.Layers)
	for l := 0; l < q.Layers; l++ {
		frac := float64(l+1) / float64(q.Layers+1)
		x0[l] = math.Pi * frac
		x0[q.Layers+l] = (math.Pi / 4) * (1 - frac)
	}

	var execErr error
	cost := op.NormalizedDiagonal()
	objective := func(params []float64) float64 {
		state, err := backend.Execute(ctx, q.Circuit(op, params))
		if err != nil {
			execErr = err
			return math.Inf(1)
		}
		return state.Expectation(cost)
	}

	params, _, iterations := q.Optimizer.Minimize(objective, x0, rng)
	if execErr != nil {
		return Run{}, fmt.Errorf("qaoa execution: %w", execErr)
	}

	state, err := backend.Execute(ctx, q.Circuit(op, params))
	if err != nil {
		return Run{}, fmt.Errorf("qaoa final execution: %w", err)
	}
	counts, err := state.Sample(q.Shots, rng)
	if err != nil {
		return Run{}, fmt.Errorf("qaoa sampling: %w", err)
	}
	weights, err := DecodeSamples(counts, op.N)
	if err != nil {
		return Run{}, fmt.Errorf("qaoa decoding: %w", err)
	}
	modal, _ := MostFrequent(counts)

	return Run{
		Weights:    weights,
		Params:     params,
		Bitstring:  Bitstring(modal, op.N),
		Energy:     state.Expectation(op.Diagonal()),
		Iterations: iterations,
	}, nil
}

// VQE minimizes the cost expectation over a hardware-efficient RY+CNOT ansatz
type VQE struct {
	Layers         int
	MaxEvaluations int
}

// NewVQE creates a VQE runner with defaults for non-positive arguments
func NewVQE(layers, maxEvaluations int) VQE {
	if layers <= 0 {
		layers = DefaultVQELayers
	}
	if maxEvaluations <= 0 {
		maxEvaluations = DefaultVQEEvaluations
	}
	return VQE{Layers: layers, MaxEvaluations: maxEvaluations}
}

// NumParams returns the ansatz parameter count for n qubits
func (v VQE) NumParams(n int) int {
	return (v.Layers + 1) * n
}

// Circuit builds Layers blocks of RY rotations and a CNOT chain, then a final RY layer
func (v VQE) Circuit(n int, params []float64) *Circuit {
	c := NewCircuit(n)
	p := 0
	for l := 0; l < v.Layers; l++ {
		for i := 0; i < n; i++ {
			c.RY(i, params[p])
			p++
		}
		for i := 0; i+1 < n; i++ {
			c.CNOT(i, i+1)
		}
	}
	for i := 0; i < n; i++ {
		c.RY(i, params[p])
		p++
	}
	return c
}

// Run minimizes ⟨C⟩ with NelderMead and decodes the selection marginals
func (v VQE) Run(ctx context.Context, backend Backend, op *CostOperator, rng *rand.Rand) (Run, error) {
	x0 := make([]float64, v.NumParams(op.N))
	for i := range x0 {
		x0[i] = math.Pi/2 + 0.1*(rng.Float64()-0.5)
	}

	var execErr error
	cost := op.NormalizedDiagonal()
	problem := optimize.Problem{
		Func: func(params []float64) float64 {
			state, err := backend.Execute(ctx, v.Circuit(op.N, params))
			if err != nil {
				execErr = err
				return math.Inf(1)
			}
			return state.Expectation(cost)
		},
	}
	settings := &optimize.Settings{FuncEvaluations: v.MaxEvaluations}

	result, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{})
	if execErr != nil {
		return Run{}, fmt.Errorf("vqe execution: %w", execErr)
	}
	if result == nil {
		return Run{}, fmt.Errorf("vqe optimizer: %w", err)
	}

	state, err := backend.Execute(ctx, v.Circuit(op.N, result.X))
	if err != nil {
		return Run{}, fmt.Errorf("vqe final execution: %w", err)
	}
	weights, err := DecodeMarginals(state.Marginals())
	if err != nil {
		return Run{}, fmt.Errorf("vqe decoding: %w", err)
	}

	return Run{
		Weights:    weights,
		Params:     result.X,
		Energy:     state.Expectation(op.Diagonal()),
		Iterations: result.Stats.MajorIterations,
	}, nil
}
