package quantum

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/qportfolio/internal/domain"
	"github.com/aristath/qportfolio/pkg/formulas"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func testAssets(n int) []domain.Asset {
	assets := make([]domain.Asset, n)
	for i := range assets {
		assets[i] = domain.Asset{
			Symbol:         string(rune('A' + i)),
			ExpectedReturn: 0.04 + 0.01*float64(i),
			Volatility:     0.08 + 0.03*float64(i),
			ESGScore:       70,
		}
	}
	return assets
}

// equalWeightClassical is a deterministic stand-in for the classical solver
func equalWeightClassical(_ context.Context, assets []domain.Asset, _ mat.Symmetric, _ []float64) (Outcome, error) {
	return Outcome{Weights: formulas.EqualWeights(len(assets)), Success: true, Message: "equal weight"}, nil
}

type panickingBackend struct{}

func (panickingBackend) Name() string    { return "panicky" }
func (panickingBackend) Available() bool { return true }
func (panickingBackend) Execute(context.Context, *Circuit) (*StateVector, error) {
	panic("device on fire")
}

type failingBackend struct{}

func (failingBackend) Name() string    { return "failing" }
func (failingBackend) Available() bool { return true }
func (failingBackend) Execute(context.Context, *Circuit) (*StateVector, error) {
	return nil, errors.New("calibration lost")
}

func quboValue(assets []domain.Asset, corr mat.Symmetric, lambda, penalty float64, k int, basis int) float64 {
	n := len(assets)
	x := make([]float64, n)
	for i := range x {
		if basis&(1<<i) != 0 {
			x[i] = 1
		}
	}
	var risk, ret float64
	for i := 0; i < n; i++ {
		ret += assets[i].ExpectedReturn * x[i]
		for j := 0; j < n; j++ {
			rho := corr.At(i, j)
			risk += x[i] * x[j] * assets[i].Volatility * assets[j].Volatility * rho
		}
	}
	count := floats.Sum(x) - float64(k)
	return lambda*risk - ret + penalty*count*count
}

func TestCostOperator_MatchesQUBO(t *testing.T) {
	assets := testAssets(3)
	corr := mat.NewSymDense(3, []float64{
		1, 0.3, -0.2,
		0.3, 1, 0.5,
		-0.2, 0.5, 1,
	})
	params := CostParams{RiskAversion: 2, Penalty: 1.5, Select: 2}

	op, err := NewCostOperator(assets, corr, params)
	require.NoError(t, err)
	for basis := 0; basis < 8; basis++ {
		assert.InDelta(t, quboValue(assets, corr, 2, 1.5, 2, basis), op.Energy(basis), 1e-9, "basis %03b", basis)
	}
}

func TestCostOperator_GroundStateHonoursBudget(t *testing.T) {
	assets := []domain.Asset{
		{Symbol: "SAFE", ExpectedReturn: 0.05, Volatility: 0.05},
		{Symbol: "WILD", ExpectedReturn: 0.05, Volatility: 0.40},
	}
	op, err := NewCostOperator(assets, nil, CostParams{RiskAversion: RiskAversionFor(0)})
	require.NoError(t, err)
	assert.Equal(t, 1, op.K)

	ground, _ := op.GroundState()
	assert.Equal(t, 0b01, ground, "lower-volatility asset alone should minimize the cost")

	norm := op.NormalizedDiagonal()
	assert.InDelta(t, 0, floats.Min(norm), 1e-12)
	assert.InDelta(t, 1, floats.Max(norm), 1e-12)
}

func TestCostOperator_Errors(t *testing.T) {
	_, err := NewCostOperator(nil, nil, CostParams{})
	assert.Error(t, err)
	_, err = NewCostOperator(testAssets(2), mat.NewSymDense(3, nil), CostParams{})
	assert.Error(t, err)
}

func TestDecodeSamples(t *testing.T) {
	w, err := DecodeSamples(map[int]int{0b01: 2, 0b11: 2, 0b00: 5}, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, w[0], 1e-12)
	assert.InDelta(t, 0.25, w[1], 1e-12)

	_, err = DecodeSamples(map[int]int{0: 10}, 2)
	assert.Error(t, err)

	basis, count := MostFrequent(map[int]int{1: 3, 2: 3, 0: 1})
	assert.Equal(t, 1, basis)
	assert.Equal(t, 3, count)
}

func TestDecodeMarginals(t *testing.T) {
	w, err := DecodeMarginals([]float64{0.9, 0.3, 0.0})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, w[0], 1e-12)
	assert.InDelta(t, 0.25, w[1], 1e-12)
	assert.Zero(t, w[2])

	_, err = DecodeMarginals([]float64{0, 0})
	assert.Error(t, err)
}

func TestSPSA_MinimizesQuadratic(t *testing.T) {
	f := func(x []float64) float64 {
		return (x[0]-1)*(x[0]-1) + (x[1]+2)*(x[1]+2)
	}
	x0 := []float64{0, 0}

	best, fx, iters := DefaultSPSA(500).Minimize(f, x0, rand.New(rand.NewSource(3)))
	assert.Equal(t, 500, iters)
	assert.Less(t, fx, 0.5*f(x0))
	assert.InDelta(t, f(best), fx, 1e-12)
}

func TestSelectMode(t *testing.T) {
	caps := DetectCapabilities(NewSimulator(0), 8)
	tests := []struct {
		name   string
		pref   domain.SolverPreference
		n      int
		mode   Mode
		reason bool
	}{
		{"classical preference", domain.SolverPreferenceClassical, 3, ModeClassical, false},
		{"small universe", domain.SolverPreferenceAuto, 4, ModeQAOA, false},
		{"medium universe", domain.SolverPreferenceQuantum, 5, ModeVQE, false},
		{"at bound", domain.SolverPreferenceAuto, 8, ModeVQE, false},
		{"over bound", domain.SolverPreferenceAuto, 12, ModeClassical, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, reason := caps.SelectMode(tt.pref, tt.n)
			assert.Equal(t, tt.mode, mode)
			assert.Equal(t, tt.reason, reason != "")
		})
	}

	off := DetectCapabilities(UnavailableBackend{}, 8)
	mode, reason := off.SelectMode(domain.SolverPreferenceQuantum, 2)
	assert.Equal(t, ModeClassical, mode)
	assert.Contains(t, reason, "unavailable")
}

func TestDetectCapabilities_CapsQubits(t *testing.T) {
	assert.Equal(t, HardQubitLimit, DetectCapabilities(NewSimulator(0), 20).MaxQubits)
	assert.Equal(t, 6, DetectCapabilities(NewSimulator(0), 6).MaxQubits)
	assert.False(t, DetectCapabilities(nil, 0).QuantumBackend)
}

func TestAdapter_QAOA(t *testing.T) {
	adapter := NewAdapter(Config{}, NewSimulator(0), testLogger())
	assets := testAssets(3)

	out, err := adapter.Solve(context.Background(), Problem{
		Assets:        assets,
		Preference:    domain.SolverPreferenceAuto,
		RiskTolerance: 0.5,
		Classical:     equalWeightClassical,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SolverQAOA, out.SolverUsed)
	assert.True(t, out.Success)
	assert.True(t, formulas.IsSimplex(out.Weights, 1e-6))
	assert.Len(t, out.Bitstring, 3)
	assert.False(t, math.IsNaN(out.Energy))
}

func TestAdapter_VQE(t *testing.T) {
	adapter := NewAdapter(Config{VQEEvaluations: 400}, NewSimulator(0), testLogger())
	assets := testAssets(6)

	out, err := adapter.Solve(context.Background(), Problem{
		Assets:     assets,
		Preference: domain.SolverPreferenceQuantum,
		Classical:  equalWeightClassical,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SolverVQE, out.SolverUsed)
	assert.True(t, formulas.IsSimplex(out.Weights, 1e-6))
	assert.Len(t, out.Weights, 6)
}

func TestAdapter_Deterministic(t *testing.T) {
	adapter := NewAdapter(Config{Seed: 11}, NewSimulator(0), testLogger())
	p := Problem{Assets: testAssets(4), Preference: domain.SolverPreferenceAuto, Classical: equalWeightClassical}

	first, err := adapter.Solve(context.Background(), p)
	require.NoError(t, err)
	second, err := adapter.Solve(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, first.Weights, second.Weights)
}

func TestAdapter_FallbackIsTransparent(t *testing.T) {
	assets := testAssets(3)
	backends := map[string]Backend{
		"unavailable": UnavailableBackend{Reason: "disabled by config"},
		"panicking":   panickingBackend{},
		"failing":     failingBackend{},
	}

	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			adapter := NewAdapter(Config{QAOAIterations: 5}, backend, testLogger())
			out, err := adapter.Solve(context.Background(), Problem{
				Assets:     assets,
				Preference: domain.SolverPreferenceQuantum,
				Classical:  equalWeightClassical,
			})
			require.NoError(t, err)
			assert.Equal(t, domain.SolverClassicalFallback, out.SolverUsed)
			assert.True(t, out.Success)
			assert.Equal(t, formulas.EqualWeights(3), out.Weights)
			assert.Contains(t, out.Message, "equal weight")
		})
	}
}

func TestAdapter_ClassicalPreference(t *testing.T) {
	adapter := NewAdapter(Config{}, NewSimulator(0), testLogger())
	out, err := adapter.Solve(context.Background(), Problem{
		Assets:     testAssets(2),
		Preference: domain.SolverPreferenceClassical,
		Classical:  equalWeightClassical,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SolverClassical, out.SolverUsed)
	assert.Equal(t, "equal weight", out.Message)
}

func TestAdapter_ClassicalErrorsPropagate(t *testing.T) {
	adapter := NewAdapter(Config{}, UnavailableBackend{}, testLogger())
	boom := errors.New("bad input")
	_, err := adapter.Solve(context.Background(), Problem{
		Assets: testAssets(2),
		Classical: func(context.Context, []domain.Asset, mat.Symmetric, []float64) (Outcome, error) {
			return Outcome{}, boom
		},
	})
	assert.ErrorIs(t, err, boom)

	_, err = adapter.Solve(context.Background(), Problem{Assets: testAssets(2)})
	assert.Error(t, err)
}

func sumOfSquares(w []float64) float64 {
	return floats.Dot(w, w)
}

func TestCheckAgainstEqualWeight(t *testing.T) {
	assert.NoError(t, CheckAgainstEqualWeight(nil, []float64{1, 0}))
	assert.NoError(t, CheckAgainstEqualWeight(sumOfSquares, []float64{0.25, 0.25, 0.25, 0.25}))
	assert.Error(t, CheckAgainstEqualWeight(sumOfSquares, []float64{0.7, 0.3}))
	assert.Error(t, CheckAgainstEqualWeight(func([]float64) float64 { return math.NaN() }, []float64{0.5, 0.5}))
}

func TestAdapter_RefinesAllocationWorseThanEqualWeight(t *testing.T) {
	adapter := NewAdapter(Config{}, NewSimulator(0), testLogger())
	var warmStart []float64

	out, err := adapter.Solve(context.Background(), Problem{
		Assets:     testAssets(3),
		Preference: domain.SolverPreferenceAuto,
		Objective:  sumOfSquares,
		Classical: func(_ context.Context, assets []domain.Asset, _ mat.Symmetric, start []float64) (Outcome, error) {
			warmStart = start
			return Outcome{Weights: formulas.EqualWeights(len(assets)), Success: true}, nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SolverQAOA, out.SolverUsed)
	require.Len(t, warmStart, 3)
	assert.True(t, formulas.IsSimplex(warmStart, 1e-6))
	assert.Equal(t, formulas.EqualWeights(3), out.Weights)
	assert.Contains(t, out.Message, "refined classically")
}

func TestAdapter_FallsBackWhenRefinementStillWorse(t *testing.T) {
	adapter := NewAdapter(Config{}, NewSimulator(0), testLogger())

	// Echoing the warm start leaves the allocation as bad as before
	echo := func(_ context.Context, assets []domain.Asset, _ mat.Symmetric, start []float64) (Outcome, error) {
		if start != nil {
			return Outcome{Weights: start, Success: true}, nil
		}
		return Outcome{Weights: formulas.EqualWeights(len(assets)), Success: true, Message: "equal weight"}, nil
	}

	out, err := adapter.Solve(context.Background(), Problem{
		Assets:     testAssets(3),
		Preference: domain.SolverPreferenceQuantum,
		Objective:  sumOfSquares,
		Classical:  echo,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SolverClassicalFallback, out.SolverUsed)
	assert.Equal(t, formulas.EqualWeights(3), out.Weights)
	assert.Contains(t, out.Message, "worse than equal weight")
}
