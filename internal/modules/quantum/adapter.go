// Package quantum provides the simulated variational solver path (QAOA and VQE
// on a state-vector simulator) and its classical fallback boundary.
package quantum

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime/debug"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/qportfolio/internal/domain"
	"github.com/aristath/qportfolio/pkg/formulas"
)

// Qubit bounds
const (
	HardQubitLimit = 8
	QAOAMaxAssets  = 4
	DefaultSeed    = 42
)

// Capabilities is resolved once at construction and never re-detected
type Capabilities struct {
	Backend        string `json:"backend" msgpack:"backend"`
	QuantumBackend bool   `json:"quantum_backend" msgpack:"quantum_backend"`
	MaxQubits      int    `json:"max_qubits" msgpack:"max_qubits"`
	QAOAMaxAssets  int    `json:"qaoa_max_assets" msgpack:"qaoa_max_assets"`
}

// DetectCapabilities derives capabilities from a backend and a configured qubit cap
func DetectCapabilities(backend Backend, maxQubits int) Capabilities {
	if maxQubits <= 0 || maxQubits > HardQubitLimit {
		maxQubits = HardQubitLimit
	}
	caps := Capabilities{MaxQubits: maxQubits, QAOAMaxAssets: QAOAMaxAssets, Backend: "none"}
	if backend != nil {
		caps.Backend = backend.Name()
		caps.QuantumBackend = backend.Available()
	}
	return caps
}

// Mode is the solver variant chosen for a request
type Mode string

const (
	ModeClassical Mode = "classical"
	ModeQAOA      Mode = "qaoa"
	ModeVQE       Mode = "vqe"
)

// SelectMode picks the variant for n assets. The reason is empty when a
// quantum mode was selected or the caller asked for classical.
func (c Capabilities) SelectMode(pref domain.SolverPreference, n int) (Mode, string) {
	switch {
	case pref == domain.SolverPreferenceClassical:
		return ModeClassical, ""
	case !c.QuantumBackend:
		return ModeClassical, (&domain.BackendUnavailableError{Reason: "no simulator configured"}).Error()
	case n > c.MaxQubits:
		return ModeClassical, fmt.Sprintf("%d assets exceed the %d-qubit bound", n, c.MaxQubits)
	case n <= c.QAOAMaxAssets:
		return ModeQAOA, ""
	default:
		return ModeVQE, ""
	}
}

// Outcome is what the adapter hands back; it never carries quantum errors
type Outcome struct {
	SolverUsed domain.SolverKind
	Weights    []float64
	Message    string
	Bitstring  string
	Energy     float64
	Iterations int
	Success    bool
}

// ClassicalFunc is the classical solve for the same problem. A nil start
// means equal weights; otherwise the solver is warm-started from start.
type ClassicalFunc func(ctx context.Context, assets []domain.Asset, corr mat.Symmetric, start []float64) (Outcome, error)

// Problem is one adapter invocation. Objective scores a simplex allocation,
// lower is better; when set, quantum allocations scoring worse than equal
// weight are refined classically from the quantum warm start.
type Problem struct {
	Corr          mat.Symmetric
	Classical     ClassicalFunc
	Objective     func([]float64) float64
	Preference    domain.SolverPreference
	Assets        []domain.Asset
	RiskTolerance float64
}

// Config configures the adapter
type Config struct {
	MaxQubits      int
	Seed           int64
	Shots          int
	QAOALayers     int
	QAOAIterations int
	VQELayers      int
	VQEEvaluations int
}

// Adapter dispatches between QAOA, VQE and the classical solver
type Adapter struct {
	backend Backend
	log     zerolog.Logger
	qaoa    QAOA
	vqe     VQE
	caps    Capabilities
	seed    int64
}

// NewAdapter creates an adapter. A nil backend disables the quantum path.
func NewAdapter(cfg Config, backend Backend, log zerolog.Logger) *Adapter {
	if backend == nil {
		backend = UnavailableBackend{Reason: "no backend configured"}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = DefaultSeed
	}
	a := &Adapter{
		backend: backend,
		caps:    DetectCapabilities(backend, cfg.MaxQubits),
		qaoa:    NewQAOA(cfg.QAOALayers, cfg.QAOAIterations, cfg.Shots),
		vqe:     NewVQE(cfg.VQELayers, cfg.VQEEvaluations),
		seed:    seed,
		log:     log.With().Str("component", "quantum_adapter").Logger(),
	}
	a.log.Info().
		Str("backend", a.caps.Backend).
		Bool("available", a.caps.QuantumBackend).
		Int("max_qubits", a.caps.MaxQubits).
		Msg("Quantum capabilities resolved")
	return a
}

// Capabilities returns the capabilities resolved at construction
func (a *Adapter) Capabilities() Capabilities {
	return a.caps
}

// Backend returns the configured backend
func (a *Adapter) Backend() Backend {
	return a.backend
}

// Solve runs the selected variant. Any quantum failure, including a panic, is
// replaced by p.Classical with SolverUsed=classical_fallback. Errors returned
// come from the classical path only.
func (a *Adapter) Solve(ctx context.Context, p Problem) (Outcome, error) {
	if p.Classical == nil {
		return Outcome{}, fmt.Errorf("classical fallback is required")
	}
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}

	mode, reason := a.caps.SelectMode(p.Preference, len(p.Assets))
	if mode == ModeClassical {
		out, err := p.Classical(ctx, p.Assets, p.Corr, nil)
		if err != nil {
			return out, err
		}
		out.SolverUsed = domain.SolverClassical
		if reason != "" {
			out.SolverUsed = domain.SolverClassicalFallback
			out.Message = joinMessages(reason, out.Message)
		}
		return out, nil
	}

	out, err := a.runQuantum(ctx, mode, p)
	if err == nil {
		return out, nil
	}

	a.log.Warn().
		Err(err).
		Str("mode", string(mode)).
		Int("num_assets", len(p.Assets)).
		Msg("Quantum path failed, using classical fallback")

	fallback, ferr := p.Classical(ctx, p.Assets, p.Corr, nil)
	if ferr != nil {
		return fallback, ferr
	}
	fallback.SolverUsed = domain.SolverClassicalFallback
	fallback.Message = joinMessages(fmt.Sprintf("%s failed: %v", mode, err), fallback.Message)
	return fallback, nil
}

// runQuantum executes one variational run, converting panics into errors
func (a *Adapter) runQuantum(ctx context.Context, mode Mode, p Problem) (out Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", mode, r)
			a.log.Debug().Str("stack", string(debug.Stack())).Msg("Recovered quantum panic")
		}
	}()

	op, err := NewCostOperator(p.Assets, p.Corr, CostParams{RiskAversion: RiskAversionFor(p.RiskTolerance)})
	if err != nil {
		return Outcome{}, fmt.Errorf("cost operator: %w", err)
	}

	// Fresh generator per call keeps results a function of the inputs
	rng := rand.New(rand.NewSource(a.seed + int64(len(p.Assets))))

	var run Run
	switch mode {
	case ModeQAOA:
		run, err = a.qaoa.Run(ctx, a.backend, op, rng)
	case ModeVQE:
		run, err = a.vqe.Run(ctx, a.backend, op, rng)
	default:
		err = fmt.Errorf("unsupported mode %q", mode)
	}
	if err != nil {
		return Outcome{}, err
	}

	weights := formulas.NormalizeWeights(run.Weights)
	if !formulas.IsSimplex(weights, 1e-6) {
		return Outcome{}, fmt.Errorf("decoded weights are not a valid allocation")
	}

	kind := domain.SolverQAOA
	if mode == ModeVQE {
		kind = domain.SolverVQE
	}
	out = Outcome{
		SolverUsed: kind,
		Weights:    weights,
		Bitstring:  run.Bitstring,
		Energy:     run.Energy,
		Iterations: run.Iterations,
		Success:    true,
		Message:    fmt.Sprintf("%s on %s, %d qubits", mode, a.backend.Name(), op.N),
	}

	if gateErr := CheckAgainstEqualWeight(p.Objective, weights); gateErr != nil {
		refined, rerr := p.Classical(ctx, p.Assets, p.Corr, weights)
		if rerr != nil {
			return Outcome{}, fmt.Errorf("warm-start refinement: %w", rerr)
		}
		if cerr := CheckAgainstEqualWeight(p.Objective, refined.Weights); cerr != nil {
			return Outcome{}, fmt.Errorf("refined %s allocation: %w", mode, cerr)
		}
		out.Weights = refined.Weights
		out.Iterations += refined.Iterations
		out.Success = refined.Success
		out.Message = joinMessages(out.Message, fmt.Sprintf("refined classically from warm start (%v)", gateErr))
	}

	a.log.Debug().
		Str("mode", string(mode)).
		Float64("energy", run.Energy).
		Int("iterations", out.Iterations).
		Msg("Quantum run complete")

	return out, nil
}

// equalWeightTolerance absorbs round-off when comparing objective values
const equalWeightTolerance = 1e-9

// CheckAgainstEqualWeight rejects weights that score worse than the equal-weight
// portfolio under objective. A nil objective accepts everything.
func CheckAgainstEqualWeight(objective func([]float64) float64, weights []float64) error {
	if objective == nil {
		return nil
	}
	got := objective(weights)
	seed := objective(formulas.EqualWeights(len(weights)))
	if math.IsNaN(got) || got > seed+equalWeightTolerance*math.Max(1, math.Abs(seed)) {
		return fmt.Errorf("objective %.6g is worse than equal weight %.6g", got, seed)
	}
	return nil
}

func joinMessages(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "; " + b
	}
}
