package optimization

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/qportfolio/internal/domain"
	"github.com/aristath/qportfolio/internal/metrics"
	"github.com/aristath/qportfolio/internal/modules/correlation"
	"github.com/aristath/qportfolio/internal/modules/esg"
	"github.com/aristath/qportfolio/internal/modules/quantum"
	"github.com/aristath/qportfolio/internal/modules/risk"
	"github.com/aristath/qportfolio/internal/workers"
	"github.com/aristath/qportfolio/pkg/formulas"
)

// Defaults for the facade
const (
	DefaultDecompositionThreshold = quantum.HardQubitLimit
	DefaultTargetESG              = 50.0
)

// ServiceConfig carries the construction-time settings of the engine
type ServiceConfig struct {
	Quantum                quantum.Config
	ESGWeights             esg.ObjectiveWeights
	PoolSize               int
	Chunks                 int
	ChunkTimeout           time.Duration
	DecompositionThreshold int
	MaxIterations          int
	RiskFreeRate           float64
	RiskShots              int
	CorrelationSeed        int64
	QuantumEnabled         bool
	ChunkAllocator         string // risk_tolerance, classical or hrp
}

// DefaultServiceConfig returns the stock configuration
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		PoolSize:               workers.DefaultWorkers,
		Chunks:                 DefaultChunks,
		ChunkTimeout:           DefaultChunkTimeout,
		DecompositionThreshold: DefaultDecompositionThreshold,
		MaxIterations:          DefaultMaxIterations,
		RiskFreeRate:           formulas.DefaultRiskFreeRate,
		RiskShots:              risk.DefaultShots,
		CorrelationSeed:        correlation.DefaultSeed,
		QuantumEnabled:         true,
		ChunkAllocator:         AllocatorRiskTolerance,
		ESGWeights:             esg.DefaultObjectiveWeights(),
		Quantum: quantum.Config{
			MaxQubits: quantum.HardQubitLimit,
			Seed:      quantum.DefaultSeed,
			Shots:     quantum.DefaultShots,
		},
	}
}

// Dependencies are the optional collaborators of the service; zero values get defaults
type Dependencies struct {
	Provider  correlation.Provider
	Backend   quantum.Backend
	Allocator ChunkAllocator
	Metrics   *metrics.Metrics
}

// Service is the optimization facade. It holds no portfolio state; the worker
// pool is its only shared resource.
type Service struct {
	pool       *workers.Pool
	classical  *ClassicalSolver
	decomposer *Decomposer
	quantum    *quantum.Adapter
	esg        *esg.Solver
	risk       *risk.Assessor
	provider   correlation.Provider
	metrics    *metrics.Metrics
	log        zerolog.Logger
	cfg        ServiceConfig
}

// NewService builds the engine and starts its worker pool. Call Close to release it.
func NewService(cfg ServiceConfig, deps Dependencies, log zerolog.Logger) *Service {
	if cfg.DecompositionThreshold <= 0 {
		cfg.DecompositionThreshold = DefaultDecompositionThreshold
	}

	provider := deps.Provider
	if provider == nil {
		provider = correlation.NewSyntheticProvider(cfg.CorrelationSeed)
	}
	backend := deps.Backend
	if backend == nil {
		if cfg.QuantumEnabled {
			backend = quantum.NewSimulator(cfg.Quantum.MaxQubits)
		} else {
			backend = quantum.UnavailableBackend{Reason: "quantum path disabled by configuration"}
		}
	}

	pool := workers.NewPool(cfg.PoolSize, log)
	classical := NewClassicalSolver(cfg.MaxIterations, log)

	allocator := deps.Allocator
	if allocator == nil {
		var err error
		allocator, err = NewChunkAllocator(cfg.ChunkAllocator, classical, provider)
		if err != nil {
			log.Warn().Err(err).Msg("Falling back to risk tolerance chunk allocator")
			allocator = RiskToleranceAllocator{}
		}
	}

	s := &Service{
		pool:       pool,
		classical:  classical,
		decomposer: NewDecomposer(pool, allocator, cfg.Chunks, cfg.ChunkTimeout, log),
		quantum:    quantum.NewAdapter(cfg.Quantum, backend, log),
		esg:        esg.NewSolver(classical, provider, cfg.ESGWeights, cfg.RiskFreeRate, log),
		risk:       risk.NewAssessor(risk.Config{MaxQubits: cfg.Quantum.MaxQubits, Shots: cfg.RiskShots, Seed: cfg.Quantum.Seed}, backend, log),
		provider:   provider,
		metrics:    deps.Metrics,
		cfg:        cfg,
		log:        log.With().Str("component", "optimization_service").Logger(),
	}

	s.log.Info().
		Int("pool_size", pool.Size()).
		Int("decomposition_threshold", cfg.DecompositionThreshold).
		Bool("quantum_available", s.quantum.Capabilities().QuantumBackend).
		Msg("Optimization service started")

	return s
}

// Capabilities returns the quantum capabilities resolved at construction
func (s *Service) Capabilities() quantum.Capabilities {
	return s.quantum.Capabilities()
}

// PoolStats returns a snapshot of the worker pool
func (s *Service) PoolStats() workers.Stats {
	return s.pool.Stats()
}

// Close drains and joins the worker pool. Safe to call more than once.
func (s *Service) Close(ctx context.Context) error {
	return s.pool.Shutdown(ctx)
}

// Optimize computes an allocation for assets.
//
// Routing: ESG_FOCUSED goes to the ESG solver; universes larger than the
// decomposition threshold go to the decomposer; everything else goes through
// the quantum adapter, which picks QAOA, VQE or the classical solver. A
// TARGET_RETURN objective is always solved classically.
//
// Only validation errors, ESG insufficiency and total decomposition failure are
// returned as errors; the partial result accompanies them.
func (s *Service) Optimize(
	ctx context.Context,
	assets []domain.Asset,
	objective domain.Objective,
	constraints domain.Constraints,
) (*domain.OptimizationResult, error) {
	start := time.Now()
	req := domain.NewOptimizationRequest(assets, objective, constraints)
	result := s.newResult()

	res, err := s.optimize(ctx, req, result)
	s.finish(res, start)
	s.metrics.ObserveOptimization("optimize", res, err, time.Since(start))
	return res, err
}

// OptimizeESG runs the ESG solver directly
func (s *Service) OptimizeESG(ctx context.Context, assets []domain.Asset, targetESG, riskTolerance float64) (*domain.OptimizationResult, error) {
	start := time.Now()
	result := s.newResult()
	result.Diagnostics.Enter(domain.StageValidating)

	res, err := func() (*domain.OptimizationResult, error) {
		if err := domain.ValidateAssets(assets); err != nil {
			return s.fail(result, err)
		}
		if err := domain.ValidateRiskTolerance(riskTolerance); err != nil {
			return s.fail(result, err)
		}
		if targetESG < 0 || targetESG > 100 {
			return s.fail(result, domain.NewValidationError("target_esg", "must be within [0, 100]"))
		}
		return s.runESG(ctx, result, assets, targetESG, riskTolerance)
	}()

	s.finish(res, start)
	s.metrics.ObserveOptimization("optimize_esg", res, err, time.Since(start))
	return res, err
}

// AssessRisk classifies the risk of assets. Only validation errors are returned.
func (s *Service) AssessRisk(ctx context.Context, assets []domain.Asset) (*domain.RiskAssessment, error) {
	start := time.Now()
	assessment, err := s.risk.Assess(ctx, assets)
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveRisk(assessment, time.Since(start))

	s.log.Debug().
		Str("method", string(assessment.Method)).
		Str("risk_level", string(assessment.RiskLevel)).
		Int("num_assets", len(assets)).
		Msg("Risk assessed")
	return assessment, nil
}

func (s *Service) optimize(ctx context.Context, req domain.OptimizationRequest, result *domain.OptimizationResult) (*domain.OptimizationResult, error) {
	result.Diagnostics.Enter(domain.StageValidating)
	if err := req.Validate(); err != nil {
		return s.fail(result, err)
	}
	if err := ctx.Err(); err != nil {
		return s.fail(result, err)
	}

	s.log.Info().
		Str("request_id", result.Diagnostics.RequestID).
		Int("num_assets", len(req.Assets)).
		Str("objective", string(req.Objective)).
		Str("preference", string(req.SolverPreference)).
		Msg("Starting portfolio optimization")

	if req.Objective == domain.ObjectiveESGFocused {
		target := DefaultTargetESG
		if req.TargetESG != nil {
			target = *req.TargetESG
		}
		return s.runESG(ctx, result, req.Assets, target, req.RiskTolerance)
	}

	corr, err := s.provider.Build(domain.Symbols(req.Assets))
	if err != nil {
		return s.fail(result, fmt.Errorf("failed to build correlation matrix: %w", err))
	}

	if len(req.Assets) > s.cfg.DecompositionThreshold {
		return s.runDecomposed(ctx, req, corr, result)
	}
	return s.runDirect(ctx, req, corr, result)
}

// runDirect solves the whole universe at once
func (s *Service) runDirect(ctx context.Context, req domain.OptimizationRequest, corr *mat.SymDense, result *domain.OptimizationResult) (*domain.OptimizationResult, error) {
	result.Diagnostics.Enter(domain.StageSolving)

	var objective ObjectiveFunc
	pref := req.SolverPreference
	if req.Objective == domain.ObjectiveTargetReturn {
		objective = TargetReturnObjective(req.Assets, corr, *req.TargetReturn)
		if pref != domain.SolverPreferenceClassical {
			result.Diagnostics.Addf("target return constraint solved classically")
		}
		pref = domain.SolverPreferenceClassical
	}
	if len(req.Assets) == 1 {
		pref = domain.SolverPreferenceClassical
	}
	score := objective
	if score == nil {
		score = MinVolatilityObjective(req.Assets, corr)
	}

	outcome, err := s.quantum.Solve(ctx, quantum.Problem{
		Assets:        req.Assets,
		Corr:          corr,
		Preference:    pref,
		RiskTolerance: req.RiskTolerance,
		Classical:     s.classicalFunc(objective),
		Objective:     score,
	})
	if err != nil {
		return s.fail(result, err)
	}

	result.Diagnostics.Enter(domain.StageAggregating)
	result.SolverUsed = outcome.SolverUsed
	result.Symbols = domain.Symbols(req.Assets)
	result.Weights = outcome.Weights
	result.Success = outcome.Success && formulas.IsSimplex(outcome.Weights, 1e-6)
	result.Diagnostics.SolverMessage = outcome.Message
	result.Diagnostics.Iterations = outcome.Iterations
	if outcome.Bitstring != "" {
		result.Diagnostics.Addf("modal bitstring %s", outcome.Bitstring)
	}

	result.Diagnostics.Enter(domain.StageMetrics)
	ApplyMetrics(result, BuildMetrics(req.Assets, result.Weights, corr, s.cfg.RiskFreeRate))
	result.Diagnostics.Enter(domain.StageDone)
	return result, nil
}

// runDecomposed spreads the universe over the worker pool
func (s *Service) runDecomposed(ctx context.Context, req domain.OptimizationRequest, corr *mat.SymDense, result *domain.OptimizationResult) (*domain.OptimizationResult, error) {
	result.Diagnostics.Enter(domain.StageDecomposing)
	result.SolverUsed = domain.SolverConcurrent
	if req.SolverPreference != domain.SolverPreferenceClassical {
		result.Diagnostics.Addf("%d assets exceed the %d-qubit bound; decomposed", len(req.Assets), s.quantum.Capabilities().MaxQubits)
	}

	result.Diagnostics.Enter(domain.StageSolving)
	out, err := s.decomposer.Decompose(ctx, req.Assets, req.RiskTolerance)
	if out != nil {
		result.Diagnostics.Chunks = out.Chunks
	}
	if err != nil {
		return s.fail(result, err)
	}

	result.Diagnostics.Enter(domain.StageAggregating)
	result.Symbols = out.Symbols
	result.Weights = out.Weights
	result.Degraded = out.Degraded
	result.Success = formulas.IsSimplex(out.Weights, 1e-6)
	if out.Degraded {
		result.Diagnostics.Addf("%d of %d chunks dropped", len(out.Chunks)-countOK(out.Chunks), len(out.Chunks))
	}

	result.Diagnostics.Enter(domain.StageMetrics)
	survivors := make([]domain.Asset, len(out.Indices))
	for i, idx := range out.Indices {
		survivors[i] = req.Assets[idx]
	}
	ApplyMetrics(result, BuildMetrics(survivors, result.Weights, correlation.Subset(corr, out.Indices), s.cfg.RiskFreeRate))
	result.Diagnostics.Enter(domain.StageDone)
	return result, nil
}

// runESG delegates to the ESG solver and folds its result into result
func (s *Service) runESG(ctx context.Context, result *domain.OptimizationResult, assets []domain.Asset, targetESG, riskTolerance float64) (*domain.OptimizationResult, error) {
	result.Diagnostics.Enter(domain.StageSolving)
	res, err := s.esg.Solve(ctx, assets, targetESG, riskTolerance)
	if err != nil {
		return s.fail(result, err)
	}

	result.Diagnostics.Enter(domain.StageAggregating)
	diag := result.Diagnostics
	diag.ESGDistribution = res.Diagnostics.ESGDistribution
	diag.SolverMessage = res.Diagnostics.SolverMessage
	diag.Messages = append(diag.Messages, res.Diagnostics.Messages...)
	*result = *res
	result.Diagnostics = diag

	result.Diagnostics.Enter(domain.StageMetrics)
	result.Diagnostics.Enter(domain.StageDone)
	return result, nil
}

func (s *Service) classicalFunc(objective ObjectiveFunc) quantum.ClassicalFunc {
	return func(ctx context.Context, assets []domain.Asset, corr mat.Symmetric, start []float64) (quantum.Outcome, error) {
		res, err := s.classical.SolveFrom(ctx, assets, corr, objective, start)
		if err != nil {
			return quantum.Outcome{}, err
		}
		return quantum.Outcome{
			SolverUsed: domain.SolverClassical,
			Weights:    res.Weights,
			Success:    res.Success,
			Message:    res.Message,
			Iterations: res.Iterations,
		}, nil
	}
}

func (s *Service) newResult() *domain.OptimizationResult {
	return &domain.OptimizationResult{
		Diagnostics: domain.Diagnostics{RequestID: uuid.NewString()},
	}
}

// fail moves result to FAILED and returns it with err
func (s *Service) fail(result *domain.OptimizationResult, err error) (*domain.OptimizationResult, error) {
	failedIn := result.Diagnostics.LastStage()
	result.Diagnostics.Enter(domain.StageFailed)
	result.Diagnostics.Addf("failed during %s: %v", failedIn, err)
	result.Success = false

	s.log.Warn().
		Err(err).
		Str("request_id", result.Diagnostics.RequestID).
		Str("stage", string(failedIn)).
		Msg("Optimization failed")
	return result, err
}

func (s *Service) finish(result *domain.OptimizationResult, start time.Time) {
	if result == nil {
		return
	}
	result.Diagnostics.Duration = time.Since(start)
	if result.Diagnostics.LastStage() != domain.StageDone {
		return
	}
	s.log.Info().
		Str("request_id", result.Diagnostics.RequestID).
		Str("solver", string(result.SolverUsed)).
		Bool("success", result.Success).
		Bool("degraded", result.Degraded).
		Float64("volatility", result.Volatility).
		Dur("duration", result.Diagnostics.Duration).
		Msg("Portfolio optimization complete")
}

func countOK(chunks []domain.ChunkDiagnostic) int {
	n := 0
	for _, c := range chunks {
		if c.Status == domain.ChunkOK {
			n++
		}
	}
	return n
}
