// Package domain provides core domain models and types.
package domain

import (
	"fmt"
	"math"
	"time"
)

// Objective selects what the optimizer minimizes
type Objective string

const (
	// ObjectiveMinRisk minimizes portfolio volatility
	ObjectiveMinRisk Objective = "MIN_RISK"
	// ObjectiveTargetReturn minimizes volatility while reaching a target return
	ObjectiveTargetReturn Objective = "TARGET_RETURN"
	// ObjectiveESGFocused scalarizes ESG, risk and return
	ObjectiveESGFocused Objective = "ESG_FOCUSED"
)

// SolverPreference is the caller's hint on which backend to use
type SolverPreference string

const (
	SolverPreferenceAuto      SolverPreference = "AUTO"
	SolverPreferenceClassical SolverPreference = "CLASSICAL"
	SolverPreferenceQuantum   SolverPreference = "QUANTUM"
)

// SolverKind identifies the backend that actually produced a result
type SolverKind string

const (
	SolverClassical         SolverKind = "classical"
	SolverClassicalFallback SolverKind = "classical_fallback"
	SolverQAOA              SolverKind = "qaoa"
	SolverVQE               SolverKind = "vqe"
	SolverConcurrent        SolverKind = "concurrent"
	SolverESGClassical      SolverKind = "esg_classical"
)

// IsQuantum reports whether the kind is one of the variational circuit backends
func (k SolverKind) IsQuantum() bool {
	return k == SolverQAOA || k == SolverVQE
}

// Stage is a step of the per-request optimization state machine
type Stage string

const (
	StageValidating  Stage = "VALIDATING"
	StageDecomposing Stage = "DECOMPOSING"
	StageSolving     Stage = "SOLVING"
	StageAggregating Stage = "AGGREGATING"
	StageMetrics     Stage = "METRICS"
	StageDone        Stage = "DONE"
	StageFailed      Stage = "FAILED"
)

// RiskMethod identifies which risk assessment path produced an assessment
type RiskMethod string

const (
	RiskMethodClassical RiskMethod = "classical"
	RiskMethodQuantum   RiskMethod = "quantum"
)

// RiskLevel is a coarse risk band
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// Asset is an investable instrument supplied by the caller.
// Weight is only meaningful on output.
type Asset struct {
	Symbol         string  `json:"symbol" msgpack:"symbol"`
	Sector         string  `json:"sector,omitempty" msgpack:"sector,omitempty"`
	Region         string  `json:"region,omitempty" msgpack:"region,omitempty"`
	Weight         float64 `json:"weight" msgpack:"weight"`
	ExpectedReturn float64 `json:"expected_return" msgpack:"expected_return"`
	Volatility     float64 `json:"volatility" msgpack:"volatility"`
	ESGScore       float64 `json:"esg_score" msgpack:"esg_score"`
}

// Constraints carries the optional knobs of an optimize call
type Constraints struct {
	TargetReturn     *float64         `json:"target_return,omitempty" msgpack:"target_return,omitempty"`
	TargetESG        *float64         `json:"target_esg,omitempty" msgpack:"target_esg,omitempty"`
	SolverPreference SolverPreference `json:"solver_preference,omitempty" msgpack:"solver_preference,omitempty"`
	RiskTolerance    float64          `json:"risk_tolerance" msgpack:"risk_tolerance"`
}

// OptimizationRequest is a single optimization job
type OptimizationRequest struct {
	TargetReturn     *float64         `json:"target_return,omitempty"`
	TargetESG        *float64         `json:"target_esg,omitempty"`
	Objective        Objective        `json:"objective"`
	SolverPreference SolverPreference `json:"solver_preference"`
	Assets           []Asset          `json:"assets"`
	RiskTolerance    float64          `json:"risk_tolerance"`
}

// NewOptimizationRequest builds a request from the public optimize arguments,
// filling defaults for empty enum values.
func NewOptimizationRequest(assets []Asset, objective Objective, constraints Constraints) OptimizationRequest {
	if objective == "" {
		objective = ObjectiveMinRisk
	}
	pref := constraints.SolverPreference
	if pref == "" {
		pref = SolverPreferenceAuto
	}
	return OptimizationRequest{
		Assets:           assets,
		Objective:        objective,
		TargetReturn:     constraints.TargetReturn,
		TargetESG:        constraints.TargetESG,
		RiskTolerance:    constraints.RiskTolerance,
		SolverPreference: pref,
	}
}

// Validate checks the request envelope and every asset
func (r OptimizationRequest) Validate() error {
	if err := ValidateAssets(r.Assets); err != nil {
		return err
	}
	switch r.Objective {
	case ObjectiveMinRisk, ObjectiveTargetReturn, ObjectiveESGFocused:
	default:
		return NewValidationError("objective", fmt.Sprintf("unknown objective %q", r.Objective))
	}
	switch r.SolverPreference {
	case SolverPreferenceAuto, SolverPreferenceClassical, SolverPreferenceQuantum:
	default:
		return NewValidationError("solver_preference", fmt.Sprintf("unknown solver preference %q", r.SolverPreference))
	}
	if err := ValidateRiskTolerance(r.RiskTolerance); err != nil {
		return err
	}
	if r.Objective == ObjectiveTargetReturn && r.TargetReturn == nil {
		return NewValidationError("target_return", "required for TARGET_RETURN objective")
	}
	if r.TargetReturn != nil && !isFinite(*r.TargetReturn) {
		return NewValidationError("target_return", "must be finite")
	}
	if r.TargetESG != nil && (!isFinite(*r.TargetESG) || *r.TargetESG < 0 || *r.TargetESG > 100) {
		return NewValidationError("target_esg", "must be within [0, 100]")
	}
	return nil
}

// ChunkStatus is the outcome of one decomposition chunk
type ChunkStatus string

const (
	ChunkOK      ChunkStatus = "ok"
	ChunkTimeout ChunkStatus = "timeout"
	ChunkFailed  ChunkStatus = "failed"
)

// ChunkDiagnostic records what happened to one decomposition chunk
type ChunkDiagnostic struct {
	Status   ChunkStatus   `json:"status" msgpack:"status"`
	Error    string        `json:"error,omitempty" msgpack:"error,omitempty"`
	Symbols  []string      `json:"symbols" msgpack:"symbols"`
	Index    int           `json:"index" msgpack:"index"`
	Duration time.Duration `json:"duration_ns" msgpack:"duration_ns"`
}

// ESGDistribution summarizes the ESG profile of an optimized universe
type ESGDistribution struct {
	Mean         float64 `json:"mean" msgpack:"mean"`
	WeightedMean float64 `json:"weighted_mean" msgpack:"weighted_mean"`
	StdDev       float64 `json:"std_dev" msgpack:"std_dev"`
	High         int     `json:"high" msgpack:"high"`     // score >= 80
	Medium       int     `json:"medium" msgpack:"medium"` // 60 <= score < 80
	Low          int     `json:"low" msgpack:"low"`       // score < 60
}

// Diagnostics explains how a result was produced
type Diagnostics struct {
	ESGDistribution *ESGDistribution  `json:"esg_distribution,omitempty" msgpack:"esg_distribution,omitempty"`
	RequestID       string            `json:"request_id" msgpack:"request_id"`
	SolverMessage   string            `json:"solver_message,omitempty" msgpack:"solver_message,omitempty"`
	Stages          []Stage           `json:"stages" msgpack:"stages"`
	Messages        []string          `json:"messages,omitempty" msgpack:"messages,omitempty"`
	Chunks          []ChunkDiagnostic `json:"chunks,omitempty" msgpack:"chunks,omitempty"`
	Iterations      int               `json:"iterations" msgpack:"iterations"`
	Duration        time.Duration     `json:"duration_ns" msgpack:"duration_ns"`
}

// Enter appends a stage to the state trail
func (d *Diagnostics) Enter(stage Stage) {
	d.Stages = append(d.Stages, stage)
}

// Addf appends a formatted diagnostic message
func (d *Diagnostics) Addf(format string, args ...interface{}) {
	d.Messages = append(d.Messages, fmt.Sprintf(format, args...))
}

// LastStage returns the most recent stage, or "" if none was entered
func (d *Diagnostics) LastStage() Stage {
	if len(d.Stages) == 0 {
		return ""
	}
	return d.Stages[len(d.Stages)-1]
}

// OptimizationResult is the uniform output of every solver path.
// Symbols[i] names the asset holding Weights[i]; a degraded decomposition or an
// ESG filter can return fewer symbols than were submitted.
type OptimizationResult struct {
	SolverUsed           SolverKind  `json:"solver_used" msgpack:"solver_used"`
	Symbols              []string    `json:"symbols" msgpack:"symbols"`
	Weights              []float64   `json:"weights" msgpack:"weights"`
	Diagnostics          Diagnostics `json:"diagnostics" msgpack:"diagnostics"`
	ExpectedReturn       float64     `json:"expected_return" msgpack:"expected_return"`
	Volatility           float64     `json:"volatility" msgpack:"volatility"`
	SharpeRatio          float64     `json:"sharpe_ratio" msgpack:"sharpe_ratio"`
	ESGScore             float64     `json:"esg_score" msgpack:"esg_score"`
	DiversificationRatio float64     `json:"diversification_ratio" msgpack:"diversification_ratio"`
	Success              bool        `json:"success" msgpack:"success"`
	Degraded             bool        `json:"degraded" msgpack:"degraded"`
}

// WeightOf returns the weight assigned to symbol, or 0 when absent
func (r *OptimizationResult) WeightOf(symbol string) float64 {
	for i, s := range r.Symbols {
		if s == symbol && i < len(r.Weights) {
			return r.Weights[i]
		}
	}
	return 0
}

// Allocation returns the optimized assets with Weight populated
func (r *OptimizationResult) Allocation(assets []Asset) []Asset {
	out := make([]Asset, 0, len(r.Symbols))
	bySymbol := make(map[string]Asset, len(assets))
	for _, a := range assets {
		bySymbol[a.Symbol] = a
	}
	for i, s := range r.Symbols {
		a, ok := bySymbol[s]
		if !ok {
			continue
		}
		a.Weight = r.Weights[i]
		out = append(out, a)
	}
	return out
}

// RiskAssessment is the output of the risk assessment engine
type RiskAssessment struct {
	Entropy           *float64           `json:"entropy,omitempty" msgpack:"entropy,omitempty"`
	RiskDistribution  map[string]float64 `json:"risk_distribution,omitempty" msgpack:"risk_distribution,omitempty"`
	Method            RiskMethod         `json:"method" msgpack:"method"`
	RiskLevel         RiskLevel          `json:"risk_level" msgpack:"risk_level"`
	Message           string             `json:"message,omitempty" msgpack:"message,omitempty"`
	AverageVolatility float64            `json:"average_volatility" msgpack:"average_volatility"`
}

// ValidateAssets rejects empty or malformed asset lists
func ValidateAssets(assets []Asset) error {
	if len(assets) == 0 {
		return NewValidationError("assets", "asset list is empty")
	}
	seen := make(map[string]struct{}, len(assets))
	for i, a := range assets {
		field := fmt.Sprintf("assets[%d]", i)
		if a.Symbol == "" {
			return NewValidationError(field, "symbol is required")
		}
		if _, dup := seen[a.Symbol]; dup {
			return NewValidationError(field, fmt.Sprintf("duplicate symbol %s", a.Symbol))
		}
		seen[a.Symbol] = struct{}{}
		if !isFinite(a.ExpectedReturn) {
			return NewValidationError(field, "expected_return must be finite")
		}
		if !isFinite(a.Volatility) || a.Volatility < 0 {
			return NewValidationError(field, "volatility must be finite and >= 0")
		}
		if !isFinite(a.ESGScore) || a.ESGScore < 0 || a.ESGScore > 100 {
			return NewValidationError(field, "esg_score must be within [0, 100]")
		}
	}
	return nil
}

// ValidateRiskTolerance checks that a risk tolerance lies in [0, 1]
func ValidateRiskTolerance(rt float64) error {
	if !isFinite(rt) || rt < 0 || rt > 1 {
		return NewValidationError("risk_tolerance", "must be within [0, 1]")
	}
	return nil
}

// Symbols extracts the symbols of assets in order
func Symbols(assets []Asset) []string {
	out := make([]string, len(assets))
	for i, a := range assets {
		out[i] = a.Symbol
	}
	return out
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
