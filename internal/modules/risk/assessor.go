// Package risk provides portfolio risk assessment by volatility banding and
// by measurement entropy of a volatility-encoded quantum state.
package risk

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog"

	"github.com/aristath/qportfolio/internal/domain"
	"github.com/aristath/qportfolio/internal/modules/quantum"
	"github.com/aristath/qportfolio/pkg/formulas"
)

// Volatility bands for the classical path
const (
	LowVolatilityBand    = 0.1
	MediumVolatilityBand = 0.2
)

// DefaultShots is the measurement count of the quantum path
const DefaultShots = 1000

// Config configures the assessor
type Config struct {
	MaxQubits int
	Shots     int
	Seed      int64
}

// Assessor runs risk assessments
type Assessor struct {
	backend   quantum.Backend
	log       zerolog.Logger
	maxQubits int
	shots     int
	seed      int64
}

// NewAssessor creates an assessor. A nil or unavailable backend limits it to
// the classical path.
func NewAssessor(cfg Config, backend quantum.Backend, log zerolog.Logger) *Assessor {
	if cfg.MaxQubits <= 0 || cfg.MaxQubits > quantum.HardQubitLimit {
		cfg.MaxQubits = quantum.HardQubitLimit
	}
	if cfg.Shots <= 0 {
		cfg.Shots = DefaultShots
	}
	if cfg.Seed == 0 {
		cfg.Seed = quantum.DefaultSeed
	}
	return &Assessor{
		backend:   backend,
		maxQubits: cfg.MaxQubits,
		shots:     cfg.Shots,
		seed:      cfg.Seed,
		log:       log.With().Str("component", "risk_assessor").Logger(),
	}
}

// ClassifyVolatility bands an average volatility
func ClassifyVolatility(avg float64) domain.RiskLevel {
	switch {
	case avg < LowVolatilityBand:
		return domain.RiskLevelLow
	case avg <= MediumVolatilityBand:
		return domain.RiskLevelMedium
	default:
		return domain.RiskLevelHigh
	}
}

// RotationAngle is the RY angle encoding a volatility: (π/2)·min(σ, 1)
func RotationAngle(volatility float64) float64 {
	return math.Pi / 2 * math.Min(math.Max(volatility, 0), 1)
}

// Assess returns the quantum assessment when possible, else the classical one.
// Both paths report the same volatility-banded RiskLevel.
// Only validation errors are returned.
func (a *Assessor) Assess(ctx context.Context, assets []domain.Asset) (*domain.RiskAssessment, error) {
	if err := domain.ValidateAssets(assets); err != nil {
		return nil, err
	}

	classical := a.Classical(assets)

	reason := ""
	switch {
	case a.backend == nil || !a.backend.Available():
		reason = (&domain.BackendUnavailableError{Reason: "no simulator configured"}).Error()
	case len(assets) > a.maxQubits:
		reason = fmt.Sprintf("%d assets exceed the %d-qubit bound", len(assets), a.maxQubits)
	}
	if reason != "" {
		classical.Message = reason
		return classical, nil
	}

	assessment, err := a.measure(ctx, assets)
	if err != nil {
		a.log.Warn().Err(err).Int("num_assets", len(assets)).Msg("Quantum risk path failed, using classical")
		classical.Message = fmt.Sprintf("quantum risk path failed: %v", err)
		return classical, nil
	}
	// The level always comes from the volatility bands; the circuit only adds
	// entropy and the Hamming-weight mass on top.
	assessment.RiskLevel = classical.RiskLevel
	assessment.AverageVolatility = classical.AverageVolatility
	return assessment, nil
}

// Classical bands the mean asset volatility
func (a *Assessor) Classical(assets []domain.Asset) *domain.RiskAssessment {
	vols := make([]float64, len(assets))
	for i, asset := range assets {
		vols[i] = asset.Volatility
	}
	avg := formulas.Mean(vols)
	return &domain.RiskAssessment{
		Method:            domain.RiskMethodClassical,
		RiskLevel:         ClassifyVolatility(avg),
		AverageVolatility: avg,
	}
}

// measure prepares H·RY(θᵢ) on every qubit, samples it and scores the histogram
func (a *Assessor) measure(ctx context.Context, assets []domain.Asset) (out *domain.RiskAssessment, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("risk circuit panicked: %v", r)
		}
	}()

	n := len(assets)
	circuit := quantum.NewCircuit(n)
	for i, asset := range assets {
		circuit.H(i).RY(i, RotationAngle(asset.Volatility))
	}

	state, err := a.backend.Execute(ctx, circuit)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(a.seed + int64(n)))
	counts, err := state.Sample(a.shots, rng)
	if err != nil {
		return nil, err
	}

	entropy := formulas.ShannonEntropy(histogram(counts))
	distribution := BucketDistribution(counts, n)

	return &domain.RiskAssessment{
		Method:           domain.RiskMethodQuantum,
		Entropy:          &entropy,
		RiskDistribution: distribution,
	}, nil
}

// BucketDistribution returns the fraction of shots whose Hamming weight is
// ≤ n/3 (low), ≤ 2n/3 (medium) or above (high)
func BucketDistribution(counts map[int]int, n int) map[string]float64 {
	dist := map[string]float64{
		string(domain.RiskLevelLow):    0,
		string(domain.RiskLevelMedium): 0,
		string(domain.RiskLevelHigh):   0,
	}
	total := 0
	for basis, c := range counts {
		total += c
		w := float64(quantum.HammingWeight(basis))
		switch {
		case w <= float64(n)/3:
			dist[string(domain.RiskLevelLow)] += float64(c)
		case w <= 2*float64(n)/3:
			dist[string(domain.RiskLevelMedium)] += float64(c)
		default:
			dist[string(domain.RiskLevelHigh)] += float64(c)
		}
	}
	if total == 0 {
		return dist
	}
	for k := range dist {
		dist[k] /= float64(total)
	}
	return dist
}

// histogram flattens counts in basis order
func histogram(counts map[int]int) []float64 {
	keys := make([]int, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]float64, len(keys))
	for i, k := range keys {
		out[i] = float64(counts[k])
	}
	return out
}
