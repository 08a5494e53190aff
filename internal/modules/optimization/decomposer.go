package optimization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/qportfolio/internal/domain"
	"github.com/aristath/qportfolio/internal/modules/correlation"
	"github.com/aristath/qportfolio/internal/workers"
	"github.com/aristath/qportfolio/pkg/formulas"
)

// Constants for decomposition
const (
	DefaultChunks       = 4
	DefaultChunkTimeout = 30 * time.Second
)

// ChunkAllocator computes an intra-chunk allocation summing to 1.
// Implementations must honour ctx cancellation.
type ChunkAllocator interface {
	Allocate(ctx context.Context, chunk []domain.Asset, riskTolerance float64) ([]float64, error)
}

// RiskToleranceAllocator is the default approximate allocator: start from equal
// weight, scale assets riskier than the chunk mean by (1-rt) and the rest by
// (1+rt), then renormalize.
type RiskToleranceAllocator struct{}

// Allocate implements ChunkAllocator
func (RiskToleranceAllocator) Allocate(ctx context.Context, chunk []domain.Asset, riskTolerance float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(chunk)
	if n == 0 {
		return nil, fmt.Errorf("empty chunk")
	}

	vols := make([]float64, n)
	for i, a := range chunk {
		vols[i] = a.Volatility
	}
	meanVol := formulas.Mean(vols)

	weights := formulas.EqualWeights(n)
	for i := range weights {
		if vols[i] > meanVol {
			weights[i] *= 1 - riskTolerance
		} else {
			weights[i] *= 1 + riskTolerance
		}
	}
	return formulas.NormalizeWeights(weights), nil
}

// ClassicalChunkAllocator solves each chunk exactly with the classical solver
type ClassicalChunkAllocator struct {
	Solver   *ClassicalSolver
	Provider correlation.Provider
}

// Allocate implements ChunkAllocator
func (a ClassicalChunkAllocator) Allocate(ctx context.Context, chunk []domain.Asset, _ float64) ([]float64, error) {
	corr, err := a.Provider.Build(domain.Symbols(chunk))
	if err != nil {
		return nil, fmt.Errorf("chunk correlation: %w", err)
	}
	res, err := a.Solver.Solve(ctx, chunk, corr, nil)
	if err != nil {
		return nil, err
	}
	return res.Weights, nil
}

// Chunk allocator names accepted by NewChunkAllocator
const (
	AllocatorRiskTolerance = "risk_tolerance"
	AllocatorClassical     = "classical"
	AllocatorHRP           = "hrp"
)

// NewChunkAllocator resolves an allocator by name
func NewChunkAllocator(name string, solver *ClassicalSolver, provider correlation.Provider) (ChunkAllocator, error) {
	switch name {
	case "", AllocatorRiskTolerance:
		return RiskToleranceAllocator{}, nil
	case AllocatorClassical:
		return ClassicalChunkAllocator{Solver: solver, Provider: provider}, nil
	case AllocatorHRP:
		return HRPChunkAllocator{Provider: provider, Linkage: LinkageSingle}, nil
	default:
		return nil, fmt.Errorf("unknown chunk allocator %q", name)
	}
}

// Decomposition is the merged output of a decomposed optimization
type Decomposition struct {
	Symbols  []string
	Weights  []float64
	Indices  []int // positions of Symbols in the submitted asset list
	Chunks   []domain.ChunkDiagnostic
	Degraded bool
}

// Decomposer splits large universes across the shared worker pool
type Decomposer struct {
	pool      *workers.Pool
	allocator ChunkAllocator
	log       zerolog.Logger
	chunks    int
	timeout   time.Duration
}

// NewDecomposer creates a decomposer. A nil allocator uses RiskToleranceAllocator.
func NewDecomposer(pool *workers.Pool, allocator ChunkAllocator, chunks int, timeout time.Duration, log zerolog.Logger) *Decomposer {
	if allocator == nil {
		allocator = RiskToleranceAllocator{}
	}
	if chunks <= 0 {
		chunks = DefaultChunks
	}
	if timeout <= 0 {
		timeout = DefaultChunkTimeout
	}
	return &Decomposer{
		pool:      pool,
		allocator: allocator,
		chunks:    chunks,
		timeout:   timeout,
		log:       log.With().Str("component", "decomposer").Logger(),
	}
}

// SplitChunks partitions n items into contiguous [start, end) ranges of size ⌈n/k⌉
func SplitChunks(n, k int) [][2]int {
	if n <= 0 {
		return nil
	}
	if k <= 0 {
		k = 1
	}
	size := (n + k - 1) / k
	ranges := make([][2]int, 0, k)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		ranges = append(ranges, [2]int{start, end})
	}
	return ranges
}

type pendingChunk struct {
	ctx    context.Context
	cancel context.CancelFunc
	result <-chan workers.Result
	err    error
	start  time.Time
	lo, hi int
}

// Decompose allocates assets chunk by chunk on the worker pool.
//
// Every chunk is awaited even when siblings fail; failed chunks are dropped from
// the merge and reported in the diagnostics. The error is a
// *domain.PartialChunkFailureError only when no chunk survived.
func (d *Decomposer) Decompose(ctx context.Context, assets []domain.Asset, riskTolerance float64) (*Decomposition, error) {
	ranges := SplitChunks(len(assets), d.chunks)
	if len(ranges) == 0 {
		return nil, domain.NewValidationError("assets", "asset list is empty")
	}

	pending := make([]*pendingChunk, len(ranges))
	for i, r := range ranges {
		chunk := assets[r[0]:r[1]]
		chunkCtx, cancel := context.WithTimeout(ctx, d.timeout)
		p := &pendingChunk{ctx: chunkCtx, cancel: cancel, start: time.Now(), lo: r[0], hi: r[1]}
		p.result, p.err = d.pool.Submit(chunkCtx, fmt.Sprintf("chunk-%d", i), func(taskCtx context.Context) (interface{}, error) {
			return d.allocator.Allocate(taskCtx, chunk, riskTolerance)
		})
		pending[i] = p
	}

	out := &Decomposition{Chunks: make([]domain.ChunkDiagnostic, len(ranges))}
	failure := &domain.PartialChunkFailureError{Total: len(ranges)}
	var merged []float64

	for i, p := range pending {
		weights, status, err := d.await(p)
		p.cancel()

		diag := domain.ChunkDiagnostic{
			Index:    i,
			Symbols:  domain.Symbols(assets[p.lo:p.hi]),
			Status:   status,
			Duration: time.Since(p.start),
		}
		if err != nil {
			diag.Error = err.Error()
			failure.Failed = append(failure.Failed, i)
			failure.Causes = append(failure.Causes, fmt.Sprintf("chunk %d: %v", i, err))
			d.log.Warn().
				Err(err).
				Int("chunk", i).
				Str("status", string(status)).
				Msg("Decomposition chunk failed")
		} else {
			for k := p.lo; k < p.hi; k++ {
				out.Symbols = append(out.Symbols, assets[k].Symbol)
				out.Indices = append(out.Indices, k)
			}
			merged = append(merged, weights...)
		}
		out.Chunks[i] = diag
	}

	if failure.AllFailed() {
		return out, failure
	}
	out.Weights = formulas.NormalizeWeights(merged)
	out.Degraded = len(failure.Failed) > 0

	d.log.Debug().
		Int("num_assets", len(assets)).
		Int("chunks", len(ranges)).
		Int("failed", len(failure.Failed)).
		Msg("Decomposition merged")

	return out, nil
}

// await blocks until the chunk result arrives or the chunk's own deadline passes
func (d *Decomposer) await(p *pendingChunk) ([]float64, domain.ChunkStatus, error) {
	if p.err != nil {
		if errors.Is(p.err, context.DeadlineExceeded) {
			return nil, domain.ChunkTimeout, p.err
		}
		return nil, domain.ChunkFailed, p.err
	}

	select {
	case res := <-p.result:
		if res.Err != nil {
			if errors.Is(res.Err, context.DeadlineExceeded) {
				return nil, domain.ChunkTimeout, res.Err
			}
			return nil, domain.ChunkFailed, res.Err
		}
		weights, ok := res.Value.([]float64)
		if !ok || len(weights) != p.hi-p.lo {
			return nil, domain.ChunkFailed, fmt.Errorf("allocator returned %d weights for %d assets", len(weights), p.hi-p.lo)
		}
		return formulas.NormalizeWeights(weights), domain.ChunkOK, nil
	case <-p.ctx.Done():
		return nil, domain.ChunkTimeout, fmt.Errorf("chunk exceeded %s: %w", d.timeout, p.ctx.Err())
	}
}
