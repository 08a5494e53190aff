package optimization

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/qportfolio/internal/domain"
	"github.com/aristath/qportfolio/internal/modules/correlation"
)

// Linkage selects how cluster distances are aggregated
type Linkage string

const (
	LinkageSingle   Linkage = "single"
	LinkageComplete Linkage = "complete"
	LinkageAverage  Linkage = "average"
)

// HRPChunkAllocator weights a chunk by Hierarchical Risk Parity: cluster the
// assets on correlation distance, order them along the dendrogram, then split
// capital by recursive bisection with inverse-variance cluster risk.
type HRPChunkAllocator struct {
	Provider correlation.Provider
	Linkage  Linkage
}

type cluster struct {
	left, right *cluster
	leaves      []int
	minLeaf     int
}

// Allocate implements ChunkAllocator. Risk tolerance does not enter HRP.
func (a HRPChunkAllocator) Allocate(ctx context.Context, chunk []domain.Asset, _ float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	n := len(chunk)
	if n == 0 {
		return nil, fmt.Errorf("empty chunk")
	}
	if n == 1 {
		return []float64{1}, nil
	}

	corr, err := a.Provider.Build(domain.Symbols(chunk))
	if err != nil {
		return nil, fmt.Errorf("chunk correlation: %w", err)
	}
	return HRPWeights(chunk, corr, a.Linkage)
}

// HRPWeights computes HRP weights for assets under corr
func HRPWeights(assets []domain.Asset, corr mat.Symmetric, linkage Linkage) ([]float64, error) {
	n := len(assets)
	if corr.SymmetricDim() != n {
		return nil, fmt.Errorf("correlation is %dx%d, want %d assets", corr.SymmetricDim(), corr.SymmetricDim(), n)
	}
	if linkage == "" {
		linkage = LinkageSingle
	}

	cov := mat.NewSymDense(n, nil)
	dist := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			rho := math.Max(-1, math.Min(1, corr.At(i, j)))
			cov.SetSym(i, j, rho*assets[i].Volatility*assets[j].Volatility)
			dist.SetSym(i, j, math.Sqrt(2*(1-rho)))
		}
	}

	order := leafOrder(buildDendrogram(dist, linkage))
	if len(order) != n {
		return nil, fmt.Errorf("invalid HRP order length %d", len(order))
	}

	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1
	}
	bisect(weights, cov, order)

	sum := 0.0
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("invalid HRP weight sum: %v", sum)
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights, nil
}

// buildDendrogram merges the closest pair until one cluster remains; ties
// break on the smallest leaf indices so the tree is deterministic.
func buildDendrogram(dist mat.Symmetric, linkage Linkage) *cluster {
	n := dist.SymmetricDim()
	clusters := make([]*cluster, n)
	for i := range clusters {
		clusters[i] = &cluster{leaves: []int{i}, minLeaf: i}
	}

	for len(clusters) > 1 {
		bi, bj := 0, 1
		best := clusterDistance(dist, clusters[0], clusters[1], linkage)
		for i := 0; i < len(clusters); i++ {
			for j := i + 1; j < len(clusters); j++ {
				d := clusterDistance(dist, clusters[i], clusters[j], linkage)
				if d < best || (d == best && pairLess(clusters[i], clusters[j], clusters[bi], clusters[bj])) {
					best, bi, bj = d, i, j
				}
			}
		}

		left, right := clusters[bi], clusters[bj]
		if right.minLeaf < left.minLeaf {
			left, right = right, left
		}
		leaves := make([]int, 0, len(left.leaves)+len(right.leaves))
		leaves = append(leaves, left.leaves...)
		leaves = append(leaves, right.leaves...)
		merged := &cluster{left: left, right: right, leaves: leaves, minLeaf: left.minLeaf}

		next := make([]*cluster, 0, len(clusters)-1)
		for k, c := range clusters {
			if k != bi && k != bj {
				next = append(next, c)
			}
		}
		clusters = append(next, merged)
	}
	return clusters[0]
}

func pairLess(a1, b1, a2, b2 *cluster) bool {
	x1, y1 := a1.minLeaf, b1.minLeaf
	if y1 < x1 {
		x1, y1 = y1, x1
	}
	x2, y2 := a2.minLeaf, b2.minLeaf
	if y2 < x2 {
		x2, y2 = y2, x2
	}
	if x1 != x2 {
		return x1 < x2
	}
	return y1 < y2
}

func clusterDistance(dist mat.Symmetric, a, b *cluster, linkage Linkage) float64 {
	switch linkage {
	case LinkageComplete:
		worst := math.Inf(-1)
		for _, i := range a.leaves {
			for _, j := range b.leaves {
				worst = math.Max(worst, dist.At(i, j))
			}
		}
		return worst
	case LinkageAverage:
		sum := 0.0
		for _, i := range a.leaves {
			for _, j := range b.leaves {
				sum += dist.At(i, j)
			}
		}
		return sum / float64(len(a.leaves)*len(b.leaves))
	default:
		best := math.Inf(1)
		for _, i := range a.leaves {
			for _, j := range b.leaves {
				best = math.Min(best, dist.At(i, j))
			}
		}
		return best
	}
}

// leafOrder is the quasi-diagonal ordering of the dendrogram
func leafOrder(c *cluster) []int {
	if c == nil {
		return nil
	}
	if c.left == nil && c.right == nil {
		return []int{c.leaves[0]}
	}
	return append(leafOrder(c.left), leafOrder(c.right)...)
}

func bisect(weights []float64, cov mat.Symmetric, order []int) {
	if len(order) <= 1 {
		return
	}
	left, right := order[:len(order)/2], order[len(order)/2:]

	vLeft := ivpVariance(cov, left)
	vRight := ivpVariance(cov, right)
	alpha := 0.5
	if vLeft+vRight > 0 {
		alpha = 1 - vLeft/(vLeft+vRight)
	}
	alpha = math.Max(0, math.Min(1, alpha))

	for _, i := range left {
		weights[i] *= alpha
	}
	for _, i := range right {
		weights[i] *= 1 - alpha
	}
	bisect(weights, cov, left)
	bisect(weights, cov, right)
}

// ivpVariance is the variance of the inverse-variance portfolio over idx
func ivpVariance(cov mat.Symmetric, idx []int) float64 {
	if len(idx) == 1 {
		return math.Max(cov.At(idx[0], idx[0]), 0)
	}

	const eps = 1e-12
	w := mat.NewVecDense(len(idx), nil)
	sub := mat.NewSymDense(len(idx), nil)
	sumInv := 0.0
	for a, i := range idx {
		inv := 1 / math.Max(cov.At(i, i), eps)
		w.SetVec(a, inv)
		sumInv += inv
		for b := a; b < len(idx); b++ {
			sub.SetSym(a, b, cov.At(i, idx[b]))
		}
	}
	w.ScaleVec(1/sumInv, w)
	return math.Max(mat.Inner(w, sub, w), 0)
}
