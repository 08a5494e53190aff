package quantum

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// DecodeSamples turns a measurement histogram into weights. Every non-empty
// bitstring is read as an equal-weight portfolio over its selected assets;
// the allocation is the frequency-weighted mean of those portfolios. The
// empty bitstring carries no allocation and is discarded.
func DecodeSamples(counts map[int]int, n int) ([]float64, error) {
	keys := make([]int, 0, len(counts))
	for basis := range counts {
		keys = append(keys, basis)
	}
	sort.Ints(keys)

	weights := make([]float64, n)
	total := 0
	for _, basis := range keys {
		count := counts[basis]
		size := HammingWeight(basis)
		if size == 0 || count <= 0 {
			continue
		}
		total += count
		share := float64(count) / float64(size)
		for q := 0; q < n; q++ {
			if basis&(1<<q) != 0 {
				weights[q] += share
			}
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("empty measurement distribution")
	}
	floats.Scale(1/float64(total), weights)
	return weights, nil
}

// DecodeMarginals normalizes per-qubit selection probabilities into weights
func DecodeMarginals(marginals []float64) ([]float64, error) {
	sum := floats.Sum(marginals)
	if sum <= 1e-12 {
		return nil, fmt.Errorf("ansatz selects no asset")
	}
	weights := append([]float64(nil), marginals...)
	floats.Scale(1/sum, weights)
	return weights, nil
}

// MostFrequent returns the modal basis state of a histogram, lowest index on ties
func MostFrequent(counts map[int]int) (int, int) {
	best, bestCount := -1, 0
	for basis, c := range counts {
		if c > bestCount || (c == bestCount && basis < best) {
			best, bestCount = basis, c
		}
	}
	return best, bestCount
}
