package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// WeightedMean calculates the mean of data weighted by weights.
// Falls back to the plain mean when weights sum to zero.
func WeightedMean(data, weights []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	if len(weights) != len(data) || floats.Sum(weights) <= 0 {
		return Mean(data)
	}
	return stat.Mean(data, weights)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// ShannonEntropy returns the entropy in bits of a discrete distribution given as counts
// or unnormalized probabilities. Zero-mass outcomes contribute nothing.
func ShannonEntropy(counts []float64) float64 {
	total := floats.Sum(counts)
	if total <= 0 {
		return 0
	}
	p := make([]float64, 0, len(counts))
	for _, c := range counts {
		if c > 0 {
			p = append(p, c/total)
		}
	}
	// stat.Entropy is in nats
	return stat.Entropy(p) / math.Ln2
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
