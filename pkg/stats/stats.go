// Package stats aggregates latency samples and compares backends.
package stats

import (
	"math"
	"slices"
)

// OperationStats summarizes a sequence of latencies in seconds
type OperationStats struct {
	Mean   float64 `json:"avg"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Count  int     `json:"count"`
}

// Compute derives stats from samples. An empty input yields zero stats.
func Compute(samples []float64) OperationStats {
	if len(samples) == 0 {
		return OperationStats{}
	}

	sorted := slices.Clone(samples)
	slices.Sort(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}

	n := len(sorted)
	var median float64
	if n%2 == 1 {
		median = sorted[n/2]
	} else {
		median = sorted[n/2-1] + (sorted[n/2]-sorted[n/2-1])/2
	}

	mean := sum / float64(n)
	// floating point summation can drift a hair outside the sample range
	mean = math.Min(math.Max(mean, sorted[0]), sorted[n-1])

	return OperationStats{
		Mean:   mean,
		Median: median,
		Min:    sorted[0],
		Max:    sorted[n-1],
		Count:  n,
	}
}

// Sentinel returns stats as if every sample had the given value
func Sentinel(value float64) OperationStats {
	return OperationStats{Mean: value, Median: value, Min: value, Max: value}
}

// IsZero reports whether no samples contributed to s
func (s OperationStats) IsZero() bool {
	return s.Count == 0 && s.Mean == 0 && s.Max == 0
}
