package nn

import (
	"math"
)

// MaxAbsDiff returns the largest absolute elementwise difference
// between two slices, over their common length.
func MaxAbsDiff(a, b []float32) float64 {
	n := min(len(a), len(b))
	m := 0.0
	for i := 0; i < n; i++ {
		if d := math.Abs(float64(a[i] - b[i])); d > m {
			m = d
		}
	}
	return m
}

// Min returns the smallest value in a slice, 0 for an empty slice.
func Min(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

// Max returns the largest value in a slice, 0 for an empty slice.
func Max(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// Mean returns the mean of a slice, 0 for an empty slice.
func Mean(v []float32) float32 {
	if len(v) == 0 {
		return 0
	}
	sum := float32(0)
	for _, x := range v {
		sum += x
	}
	return sum / float32(len(v))
}
