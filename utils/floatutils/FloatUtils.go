// Package floatutils provides utilities for working with floats
package floatutils

import (
	"math"
)

// Clip clips a floating point to within a minimum and maximum value.
// If the floating point exceeds max, then the function returns the max
// If min exceeds the floating point, then the function returns the min
func Clip(value, min, max float64) float64 {
	clipped := math.Min(value, max)
	return math.Max(clipped, min)
}

// Ones returns a slice of n float64's, each with value 1.0
func Ones(n int) []float64 {
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1.0
	}
	return ones
}

// Finite returns whether a float64 is neither NaN nor an infinity
func Finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// CountNonFinite returns the number of NaN or infinite values in a
// slice of float64
func CountNonFinite(values []float64) int {
	count := 0
	for _, v := range values {
		if !Finite(v) {
			count++
		}
	}
	return count
}

// Mean computes and returns the mean of a list of float64
func Mean(floats ...float64) float64 {
	total := 0.0
	for _, val := range floats {
		total += val
	}
	return total / float64(len(floats))
}
