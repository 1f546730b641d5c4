// Package util provides common utility functions.
package util

// Clamp limits v to the [lo, hi] range.
func Clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
