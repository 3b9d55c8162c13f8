// Package mathx holds the small generic helpers the sensor and radio code
// share.
package mathx

import "golang.org/x/exp/constraints"

type number interface {
	constraints.Signed | constraints.Float
}

// Clamp limits v to [lo, hi]; reversed bounds are accepted.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	return min(max(v, lo), hi)
}

// Within reports |v| <= limit. A negative limit admits nothing.
func Within[T number](v, limit T) bool {
	return -limit <= v && v <= limit
}

// Near reports |a-b| <= tol.
func Near[T number](a, b, tol T) bool {
	if a < b {
		a, b = b, a
	}
	return a-b <= tol
}
