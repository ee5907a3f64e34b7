// Package intmath provides the integer number theory used by the
// equation solver and the inequality eliminator.
package intmath

import "golang.org/x/exp/constraints"

// Abs returns |a|.
func Abs[T constraints.Signed](a T) T {
	if a < 0 {
		return -a
	}
	return a
}

// GCD returns the non-negative greatest common divisor. GCD(0, 0) is 0.
func GCD[T constraints.Signed](a, b T) T {
	a, b = Abs(a), Abs(b)
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// LCM returns the non-negative least common multiple. LCM with zero is 0.
func LCM[T constraints.Signed](a, b T) T {
	if a == 0 || b == 0 {
		return 0
	}
	return Abs(a/GCD(a, b)*b)
}

// XGCD returns (g, x, y) such that a*x + b*y = g = GCD(a, b).
func XGCD[T constraints.Signed](a, b T) (g, x, y T) {
	oldR, r := a, b
	oldS, s := T(1), T(0)
	oldT, t := T(0), T(1)
	for r != 0 {
		q := oldR / r
		oldR, r = r, oldR-q*r
		oldS, s = s, oldS-q*s
		oldT, t = t, oldT-q*t
	}
	if oldR < 0 {
		return -oldR, -oldS, -oldT
	}
	return oldR, oldS, oldT
}

// FloorDiv rounds the quotient toward negative infinity. b must be nonzero.
func FloorDiv[T constraints.Signed](a, b T) T {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// FloorMod returns a - b*FloorDiv(a, b), which has the sign of b.
func FloorMod[T constraints.Signed](a, b T) T {
	return a - b*FloorDiv(a, b)
}

// CeilDiv rounds the quotient toward positive infinity. b must be nonzero.
func CeilDiv[T constraints.Signed](a, b T) T {
	return -FloorDiv(-a, b)
}

// Min returns the smaller of a and b.
func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Max returns the larger of a and b.
func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}
