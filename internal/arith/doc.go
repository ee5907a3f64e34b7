// Package arith is the arithmetic oracle of the zero elimination passes:
// a canonicalizing simplifier, a prover for conditions over variable
// ranges, symbolic interval bounds and linear coefficient detection.
//
// Integer expressions are canonicalized through Poly, a sum of integer
// multiples of monomials over opaque atoms. Anything that is not +, - or *
// (divisions, min, max, select, tensor reads) is an atom and is simplified
// on its own before it takes part in a polynomial.
package arith
