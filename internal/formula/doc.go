// Package formula manipulates boolean conditions: it factors conjunctions
// of atomic formulas out of arbitrary conditions, normalizes comparisons,
// drops comparisons implied by known facts and splits a condition into a
// part independent of a set of variables and a remainder.
package formula
