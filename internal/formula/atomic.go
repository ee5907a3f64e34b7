package formula

import (
	set "github.com/hashicorp/go-set/v3"

	"github.com/gnolang/zeroelim/internal/expr"
)

// NewExprSet returns an empty set of expressions ordered by expr.Compare.
func NewExprSet(items ...expr.Expr) *set.TreeSet[expr.Expr] {
	s := set.NewTreeSet[expr.Expr](expr.Compare)
	for _, e := range items {
		s.Insert(e)
	}
	return s
}

// Factored is a boolean formula split into a conjunction of atomic
// formulas and a residual that could not be decomposed further. The
// formula is equivalent to AND(Atomics) && Rest.
type Factored struct {
	Atomics *set.TreeSet[expr.Expr]
	Rest    expr.Expr
}

// AtomicSlice returns the atomic formulas in ascending order.
func (f Factored) AtomicSlice() []expr.Expr {
	return f.Atomics.Slice()
}

// ToSlice returns the atomic formulas followed by the residual.
func (f Factored) ToSlice() []expr.Expr {
	return append(f.Atomics.Slice(), f.Rest)
}

// ToExpr rebuilds the formula as a single conjunction.
func (f Factored) ToExpr() expr.Expr {
	return conjoin(f.Atomics.Slice(), f.Rest)
}

func conjoin(atomics []expr.Expr, rest expr.Expr) expr.Expr {
	res := rest
	for _, a := range atomics {
		res = and(a, res)
	}
	return res
}

func atomic(e expr.Expr) Factored {
	return Factored{Atomics: NewExprSet(e), Rest: expr.True}
}

// FactorOutAtomicFormulas splits a boolean expression into atomic formulas
// (comparisons, variables, calls, constants) and a residual. Conjunctions
// collect the atomics of both sides, disjunctions keep only the atomics
// common to both sides, negations are pushed inward, select is read as
// (c && a) || (!c && b) and a product of booleans as a conjunction.
func FactorOutAtomicFormulas(e expr.Expr) Factored {
	switch n := e.(type) {
	case expr.BoolImm:
		if n.Value {
			return Factored{Atomics: NewExprSet(), Rest: expr.True}
		}
		return atomic(e)
	case expr.Select:
		return FactorOutAtomicFormulas(expr.Or(expr.And(n.Cond, n.True), expr.And(expr.LogicalNot(n.Cond), n.False)))
	case expr.Not:
		if pushed, ok := pushNot(n.A); ok {
			return FactorOutAtomicFormulas(pushed)
		}
		return atomic(e)
	case expr.Binary:
		switch n.Op {
		case expr.OpAnd:
			return factorAnd(n.A, n.B)
		case expr.OpMul:
			if n.Type() == expr.BoolType {
				return factorAnd(n.A, n.B)
			}
		case expr.OpOr:
			return factorOr(n.A, n.B)
		}
	}
	return atomic(e)
}

func factorAnd(a, b expr.Expr) Factored {
	fa := FactorOutAtomicFormulas(a)
	fb := FactorOutAtomicFormulas(b)
	atomics := NewExprSet(fa.Atomics.Slice()...)
	for _, x := range fb.Atomics.Slice() {
		atomics.Insert(x)
	}
	return Factored{Atomics: atomics, Rest: and(fa.Rest, fb.Rest)}
}

func factorOr(a, b expr.Expr) Factored {
	fa := FactorOutAtomicFormulas(a)
	fb := FactorOutAtomicFormulas(b)
	common := NewExprSet()
	var onlyA, onlyB []expr.Expr
	for _, x := range fa.Atomics.Slice() {
		if fb.Atomics.Contains(x) {
			common.Insert(x)
		} else {
			onlyA = append(onlyA, x)
		}
	}
	for _, x := range fb.Atomics.Slice() {
		if !common.Contains(x) {
			onlyB = append(onlyB, x)
		}
	}
	return Factored{Atomics: common, Rest: or(conjoin(onlyA, fa.Rest), conjoin(onlyB, fb.Rest))}
}

// pushNot moves a negation one level down. It reports false when the
// negated formula is atomic.
func pushNot(a expr.Expr) (expr.Expr, bool) {
	switch n := a.(type) {
	case expr.BoolImm:
		return expr.Bool(!n.Value), true
	case expr.Not:
		return n.A, true
	case expr.Select:
		return expr.And(
			expr.Or(expr.LogicalNot(n.Cond), expr.LogicalNot(n.True)),
			expr.Or(n.Cond, expr.LogicalNot(n.False)),
		), true
	case expr.Binary:
		switch {
		case n.Op == expr.OpOr:
			return expr.And(expr.LogicalNot(n.A), expr.LogicalNot(n.B)), true
		case n.Op == expr.OpAnd:
			return expr.Or(expr.LogicalNot(n.A), expr.LogicalNot(n.B)), true
		case n.Op.IsComparison() && n.A.Type() == expr.IntType:
			return negate(n), true
		}
	}
	return nil, false
}

func negate(c expr.Binary) expr.Expr {
	switch c.Op {
	case expr.OpEQ:
		return expr.NE(c.A, c.B)
	case expr.OpNE:
		return expr.EQ(c.A, c.B)
	case expr.OpLT:
		return expr.GE(c.A, c.B)
	case expr.OpLE:
		return expr.GT(c.A, c.B)
	case expr.OpGT:
		return expr.LE(c.A, c.B)
	default:
		return expr.LT(c.A, c.B)
	}
}

// and builds a && b, folding constant operands.
func and(a, b expr.Expr) expr.Expr {
	switch {
	case expr.IsTrue(a):
		return b
	case expr.IsTrue(b):
		return a
	case expr.IsFalse(a) || expr.IsFalse(b):
		return expr.False
	}
	return expr.And(a, b)
}

// or builds a || b, folding constant operands.
func or(a, b expr.Expr) expr.Expr {
	switch {
	case expr.IsFalse(a):
		return b
	case expr.IsFalse(b):
		return a
	case expr.IsTrue(a) || expr.IsTrue(b):
		return expr.True
	}
	return expr.Or(a, b)
}
