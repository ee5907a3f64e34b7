package formula

import (
	set "github.com/hashicorp/go-set/v3"

	"github.com/gnolang/zeroelim/internal/arith"
	"github.com/gnolang/zeroelim/internal/expr"
)

// RemoveRedundantInequalities replaces comparisons that are already known
// to hold by true. Known facts are the given ones, the conditions of the
// enclosing selects and if_then_else calls (in their true branch only) and
// the axis ranges and conditions of enclosing reductions.
//
// The false branch of a conditional does not learn the negation of the
// condition.
func RemoveRedundantInequalities(e expr.Expr, known []expr.Expr) expr.Expr {
	facts := NewExprSet()
	for _, k := range known {
		facts.Insert(arith.Simplify(k, nil))
	}
	return (&redundancyRemover{known: facts}).rewrite(e)
}

type redundancyRemover struct {
	known *set.TreeSet[expr.Expr]
}

// with returns a remover that additionally knows facts.
func (r *redundancyRemover) with(facts ...expr.Expr) *redundancyRemover {
	known := NewExprSet(r.known.Slice()...)
	for _, f := range facts {
		known.Insert(arith.Simplify(f, nil))
	}
	return &redundancyRemover{known: known}
}

func (r *redundancyRemover) rewrite(e expr.Expr) expr.Expr {
	switch n := e.(type) {
	case expr.Select:
		return r.conditional(n.Cond, n.True, n.False, expr.NewSelect)
	case expr.Call:
		if n.IsIfThenElse() {
			return r.conditional(n.Args[0], n.Args[1], n.Args[2], expr.IfThenElse)
		}
	case expr.Reduce:
		return r.reduce(n)
	case expr.Binary:
		switch {
		case n.Op.IsComparison():
			return r.atomic(e)
		case n.Op == expr.OpAnd:
			return and(r.rewrite(n.A), r.rewrite(n.B))
		}
	}
	return expr.MapChildren(e, r.rewrite)
}

func (r *redundancyRemover) conditional(cond, t, f expr.Expr, build func(c, t, f expr.Expr) expr.Expr) expr.Expr {
	c := arith.Simplify(r.rewrite(cond), nil)
	switch {
	case expr.IsTrue(c):
		return r.rewrite(t)
	case expr.IsFalse(c):
		return r.rewrite(f)
	}
	inner := r.with(FactorOutAtomicFormulas(c).AtomicSlice()...)
	return build(c, inner.rewrite(t), r.rewrite(f))
}

func (r *redundancyRemover) reduce(n expr.Reduce) expr.Expr {
	withAxis := r.with(RangeConditions(n.Axis)...)
	cond := withAxis.rewrite(n.Condition)
	inner := withAxis.with(FactorOutAtomicFormulas(cond).AtomicSlice()...)
	src := make([]expr.Expr, len(n.Source))
	for i, s := range n.Source {
		src[i] = inner.rewrite(s)
	}
	return expr.Reduce{Combiner: n.Combiner, Source: src, Axis: n.Axis, Condition: cond, ValueIndex: n.ValueIndex}
}

func (r *redundancyRemover) atomic(e expr.Expr) expr.Expr {
	s := arith.Simplify(e, nil)
	if r.known.Contains(s) {
		return expr.True
	}
	return s
}

// RangeConditions expresses the ranges of an axis as inequalities
// min <= v and v < min + extent.
func RangeConditions(axis []expr.IterVar) []expr.Expr {
	res := make([]expr.Expr, 0, 2*len(axis))
	for _, iv := range axis {
		res = append(res,
			expr.GE(iv.Var, iv.Dom.Min),
			expr.LT(iv.Var, expr.Add(iv.Dom.Min, iv.Dom.Extent)),
		)
	}
	return res
}
