package formula

import (
	"github.com/gnolang/zeroelim/internal/expr"
)

// ImplicationNotContainingVars splits cond into an outer condition that
// does not mention vars and is implied by cond, and an inner condition
// such that outer && inner is equivalent to cond.
func ImplicationNotContainingVars(cond expr.Expr, vars map[*expr.Var]bool) (outer, inner expr.Expr) {
	if b, ok := cond.(expr.Binary); ok {
		switch b.Op {
		case expr.OpAnd:
			oa, ia := ImplicationNotContainingVars(b.A, vars)
			ob, ib := ImplicationNotContainingVars(b.B, vars)
			return and(oa, ob), and(ia, ib)
		case expr.OpOr:
			oa, ia := ImplicationNotContainingVars(b.A, vars)
			ob, ib := ImplicationNotContainingVars(b.B, vars)
			return or(oa, ob), and(and(or(oa, ib), or(ob, ia)), or(ia, ib))
		}
	}
	if !expr.UsesVar(cond, func(v *expr.Var) bool { return vars[v] }) {
		return cond, expr.True
	}
	return expr.True, cond
}
