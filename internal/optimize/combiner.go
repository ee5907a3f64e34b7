package optimize

import (
	"github.com/gnolang/zeroelim/internal/arith"
	"github.com/gnolang/zeroelim/internal/expr"
)

// IsSumCombiner reports whether c is a single-output combiner with a zero
// identity whose result is lhs + rhs.
func IsSumCombiner(c *expr.CommReducer, ranges expr.Ranges) bool {
	if len(c.Result) != 1 {
		return false
	}
	if !expr.IsConst(arith.Simplify(c.Identity[0], ranges), 0) {
		return false
	}
	res := arith.Simplify(c.Result[0], ranges)
	return expr.Equal(res, expr.Add(c.Lhs[0], c.Rhs[0])) ||
		expr.Equal(res, expr.Add(c.Rhs[0], c.Lhs[0]))
}

// CanFactorZeroFromCombiner reports whether output idx of c has a zero
// identity and combines two zeros into zero. Terms that are zero outside
// some condition can then be skipped by the reduction.
func CanFactorZeroFromCombiner(c *expr.CommReducer, idx int, ranges expr.Ranges) bool {
	if !expr.IsConst(arith.Simplify(c.Identity[idx], ranges), 0) {
		return false
	}
	zero := expr.MakeZero(c.Result[idx].Type())
	in := expr.Substitute(c.Result[idx], map[*expr.Var]expr.Expr{
		c.Lhs[idx]: zero,
		c.Rhs[idx]: zero,
	})
	return expr.IsConst(arith.Simplify(in, ranges), 0)
}
