package formula

import (
	"github.com/gnolang/zeroelim/internal/arith"
	"github.com/gnolang/zeroelim/internal/expr"
)

// NormalizeComparisons rewrites every comparison into one of d == 0,
// d != 0, d <= 0 or, for floats, d < 0, where d is the simplified
// difference of the operands. Integer a < b becomes a - b + 1 <= 0.
func NormalizeComparisons(e expr.Expr) expr.Expr {
	if b, ok := e.(expr.Binary); ok && b.Op.IsComparison() {
		switch b.Op {
		case expr.OpGT:
			return normalized(expr.OpLT, b.B, b.A)
		case expr.OpGE:
			return normalized(expr.OpLE, b.B, b.A)
		default:
			return normalized(b.Op, b.A, b.B)
		}
	}
	return expr.MapChildren(e, NormalizeComparisons)
}

func normalized(op expr.BinaryOp, a, b expr.Expr) expr.Expr {
	t := a.Type()
	if op == expr.OpLT && t == expr.IntType {
		d := arith.Simplify(expr.Add(expr.Sub(a, b), expr.Int(1)), nil)
		return expr.LE(d, expr.Int(0))
	}
	d := arith.Simplify(expr.Sub(a, b), nil)
	return expr.Binary{Op: op, A: d, B: expr.MakeZero(t)}
}
