package arith

import (
	"github.com/gnolang/zeroelim/internal/expr"
)

// DetectLinearCoefficients writes e as c0*v0 + ... + cn*vn + rest and
// returns [c0, ..., cn, rest]. It fails if e is not linear in vars, that
// is if a variable is multiplied by another one or occurs inside an opaque
// subexpression such as a division.
func DetectLinearCoefficients(e expr.Expr, vars []*expr.Var) ([]expr.Expr, bool) {
	idx := make(map[*expr.Var]int, len(vars))
	for i, v := range vars {
		idx[v] = i
	}
	polys := make([]Poly, len(vars)+1)
	p := ToPoly(e)
	for _, t := range p.terms {
		pos := len(vars)
		var rest []expr.Expr
		for _, a := range t.mono {
			if v, ok := a.(*expr.Var); ok {
				if i, ok := idx[v]; ok {
					if pos != len(vars) {
						return nil, false
					}
					pos = i
					continue
				}
			}
			if expr.UsesAnyVar(a, vars...) {
				return nil, false
			}
			rest = append(rest, a)
		}
		tp := constPoly(t.coef)
		if len(rest) > 0 {
			tp = Poly{terms: []term{{coef: t.coef, mono: rest}}}
		}
		polys[pos] = polys[pos].add(tp)
	}
	polys[len(vars)] = polys[len(vars)].addConst(p.konst)

	res := make([]expr.Expr, len(polys))
	for i, q := range polys {
		res[i] = q.Expr()
	}
	return res, true
}

// DetectClipBounds collects bounds of vars implied by the individual
// conjuncts of cond that constrain exactly one of them with a constant
// coefficient, such as 2*x + n < 7. Variables without such conjuncts get no
// entry; an unbounded end is nil.
func DetectClipBounds(cond expr.Expr, vars []*expr.Var) map[*expr.Var]Interval {
	res := make(map[*expr.Var]Interval)
	for _, c := range flatten(expr.OpAnd, cond, nil) {
		cmp, ok := c.(expr.Binary)
		if !ok || !cmp.Op.IsComparison() || cmp.A.Type() != expr.IntType {
			continue
		}
		var d Poly
		var isEq bool
		switch cmp.Op {
		case expr.OpLE:
			d = ToPoly(cmp.A).sub(ToPoly(cmp.B))
		case expr.OpLT:
			d = ToPoly(cmp.A).sub(ToPoly(cmp.B)).addConst(1)
		case expr.OpGE:
			d = ToPoly(cmp.B).sub(ToPoly(cmp.A))
		case expr.OpGT:
			d = ToPoly(cmp.B).sub(ToPoly(cmp.A)).addConst(1)
		case expr.OpEQ:
			d, isEq = ToPoly(cmp.A).sub(ToPoly(cmp.B)), true
		default:
			continue
		}
		coefs, ok := DetectLinearCoefficients(d.Expr(), vars)
		if !ok {
			continue
		}
		which, coef := -1, int64(0)
		for i := range vars {
			cv, isConst := expr.AsInt(coefs[i])
			if isConst && cv == 0 {
				continue
			}
			if !isConst || which >= 0 {
				which = -2
				break
			}
			which, coef = i, cv
		}
		if which < 0 {
			continue
		}
		// coef*v + rest <= 0 (or == 0).
		rest := coefs[len(vars)]
		v := vars[which]
		iv := res[v]
		if coef > 0 || isEq {
			hi := Simplify(expr.FloorDiv(expr.Sub(expr.Int(0), rest), expr.Int(coef)), nil)
			if coef < 0 {
				hi = Simplify(expr.FloorDiv(rest, expr.Int(-coef)), nil)
			}
			iv.Max = tighten(iv.Max, hi, expr.Min)
		}
		if coef < 0 || isEq {
			lo := Simplify(expr.Sub(expr.Int(0), expr.FloorDiv(expr.Sub(expr.Int(0), rest), expr.Int(-coef))), nil)
			if coef > 0 {
				lo = Simplify(expr.Sub(expr.Int(0), expr.FloorDiv(rest, expr.Int(coef))), nil)
			}
			iv.Min = tighten(iv.Min, lo, expr.Max)
		}
		res[v] = iv
	}
	return res
}

func tighten(old, bound expr.Expr, combine func(a, b expr.Expr) expr.Expr) expr.Expr {
	if old == nil {
		return bound
	}
	return Simplify(combine(old, bound), nil)
}
