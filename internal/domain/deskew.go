package domain

import (
	"slices"

	"go.uber.org/zap"

	"github.com/gnolang/zeroelim/internal/arith"
	"github.com/gnolang/zeroelim/internal/expr"
	"github.com/gnolang/zeroelim/internal/trace"
)

// DeskewDomain tightens the ranges of the domain variables using the
// bounds found by Fourier-Motzkin elimination. Each variable is shifted so
// that it starts at zero and gets the narrowest extent any pair of its
// lower and upper bounds allows; a variable fixed by an equality with unit
// coefficient is removed. Variables are processed from the last to the
// first, so every range only depends on outer variables and on variables
// already processed.
func DeskewDomain(d *Domain, tr *trace.Tracer) (*Transformation, error) {
	tr = tr.Enter("DeskewDomain", zap.Stringer("domain", d))

	resRanges := make(expr.Ranges)
	vars := slices.Clone(d.Variables)
	inDomain := expr.VarSet(d.Variables)
	for _, v := range d.Ranges.SortedVars() {
		if !inDomain[v] {
			vars = append(vars, v)
			resRanges[v] = d.Ranges[v]
		}
	}

	solved, err := SolveSystemOfInequalities(d.Conditions, vars, d.Ranges, tr)
	if err != nil {
		return nil, err
	}

	oldToNew := make(map[*expr.Var]expr.Expr)
	newToOld := make(map[*expr.Var]expr.Expr)
	var resVars []*expr.Var
	vranges := d.Ranges.Clone()

	for i := len(d.Variables) - 1; i >= 0; i-- {
		v := d.Variables[i]
		bnd := solved.Bounds[v].Substitute(oldToNew)
		if bnd.Coef == 1 && len(bnd.Equal) > 0 {
			// Bounds are sorted, so the first one is the simplest.
			oldToNew[v] = bnd.Equal[0]
			tr.Log("replaced", zap.Stringer("var", v), zap.Stringer("with", bnd.Equal[0]))
			continue
		}

		lowers := expr.Dedup(append(slices.Clone(bnd.Equal), bnd.Lower...))
		uppers := expr.Dedup(append(slices.Clone(bnd.Equal), bnd.Upper...))
		coef := expr.Int(bnd.Coef)

		r, hasRange := vranges[v]
		var bestLower, bestDiff expr.Expr
		if hasRange {
			bestLower, bestDiff = r.Min, arith.Simplify(expr.Sub(r.Extent, expr.Int(1)), vranges)
		}
		for _, low := range lowers {
			for _, upp := range uppers {
				diff := arith.Simplify(expr.FloorDiv(expr.Sub(upp, low), coef), vranges)
				over := arith.EvalBounds(diff, vranges).Max

				lowDivided := arith.Simplify(expr.FloorDiv(expr.Add(low, expr.Int(bnd.Coef-1)), coef), vranges)
				diff2 := arith.Simplify(expr.Sub(expr.FloorDiv(upp, coef), lowDivided), vranges)
				over2 := arith.EvalBounds(diff2, vranges).Max

				if over2 != nil && (over == nil || arith.CanProve(expr.LT(expr.Sub(over2, over), expr.Int(0)), vranges)) {
					over = over2
				}
				if over == nil {
					continue
				}
				if bestDiff == nil || arith.CanProve(expr.LT(expr.Sub(over, bestDiff), expr.Int(0)), vranges) {
					bestLower, bestDiff = lowDivided, over
				}
			}
		}

		if bestDiff == nil {
			// Neither a range nor a usable pair of bounds.
			tr.Warn("variable left unbounded", zap.Stringer("var", v))
			nv := v.CopyWithSuffix("")
			oldToNew[v] = nv
			newToOld[nv] = v
			resVars = append(resVars, nv)
			continue
		}

		suffix := ""
		if !hasRange || !expr.Equal(bestLower, r.Min) {
			suffix = ".shifted"
		}
		nv := v.CopyWithSuffix(suffix)
		diff := arith.Simplify(bestDiff, vranges)
		if expr.IsConst(diff, 0) {
			oldToNew[v] = bestLower
			tr.Log("replaced", zap.Stringer("var", v), zap.Stringer("with", bestLower))
			continue
		}

		oldToNew[v] = expr.Add(nv, bestLower)
		newToOld[nv] = arith.Simplify(expr.Sub(v, expr.Substitute(bestLower, newToOld)), vranges)
		nr := expr.NewRange(expr.MakeZero(nv.Type()), arith.Simplify(expr.Add(diff, expr.Int(1)), vranges))
		resVars = append(resVars, nv)
		resRanges[nv] = nr
		vranges[nv] = nr
		tr.Log("shifted", zap.Stringer("var", v), zap.Stringer("to", nv), zap.Stringer("range", nr))
	}

	var conds []expr.Expr
	for _, c := range solved.AsConditions() {
		nc := arith.Simplify(expr.Substitute(c, oldToNew), vranges)
		if !expr.IsTrue(nc) {
			conds = append(conds, nc)
		}
	}
	slices.Reverse(resVars)

	t := &Transformation{
		NewDomain: New(resVars, conds, resRanges),
		OldDomain: d,
		NewToOld:  newToOld,
		OldToNew:  oldToNew,
	}
	tr.Result(t)
	return t, nil
}
