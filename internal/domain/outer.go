package domain

import (
	"slices"

	"go.uber.org/zap"

	"github.com/gnolang/zeroelim/internal/expr"
	"github.com/gnolang/zeroelim/internal/trace"
)

// AddOuterVariablesIntoDomain turns every outer variable used by the
// conditions into a domain variable. The copy is named after the outer
// variable with a Z suffix, takes over its range and is tied to it by a
// condition copy == outer. Solving the equations of the resulting domain
// propagates equalities between outer variables.
func AddOuterVariablesIntoDomain(d *Domain, tr *trace.Tracer) *Transformation {
	tr = tr.Enter("AddOuterVariablesIntoDomain", zap.Stringer("domain", d))

	known := expr.VarSet(d.Variables)
	vars := slices.Clone(d.Variables)
	ranges := d.Ranges.Clone()
	outerToNew := make(map[*expr.Var]expr.Expr)
	newToOld := make(map[*expr.Var]expr.Expr)
	var conds []expr.Expr

	for _, c := range d.Conditions {
		for _, v := range expr.FreeVars(c) {
			if known[v] {
				continue
			}
			nv := v.CopyWithSuffix("Z")
			vars = append(vars, nv)
			outerToNew[v] = nv
			newToOld[nv] = v
			if r, ok := d.Ranges[v]; ok {
				ranges[nv] = r
			}
			known[v] = true
			known[nv] = true
			conds = append(conds, expr.EQ(nv, v))
		}
		conds = append(conds, expr.Substitute(c, outerToNew))
	}

	oldToNew := make(map[*expr.Var]expr.Expr, len(d.Variables))
	for _, v := range d.Variables {
		oldToNew[v] = v
		newToOld[v] = v
	}
	t := &Transformation{NewDomain: New(vars, conds, ranges), OldDomain: d, NewToOld: newToOld, OldToNew: oldToNew}
	tr.Result(t)
	return t
}
