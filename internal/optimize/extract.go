package optimize

import (
	"go.uber.org/zap"

	"github.com/gnolang/zeroelim/internal/arith"
	"github.com/gnolang/zeroelim/internal/domain"
	"github.com/gnolang/zeroelim/internal/expr"
	"github.com/gnolang/zeroelim/internal/formula"
	"github.com/gnolang/zeroelim/internal/trace"
)

const (
	extractedTensorName    = "extracted_tensor"
	extractedReductionName = "extracted_reduction"
)

// ExtractAsTensorMaybe moves e into a separate tensor when that shrinks
// the iteration space. The domain of outerAxis restricted by cond is
// simplified first; e is rewritten over the new variables and only those
// it still uses become the axis of the new tensor. Extraction is skipped
// when e then uses no variables (the simplified e is returned), when e is
// already a tensor read, or when the old volume is provably not greater
// than the new one. In the last two cases e is returned unchanged.
func ExtractAsTensorMaybe(e, cond expr.Expr, outerAxis []*expr.Var, ranges expr.Ranges, opts domain.Options) (expr.Expr, error) {
	tr := opts.Tracer.Enter("ExtractAsTensorMaybe", zap.Stringer("expr", e), zap.Stringer("cond", cond), trace.Exprs("outer_axis", outerAxis))
	opts.Tracer = tr

	res, err := domain.SimplifyDomain(domain.FromCondition(outerAxis, cond, ranges), opts)
	if err != nil {
		return nil, err
	}
	nd := res.NewDomain
	newExpr := arith.Simplify(expr.Substitute(e, res.OldToNew), nd.Ranges)
	// if_then_else conditions are not simplified otherwise.
	newExpr = formula.RemoveRedundantInequalities(newExpr, nd.Conditions)

	var used []*expr.Var
	for _, v := range nd.Variables {
		if expr.UsesAnyVar(newExpr, v) {
			used = append(used, v)
		}
	}
	if len(used) == 0 {
		tr.Result(newExpr)
		return newExpr, nil
	}
	if c, ok := newExpr.(expr.Call); ok && c.Kind == expr.CallTensor {
		tr.Log("already a tensor read")
		return e, nil
	}

	oldVolume := expr.Int(1)
	for _, v := range outerAxis {
		r, ok := ranges[v]
		if !ok {
			tr.Warn("outer variable without range", zap.Stringer("var", v))
			return e, nil
		}
		oldVolume = expr.Mul(oldVolume, r.Extent)
	}
	newVolume := expr.Int(1)
	axis := make([]expr.IterVar, len(used))
	args := make([]expr.Expr, len(used))
	for i, v := range used {
		r, ok := nd.Ranges[v]
		if !ok {
			tr.Warn("new variable without range", zap.Stringer("var", v))
			return e, nil
		}
		newVolume = expr.Mul(newVolume, r.Extent)
		axis[i] = expr.IterVar{Var: v, Dom: r}
		args[i] = res.NewToOld[v]
	}
	if arith.CanProve(expr.LE(oldVolume, newVolume), ranges) {
		tr.Log("extraction does not pay off", zap.Stringer("old_volume", oldVolume), zap.Stringer("new_volume", newVolume))
		return e, nil
	}

	t := expr.NewTensor(extractedTensorName, axis, newExpr)
	out := t.Index(args...)
	tr.Result(out)
	return out, nil
}

type reductionExtractor struct {
	outer  []*expr.Var
	ranges expr.Ranges
	tracer *trace.Tracer
}

func (x *reductionExtractor) rewrite(e expr.Expr) expr.Expr {
	red, ok := e.(expr.Reduce)
	if !ok {
		return expr.MapChildren(e, x.rewrite)
	}

	inner := &reductionExtractor{
		outer:  append(expr.AxisVars(red.Axis), x.outer...),
		ranges: x.ranges.Merge(expr.IterVarsToRanges(red.Axis)),
		tracer: x.tracer,
	}
	src := make([]expr.Expr, len(red.Source))
	for i, s := range red.Source {
		src[i] = inner.rewrite(s)
	}
	red = expr.Reduce{Combiner: red.Combiner, Source: src, Axis: red.Axis, Condition: red.Condition, ValueIndex: red.ValueIndex}

	free := expr.VarSet(expr.FreeVars(red))
	var (
		args []expr.Expr
		axis []expr.IterVar
	)
	vmap := make(map[*expr.Var]expr.Expr)
	for _, v := range x.outer {
		if !free[v] {
			continue
		}
		r, ok := x.ranges[v]
		if !ok {
			x.tracer.Warn("reduction depends on a variable without range", zap.Stringer("var", v))
			return red
		}
		nv := v.CopyWithSuffix("")
		vmap[v] = nv
		axis = append(axis, expr.IterVar{Var: nv, Dom: r})
		args = append(args, v)
	}
	body := arith.Simplify(expr.Substitute(red, vmap), expr.IterVarsToRanges(axis))
	return expr.NewTensor(extractedReductionName, axis, body).Index(args...)
}

// ExtractReductions replaces every reduction in e by a read of a new
// tensor computing it. The axis of the new tensor consists of the
// variables of outerAxis, and of the enclosing reductions, the reduction
// depends on.
func ExtractReductions(e expr.Expr, outerAxis []*expr.Var, ranges expr.Ranges, tr *trace.Tracer) expr.Expr {
	tr = tr.Enter("ExtractReductions", zap.Stringer("expr", e), trace.Exprs("outer_axis", outerAxis))
	out := (&reductionExtractor{outer: outerAxis, ranges: ranges, tracer: tr}).rewrite(e)
	tr.Result(out)
	return out
}

// ExtractNonTopReductions is ExtractReductions that keeps a reduction at
// the top of e in place and only extracts the ones nested in it.
func ExtractNonTopReductions(e expr.Expr, outerAxis []*expr.Var, ranges expr.Ranges, tr *trace.Tracer) expr.Expr {
	red, ok := e.(expr.Reduce)
	if !ok {
		return ExtractReductions(e, outerAxis, ranges, tr)
	}
	outer := append(expr.AxisVars(red.Axis), outerAxis...)
	inner := ranges.Merge(expr.IterVarsToRanges(red.Axis))
	src := make([]expr.Expr, len(red.Source))
	for i, s := range red.Source {
		src[i] = ExtractReductions(s, outer, inner, tr)
	}
	return expr.Reduce{
		Combiner:   red.Combiner,
		Source:     src,
		Axis:       red.Axis,
		Condition:  ExtractReductions(red.Condition, outer, inner, tr),
		ValueIndex: red.ValueIndex,
	}
}

// LiftConditionsThroughReduction splits the condition of a reduction into
// an outer part that does not depend on the reduction variables and an
// inner part. The atomic formulas are first run through Fourier-Motzkin
// elimination with the reduction variables eliminated first, which exposes
// the consequences of cond for the outer variables alone.
func LiftConditionsThroughReduction(cond expr.Expr, redAxis, outerAxis []expr.IterVar, tr *trace.Tracer) (outer, inner expr.Expr, err error) {
	tr = tr.Enter("LiftConditionsThroughReduction", zap.Stringer("cond", cond), trace.Exprs("red_axis", redAxis), trace.Exprs("outer_axis", outerAxis))

	f := formula.FactorOutAtomicFormulas(cond)
	vars := append(expr.AxisVars(redAxis), expr.AxisVars(outerAxis)...)
	ranges := expr.IterVarsToRanges(redAxis).Merge(expr.IterVarsToRanges(outerAxis))
	solved, err := domain.SolveSystemOfInequalities(f.AtomicSlice(), vars, ranges, tr)
	if err != nil {
		return nil, nil, err
	}
	rewritten := expr.And(expr.All(solved.AsConditions()...), f.Rest)

	outer, inner = formula.ImplicationNotContainingVars(rewritten, expr.VarSet(expr.AxisVars(redAxis)))
	tr.Log("lifted", zap.Stringer("outer", outer), zap.Stringer("inner", inner))
	return outer, inner, nil
}
