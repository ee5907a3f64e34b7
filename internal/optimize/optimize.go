// Package optimize rewrites tensor bodies so that reductions only iterate
// over the points where their terms may be nonzero.
package optimize

import (
	"slices"

	"go.uber.org/zap"

	"github.com/gnolang/zeroelim/internal/arith"
	"github.com/gnolang/zeroelim/internal/domain"
	"github.com/gnolang/zeroelim/internal/expr"
	"github.com/gnolang/zeroelim/internal/formula"
	"github.com/gnolang/zeroelim/internal/nonzero"
	"github.com/gnolang/zeroelim/internal/trace"
)

// OptimizeAndLiftNonzeronessConditions rewrites every body of t with
// OptimizeExpr over the axis of t. ranges holds the ranges of variables
// outside of t, such as symbolic shapes.
func OptimizeAndLiftNonzeronessConditions(t *expr.Tensor, ranges expr.Ranges, opts domain.Options) (*expr.Tensor, error) {
	tr := opts.Tracer.Enter("OptimizeAndLiftNonzeronessConditions", zap.String("tensor", t.Name))
	opts.Tracer = tr
	out, err := transformBody(t, func(body expr.Expr, axis []expr.IterVar) (expr.Expr, error) {
		return OptimizeExpr(body, axis, ranges, opts)
	})
	if err != nil {
		return nil, err
	}
	tr.Result(out)
	return out, nil
}

// OptimizeExpr rewrites e, evaluated at every point of axis, as
// select(outer condition, e', 0) where the reductions of e' are restricted
// to the points where their terms may be nonzero.
//
// A reduction whose combiner lets zeros be dropped gets the nonzeroness
// condition of its source as part of its own condition, its domain is
// simplified and the part of the condition independent of the reduction
// variables is moved outside. Other reductions only get their domain
// simplified. Finally nested reductions are extracted into tensors.
func OptimizeExpr(e expr.Expr, axis []expr.IterVar, ranges expr.Ranges, opts domain.Options) (expr.Expr, error) {
	tr := opts.Tracer.Enter("OptimizeExpr", zap.Stringer("expr", e), trace.Exprs("axis", axis))
	opts.Tracer = tr

	combined := ranges.Merge(expr.IterVarsToRanges(axis))
	outerVars := expr.AxisVars(axis)
	e = arith.Simplify(e, combined)

	var res expr.Expr
	if red, ok := e.(expr.Reduce); ok {
		isSum := IsSumCombiner(red.Combiner, ranges)
		if !isSum && !CanFactorZeroFromCombiner(red.Combiner, red.ValueIndex, ranges) {
			out, err := domain.SimplifyReductionDomain(e, combined, opts)
			if err != nil {
				return nil, err
			}
			tr.Result(out)
			return out, nil
		}

		cond := red.Condition
		src := slices.Clone(red.Source)
		if isSum {
			nz := nonzero.Condition(src[red.ValueIndex])
			cond = expr.And(nz.Cond, cond)
			src[red.ValueIndex] = nz.Value
		}
		simplified, err := domain.SimplifyReductionDomain(expr.Reduce{
			Combiner:   red.Combiner,
			Source:     src,
			Axis:       red.Axis,
			Condition:  cond,
			ValueIndex: red.ValueIndex,
		}, combined, opts)
		if err != nil {
			return nil, err
		}
		red, ok = simplified.(expr.Reduce)
		if !ok {
			tr.Log("reduction disappeared", zap.Stringer("expr", simplified))
			return OptimizeExpr(simplified, axis, ranges, opts)
		}

		outerCond, innerCond, err := LiftConditionsThroughReduction(red.Condition, red.Axis, axis, tr)
		if err != nil {
			return nil, err
		}
		src = slices.Clone(red.Source)
		if !isSum {
			nz := nonzero.Condition(red.Source[red.ValueIndex])
			outerNZ, nzCond, err := LiftConditionsThroughReduction(expr.And(innerCond, nz.Cond), red.Axis, axis, tr)
			if err != nil {
				return nil, err
			}
			outerCond = expr.And(outerCond, outerNZ)
			src[red.ValueIndex] = expr.SelectElseZero(nzCond, nz.Value)
		}

		extracted, err := ExtractAsTensorMaybe(expr.Reduce{
			Combiner:   red.Combiner,
			Source:     src,
			Axis:       red.Axis,
			Condition:  innerCond,
			ValueIndex: red.ValueIndex,
		}, outerCond, outerVars, combined, opts)
		if err != nil {
			return nil, err
		}
		res = expr.SelectElseZero(outerCond, extracted)
	} else {
		nz := nonzero.Condition(e)
		extracted, err := ExtractAsTensorMaybe(nz.Value, nz.Cond, outerVars, combined, opts)
		if err != nil {
			return nil, err
		}
		res = expr.SelectElseZero(nz.Cond, extracted)
	}

	// Propagates equalities such as i % 3 == 0 that Simplify cannot use.
	res = formula.RemoveRedundantInequalities(res, formula.RangeConditions(axis))
	// ExtractAsTensorMaybe may have kept reductions below the top.
	res = arith.Simplify(ExtractNonTopReductions(res, outerVars, combined, tr), combined)
	tr.Result(res)
	return res, nil
}
