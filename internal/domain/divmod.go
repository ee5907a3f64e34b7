package domain

import (
	"cmp"
	"fmt"

	"go.uber.org/zap"

	"github.com/gnolang/zeroelim/internal/arith"
	"github.com/gnolang/zeroelim/internal/expr"
	"github.com/gnolang/zeroelim/internal/trace"
)

// DivModResult is the outcome of EliminateDivMod. Expr uses the new
// variables in place of the quotients and remainders; Conditions define
// them; Substitution expresses each of them over the original variables.
type DivModResult struct {
	Expr         expr.Expr
	NewVariables []*expr.Var
	Conditions   []expr.Expr
	Substitution map[*expr.Var]expr.Expr
	Ranges       expr.Ranges
}

type divKey struct {
	floor bool
	a     expr.Expr
	c     int64
}

func compareDivKeys(x, y divKey) int {
	if x.floor != y.floor {
		if !x.floor {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(x.c, y.c); c != 0 {
		return c
	}
	return expr.Compare(x.a, y.a)
}

type divPair struct {
	div, mod *expr.Var
}

// divModEliminator owns the state of a single EliminateDivMod call.
type divModEliminator struct {
	res    DivModResult
	idx    int
	known  []divEntry
	tracer *trace.Tracer
}

type divEntry struct {
	key  divKey
	pair divPair
}

func (el *divModEliminator) lookup(k divKey) (divPair, bool) {
	for _, ent := range el.known {
		if compareDivKeys(k, ent.key) == 0 {
			return ent.pair, true
		}
	}
	return divPair{}, false
}

func (el *divModEliminator) remember(k divKey, p divPair) {
	el.known = append(el.known, divEntry{key: k, pair: p})
}

// EliminateDivMod replaces every a / c and a % c with a constant nonzero c
// by a fresh quotient and remainder variable defined by a == q*c + r.
// Syntactically equal divisions share their variables. A division whose
// quotient or remainder cannot be bounded over ranges is kept.
func EliminateDivMod(e expr.Expr, ranges expr.Ranges, tr *trace.Tracer) DivModResult {
	el := &divModEliminator{
		res: DivModResult{
			Substitution: make(map[*expr.Var]expr.Expr),
			Ranges:       ranges.Clone(),
		},
		tracer: tr,
	}
	el.res.Expr = el.rewrite(e)
	return el.res
}

func (el *divModEliminator) rewrite(e expr.Expr) expr.Expr {
	n, ok := e.(expr.Binary)
	if !ok {
		return expr.MapChildren(e, el.rewrite)
	}
	c, isConst := expr.AsInt(n.B)
	switch n.Op {
	case expr.OpDiv, expr.OpMod, expr.OpFloorDiv, expr.OpFloorMod:
		if !isConst || c == 0 {
			return expr.Binary{Op: n.Op, A: el.rewrite(n.A), B: el.rewrite(n.B)}
		}
	default:
		return expr.MapChildren(e, el.rewrite)
	}

	zero := expr.MakeZero(n.Type())
	if c < 0 {
		pos := expr.Int(-c)
		switch n.Op {
		case expr.OpDiv:
			// a / -c == -(a / c) when truncating.
			return expr.Sub(zero, el.rewrite(expr.Div(n.A, pos)))
		case expr.OpMod:
			// a % -c == a % c when truncating.
			return el.rewrite(expr.Mod(n.A, pos))
		case expr.OpFloorDiv:
			return el.rewrite(expr.FloorDiv(expr.Sub(zero, n.A), pos))
		default:
			return el.rewrite(expr.Sub(zero, expr.FloorMod(expr.Sub(zero, n.A), pos)))
		}
	}

	floor := n.Op == expr.OpFloorDiv || n.Op == expr.OpFloorMod
	wantDiv := n.Op == expr.OpDiv || n.Op == expr.OpFloorDiv
	pick := func(p divPair) expr.Expr {
		if wantDiv {
			return p.div
		}
		return p.mod
	}

	if p, ok := el.lookup(divKey{floor: floor, a: n.A, c: c}); ok {
		return pick(p)
	}
	mut := el.rewrite(n.A)
	if p, ok := el.newPair(n.A, mut, c, floor); ok {
		return pick(p)
	}
	return expr.Binary{Op: n.Op, A: mut, B: n.B}
}

func divImpl(a expr.Expr, c int64, floor bool) expr.Expr {
	if floor {
		return expr.FloorDiv(a, expr.Int(c))
	}
	return expr.Div(a, expr.Int(c))
}

func modImpl(a expr.Expr, c int64, floor bool) expr.Expr {
	if floor {
		return expr.FloorMod(a, expr.Int(c))
	}
	return expr.Mod(a, expr.Int(c))
}

func (el *divModEliminator) newPair(orig, mut expr.Expr, c int64, floor bool) (divPair, bool) {
	if !expr.Equal(orig, mut) {
		if p, ok := el.lookup(divKey{floor: floor, a: mut, c: c}); ok {
			return p, true
		}
	}

	el.idx++
	divRange, okDiv := arith.BoundsToRange(arith.EvalBounds(divImpl(mut, c, floor), el.res.Ranges))
	modRange, okMod := arith.BoundsToRange(arith.EvalBounds(modImpl(mut, c, floor), el.res.Ranges))
	if !okDiv || !okMod {
		el.tracer.Warn("division kept because its bounds cannot be inferred",
			zap.Stringer("expr", divImpl(orig, c, floor)))
		return divPair{}, false
	}

	prefix := "t"
	if floor {
		prefix = "f"
	}
	p := divPair{
		div: expr.IntVar(fmt.Sprintf("%sdiv%d", prefix, el.idx)),
		mod: expr.IntVar(fmt.Sprintf("%smod%d", prefix, el.idx)),
	}
	el.res.NewVariables = append(el.res.NewVariables, p.div, p.mod)

	// mut may mention variables introduced earlier.
	old := expr.Substitute(mut, el.res.Substitution)
	el.res.Substitution[p.div] = divImpl(old, c, floor)
	el.res.Substitution[p.mod] = modImpl(old, c, floor)
	el.res.Ranges[p.div] = divRange
	el.res.Ranges[p.mod] = modRange

	el.res.Conditions = append(el.res.Conditions,
		expr.EQ(mut, expr.Add(expr.Mul(p.div, expr.Int(c)), p.mod)))

	if !arith.CanProve(expr.LE(modRange.Extent, expr.Int(c)), nil) {
		// The remainder is not unique when a may change sign.
		el.tracer.Warn("remainder may change sign",
			zap.Stringer("expr", modImpl(orig, c, floor)))
		el.res.Conditions = append(el.res.Conditions, expr.NewSelect(
			expr.GE(mut, expr.Int(0)),
			expr.GE(p.mod, expr.Int(0)),
			expr.LE(p.mod, expr.Int(0)),
		))
	}

	el.remember(divKey{floor: floor, a: orig, c: c}, p)
	if !expr.Equal(orig, mut) {
		el.remember(divKey{floor: floor, a: mut, c: c}, p)
	}
	return p, true
}

// EliminateDivModFromDomainConditions applies EliminateDivMod to the
// conditions of d. The new variables are appended to the domain variables.
func EliminateDivModFromDomainConditions(d *Domain, tr *trace.Tracer) *Transformation {
	tr = tr.Enter("EliminateDivModFromDomainConditions", zap.Stringer("domain", d))
	res := EliminateDivMod(d.Condition(), d.Ranges, tr)

	vars := append(append([]*expr.Var(nil), d.Variables...), res.NewVariables...)
	cond := expr.All(append([]expr.Expr{res.Expr}, res.Conditions...)...)
	newDomain := FromCondition(vars, cond, res.Ranges)

	oldToNew := make(map[*expr.Var]expr.Expr, len(d.Variables))
	newToOld := make(map[*expr.Var]expr.Expr, len(res.Substitution)+len(d.Variables))
	for v, e := range res.Substitution {
		newToOld[v] = e
	}
	for _, v := range d.Variables {
		oldToNew[v] = v
		newToOld[v] = v
	}
	t := &Transformation{NewDomain: newDomain, OldDomain: d, NewToOld: newToOld, OldToNew: oldToNew}
	tr.Result(t)
	return t
}

// EliminateDivModFromReductionCondition applies EliminateDivMod to the
// condition of a reduction and adds the new variables to its axis. Other
// expressions are returned unchanged.
func EliminateDivModFromReductionCondition(e expr.Expr, ranges expr.Ranges, tr *trace.Tracer) expr.Expr {
	red, ok := e.(expr.Reduce)
	if !ok {
		return e
	}
	tr = tr.Enter("EliminateDivModFromReductionCondition", zap.Stringer("expr", e))
	res := EliminateDivMod(red.Condition, ranges.Merge(expr.IterVarsToRanges(red.Axis)), tr)

	axis := append([]expr.IterVar(nil), red.Axis...)
	for _, v := range res.NewVariables {
		axis = append(axis, expr.IterVar{Var: v, Dom: res.Ranges[v]})
	}
	cond := expr.All(append([]expr.Expr{res.Expr}, res.Conditions...)...)
	out := expr.Reduce{Combiner: red.Combiner, Source: red.Source, Axis: axis, Condition: cond, ValueIndex: red.ValueIndex}
	tr.Result(out)
	return out
}
