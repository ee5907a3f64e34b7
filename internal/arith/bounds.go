package arith

import (
	"github.com/gnolang/zeroelim/internal/expr"
	"github.com/gnolang/zeroelim/internal/intmath"
)

// maxBoundRounds limits how many times variables are replaced by their
// range ends while looking for a constant bound.
const maxBoundRounds = 4

// Interval is a closed integer interval with symbolic ends. A nil end is
// unbounded.
type Interval struct {
	Min expr.Expr
	Max expr.Expr
}

// bound is the polynomial form of an Interval.
type bound struct {
	lo, hi *Poly
}

func pointBound(p Poly) bound {
	return bound{lo: &p, hi: &p}
}

func constBound(lo, hi int64) bound {
	l, h := constPoly(lo), constPoly(hi)
	return bound{lo: &l, hi: &h}
}

func (b bound) constEnds() (lo, hi int64, ok bool) {
	if b.lo == nil || b.hi == nil {
		return 0, 0, false
	}
	lo, okLo := b.lo.IsConst()
	hi, okHi := b.hi.IsConst()
	return lo, hi, okLo && okHi
}

// bounder computes bounds of expressions over the box given by ranges.
// Only the variables in subst are replaced by their range ends; every other
// variable is kept as a symbolic point.
type bounder struct {
	ranges expr.Ranges
	subst  map[*expr.Var]bool
}

func (b *bounder) polyBound(p Poly) bound {
	lo, hi := constPoly(p.konst), constPoly(p.konst)
	loOK, hiOK := true, true
	for _, t := range p.terms {
		tb := b.monoBound(t.mono)
		if t.coef > 0 {
			loOK = loOK && tb.lo != nil
			hiOK = hiOK && tb.hi != nil
			if loOK {
				lo = lo.add(tb.lo.scale(t.coef))
			}
			if hiOK {
				hi = hi.add(tb.hi.scale(t.coef))
			}
		} else {
			loOK = loOK && tb.hi != nil
			hiOK = hiOK && tb.lo != nil
			if loOK {
				lo = lo.add(tb.hi.scale(t.coef))
			}
			if hiOK {
				hi = hi.add(tb.lo.scale(t.coef))
			}
		}
	}
	var res bound
	if loOK {
		res.lo = &lo
	}
	if hiOK {
		res.hi = &hi
	}
	return res
}

func (b *bounder) monoBound(mono []expr.Expr) bound {
	if len(mono) == 1 {
		return b.atomBound(mono[0])
	}
	bounds := make([]bound, len(mono))
	allConst, allPoints := true, true
	for i, a := range mono {
		bounds[i] = b.atomBound(a)
		if _, _, ok := bounds[i].constEnds(); !ok {
			allConst = false
		}
		if bounds[i].lo == nil || bounds[i].hi == nil || !bounds[i].lo.equal(atomPoly(a)) || !bounds[i].hi.equal(atomPoly(a)) {
			allPoints = false
		}
	}
	switch {
	case allConst:
		lo, hi, _ := bounds[0].constEnds()
		for _, bd := range bounds[1:] {
			l2, h2, _ := bd.constEnds()
			c := []int64{lo * l2, lo * h2, hi * l2, hi * h2}
			lo, hi = c[0], c[0]
			for _, x := range c[1:] {
				lo, hi = min(lo, x), max(hi, x)
			}
		}
		return constBound(lo, hi)
	case allPoints:
		p := Poly{terms: []term{{coef: 1, mono: mono}}}
		return pointBound(p)
	}
	return bound{}
}

func (b *bounder) exprBound(e expr.Expr) bound {
	return b.polyBound(ToPoly(e))
}

func (b *bounder) atomBound(a expr.Expr) bound {
	switch n := a.(type) {
	case *expr.Var:
		if r, ok := b.ranges[n]; ok && b.subst[n] {
			lo := ToPoly(r.Min)
			hi := lo.add(ToPoly(r.Extent)).addConst(-1)
			return bound{lo: &lo, hi: &hi}
		}
	case expr.Binary:
		if bd, ok := b.binaryBound(n); ok {
			return bd
		}
	case expr.Select:
		return joinBounds(b.exprBound(n.True), b.exprBound(n.False))
	case expr.Call:
		if n.IsIfThenElse() && n.DType == expr.IntType {
			return joinBounds(b.exprBound(n.Args[1]), b.exprBound(n.Args[2]))
		}
	case expr.Cast:
		if n.Value.Type() == expr.BoolType {
			return constBound(0, 1)
		}
	}
	return pointBound(atomPoly(a))
}

func (b *bounder) binaryBound(n expr.Binary) (bound, bool) {
	switch n.Op {
	case expr.OpMin, expr.OpMax:
		x, y := b.exprBound(n.A), b.exprBound(n.B)
		if n.Op == expr.OpMin {
			return bound{lo: polyMin(x.lo, y.lo, true), hi: polyMin(x.hi, y.hi, false)}, true
		}
		return bound{lo: polyMax(x.lo, y.lo, false), hi: polyMax(x.hi, y.hi, true)}, true
	}
	c, ok := expr.AsInt(n.B)
	if !ok || c <= 0 {
		return bound{}, false
	}
	x := b.exprBound(n.A)
	nonneg := false
	if x.lo != nil {
		if lo, ok := x.lo.IsConst(); ok && lo >= 0 {
			nonneg = true
		}
	}
	switch n.Op {
	case expr.OpFloorDiv:
		return bound{lo: polyDiv(x.lo, c, true), hi: polyDiv(x.hi, c, true)}, true
	case expr.OpDiv:
		return bound{lo: polyDiv(x.lo, c, false), hi: polyDiv(x.hi, c, false)}, true
	case expr.OpFloorMod:
		return modBound(x, c), true
	case expr.OpMod:
		if nonneg {
			return modBound(x, c), true
		}
		if x.hi != nil {
			if hi, ok := x.hi.IsConst(); ok && hi <= 0 {
				return constBound(-(c - 1), 0), true
			}
		}
		return constBound(-(c - 1), c-1), true
	}
	return bound{}, false
}

func modBound(x bound, c int64) bound {
	if lo, hi, ok := x.constEnds(); ok {
		k := intmath.FloorDiv(lo, c)
		if k == intmath.FloorDiv(hi, c) {
			return constBound(lo-k*c, hi-k*c)
		}
	}
	return constBound(0, c-1)
}

// polyDiv divides a bound end by a positive constant. Both floor and
// truncating division are monotone, so ends map to ends.
func polyDiv(p *Poly, c int64, floor bool) *Poly {
	if p == nil {
		return nil
	}
	if c == 1 {
		return p
	}
	var r Poly
	switch v, ok := p.IsConst(); {
	case ok && floor:
		r = constPoly(intmath.FloorDiv(v, c))
	case ok:
		r = constPoly(v / c)
	case floor:
		r = atomPoly(expr.FloorDiv(p.Expr(), expr.Int(c)))
	default:
		r = atomPoly(expr.Div(p.Expr(), expr.Int(c)))
	}
	return &r
}

// polyMin returns min(p, q). For a lower end an unbounded operand makes the
// result unbounded; for an upper end the bounded operand wins.
func polyMin(p, q *Poly, lower bool) *Poly {
	if p == nil || q == nil {
		if lower {
			return nil
		}
		if p == nil {
			return q
		}
		return p
	}
	if d, ok := p.sub(*q).IsConst(); ok {
		if d <= 0 {
			return p
		}
		return q
	}
	r := atomPoly(expr.Min(p.Expr(), q.Expr()))
	return &r
}

// polyMax returns max(p, q), symmetric to polyMin.
func polyMax(p, q *Poly, upper bool) *Poly {
	if p == nil || q == nil {
		if upper {
			return nil
		}
		if p == nil {
			return q
		}
		return p
	}
	if d, ok := p.sub(*q).IsConst(); ok {
		if d >= 0 {
			return p
		}
		return q
	}
	r := atomPoly(expr.Max(p.Expr(), q.Expr()))
	return &r
}

func joinBounds(x, y bound) bound {
	return bound{lo: polyMin(x.lo, y.lo, true), hi: polyMax(x.hi, y.hi, true)}
}

// eligibleVars selects the ranged variables of p to replace in the next
// round. A variable occurring in the range of another candidate stays
// symbolic until that candidate is gone: with i in [0, n), i - n is
// bounded above by -1.
func eligibleVars(p Poly, ranges expr.Ranges) map[*expr.Var]bool {
	var cands []*expr.Var
	for _, v := range p.vars() {
		if _, ok := ranges[v]; ok {
			cands = append(cands, v)
		}
	}
	if len(cands) == 0 {
		return nil
	}
	res := make(map[*expr.Var]bool, len(cands))
	for _, v := range cands {
		outer := false
		for _, w := range cands {
			if w == v {
				continue
			}
			r := ranges[w]
			if expr.UsesAnyVar(r.Min, v) || expr.UsesAnyVar(r.Extent, v) {
				outer = true
				break
			}
		}
		if !outer {
			res[v] = true
		}
	}
	if len(res) == 0 {
		for _, v := range cands {
			res[v] = true
		}
	}
	return res
}

// upperBound returns a polynomial that is >= p everywhere in the box,
// constant whenever one can be found.
func upperBound(p Poly, ranges expr.Ranges) Poly {
	return iterateBound(p, ranges, func(b bound) *Poly { return b.hi })
}

// lowerBound returns a polynomial that is <= p everywhere in the box.
func lowerBound(p Poly, ranges expr.Ranges) Poly {
	return iterateBound(p, ranges, func(b bound) *Poly { return b.lo })
}

func iterateBound(p Poly, ranges expr.Ranges, end func(bound) *Poly) Poly {
	cur := p
	for round := 0; round < maxBoundRounds; round++ {
		if _, ok := cur.IsConst(); ok {
			break
		}
		subst := eligibleVars(cur, ranges)
		if len(subst) == 0 {
			// No ranged variables left; atoms may still have constant bounds.
			subst = map[*expr.Var]bool{}
		}
		bd := (&bounder{ranges: ranges, subst: subst}).polyBound(cur)
		next := end(bd)
		if next == nil || next.equal(cur) {
			break
		}
		cur = *next
	}
	return cur
}

// ConstBounds returns constant bounds of an integer expression over the box
// given by ranges. okLo and okHi report which ends were found.
func ConstBounds(e expr.Expr, ranges expr.Ranges) (lo, hi int64, okLo, okHi bool) {
	p := ToPoly(e)
	lo, okLo = lowerBound(p, ranges).IsConst()
	hi, okHi = upperBound(p, ranges).IsConst()
	return lo, hi, okLo, okHi
}

// EvalBounds over-approximates the values of e when every variable in
// ranges is replaced by its whole range at once. The ends are simplified;
// a nil end is unbounded.
func EvalBounds(e expr.Expr, ranges expr.Ranges) Interval {
	subst := make(map[*expr.Var]bool, len(ranges))
	for v := range ranges {
		subst[v] = true
	}
	bd := (&bounder{ranges: ranges, subst: subst}).exprBound(e)
	var res Interval
	if bd.lo != nil {
		res.Min = Simplify(bd.lo.Expr(), nil)
	}
	if bd.hi != nil {
		res.Max = Simplify(bd.hi.Expr(), nil)
	}
	return res
}

// BoundsToRange converts an interval to [Min, Max - Min + 1), or reports
// false when either end is unbounded.
func BoundsToRange(iv Interval) (expr.Range, bool) {
	if iv.Min == nil || iv.Max == nil {
		return expr.Range{}, false
	}
	ext := Simplify(expr.Add(expr.Sub(iv.Max, iv.Min), expr.Int(1)), nil)
	return expr.NewRange(iv.Min, ext), true
}
