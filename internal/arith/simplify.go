package arith

import (
	"math"

	"github.com/gnolang/zeroelim/internal/expr"
	"github.com/gnolang/zeroelim/internal/intmath"
)

// Simplifier rewrites expressions bottom-up into a canonical form using
// the ranges of the variables in scope.
//
// Integer +, -, * are put into polynomial form. Comparisons become
// P <= R or P == R with the coefficients divided by their gcd and are
// decided when the bounds of the difference allow it. Division and modulus
// by positive constants pull out divisible terms. Boolean connectives,
// select and if_then_else fold constants; reductions with a false condition
// or an empty axis collapse to the identity.
type Simplifier struct {
	ranges expr.Ranges
}

// NewSimplifier creates a simplifier over the given variable ranges.
func NewSimplifier(ranges expr.Ranges) *Simplifier {
	return &Simplifier{ranges: ranges}
}

// maxRewritePasses bounds the fixpoint iteration of Simplify.
const maxRewritePasses = 4

// Simplify substitutes variables of extent one by their minimum and then
// rewrites e until it stops changing.
func Simplify(e expr.Expr, ranges expr.Ranges) expr.Expr {
	e = substituteUnitRanges(e, ranges)
	s := NewSimplifier(ranges)
	res := s.Rewrite(e)
	for pass := 1; pass < maxRewritePasses; pass++ {
		again := s.Rewrite(res)
		if expr.Equal(again, res) {
			break
		}
		res = again
	}
	return res
}

// CanProve reports whether cond simplifies to true over ranges.
func CanProve(cond expr.Expr, ranges expr.Ranges) bool {
	return expr.IsTrue(Simplify(cond, ranges))
}

func substituteUnitRanges(e expr.Expr, ranges expr.Ranges) expr.Expr {
	var vmap map[*expr.Var]expr.Expr
	for v, r := range ranges {
		if ext, ok := expr.AsInt(r.Extent); ok && ext == 1 {
			if vmap == nil {
				vmap = make(map[*expr.Var]expr.Expr)
			}
			vmap[v] = r.Min
		}
	}
	return expr.Substitute(e, vmap)
}

// Rewrite performs one bottom-up simplification pass.
func (s *Simplifier) Rewrite(e expr.Expr) expr.Expr {
	switch n := e.(type) {
	case expr.IntImm, expr.FloatImm, expr.BoolImm, *expr.Var:
		return e
	case expr.Binary:
		return s.binary(n.Op, s.Rewrite(n.A), s.Rewrite(n.B))
	case expr.Not:
		return s.not(s.Rewrite(n.A))
	case expr.Select:
		return s.selectExpr(s.Rewrite(n.Cond), s.Rewrite(n.True), s.Rewrite(n.False))
	case expr.Cast:
		return s.cast(n.To, s.Rewrite(n.Value))
	case expr.Call:
		return s.call(n)
	case expr.Reduce:
		return s.reduce(n)
	default:
		return e
	}
}

func (s *Simplifier) binary(op expr.BinaryOp, a, b expr.Expr) expr.Expr {
	switch {
	case op.IsLogical():
		return s.logical(op, a, b)
	case op.IsComparison():
		return s.compare(op, a, b)
	}
	switch a.Type() {
	case expr.IntType:
		return s.intArith(op, a, b)
	case expr.FloatType:
		return floatArith(op, a, b)
	case expr.BoolType:
		if op == expr.OpMul {
			return s.logical(expr.OpAnd, a, b)
		}
	}
	return expr.Binary{Op: op, A: a, B: b}
}

func (s *Simplifier) intArith(op expr.BinaryOp, a, b expr.Expr) expr.Expr {
	switch op {
	case expr.OpAdd, expr.OpSub, expr.OpMul:
		return ToPoly(expr.Binary{Op: op, A: a, B: b}).Expr()
	case expr.OpDiv, expr.OpMod, expr.OpFloorDiv, expr.OpFloorMod:
		return s.divMod(op, a, b)
	case expr.OpMin, expr.OpMax:
		return s.minMax(op, a, b)
	}
	return expr.Binary{Op: op, A: a, B: b}
}

func isDiv(op expr.BinaryOp) bool {
	return op == expr.OpDiv || op == expr.OpFloorDiv
}

func (s *Simplifier) divMod(op expr.BinaryOp, a, b expr.Expr) expr.Expr {
	c, ok := expr.AsInt(b)
	if !ok || c == 0 {
		return expr.Binary{Op: op, A: a, B: b}
	}
	if av, ok := expr.AsInt(a); ok {
		switch op {
		case expr.OpDiv:
			return expr.Int(av / c)
		case expr.OpMod:
			return expr.Int(av % c)
		case expr.OpFloorDiv:
			return expr.Int(intmath.FloorDiv(av, c))
		default:
			return expr.Int(intmath.FloorMod(av, c))
		}
	}
	switch c {
	case 1:
		if isDiv(op) {
			return a
		}
		return expr.Int(0)
	case -1:
		if isDiv(op) {
			return ToPoly(a).scale(-1).Expr()
		}
		return expr.Int(0)
	}
	if c < 0 {
		return expr.Binary{Op: op, A: a, B: b}
	}
	p := ToPoly(a)
	if op == expr.OpDiv || op == expr.OpMod {
		if lo, ok := lowerBound(p, s.ranges).IsConst(); !ok || lo < 0 {
			return expr.Binary{Op: op, A: a, B: b}
		}
	}

	// p = c*q + r, with the coefficients of r in [0, c).
	var q, r Poly
	for _, t := range p.terms {
		qc := intmath.FloorDiv(t.coef, c)
		if qc != 0 {
			q.terms = append(q.terms, term{coef: qc, mono: t.mono})
		}
		if rc := t.coef - qc*c; rc != 0 {
			r.terms = append(r.terms, term{coef: rc, mono: t.mono})
		}
	}
	q.konst = intmath.FloorDiv(p.konst, c)
	r.konst = p.konst - q.konst*c

	lo, okLo := lowerBound(r, s.ranges).IsConst()
	hi, okHi := upperBound(r, s.ranges).IsConst()
	if okLo && okHi && intmath.FloorDiv(lo, c) == intmath.FloorDiv(hi, c) {
		k := intmath.FloorDiv(lo, c)
		if isDiv(op) {
			return q.addConst(k).Expr()
		}
		return r.addConst(-k * c).Expr()
	}
	if isDiv(op) {
		return q.add(atomPoly(expr.FloorDiv(r.Expr(), b))).Expr()
	}
	return expr.FloorMod(r.Expr(), b)
}

func (s *Simplifier) minMax(op expr.BinaryOp, a, b expr.Expr) expr.Expr {
	if av, ok := expr.AsInt(a); ok {
		if bv, ok := expr.AsInt(b); ok {
			if op == expr.OpMin {
				return expr.Int(min(av, bv))
			}
			return expr.Int(max(av, bv))
		}
	}
	if expr.Equal(a, b) {
		return a
	}
	d := ToPoly(a).sub(ToPoly(b))
	if hi, ok := upperBound(d, s.ranges).IsConst(); ok && hi <= 0 {
		if op == expr.OpMin {
			return a
		}
		return b
	}
	if lo, ok := lowerBound(d, s.ranges).IsConst(); ok && lo >= 0 {
		if op == expr.OpMin {
			return b
		}
		return a
	}
	if expr.Compare(a, b) > 0 {
		a, b = b, a
	}
	return expr.Binary{Op: op, A: a, B: b}
}

func floatArith(op expr.BinaryOp, a, b expr.Expr) expr.Expr {
	af, aok := a.(expr.FloatImm)
	bf, bok := b.(expr.FloatImm)
	if aok && bok {
		switch op {
		case expr.OpAdd:
			return expr.Float(af.Value + bf.Value)
		case expr.OpSub:
			return expr.Float(af.Value - bf.Value)
		case expr.OpMul:
			return expr.Float(af.Value * bf.Value)
		case expr.OpDiv:
			if bf.Value != 0 {
				return expr.Float(af.Value / bf.Value)
			}
		case expr.OpMin:
			return expr.Float(math.Min(af.Value, bf.Value))
		case expr.OpMax:
			return expr.Float(math.Max(af.Value, bf.Value))
		}
	}
	switch op {
	case expr.OpAdd:
		if expr.IsConst(a, 0) {
			return b
		}
		if expr.IsConst(b, 0) {
			return a
		}
	case expr.OpSub:
		if expr.IsConst(b, 0) {
			return a
		}
	case expr.OpMul:
		if expr.IsConst(a, 0) || expr.IsConst(b, 0) {
			return expr.Float(0)
		}
		if expr.IsConst(a, 1) {
			return b
		}
		if expr.IsConst(b, 1) {
			return a
		}
	case expr.OpDiv:
		if expr.IsConst(b, 1) {
			return a
		}
	}
	return expr.Binary{Op: op, A: a, B: b}
}

func (s *Simplifier) compare(op expr.BinaryOp, a, b expr.Expr) expr.Expr {
	switch a.Type() {
	case expr.IntType:
		return s.intCompare(op, a, b)
	case expr.FloatType:
		if af, ok := a.(expr.FloatImm); ok {
			if bf, ok := b.(expr.FloatImm); ok {
				return expr.Bool(compareFloats(op, af.Value, bf.Value))
			}
		}
	case expr.BoolType:
		if ab, ok := a.(expr.BoolImm); ok {
			if bb, ok := b.(expr.BoolImm); ok {
				switch op {
				case expr.OpEQ:
					return expr.Bool(ab.Value == bb.Value)
				case expr.OpNE:
					return expr.Bool(ab.Value != bb.Value)
				}
			}
		}
	}
	return expr.Binary{Op: op, A: a, B: b}
}

func compareFloats(op expr.BinaryOp, a, b float64) bool {
	switch op {
	case expr.OpEQ:
		return a == b
	case expr.OpNE:
		return a != b
	case expr.OpLT:
		return a < b
	case expr.OpLE:
		return a <= b
	case expr.OpGT:
		return a > b
	default:
		return a >= b
	}
}

func (s *Simplifier) intCompare(op expr.BinaryOp, a, b expr.Expr) expr.Expr {
	pa, pb := ToPoly(a), ToPoly(b)
	switch op {
	case expr.OpEQ:
		return s.eqZero(pa.sub(pb), false)
	case expr.OpNE:
		return s.eqZero(pa.sub(pb), true)
	case expr.OpLE:
		return s.leZero(pa.sub(pb))
	case expr.OpLT:
		return s.leZero(pa.sub(pb).addConst(1))
	case expr.OpGE:
		return s.leZero(pb.sub(pa))
	default:
		return s.leZero(pb.sub(pa).addConst(1))
	}
}

// leZero simplifies d <= 0.
func (s *Simplifier) leZero(d Poly) expr.Expr {
	if c, ok := d.IsConst(); ok {
		return expr.Bool(c <= 0)
	}
	if hi, ok := upperBound(d, s.ranges).IsConst(); ok && hi <= 0 {
		return expr.True
	}
	if lo, ok := lowerBound(d, s.ranges).IsConst(); ok && lo > 0 {
		return expr.False
	}
	if g := d.coefGCD(); g > 1 {
		terms := make([]term, len(d.terms))
		for i, t := range d.terms {
			terms[i] = term{coef: t.coef / g, mono: t.mono}
		}
		d = Poly{terms: terms, konst: intmath.CeilDiv(d.konst, g)}
	}
	return emitComparison(expr.OpLE, d)
}

// eqZero simplifies d == 0, or d != 0 when negate is set.
func (s *Simplifier) eqZero(d Poly, negate bool) expr.Expr {
	result := func(eq bool) expr.Expr { return expr.Bool(eq != negate) }
	if c, ok := d.IsConst(); ok {
		return result(c == 0)
	}
	if hi, ok := upperBound(d, s.ranges).IsConst(); ok && hi < 0 {
		return result(false)
	}
	if lo, ok := lowerBound(d, s.ranges).IsConst(); ok && lo > 0 {
		return result(false)
	}
	g := d.coefGCD()
	if d.konst%g != 0 {
		return result(false)
	}
	sign := int64(1)
	if d.terms[0].coef < 0 {
		sign = -1
	}
	if g != 1 || sign != 1 {
		terms := make([]term, len(d.terms))
		for i, t := range d.terms {
			terms[i] = term{coef: sign * t.coef / g, mono: t.mono}
		}
		d = Poly{terms: terms, konst: sign * d.konst / g}
	}
	if negate {
		return emitComparison(expr.OpNE, d)
	}
	return emitComparison(expr.OpEQ, d)
}

// emitComparison renders d <op> 0 as P <op> N - k, where P holds the
// positive terms of d, N the negated negative terms and k the constant.
func emitComparison(op expr.BinaryOp, d Poly) expr.Expr {
	var pos, neg Poly
	for _, t := range d.terms {
		if t.coef > 0 {
			pos.terms = append(pos.terms, t)
		} else {
			neg.terms = append(neg.terms, term{coef: -t.coef, mono: t.mono})
		}
	}
	switch {
	case len(pos.terms) == 0:
		return expr.Binary{Op: op, A: expr.Int(d.konst), B: neg.Expr()}
	case len(neg.terms) == 0:
		return expr.Binary{Op: op, A: pos.Expr(), B: expr.Int(-d.konst)}
	}
	return expr.Binary{Op: op, A: pos.Expr(), B: neg.addConst(-d.konst).Expr()}
}

func negateComparison(op expr.BinaryOp) expr.BinaryOp {
	switch op {
	case expr.OpEQ:
		return expr.OpNE
	case expr.OpNE:
		return expr.OpEQ
	case expr.OpLT:
		return expr.OpGE
	case expr.OpLE:
		return expr.OpGT
	case expr.OpGT:
		return expr.OpLE
	default:
		return expr.OpLT
	}
}

func (s *Simplifier) not(a expr.Expr) expr.Expr {
	switch n := a.(type) {
	case expr.BoolImm:
		return expr.Bool(!n.Value)
	case expr.Not:
		return n.A
	case expr.Binary:
		if n.Op.IsComparison() && n.A.Type() == expr.IntType {
			return s.intCompare(negateComparison(n.Op), n.A, n.B)
		}
	}
	return expr.Not{A: a}
}

func flatten(op expr.BinaryOp, e expr.Expr, out []expr.Expr) []expr.Expr {
	if b, ok := e.(expr.Binary); ok && b.Op == op {
		out = flatten(op, b.A, out)
		return flatten(op, b.B, out)
	}
	return append(out, e)
}

func (s *Simplifier) logical(op expr.BinaryOp, a, b expr.Expr) expr.Expr {
	absorbing, neutral := expr.IsFalse, expr.IsTrue
	if op == expr.OpOr {
		absorbing, neutral = expr.IsTrue, expr.IsFalse
	}
	var parts []expr.Expr
	for _, p := range flatten(op, b, flatten(op, a, nil)) {
		if absorbing(p) {
			return p
		}
		if neutral(p) {
			continue
		}
		dup := false
		for _, q := range parts {
			if expr.Equal(p, q) {
				dup = true
				break
			}
		}
		if !dup {
			parts = append(parts, p)
		}
	}
	for i, p := range parts {
		np := s.not(p)
		for _, q := range parts[i+1:] {
			if expr.Equal(np, q) {
				return expr.Bool(op == expr.OpOr)
			}
		}
	}
	if len(parts) == 0 {
		return expr.Bool(op == expr.OpAnd)
	}
	res := parts[0]
	for _, p := range parts[1:] {
		res = expr.Binary{Op: op, A: res, B: p}
	}
	return res
}

func (s *Simplifier) selectExpr(c, t, f expr.Expr) expr.Expr {
	switch {
	case expr.IsTrue(c):
		return t
	case expr.IsFalse(c):
		return f
	case expr.Equal(t, f):
		return t
	case expr.IsTrue(t) && expr.IsFalse(f):
		return c
	case expr.IsFalse(t) && expr.IsTrue(f):
		return s.not(c)
	}
	return expr.Select{Cond: c, True: t, False: f}
}

func (s *Simplifier) cast(to expr.DType, v expr.Expr) expr.Expr {
	if v.Type() == to {
		return v
	}
	switch n := v.(type) {
	case expr.IntImm:
		return expr.MakeConst(to, n.Value)
	case expr.BoolImm:
		if n.Value {
			return expr.MakeConst(to, 1)
		}
		return expr.MakeZero(to)
	case expr.FloatImm:
		switch to {
		case expr.IntType:
			return expr.Int(int64(n.Value))
		case expr.BoolType:
			return expr.Bool(n.Value != 0)
		}
	}
	return expr.Cast{To: to, Value: v}
}

func (s *Simplifier) call(n expr.Call) expr.Expr {
	args := make([]expr.Expr, len(n.Args))
	for i, a := range n.Args {
		args[i] = s.Rewrite(a)
	}
	n.Args = args
	if n.IsIfThenElse() {
		switch {
		case expr.IsTrue(args[0]):
			return args[1]
		case expr.IsFalse(args[0]):
			return args[2]
		case expr.Equal(args[1], args[2]):
			return args[1]
		}
	}
	return n
}

func (s *Simplifier) reduce(n expr.Reduce) expr.Expr {
	vmap := make(map[*expr.Var]expr.Expr)
	var axis []expr.IterVar
	for _, iv := range n.Axis {
		dom := expr.Range{Min: s.Rewrite(iv.Dom.Min), Extent: s.Rewrite(iv.Dom.Extent)}
		if ext, ok := expr.AsInt(dom.Extent); ok {
			if ext <= 0 {
				return s.Rewrite(n.Combiner.Identity[n.ValueIndex])
			}
			if ext == 1 {
				vmap[iv.Var] = dom.Min
				continue
			}
		}
		axis = append(axis, expr.IterVar{Var: iv.Var, Dom: dom})
	}
	inner := NewSimplifier(s.ranges.Merge(expr.IterVarsToRanges(axis)))
	cond := inner.Rewrite(expr.Substitute(n.Condition, vmap))
	if expr.IsFalse(cond) {
		return s.Rewrite(n.Combiner.Identity[n.ValueIndex])
	}
	src := make([]expr.Expr, len(n.Source))
	for i, e := range n.Source {
		src[i] = inner.Rewrite(expr.Substitute(e, vmap))
	}
	if len(axis) == 0 {
		res := n.Combiner.Combine(n.Combiner.Identity, src)[n.ValueIndex]
		if !expr.IsTrue(cond) {
			res = expr.Select{Cond: cond, True: res, False: n.Combiner.Identity[n.ValueIndex]}
		}
		return s.Rewrite(res)
	}
	return expr.Reduce{Combiner: n.Combiner, Source: src, Axis: axis, Condition: cond, ValueIndex: n.ValueIndex}
}
