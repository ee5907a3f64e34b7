package arith

import (
	"cmp"
	"slices"

	"github.com/gnolang/zeroelim/internal/expr"
	"github.com/gnolang/zeroelim/internal/intmath"
)

// maxProductTerms caps the expansion of products of sums.
const maxProductTerms = 64

// term is coef * mono[0] * mono[1] * ..., where mono is sorted by
// expr.Compare and never empty.
type term struct {
	coef int64
	mono []expr.Expr
}

// Poly is the canonical form of an integer expression: a sum of integer
// multiples of monomials over opaque atoms, plus a constant.
type Poly struct {
	terms []term
	konst int64
}

func constPoly(c int64) Poly {
	return Poly{konst: c}
}

func atomPoly(e expr.Expr) Poly {
	return Poly{terms: []term{{coef: 1, mono: []expr.Expr{e}}}}
}

func compareMono(a, b []expr.Expr) int {
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}
	return expr.CompareSlices(a, b)
}

func normalizeTerms(terms []term) []term {
	slices.SortStableFunc(terms, func(a, b term) int { return compareMono(a.mono, b.mono) })
	res := terms[:0:0]
	for _, t := range terms {
		if n := len(res); n > 0 && compareMono(res[n-1].mono, t.mono) == 0 {
			res[n-1].coef += t.coef
			continue
		}
		res = append(res, t)
	}
	return slices.DeleteFunc(res, func(t term) bool { return t.coef == 0 })
}

// IsConst reports whether p has no variable part.
func (p Poly) IsConst() (int64, bool) {
	return p.konst, len(p.terms) == 0
}

// Const returns the constant part.
func (p Poly) Const() int64 {
	return p.konst
}

func (p Poly) add(q Poly) Poly {
	terms := make([]term, 0, len(p.terms)+len(q.terms))
	terms = append(terms, p.terms...)
	terms = append(terms, q.terms...)
	return Poly{terms: normalizeTerms(terms), konst: p.konst + q.konst}
}

func (p Poly) addConst(c int64) Poly {
	return Poly{terms: p.terms, konst: p.konst + c}
}

func (p Poly) scale(c int64) Poly {
	if c == 0 {
		return Poly{}
	}
	terms := make([]term, len(p.terms))
	for i, t := range p.terms {
		terms[i] = term{coef: t.coef * c, mono: t.mono}
	}
	return Poly{terms: terms, konst: p.konst * c}
}

func (p Poly) sub(q Poly) Poly {
	return p.add(q.scale(-1))
}

func (p Poly) withConst(terms []term) []term {
	if p.konst != 0 {
		return append(slices.Clone(terms), term{coef: p.konst})
	}
	return terms
}

func (p Poly) mul(q Poly) (Poly, bool) {
	if c, ok := p.IsConst(); ok {
		return q.scale(c), true
	}
	if c, ok := q.IsConst(); ok {
		return p.scale(c), true
	}
	pt, qt := p.withConst(p.terms), q.withConst(q.terms)
	if len(pt)*len(qt) > maxProductTerms {
		return Poly{}, false
	}
	var res Poly
	var terms []term
	for _, a := range pt {
		for _, b := range qt {
			mono := append(slices.Clone(a.mono), b.mono...)
			if len(mono) == 0 {
				res.konst += a.coef * b.coef
				continue
			}
			slices.SortFunc(mono, expr.Compare)
			terms = append(terms, term{coef: a.coef * b.coef, mono: mono})
		}
	}
	res.terms = normalizeTerms(terms)
	return res, true
}

// coefGCD returns the gcd of the non-constant coefficients.
func (p Poly) coefGCD() int64 {
	var g int64
	for _, t := range p.terms {
		g = intmath.GCD(g, t.coef)
	}
	return g
}

func (p Poly) equal(q Poly) bool {
	if p.konst != q.konst || len(p.terms) != len(q.terms) {
		return false
	}
	for i := range p.terms {
		if p.terms[i].coef != q.terms[i].coef || compareMono(p.terms[i].mono, q.terms[i].mono) != 0 {
			return false
		}
	}
	return true
}

// vars returns the variables occurring anywhere in p.
func (p Poly) vars() []*expr.Var {
	var res []*expr.Var
	seen := make(map[*expr.Var]bool)
	for _, t := range p.terms {
		for _, a := range t.mono {
			for _, v := range expr.FreeVars(a) {
				if !seen[v] {
					seen[v] = true
					res = append(res, v)
				}
			}
		}
	}
	return res
}

// ToPoly converts an integer expression to canonical form. Anything
// other than +, -, * and integer casts becomes an opaque atom.
func ToPoly(e expr.Expr) Poly {
	switch n := e.(type) {
	case expr.IntImm:
		return constPoly(n.Value)
	case expr.Binary:
		switch n.Op {
		case expr.OpAdd:
			return ToPoly(n.A).add(ToPoly(n.B))
		case expr.OpSub:
			return ToPoly(n.A).sub(ToPoly(n.B))
		case expr.OpMul:
			if p, ok := ToPoly(n.A).mul(ToPoly(n.B)); ok {
				return p
			}
		}
	case expr.Cast:
		if n.To == expr.IntType && n.Value.Type() == expr.IntType {
			return ToPoly(n.Value)
		}
	}
	return atomPoly(e)
}

func monoExpr(mono []expr.Expr) expr.Expr {
	res := mono[0]
	for _, a := range mono[1:] {
		res = expr.Mul(res, a)
	}
	return res
}

func termExpr(coef int64, mono []expr.Expr) expr.Expr {
	m := monoExpr(mono)
	if coef == 1 {
		return m
	}
	return expr.Mul(m, expr.Int(coef))
}

// Expr converts p back into an expression. Positive terms come first,
// negative terms are subtracted, and the constant goes last.
func (p Poly) Expr() expr.Expr {
	var res expr.Expr
	for _, t := range p.terms {
		if t.coef > 0 {
			res = addTo(res, termExpr(t.coef, t.mono))
		}
	}
	for _, t := range p.terms {
		if t.coef > 0 {
			continue
		}
		if res == nil {
			res = termExpr(t.coef, t.mono)
			continue
		}
		res = expr.Sub(res, termExpr(-t.coef, t.mono))
	}
	switch {
	case res == nil:
		return expr.Int(p.konst)
	case p.konst > 0:
		return expr.Add(res, expr.Int(p.konst))
	case p.konst < 0:
		return expr.Sub(res, expr.Int(-p.konst))
	}
	return res
}

func addTo(acc, e expr.Expr) expr.Expr {
	if acc == nil {
		return e
	}
	return expr.Add(acc, e)
}

func (p Poly) String() string {
	return p.Expr().String()
}
