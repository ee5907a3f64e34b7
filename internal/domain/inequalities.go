package domain

import (
	"slices"
	"strings"

	set "github.com/hashicorp/go-set/v3"
	"go.uber.org/zap"

	"github.com/gnolang/zeroelim/internal/arith"
	"github.com/gnolang/zeroelim/internal/expr"
	"github.com/gnolang/zeroelim/internal/formula"
	"github.com/gnolang/zeroelim/internal/intmath"
	"github.com/gnolang/zeroelim/internal/trace"
)

// VarBounds holds the bounds found for one variable v. With c = Coef they
// read c*v == e for e in Equal, c*v >= e for e in Lower and c*v <= e for e
// in Upper. Bounds only mention variables eliminated after v.
type VarBounds struct {
	Coef  int64
	Equal []expr.Expr
	Lower []expr.Expr
	Upper []expr.Expr
}

// Substitute applies m to every bound.
func (b *VarBounds) Substitute(m map[*expr.Var]expr.Expr) *VarBounds {
	apply := func(list []expr.Expr) []expr.Expr {
		res := make([]expr.Expr, len(list))
		for i, e := range list {
			res[i] = expr.Substitute(e, m)
		}
		return res
	}
	return &VarBounds{Coef: b.Coef, Equal: apply(b.Equal), Lower: apply(b.Lower), Upper: apply(b.Upper)}
}

// InequalitiesResult is a system rewritten by SolveSystemOfInequalities.
// OtherConditions hold what could not be attributed to a variable; it is
// [false] when a contradiction was found.
type InequalitiesResult struct {
	Variables       []*expr.Var
	Bounds          map[*expr.Var]*VarBounds
	OtherConditions []expr.Expr
}

// AsConditions turns the result back into a list of conditions equivalent
// to the original system.
func (r InequalitiesResult) AsConditions() []expr.Expr {
	var res []expr.Expr
	for _, v := range r.Variables {
		b, ok := r.Bounds[v]
		if !ok {
			continue
		}
		var lhs expr.Expr = v
		if b.Coef != 1 {
			lhs = expr.Mul(expr.Int(b.Coef), v)
		}
		for _, e := range b.Equal {
			res = append(res, expr.EQ(lhs, e))
		}
		for _, e := range b.Lower {
			res = append(res, expr.GE(lhs, e))
		}
		for _, e := range b.Upper {
			res = append(res, expr.LE(lhs, e))
		}
	}
	return append(res, r.OtherConditions...)
}

func (r InequalitiesResult) String() string {
	conds := r.AsConditions()
	parts := make([]string, len(conds))
	for i, c := range conds {
		parts[i] = c.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Limits on the Fourier-Motzkin work spent on one variable. Combined
// inequalities are implied by the system, so skipping some of them only
// loosens the bounds of the variables eliminated later.
const (
	maxCombinations = 256
	maxWorkingSet   = 64
)

// coefTerm is c*v + e <= 0 for the variable being eliminated.
type coefTerm struct {
	c int64
	e expr.Expr
}

type fmSolver struct {
	ranges expr.Ranges
	next   *set.TreeSet[expr.Expr]
}

// add puts ineq into the next working set unless it follows from the
// ranges or from one of its neighbors in the set order. A neighbor that
// follows from ineq is dropped.
func (s *fmSolver) add(ineq expr.Expr) {
	if arith.CanProve(ineq, s.ranges) {
		return
	}
	le, ok := ineq.(expr.Binary)
	if !ok || le.Op != expr.OpLE {
		s.next.Insert(ineq)
		return
	}
	if s.next.Contains(ineq) {
		return
	}
	for _, find := range []func(expr.Expr) (expr.Expr, bool){s.next.FirstBelow, s.next.FirstAbove} {
		nb, ok := find(ineq)
		if !ok {
			continue
		}
		other, ok := nb.(expr.Binary)
		if !ok || other.Op != expr.OpLE {
			continue
		}
		if arith.CanProve(expr.LE(expr.Sub(le.A, other.A), expr.Int(0)), s.ranges) {
			return
		}
		if arith.CanProve(expr.LE(expr.Sub(other.A, le.A), expr.Int(0)), s.ranges) {
			s.next.Remove(nb)
		}
	}
	s.next.Insert(ineq)
}

// combine adds the sum of every pair of opposite bounds on v, until the
// working set is full.
func (s *fmSolver) combine(pos, neg []coefTerm, v *expr.Var, tr *trace.Tracer) {
	for _, p := range pos {
		for _, n := range neg {
			if s.next.Size() >= maxWorkingSet {
				tr.Warn("working set full", zap.Stringer("var", v), zap.Int("size", s.next.Size()))
				return
			}
			g := intmath.GCD(p.c, -n.c)
			lhs := expr.Sub(expr.Mul(expr.Int(p.c/g), n.e), expr.Mul(expr.Int(n.c/g), p.e))
			s.add(s.normalize(expr.LE(lhs, expr.Int(0))))
		}
	}
}

func (s *fmSolver) normalize(e expr.Expr) expr.Expr {
	return formula.NormalizeComparisons(arith.Simplify(e, s.ranges))
}

// SolveSystemOfInequalities eliminates vars one after another from the
// conjunction of ineqs by Fourier-Motzkin elimination. The bounds of each
// variable only mention variables that come after it in vars. Ranges of
// vars are used both as additional inequalities and to prune redundant
// ones. Conditions that are not linear comparisons are passed through to
// OtherConditions.
func SolveSystemOfInequalities(ineqs []expr.Expr, vars []*expr.Var, ranges expr.Ranges, tr *trace.Tracer) (InequalitiesResult, error) {
	if err := checkDistinct(vars); err != nil {
		return InequalitiesResult{}, err
	}
	tr = tr.Enter("SolveSystemOfInequalities", trace.Exprs("inequalities", ineqs), trace.Exprs("variables", vars))

	res := InequalitiesResult{Variables: vars, Bounds: make(map[*expr.Var]*VarBounds, len(vars))}
	s := &fmSolver{ranges: ranges, next: formula.NewExprSet()}
	for _, ineq := range ineqs {
		s.add(s.normalize(ineq))
	}
	current := s.next

	var rest []expr.Expr
	for _, v := range vars {
		s.next = formula.NewExprSet()
		var pos, neg []coefTerm

		if r, ok := ranges[v]; ok {
			lo := arith.Simplify(r.Min, ranges)
			hi := arith.Simplify(r.Max(), ranges)
			neg = append(neg, coefTerm{c: -1, e: lo})
			pos = append(pos, coefTerm{c: 1, e: arith.Simplify(expr.Sub(expr.Int(0), hi), ranges)})
		}

		for _, ineq := range current.Slice() {
			c, e, ok := polarity(ineq, v)
			if !ok {
				rest = append(rest, ineq)
				continue
			}
			isEQ := ineq.(expr.Binary).Op == expr.OpEQ
			switch {
			case c == 0:
				s.add(ineq)
			case isEQ && c > 0:
				pos = append(pos, coefTerm{c, e})
				neg = append(neg, coefTerm{-c, negate(e)})
			case isEQ:
				pos = append(pos, coefTerm{-c, negate(e)})
				neg = append(neg, coefTerm{c, e})
			case c > 0:
				pos = append(pos, coefTerm{c, e})
			default:
				neg = append(neg, coefTerm{c, e})
			}
		}

		if len(pos)*len(neg) > maxCombinations {
			tr.Warn("too many bounds to combine", zap.Stringer("var", v),
				zap.Int("upper", len(pos)), zap.Int("lower", len(neg)))
		} else {
			s.combine(pos, neg, v, tr)
		}

		lcm := int64(1)
		for _, p := range pos {
			lcm = intmath.LCM(lcm, p.c)
		}
		for _, n := range neg {
			lcm = intmath.LCM(lcm, -n.c)
		}

		var upper, lower []expr.Expr
		for _, p := range pos {
			upper = s.addBound(upper, arith.Simplify(expr.Mul(expr.Int(-lcm/p.c), p.e), ranges), true)
		}
		for _, n := range neg {
			lower = s.addBound(lower, arith.Simplify(expr.Mul(expr.Int(-lcm/n.c), n.e), ranges), false)
		}
		upper = expr.Dedup(upper)
		lower = expr.Dedup(lower)

		b := &VarBounds{Coef: lcm}
		for _, u := range upper {
			if containsExpr(lower, u) {
				b.Equal = append(b.Equal, u)
			} else {
				b.Upper = append(b.Upper, u)
			}
		}
		for _, l := range lower {
			if !containsExpr(b.Equal, l) {
				b.Lower = append(b.Lower, l)
			}
		}
		res.Bounds[v] = b
		tr.Log("eliminated", zap.Stringer("var", v), zap.Int64("coef", lcm),
			trace.Exprs("equal", b.Equal), trace.Exprs("lower", b.Lower), trace.Exprs("upper", b.Upper))

		current = s.next
	}

	for _, e := range current.Slice() {
		simp := arith.Simplify(e, ranges)
		if expr.IsFalse(simp) {
			res.OtherConditions = []expr.Expr{expr.False}
			tr.Result(res)
			return res, nil
		}
		if !expr.IsTrue(simp) {
			res.OtherConditions = append(res.OtherConditions, simp)
		}
	}
	for _, e := range rest {
		if expr.IsFalse(e) {
			res.OtherConditions = []expr.Expr{expr.False}
			break
		}
		res.OtherConditions = append(res.OtherConditions, e)
	}
	tr.Result(res)
	return res, nil
}

// polarity returns the constant coefficient c and the remainder e of
// c*v + e for a normalized comparison d <= 0 or d == 0.
func polarity(ineq expr.Expr, v *expr.Var) (int64, expr.Expr, bool) {
	b, ok := ineq.(expr.Binary)
	if !ok || (b.Op != expr.OpLE && b.Op != expr.OpEQ) {
		return 0, nil, false
	}
	coefs, ok := arith.DetectLinearCoefficients(b.A, []*expr.Var{v})
	if !ok {
		return 0, nil, false
	}
	c, ok := expr.AsInt(coefs[0])
	if !ok {
		return 0, nil, false
	}
	return c, coefs[1], true
}

func negate(e expr.Expr) expr.Expr {
	return expr.Sub(expr.Int(0), e)
}

// addBound adds b to bounds unless an existing bound is at least as tight.
// Bounds made redundant by b are removed.
func (s *fmSolver) addBound(bounds []expr.Expr, b expr.Expr, upper bool) []expr.Expr {
	better := func(x, y expr.Expr) bool {
		if upper {
			return arith.CanProve(expr.LE(expr.Sub(x, y), expr.Int(0)), s.ranges)
		}
		return arith.CanProve(expr.GE(expr.Sub(x, y), expr.Int(0)), s.ranges)
	}
	for _, o := range bounds {
		if better(o, b) {
			return bounds
		}
	}
	bounds = slices.DeleteFunc(bounds, func(o expr.Expr) bool { return better(b, o) })
	return append(bounds, b)
}

func containsExpr(list []expr.Expr, e expr.Expr) bool {
	return slices.ContainsFunc(list, func(x expr.Expr) bool { return expr.Equal(x, e) })
}
