package domain

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/gnolang/zeroelim/internal/arith"
	"github.com/gnolang/zeroelim/internal/expr"
	"github.com/gnolang/zeroelim/internal/intmath"
	"github.com/gnolang/zeroelim/internal/trace"
)

// linearSystem is matrix * x == rhs where x are the current new variables.
// oldToNew expresses the old variables over x as integer combinations and
// newToOld expresses x over the old variables.
type linearSystem struct {
	matrix   [][]int64
	rhs      []expr.Expr
	oldToNew [][]int64
	newToOld []expr.Expr
	// overflow is set when an entry grew past maxEntry; the system is then
	// left partially diagonalized.
	overflow bool
}

// maxEntry bounds the entries a row or column operation may combine, so
// that the products it forms fit into an int64.
const maxEntry = 1 << 24

func fits(vals ...int64) bool {
	for _, v := range vals {
		if v < -maxEntry || v > maxEntry {
			return false
		}
	}
	return true
}

func newLinearSystem(vars []*expr.Var) *linearSystem {
	sys := &linearSystem{}
	for i, v := range vars {
		row := make([]int64, len(vars))
		row[i] = 1
		sys.oldToNew = append(sys.oldToNew, row)
		sys.newToOld = append(sys.newToOld, v)
	}
	return sys
}

// combine returns x*a + y*b for integer coefficients.
func combine(x int64, a expr.Expr, y int64, b expr.Expr) expr.Expr {
	return expr.Add(expr.Mul(expr.Int(x), a), expr.Mul(expr.Int(y), b))
}

// pivotGCD returns g, a, b with g == a*m + b*n. When n is a multiple of m
// the pivot is kept unchanged, which guarantees termination.
func pivotGCD(m, n int64) (g, a, b int64, changed bool) {
	if n%m == 0 {
		return m, 1, 0, false
	}
	g, a, b = intmath.XGCD(m, n)
	return g, a, b, true
}

// diagonalize brings the matrix to a diagonal form with unimodular row and
// column operations. Row operations are mirrored into rhs, column
// operations into oldToNew and, inverted, into newToOld.
func (s *linearSystem) diagonalize(nvars int) {
	for index := 0; index < min(len(s.matrix), nvars); index++ {
		if s.overflow {
			return
		}
		best := index
		for i := index; i < len(s.matrix); i++ {
			old, cur := s.matrix[best][index], s.matrix[i][index]
			if cur != 0 && (old == 0 || intmath.Abs(cur) < intmath.Abs(old)) {
				best = i
			}
		}
		s.matrix[index], s.matrix[best] = s.matrix[best], s.matrix[index]
		s.rhs[index], s.rhs[best] = s.rhs[best], s.rhs[index]

		if s.matrix[index][index] == 0 {
			for j := index + 1; j < nvars; j++ {
				if s.matrix[index][j] != 0 {
					s.swapColumns(index, j)
					break
				}
			}
		}
		if s.matrix[index][index] == 0 {
			continue
		}

		for i := index + 1; i < len(s.matrix); i++ {
			if s.matrix[i][index] != 0 {
				s.zeroBelow(index, i)
			}
		}

		changed := false
		for j := index + 1; j < nvars; j++ {
			if s.matrix[index][j] != 0 {
				changed = s.zeroRight(index, j) || changed
			}
		}
		if changed {
			// The column may have lost its zeros below the pivot.
			index--
		}
	}
}

func (s *linearSystem) swapColumns(x, y int) {
	for i := x; i < len(s.matrix); i++ {
		s.matrix[i][x], s.matrix[i][y] = s.matrix[i][y], s.matrix[i][x]
	}
	for i := range s.oldToNew {
		s.oldToNew[i][x], s.oldToNew[i][y] = s.oldToNew[i][y], s.oldToNew[i][x]
	}
	s.newToOld[x], s.newToOld[y] = s.newToOld[y], s.newToOld[x]
}

// zeroBelow clears matrix[i][index] by combining rows index and i:
//
//	[ a    b   ]
//	[ n/g -m/g ]
//
// where m and n are the pivot and the cleared entry.
func (s *linearSystem) zeroBelow(index, i int) {
	ri, rj := s.matrix[index], s.matrix[i]
	if s.overflow || !fits(ri[index:]...) || !fits(rj[index:]...) {
		s.overflow = true
		return
	}
	m, n := ri[index], rj[index]
	g, a, b, _ := pivotGCD(m, n)
	mg, ng := m/g, n/g
	for j := index; j < len(ri); j++ {
		ri[j], rj[j] = a*ri[j]+b*rj[j], ng*ri[j]-mg*rj[j]
	}
	s.rhs[index], s.rhs[i] = combine(a, s.rhs[index], b, s.rhs[i]), combine(ng, s.rhs[index], -mg, s.rhs[i])
}

// zeroRight clears matrix[index][j] by the column operation matching
// zeroBelow. It reports whether the pivot column may have changed.
func (s *linearSystem) zeroRight(index, j int) bool {
	if s.overflow {
		return false
	}
	for _, rows := range [][][]int64{s.matrix[index:], s.oldToNew} {
		for _, r := range rows {
			if !fits(r[index], r[j]) {
				s.overflow = true
				return false
			}
		}
	}
	m, n := s.matrix[index][index], s.matrix[index][j]
	g, a, b, changed := pivotGCD(m, n)
	mg, ng := m/g, n/g
	for i := index; i < len(s.matrix); i++ {
		r := s.matrix[i]
		r[index], r[j] = a*r[index]+b*r[j], ng*r[index]-mg*r[j]
	}
	for _, r := range s.oldToNew {
		r[index], r[j] = a*r[index]+b*r[j], ng*r[index]-mg*r[j]
	}
	x, y := s.newToOld[index], s.newToOld[j]
	s.newToOld[index], s.newToOld[j] = combine(mg, x, ng, y), combine(b, x, -a, y)
	return changed
}

// SolveSystemOfEquations uses the linear equalities of the domain with
// constant coefficients to express its variables through fewer new
// variables. The equalities are diagonalized in the manner of the Smith
// normal form; the remaining degrees of freedom become new variables named
// n0, n1, ... followed by the old name when they map onto a single old
// variable. Solvability of the system turns into divisibility conditions
// and the ranges of the old variables into conditions over the new ones.
// Conditions that are not such equalities are carried over unchanged.
func SolveSystemOfEquations(d *Domain, tr *trace.Tracer) (*Transformation, error) {
	if err := checkDistinct(d.Variables); err != nil {
		return nil, err
	}
	tr = tr.Enter("SolveSystemOfEquations", zap.Stringer("domain", d))

	nvars := len(d.Variables)
	sys := newLinearSystem(d.Variables)
	var rest []expr.Expr
	for _, c := range d.Conditions {
		if row, rhs, ok := equationRow(c, d); ok {
			sys.matrix = append(sys.matrix, row)
			sys.rhs = append(sys.rhs, rhs)
			continue
		}
		rest = append(rest, c)
	}
	tr.Log("equations", zap.Int("rows", len(sys.matrix)), trace.Exprs("rest", rest))

	sys.diagonalize(nvars)
	if sys.overflow {
		tr.Warn("coefficients too large, equations left unsolved", zap.Int("max_entry", maxEntry))
		return IdentityTransformation(d), nil
	}
	for i, r := range sys.rhs {
		sys.rhs[i] = arith.Simplify(r, d.Ranges)
	}

	var conds []expr.Expr
	for j, r := range sys.rhs {
		var c expr.Expr
		if j >= nvars || sys.matrix[j][j] == 0 {
			c = expr.EQ(r, expr.Int(0))
		} else {
			c = expr.EQ(expr.FloorMod(r, expr.Int(intmath.Abs(sys.matrix[j][j]))), expr.Int(0))
		}
		c = arith.Simplify(c, d.Ranges)
		if expr.IsFalse(c) {
			tr.Log("no integer solution", zap.Stringer("condition", r))
			t := EmptyTransformation(d)
			tr.Result(t)
			return t, nil
		}
		if !expr.IsTrue(c) {
			conds = append(conds, c)
		}
	}

	var newVars []*expr.Var
	newToOld := make(map[*expr.Var]expr.Expr)
	solution := make([]expr.Expr, nvars)
	for j := 0; j < nvars; j++ {
		if j >= len(sys.matrix) || sys.matrix[j][j] == 0 {
			toOld := arith.Simplify(sys.newToOld[j], d.Ranges)
			name := fmt.Sprintf("n%d", len(newVars))
			if v, ok := toOld.(*expr.Var); ok {
				name += "_" + v.Name
			}
			nv := expr.NewVar(name, sys.newToOld[j].Type())
			newVars = append(newVars, nv)
			newToOld[nv] = toOld
			solution[j] = nv
			continue
		}
		diag := sys.matrix[j][j]
		if diag >= 0 {
			solution[j] = arith.Simplify(expr.FloorDiv(sys.rhs[j], expr.Int(diag)), d.Ranges)
		} else {
			solution[j] = arith.Simplify(expr.FloorDiv(negate(sys.rhs[j]), expr.Int(-diag)), d.Ranges)
		}
	}

	oldToNew := make(map[*expr.Var]expr.Expr, nvars)
	for i, v := range d.Variables {
		e := expr.MakeZero(v.Type())
		for j := 0; j < nvars; j++ {
			if c := sys.oldToNew[i][j]; c != 0 {
				e = expr.Add(e, expr.Mul(expr.Int(c), solution[j]))
			}
		}
		oldToNew[v] = arith.Simplify(e, nil)
	}

	inDomain := expr.VarSet(d.Variables)
	ranges := make(expr.Ranges)
	for _, v := range d.Ranges.SortedVars() {
		if !inDomain[v] {
			ranges[v] = d.Ranges[v]
		}
	}
	for _, v := range newVars {
		if r, ok := arith.BoundsToRange(arith.EvalBounds(newToOld[v], d.Ranges)); ok {
			ranges[v] = r
		}
	}

	// The ranges of the new variables are usually looser than those of the
	// old ones, so the old ranges become conditions.
	for _, v := range d.Ranges.SortedVars() {
		e, ok := oldToNew[v]
		if !ok {
			continue
		}
		r := d.Ranges[v]
		lower := arith.Simplify(expr.LE(r.Min, e), ranges)
		upper := arith.Simplify(expr.LT(e, expr.Add(r.Min, r.Extent)), ranges)
		for _, c := range []expr.Expr{lower, upper} {
			if !expr.IsTrue(c) {
				conds = append(conds, c)
			}
		}
	}
	for _, c := range rest {
		conds = append(conds, expr.Substitute(c, oldToNew))
	}

	t := &Transformation{
		NewDomain: New(newVars, conds, ranges),
		OldDomain: d,
		NewToOld:  newToOld,
		OldToNew:  oldToNew,
	}
	tr.Result(t)
	return t, nil
}

// equationRow converts an equality with constant coefficients over the
// domain variables into a matrix row and its right hand side.
func equationRow(c expr.Expr, d *Domain) ([]int64, expr.Expr, bool) {
	eq, ok := c.(expr.Binary)
	if !ok || eq.Op != expr.OpEQ || eq.A.Type() != expr.IntType {
		return nil, nil, false
	}
	coefs, ok := arith.DetectLinearCoefficients(arith.Simplify(expr.Sub(eq.A, eq.B), d.Ranges), d.Variables)
	if !ok {
		return nil, nil, false
	}
	row := make([]int64, len(d.Variables))
	for j := range row {
		if row[j], ok = expr.AsInt(coefs[j]); !ok {
			return nil, nil, false
		}
	}
	return row, negate(coefs[len(coefs)-1]), true
}
