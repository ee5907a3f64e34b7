// Package nonzero derives, for an expression, a condition outside of which
// the expression is zero.
package nonzero

import (
	"github.com/gnolang/zeroelim/internal/analysis/lattice"
	"github.com/gnolang/zeroelim/internal/arith"
	"github.com/gnolang/zeroelim/internal/expr"
)

// Result pairs an expression with the condition under which it may be
// nonzero. The analyzed expression equals select(Cond, Value, 0).
type Result struct {
	Cond  expr.Expr
	Value expr.Expr
}

// ToExpr returns select(Cond, Value, 0), or Value alone if Cond is true.
func (r Result) ToExpr() expr.Expr {
	if expr.IsTrue(r.Cond) {
		return r.Value
	}
	return expr.SelectElseZero(r.Cond, r.Value)
}

func (r Result) String() string {
	return r.ToExpr().String()
}

// Condition analyzes e structurally. Sums, min and max may be nonzero when
// either operand is; products when both are; quotients and remainders when
// the dividend is. Selects whose branch is zero are removed. Conditions are
// simplified at every level.
func Condition(e expr.Expr) Result {
	if e.Type() == expr.BoolType {
		return Result{Cond: e, Value: expr.True}
	}
	switch n := e.(type) {
	case expr.IntImm, expr.FloatImm:
		if expr.IsConst(n, 0) {
			return Result{Cond: expr.False, Value: e}
		}
		return Result{Cond: expr.True, Value: e}
	case expr.Binary:
		switch n.Op {
		case expr.OpAdd, expr.OpSub, expr.OpMin, expr.OpMax:
			return addLike(n)
		case expr.OpMul:
			return mulLike(n)
		case expr.OpDiv, expr.OpMod, expr.OpFloorDiv, expr.OpFloorMod:
			return divLike(n)
		}
	case expr.Cast:
		a := Condition(n.Value)
		return Result{Cond: a.Cond, Value: expr.NewCast(n.To, a.Value)}
	case expr.Select:
		return selectLike(n.Cond, n.True, n.False)
	case expr.Call:
		if n.IsIfThenElse() {
			return ifThenElse(n)
		}
	}
	return Result{Cond: expr.True, Value: e}
}

// Lift rewrites e as select(cond, value, 0) using Condition.
func Lift(e expr.Expr) expr.Expr {
	return Condition(e).ToExpr()
}

func simplify(e expr.Expr) expr.Expr {
	return arith.Simplify(e, nil)
}

func addLike(n expr.Binary) Result {
	a, b := Condition(n.A), Condition(n.B)
	if expr.Equal(a.Cond, b.Cond) {
		return Result{Cond: a.Cond, Value: expr.Binary{Op: n.Op, A: a.Value, B: b.Value}}
	}
	cond := simplify(expr.Or(a.Cond, b.Cond))
	va, vb := a.Value, b.Value
	if !expr.Equal(a.Cond, cond) {
		va = a.ToExpr()
	}
	if !expr.Equal(b.Cond, cond) {
		vb = b.ToExpr()
	}
	return Result{Cond: cond, Value: expr.Binary{Op: n.Op, A: va, B: vb}}
}

func mulLike(n expr.Binary) Result {
	a, b := Condition(n.A), Condition(n.B)
	return Result{
		Cond:  simplify(expr.And(a.Cond, b.Cond)),
		Value: expr.Binary{Op: n.Op, A: a.Value, B: b.Value},
	}
}

func divLike(n expr.Binary) Result {
	a := Condition(n.A)
	return Result{Cond: a.Cond, Value: expr.Binary{Op: n.Op, A: a.Value, B: n.B}}
}

func selectLike(cond, t, f expr.Expr) Result {
	a, b := Condition(t), Condition(f)
	if Kind(b.Value).IsZero() {
		return Result{Cond: simplify(expr.And(a.Cond, cond)), Value: a.Value}
	}
	if Kind(a.Value).IsZero() {
		return Result{Cond: simplify(expr.And(b.Cond, expr.LogicalNot(cond))), Value: b.Value}
	}
	return Result{
		Cond:  combine(cond, a.Cond, b.Cond),
		Value: expr.NewSelect(cond, a.Value, b.Value),
	}
}

// ifThenElse keeps the conditional even when a branch is zero: its
// branches are evaluated lazily.
func ifThenElse(n expr.Call) Result {
	cond := n.Args[0]
	a, b := Condition(n.Args[1]), Condition(n.Args[2])
	return Result{
		Cond:  combine(cond, a.Cond, b.Cond),
		Value: expr.IfThenElse(cond, a.Value, b.Value),
	}
}

func combine(cond, ca, cb expr.Expr) expr.Expr {
	return simplify(expr.Or(expr.And(cond, ca), expr.And(expr.LogicalNot(cond), cb)))
}

// Kind classifies e in the zero-ness lattice without any range
// information. Only constant zeros and expressions built from them by
// arithmetic are known to be Zero.
func Kind(e expr.Expr) lattice.ValueKind {
	switch n := e.(type) {
	case expr.IntImm, expr.FloatImm, expr.BoolImm:
		if expr.IsConst(n, 0) {
			return lattice.Zero
		}
		return lattice.NonZero
	case expr.Binary:
		switch n.Op {
		case expr.OpAdd, expr.OpSub:
			return lattice.Add(Kind(n.A), Kind(n.B))
		case expr.OpMul:
			return lattice.Mul(Kind(n.A), Kind(n.B))
		case expr.OpDiv, expr.OpMod, expr.OpFloorDiv, expr.OpFloorMod:
			return lattice.Div(Kind(n.A), Kind(n.B))
		case expr.OpMin, expr.OpMax:
			return lattice.Select(Kind(n.A), Kind(n.B))
		}
	case expr.Cast:
		// Narrowing may truncate a nonzero value to zero.
		if k := Kind(n.Value); k.IsZero() {
			return k
		}
		return lattice.MaybeZero
	case expr.Select:
		return lattice.Select(Kind(n.True), Kind(n.False))
	case expr.Call:
		if n.IsIfThenElse() {
			return lattice.Select(Kind(n.Args[1]), Kind(n.Args[2]))
		}
	}
	return lattice.MaybeZero
}
