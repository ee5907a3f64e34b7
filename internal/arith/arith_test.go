package arith

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/zeroelim/internal/expr"
)

func TestSimplifyCanonicalForms(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	v := expr.IntVar("v")
	ranges := expr.Ranges{v: expr.IntRange(0, 3)}

	tests := []struct {
		name string
		in   expr.Expr
		want string
	}{
		{"collect terms", expr.Sub(expr.Mul(expr.Add(x, expr.Int(1)), expr.Int(2)), x), "(x + 2)"},
		{"cancel", expr.Sub(expr.Mul(x, expr.Int(3)), expr.Mul(expr.Int(3), x)), "0"},
		{"floordiv pulls out multiples", expr.FloorDiv(expr.Add(expr.Mul(v, expr.Int(6)), expr.Int(4)), expr.Int(3)), "((v * 2) + 1)"},
		{"floormod within range", expr.FloorMod(v, expr.Int(3)), "v"},
		{"floormod of multiple", expr.FloorMod(expr.Mul(x, expr.Int(4)), expr.Int(2)), "0"},
		{"truncdiv of nonnegative", expr.Div(expr.Add(v, expr.Int(3)), expr.Int(3)), "1"},
		{"min decided by bounds", expr.Min(v, expr.Int(5)), "v"},
		{"max orders operands", expr.Max(y, x), "max(x, y)"},
		{"eq gcd", expr.EQ(expr.Mul(x, expr.Int(2)), expr.Add(expr.Mul(y, expr.Int(2)), expr.Int(4))), "(x == (y + 2))"},
		{"eq without integer solutions", expr.EQ(expr.Mul(x, expr.Int(2)), expr.Int(3)), "false"},
		{"le gcd rounds", expr.LE(expr.Mul(x, expr.Int(2)), expr.Int(5)), "(x <= 2)"},
		{"lt becomes le", expr.LT(x, y), "(x <= (y - 1))"},
		{"ge with constant left", expr.GE(x, expr.Int(3)), "(3 <= x)"},
		{"contradiction", expr.And(expr.LT(x, expr.Int(3)), expr.GE(x, expr.Int(3))), "false"},
		{"tautology", expr.Or(expr.LT(x, expr.Int(3)), expr.GE(x, expr.Int(3))), "true"},
		{"and dedup", expr.And(expr.LT(x, y), expr.And(expr.True, expr.LT(x, y))), "(x <= (y - 1))"},
		{"negated comparison", expr.LogicalNot(expr.LE(x, y)), "(y <= (x - 1))"},
		{"select folds", expr.NewSelect(expr.LT(v, expr.Int(3)), x, y), "x"},
		{"bool select", expr.NewSelect(expr.LT(x, y), expr.True, expr.False), "(x <= (y - 1))"},
		{"float identities", expr.Add(expr.Mul(expr.NewCast(expr.FloatType, x), expr.Float(1)), expr.Float(0)), "float(x)"},
		{"float zero product", expr.Mul(expr.NewCast(expr.FloatType, x), expr.Float(0)), "0.0"},
		{"cast constant", expr.NewCast(expr.FloatType, expr.Int(3)), "3.0"},
		{"if_then_else", expr.IfThenElse(expr.GE(v, expr.Int(0)), x, y), "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Simplify(tt.in, ranges).String())
		})
	}
}

func TestSimplifyUsesSymbolicRanges(t *testing.T) {
	t.Parallel()
	i := expr.IntVar("i")
	n := expr.IntVar("n")
	ranges := expr.Ranges{i: expr.NewRange(expr.Int(0), n), n: expr.IntRange(1, 9)}

	assert.True(t, CanProve(expr.LT(i, n), ranges))
	assert.True(t, CanProve(expr.GE(i, expr.Int(0)), ranges))
	assert.True(t, CanProve(expr.LT(i, expr.Int(9)), ranges))
	assert.False(t, CanProve(expr.LT(i, expr.Int(5)), ranges))
	assert.Equal(t, "false", Simplify(expr.GE(i, n), ranges).String())
}

func TestSimplifyUnitRange(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	ranges := expr.Ranges{x: expr.IntRange(4, 1)}
	assert.Equal(t, "(y + 4)", Simplify(expr.Add(x, y), ranges).String())
}

func TestSimplifyReduce(t *testing.T) {
	t.Parallel()
	a := expr.Placeholder("A", expr.FloatType, 10)
	k := expr.IntVar("k")
	n := expr.IntVar("n")

	single := expr.Sum(a.Index(k), expr.IterVar{Var: k, Dom: expr.IntRange(2, 1)})
	assert.Equal(t, "A[2]", Simplify(single, nil).String())

	empty := expr.Sum(a.Index(k), expr.IterVar{Var: k, Dom: expr.IntRange(0, 0)})
	assert.Equal(t, "0.0", Simplify(empty, nil).String())

	never := expr.NewReduce(expr.SumReducer(expr.FloatType), a.Index(k),
		[]expr.IterVar{{Var: k, Dom: expr.IntRange(0, 10)}}, expr.GE(k, expr.Int(10)))
	assert.Equal(t, "0.0", Simplify(never, nil).String())

	guarded := expr.NewReduce(expr.SumReducer(expr.FloatType), a.Index(k),
		[]expr.IterVar{{Var: k, Dom: expr.IntRange(0, 10)}}, expr.And(expr.LT(k, n), expr.LT(k, expr.Int(10))))
	red, ok := Simplify(guarded, nil).(expr.Reduce)
	require.True(t, ok)
	assert.Equal(t, "(k <= (n - 1))", red.Condition.String())
}

func TestBounds(t *testing.T) {
	t.Parallel()
	i := expr.IntVar("i")
	n := expr.IntVar("n")
	v := expr.IntVar("v")
	ranges := expr.Ranges{i: expr.NewRange(expr.Int(0), n), n: expr.IntRange(1, 9), v: expr.IntRange(0, 10)}

	lo, hi, okLo, okHi := ConstBounds(expr.Sub(i, n), ranges)
	require.True(t, okLo)
	require.True(t, okHi)
	assert.Equal(t, int64(-9), lo)
	assert.Equal(t, int64(-1), hi)

	iv := EvalBounds(expr.FloorDiv(v, expr.Int(3)), ranges)
	assert.Equal(t, "0", iv.Min.String())
	assert.Equal(t, "3", iv.Max.String())

	iv = EvalBounds(expr.FloorMod(v, expr.Int(3)), ranges)
	r, ok := BoundsToRange(iv)
	require.True(t, ok)
	assert.Equal(t, "[0, 3)", r.String())

	x := expr.IntVar("x")
	iv = EvalBounds(expr.Add(x, v), ranges)
	assert.Equal(t, "x", iv.Min.String())
	assert.Equal(t, "(x + 9)", iv.Max.String())

	_, ok = BoundsToRange(EvalBounds(expr.Mul(x, v), ranges))
	assert.False(t, ok)
}

func TestDetectLinearCoefficients(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	n := expr.IntVar("n")

	e := expr.Sub(expr.Add(expr.Add(expr.Mul(x, expr.Int(3)), expr.Mul(y, n)), expr.Int(5)), y)
	coefs, ok := DetectLinearCoefficients(e, []*expr.Var{x, y})
	require.True(t, ok)
	require.Len(t, coefs, 3)
	assert.Equal(t, "3", coefs[0].String())
	assert.Equal(t, "(n - 1)", coefs[1].String())
	assert.Equal(t, "5", coefs[2].String())

	_, ok = DetectLinearCoefficients(expr.Mul(x, y), []*expr.Var{x, y})
	assert.False(t, ok)
	_, ok = DetectLinearCoefficients(expr.Mul(x, x), []*expr.Var{x})
	assert.False(t, ok)
	_, ok = DetectLinearCoefficients(expr.FloorDiv(x, expr.Int(2)), []*expr.Var{x})
	assert.False(t, ok)
}

func TestDetectClipBounds(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	cond := expr.All(
		expr.LE(expr.Int(0), x),
		expr.LT(expr.Add(expr.Mul(x, expr.Int(2)), expr.Int(1)), expr.Int(8)),
		expr.LT(x, y),
		expr.EQ(y, expr.Int(4)),
	)
	res := DetectClipBounds(cond, []*expr.Var{x, y})
	require.Contains(t, res, x)
	assert.Equal(t, "0", res[x].Min.String())
	assert.Equal(t, "3", res[x].Max.String())
	require.Contains(t, res, y)
	assert.Equal(t, "4", res[y].Min.String())
	assert.Equal(t, "4", res[y].Max.String())
}

type exprGen struct {
	rng  *rand.Rand
	vars []*expr.Var
}

func (g *exprGen) intExpr(depth int) expr.Expr {
	if depth == 0 || g.rng.Intn(4) == 0 {
		if g.rng.Intn(2) == 0 {
			return expr.Int(int64(g.rng.Intn(9) - 4))
		}
		return g.vars[g.rng.Intn(len(g.vars))]
	}
	a := g.intExpr(depth - 1)
	switch g.rng.Intn(8) {
	case 0:
		return expr.Add(a, g.intExpr(depth-1))
	case 1:
		return expr.Sub(a, g.intExpr(depth-1))
	case 2:
		return expr.Mul(a, g.intExpr(depth-1))
	case 3:
		return expr.FloorDiv(a, expr.Int(int64(g.rng.Intn(4)+1)))
	case 4:
		return expr.FloorMod(a, expr.Int(int64(g.rng.Intn(4)+1)))
	case 5:
		return expr.Min(a, g.intExpr(depth-1))
	case 6:
		return expr.Max(a, g.intExpr(depth-1))
	default:
		return expr.NewSelect(g.boolExpr(depth-1), a, g.intExpr(depth-1))
	}
}

func (g *exprGen) boolExpr(depth int) expr.Expr {
	if depth == 0 || g.rng.Intn(3) > 0 {
		ops := []func(a, b expr.Expr) expr.Expr{expr.EQ, expr.NE, expr.LT, expr.LE, expr.GT, expr.GE}
		return ops[g.rng.Intn(len(ops))](g.intExpr(depth), g.intExpr(depth))
	}
	switch g.rng.Intn(3) {
	case 0:
		return expr.And(g.boolExpr(depth-1), g.boolExpr(depth-1))
	case 1:
		return expr.Or(g.boolExpr(depth-1), g.boolExpr(depth-1))
	default:
		return expr.LogicalNot(g.boolExpr(depth - 1))
	}
}

func TestSimplifyPreservesValues(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	ranges := expr.Ranges{x: expr.IntRange(-3, 7), y: expr.IntRange(0, 5)}
	g := &exprGen{rng: rand.New(rand.NewSource(42)), vars: []*expr.Var{x, y}}
	ev := expr.NewEvaluator(expr.DefaultConfig())

	for iter := 0; iter < 300; iter++ {
		var e expr.Expr
		if iter%2 == 0 {
			e = g.intExpr(3)
		} else {
			e = g.boolExpr(2)
		}
		s := Simplify(e, ranges)
		for xv := int64(-3); xv < 4; xv++ {
			for yv := int64(0); yv < 5; yv++ {
				env := expr.NewEnv()
				env.SetInt(x, xv)
				env.SetInt(y, yv)
				want, err := ev.EvalExpr(e, env)
				require.NoError(t, err)
				got, err := ev.EvalExpr(s, env)
				require.NoError(t, err, "simplified %s to %s", e, s)
				require.True(t, want.Equal(got), "%s simplified to %s: x=%d y=%d want %s got %s", e, s, xv, yv, want, got)
			}
		}
		assert.Equal(t, s.String(), Simplify(s, ranges).String(), "not idempotent on %s", e)
	}
}
