package nonzero

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/zeroelim/internal/analysis/lattice"
	"github.com/gnolang/zeroelim/internal/expr"
)

func TestCondition(t *testing.T) {
	t.Parallel()
	i := expr.IntVar("i")
	k := expr.IntVar("k")
	A := expr.Placeholder("A", expr.FloatType, 10)
	B := expr.Placeholder("B", expr.FloatType, 10)
	guarded := expr.NewSelect(expr.LT(i, k), A.Index(i), expr.Float(0))

	tests := []struct {
		name      string
		in        expr.Expr
		wantCond  string
		wantValue string
	}{
		{"zero constant", expr.Int(0), "false", "0"},
		{"nonzero constant", expr.Int(4), "true", "4"},
		{"boolean", expr.LT(i, k), "(i < k)", "true"},
		{"select with zero branch", guarded, "(i <= (k - 1))", "A[i]"},
		{"select with zero true branch", expr.NewSelect(expr.LT(i, k), expr.Float(0), A.Index(i)), "(k <= i)", "A[i]"},
		{"product", expr.Mul(guarded, B.Index(i)), "(i <= (k - 1))", "(A[i] * B[i])"},
		{"sum of equal guards", expr.Add(guarded, guarded), "(i <= (k - 1))", "(A[i] + A[i])"},
		{"sum of different guards", expr.Add(guarded, B.Index(i)), "true", "(select((i <= (k - 1)), A[i], 0.0) + B[i])"},
		{"quotient uses the dividend", expr.FloorDiv(expr.NewSelect(expr.LT(i, k), i, expr.Int(0)), expr.Int(2)), "(i <= (k - 1))", "(i / 2)"},
		{"opaque", A.Index(i), "true", "A[i]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := Condition(tt.in)
			assert.Equal(t, tt.wantCond, res.Cond.String())
			assert.Equal(t, tt.wantValue, res.Value.String())
		})
	}
}

func TestKind(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	assert.Equal(t, lattice.Zero, Kind(expr.Mul(x, expr.Int(0))))
	assert.Equal(t, lattice.Zero, Kind(expr.NewSelect(expr.LT(x, expr.Int(1)), expr.Int(0), expr.Sub(expr.Int(0), expr.Int(0)))))
	assert.Equal(t, lattice.NonZero, Kind(expr.Add(expr.Int(0), expr.Int(3))))
	assert.Equal(t, lattice.MaybeZero, Kind(x))
	assert.Equal(t, lattice.MaybeZero, Kind(expr.NewCast(expr.IntType, expr.Float(0.5))))
}

type gen struct {
	rnd  *rand.Rand
	vars []*expr.Var
}

func (g *gen) cond() expr.Expr {
	v := g.vars[g.rnd.Intn(len(g.vars))]
	c := expr.Int(int64(g.rnd.Intn(4)))
	if g.rnd.Intn(2) == 0 {
		return expr.LT(v, c)
	}
	return expr.NE(v, c)
}

func (g *gen) value(depth int) expr.Expr {
	if depth == 0 || g.rnd.Intn(5) == 0 {
		if g.rnd.Intn(3) == 0 {
			return expr.Int(int64(g.rnd.Intn(3)))
		}
		return g.vars[g.rnd.Intn(len(g.vars))]
	}
	a, b := g.value(depth-1), g.value(depth-1)
	switch g.rnd.Intn(8) {
	case 0:
		return expr.Add(a, b)
	case 1:
		return expr.Sub(a, b)
	case 2:
		return expr.Mul(a, b)
	case 3:
		return expr.FloorDiv(a, expr.Int(int64(g.rnd.Intn(3)+1)))
	case 4:
		return expr.Min(a, b)
	case 5:
		return expr.IfThenElse(g.cond(), a, b)
	case 6:
		return expr.NewSelect(g.cond(), a, expr.Int(0))
	default:
		return expr.NewSelect(g.cond(), a, b)
	}
}

func TestLiftPreservesValues(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	g := &gen{rnd: rand.New(rand.NewSource(11)), vars: []*expr.Var{x, y}}
	ev := expr.NewEvaluator(expr.DefaultConfig())

	for n := 0; n < 300; n++ {
		e := g.value(4)
		lifted := Lift(e)
		for xv := int64(-2); xv <= 3; xv++ {
			for yv := int64(-2); yv <= 3; yv++ {
				env := expr.NewEnv()
				env.SetInt(x, xv)
				env.SetInt(y, yv)
				want, err := ev.EvalInt(e, env)
				require.NoError(t, err)
				got, err := ev.EvalInt(lifted, env)
				require.NoError(t, err)
				require.Equal(t, want, got, "%s lifted to %s at x=%d y=%d", e, lifted, xv, yv)
			}
		}
	}
}
