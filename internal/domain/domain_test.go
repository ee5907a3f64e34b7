package domain

import (
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gnolang/zeroelim/internal/expr"
	"github.com/gnolang/zeroelim/internal/trace"
)

var ev = expr.NewEvaluator(expr.DefaultConfig())

// points enumerates the integer points of d. Ranges and conditions may
// refer to variables bound in base.
func points(t *testing.T, d *Domain, base *expr.Env) []*expr.Env {
	t.Helper()
	var res []*expr.Env
	var rec func(i int, env *expr.Env)
	rec = func(i int, env *expr.Env) {
		if i == len(d.Variables) {
			if contains(t, d, env) {
				res = append(res, env.Clone())
			}
			return
		}
		v := d.Variables[i]
		r, ok := d.Ranges[v]
		require.True(t, ok, "no range for %s", v)
		lo, err := ev.EvalInt(r.Min, env)
		require.NoError(t, err)
		ext, err := ev.EvalInt(r.Extent, env)
		require.NoError(t, err)
		for x := lo; x < lo+ext; x++ {
			env.SetInt(v, x)
			rec(i+1, env)
		}
	}
	rec(0, base.Clone())
	return res
}

func contains(t *testing.T, d *Domain, env *expr.Env) bool {
	t.Helper()
	for _, c := range d.Conditions {
		ok, err := ev.EvalBool(c, env)
		require.NoError(t, err, "condition %s", c)
		if !ok {
			return false
		}
	}
	return true
}

func inRanges(t *testing.T, d *Domain, env *expr.Env) bool {
	t.Helper()
	for _, v := range d.Variables {
		r := d.Ranges[v]
		lo, err := ev.EvalInt(r.Min, env)
		require.NoError(t, err)
		ext, err := ev.EvalInt(r.Extent, env)
		require.NoError(t, err)
		x := env.Get(v).(expr.IntValue).Val
		if x < lo || x >= lo+ext {
			return false
		}
	}
	return true
}

// checkBijection verifies by enumeration that tf maps the points of its
// old domain one to one onto the points of its new domain.
func checkBijection(t *testing.T, tf *Transformation, base *expr.Env) {
	t.Helper()
	oldPts := points(t, tf.OldDomain, base)
	newPts := points(t, tf.NewDomain, base)
	require.Len(t, newPts, len(oldPts), "%s", tf)

	for _, old := range oldPts {
		img := base.Clone()
		for _, v := range tf.NewDomain.Variables {
			x, err := ev.EvalInt(tf.NewToOld[v], old)
			require.NoError(t, err)
			img.SetInt(v, x)
		}
		require.True(t, inRanges(t, tf.NewDomain, img), "image of %s out of range in %s", old, tf.NewDomain)
		require.True(t, contains(t, tf.NewDomain, img), "image of %s outside %s", old, tf.NewDomain)
		for _, v := range tf.OldDomain.Variables {
			x, err := ev.EvalInt(tf.OldToNew[v], img)
			require.NoError(t, err)
			require.Equal(t, old.Get(v), expr.IntValue{Val: x}, "round trip of %s through %s", v, tf)
		}
	}
}

func box(n int64, vars ...*expr.Var) expr.Ranges {
	r := make(expr.Ranges, len(vars))
	for _, v := range vars {
		r[v] = expr.IntRange(0, n)
	}
	return r
}

func TestComposeRequiresChainedDomains(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	d1 := New([]*expr.Var{x}, nil, box(4, x))
	d2 := New([]*expr.Var{x}, nil, box(4, x))

	_, err := Compose(IdentityTransformation(d1), IdentityTransformation(d2))
	assert.True(t, errors.Is(err, ErrDomainMismatch))

	tf, err := Compose(IdentityTransformation(d1), EmptyTransformation(d1))
	require.NoError(t, err)
	assert.True(t, tf.NewDomain.IsEmpty())
	assert.Equal(t, "0", tf.OldToNew[x].String())
	assert.Same(t, d1, tf.OldDomain)
}

func TestDomainString(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	d := New([]*expr.Var{x, y}, []expr.Expr{expr.LT(x, y)}, box(3, x, y))
	assert.Equal(t, "Domain(box_volume=9, variables=[x, y], conditions=[(x < y)], ranges={x: [0, 3), y: [0, 3)})", d.String())

	n := expr.IntVar("n")
	open := New([]*expr.Var{n}, nil, nil)
	assert.Nil(t, open.BoxVolume())
	_, err := open.Axis()
	assert.Error(t, err)
}

func TestSolveSystemOfEquations(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	z := expr.IntVar("z")

	tests := []struct {
		name    string
		vars    []*expr.Var
		conds   []expr.Expr
		newVars int
		empty   bool
	}{
		{
			name:    "multiple",
			vars:    []*expr.Var{x, y},
			conds:   []expr.Expr{expr.EQ(x, expr.Mul(expr.Int(2), y))},
			newVars: 1,
		},
		{
			name:  "unique solution",
			vars:  []*expr.Var{x, y},
			conds: []expr.Expr{expr.EQ(expr.Add(x, y), expr.Int(4)), expr.EQ(expr.Sub(x, y), expr.Int(2))},
		},
		{
			name:  "not divisible",
			vars:  []*expr.Var{x},
			conds: []expr.Expr{expr.EQ(expr.Mul(expr.Int(2), x), expr.Int(3))},
			empty: true,
		},
		{
			name:  "contradiction",
			vars:  []*expr.Var{x},
			conds: []expr.Expr{expr.EQ(x, expr.Int(1)), expr.EQ(x, expr.Int(2))},
			empty: true,
		},
		{
			name:    "plane",
			vars:    []*expr.Var{x, y, z},
			conds:   []expr.Expr{expr.EQ(expr.Add(expr.Add(x, y), z), expr.Int(5))},
			newVars: 2,
		},
		{
			name: "coprime coefficients",
			vars: []*expr.Var{x, y, z},
			conds: []expr.Expr{
				expr.EQ(expr.Add(expr.Mul(expr.Int(3), x), expr.Mul(expr.Int(5), y)), expr.Add(z, expr.Int(4))),
				expr.LT(x, y),
			},
			newVars: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := New(tt.vars, tt.conds, box(10, tt.vars...))
			tf, err := SolveSystemOfEquations(d, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.empty, tf.NewDomain.IsEmpty())
			if tt.empty {
				assert.Empty(t, tf.NewDomain.Variables)
				assert.Empty(t, points(t, d, expr.NewEnv()))
				return
			}
			assert.Len(t, tf.NewDomain.Variables, tt.newVars)
			checkBijection(t, tf, expr.NewEnv())
		})
	}
}

func TestDuplicateVariables(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	d := New([]*expr.Var{x, x}, nil, box(3, x))

	_, err := SolveSystemOfEquations(d, nil)
	assert.True(t, errors.Is(err, ErrDuplicateVariable))
	_, err = SolveSystemOfInequalities(nil, []*expr.Var{x, x}, nil, nil)
	assert.True(t, errors.Is(err, ErrDuplicateVariable))
}

func TestSolveSystemOfInequalitiesBounds(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	ineqs := []expr.Expr{expr.LE(x, expr.Int(3)), expr.LE(expr.Int(2), x)}

	res, err := SolveSystemOfInequalities(ineqs, []*expr.Var{x}, box(10, x), nil)
	require.NoError(t, err)
	b := res.Bounds[x]
	require.NotNil(t, b)
	assert.Equal(t, int64(1), b.Coef)
	assert.Empty(t, b.Equal)
	require.Len(t, b.Lower, 1)
	require.Len(t, b.Upper, 1)
	assert.Equal(t, "2", b.Lower[0].String())
	assert.Equal(t, "3", b.Upper[0].String())
	assert.Empty(t, res.OtherConditions)
}

func TestSolveSystemOfInequalitiesContradiction(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	ineqs := []expr.Expr{expr.LT(x, y), expr.LT(y, x)}

	res, err := SolveSystemOfInequalities(ineqs, []*expr.Var{x, y}, box(10, x, y), nil)
	require.NoError(t, err)
	assert.Equal(t, []expr.Expr{expr.False}, res.OtherConditions)
}

func TestSolveSystemOfInequalitiesPreservesSolutions(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	z := expr.IntVar("z")
	vars := []*expr.Var{x, y, z}
	ranges := box(5, vars...)
	g := &linGen{rnd: rand.New(rand.NewSource(3)), vars: vars}

	for n := 0; n < 60; n++ {
		ineqs := g.conditions(1 + g.rnd.Intn(3))
		res, err := SolveSystemOfInequalities(ineqs, vars, ranges, nil)
		require.NoError(t, err)
		before := New(vars, ineqs, ranges)
		after := New(vars, res.AsConditions(), ranges)
		for _, p := range points(t, New(vars, nil, ranges), expr.NewEnv()) {
			require.Equal(t, contains(t, before, p), contains(t, after, p),
				"%v rewritten to %s at %s", ineqs, res, p)
		}
	}
}

func TestDeskewDomain(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	conds := []expr.Expr{expr.GE(y, x), expr.LT(y, expr.Add(x, expr.Int(3)))}
	d := New([]*expr.Var{x, y}, conds, box(10, x, y))

	tf, err := DeskewDomain(d, nil)
	require.NoError(t, err)
	require.Len(t, tf.NewDomain.Variables, 2)
	assert.Equal(t, "30", tf.NewDomain.BoxVolume().String())
	checkBijection(t, tf, expr.NewEnv())
}

func TestDeskewRemovesFixedVariables(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	d := New([]*expr.Var{x, y}, []expr.Expr{expr.EQ(x, expr.Int(4)), expr.LE(y, x)}, box(10, x, y))

	tf, err := DeskewDomain(d, nil)
	require.NoError(t, err)
	require.Len(t, tf.NewDomain.Variables, 1)
	assert.Equal(t, "4", tf.OldToNew[x].String())
	assert.Equal(t, "5", tf.NewDomain.BoxVolume().String())
	checkBijection(t, tf, expr.NewEnv())
}

func TestSimplifyDomainModulo(t *testing.T) {
	t.Parallel()
	v := expr.IntVar("v")
	d := New([]*expr.Var{v}, []expr.Expr{expr.EQ(expr.FloorMod(v, expr.Int(3)), expr.Int(0))}, box(10, v))

	elim := EliminateDivModFromDomainConditions(d, nil)
	assert.Len(t, elim.NewDomain.Variables, 3)
	checkBijection(t, elim, expr.NewEnv())

	tf, err := SimplifyDomain(d, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, tf.NewDomain.Variables, 1)
	assert.Equal(t, "4", tf.NewDomain.BoxVolume().String())
	assert.Empty(t, tf.NewDomain.Conditions)
	checkBijection(t, tf, expr.NewEnv())
}

func TestSimplifyDomainEmpty(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	cond := expr.And(expr.EQ(x, expr.Int(1)), expr.EQ(x, expr.Int(2)))
	d := FromCondition([]*expr.Var{x}, cond, box(100, x))

	tf, err := SimplifyDomain(d, DefaultOptions())
	require.NoError(t, err)
	assert.True(t, tf.NewDomain.IsEmpty())
	assert.Empty(t, tf.NewDomain.Variables)
	assert.Equal(t, "0", tf.OldToNew[x].String())
}

func TestSimplifyDomainPreservesPoints(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	z := expr.IntVar("z")
	vars := []*expr.Var{x, y, z}
	g := &linGen{rnd: rand.New(rand.NewSource(5)), vars: vars, withMod: true}

	for n := 0; n < 40; n++ {
		d := New(vars, g.conditions(1+g.rnd.Intn(3)), box(5, vars...))
		tf, err := SimplifyDomain(d, DefaultOptions())
		require.NoError(t, err)
		if tf.NewDomain.IsEmpty() {
			require.Empty(t, points(t, d, expr.NewEnv()), "%s", d)
			continue
		}
		checkBijection(t, tf, expr.NewEnv())
	}
}

func TestSimplifyDomainIdempotent(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	z := expr.IntVar("z")
	vars := []*expr.Var{x, y, z}

	sum := expr.Add(expr.Sub(expr.Sub(expr.Int(1), expr.Mul(expr.Int(3), x)), expr.Mul(expr.Int(3), y)), z)
	domains := []*Domain{
		New(vars, []expr.Expr{expr.EQ(expr.Mod(sum, expr.Int(2)), expr.Int(0))}, expr.Ranges{
			x: expr.IntRange(2, 2),
			y: expr.IntRange(3, 5),
			z: expr.IntRange(2, 1),
		}),
	}
	g := &linGen{rnd: rand.New(rand.NewSource(37)), vars: vars, withMod: true}
	for n := 0; n < 30; n++ {
		domains = append(domains, New(vars, g.conditions(1+g.rnd.Intn(3)), box(5, vars...)))
	}

	for _, d := range domains {
		first, err := SimplifyDomain(d, DefaultOptions())
		require.NoError(t, err)
		if first.NewDomain.IsEmpty() {
			continue
		}
		second, err := SimplifyDomain(first.NewDomain, DefaultOptions())
		require.NoError(t, err)

		once, twice := first.NewDomain, second.NewDomain
		require.LessOrEqual(t, len(twice.Variables), len(once.Variables), "%s became %s", once, twice)
		if len(twice.Variables) == len(once.Variables) {
			require.LessOrEqual(t, len(twice.Conditions), len(once.Conditions), "%s became %s", once, twice)
		}
		checkBijection(t, second, expr.NewEnv())
	}
}

func TestComposeAssociative(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	z := expr.IntVar("z")
	vars := []*expr.Var{x, y, z}
	g := &linGen{rnd: rand.New(rand.NewSource(11)), vars: vars, withMod: true}

	for n := 0; n < 30; n++ {
		d := New(vars, g.conditions(1+g.rnd.Intn(3)), box(4, vars...))
		a := EliminateDivModFromDomainConditions(d, nil)
		b, err := SolveSystemOfEquations(a.NewDomain, nil)
		require.NoError(t, err)
		if b.NewDomain.IsEmpty() {
			continue
		}
		c, err := DeskewDomain(b.NewDomain, nil)
		require.NoError(t, err)

		ab, err := Compose(a, b)
		require.NoError(t, err)
		left, err := Compose(ab, c)
		require.NoError(t, err)
		bc, err := Compose(b, c)
		require.NoError(t, err)
		right, err := Compose(a, bc)
		require.NoError(t, err)

		require.Same(t, left.NewDomain, right.NewDomain)
		require.Same(t, left.OldDomain, right.OldDomain)
		for _, p := range points(t, d, expr.NewEnv()) {
			img := expr.NewEnv()
			for _, v := range left.NewDomain.Variables {
				l, err := ev.EvalInt(left.NewToOld[v], p)
				require.NoError(t, err)
				r, err := ev.EvalInt(right.NewToOld[v], p)
				require.NoError(t, err)
				require.Equal(t, l, r, "%s at %s", v, p)
				img.SetInt(v, l)
			}
			for _, v := range d.Variables {
				l, err := ev.EvalInt(left.OldToNew[v], img)
				require.NoError(t, err)
				r, err := ev.EvalInt(right.OldToNew[v], img)
				require.NoError(t, err)
				require.Equal(t, l, r, "%s at %s", v, img)
			}
		}
	}
}

func TestEliminateNestedDivision(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	// x/2 - 2 changes sign over the range of x.
	cond := expr.EQ(expr.Mod(expr.Sub(expr.Div(x, expr.Int(2)), expr.Int(2)), expr.Int(3)), expr.Int(0))
	d := New([]*expr.Var{x}, []expr.Expr{cond}, box(10, x))

	tf := EliminateDivModFromDomainConditions(d, nil)
	for _, c := range tf.NewDomain.Conditions {
		assert.False(t, hasDivMod(c), "%s", c)
	}
	checkBijection(t, tf, expr.NewEnv())
}

func hasDivMod(e expr.Expr) bool {
	found := false
	expr.Walk(e, func(n expr.Expr) bool {
		if b, ok := n.(expr.Binary); ok {
			switch b.Op {
			case expr.OpDiv, expr.OpMod, expr.OpFloorDiv, expr.OpFloorMod:
				found = true
			}
		}
		return !found
	})
	return found
}

func TestSolveSystemOfEquationsLargeCoefficients(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	cond := expr.EQ(expr.Add(expr.Mul(expr.Int(1<<30), x), expr.Mul(expr.Int(3), y)), expr.Int(0))
	d := New([]*expr.Var{x, y}, []expr.Expr{cond}, box(4, x, y))

	tf, err := SolveSystemOfEquations(d, nil)
	require.NoError(t, err)
	assert.Same(t, d, tf.NewDomain)
	assert.Same(t, d, tf.OldDomain)
	checkBijection(t, tf, expr.NewEnv())
}

func TestSolveSystemOfInequalitiesManyBounds(t *testing.T) {
	t.Parallel()
	x := expr.IntVar("x")
	y := expr.IntVar("y")
	z := expr.IntVar("z")
	vars := []*expr.Var{x, y, z}
	ranges := expr.Ranges{x: expr.IntRange(-3, 6), y: expr.IntRange(-2, 4), z: expr.IntRange(-2, 4)}

	var ineqs []expr.Expr
	for i := int64(0); i < 17; i++ {
		rest := expr.Add(expr.Mul(expr.Int(i), y), expr.Mul(expr.Int(17-i), z))
		ineqs = append(ineqs,
			expr.LE(expr.Add(x, rest), expr.Int(5)),
			expr.LE(expr.Sub(expr.Mul(expr.Int(i), y), expr.Add(x, expr.Mul(expr.Int(17-i), z))), expr.Int(5)),
		)
	}

	core, logs := observer.New(zapcore.WarnLevel)
	res, err := SolveSystemOfInequalities(ineqs, vars, ranges, trace.New(zap.New(core), 0, 0))
	require.NoError(t, err)
	assert.NotZero(t, logs.FilterMessage("too many bounds to combine").Len())

	before := New(vars, ineqs, ranges)
	after := New(vars, res.AsConditions(), ranges)
	for _, p := range points(t, New(vars, nil, ranges), expr.NewEnv()) {
		require.Equal(t, contains(t, before, p), contains(t, after, p), "at %s", p)
	}
}

func TestAddOuterVariablesIntoDomain(t *testing.T) {
	t.Parallel()
	i := expr.IntVar("i")
	n := expr.IntVar("n")
	d := New([]*expr.Var{i}, []expr.Expr{expr.EQ(i, n)}, box(5, i, n))

	tf := AddOuterVariablesIntoDomain(d, nil)
	require.Len(t, tf.NewDomain.Variables, 2)
	nz := tf.NewDomain.Variables[1]
	assert.Equal(t, "nZ", nz.Name)
	assert.Same(t, n, tf.NewToOld[nz])
	assert.Equal(t, []string{"(nZ == n)", "(i == nZ)"}, []string{
		tf.NewDomain.Conditions[0].String(), tf.NewDomain.Conditions[1].String(),
	})

	base := expr.NewEnv()
	base.SetInt(n, 3)
	checkBijection(t, tf, base)

	opts := DefaultOptions()
	opts.PropagateOuter = true
	res, err := SimplifyDomain(d, opts)
	require.NoError(t, err)
	assert.Empty(t, res.NewDomain.Variables)
	assert.Equal(t, "n", res.OldToNew[i].String())
}

func TestSimplifyReductionDomain(t *testing.T) {
	t.Parallel()
	A := expr.Placeholder("A", expr.FloatType, 10, 10)
	i := expr.IntVar("i")
	j := expr.IntVar("j")
	axis := []expr.IterVar{{Var: i, Dom: expr.IntRange(0, 10)}, {Var: j, Dom: expr.IntRange(0, 10)}}
	red := expr.NewReduce(expr.SumReducer(expr.FloatType), A.Index(i, j), axis, expr.EQ(i, j))

	out, err := SimplifyReductionDomain(red, nil, DefaultOptions())
	require.NoError(t, err)
	simplified, ok := out.(expr.Reduce)
	require.True(t, ok, "%s", out)
	assert.Len(t, simplified.Axis, 1)

	env := expr.NewEnv()
	env.BindTensor(A, func(idx []int64) expr.Value {
		return expr.FloatValue{Val: float64(idx[0]*10 + idx[1])}
	})
	want, err := ev.EvalExpr(red, env)
	require.NoError(t, err)
	got, err := ev.EvalExpr(out, env)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	same, err := SimplifyReductionDomain(i, nil, DefaultOptions())
	require.NoError(t, err)
	assert.Same(t, i, same)
}

// linGen generates random linear conditions with small coefficients.
type linGen struct {
	rnd     *rand.Rand
	vars    []*expr.Var
	withMod bool
}

func (g *linGen) linear() expr.Expr {
	var e expr.Expr = expr.Int(int64(g.rnd.Intn(7) - 3))
	for _, v := range g.vars {
		if c := int64(g.rnd.Intn(5) - 2); c != 0 {
			e = expr.Add(e, expr.Mul(expr.Int(c), v))
		}
	}
	return e
}

func (g *linGen) condition() expr.Expr {
	if g.withMod && g.rnd.Intn(4) == 0 {
		a := expr.Add(g.vars[g.rnd.Intn(len(g.vars))], g.vars[g.rnd.Intn(len(g.vars))])
		return expr.EQ(expr.FloorMod(a, expr.Int(int64(2+g.rnd.Intn(2)))), expr.Int(0))
	}
	e := g.linear()
	switch g.rnd.Intn(3) {
	case 0:
		return expr.EQ(e, expr.Int(0))
	case 1:
		return expr.LE(e, expr.Int(0))
	default:
		return expr.LT(expr.Int(0), e)
	}
}

func (g *linGen) conditions(n int) []expr.Expr {
	res := make([]expr.Expr, n)
	for i := range res {
		res[i] = g.condition()
	}
	return res
}
