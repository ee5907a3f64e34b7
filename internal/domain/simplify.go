package domain

import (
	"go.uber.org/zap"

	"github.com/gnolang/zeroelim/internal/arith"
	"github.com/gnolang/zeroelim/internal/expr"
	"github.com/gnolang/zeroelim/internal/trace"
)

// DefaultIterations is the number of solve and deskew rounds of
// SimplifyDomain. Two rounds are usually enough; a third rarely helps.
const DefaultIterations = 2

// Options configures SimplifyDomain.
type Options struct {
	// EliminateDivMod replaces divisions and remainders by constants with
	// new variables before solving.
	EliminateDivMod bool
	// Iterations of equation solving followed by deskewing.
	Iterations int
	// PropagateOuter copies outer variables into the domain before each
	// round so that their equalities are solved as well.
	PropagateOuter bool
	Tracer         *trace.Tracer
}

// DefaultOptions returns the options of the standard pipeline.
func DefaultOptions() Options {
	return Options{EliminateDivMod: true, Iterations: DefaultIterations}
}

// SimplifyDomain runs the domain pipeline: optional div/mod elimination
// followed by rounds of SolveSystemOfEquations and DeskewDomain. The
// returned transformation maps d onto the final domain.
//
// The result never has more variables than d, nor as many variables and
// more conditions. A round that would make the domain larger is dropped,
// and when div/mod elimination leaves more variables than it removes the
// pipeline is run again without it. Running SimplifyDomain on its own
// result therefore never grows the domain.
func SimplifyDomain(d *Domain, opts Options) (*Transformation, error) {
	tr := opts.Tracer.Enter("SimplifyDomain", zap.Stringer("domain", d), zap.Bool("eliminate_div_mod", opts.EliminateDivMod))

	res, err := simplifyDomain(d, opts, tr)
	if err != nil {
		return nil, err
	}
	if opts.EliminateDivMod && larger(res.NewDomain, d) {
		tr.Warn("div/mod elimination grew the domain", zap.Stringer("domain", res.NewDomain))
		opts.EliminateDivMod = false
		if res, err = simplifyDomain(d, opts, tr); err != nil {
			return nil, err
		}
	}
	if larger(res.NewDomain, d) {
		res = IdentityTransformation(d)
	}
	tr.Result(res)
	return res, nil
}

func simplifyDomain(d *Domain, opts Options, tr *trace.Tracer) (*Transformation, error) {
	iterations := opts.Iterations
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	res := IdentityTransformation(d)
	if opts.EliminateDivMod {
		var err error
		if res, err = Compose(res, EliminateDivModFromDomainConditions(d, tr)); err != nil {
			return nil, err
		}
	}
	for i := 0; i < iterations; i++ {
		round, err := simplifyRound(res.NewDomain, opts, tr)
		if err != nil {
			return nil, err
		}
		if larger(round.NewDomain, res.NewDomain) {
			tr.Warn("round dropped", zap.Int("round", i), zap.Stringer("domain", round.NewDomain))
			break
		}
		if res, err = Compose(res, round); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// simplifyRound solves the equations of d and deskews the result.
func simplifyRound(d *Domain, opts Options, tr *trace.Tracer) (*Transformation, error) {
	res := IdentityTransformation(d)
	then := func(step *Transformation, err error) error {
		if err != nil {
			return err
		}
		res, err = Compose(res, step)
		return err
	}

	if err := then(SolveSystemOfEquations(res.NewDomain, tr)); err != nil {
		return nil, err
	}
	if opts.PropagateOuter {
		if err := then(AddOuterVariablesIntoDomain(res.NewDomain, tr), nil); err != nil {
			return nil, err
		}
		if err := then(SolveSystemOfEquations(res.NewDomain, tr)); err != nil {
			return nil, err
		}
	}
	if err := then(DeskewDomain(res.NewDomain, tr)); err != nil {
		return nil, err
	}
	return res, nil
}

// larger reports whether a has more variables than b, or as many and more
// conditions. An empty domain is never larger.
func larger(a, b *Domain) bool {
	if a.IsEmpty() {
		return false
	}
	if len(a.Variables) != len(b.Variables) {
		return len(a.Variables) > len(b.Variables)
	}
	return len(a.Conditions) > len(b.Conditions)
}

// SimplifyReductionDomain simplifies the iteration domain of a reduction
// using its condition. The sources are rewritten over the new axis and the
// result is simplified, which removes reductions over an empty domain.
// Expressions other than reductions are returned unchanged.
func SimplifyReductionDomain(e expr.Expr, outer expr.Ranges, opts Options) (expr.Expr, error) {
	red, ok := e.(expr.Reduce)
	if !ok {
		return e, nil
	}
	tr := opts.Tracer.Enter("SimplifyReductionDomain", zap.Stringer("expr", e))
	opts.Tracer = tr

	res, err := SimplifyDomain(FromAxis(red.Axis, red.Condition, outer), opts)
	if err != nil {
		return nil, err
	}
	src := make([]expr.Expr, len(red.Source))
	for i, s := range red.Source {
		src[i] = expr.Substitute(s, res.OldToNew)
	}
	axis, err := res.NewDomain.Axis()
	if err != nil {
		tr.Warn("reduction domain left unbounded", zap.Error(err))
		return e, nil
	}
	out := arith.Simplify(expr.Reduce{
		Combiner:   red.Combiner,
		Source:     src,
		Axis:       axis,
		Condition:  res.NewDomain.Condition(),
		ValueIndex: red.ValueIndex,
	}, outer)
	tr.Result(out)
	return out, nil
}
