package optimize

import (
	"github.com/gnolang/zeroelim/internal/expr"
)

// InlineThisCall replaces a read of a computed tensor by the tensor body
// evaluated at the call arguments. Reductions get fresh axis variables.
// Anything else is returned unchanged.
func InlineThisCall(e expr.Expr) expr.Expr {
	c, ok := e.(expr.Call)
	if !ok || c.Kind != expr.CallTensor || c.Tensor == nil || c.Tensor.IsPlaceholder() {
		return e
	}
	m := make(map[*expr.Var]expr.Expr, len(c.Tensor.Axis))
	for i, iv := range c.Tensor.Axis {
		m[iv.Var] = c.Args[i]
	}
	return cloneReduction(expr.Substitute(c.Tensor.Body[c.ValueIndex], m))
}

// cloneReduction renames the axis variables of a top-level reduction.
func cloneReduction(e expr.Expr) expr.Expr {
	red, ok := e.(expr.Reduce)
	if !ok {
		return e
	}
	m := make(map[*expr.Var]expr.Expr, len(red.Axis))
	axis := make([]expr.IterVar, len(red.Axis))
	for i, iv := range red.Axis {
		nv := iv.Var.CopyWithSuffix("")
		m[iv.Var] = nv
		axis[i] = expr.IterVar{Var: nv, Dom: iv.Dom}
	}
	src := make([]expr.Expr, len(red.Source))
	for i, s := range red.Source {
		src[i] = expr.Substitute(s, m)
	}
	return expr.Reduce{
		Combiner:   red.Combiner,
		Source:     src,
		Axis:       axis,
		Condition:  expr.Substitute(red.Condition, m),
		ValueIndex: red.ValueIndex,
	}
}

// InlineTailCall inlines the tensor read each body of t consists of.
func InlineTailCall(t *expr.Tensor) *expr.Tensor {
	out, _ := transformBody(t, func(body expr.Expr, _ []expr.IterVar) (expr.Expr, error) {
		return InlineThisCall(body), nil
	})
	return out
}

type inliner struct {
	allowed    map[*expr.Tensor]bool
	reductions bool
}

func newInliner(inlineable []*expr.Tensor, reductions bool) *inliner {
	in := &inliner{allowed: make(map[*expr.Tensor]bool, len(inlineable)), reductions: reductions}
	for _, t := range inlineable {
		in.allowed[t] = true
	}
	return in
}

func (in *inliner) rewrite(e expr.Expr) expr.Expr {
	if c, ok := e.(expr.Call); ok && c.Kind == expr.CallTensor && c.Tensor != nil && !c.Tensor.IsPlaceholder() {
		_, isReduce := c.Tensor.Body[0].(expr.Reduce)
		if (len(in.allowed) == 0 || in.allowed[c.Tensor]) && (in.reductions || !isReduce) {
			return in.rewrite(InlineThisCall(e))
		}
	}
	return expr.MapChildren(e, in.rewrite)
}

// InlineTensors inlines every read of a computed tensor from inlineable,
// or of any computed tensor if inlineable is empty. Tensors computed by a
// reduction are only inlined when inlineReductions is set. Inlined bodies
// are processed again, so chains of tensors collapse.
func InlineTensors(e expr.Expr, inlineable []*expr.Tensor, inlineReductions bool) expr.Expr {
	return newInliner(inlineable, inlineReductions).rewrite(e)
}

// InlineTensorsIn applies InlineTensors to every body of t.
func InlineTensorsIn(t *expr.Tensor, inlineable []*expr.Tensor, inlineReductions bool) *expr.Tensor {
	in := newInliner(inlineable, inlineReductions)
	out, _ := transformBody(t, func(body expr.Expr, _ []expr.IterVar) (expr.Expr, error) {
		return in.rewrite(body), nil
	})
	return out
}

// transformBody builds a tensor with the same name and axis as t whose
// bodies are rewritten by fn. Placeholders are returned as is.
func transformBody(t *expr.Tensor, fn func(body expr.Expr, axis []expr.IterVar) (expr.Expr, error)) (*expr.Tensor, error) {
	if t.IsPlaceholder() {
		return t, nil
	}
	body := make([]expr.Expr, len(t.Body))
	for i, b := range t.Body {
		nb, err := fn(b, t.Axis)
		if err != nil {
			return nil, err
		}
		body[i] = nb
	}
	return expr.NewTensor(t.Name, t.Axis, body...), nil
}
