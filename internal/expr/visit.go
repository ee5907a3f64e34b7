package expr

// MapChildren rebuilds e with f applied to each direct child expression.
// Reduce axis ranges, condition and sources are all children.
func MapChildren(e Expr, f func(Expr) Expr) Expr {
	switch n := e.(type) {
	case Binary:
		return Binary{Op: n.Op, A: f(n.A), B: f(n.B)}
	case Not:
		return Not{A: f(n.A)}
	case Select:
		return Select{Cond: f(n.Cond), True: f(n.True), False: f(n.False)}
	case Cast:
		return Cast{To: n.To, Value: f(n.Value)}
	case Call:
		args := make([]Expr, len(n.Args))
		for i, a := range n.Args {
			args[i] = f(a)
		}
		n.Args = args
		return n
	case Reduce:
		axis := make([]IterVar, len(n.Axis))
		for i, iv := range n.Axis {
			axis[i] = IterVar{Var: iv.Var, Dom: Range{Min: f(iv.Dom.Min), Extent: f(iv.Dom.Extent)}}
		}
		src := make([]Expr, len(n.Source))
		for i, s := range n.Source {
			src[i] = f(s)
		}
		return Reduce{Combiner: n.Combiner, Source: src, Axis: axis, Condition: f(n.Condition), ValueIndex: n.ValueIndex}
	default:
		return e
	}
}

// Walk calls visit on e and, if visit returns true, on its descendants in
// pre-order.
func Walk(e Expr, visit func(Expr) bool) {
	if !visit(e) {
		return
	}
	MapChildren(e, func(c Expr) Expr {
		Walk(c, visit)
		return c
	})
}

// Substitute replaces free occurrences of the mapped variables.
func Substitute(e Expr, m map[*Var]Expr) Expr {
	if len(m) == 0 {
		return e
	}
	var rec func(Expr) Expr
	rec = func(e Expr) Expr {
		if v, ok := e.(*Var); ok {
			if r, ok := m[v]; ok {
				return r
			}
			return v
		}
		return MapChildren(e, rec)
	}
	return rec(e)
}

// SubstituteVar replaces a single variable.
func SubstituteVar(e Expr, v *Var, with Expr) Expr {
	return Substitute(e, map[*Var]Expr{v: with})
}

// FreeVars lists the variables e depends on in first-occurrence order.
// Reduction axis variables are bound by their Reduce and are not free.
func FreeVars(e Expr) []*Var {
	var res []*Var
	seen := make(map[*Var]bool)
	var rec func(e Expr, bound map[*Var]bool)
	rec = func(e Expr, bound map[*Var]bool) {
		switch n := e.(type) {
		case *Var:
			if !bound[n] && !seen[n] {
				seen[n] = true
				res = append(res, n)
			}
		case Reduce:
			inner := make(map[*Var]bool, len(bound)+len(n.Axis))
			for k := range bound {
				inner[k] = true
			}
			for _, iv := range n.Axis {
				rec(iv.Dom.Min, bound)
				rec(iv.Dom.Extent, bound)
				inner[iv.Var] = true
			}
			rec(n.Condition, inner)
			for _, s := range n.Source {
				rec(s, inner)
			}
		default:
			MapChildren(e, func(c Expr) Expr {
				rec(c, bound)
				return c
			})
		}
	}
	rec(e, nil)
	return res
}

// UsesVar reports whether any variable satisfying pred occurs in e.
func UsesVar(e Expr, pred func(*Var) bool) bool {
	found := false
	Walk(e, func(n Expr) bool {
		if found {
			return false
		}
		if v, ok := n.(*Var); ok && pred(v) {
			found = true
		}
		return !found
	})
	return found
}

// UsesAnyVar reports whether e mentions any of vars.
func UsesAnyVar(e Expr, vars ...*Var) bool {
	set := VarSet(vars)
	return UsesVar(e, func(v *Var) bool { return set[v] })
}

// VarSet builds a membership set from a variable list.
func VarSet(vars []*Var) map[*Var]bool {
	set := make(map[*Var]bool, len(vars))
	for _, v := range vars {
		set[v] = true
	}
	return set
}

// ContainsReduce reports whether a Reduce node occurs in e.
func ContainsReduce(e Expr) bool {
	found := false
	Walk(e, func(n Expr) bool {
		if _, ok := n.(Reduce); ok {
			found = true
		}
		return !found
	})
	return found
}

// CollectTensors lists the tensors read by e in first-occurrence order.
func CollectTensors(e Expr) []*Tensor {
	var res []*Tensor
	seen := make(map[*Tensor]bool)
	Walk(e, func(n Expr) bool {
		if c, ok := n.(Call); ok && c.Kind == CallTensor && c.Tensor != nil && !seen[c.Tensor] {
			seen[c.Tensor] = true
			res = append(res, c.Tensor)
		}
		return true
	})
	return res
}
