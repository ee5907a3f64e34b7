package expr

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"
)

// Range is the half-open integer interval [Min, Min+Extent).
type Range struct {
	Min    Expr
	Extent Expr
}

// NewRange builds a range from its minimum and extent.
func NewRange(min, extent Expr) Range {
	return Range{Min: min, Extent: extent}
}

// IntRange builds the constant range [min, min+extent).
func IntRange(min, extent int64) Range {
	return Range{Min: Int(min), Extent: Int(extent)}
}

// Max returns the inclusive upper end of the range, unsimplified.
func (r Range) Max() Expr {
	return Sub(Add(r.Min, r.Extent), Int(1))
}

func (r Range) String() string {
	if lo, ok := AsInt(r.Min); ok {
		if ext, ok := AsInt(r.Extent); ok {
			return fmt.Sprintf("[%d, %d)", lo, lo+ext)
		}
	}
	return fmt.Sprintf("[%s, %s + %s)", r.Min, r.Min, r.Extent)
}

// IterVar is a variable together with its iteration range.
type IterVar struct {
	Var *Var
	Dom Range
}

func (iv IterVar) String() string {
	return fmt.Sprintf("%s: %s", iv.Var.Name, iv.Dom)
}

// Ranges maps variables to their ranges.
type Ranges map[*Var]Range

// Clone returns a shallow copy.
func (r Ranges) Clone() Ranges {
	c := make(Ranges, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Merge returns a copy of r where entries of other take precedence.
func (r Ranges) Merge(other Ranges) Ranges {
	c := r.Clone()
	for k, v := range other {
		c[k] = v
	}
	return c
}

// SortedVars returns the keys of r in the order defined by Compare.
func (r Ranges) SortedVars() []*Var {
	vars := make([]*Var, 0, len(r))
	for v := range r {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return Compare(vars[i], vars[j]) < 0 })
	return vars
}

// IterVarsToRanges converts an axis list into a Ranges map.
func IterVarsToRanges(axis []IterVar) Ranges {
	res := make(Ranges, len(axis))
	for _, iv := range axis {
		res[iv.Var] = iv.Dom
	}
	return res
}

// AxisVars extracts the variables of an axis list.
func AxisVars(axis []IterVar) []*Var {
	res := make([]*Var, len(axis))
	for i, iv := range axis {
		res[i] = iv.Var
	}
	return res
}

// CommReducer is a commutative, associative combiner of one or more
// accumulators. Result[i] combines Lhs and Rhs; Identity[i] is its neutral
// element.
type CommReducer struct {
	Name     string
	Lhs      []*Var
	Rhs      []*Var
	Result   []Expr
	Identity []Expr
}

// NewCommReducer builds a combiner from its parts.
func NewCommReducer(name string, lhs, rhs []*Var, result, identity []Expr) *CommReducer {
	return &CommReducer{Name: name, Lhs: lhs, Rhs: rhs, Result: result, Identity: identity}
}

// Combine substitutes the accumulators into the result expressions.
func (c *CommReducer) Combine(lhs, rhs []Expr) []Expr {
	m := make(map[*Var]Expr, len(c.Lhs)+len(c.Rhs))
	for i, v := range c.Lhs {
		m[v] = lhs[i]
	}
	for i, v := range c.Rhs {
		m[v] = rhs[i]
	}
	res := make([]Expr, len(c.Result))
	for i, r := range c.Result {
		res[i] = Substitute(r, m)
	}
	return res
}

func scalarReducer(name string, t DType, identity Expr, op func(a, b Expr) Expr) *CommReducer {
	x := NewVar("x", t)
	y := NewVar("y", t)
	return NewCommReducer(name, []*Var{x}, []*Var{y}, []Expr{op(x, y)}, []Expr{identity})
}

// SumReducer returns the x + y combiner.
func SumReducer(t DType) *CommReducer {
	return scalarReducer("sum", t, MakeZero(t), Add)
}

// ProdReducer returns the x * y combiner.
func ProdReducer(t DType) *CommReducer {
	return scalarReducer("prod", t, MakeConst(t, 1), Mul)
}

// MinReducer returns the min(x, y) combiner.
func MinReducer(t DType) *CommReducer {
	if t == FloatType {
		return scalarReducer("min", t, Float(math.Inf(1)), Min)
	}
	return scalarReducer("min", t, Int(math.MaxInt64), Min)
}

// MaxReducer returns the max(x, y) combiner.
func MaxReducer(t DType) *CommReducer {
	if t == FloatType {
		return scalarReducer("max", t, Float(math.Inf(-1)), Max)
	}
	return scalarReducer("max", t, Int(math.MinInt64), Max)
}

// NewReduce builds a single-output reduction.
func NewReduce(c *CommReducer, source Expr, axis []IterVar, cond Expr) Expr {
	if cond == nil {
		cond = True
	}
	return Reduce{Combiner: c, Source: []Expr{source}, Axis: axis, Condition: cond}
}

// Sum builds a sum reduction of source over axis.
func Sum(source Expr, axis ...IterVar) Expr {
	return NewReduce(SumReducer(source.Type()), source, axis, True)
}

var tensorSeq atomic.Uint64

// Tensor is either a placeholder (no Body) or the result of a compute
// operation with one body expression per output.
type Tensor struct {
	Name  string
	Axis  []IterVar
	Body  []Expr
	DType DType
	seq   uint64
}

// Placeholder declares an input tensor with a constant shape.
func Placeholder(name string, t DType, shape ...int64) *Tensor {
	axis := make([]IterVar, len(shape))
	for i, n := range shape {
		axis[i] = IterVar{Var: IntVar(fmt.Sprintf("%s_ax%d", name, i)), Dom: IntRange(0, n)}
	}
	return &Tensor{Name: name, Axis: axis, DType: t, seq: tensorSeq.Add(1)}
}

// PlaceholderShape declares an input tensor with a possibly symbolic shape.
func PlaceholderShape(name string, t DType, shape ...Expr) *Tensor {
	axis := make([]IterVar, len(shape))
	for i, n := range shape {
		axis[i] = IterVar{Var: IntVar(fmt.Sprintf("%s_ax%d", name, i)), Dom: NewRange(Int(0), n)}
	}
	return &Tensor{Name: name, Axis: axis, DType: t, seq: tensorSeq.Add(1)}
}

// NewTensor declares a computed tensor. Body[i] is output i evaluated at
// the point given by the axis variables.
func NewTensor(name string, axis []IterVar, body ...Expr) *Tensor {
	t := &Tensor{Name: name, Axis: axis, Body: body, seq: tensorSeq.Add(1)}
	if len(body) > 0 {
		t.DType = body[0].Type()
	}
	return t
}

// Compute declares a computed tensor of the given constant shape whose
// axis variables are named after names.
func Compute(name string, shape []int64, names []string, fn func(vars []*Var) Expr) *Tensor {
	axis := make([]IterVar, len(shape))
	vars := make([]*Var, len(shape))
	for i, n := range shape {
		vname := fmt.Sprintf("ax%d", i)
		if i < len(names) {
			vname = names[i]
		}
		vars[i] = IntVar(vname)
		axis[i] = IterVar{Var: vars[i], Dom: IntRange(0, n)}
	}
	return NewTensor(name, axis, fn(vars))
}

// IsPlaceholder reports whether the tensor has no body.
func (t *Tensor) IsPlaceholder() bool {
	return len(t.Body) == 0
}

// NumOutputs returns the number of outputs of the operation.
func (t *Tensor) NumOutputs() int {
	if t.IsPlaceholder() {
		return 1
	}
	return len(t.Body)
}

// OutputType returns the scalar type of output i.
func (t *Tensor) OutputType(i int) DType {
	if t.IsPlaceholder() {
		return t.DType
	}
	return t.Body[i].Type()
}

// Shape returns the extents of the axes.
func (t *Tensor) Shape() []Expr {
	res := make([]Expr, len(t.Axis))
	for i, iv := range t.Axis {
		res[i] = iv.Dom.Extent
	}
	return res
}

// Index reads output 0 at the given indices.
func (t *Tensor) Index(args ...Expr) Expr {
	return t.IndexOutput(0, args...)
}

// IndexOutput reads output i at the given indices.
func (t *Tensor) IndexOutput(i int, args ...Expr) Expr {
	return Call{Name: t.Name, Kind: CallTensor, Args: args, DType: t.OutputType(i), Tensor: t, ValueIndex: i}
}

// AxisExprs returns the axis variables as expressions.
func (t *Tensor) AxisExprs() []Expr {
	res := make([]Expr, len(t.Axis))
	for i, iv := range t.Axis {
		res[i] = iv.Var
	}
	return res
}

func (t *Tensor) String() string {
	axis := make([]string, len(t.Axis))
	for i, iv := range t.Axis {
		axis[i] = iv.String()
	}
	if t.IsPlaceholder() {
		return fmt.Sprintf("%s = placeholder(%v, %s)", t.Name, axis, t.DType)
	}
	return fmt.Sprintf("%s(%v) = %v", t.Name, axis, t.Body)
}
