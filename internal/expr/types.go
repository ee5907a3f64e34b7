package expr

import (
	"fmt"
	"sort"
	"strings"
)

// DType is the scalar type carried by an expression.
type DType int

const (
	InvalidType DType = iota
	IntType
	BoolType
	FloatType
)

func (t DType) String() string {
	switch t {
	case IntType:
		return "int"
	case BoolType:
		return "bool"
	case FloatType:
		return "float"
	default:
		return "invalid"
	}
}

// Value represents a concrete value produced by the Evaluator.
type Value interface {
	isValue()
	String() string
	Equal(other Value) bool
}

// IntValue represents an integer constant.
type IntValue struct {
	Val int64
}

func (IntValue) isValue() {}
func (v IntValue) String() string {
	return fmt.Sprintf("%d", v.Val)
}

func (v IntValue) Equal(other Value) bool {
	if o, ok := other.(IntValue); ok {
		return v.Val == o.Val
	}
	return false
}

// BoolValue represents a boolean constant.
type BoolValue struct {
	Val bool
}

func (BoolValue) isValue() {}
func (v BoolValue) String() string {
	return fmt.Sprintf("%t", v.Val)
}

func (v BoolValue) Equal(other Value) bool {
	if o, ok := other.(BoolValue); ok {
		return v.Val == o.Val
	}
	return false
}

// FloatValue represents a floating point constant.
type FloatValue struct {
	Val float64
}

func (FloatValue) isValue() {}
func (v FloatValue) String() string {
	return fmt.Sprintf("%g", v.Val)
}

func (v FloatValue) Equal(other Value) bool {
	if o, ok := other.(FloatValue); ok {
		return v.Val == o.Val
	}
	return false
}

// Env binds variables to concrete values.
// Child environments shadow their parent, which is how reduction axes
// and tensor bodies get their own scope.
type Env struct {
	vars    map[*Var]Value
	tensors map[*Tensor]TensorFunc
	parent  *Env
}

// TensorFunc supplies the elements of a placeholder tensor.
type TensorFunc func(indices []int64) Value

// NewEnv creates a new empty environment.
func NewEnv() *Env {
	return &Env{
		vars:    make(map[*Var]Value),
		tensors: make(map[*Tensor]TensorFunc),
	}
}

// NewChildEnv creates a new environment with the given parent.
func NewChildEnv(parent *Env) *Env {
	return &Env{
		vars:    make(map[*Var]Value),
		tensors: make(map[*Tensor]TensorFunc),
		parent:  parent,
	}
}

// Get retrieves the value of a variable, or nil if it is unbound.
func (e *Env) Get(v *Var) Value {
	if val, ok := e.vars[v]; ok {
		return val
	}
	if e.parent != nil {
		return e.parent.Get(v)
	}
	return nil
}

// Set binds a variable in the current scope.
func (e *Env) Set(v *Var, val Value) {
	e.vars[v] = val
}

// SetInt is a shorthand for Set(v, IntValue{Val: val}).
func (e *Env) SetInt(v *Var, val int64) {
	e.vars[v] = IntValue{Val: val}
}

// BindTensor registers the element function of a placeholder tensor.
func (e *Env) BindTensor(t *Tensor, fn TensorFunc) {
	e.tensors[t] = fn
}

func (e *Env) tensor(t *Tensor) TensorFunc {
	if fn, ok := e.tensors[t]; ok {
		return fn
	}
	if e.parent != nil {
		return e.parent.tensor(t)
	}
	return nil
}

// Clone creates a copy of the current scope sharing the same parent.
func (e *Env) Clone() *Env {
	c := &Env{
		vars:    make(map[*Var]Value, len(e.vars)),
		tensors: make(map[*Tensor]TensorFunc, len(e.tensors)),
		parent:  e.parent,
	}
	for k, v := range e.vars {
		c.vars[k] = v
	}
	for k, v := range e.tensors {
		c.tensors[k] = v
	}
	return c
}

func (e *Env) String() string {
	keys := make([]*Var, 0, len(e.vars))
	for k := range e.vars {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return Compare(keys[i], keys[j]) < 0 })

	var sb strings.Builder
	sb.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %s", k.Name, e.vars[k])
	}
	if e.parent != nil {
		sb.WriteString(" | parent: ")
		sb.WriteString(e.parent.String())
	}
	sb.WriteString("}")
	return sb.String()
}
