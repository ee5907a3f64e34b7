package expr

import (
	"math"

	"github.com/pkg/errors"

	"github.com/gnolang/zeroelim/internal/intmath"
)

var (
	ErrUnboundVar    = errors.New("unbound variable")
	ErrUnboundTensor = errors.New("unbound placeholder tensor")
	ErrDivByZero     = errors.New("division by zero")
	ErrOutOfBounds   = errors.New("tensor index out of bounds")
	ErrTypeMismatch  = errors.New("operand type mismatch")
	ErrUnknownCall   = errors.New("unknown function")
)

// PureFunc implements a pure call during evaluation.
type PureFunc func(args []Value) (Value, error)

// EvalConfig holds configuration for the evaluator.
type EvalConfig struct {
	// Funcs implements CallPure nodes by name.
	Funcs map[string]PureFunc
	// CheckBounds rejects tensor accesses outside the tensor shape.
	CheckBounds bool
}

// DefaultConfig returns the default evaluation configuration.
func DefaultConfig() EvalConfig {
	return EvalConfig{CheckBounds: true}
}

// Evaluator computes the concrete value of an expression.
type Evaluator struct {
	config EvalConfig
}

// NewEvaluator creates a new evaluator with the given configuration.
func NewEvaluator(config EvalConfig) *Evaluator {
	return &Evaluator{config: config}
}

// EvalExpr evaluates an expression in the given environment.
func (ev *Evaluator) EvalExpr(expr Expr, env *Env) (Value, error) {
	switch e := expr.(type) {
	case IntImm:
		return IntValue{Val: e.Value}, nil

	case FloatImm:
		return FloatValue{Val: e.Value}, nil

	case BoolImm:
		return BoolValue{Val: e.Value}, nil

	case *Var:
		val := env.Get(e)
		if val == nil {
			return nil, errors.Wrap(ErrUnboundVar, e.Name)
		}
		return val, nil

	case Binary:
		if e.Op.IsLogical() {
			return ev.evalLogical(e, env)
		}
		left, err := ev.EvalExpr(e.A, env)
		if err != nil {
			return nil, err
		}
		right, err := ev.EvalExpr(e.B, env)
		if err != nil {
			return nil, err
		}
		return evalBinary(e.Op, left, right)

	case Not:
		v, err := ev.EvalBool(e.A, env)
		if err != nil {
			return nil, err
		}
		return BoolValue{Val: !v}, nil

	case Select:
		return ev.evalConditional(e.Cond, e.True, e.False, env)

	case Cast:
		v, err := ev.EvalExpr(e.Value, env)
		if err != nil {
			return nil, err
		}
		return castValue(e.To, v), nil

	case Call:
		return ev.evalCall(e, env)

	case Reduce:
		return ev.evalReduce(e, env)

	default:
		return nil, errors.Errorf("cannot evaluate %T", expr)
	}
}

// EvalBool evaluates a boolean expression.
func (ev *Evaluator) EvalBool(expr Expr, env *Env) (bool, error) {
	v, err := ev.EvalExpr(expr, env)
	if err != nil {
		return false, err
	}
	b, ok := v.(BoolValue)
	if !ok {
		return false, errors.Wrapf(ErrTypeMismatch, "%s is not boolean", expr)
	}
	return b.Val, nil
}

// EvalInt evaluates an integer expression.
func (ev *Evaluator) EvalInt(expr Expr, env *Env) (int64, error) {
	v, err := ev.EvalExpr(expr, env)
	if err != nil {
		return 0, err
	}
	i, ok := v.(IntValue)
	if !ok {
		return 0, errors.Wrapf(ErrTypeMismatch, "%s is not an integer", expr)
	}
	return i.Val, nil
}

func (ev *Evaluator) evalLogical(e Binary, env *Env) (Value, error) {
	a, err := ev.EvalBool(e.A, env)
	if err != nil {
		return nil, err
	}
	if e.Op == OpAnd && !a {
		return BoolValue{Val: false}, nil
	}
	if e.Op == OpOr && a {
		return BoolValue{Val: true}, nil
	}
	b, err := ev.EvalBool(e.B, env)
	if err != nil {
		return nil, err
	}
	return BoolValue{Val: b}, nil
}

func (ev *Evaluator) evalConditional(cond, t, f Expr, env *Env) (Value, error) {
	c, err := ev.EvalBool(cond, env)
	if err != nil {
		return nil, err
	}
	if c {
		return ev.EvalExpr(t, env)
	}
	return ev.EvalExpr(f, env)
}

func (ev *Evaluator) evalCall(e Call, env *Env) (Value, error) {
	if e.IsIfThenElse() {
		return ev.evalConditional(e.Args[0], e.Args[1], e.Args[2], env)
	}
	args := make([]Value, len(e.Args))
	for i, a := range e.Args {
		v, err := ev.EvalExpr(a, env)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	switch e.Kind {
	case CallTensor:
		return ev.evalTensorRead(e, args, env)
	default:
		fn, ok := ev.config.Funcs[e.Name]
		if !ok {
			return nil, errors.Wrap(ErrUnknownCall, e.Name)
		}
		return fn(args)
	}
}

func (ev *Evaluator) evalTensorRead(e Call, args []Value, env *Env) (Value, error) {
	t := e.Tensor
	if t == nil {
		return nil, errors.Wrap(ErrUnboundTensor, e.Name)
	}
	indices := make([]int64, len(args))
	for i, a := range args {
		iv, ok := a.(IntValue)
		if !ok {
			return nil, errors.Wrapf(ErrTypeMismatch, "index %d of %s", i, e.Name)
		}
		indices[i] = iv.Val
	}
	inner := NewChildEnv(env)
	if ev.config.CheckBounds || !t.IsPlaceholder() {
		if len(indices) != len(t.Axis) {
			return nil, errors.Errorf("%s expects %d indices, got %d", t.Name, len(t.Axis), len(indices))
		}
	}
	if ev.config.CheckBounds {
		for i, iv := range t.Axis {
			lo, err := ev.EvalInt(iv.Dom.Min, env)
			if err != nil {
				return nil, err
			}
			ext, err := ev.EvalInt(iv.Dom.Extent, env)
			if err != nil {
				return nil, err
			}
			if indices[i] < lo || indices[i] >= lo+ext {
				return nil, errors.Wrapf(ErrOutOfBounds, "%s", e)
			}
		}
	}
	if t.IsPlaceholder() {
		fn := env.tensor(t)
		if fn == nil {
			return nil, errors.Wrap(ErrUnboundTensor, t.Name)
		}
		return fn(indices), nil
	}
	for i, iv := range t.Axis {
		inner.SetInt(iv.Var, indices[i])
	}
	return ev.EvalExpr(t.Body[e.ValueIndex], inner)
}

func (ev *Evaluator) evalReduce(e Reduce, env *Env) (Value, error) {
	acc := make([]Value, len(e.Combiner.Identity))
	for i, id := range e.Combiner.Identity {
		v, err := ev.EvalExpr(id, env)
		if err != nil {
			return nil, err
		}
		acc[i] = v
	}
	scope := NewChildEnv(env)
	var loop func(level int) error
	loop = func(level int) error {
		if level == len(e.Axis) {
			ok, err := ev.EvalBool(e.Condition, scope)
			if err != nil || !ok {
				return err
			}
			step := NewChildEnv(scope)
			for i, v := range e.Combiner.Lhs {
				step.Set(v, acc[i])
			}
			for i, v := range e.Combiner.Rhs {
				val, err := ev.EvalExpr(e.Source[i], scope)
				if err != nil {
					return err
				}
				step.Set(v, val)
			}
			next := make([]Value, len(acc))
			for i, r := range e.Combiner.Result {
				val, err := ev.EvalExpr(r, step)
				if err != nil {
					return err
				}
				next[i] = val
			}
			acc = next
			return nil
		}
		iv := e.Axis[level]
		lo, err := ev.EvalInt(iv.Dom.Min, scope)
		if err != nil {
			return err
		}
		ext, err := ev.EvalInt(iv.Dom.Extent, scope)
		if err != nil {
			return err
		}
		for x := lo; x < lo+ext; x++ {
			scope.SetInt(iv.Var, x)
			if err := loop(level + 1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := loop(0); err != nil {
		return nil, err
	}
	return acc[e.ValueIndex], nil
}

func evalBinary(op BinaryOp, left, right Value) (Value, error) {
	if l, ok := left.(IntValue); ok {
		if r, ok := right.(IntValue); ok {
			return evalIntBinary(op, l.Val, r.Val)
		}
	}
	if l, ok := left.(BoolValue); ok {
		if r, ok := right.(BoolValue); ok {
			switch op {
			case OpEQ:
				return BoolValue{Val: l.Val == r.Val}, nil
			case OpNE:
				return BoolValue{Val: l.Val != r.Val}, nil
			case OpMul:
				return BoolValue{Val: l.Val && r.Val}, nil
			}
			return nil, errors.Wrapf(ErrTypeMismatch, "%s on booleans", op)
		}
	}
	l, lok := toFloat(left)
	r, rok := toFloat(right)
	if !lok || !rok {
		return nil, errors.Wrapf(ErrTypeMismatch, "%s %s %s", left, op, right)
	}
	return evalFloatBinary(op, l, r)
}

func evalIntBinary(op BinaryOp, l, r int64) (Value, error) {
	switch op {
	case OpAdd:
		return IntValue{Val: l + r}, nil
	case OpSub:
		return IntValue{Val: l - r}, nil
	case OpMul:
		return IntValue{Val: l * r}, nil
	case OpDiv, OpMod, OpFloorDiv, OpFloorMod:
		if r == 0 {
			return nil, ErrDivByZero
		}
		switch op {
		case OpDiv:
			return IntValue{Val: l / r}, nil
		case OpMod:
			return IntValue{Val: l % r}, nil
		case OpFloorDiv:
			return IntValue{Val: intmath.FloorDiv(l, r)}, nil
		default:
			return IntValue{Val: intmath.FloorMod(l, r)}, nil
		}
	case OpMin:
		return IntValue{Val: min(l, r)}, nil
	case OpMax:
		return IntValue{Val: max(l, r)}, nil
	case OpEQ:
		return BoolValue{Val: l == r}, nil
	case OpNE:
		return BoolValue{Val: l != r}, nil
	case OpLT:
		return BoolValue{Val: l < r}, nil
	case OpLE:
		return BoolValue{Val: l <= r}, nil
	case OpGT:
		return BoolValue{Val: l > r}, nil
	case OpGE:
		return BoolValue{Val: l >= r}, nil
	}
	return nil, errors.Wrapf(ErrTypeMismatch, "%s on integers", op)
}

func evalFloatBinary(op BinaryOp, l, r float64) (Value, error) {
	switch op {
	case OpAdd:
		return FloatValue{Val: l + r}, nil
	case OpSub:
		return FloatValue{Val: l - r}, nil
	case OpMul:
		return FloatValue{Val: l * r}, nil
	case OpDiv, OpFloorDiv:
		if r == 0 {
			return nil, ErrDivByZero
		}
		if op == OpFloorDiv {
			return FloatValue{Val: math.Floor(l / r)}, nil
		}
		return FloatValue{Val: l / r}, nil
	case OpMod, OpFloorMod:
		if r == 0 {
			return nil, ErrDivByZero
		}
		if op == OpFloorMod {
			return FloatValue{Val: l - r*math.Floor(l/r)}, nil
		}
		return FloatValue{Val: math.Mod(l, r)}, nil
	case OpMin:
		return FloatValue{Val: math.Min(l, r)}, nil
	case OpMax:
		return FloatValue{Val: math.Max(l, r)}, nil
	case OpEQ:
		return BoolValue{Val: l == r}, nil
	case OpNE:
		return BoolValue{Val: l != r}, nil
	case OpLT:
		return BoolValue{Val: l < r}, nil
	case OpLE:
		return BoolValue{Val: l <= r}, nil
	case OpGT:
		return BoolValue{Val: l > r}, nil
	case OpGE:
		return BoolValue{Val: l >= r}, nil
	}
	return nil, errors.Wrapf(ErrTypeMismatch, "%s on floats", op)
}

func toFloat(v Value) (float64, bool) {
	switch x := v.(type) {
	case FloatValue:
		return x.Val, true
	case IntValue:
		return float64(x.Val), true
	}
	return 0, false
}

func castValue(to DType, v Value) Value {
	switch to {
	case IntType:
		switch x := v.(type) {
		case FloatValue:
			return IntValue{Val: int64(x.Val)}
		case BoolValue:
			if x.Val {
				return IntValue{Val: 1}
			}
			return IntValue{Val: 0}
		}
	case FloatType:
		switch x := v.(type) {
		case IntValue:
			return FloatValue{Val: float64(x.Val)}
		case BoolValue:
			if x.Val {
				return FloatValue{Val: 1}
			}
			return FloatValue{Val: 0}
		}
	case BoolType:
		switch x := v.(type) {
		case IntValue:
			return BoolValue{Val: x.Val != 0}
		case FloatValue:
			return BoolValue{Val: x.Val != 0}
		}
	}
	return v
}

// IsZeroValue reports whether v is the zero of its type.
func IsZeroValue(v Value) bool {
	switch x := v.(type) {
	case IntValue:
		return x.Val == 0
	case FloatValue:
		return x.Val == 0
	case BoolValue:
		return !x.Val
	}
	return false
}
