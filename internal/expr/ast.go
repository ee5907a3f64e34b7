package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
)

// Expr represents an expression in the IR.
type Expr interface {
	isExpr()
	Type() DType
	String() string
}

// IntImm is an integer constant.
type IntImm struct {
	Value int64
}

func (IntImm) isExpr() {}
func (IntImm) Type() DType { return IntType }
func (e IntImm) String() string { return strconv.FormatInt(e.Value, 10) }

// FloatImm is a floating point constant.
type FloatImm struct {
	Value float64
}

func (FloatImm) isExpr() {}
func (FloatImm) Type() DType { return FloatType }
func (e FloatImm) String() string {
	s := strconv.FormatFloat(e.Value, 'g', -1, 64)
	if math.IsInf(e.Value, 0) || math.IsNaN(e.Value) {
		return s
	}
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// BoolImm is a boolean constant.
type BoolImm struct {
	Value bool
}

func (BoolImm) isExpr() {}
func (BoolImm) Type() DType { return BoolType }
func (e BoolImm) String() string { return strconv.FormatBool(e.Value) }

var varSeq atomic.Uint64

// Var is a named variable. Two variables are the same only if they are
// the same pointer; the name is for printing and ordering.
type Var struct {
	Name  string
	DType DType
	seq   uint64
}

// NewVar creates a fresh variable.
func NewVar(name string, t DType) *Var {
	return &Var{Name: name, DType: t, seq: varSeq.Add(1)}
}

// IntVar creates a fresh integer variable.
func IntVar(name string) *Var {
	return NewVar(name, IntType)
}

// CopyWithSuffix creates a fresh variable with the same type whose name
// is extended by suffix.
func (v *Var) CopyWithSuffix(suffix string) *Var {
	return NewVar(v.Name+suffix, v.DType)
}

func (*Var) isExpr() {}
func (v *Var) Type() DType { return v.DType }
func (v *Var) String() string { return v.Name }

// BinaryOp represents binary operators.
type BinaryOp int

const (
	_ BinaryOp = iota
	OpAdd
	OpSub
	OpMul
	OpDiv // truncating division
	OpMod // truncating remainder
	OpFloorDiv
	OpFloorMod
	OpMin
	OpMax
	OpEQ
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	OpAnd
	OpOr
)

func (op BinaryOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "truncdiv"
	case OpMod:
		return "truncmod"
	case OpFloorDiv:
		return "/"
	case OpFloorMod:
		return "%"
	case OpMin:
		return "min"
	case OpMax:
		return "max"
	case OpEQ:
		return "=="
	case OpNE:
		return "!="
	case OpLT:
		return "<"
	case OpLE:
		return "<="
	case OpGT:
		return ">"
	case OpGE:
		return ">="
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	default:
		return "?"
	}
}

// IsComparison reports whether op yields a boolean from two numbers.
func (op BinaryOp) IsComparison() bool {
	return op >= OpEQ && op <= OpGE
}

// IsLogical reports whether op is && or ||.
func (op BinaryOp) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

// Binary is an arithmetic, comparison or logical operation.
type Binary struct {
	Op   BinaryOp
	A, B Expr
}

func (Binary) isExpr() {}
func (e Binary) Type() DType {
	if e.Op.IsComparison() || e.Op.IsLogical() {
		return BoolType
	}
	return e.A.Type()
}

func (e Binary) String() string {
	switch e.Op {
	case OpDiv, OpMod, OpMin, OpMax:
		return fmt.Sprintf("%s(%s, %s)", e.Op, e.A, e.B)
	}
	return fmt.Sprintf("(%s %s %s)", e.A, e.Op, e.B)
}

// Not is logical negation.
type Not struct {
	A Expr
}

func (Not) isExpr() {}
func (Not) Type() DType { return BoolType }
func (e Not) String() string { return "!" + e.A.String() }

// Select evaluates to True when Cond holds and to False otherwise.
type Select struct {
	Cond, True, False Expr
}

func (Select) isExpr() {}
func (e Select) Type() DType { return e.True.Type() }
func (e Select) String() string {
	return fmt.Sprintf("select(%s, %s, %s)", e.Cond, e.True, e.False)
}

// Cast converts Value to the scalar type To.
type Cast struct {
	To    DType
	Value Expr
}

func (Cast) isExpr() {}
func (e Cast) Type() DType { return e.To }
func (e Cast) String() string {
	return fmt.Sprintf("%s(%s)", e.To, e.Value)
}

// CallKind distinguishes the flavors of Call.
type CallKind int

const (
	_ CallKind = iota
	// CallPure is a side-effect free function of its arguments.
	CallPure
	// CallIntrinsic is a builtin with special semantics, such as if_then_else.
	CallIntrinsic
	// CallTensor reads one element of a tensor.
	CallTensor
)

// IfThenElseName is the intrinsic name of the lazy conditional.
const IfThenElseName = "if_then_else"

// Call is a function call or a tensor element access.
type Call struct {
	Name       string
	Kind       CallKind
	Args       []Expr
	DType      DType
	Tensor     *Tensor
	ValueIndex int
}

func (Call) isExpr() {}
func (e Call) Type() DType { return e.DType }
func (e Call) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	if e.Kind == CallTensor {
		name := e.Name
		if e.Tensor != nil && len(e.Tensor.Body) > 1 {
			name = fmt.Sprintf("%s.v%d", name, e.ValueIndex)
		}
		return fmt.Sprintf("%s[%s]", name, strings.Join(args, ", "))
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(args, ", "))
}

// IsIfThenElse reports whether e is the if_then_else intrinsic.
func (e Call) IsIfThenElse() bool {
	return e.Kind == CallIntrinsic && e.Name == IfThenElseName && len(e.Args) == 3
}

// Reduce is a commutative reduction of Source over Axis, restricted to the
// points where Condition holds. Multi-output reductions share one node per
// output, distinguished by ValueIndex.
type Reduce struct {
	Combiner   *CommReducer
	Source     []Expr
	Axis       []IterVar
	Condition  Expr
	ValueIndex int
}

func (Reduce) isExpr() {}
func (e Reduce) Type() DType {
	return e.Source[e.ValueIndex].Type()
}

func (e Reduce) String() string {
	src := make([]string, len(e.Source))
	for i, s := range e.Source {
		src[i] = s.String()
	}
	axis := make([]string, len(e.Axis))
	for i, iv := range e.Axis {
		axis[i] = iv.String()
	}
	return fmt.Sprintf("reduce(%s, source=[%s], axis=[%s], where=%s, value_index=%d)",
		e.Combiner.Name, strings.Join(src, ", "), strings.Join(axis, ", "), e.Condition, e.ValueIndex)
}

var (
	True  Expr = BoolImm{Value: true}
	False Expr = BoolImm{Value: false}
)

// Int returns an integer constant.
func Int(v int64) Expr { return IntImm{Value: v} }

// Float returns a floating point constant.
func Float(v float64) Expr { return FloatImm{Value: v} }

// Bool returns a boolean constant.
func Bool(v bool) Expr { return BoolImm{Value: v} }

// MakeConst returns the constant v of type t.
func MakeConst(t DType, v int64) Expr {
	switch t {
	case FloatType:
		return FloatImm{Value: float64(v)}
	case BoolType:
		return BoolImm{Value: v != 0}
	default:
		return IntImm{Value: v}
	}
}

// MakeZero returns the zero of type t.
func MakeZero(t DType) Expr { return MakeConst(t, 0) }

func Add(a, b Expr) Expr { return Binary{Op: OpAdd, A: a, B: b} }
func Sub(a, b Expr) Expr { return Binary{Op: OpSub, A: a, B: b} }
func Mul(a, b Expr) Expr { return Binary{Op: OpMul, A: a, B: b} }
func Div(a, b Expr) Expr { return Binary{Op: OpDiv, A: a, B: b} }
func Mod(a, b Expr) Expr { return Binary{Op: OpMod, A: a, B: b} }
func FloorDiv(a, b Expr) Expr { return Binary{Op: OpFloorDiv, A: a, B: b} }
func FloorMod(a, b Expr) Expr { return Binary{Op: OpFloorMod, A: a, B: b} }
func Min(a, b Expr) Expr { return Binary{Op: OpMin, A: a, B: b} }
func Max(a, b Expr) Expr { return Binary{Op: OpMax, A: a, B: b} }
func EQ(a, b Expr) Expr { return Binary{Op: OpEQ, A: a, B: b} }
func NE(a, b Expr) Expr { return Binary{Op: OpNE, A: a, B: b} }
func LT(a, b Expr) Expr { return Binary{Op: OpLT, A: a, B: b} }
func LE(a, b Expr) Expr { return Binary{Op: OpLE, A: a, B: b} }
func GT(a, b Expr) Expr { return Binary{Op: OpGT, A: a, B: b} }
func GE(a, b Expr) Expr { return Binary{Op: OpGE, A: a, B: b} }
func And(a, b Expr) Expr { return Binary{Op: OpAnd, A: a, B: b} }
func Or(a, b Expr) Expr { return Binary{Op: OpOr, A: a, B: b} }

// LogicalNot negates a boolean expression.
func LogicalNot(a Expr) Expr { return Not{A: a} }

// NewSelect builds select(cond, t, f).
func NewSelect(cond, t, f Expr) Expr { return Select{Cond: cond, True: t, False: f} }

// NewCast builds a conversion of v to type t.
func NewCast(t DType, v Expr) Expr { return Cast{To: t, Value: v} }

// IfThenElse builds the lazy conditional intrinsic.
func IfThenElse(cond, t, f Expr) Expr {
	return Call{Name: IfThenElseName, Kind: CallIntrinsic, Args: []Expr{cond, t, f}, DType: t.Type()}
}

// PureCall builds a call to a side-effect free function.
func PureCall(name string, t DType, args ...Expr) Expr {
	return Call{Name: name, Kind: CallPure, Args: args, DType: t}
}

// All folds a list of conditions with &&. The empty list yields true.
func All(conds ...Expr) Expr {
	if len(conds) == 0 {
		return True
	}
	res := conds[0]
	for _, c := range conds[1:] {
		res = And(res, c)
	}
	return res
}

// SelectElseZero builds select(cond, e, 0).
func SelectElseZero(cond, e Expr) Expr {
	return NewSelect(cond, e, MakeZero(e.Type()))
}

// IsConst reports whether e is an integer or float constant equal to v.
func IsConst(e Expr, v int64) bool {
	switch n := e.(type) {
	case IntImm:
		return n.Value == v
	case FloatImm:
		return n.Value == float64(v)
	case BoolImm:
		return n.Value == (v != 0)
	}
	return false
}

// AsInt returns the value of an integer constant.
func AsInt(e Expr) (int64, bool) {
	if n, ok := e.(IntImm); ok {
		return n.Value, true
	}
	return 0, false
}

// IsTrue reports whether e is the constant true.
func IsTrue(e Expr) bool {
	b, ok := e.(BoolImm)
	return ok && b.Value
}

// IsFalse reports whether e is the constant false.
func IsFalse(e Expr) bool {
	b, ok := e.(BoolImm)
	return ok && !b.Value
}
