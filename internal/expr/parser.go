package expr

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Scope resolves the identifiers of expression text.
type Scope struct {
	Vars    map[string]*Var
	Tensors map[string]*Tensor
	// Axes holds the ranges of variables usable as reduction axes.
	Axes  Ranges
	Funcs map[string]DType
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{
		Vars:    make(map[string]*Var),
		Tensors: make(map[string]*Tensor),
		Axes:    make(Ranges),
		Funcs:   make(map[string]DType),
	}
}

// Declare makes v resolvable by its name.
func (s *Scope) Declare(v *Var) {
	s.Vars[v.Name] = v
}

// DeclareAxis makes v resolvable and usable as a reduction axis.
func (s *Scope) DeclareAxis(v *Var, r Range) {
	s.Vars[v.Name] = v
	s.Axes[v] = r
}

// DeclareTensor makes t resolvable by its name.
func (s *Scope) DeclareTensor(t *Tensor) {
	s.Tensors[t.Name] = t
}

// Parser is a recursive descent parser over the tokens of one expression.
//
// Precedence from loosest to tightest:
//
//	c ? a : b
//	||
//	&&
//	== != < <= > >=
//	+ -
//	* / %        (/ and % are floor division and modulus)
//	unary - !
type Parser struct {
	tokens  []Token
	current int
	scope   *Scope
}

// NewParser creates a parser over tokens resolving names in scope.
func NewParser(tokens []Token, scope *Scope) *Parser {
	return &Parser{tokens: tokens, scope: scope}
}

// Parse lexes and parses src.
func Parse(src string, scope *Scope) (Expr, error) {
	tokens, err := NewLexer(src).Tokenize()
	if err != nil {
		return nil, err
	}
	e, err := NewParser(tokens, scope).Parse()
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %q", src)
	}
	return e, nil
}

// Parse parses a complete expression.
func (p *Parser) Parse() (Expr, error) {
	e, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.Type != TokenEOF {
		return nil, errors.Errorf("unexpected %q at %d", tok.Value, tok.Position)
	}
	return e, nil
}

func (p *Parser) peek() Token {
	return p.tokens[p.current]
}

func (p *Parser) next() Token {
	tok := p.tokens[p.current]
	if tok.Type != TokenEOF {
		p.current++
	}
	return tok
}

func (p *Parser) accept(punct string) bool {
	if tok := p.peek(); tok.Type == TokenPunct && tok.Value == punct {
		p.current++
		return true
	}
	return false
}

func (p *Parser) expect(punct string) error {
	if p.accept(punct) {
		return nil
	}
	tok := p.peek()
	return errors.Errorf("expected %q at %d, found %q", punct, tok.Position, tok.Value)
}

func (p *Parser) parseTernary() (Expr, error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.accept("?") {
		return cond, nil
	}
	t, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	f, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	t, f = promote(t, f)
	return NewSelect(toBool(cond), t, f), nil
}

func (p *Parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept("||") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = Or(toBool(left), toBool(right))
	}
	return left, nil
}

func (p *Parser) parseAnd() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.accept("&&") {
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = And(toBool(left), toBool(right))
	}
	return left, nil
}

var comparisonOps = map[string]BinaryOp{
	"==": OpEQ, "!=": OpNE, "<": OpLT, "<=": OpLE, ">": OpGT, ">=": OpGE,
}

func (p *Parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	op, ok := comparisonOps[tok.Value]
	if tok.Type != TokenPunct || !ok {
		return left, nil
	}
	p.next()
	right, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	left, right = promote(left, right)
	return Binary{Op: op, A: left, B: right}, nil
}

func (p *Parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch {
		case p.accept("+"):
			op = OpAdd
		case p.accept("-"):
			op = OpSub
		default:
			return left, nil
		}
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = arith(op, left, right)
	}
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op BinaryOp
		switch {
		case p.accept("*"):
			op = OpMul
		case p.accept("/"):
			op = OpFloorDiv
		case p.accept("%"):
			op = OpFloorMod
		default:
			return left, nil
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = arith(op, left, right)
	}
}

func (p *Parser) parseUnary() (Expr, error) {
	switch {
	case p.accept("-"):
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		switch n := e.(type) {
		case IntImm:
			return Int(-n.Value), nil
		case FloatImm:
			return Float(-n.Value), nil
		}
		return Sub(MakeZero(e.Type()), e), nil
	case p.accept("!"):
		e, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return LogicalNot(toBool(e)), nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.next()
	switch tok.Type {
	case TokenInt:
		v, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "integer literal at %d", tok.Position)
		}
		return Int(v), nil
	case TokenFloat:
		v, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "float literal at %d", tok.Position)
		}
		return Float(v), nil
	case TokenIdent:
		return p.parseIdent(tok)
	case TokenPunct:
		if tok.Value == "(" {
			e, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			return e, p.expect(")")
		}
	}
	return nil, errors.Errorf("unexpected %q at %d", tok.Value, tok.Position)
}

func (p *Parser) parseIdent(tok Token) (Expr, error) {
	name := tok.Value
	switch {
	case p.accept("("):
		args, err := p.parseArgs(")")
		if err != nil {
			return nil, err
		}
		return p.buildCall(name, args, tok.Position)
	case p.accept("["):
		args, err := p.parseArgs("]")
		if err != nil {
			return nil, err
		}
		t, ok := p.scope.Tensors[name]
		if !ok {
			return nil, errors.Errorf("unknown tensor %q at %d", name, tok.Position)
		}
		if len(args) != len(t.Axis) {
			return nil, errors.Errorf("tensor %q expects %d indices, got %d", name, len(t.Axis), len(args))
		}
		return t.Index(args...), nil
	}
	switch name {
	case "true":
		return True, nil
	case "false":
		return False, nil
	}
	v, ok := p.scope.Vars[name]
	if !ok {
		return nil, errors.Errorf("unknown variable %q at %d", name, tok.Position)
	}
	return v, nil
}

func (p *Parser) parseArgs(closing string) ([]Expr, error) {
	var args []Expr
	if p.accept(closing) {
		return args, nil
	}
	for {
		a, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if p.accept(closing) {
			return args, nil
		}
		if err := p.expect(","); err != nil {
			return nil, err
		}
	}
}

var reducers = map[string]func(DType) *CommReducer{
	"sum":        SumReducer,
	"prod":       ProdReducer,
	"reduce_min": MinReducer,
	"reduce_max": MaxReducer,
}

var binaryFuncs = map[string]BinaryOp{
	"min": OpMin, "max": OpMax,
	"floordiv": OpFloorDiv, "floormod": OpFloorMod,
	"truncdiv": OpDiv, "truncmod": OpMod,
}

func (p *Parser) buildCall(name string, args []Expr, pos int) (Expr, error) {
	arity := func(n int) error {
		if len(args) != n {
			return errors.Errorf("%s expects %d arguments, got %d at %d", name, n, len(args), pos)
		}
		return nil
	}
	if op, ok := binaryFuncs[name]; ok {
		if err := arity(2); err != nil {
			return nil, err
		}
		return arith(op, args[0], args[1]), nil
	}
	switch name {
	case "select", IfThenElseName:
		if err := arity(3); err != nil {
			return nil, err
		}
		t, f := promote(args[1], args[2])
		if name == "select" {
			return NewSelect(toBool(args[0]), t, f), nil
		}
		return IfThenElse(toBool(args[0]), t, f), nil
	case "int", "float", "bool":
		if err := arity(1); err != nil {
			return nil, err
		}
		to := map[string]DType{"int": IntType, "float": FloatType, "bool": BoolType}[name]
		return NewCast(to, args[0]), nil
	}
	base, where := strings.CutSuffix(name, "_where")
	if mk, ok := reducers[base]; ok {
		return p.buildReduce(mk, args, where, pos)
	}
	if t, ok := p.scope.Funcs[name]; ok {
		return PureCall(name, t, args...), nil
	}
	return nil, errors.Errorf("unknown function %q at %d", name, pos)
}

// buildReduce handles name(source, axes...) and name_where(cond, source, axes...).
func (p *Parser) buildReduce(mk func(DType) *CommReducer, args []Expr, where bool, pos int) (Expr, error) {
	cond := True
	if where {
		if len(args) == 0 {
			return nil, errors.Errorf("reduction without condition at %d", pos)
		}
		cond, args = toBool(args[0]), args[1:]
	}
	if len(args) < 2 {
		return nil, errors.Errorf("reduction needs a source and at least one axis at %d", pos)
	}
	source := args[0]
	axis := make([]IterVar, 0, len(args)-1)
	for _, a := range args[1:] {
		v, ok := a.(*Var)
		if !ok {
			return nil, errors.Errorf("reduction axis %s is not a variable at %d", a, pos)
		}
		r, ok := p.scope.Axes[v]
		if !ok {
			return nil, errors.Errorf("variable %s has no reduction range at %d", v, pos)
		}
		axis = append(axis, IterVar{Var: v, Dom: r})
	}
	return NewReduce(mk(source.Type()), source, axis, cond), nil
}

// promote converts mixed operands to a common type: float wins over int,
// and booleans take the type of the other side.
func promote(a, b Expr) (Expr, Expr) {
	ta, tb := a.Type(), b.Type()
	switch {
	case ta == tb:
		return a, b
	case ta == FloatType || tb == BoolType:
		return a, NewCast(ta, b)
	default:
		return NewCast(tb, a), b
	}
}

func arith(op BinaryOp, a, b Expr) Expr {
	a, b = promote(a, b)
	return Binary{Op: op, A: a, B: b}
}

func toBool(e Expr) Expr {
	if e.Type() == BoolType {
		return e
	}
	return NE(e, MakeZero(e.Type()))
}
