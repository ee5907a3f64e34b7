// Package problem loads YAML descriptions of domains and tensors and runs
// the zero elimination passes over them, one file per worker.
package problem

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/gnolang/zeroelim/internal/domain"
	"github.com/gnolang/zeroelim/internal/expr"
)

// File is the YAML layout of a problem file. Expressions are written in
// the syntax accepted by expr.Parse.
//
//	name: masked-sum
//	vars:
//	  - {name: n}
//	  - {name: k, min: "0", extent: "n"}
//	  - {name: i, extent: "n", reduce: true}
//	placeholders:
//	  - {name: a, shape: ["n"]}
//	domains:
//	  - name: multiples
//	    vars: [{name: v, extent: "10"}]
//	    conditions: ["v % 3 == 0"]
//	tensors:
//	  - name: out
//	    axis: [{name: j, extent: "3"}]
//	    body: "sum(select(i < k, a[i], 0), i)"
type File struct {
	Name         string       `yaml:"name"`
	Vars         []VarSpec    `yaml:"vars,omitempty"`
	Funcs        []FuncSpec   `yaml:"funcs,omitempty"`
	Placeholders []TensorSpec `yaml:"placeholders,omitempty"`
	Domains      []DomainSpec `yaml:"domains,omitempty"`
	Tensors      []TensorSpec `yaml:"tensors,omitempty"`
}

// VarSpec declares a variable. A variable with an extent has the range
// [min, min + extent); min defaults to 0. Reduction variables are only
// usable as reduction axes and their range does not constrain anything
// else.
type VarSpec struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type,omitempty"`
	Min    string `yaml:"min,omitempty"`
	Extent string `yaml:"extent,omitempty"`
	Reduce bool   `yaml:"reduce,omitempty"`
}

// FuncSpec declares an opaque pure function.
type FuncSpec struct {
	Name string `yaml:"name"`
	Type string `yaml:"type,omitempty"`
}

// DomainSpec describes a domain to simplify.
type DomainSpec struct {
	Name       string    `yaml:"name"`
	Vars       []VarSpec `yaml:"vars"`
	Conditions []string  `yaml:"conditions,omitempty"`
}

// TensorSpec describes a placeholder (Type and Shape) or a computed tensor
// (Axis and Body).
type TensorSpec struct {
	Name  string    `yaml:"name"`
	Type  string    `yaml:"type,omitempty"`
	Shape []string  `yaml:"shape,omitempty"`
	Axis  []VarSpec `yaml:"axis,omitempty"`
	Body  string    `yaml:"body,omitempty"`
}

// NamedDomain is a domain of a problem file.
type NamedDomain struct {
	Name   string
	Domain *domain.Domain
}

// Problem is a resolved problem file.
type Problem struct {
	Name string
	// Ranges of the free variables.
	Ranges  expr.Ranges
	Inputs  []*expr.Tensor
	Domains []NamedDomain
	Tensors []*expr.Tensor
}

// Load reads and resolves the problem file at path.
func Load(path string) (*Problem, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(src)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}
	return p, nil
}

// Parse resolves a problem from YAML source. Declarations are processed
// in order, so every expression may refer to anything declared before it.
func Parse(src []byte) (*Problem, error) {
	var f File
	if err := yaml.Unmarshal(src, &f); err != nil {
		return nil, err
	}

	p := &Problem{Name: f.Name, Ranges: make(expr.Ranges)}
	scope := expr.NewScope()
	for _, fs := range f.Funcs {
		t, err := parseType(fs.Type)
		if err != nil {
			return nil, errors.Wrapf(err, "function %s", fs.Name)
		}
		scope.Funcs[fs.Name] = t
	}
	for _, vs := range f.Vars {
		v, r, err := declare(scope, vs)
		if err != nil {
			return nil, err
		}
		if r != nil && !vs.Reduce {
			p.Ranges[v] = *r
		}
	}

	for _, ts := range f.Placeholders {
		t, err := placeholder(scope, ts)
		if err != nil {
			return nil, errors.Wrapf(err, "placeholder %s", ts.Name)
		}
		scope.DeclareTensor(t)
		p.Inputs = append(p.Inputs, t)
	}

	for _, ds := range f.Domains {
		d, err := parseDomain(scope, p.Ranges, ds)
		if err != nil {
			return nil, errors.Wrapf(err, "domain %s", ds.Name)
		}
		p.Domains = append(p.Domains, NamedDomain{Name: ds.Name, Domain: d})
	}

	for _, ts := range f.Tensors {
		t, err := compute(scope, ts)
		if err != nil {
			return nil, errors.Wrapf(err, "tensor %s", ts.Name)
		}
		scope.DeclareTensor(t)
		p.Tensors = append(p.Tensors, t)
	}
	return p, nil
}

func parseType(s string) (expr.DType, error) {
	switch s {
	case "", "int":
		return expr.IntType, nil
	case "float":
		return expr.FloatType, nil
	case "bool":
		return expr.BoolType, nil
	}
	return 0, errors.Errorf("unknown type %q", s)
}

// declare adds the variable of vs to scope and returns its range, if any.
func declare(scope *expr.Scope, vs VarSpec) (*expr.Var, *expr.Range, error) {
	if vs.Name == "" {
		return nil, nil, errors.New("variable without a name")
	}
	t, err := parseType(vs.Type)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "variable %s", vs.Name)
	}
	v := expr.NewVar(vs.Name, t)
	if vs.Extent == "" {
		if vs.Reduce {
			return nil, nil, errors.Errorf("reduction variable %s needs an extent", vs.Name)
		}
		scope.Declare(v)
		return v, nil, nil
	}

	lo := expr.Expr(expr.Int(0))
	if vs.Min != "" {
		if lo, err = expr.Parse(vs.Min, scope); err != nil {
			return nil, nil, err
		}
	}
	extent, err := expr.Parse(vs.Extent, scope)
	if err != nil {
		return nil, nil, err
	}
	r := expr.NewRange(lo, extent)
	if vs.Reduce {
		scope.DeclareAxis(v, r)
	} else {
		scope.Declare(v)
	}
	return v, &r, nil
}

// child copies scope so that declarations local to one entry do not leak.
func child(scope *expr.Scope) *expr.Scope {
	c := expr.NewScope()
	for k, v := range scope.Vars {
		c.Vars[k] = v
	}
	for k, t := range scope.Tensors {
		c.Tensors[k] = t
	}
	for k, r := range scope.Axes {
		c.Axes[k] = r
	}
	for k, t := range scope.Funcs {
		c.Funcs[k] = t
	}
	return c
}

func placeholder(scope *expr.Scope, ts TensorSpec) (*expr.Tensor, error) {
	if ts.Body != "" || len(ts.Axis) > 0 {
		return nil, errors.New("placeholders have a shape, not an axis or a body")
	}
	t, err := parseType(ts.Type)
	if err != nil {
		return nil, err
	}
	shape := make([]expr.Expr, len(ts.Shape))
	for i, s := range ts.Shape {
		if shape[i], err = expr.Parse(s, scope); err != nil {
			return nil, err
		}
	}
	return expr.PlaceholderShape(ts.Name, t, shape...), nil
}

func parseDomain(scope *expr.Scope, outer expr.Ranges, ds DomainSpec) (*domain.Domain, error) {
	local := child(scope)
	ranges := outer.Clone()
	vars := make([]*expr.Var, 0, len(ds.Vars))
	for _, vs := range ds.Vars {
		vs.Reduce = false
		v, r, err := declare(local, vs)
		if err != nil {
			return nil, err
		}
		if r != nil {
			ranges[v] = *r
		}
		vars = append(vars, v)
	}
	conds := make([]expr.Expr, len(ds.Conditions))
	for i, s := range ds.Conditions {
		c, err := expr.Parse(s, local)
		if err != nil {
			return nil, err
		}
		if c.Type() != expr.BoolType {
			return nil, errors.Errorf("condition %s is not boolean", c)
		}
		conds[i] = c
	}
	return domain.New(vars, conds, ranges), nil
}

func compute(scope *expr.Scope, ts TensorSpec) (*expr.Tensor, error) {
	if ts.Body == "" {
		return nil, errors.New("computed tensor without a body")
	}
	local := child(scope)
	axis := make([]expr.IterVar, len(ts.Axis))
	for i, vs := range ts.Axis {
		vs.Reduce = false
		v, r, err := declare(local, vs)
		if err != nil {
			return nil, err
		}
		if r == nil {
			return nil, errors.Errorf("axis variable %s needs an extent", vs.Name)
		}
		axis[i] = expr.IterVar{Var: v, Dom: *r}
	}
	body, err := expr.Parse(ts.Body, local)
	if err != nil {
		return nil, err
	}
	return expr.NewTensor(ts.Name, axis, body), nil
}
