// Package domain simplifies integer iteration domains: sets of points
// given by variables, their ranges and a conjunction of conditions.
//
// Every simplification step returns a Transformation that relates the
// variables of the new domain to those of the old one. Steps are chained
// with Compose. The pipeline is SimplifyDomain: optional div/mod
// elimination followed by alternating rounds of equation solving and
// deskewing.
package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/gnolang/zeroelim/internal/arith"
	"github.com/gnolang/zeroelim/internal/expr"
	"github.com/gnolang/zeroelim/internal/formula"
)

var (
	// ErrDomainMismatch is returned when composing transformations whose
	// domains do not chain.
	ErrDomainMismatch = errors.New("domain mismatch")
	// ErrDuplicateVariable is returned when a variable is listed twice.
	ErrDuplicateVariable = errors.New("duplicate variable")
)

// Domain is the set of integer points of Variables within Ranges that
// satisfy all Conditions. Ranges may also hold ranges of outer variables
// that the conditions mention.
type Domain struct {
	Variables  []*expr.Var
	Conditions []expr.Expr
	Ranges     expr.Ranges
}

// New creates a domain.
func New(vars []*expr.Var, conds []expr.Expr, ranges expr.Ranges) *Domain {
	if ranges == nil {
		ranges = expr.Ranges{}
	}
	return &Domain{Variables: vars, Conditions: conds, Ranges: ranges}
}

// FromCondition creates a domain whose conditions are the atomic formulas
// of cond followed by its residual, unless the residual is true.
func FromCondition(vars []*expr.Var, cond expr.Expr, ranges expr.Ranges) *Domain {
	f := formula.FactorOutAtomicFormulas(cond)
	conds := f.AtomicSlice()
	if !expr.IsTrue(f.Rest) {
		conds = append(conds, f.Rest)
	}
	return New(vars, conds, ranges)
}

// FromAxis creates the domain of a reduction over axis restricted by cond.
// Ranges of outer variables come from outer.
func FromAxis(axis []expr.IterVar, cond expr.Expr, outer expr.Ranges) *Domain {
	return FromCondition(expr.AxisVars(axis), cond, outer.Merge(expr.IterVarsToRanges(axis)))
}

// Condition returns the conjunction of the conditions.
func (d *Domain) Condition() expr.Expr {
	return expr.All(d.Conditions...)
}

// IsEmpty reports whether the conditions contain false.
func (d *Domain) IsEmpty() bool {
	for _, c := range d.Conditions {
		if expr.IsFalse(c) {
			return true
		}
	}
	return false
}

// Axis returns the variables with their ranges. Variables without a range
// are reported.
func (d *Domain) Axis() ([]expr.IterVar, error) {
	axis := make([]expr.IterVar, len(d.Variables))
	for i, v := range d.Variables {
		r, ok := d.Ranges[v]
		if !ok {
			return nil, errors.Errorf("no range for variable %s", v)
		}
		axis[i] = expr.IterVar{Var: v, Dom: r}
	}
	return axis, nil
}

// BoxVolume returns the product of the extents of the variables, or nil if
// some variable has no range.
func (d *Domain) BoxVolume() expr.Expr {
	var vol expr.Expr = expr.Int(1)
	for _, v := range d.Variables {
		r, ok := d.Ranges[v]
		if !ok {
			return nil
		}
		vol = expr.Mul(vol, r.Extent)
	}
	return arith.Simplify(vol, d.Ranges)
}

func (d *Domain) String() string {
	vol := "inf"
	if v := d.BoxVolume(); v != nil {
		vol = v.String()
	}
	names := make([]string, len(d.Variables))
	for i, v := range d.Variables {
		names[i] = v.Name
	}
	conds := make([]string, len(d.Conditions))
	for i, c := range d.Conditions {
		conds[i] = c.String()
	}
	return fmt.Sprintf("Domain(box_volume=%s, variables=[%s], conditions=[%s], ranges=%s)",
		vol, strings.Join(names, ", "), strings.Join(conds, ", "), formatRanges(d.Ranges))
}

func formatRanges(r expr.Ranges) string {
	vars := r.SortedVars()
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = fmt.Sprintf("%s: %s", v.Name, r[v])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Transformation relates two domains. NewToOld expresses each variable of
// NewDomain over the variables of OldDomain and OldToNew the converse.
type Transformation struct {
	NewDomain *Domain
	OldDomain *Domain
	NewToOld  map[*expr.Var]expr.Expr
	OldToNew  map[*expr.Var]expr.Expr
}

// IdentityTransformation maps d onto itself.
func IdentityTransformation(d *Domain) *Transformation {
	m := make(map[*expr.Var]expr.Expr, len(d.Variables))
	for _, v := range d.Variables {
		m[v] = v
	}
	return &Transformation{NewDomain: d, OldDomain: d, NewToOld: m, OldToNew: m}
}

// EmptyTransformation maps d onto the empty domain. Old variables are sent
// to zero.
func EmptyTransformation(d *Domain) *Transformation {
	oldToNew := make(map[*expr.Var]expr.Expr, len(d.Variables))
	for _, v := range d.Variables {
		oldToNew[v] = expr.MakeZero(v.Type())
	}
	return &Transformation{
		NewDomain: New(nil, []expr.Expr{expr.False}, nil),
		OldDomain: d,
		NewToOld:  map[*expr.Var]expr.Expr{},
		OldToNew:  oldToNew,
	}
}

// Compose chains first and second, which must satisfy
// second.OldDomain == first.NewDomain.
func Compose(first, second *Transformation) (*Transformation, error) {
	if second.OldDomain != first.NewDomain {
		return nil, errors.Wrapf(ErrDomainMismatch, "cannot compose %s after %s", second.OldDomain, first.NewDomain)
	}
	newToOld := make(map[*expr.Var]expr.Expr, len(second.NewToOld))
	for v, e := range second.NewToOld {
		newToOld[v] = arith.Simplify(expr.Substitute(e, first.NewToOld), first.OldDomain.Ranges)
	}
	oldToNew := make(map[*expr.Var]expr.Expr, len(first.OldToNew))
	for v, e := range first.OldToNew {
		oldToNew[v] = arith.Simplify(expr.Substitute(e, second.OldToNew), second.NewDomain.Ranges)
	}
	return &Transformation{
		NewDomain: second.NewDomain,
		OldDomain: first.OldDomain,
		NewToOld:  newToOld,
		OldToNew:  oldToNew,
	}, nil
}

func (t *Transformation) String() string {
	return fmt.Sprintf("Transformation(new_domain=%s, old_domain=%s, new_to_old=%s, old_to_new=%s)",
		t.NewDomain, t.OldDomain, formatVarMap(t.NewToOld), formatVarMap(t.OldToNew))
}

func formatVarMap(m map[*expr.Var]expr.Expr) string {
	vars := make([]*expr.Var, 0, len(m))
	for v := range m {
		vars = append(vars, v)
	}
	sortVars(vars)
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = fmt.Sprintf("%s: %s", v.Name, m[v])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func sortVars(vars []*expr.Var) {
	sort.Slice(vars, func(i, j int) bool { return expr.Compare(vars[i], vars[j]) < 0 })
}

// checkDistinct reports a variable occurring twice in vars.
func checkDistinct(vars []*expr.Var) error {
	seen := make(map[*expr.Var]bool, len(vars))
	for _, v := range vars {
		if seen[v] {
			return errors.Wrapf(ErrDuplicateVariable, "variable %s", v)
		}
		seen[v] = true
	}
	return nil
}
