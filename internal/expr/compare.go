package expr

import (
	"cmp"
	"slices"
)

func kindRank(e Expr) int {
	switch e.(type) {
	case IntImm:
		return 1
	case FloatImm:
		return 2
	case BoolImm:
		return 3
	case *Var:
		return 4
	case Binary:
		return 5
	case Not:
		return 6
	case Select:
		return 7
	case Cast:
		return 8
	case Call:
		return 9
	case Reduce:
		return 10
	default:
		return 0
	}
}

// Compare defines a total structural order on expressions. It returns a
// negative number, zero or a positive number. Zero means the expressions are
// structurally equal; variables are equal only if they are identical.
func Compare(a, b Expr) int {
	if c := cmp.Compare(kindRank(a), kindRank(b)); c != 0 {
		return c
	}
	switch x := a.(type) {
	case IntImm:
		return cmp.Compare(x.Value, b.(IntImm).Value)
	case FloatImm:
		return cmp.Compare(x.Value, b.(FloatImm).Value)
	case BoolImm:
		y := b.(BoolImm)
		if x.Value == y.Value {
			return 0
		}
		if !x.Value {
			return -1
		}
		return 1
	case *Var:
		return compareVars(x, b.(*Var))
	case Binary:
		y := b.(Binary)
		if c := cmp.Compare(x.Op, y.Op); c != 0 {
			return c
		}
		if c := Compare(x.A, y.A); c != 0 {
			return c
		}
		return Compare(x.B, y.B)
	case Not:
		return Compare(x.A, b.(Not).A)
	case Select:
		y := b.(Select)
		if c := Compare(x.Cond, y.Cond); c != 0 {
			return c
		}
		if c := Compare(x.True, y.True); c != 0 {
			return c
		}
		return Compare(x.False, y.False)
	case Cast:
		y := b.(Cast)
		if c := cmp.Compare(x.To, y.To); c != 0 {
			return c
		}
		return Compare(x.Value, y.Value)
	case Call:
		y := b.(Call)
		if c := cmp.Compare(x.Kind, y.Kind); c != 0 {
			return c
		}
		if c := cmp.Compare(x.Name, y.Name); c != 0 {
			return c
		}
		if c := compareTensors(x.Tensor, y.Tensor); c != 0 {
			return c
		}
		if c := cmp.Compare(x.ValueIndex, y.ValueIndex); c != 0 {
			return c
		}
		return CompareSlices(x.Args, y.Args)
	case Reduce:
		y := b.(Reduce)
		if c := compareReducers(x.Combiner, y.Combiner); c != 0 {
			return c
		}
		if c := cmp.Compare(x.ValueIndex, y.ValueIndex); c != 0 {
			return c
		}
		if c := compareAxis(x.Axis, y.Axis); c != 0 {
			return c
		}
		if c := Compare(x.Condition, y.Condition); c != 0 {
			return c
		}
		return CompareSlices(x.Source, y.Source)
	}
	return 0
}

func compareVars(x, y *Var) int {
	if x == y {
		return 0
	}
	if c := cmp.Compare(x.Name, y.Name); c != 0 {
		return c
	}
	return cmp.Compare(x.seq, y.seq)
}

func compareTensors(x, y *Tensor) int {
	switch {
	case x == y:
		return 0
	case x == nil:
		return -1
	case y == nil:
		return 1
	}
	if c := cmp.Compare(x.Name, y.Name); c != 0 {
		return c
	}
	return cmp.Compare(x.seq, y.seq)
}

func compareReducers(x, y *CommReducer) int {
	if x == y {
		return 0
	}
	if c := cmp.Compare(x.Name, y.Name); c != 0 {
		return c
	}
	if c := CompareSlices(x.Identity, y.Identity); c != 0 {
		return c
	}
	// Structurally equal combiners with different accumulator variables are
	// compared by their results after renaming rhs onto lhs positions.
	if len(x.Lhs) != len(y.Lhs) || len(x.Rhs) != len(y.Rhs) {
		return cmp.Compare(len(x.Lhs), len(y.Lhs))
	}
	lhs := make([]Expr, len(x.Lhs))
	for i, v := range x.Lhs {
		lhs[i] = v
	}
	rhs := make([]Expr, len(x.Rhs))
	for i, v := range x.Rhs {
		rhs[i] = v
	}
	return CompareSlices(x.Result, y.Combine(lhs, rhs))
}

func compareAxis(x, y []IterVar) int {
	if c := cmp.Compare(len(x), len(y)); c != 0 {
		return c
	}
	for i := range x {
		if c := compareVars(x[i].Var, y[i].Var); c != 0 {
			return c
		}
		if c := Compare(x[i].Dom.Min, y[i].Dom.Min); c != 0 {
			return c
		}
		if c := Compare(x[i].Dom.Extent, y[i].Dom.Extent); c != 0 {
			return c
		}
	}
	return 0
}

// CompareSlices orders expression lists by length, then element-wise.
func CompareSlices(x, y []Expr) int {
	if c := cmp.Compare(len(x), len(y)); c != 0 {
		return c
	}
	for i := range x {
		if c := Compare(x[i], y[i]); c != 0 {
			return c
		}
	}
	return 0
}

// Equal reports structural equality.
func Equal(a, b Expr) bool {
	return Compare(a, b) == 0
}

// SortExprs sorts a list in place by Compare.
func SortExprs(list []Expr) {
	slices.SortFunc(list, Compare)
}

// Dedup sorts a list and drops structural duplicates.
func Dedup(list []Expr) []Expr {
	res := slices.Clone(list)
	SortExprs(res)
	return slices.CompactFunc(res, Equal)
}
