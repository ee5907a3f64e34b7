package lattice

// ValueKind models the zero-ness lattice for expression values.
type ValueKind int

const (
	Bottom ValueKind = iota // no value, e.g. an empty reduction domain
	Zero
	NonZero
	MaybeZero
	Top
)

func (v ValueKind) String() string {
	switch v {
	case Bottom:
		return "Bottom"
	case Zero:
		return "Zero"
	case NonZero:
		return "NonZero"
	case MaybeZero:
		return "MaybeZero"
	case Top:
		return "Top"
	default:
		return "Unknown"
	}
}

// Join returns the least upper bound in the lattice.
func Join(a, b ValueKind) ValueKind {
	if a == Bottom {
		return b
	}
	if b == Bottom {
		return a
	}
	if a == Top || b == Top {
		return Top
	}
	if a == MaybeZero || b == MaybeZero {
		return MaybeZero
	}
	if a == b {
		return a
	}
	// Zero + NonZero.
	return MaybeZero
}

// Meet returns the greatest lower bound in the lattice.
func Meet(a, b ValueKind) ValueKind {
	if a == Bottom || b == Bottom {
		return Bottom
	}
	if a == Top {
		return b
	}
	if b == Top {
		return a
	}
	if a == b {
		return a
	}
	if a == MaybeZero && (b == Zero || b == NonZero) {
		return b
	}
	if b == MaybeZero && (a == Zero || a == NonZero) {
		return a
	}
	return Bottom
}

// IsZero reports whether the value is certainly zero.
func (v ValueKind) IsZero() bool {
	return v == Zero
}

// Mul is the transfer function of multiplication: a zero factor wins.
func Mul(a, b ValueKind) ValueKind {
	if a == Bottom || b == Bottom {
		return Bottom
	}
	if a == Zero || b == Zero {
		return Zero
	}
	if a == NonZero && b == NonZero {
		return NonZero
	}
	return Join(a, b)
}

// Add is the transfer function of addition and subtraction. Only the sum
// of two zeros is known; a nonzero plus a zero stays nonzero.
func Add(a, b ValueKind) ValueKind {
	if a == Bottom || b == Bottom {
		return Bottom
	}
	if a == Zero {
		return b
	}
	if b == Zero {
		return a
	}
	if a == Top || b == Top {
		return Top
	}
	return MaybeZero
}

// Div is the transfer function of division: only a zero dividend is known.
func Div(a, b ValueKind) ValueKind {
	if a == Bottom || b == Bottom {
		return Bottom
	}
	if a == Zero {
		return Zero
	}
	return Join(a, MaybeZero)
}

// Select is the transfer function of a conditional with an unknown
// condition.
func Select(t, f ValueKind) ValueKind {
	return Join(t, f)
}
