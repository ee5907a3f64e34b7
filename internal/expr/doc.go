// Package expr defines the tensor expression IR the zero elimination
// passes operate on.
//
// The IR is a closed sum of node kinds:
//   - constants: IntImm, FloatImm, BoolImm
//   - variables: *Var, compared by identity
//   - Binary arithmetic, comparison and logical nodes
//   - Not, Select, Cast
//   - Call, covering pure intrinsics and tensor element access
//   - Reduce, a commutative reduction over iteration axes
//
// Nodes are immutable values. Rewrites build new nodes instead of
// mutating existing ones, so subtrees may be freely shared.
//
// Besides the node definitions the package provides a total structural
// order (Compare), substitution and free-variable queries, a concrete
// Evaluator used as the semantic oracle in tests, and a small text parser
// used by the command line front end.
package expr
