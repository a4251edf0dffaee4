package expr

import "github.com/marklange/marksheet/internal/ir"

// Expr represents a compiled query expression.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and
// enables exhaustive type switches in the evaluator.
//
// Expression types:
//   - Path: dotted field access on a single value
//   - Wildcard: apply an inner expression to every element of an array
//   - Filter: keep array elements satisfying a predicate, then apply
//     an inner expression to each survivor
//   - Projection: build an object with declared keys per element
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// Path is a dotted sequence of field names walked on a single value.
// An empty Steps slice is the identity expression (the value itself).
// Access to an absent field yields "no value", not an error.
type Path struct {
	Steps []string
}

func (Path) exprNode() {}

// Wildcard applies Of to every element of an array-valued node, in
// original order, preserving length. Applying it to a non-array is a
// shape error.
type Wildcard struct {
	Of Expr
}

func (Wildcard) exprNode() {}

// Filter keeps the subsequence of array elements for which Pred is
// true, preserving relative order, then applies Of to each survivor.
// Non-matching elements are dropped, not nulled.
type Filter struct {
	Pred Predicate
	Of   Expr
}

func (Filter) exprNode() {}

// Projection builds, per element, an object whose keys are the
// declared output names in declaration order and whose values are
// path-accessed results (missing fields render as null).
type Projection struct {
	Fields []ProjectedField
}

func (Projection) exprNode() {}

// ProjectedField is one output key of a Projection.
type ProjectedField struct {
	Name   string
	Source Path
}

// Predicate represents a filter condition.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Compare: field path against a literal with a comparison operator
//   - And: both sides must be true
//   - Or: either side suffices
//
// Mixed AND/OR chains parse left-associatively, so evaluation order is
// strictly left to right with no precedence between the two.
type Predicate interface {
	predNode() // Marker method - seals interface to this package
}

// CompareOp enumerates the comparison operators.
type CompareOp string

const (
	OpEq CompareOp = "=="
	OpNe CompareOp = "!="
	OpGt CompareOp = ">"
	OpLt CompareOp = "<"
	OpGe CompareOp = ">="
	OpLe CompareOp = "<="
)

// Compare tests a field path against a literal value.
//
// Numeric literals compare numerically; string literals compare by
// exact text equality. A comparison against an absent field, or
// between operands of different types, is false for that element -
// exclusion, not error. Ordering operators require numbers on both
// sides.
type Compare struct {
	Field Path
	Op    CompareOp
	Lit   ir.Value
}

func (Compare) predNode() {}

// And is a conjunction. Both sides are evaluated (predicates have no
// side effects, so short-circuiting is unobservable).
type And struct {
	Left, Right Predicate
}

func (And) predNode() {}

// Or is a disjunction; either side alone suffices.
type Or struct {
	Left, Right Predicate
}

func (Or) predNode() {}
