// Package expr implements the declarative query language evaluated
// against validated record batches.
//
// An expression is one of three kinds:
//
//   - a field path ("name", "subject.science"), walked on a single value;
//   - a selector over an array: wildcard "[*]" applies the remainder to
//     every element, filter "[?pred]" keeps elements satisfying a
//     predicate before applying the remainder to survivors;
//   - a multi-key projection "{Name: name, Result: subject.result}"
//     producing one object per element with declared output keys.
//
// Predicates compare a field path against a literal with
// ==, !=, >, <, >=, <= and combine comparisons with AND/OR evaluated
// strictly left to right.
//
// The surface syntax compiles to a typed tree once, at configuration
// time; malformed text fails there, never per record. Evaluation is a
// pure function: no mutation of the input batch, same batch in, same
// result out. A field missing on one record yields Null (projection)
// or excludes the element (filter) without aborting the rest, whereas
// applying a selector to a non-array is a shape error that fails the
// whole evaluation.
package expr
