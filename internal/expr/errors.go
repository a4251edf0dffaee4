package expr

import (
	"errors"
	"fmt"
)

// EvalErrorCode categorizes evaluation errors.
type EvalErrorCode string

const (
	// ErrCodeShapeMismatch indicates a well-formed expression applied to
	// data that doesn't match its shape assumptions, e.g. a wildcard on
	// a scalar. Unlike a missing field, this fails the whole evaluation.
	ErrCodeShapeMismatch EvalErrorCode = "SHAPE_MISMATCH"
)

// EvalError represents an error detected while evaluating an
// expression against a batch. Expression syntax errors are not
// EvalErrors; those surface at compile time as *ParseError.
type EvalError struct {
	// Code identifies the error category.
	Code EvalErrorCode

	// Message is a human-readable description.
	Message string

	// Expr is the source text of the offending expression, when known.
	Expr string
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	if e.Expr != "" {
		return fmt.Sprintf("%s: %s (expr=%s)", e.Code, e.Message, e.Expr)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsShapeMismatch returns true if the error is a shape mismatch.
// Uses errors.As to handle wrapped errors.
func IsShapeMismatch(err error) bool {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Code == ErrCodeShapeMismatch
	}
	return false
}

// newShapeError creates an EvalError for an operand shape mismatch.
func newShapeError(format string, args ...any) *EvalError {
	return &EvalError{
		Code:    ErrCodeShapeMismatch,
		Message: fmt.Sprintf(format, args...),
	}
}

// ParseError represents malformed expression syntax. It is a
// configuration-time error: the fixed query set fails fast at startup
// rather than per record.
type ParseError struct {
	Expr    string // full source text
	Message string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Expr, e.Message)
}
