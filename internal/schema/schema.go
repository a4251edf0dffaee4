// Package schema validates inbound record batches against the fixed
// record shape using the CUE SDK, producing a typed value tree for the
// query evaluator.
package schema

import (
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/marklange/marksheet/internal/ir"
)

//go:embed record.cue
var recordCUE string

// FieldError is one schema violation, addressed by the path of the
// offending field (e.g. "1.subject.science"). Detailed enough for the
// client to correct the request.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e FieldError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Validator checks record batches against the embedded CUE schema.
// Construction compiles the schema once; a Validator is immutable and
// safe for concurrent use.
type Validator struct {
	ctx   *cue.Context
	batch cue.Value
}

// NewValidator compiles the embedded record schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(recordCUE, cue.Filename("record.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile record schema: %w", err)
	}

	batch := schema.LookupPath(cue.ParsePath("#Batch"))
	if !batch.Exists() {
		return nil, fmt.Errorf("record schema does not define #Batch")
	}

	return &Validator{ctx: ctx, batch: batch}, nil
}

// ValidateBatch checks a JSON array of records against the schema.
//
// On success it returns the batch as a typed value tree, in input
// order. On violation it returns one FieldError per offending field
// so the client can correct all of them in one round trip. The two
// returns are mutually exclusive.
func (v *Validator) ValidateBatch(raw []byte) (ir.Array, []FieldError) {
	data := v.ctx.CompileBytes(raw, cue.Filename("request"))
	if err := data.Err(); err != nil {
		return nil, []FieldError{{Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}

	unified := v.batch.Unify(data)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return nil, fieldErrors(err)
	}

	decoded, err := ir.Decode(raw)
	if err != nil {
		return nil, []FieldError{{Message: fmt.Sprintf("invalid JSON: %v", err)}}
	}
	arr, ok := decoded.(ir.Array)
	if !ok {
		return nil, []FieldError{{Message: "batch must be an array of records"}}
	}

	return arr, nil
}

// fieldErrors flattens a CUE validation error into per-field errors.
// CUE errors may contain multiple violations; report them all.
func fieldErrors(err error) []FieldError {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return []FieldError{{Message: err.Error()}}
	}

	out := make([]FieldError, 0, len(errs))
	for _, e := range errs {
		msg, args := e.Msg()
		out = append(out, FieldError{
			Path:    strings.Join(e.Path(), "."),
			Message: fmt.Sprintf(msg, args...),
		})
	}
	return out
}
