package expr

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/marklange/marksheet/internal/ir"
)

//go:embed queries.yaml
var defaultQueriesYAML []byte

// Definition is one named query as declared in a query-set file.
type Definition struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// querySetFile is the YAML document shape of a query-set file.
type querySetFile struct {
	Queries []Definition `yaml:"queries"`
}

// Set is an ordered collection of named, compiled queries.
// Construction compiles every expression, so a Set in hand cannot fail
// on syntax at evaluation time. Sets are immutable and safe for
// concurrent use.
type Set struct {
	entries []compiledQuery
}

type compiledQuery struct {
	name string
	src  string
	expr Expr
}

// DefaultSet compiles the embedded query set.
// The embedded file is a build-time invariant; a compile failure here
// is a programming error, hence the panic on error.
func DefaultSet() *Set {
	s, err := ParseSet(defaultQueriesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded query set is invalid: %v", err))
	}
	return s
}

// LoadSetFile reads and compiles a query-set YAML file.
func LoadSetFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query set: %w", err)
	}
	s, err := ParseSet(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseSet parses and compiles a query-set document.
// Unknown YAML fields are rejected (catches typos like "exprs:"), and
// any malformed expression fails the whole set - configuration errors
// surface at startup, never per request.
func ParseSet(data []byte) (*Set, error) {
	var file querySetFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if len(file.Queries) == 0 {
		return nil, fmt.Errorf("query set is empty")
	}

	set := &Set{entries: make([]compiledQuery, 0, len(file.Queries))}
	seen := make(map[string]bool)
	for i, def := range file.Queries {
		if def.Name == "" {
			return nil, fmt.Errorf("queries[%d]: name is required", i)
		}
		if seen[def.Name] {
			return nil, fmt.Errorf("queries[%d]: duplicate name %q", i, def.Name)
		}
		seen[def.Name] = true

		compiled, err := Parse(def.Expr)
		if err != nil {
			return nil, fmt.Errorf("query %q: %w", def.Name, err)
		}
		set.entries = append(set.entries, compiledQuery{
			name: def.Name,
			src:  def.Expr,
			expr: compiled,
		})
	}

	return set, nil
}

// Names returns query names in declaration order.
func (s *Set) Names() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return names
}

// Len returns the number of queries in the set.
func (s *Set) Len() int {
	return len(s.entries)
}

// Run evaluates every query against the batch and returns name->result
// in declaration order, for deterministic serialization.
//
// The first shape error aborts the run: retrying the same expressions
// against the same batch cannot succeed, so partial results would only
// mask the defect.
func (s *Set) Run(batch ir.Value) (ir.OrderedObject, error) {
	out := make(ir.OrderedObject, 0, len(s.entries))
	for _, e := range s.entries {
		result, err := Evaluate(batch, e.expr)
		if err != nil {
			if ee, ok := err.(*EvalError); ok && ee.Expr == "" {
				ee.Expr = e.src
			}
			return nil, fmt.Errorf("query %q: %w", e.name, err)
		}
		out = append(out, ir.Field{Key: e.name, Val: result})
	}
	return out, nil
}
