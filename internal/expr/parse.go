package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/marklange/marksheet/internal/ir"
)

// Parse compiles expression source text into a typed Expr tree.
//
// Supported forms:
//
//	name                                plain path (non-array root)
//	[*].subject.science                 wildcard projection
//	[?subject.science > 80].name        filter then project
//	[*].{Name: name, Result: subject.result}   multi-key projection
//
// Parse is called once per expression at configuration time. A nil
// error guarantees evaluation will never fail on syntax.
func Parse(src string) (Expr, error) {
	p := &parser{src: src}
	return p.parse()
}

// MustParse is like Parse but panics on error.
// Use only in tests or for expressions known to be valid.
func MustParse(src string) Expr {
	e, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return e
}

type parser struct {
	src string
}

func (p *parser) errf(format string, args ...any) *ParseError {
	return &ParseError{Expr: p.src, Message: fmt.Sprintf(format, args...)}
}

func (p *parser) parse() (Expr, error) {
	s := strings.TrimSpace(p.src)
	if s == "" {
		return nil, p.errf("empty expression")
	}

	if strings.HasPrefix(s, "[") {
		return p.parseSelector(s)
	}
	if strings.HasPrefix(s, "{") {
		return p.parseProjection(s)
	}
	steps, err := p.parsePath(s)
	if err != nil {
		return nil, err
	}
	return Path{Steps: steps}, nil
}

// parseSelector parses "[*]" or "[?pred]" followed by an optional
// ".path" or ".{projection}" remainder.
func (p *parser) parseSelector(s string) (Expr, error) {
	end := indexClosingBracket(s)
	if end < 0 {
		return nil, p.errf("missing closing ]")
	}

	inside := strings.TrimSpace(s[1:end])
	rest := strings.TrimSpace(s[end+1:])

	var of Expr
	switch {
	case rest == "":
		// Bare selector: identity per element.
		of = Path{}
	case strings.HasPrefix(rest, "."):
		rest = strings.TrimSpace(rest[1:])
		if strings.HasPrefix(rest, "{") {
			proj, err := p.parseProjection(rest)
			if err != nil {
				return nil, err
			}
			of = proj
		} else {
			steps, err := p.parsePath(rest)
			if err != nil {
				return nil, err
			}
			of = Path{Steps: steps}
		}
	default:
		return nil, p.errf("expected '.' after selector, got %q", rest)
	}

	switch {
	case inside == "*":
		return Wildcard{Of: of}, nil
	case strings.HasPrefix(inside, "?"):
		pred, err := p.parsePredicate(strings.TrimSpace(inside[1:]))
		if err != nil {
			return nil, err
		}
		return Filter{Pred: pred, Of: of}, nil
	default:
		return nil, p.errf("unsupported selector [%s]: want [*] or [?predicate]", inside)
	}
}

// parsePredicate parses "comparison ((AND|OR) comparison)*" with
// strict left-to-right combination - no precedence between AND and OR.
func (p *parser) parsePredicate(s string) (Predicate, error) {
	if s == "" {
		return nil, p.errf("empty predicate")
	}

	tokens := splitQuoted(s)
	if len(tokens) < 3 {
		return nil, p.errf("incomplete comparison %q: want field op literal", s)
	}

	pred, err := p.parseComparison(tokens[0:3])
	if err != nil {
		return nil, err
	}

	i := 3
	for i < len(tokens) {
		if i+4 > len(tokens) {
			return nil, p.errf("dangling %q: want AND/OR followed by a comparison", strings.Join(tokens[i:], " "))
		}
		right, err := p.parseComparison(tokens[i+1 : i+4])
		if err != nil {
			return nil, err
		}
		switch strings.ToUpper(tokens[i]) {
		case "AND":
			pred = And{Left: pred, Right: right}
		case "OR":
			pred = Or{Left: pred, Right: right}
		default:
			return nil, p.errf("expected AND or OR, got %q", tokens[i])
		}
		i += 4
	}

	return pred, nil
}

// parseComparison parses exactly three tokens: field path, operator,
// literal.
func (p *parser) parseComparison(tokens []string) (Predicate, error) {
	steps, err := p.parsePath(tokens[0])
	if err != nil {
		return nil, err
	}

	op := CompareOp(tokens[1])
	switch op {
	case OpEq, OpNe, OpGt, OpLt, OpGe, OpLe:
	default:
		return nil, p.errf("unsupported operator %q", tokens[1])
	}

	lit, err := p.parseLiteral(tokens[2])
	if err != nil {
		return nil, err
	}

	return Compare{Field: Path{Steps: steps}, Op: op, Lit: lit}, nil
}

// parseLiteral parses a quoted string, true/false, or a number.
// Bare words are rejected: malformed syntax must fail at configuration
// time, not evaluate to a surprise string comparison.
func (p *parser) parseLiteral(tok string) (ir.Value, error) {
	if len(tok) >= 2 {
		if (tok[0] == '"' && tok[len(tok)-1] == '"') ||
			(tok[0] == '\'' && tok[len(tok)-1] == '\'') {
			return ir.Str(tok[1 : len(tok)-1]), nil
		}
	}
	switch tok {
	case "true":
		return ir.Bool(true), nil
	case "false":
		return ir.Bool(false), nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return ir.Num(f), nil
	}
	return nil, p.errf("invalid literal %q: want a quoted string, number, or true/false", tok)
}

// parseProjection parses "{Name: path, Other: path}".
func (p *parser) parseProjection(s string) (Projection, error) {
	if !strings.HasSuffix(s, "}") {
		return Projection{}, p.errf("missing closing } in projection")
	}
	inner := strings.TrimSpace(s[1 : len(s)-1])
	if inner == "" {
		return Projection{}, p.errf("empty projection")
	}

	var fields []ProjectedField
	seen := make(map[string]bool)
	for _, part := range strings.Split(inner, ",") {
		part = strings.TrimSpace(part)
		name, pathSrc, ok := strings.Cut(part, ":")
		if !ok {
			return Projection{}, p.errf("projection field %q: want Name: path", part)
		}
		name = strings.TrimSpace(name)
		if !isIdent(name) {
			return Projection{}, p.errf("invalid projection key %q", name)
		}
		if seen[name] {
			return Projection{}, p.errf("duplicate projection key %q", name)
		}
		seen[name] = true

		steps, err := p.parsePath(strings.TrimSpace(pathSrc))
		if err != nil {
			return Projection{}, err
		}
		fields = append(fields, ProjectedField{Name: name, Source: Path{Steps: steps}})
	}

	return Projection{Fields: fields}, nil
}

// parsePath parses a dotted field path into its steps.
func (p *parser) parsePath(s string) ([]string, error) {
	if s == "" {
		return nil, p.errf("empty field path")
	}
	steps := strings.Split(s, ".")
	for _, step := range steps {
		if !isIdent(step) {
			return nil, p.errf("invalid field name %q in path %q", step, s)
		}
	}
	return steps, nil
}

// isIdent reports whether s is a valid field or key name:
// [A-Za-z_][A-Za-z0-9_]*.
func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// indexClosingBracket returns the index of the ']' closing the leading
// '[', skipping over quoted literals. Returns -1 if unterminated.
func indexClosingBracket(s string) int {
	var quote byte
	for i := 1; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case ']':
			return i
		}
	}
	return -1
}

// splitQuoted splits on whitespace while keeping quoted literals
// (including their quotes) as single tokens.
func splitQuoted(s string) []string {
	var tokens []string
	var cur strings.Builder
	var quote byte

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			cur.WriteByte(c)
			if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
			cur.WriteByte(c)
		case ' ', '\t', '\n':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()

	return tokens
}
